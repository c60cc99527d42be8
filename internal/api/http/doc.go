// Package http implements the REST surface for widget sessions.
package http
