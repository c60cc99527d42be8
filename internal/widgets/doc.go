// Package widgets declares the closed set of widget configurations:
// each kind's template mapping table, history capacity, and intent
// routing rules. Adding a widget means adding a file here and a kind to
// the shared types; registry completion checks catch a kind left
// without a spec at startup.
package widgets
