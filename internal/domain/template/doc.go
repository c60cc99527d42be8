// Package template maps widget parameters to backend template directives.
//
// Each widget kind registers a Spec: a static table from a mode
// discriminator to a template entry, plus a mandatory default entry.
// Resolution is total over the registered domain — an unrecognized mode
// falls back to the default, never an error — deterministic, and free of
// side effects. Template args contain only the keys the resolved entry
// declares; the primary instruction field is always populated, with a
// placeholder when the caller supplied an empty one.
package template
