// Package trace records the logical decisions of a pipeline run in a
// canonical, hashable form.
package trace
