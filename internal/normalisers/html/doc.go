// Package html provides a Normaliser implementation for HTML documents.
// It selects the main readable region of a page, drops navigation and other
// boilerplate, and renders what remains as clean text.
package html
