// Package reembed recomputes the stored query vectors of the semantic cache.
//
// Vectors produced by different embedding models are not comparable, so a
// model change leaves every stored vector unmatchable. A Reembedder walks the
// query index in batches, embeds the stored query texts with the new model and
// writes the vectors back under their original keys and scopes.
package reembed
