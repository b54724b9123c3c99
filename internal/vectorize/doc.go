// Package vectorize turns one partition of articles into embedding vectors
// and upserts them into the vector index.
//
// The stages run one after another over the whole partition: build
// documents, split them into overlapping chunks, embed every chunk in one
// provider call, normalize chunk metadata, then upsert fixed-size batches in
// order. The first failing batch stops the run; batches already written stay
// in the index.
package vectorize
