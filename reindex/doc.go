// Package reindex rebuilds the vector index from documents already recorded
// in the document store.
//
// It is used after an embedding backend or chunking change: every stored
// document is re-chunked and re-embedded in batches, with retry and
// exponential backoff around each document and progress written to a
// caller-supplied writer. A checkpoint is saved after every batch so an
// interrupted run can resume where it stopped.
package reindex
