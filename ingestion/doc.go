// Package ingestion synchronizes a remote catalog into the vector index.
//
// A Syncer fetches the catalog listing, computes the pending set with
// Pending (items that are new or strictly newer than their stored
// timestamp), and runs rounds over it. Every pending item is submitted to a
// schedule.Scheduler as one unit of work: fetch, convert, chunk, embed,
// upsert, record. Items that fail stay pending for the next round; the loop
// ends when nothing is pending, the round cap is hit, or the context is
// cancelled.
//
// Rounds are strictly sequential. Cancellation stops new rounds and tasks
// that have not started yet; tasks already running are allowed to finish.
//
// # Failure policy
//
//   - Transient fetch, embedding and index errors are retried every round.
//   - Parse errors are retried until they have failed MaxParseFailures
//     rounds, then the item is skipped.
//   - Items still failing after MaxRounds are reported as Remaining.
package ingestion
