// Package journal keeps a local SQLite record of delivery cycles.
//
// Every cycle report is written as one row: how many measurements were
// polled, whether the link came up, how many batches left the node, how
// many are still pending and how many were evicted. The journal answers
// "when was this node last able to deliver" without access to the
// collector. It never stores the batches themselves; those live only in
// the in-memory retry buffer.
//
// Rows older than the configured retention are pruned at most once a day.
package journal
