// Package upload sends the pending measurement backlog to OpenCellID in
// bounded parts.
//
// A run snapshots the backlog (count and newest timestamp), then for each
// part fetches the oldest measurements, uploads them and deletes them once
// the server accepted them. A terminal outcome or cancellation stops the
// run; the next run resumes from the oldest remaining measurement.
//
// Cancellation is observed only between parts. The part in flight always
// completes, including its deletion, so accepted measurements are never
// uploaded twice.
package upload
