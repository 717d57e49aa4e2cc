// Package batch provides the part arithmetic shared by the uploader and the
// exporter.
//
// A backlog of N records is processed in parts of at most P records:
//   - PartsCount(N, P) == ceil(N / P)
//   - Parts(N, P) yields the [offset, offset+limit) window of each part
//   - Progress tracks processed parts and records for UI updates
//
// Memory use is bounded by the part size regardless of the backlog size.
package batch
