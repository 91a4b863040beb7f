// Package store implements the request log store from spec.md §3/§4.5:
// a keyed, single-writer/concurrent-readers store backed by bbolt. Two
// keys are reserved ("__counter__", "post_data"); every other key is the
// decimal ASCII form of the monotonic counter value at insertion time.
//
// The on-disk format here is intentionally the only contract shared
// with the out-of-scope inspection tool named in spec.md §6 — this
// package does not implement that tool, only the bucket/key layout it
// would read.
package store
