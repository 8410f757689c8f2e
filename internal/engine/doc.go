// Package engine implements the mergeable configuration engine shared by
// every config domain.
//
// A Config holds a flat map of keys to stamped entries. Domain wrappers
// (profile, contacts, group members, ...) address fields by "/"-separated
// keys and never touch entries directly.
//
// Sync cycle:
//  1. A typed setter changes a key; the entry gets a fresh Lamport stamp.
//  2. Push serializes the whole state, seals it, and returns it with a new
//     seqno. Repeated pushes without a change return identical bytes.
//  3. The relay stores the blob under a hash it chooses. ConfirmPushed with
//     the matching seqno records that hash as live.
//  4. Merge opens remote blobs and joins them key by key.
//
// Merge policies:
//   - LastWriterWins: highest (seq, node) stamp wins
//   - MaxValue: largest integer wins
//   - FirstWriter: lowest stamp wins, later writes are no-ops
//   - Counter: one sub-entry per device, read as a sum
//   - SetUnion: one sub-entry per element, add only
//
// Every policy picks the maximum under a total order, so the join is
// commutative, associative, and idempotent. Merging any permutation or
// repetition of the same records produces the same state and the same
// live hash set.
//
// Concurrency: a Config is single-writer. Callers serialize access, usually
// through a worker mailbox. No method performs I/O.
package engine
