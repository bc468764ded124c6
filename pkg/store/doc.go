// Package store defines how Worklin pages and blocks are persisted.
//
// Two abstractions live here:
//
//   - [RemoteStore]: the per-entity document store the session mirrors its
//     edits to, with live subscriptions. Implementations are in
//     [github.com/worklin/worklin/pkg/store/surrealdb],
//     [github.com/worklin/worklin/pkg/store/postgres] and
//     [github.com/worklin/worklin/pkg/store/memory].
//   - [Repository]: pages as owners of their blocks, with cascade delete.
//     [Normalized] implements it over any RemoteStore and
//     [github.com/worklin/worklin/pkg/store/local.Repository] over the local
//     snapshot.
//
// [ReadOnlyStore] wraps a RemoteStore and rejects all writes.
//
// The shared conformance suite in
// [github.com/worklin/worklin/pkg/store/storetest] is run by every backend.
package store
