// Package models defines the entities of a Worklin workspace.
//
// A [Workspace] holds [Page] values, and each page holds an ordered sequence of
// typed [Block] values. The same structs are used by every layer: the session
// store, the local snapshot, the HTTP API and both remote backends.
//
// # Typed IDs
//
// [WorkspaceID], [PageID], [BlockID] and [UserID] are instantiations of the
// generic [ID] type. Each wraps a UUID and knows its table at compile time, so
// the compiler rejects a PageID where a BlockID is expected. IDs encode as
// plain strings in JSON, as SurrealDB record ids in CBOR and as uuid columns
// through database/sql.
//
// # Ordering
//
// Blocks carry an integer Order. [SortBlocks] is stable, so equal orders keep
// their array position. The session store keeps Order equal to position at all
// times; remote backends may hold gaps after deletes.
//
// # Defaults
//
// [NewBlock] and [NewPage] apply the creation defaults, and [DefaultWorkspace]
// builds the onboarding content used when no snapshot exists.
package models
