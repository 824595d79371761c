// Package locking implements the handle-based blockstore.Store on top
// of a blockstore.Store2, serializing concurrent access to the same
// block id within one process.
//
// Two levels of locking compose here:
//
//  1. lockPool — a per-id mutex, acquired for the lifetime of a [Block]
//     handle. Guarantees the "unique live lease per id" contract
//     [blockstore.Block] documents.
//  2. Store.structureMu — guards operations that observe the set of
//     blocks as a whole (NumBlocks, ForEachBlock) against concurrent
//     creation/removal, so an enumeration sees a consistent snapshot.
//
// Lock ordering: structureMu (RLock for per-id ops, Lock for
// structural scans) is always acquired before a per-id lock.
package locking
