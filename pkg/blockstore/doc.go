// Package blockstore defines the BlockStore contract shared by every
// layer of the encrypting block-store stack (physical, encrypted,
// integrity, locking, and the optional compression/async/read-only
// decorators).
//
// Two flavors of the contract coexist:
//
//   - [Store2] is flat and stateless: try-create, store, load, remove
//     take a whole buffer per call.
//   - [Store] is handle-based: TryCreate/Create/Load/Overwrite return a [Block]
//     that buffers writes and must be flushed or closed.
//
// Every concrete layer wraps an inner instance of one of these two
// interfaces by value (not by embedding/inheritance) and forwards
// through it, which is how the decorator stack in the package tree
// composes:
//
//	locking.Store  -- handle-based, built on a Store2
//	  -> integrity.Store   -- Store2
//	    -> encrypted.Store -- Store2
//	      -> physical.OnDisk / physical.InMemory -- Store2
package blockstore
