// Package physical implements the bottom of the block-store stack: the
// backends that actually hold bytes. [OnDisk] stores one file per
// block under a root directory; [InMemory] holds blocks in a map
// behind a mutex. Both know nothing of encryption or integrity -- they
// satisfy [blockstore.Store2] directly and are interchangeable.
package physical
