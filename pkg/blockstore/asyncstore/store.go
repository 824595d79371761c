// Package asyncstore offloads every blockstore.Store2 call onto a
// bounded pool of worker goroutines. The contract is unchanged --
// every call still blocks until its result is ready -- only the
// goroutine that actually touches the inner store differs, which
// bounds how many calls can hit a slow backend (e.g. a network-backed
// physical store) concurrently regardless of how many callers there
// are.
package asyncstore

import (
	"sync"

	"github.com/cryfs/cryfs-sub001/pkg/blockid"
	"github.com/cryfs/cryfs-sub001/pkg/blockstore"
)

type job struct {
	run  func()
	done chan struct{}
}

// Store wraps an inner blockstore.Store2, dispatching every call to
// one of a fixed number of worker goroutines.
type Store struct {
	inner blockstore.Store2
	jobs  chan job
	quit  chan struct{}

	closeOnce sync.Once
}

// New returns an asyncstore.Store wrapping inner with the given number
// of worker goroutines. A workers value below 1 is treated as 1.
func New(inner blockstore.Store2, workers int) *Store {
	if workers < 1 {
		workers = 1
	}

	s := &Store{
		inner: inner,
		jobs:  make(chan job),
		quit:  make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		go s.runWorker()
	}

	return s
}

func (s *Store) runWorker() {
	for {
		select {
		case j := <-s.jobs:
			j.run()
			close(j.done)

		case <-s.quit:
			return
		}
	}
}

// dispatch runs fn on a worker goroutine and blocks until it returns.
func (s *Store) dispatch(fn func()) {
	done := make(chan struct{})

	select {
	case s.jobs <- job{run: fn, done: done}:
	case <-s.quit:
		return
	}

	<-done
}

// Close stops the worker pool. Calls made after Close return at once
// without reaching the inner store, with zero results and a nil error;
// callers must not invoke any Store method concurrently with Close.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.quit) })
}

func (s *Store) TryCreate(id blockid.BlockId, data blockstore.Data) (ok bool, err error) {
	s.dispatch(func() { ok, err = s.inner.TryCreate(id, data) })

	return ok, err
}

func (s *Store) Store(id blockid.BlockId, data blockstore.Data) (err error) {
	s.dispatch(func() { err = s.inner.Store(id, data) })

	return err
}

func (s *Store) Load(id blockid.BlockId) (data blockstore.Data, found bool, err error) {
	s.dispatch(func() { data, found, err = s.inner.Load(id) })

	return data, found, err
}

func (s *Store) Remove(id blockid.BlockId) (removed bool, err error) {
	s.dispatch(func() { removed, err = s.inner.Remove(id) })

	return removed, err
}

func (s *Store) NumBlocks() (n uint64, err error) {
	s.dispatch(func() { n, err = s.inner.NumBlocks() })

	return n, err
}

func (s *Store) EstimateNumFreeBytes() (n uint64, err error) {
	s.dispatch(func() { n, err = s.inner.EstimateNumFreeBytes() })

	return n, err
}

func (s *Store) BlockSizeFromPhysicalBlockSize(n uint64) uint64 {
	return s.inner.BlockSizeFromPhysicalBlockSize(n)
}

func (s *Store) ForEachBlock(cb func(blockid.BlockId) error) (err error) {
	s.dispatch(func() { err = s.inner.ForEachBlock(cb) })

	return err
}

var _ blockstore.Store2 = (*Store)(nil)
