// Package facestore holds enrolled face embeddings in memory and keeps a
// durable copy on disk.
//
// Every mutation rewrites the store file before it becomes visible to
// readers, so the in-memory state and the file never diverge. Readers work
// on immutable snapshots and never block on a mutation that is persisting.
//
// A writable store holds an exclusive advisory lock on "<path>.lock" from
// Load until Close, so two processes can never mutate the same file.
// Read-only stores take no lock.
package facestore

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// State is the lifecycle state of a Store.
type State int

const (
	StateUninitialized State = iota
	StateLoaded
	// StateFailed is terminal: the durable file exists but was rejected.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options configures a Store.
type Options struct {
	// Path of the durable store file.
	Path string
	// Dimension fixes the embedding length. Zero infers it from the file
	// or the first enrollment.
	Dimension int
	// Compress writes the file as a zstd stream.
	Compress bool
	// ReadOnly skips the owner lock and rejects every mutation with
	// ErrReadOnly.
	ReadOnly bool
	Logger   *slog.Logger
}

// Snapshot is an immutable view of the store. Records are ordered by
// UserID.Compare and must not be modified.
type Snapshot struct {
	Dimension  int
	Generation uint64
	Records    []Record
}

// Len returns the number of records in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}

// find returns the index of id in the snapshot.
func (s *Snapshot) find(id UserID) (int, bool) {
	return slices.BinarySearchFunc(s.Records, id, func(r Record, target UserID) int {
		return r.UserID.Compare(target)
	})
}

// Store is the single writable source of truth for enrolled identities.
type Store struct {
	path          string
	compress      bool
	configuredDim int
	readOnly      bool
	logger        *slog.Logger

	mu      sync.RWMutex
	lock    *os.File
	state   State
	loadErr error
	snap    *Snapshot
}

// New creates an unloaded store. Call Load before use.
func New(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{
		path:          opts.Path,
		compress:      opts.Compress,
		configuredDim: opts.Dimension,
		readOnly:      opts.ReadOnly,
		logger:        logger,
		snap:          &Snapshot{Dimension: opts.Dimension},
	}
}

// Load reads the durable file into memory. A missing file yields an empty
// store. A file that exists but cannot be accepted moves the store to
// StateFailed and every later call returns the same *CorruptStoreError.
// A writable store returns ErrLocked while another process owns the file;
// the store stays uninitialized and Load may be retried.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateLoaded:
		return nil
	case StateFailed:
		return s.loadErr
	}

	if !s.readOnly {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
			return fmt.Errorf("creating store directory: %w", err)
		}
		lock, err := lockFile(s.path + ".lock")
		if err != nil {
			return err
		}
		s.lock = lock
	}

	data, exists, err := readFile(s.path)
	if err != nil {
		return s.fail(err)
	}
	if !exists {
		s.snap = &Snapshot{Dimension: s.configuredDim}
		s.state = StateLoaded
		s.logger.Info("no existing face store found, starting fresh", "path", s.path)
		return nil
	}

	dim, records, err := decodeStore(data, s.configuredDim)
	if err != nil {
		return s.fail(err)
	}
	s.snap = &Snapshot{Dimension: dim, Records: records}
	s.state = StateLoaded
	s.logger.Info("loaded face store", "path", s.path, "records", len(records), "dimension", dim)
	return nil
}

func (s *Store) fail(cause error) error {
	s.releaseLock()
	s.state = StateFailed
	s.loadErr = &CorruptStoreError{Path: s.path, cause: cause}
	s.logger.Error("face store rejected", "path", s.path, "error", cause)
	return s.loadErr
}

// Close releases the owner lock. A loaded store goes back to
// StateUninitialized; a failed one stays failed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateLoaded {
		s.state = StateUninitialized
		s.snap = &Snapshot{Dimension: s.configuredDim}
	}
	return s.releaseLock()
}

// releaseLock drops the owner lock if held. Callers hold s.mu.
func (s *Store) releaseLock() error {
	if s.lock == nil {
		return nil
	}
	err := unlockFile(s.lock)
	s.lock = nil
	return err
}

// writable reports why the store cannot be mutated. Callers hold s.mu.
func (s *Store) writable() error {
	if s.state != StateLoaded {
		return ErrNotLoaded
	}
	if s.readOnly {
		return ErrReadOnly
	}
	return nil
}

// Persist rewrites the durable file from the current in-memory state.
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}
	return s.write(s.snap.Dimension, s.snap.Records)
}

func (s *Store) write(dim int, records []Record) error {
	if err := writeAtomically(s.path, dim, records, s.compress); err != nil {
		return &PersistenceError{Path: s.path, cause: err}
	}
	s.logger.Debug("persisted face store", "path", s.path, "records", len(records))
	return nil
}

// commit persists the next state and publishes it. Callers hold s.mu.
func (s *Store) commit(dim int, records []Record) error {
	if err := s.write(dim, records); err != nil {
		return err
	}
	s.snap = &Snapshot{Dimension: dim, Generation: s.snap.Generation + 1, Records: records}
	return nil
}

// Put inserts or replaces the record for rec.UserID. It reports whether
// an existing record was replaced.
func (s *Store) Put(rec Record) (bool, error) {
	if rec.UserID == "" {
		return false, fmt.Errorf("%w: empty user_id", ErrInvalidRecord)
	}
	if err := rec.Metadata.Validate(); err != nil {
		return false, err
	}
	rec = rec.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return false, err
	}

	cur := s.snap
	dim := cur.Dimension
	if err := ValidateEmbedding(rec.Embedding, dim); err != nil {
		return false, err
	}
	if dim == 0 {
		dim = len(rec.Embedding)
	}

	i, replaced := cur.find(rec.UserID)
	next := make([]Record, 0, len(cur.Records)+1)
	next = append(next, cur.Records[:i]...)
	next = append(next, rec)
	if replaced {
		next = append(next, cur.Records[i+1:]...)
	} else {
		next = append(next, cur.Records[i:]...)
	}

	if err := s.commit(dim, next); err != nil {
		return false, err
	}
	return replaced, nil
}

// Remove deletes the record for id. It returns ErrNotFound when id is not
// enrolled; nothing is written in that case.
func (s *Store) Remove(id UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}

	cur := s.snap
	i, ok := cur.find(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next := make([]Record, 0, len(cur.Records)-1)
	next = append(next, cur.Records[:i]...)
	next = append(next, cur.Records[i+1:]...)

	dim := cur.Dimension
	if len(next) == 0 {
		dim = s.configuredDim
	}
	return s.commit(dim, next)
}

// Clear removes every record. The dimension falls back to the configured
// one.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}
	return s.commit(s.configuredDim, nil)
}

// Get returns a copy of the record for id.
func (s *Store) Get(id UserID) (Record, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return Record{}, err
	}
	i, ok := snap.find(id)
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return snap.Records[i].Clone(), nil
}

// All returns the records of the current snapshot in UserID order. The
// slice is a copy; the embeddings it references are shared and read-only.
func (s *Store) All() ([]Record, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	return slices.Clone(snap.Records), nil
}

// Snapshot returns the current immutable view of the store.
func (s *Store) Snapshot() (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateLoaded {
		if s.state == StateFailed {
			return nil, s.loadErr
		}
		return nil, ErrNotLoaded
	}
	return s.snap, nil
}

// Len returns the number of enrolled records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Len()
}

// Dimension returns the store-wide embedding length, 0 while unknown.
func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Dimension
}

// State returns the lifecycle state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Path returns the durable file location.
func (s *Store) Path() string {
	return s.path
}
