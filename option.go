package objdb

import (
	"github.com/alexhholmes/objdb/backend/bolt"
	"github.com/alexhholmes/objdb/internal/omap"
)

// SyncMode controls whether the base store fsyncs on commit.
type SyncMode int

const (
	// SyncEveryCommit fsyncs on every session commit.
	// - Guarantees zero data loss on power failure
	// - Limited by fsync latency
	SyncEveryCommit SyncMode = iota

	// SyncOff disables fsync entirely (testing/bulk loads only).
	// - Maximum throughput
	// - Unflushed commits are lost on crash
	SyncOff
)

const (
	DefaultMaxReaders = 256
	DefaultBackend    = bolt.Name
)

// DBOptions configures database behavior.
type DBOptions struct {
	backend           string
	syncMode          SyncMode
	branchingFactor   int  // changeset B+tree fan-out
	readCacheEntries  int  // per-session base read cache, 0 disables it
	maxChangesetBytes int  // 0 means unbounded
	offHeapChangeset  bool // mmap changeset arenas outside the Go heap
	maxReaders        int
	logger            Logger
	commitHook        func(Changes) error
}

func defaultDBOptions() DBOptions {
	return DBOptions{
		backend:         DefaultBackend,
		syncMode:        SyncEveryCommit,
		branchingFactor: omap.DefaultBranchingFactor,
		maxReaders:      DefaultMaxReaders,
		logger:          DiscardLogger{},
	}
}

// DBOption configures database options using the functional options pattern.
type DBOption func(*DBOptions)

// WithBackend selects the base store by registered name: "bolt" (default),
// "pebble", "badger" or "memory".
func WithBackend(name string) DBOption {
	return func(opts *DBOptions) {
		opts.backend = name
	}
}

// WithSyncEveryCommit configures the base store to fsync on every commit.
func WithSyncEveryCommit() DBOption {
	return func(opts *DBOptions) {
		opts.syncMode = SyncEveryCommit
	}
}

// WithSyncOff disables fsync entirely.
// Only use for testing or bulk loads where data can be reconstructed.
func WithSyncOff() DBOption {
	return func(opts *DBOptions) {
		opts.syncMode = SyncOff
	}
}

// WithBranchingFactor sets the fan-out of each session's changeset tree.
// Values below 3 make Begin fail with ErrBranchingFactor.
func WithBranchingFactor(n int) DBOption {
	return func(opts *DBOptions) {
		opts.branchingFactor = n
	}
}

// WithReadCache gives every session an LRU of n base store lookups.
func WithReadCache(n int) DBOption {
	return func(opts *DBOptions) {
		opts.readCacheEntries = n
	}
}

// WithMaxChangesetBytes bounds the bytes a write session may buffer before
// commit. Writes past the bound fail with ErrChangesetFull.
func WithMaxChangesetBytes(n int) DBOption {
	return func(opts *DBOptions) {
		opts.maxChangesetBytes = n
	}
}

// WithOffHeapChangeset keeps changeset copies in anonymous mmaps where the
// platform supports it, so large sessions do not grow the Go heap.
// Session.Get then returns copies; cursor slices must not be used after
// Commit, Rollback or Close.
func WithOffHeapChangeset() DBOption {
	return func(opts *DBOptions) {
		opts.offHeapChangeset = true
	}
}

// WithMaxReaders bounds concurrent read-only sessions.
func WithMaxReaders(n int) DBOption {
	return func(opts *DBOptions) {
		opts.maxReaders = n
	}
}

// WithLogger sets the logger; DiscardLogger by default.
func WithLogger(l Logger) DBOption {
	return func(opts *DBOptions) {
		if l == nil {
			l = DiscardLogger{}
		}
		opts.logger = l
	}
}

// WithCommitHook registers fn to inspect every changeset before it is written.
// An error from fn aborts the commit and leaves the changeset in place.
func WithCommitHook(fn func(Changes) error) DBOption {
	return func(opts *DBOptions) {
		opts.commitHook = fn
	}
}
