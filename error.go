package objdb

import (
	"errors"

	"github.com/alexhholmes/objdb/backend"
	"github.com/alexhholmes/objdb/internal/omap"
	"github.com/alexhholmes/objdb/internal/overlay"
	"github.com/alexhholmes/objdb/internal/readslots"
)

//goland:noinspection GoUnusedGlobalVariable
var (
	ErrDatabaseClosed = errors.New("database is closed")
	ErrKeyEmpty       = errors.New("key cannot be empty")
	ErrKeyTooLarge    = errors.New("key too large")
	ErrValueTooLarge  = errors.New("value too large")

	ErrTxInProgress = errors.New("write session already in progress")
	ErrTxDone       = errors.New("session has been closed")

	ErrKeyNotFound     = overlay.ErrNotFound
	ErrTxNotWritable   = overlay.ErrReadOnly
	ErrChangesetFull   = overlay.ErrFull
	ErrCursorClosed    = overlay.ErrCursorReleased
	ErrTooManyReaders  = readslots.ErrTooManyReaders
	ErrBranchingFactor = omap.ErrBranchingFactor
	ErrUnknownBackend  = backend.ErrUnknownBackend
)
