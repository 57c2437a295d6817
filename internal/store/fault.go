package store

import (
	"context"
	"errors"

	"github.com/mattn/go-sqlite3"
	moderncsqlite "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"

	"github.com/roach88/crm/internal/errs"
)

// fault wraps an engine error as a StoreFault. Errors that already carry a
// taxonomy kind, and context cancellation, pass through unchanged.
func fault(op string, err error) error {
	if err == nil {
		return nil
	}
	if errs.Kind(err) != "" {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &errs.StoreFault{Reason: classify(err), Op: op, Err: err}
}

// classify maps driver result codes onto fault reasons.
func classify(err error) errs.FaultReason {
	var mattn sqlite3.Error
	if errors.As(err, &mattn) {
		switch mattn.Code {
		case sqlite3.ErrFull:
			return errs.FaultQuota
		case sqlite3.ErrCorrupt, sqlite3.ErrNotADB:
			return errs.FaultCorruption
		}
		return errs.FaultIO
	}

	var modernc *moderncsqlite.Error
	if errors.As(err, &modernc) {
		// Code may carry an extended result code; the primary code is the low byte.
		switch modernc.Code() & 0xff {
		case sqlitelib.SQLITE_FULL:
			return errs.FaultQuota
		case sqlitelib.SQLITE_CORRUPT, sqlitelib.SQLITE_NOTADB:
			return errs.FaultCorruption
		}
	}
	return errs.FaultIO
}

// versionFault reports a schema mismatch found while opening.
func versionFault(err error) error {
	return &errs.StoreFault{Reason: errs.FaultVersion, Op: "open", Err: err}
}
