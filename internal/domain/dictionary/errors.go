package dictionary

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a code is in neither the cache nor the store.
	ErrNotFound = errors.New("dictionary entry not found")
	// ErrSyncInProgress is returned to a caller that races a running sync.
	ErrSyncInProgress = errors.New("dictionary sync already in progress")
)

// Sync stages reported by SyncError.
const (
	StageFetch = "fetch"
	StageParse = "parse"
	StageStore = "store"
)

// FetchError means neither the remote source nor the local fallback could be read.
type FetchError struct {
	URL      string
	Remote   error
	Fallback error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v; fallback: %v", e.URL, e.Remote, e.Fallback)
}

func (e *FetchError) Unwrap() []error {
	return []error{e.Remote, e.Fallback}
}

// ParseError means the CSV stream itself was unreadable. Individual bad rows
// never produce a ParseError.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse csv at line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SyncError wraps the failure of one sync stage.
type SyncError struct {
	Stage string
	Err   error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("dictionary sync %s: %v", e.Stage, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }
