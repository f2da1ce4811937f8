package models

import "errors"

// Error kinds per the indexer's error-handling design. Background indexing
// swallows all of these except a catastrophic Scanner/Store failure; query
// and detail paths return them as structured failures rather than panicking.
var (
	// ErrMalformedClass is returned by the classfile reader on a bad magic
	// number or an unrecognized constant-pool tag.
	ErrMalformedClass = errors.New("malformed class file")

	// ErrArchiveUnreadable is returned when an archive is missing,
	// truncated, or not a valid ZIP.
	ErrArchiveUnreadable = errors.New("archive unreadable")

	// ErrDecompilerUnavailable is returned when the decompiler binary is
	// missing or the subprocess invocation failed.
	ErrDecompilerUnavailable = errors.New("decompiler unavailable")

	// ErrStoreBusy signals transient writer contention; callers should retry.
	ErrStoreBusy = errors.New("store busy")

	// ErrInvalidQuery is returned for a malformed regex/glob/FTS term.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrNotFound indicates the requested class/artifact does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConfigurationError reports an unusable setup; Indexer.Watch returns
	// it when the filesystem watcher cannot be created. Whether the
	// configured roots exist is not checked.
	ErrConfigurationError = errors.New("configuration error")
)
