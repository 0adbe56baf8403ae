package domain

import "errors"

var (
	// ErrQueryTooShort means the trimmed search query is under the minimum
	// length. Callers should ask the user for more characters.
	ErrQueryTooShort = errors.New("query too short")

	// ErrStorageUnavailable means storage is temporarily unreachable. Writes
	// hitting it are retried with backoff; reads surface a try-again state.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrMalformedKey means an upsert was attempted with an invalid source
	// id. This is a caller error and is never retried.
	ErrMalformedKey = errors.New("malformed source id")
)
