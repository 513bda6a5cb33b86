package social

import "errors"

var (
	// ErrNotFound signals the upstream account or profile does not exist.
	// Callers should mark the entity invalid rather than retry forever.
	ErrNotFound = errors.New("account not found")

	// ErrMissingCredential signals a configuration error. The operation
	// fails without any upstream call or partial state mutation.
	ErrMissingCredential = errors.New("missing access credential")
)
