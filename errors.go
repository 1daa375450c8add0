package ytbulk

import (
	"ytbulk/auth"
	"ytbulk/credentials"
	"ytbulk/internal/retry"
	"ytbulk/storage"
	"ytbulk/thumbnail"
	"ytbulk/youtube"
)

// Type aliases for convenient error handling.
type (
	// RemoteAPIError wraps a failed YouTube Data API call.
	RemoteAPIError = youtube.APIError
	// IOError wraps a failed disk operation.
	IOError = storage.StorageError
	// RetryableError wraps errors that persisted after retries were exhausted.
	RetryableError = retry.RetryableError
)

// Sentinel errors exported from sub-packages.
var (
	ErrCredentialsNotFound      = credentials.ErrNotFound
	ErrCredentialsMalformed     = credentials.ErrMalformed
	ErrCredentialsMissingFields = credentials.ErrMissingFields

	ErrAuthorizationDenied = auth.ErrAuthorizationDenied
	ErrNoAuthorizationCode = auth.ErrNoAuthorizationCode
	ErrNoPortAvailable     = auth.ErrNoPortAvailable
	ErrStateMismatch       = auth.ErrStateMismatch

	// ErrNotAuthenticated indicates an operation that needs a token ran before Authenticate.
	ErrNotAuthenticated = youtube.ErrNotAuthenticated
	ErrNoChannel        = youtube.ErrNoChannel

	// ErrPlaceholder indicates a thumbnail that is not ready yet.
	ErrPlaceholder = thumbnail.ErrPlaceholder

	// ErrStorageCorrupt indicates a backup file that could not be decoded.
	ErrStorageCorrupt = storage.ErrStorageCorrupt
	// ErrLockTimeout indicates a timeout acquiring a file lock.
	ErrLockTimeout = storage.ErrLockTimeout
)

// IsRetryable determines if an error should be retried.
func IsRetryable(err error) bool {
	return retry.IsRetryable(err)
}
