package domain

import "errors"

// Error taxonomy for the enumeration pipeline.
// Only ErrFatalAuth ends a run; everything else is contained to one target.
var (
	// ErrAuthExpired indicates the bearer token was rejected with 401.
	// It triggers a single refresh and retry.
	ErrAuthExpired = errors.New("auth expired")

	// ErrForbidden indicates a 403. The account exists but details are restricted.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound indicates the search returned no usable result.
	ErrNotFound = errors.New("target not found")

	// ErrUnexpectedStatus indicates any HTTP status the pipeline has no rule for.
	ErrUnexpectedStatus = errors.New("unexpected status")

	// ErrMalformedResponse indicates a body that could not be decoded into the expected shape.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrMalformedIdentifier indicates a GUID or MRI that cannot be looked up.
	ErrMalformedIdentifier = errors.New("malformed identifier")

	// ErrStoreUnavailable indicates the relational store could not be reached or configured.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrFatalAuth indicates credentials are unusable and cannot be refreshed.
	ErrFatalAuth = errors.New("fatal authentication error")
)

// IsFatal reports whether err must abort the whole run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatalAuth)
}
