package domain

import (
	"fmt"
	"strings"
)

// Recognised MRI routing prefixes.
const (
	MRIPrefixOrgID = "8:orgid:"
	MRIPrefixSFB   = "8:sfb:"
	// MRIPrefixLive marks personal accounts returned by the teams.live.com search.
	MRIPrefixLive = "8:live:"
)

var mriPrefixes = []string{MRIPrefixOrgID, MRIPrefixSFB, MRIPrefixLive}

// HasMRIPrefix reports whether id already carries a recognised routing prefix.
func HasMRIPrefix(id string) bool {
	for _, p := range mriPrefixes {
		if strings.HasPrefix(id, p) {
			return true
		}
	}
	return false
}

// NormalizeMRI returns the canonical MRI for a raw object ID.
// Identifiers without a recognised prefix are assumed to be directory accounts.
// Applying it twice yields the same value.
func NormalizeMRI(raw string) string {
	id := strings.TrimSpace(raw)
	if HasMRIPrefix(id) {
		return id
	}
	return MRIPrefixOrgID + id
}

// SplitMRI separates a canonical MRI into its routing prefix and bare ID.
// Values without a recognised prefix are returned as the ID with an empty prefix.
func SplitMRI(mri string) (prefix, id string) {
	for _, p := range mriPrefixes {
		if strings.HasPrefix(mri, p) {
			return p, strings.TrimPrefix(mri, p)
		}
	}
	return "", mri
}

// ValidateIdentifier checks that a raw GUID or MRI can be looked up.
func ValidateIdentifier(raw string) error {
	id := strings.TrimSpace(raw)
	if id == "" {
		return fmt.Errorf("%w: empty identifier", ErrMalformedIdentifier)
	}
	if _, bare := SplitMRI(NormalizeMRI(id)); strings.TrimSpace(bare) == "" {
		return fmt.Errorf("%w: %q has no object id", ErrMalformedIdentifier, raw)
	}
	if strings.ContainsAny(id, " \t\r\n") {
		return fmt.Errorf("%w: %q contains whitespace", ErrMalformedIdentifier, raw)
	}
	return nil
}
