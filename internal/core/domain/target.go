package domain

import "strings"

// TargetKind identifies how a target is addressed.
type TargetKind int

const (
	// TargetEmail is a target addressed by its email address.
	TargetEmail TargetKind = iota
	// TargetGUID is a target addressed by its directory object ID or MRI.
	TargetGUID
)

// String returns the JSON field name used for this kind of target.
func (k TargetKind) String() string {
	if k == TargetGUID {
		return "guid"
	}
	return "email"
}

// AccountType selects which identity backend is probed.
type AccountType string

const (
	// AccountPersonal probes the consumer (teams.live.com) backend.
	AccountPersonal AccountType = "personal"
	// AccountCorporate probes the organisational (teams.microsoft.com) backend.
	AccountCorporate AccountType = "corporate"
)

// Valid reports whether the account type is one of the supported backends.
func (a AccountType) Valid() bool {
	return a == AccountPersonal || a == AccountCorporate
}

// Target is a single account to enumerate.
type Target struct {
	Identifier  string
	Kind        TargetKind
	AccountType AccountType
}

// NewEmailTarget creates an email target for the given backend.
func NewEmailTarget(email string, accountType AccountType) Target {
	return Target{
		Identifier:  strings.TrimSpace(email),
		Kind:        TargetEmail,
		AccountType: accountType,
	}
}

// NewGUIDTarget creates a target addressed by object ID or MRI.
// GUID lookups always go to the presence backend of the organisational tenant.
func NewGUIDTarget(guid string) Target {
	return Target{
		Identifier:  strings.TrimSpace(guid),
		Kind:        TargetGUID,
		AccountType: AccountCorporate,
	}
}
