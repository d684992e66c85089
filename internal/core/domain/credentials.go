package domain

// AuthContext carries what the refresh-token grant needs besides the token itself.
type AuthContext struct {
	ClientID string
	TokenURL string
	Scopes   []string
}

// CredentialSet holds the tokens shared by all probes of a run.
type CredentialSet struct {
	BearerToken  string
	SkypeToken   string
	RefreshToken string
	// TeamsEnrolled is true when the operator's own account holds a Teams licence.
	// It only changes the wording of 403 diagnostics.
	TeamsEnrolled bool
	Auth          AuthContext
}

// CanRefresh reports whether a refresh-token grant can be attempted.
func (c CredentialSet) CanRefresh() bool {
	return c.RefreshToken != ""
}
