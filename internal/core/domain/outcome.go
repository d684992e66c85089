package domain

import "encoding/json"

// ProbeOutcome is the normalised result of searching for one target.
type ProbeOutcome struct {
	Target Target
	Exists bool
	// Info is the structured search result, or a JSON string with a diagnostic.
	Info        json.RawMessage
	DisplayName string
	// MRI is the canonical identifier of the first matching profile, if any.
	MRI string
	// UserInfoPayload is the raw directory body worth persisting as user info.
	UserInfoPayload string
	Presence        *PresenceRecord
	// Err classifies a per-target failure. It never carries ErrFatalAuth.
	Err error
}

// SetDiagnostic stores a human readable message as the outcome's info.
func (o *ProbeOutcome) SetDiagnostic(msg string) {
	o.Info = DiagnosticInfo(msg)
}

// Diagnostic returns the info as a string when it holds a diagnostic message.
func (o *ProbeOutcome) Diagnostic() string {
	var msg string
	if err := json.Unmarshal(o.Info, &msg); err != nil {
		return ""
	}
	return msg
}

// DiagnosticInfo encodes a message as a JSON string.
func DiagnosticInfo(msg string) json.RawMessage {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil
	}
	return b
}

// ResultRecord is one line of the JSONL output.
type ResultRecord struct {
	Email    string          `json:"email,omitempty"`
	GUID     string          `json:"guid,omitempty"`
	Exists   *bool           `json:"exists,omitempty"`
	Info     json.RawMessage `json:"info,omitempty"`
	Presence json.RawMessage `json:"presence,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Record converts the outcome into its output line.
func (o *ProbeOutcome) Record() ResultRecord {
	rec := ResultRecord{Info: o.Info}
	if o.Target.Kind == TargetGUID {
		rec.GUID = o.Target.Identifier
	} else {
		exists := o.Exists
		rec.Email = o.Target.Identifier
		rec.Exists = &exists
	}
	if o.Presence != nil {
		rec.Presence = o.Presence.Raw
	}
	if o.Err != nil {
		rec.Error = o.Err.Error()
	}
	return rec
}
