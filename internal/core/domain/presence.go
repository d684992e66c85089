package domain

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultDeviceType is reported when the presence backend omits the device.
const DefaultDeviceType = "Off"

// MaxSessionLength bounds the session label stored with presence rows.
const MaxSessionLength = 8

// DefaultSession is the label used when the caller supplies none.
const DefaultSession = "default"

// TimeBucket places an observation within its day.
type TimeBucket struct {
	// QuarterHour is the 15-minute slot, 0..95.
	QuarterHour int
	// HalfHour is the 30-minute slot, 0..47.
	HalfHour int
}

// BucketForMinute computes the bucket for a minute of the day (0..1439).
func BucketForMinute(minute int) TimeBucket {
	return TimeBucket{
		QuarterHour: minute / 15,
		HalfHour:    minute / 30,
	}
}

// BucketFor computes the bucket for a wall-clock instant.
func BucketFor(t time.Time) TimeBucket {
	return BucketForMinute(t.Hour()*60 + t.Minute())
}

// OOOMessage is an out-of-office note after cleanup.
type OOOMessage struct {
	Raw       string
	Cleaned   string
	Sanitized string
	// ContentHash is the hex MD5 of the raw message bytes. Dedup is keyed on it.
	ContentHash string
	// Length is the rune count of the raw message.
	Length    int
	Truncated bool
}

// PresenceRecord is the decoded presence of one subject at one instant.
type PresenceRecord struct {
	MRI          string
	GUID         string
	Availability string
	DeviceType   string
	// RawOOO is the out-of-office message as returned, empty when none is set.
	RawOOO     string
	OOONote    *OOOMessage
	Raw        json.RawMessage
	ObservedAt time.Time
	Bucket     TimeBucket
}

// OOOEnabled returns 1 when an out-of-office note was present, 0 otherwise.
func (p *PresenceRecord) OOOEnabled() int {
	if p.RawOOO != "" || p.OOONote != nil {
		return 1
	}
	return 0
}

// UnixTime returns the observation time in seconds.
func (p *PresenceRecord) UnixTime() int64 {
	return p.ObservedAt.Unix()
}

// CurrentDate returns the observation date as YYYY-MM-DD.
func (p *PresenceRecord) CurrentDate() string {
	return p.ObservedAt.Format(time.DateOnly)
}

// NormalizeSession trims the label, applies the default and bounds its length.
func NormalizeSession(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return DefaultSession
	}
	if utf8.RuneCountInString(label) <= MaxSessionLength {
		return label
	}
	return string([]rune(label)[:MaxSessionLength])
}
