// Package ooo turns a raw out-of-office note into the text stored for it.
//
// Pipeline order
//  1. HTML entity unescape
//  2. block tags (br, p, div) become newlines, every other tag is dropped
//  3. newline runs collapse to one and the result is trimmed
//  4. fingerprint the raw note (hex MD5), the dedup key in storage
//  5. sanitize the cleaned text to an allow-list and truncate it
package ooo

import (
	"crypto/md5" //nolint:gosec // content fingerprint, not a security boundary
	"encoding/hex"
	"unicode/utf8"

	"github.com/custodia-labs/teamsenum/internal/core/domain"
)

// MaxLength is the rune limit of the stored text.
const MaxLength = 1000

// Fingerprint returns the hex MD5 of the raw note bytes.
func Fingerprint(raw string) string {
	sum := md5.Sum([]byte(raw)) //nolint:gosec // see import
	return hex.EncodeToString(sum[:])
}

// Process runs the whole pipeline on raw.
func Process(raw string) domain.OOOMessage {
	cleaned := StripMarkup(raw)
	sanitized, truncated := Sanitize(cleaned, MaxLength)
	return domain.OOOMessage{
		Raw:         raw,
		Cleaned:     cleaned,
		Sanitized:   sanitized,
		ContentHash: Fingerprint(raw),
		Length:      utf8.RuneCountInString(raw),
		Truncated:   truncated,
	}
}
