package ooo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripMarkup_Table(t *testing.T) {
	tests := []struct {
		name string
		in   string
		out  string
	}{
		{name: "empty", in: "", out: ""},
		{name: "plain text", in: "Out of office", out: "Out of office"},
		{name: "block tags become newlines", in: "Hello<br>World<p>Bye</p>", out: "Hello\nWorld\nBye"},
		{name: "case insensitive self closing", in: "a<BR/>b<Div >c", out: "a\nb\nc"},
		{name: "inline tags dropped", in: `<span style="x">Away</span> <b>now</b>`, out: "Away now"},
		{name: "entities unescaped", in: "Tom &amp; Jerry &lt;3", out: "Tom & Jerry <3"},
		{name: "escaped tags are removed after unescape", in: "&lt;b&gt;bold&lt;/b&gt;", out: "bold"},
		{name: "newline runs collapse", in: "a\n\n\nb<br><br>c", out: "a\nb\nc"},
		{name: "trimmed", in: "<p>  hi  </p>", out: "hi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.out, StripMarkup(tt.in))
		})
	}
}

func TestSanitize_Table(t *testing.T) {
	tests := []struct {
		name string
		in   string
		out  string
	}{
		{name: "empty", in: "", out: ""},
		{name: "ascii kept", in: "Back on 2024-05-01, call +47 (0) 123/456: ok!", out: "Back on 2024-05-01, call +47 (0) 123/456: ok!"},
		{name: "nordic letters kept", in: "Hilsen Åse Ørjan Æbelø", out: "Hilsen Åse Ørjan Æbelø"},
		{name: "decomposed a ring composed and kept", in: "A\u030Ase", out: "\u00C5se"},
		{name: "other accents removed", in: "café über", out: "caf ber"},
		{name: "symbols removed", in: "50% off $5 ~ ^ <tag> [x] {y} ;", out: "50 off 5   tag x y "},
		{name: "quotes kept", in: `it's "fine"`, out: `it's "fine"`},
		{name: "emoji removed", in: "sun ☀️ fun", out: "sun  fun"},
		{name: "newlines and tabs kept", in: "a\nb\tc", out: "a\nb\tc"},
		{name: "invalid utf8 dropped", in: string([]byte{'o', 0xff, 'k'}), out: "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, truncated := Sanitize(tt.in, MaxLength)
			assert.Equal(t, tt.out, out)
			assert.False(t, truncated)
		})
	}
}

func TestSanitize_Truncation(t *testing.T) {
	out, truncated := Sanitize(strings.Repeat("a", 1500), MaxLength)
	assert.True(t, truncated)
	assert.Len(t, out, MaxLength)

	out, truncated = Sanitize(strings.Repeat("a", MaxLength), MaxLength)
	assert.False(t, truncated)
	assert.Len(t, out, MaxLength)

	// limit counts runes, not bytes
	out, truncated = Sanitize(strings.Repeat("ø", 5), 3)
	assert.True(t, truncated)
	assert.Equal(t, "øøø", out)

	out, truncated = Sanitize("abc", -1)
	assert.True(t, truncated)
	assert.Empty(t, out)
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", Fingerprint(""))
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", Fingerprint("hello"))
	assert.NotEqual(t, Fingerprint("a"), Fingerprint("b"))
}

func TestProcess(t *testing.T) {
	raw := "<p>I am away &amp; back Monday.</p><div>Kind regards ☺</div>"

	msg := Process(raw)

	assert.Equal(t, raw, msg.Raw)
	assert.Equal(t, "I am away & back Monday.\nKind regards ☺", msg.Cleaned)
	assert.Equal(t, "I am away & back Monday.\nKind regards ", msg.Sanitized)
	assert.Equal(t, Fingerprint(raw), msg.ContentHash)
	assert.Equal(t, len([]rune(raw)), msg.Length)
	assert.False(t, msg.Truncated)
}

func TestProcess_SameRawSameHash(t *testing.T) {
	a := Process("<b>Away</b>")
	b := Process("<b>Away</b>")
	c := Process("<i>Away</i>")

	assert.Equal(t, a.ContentHash, b.ContentHash)
	// hashing the raw note keeps markup-only edits distinct
	assert.NotEqual(t, a.ContentHash, c.ContentHash)
	assert.Equal(t, a.Sanitized, c.Sanitized)
}

func TestProcess_LongNoteTruncated(t *testing.T) {
	msg := Process("<p>" + strings.Repeat("x", 1200) + "</p>")

	assert.True(t, msg.Truncated)
	assert.Len(t, []rune(msg.Sanitized), MaxLength)
	assert.Equal(t, 1207, msg.Length)
}
