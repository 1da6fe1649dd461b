package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
)

// Replacements run in order. Record numbers and Aadhaar ids go first so the
// phone pattern never sees their digit groups.
var scrubbers = []struct {
	re   *regexp.Regexp
	mask string
}{
	{regexp.MustCompile(`(?i)\b(?:MRN|UHID)[\s.:#-]*[A-Z0-9][A-Z0-9-]{3,}\b`), "[RECORD]"},
	{regexp.MustCompile(`\b[2-9][0-9]{3}[\s-][0-9]{4}[\s-][0-9]{4}\b`), "[ID]"},
	{regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), "[EMAIL]"},
	{regexp.MustCompile(`\+?\(?[0-9]{2,4}\)?[-.\s]?[0-9]{3,5}[-.\s]?[0-9]{4,5}`), "[PHONE]"},
}

// HashID returns the hex SHA-256 of a session id for the archive manifest.
func HashID(id string) string {
	h := sha256.Sum256([]byte(id))
	return hex.EncodeToString(h[:])
}

// ScrubPII masks hospital record numbers, Aadhaar ids, emails and phone
// numbers. Patient names and symptoms stay; the bucket is access-controlled.
func ScrubPII(text string) string {
	for _, s := range scrubbers {
		text = s.re.ReplaceAllString(text, s.mask)
	}
	return text
}

// ScrubMessages scrubs every message in place.
func ScrubMessages(msgs []Message) {
	for i := range msgs {
		msgs[i].Content = ScrubPII(msgs[i].Content)
	}
}
