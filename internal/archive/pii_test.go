package archive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHashID(t *testing.T) {
	h1 := HashID("session-1")
	h2 := HashID("session-1")
	h3 := HashID("session-2")

	assert.Equal(t, h1, h2, "same input should produce same hash")
	assert.NotEqual(t, h1, h3, "different input should produce different hash")
	assert.Len(t, h1, 64, "SHA-256 hex should be 64 chars")
}

func TestScrubPII(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{"email", "contact me at asha@example.com please", "contact me at [EMAIL] please"},
		{"indian mobile", "my number is +91 98470 12345", "my number is [PHONE]"},
		{"us phone", "call 330-333-2654", "call [PHONE]"},
		{"uhid", "my UHID: RH-2024-118 from last visit", "my [RECORD] from last visit"},
		{"mrn lower case", "mrn 55821A", "[RECORD]"},
		{"aadhaar", "aadhaar 2345 6789 0123", "aadhaar [ID]"},
		{"no pii", "I have a fever since Monday", "I have a fever since Monday"},
		{"name kept", "My name is Asha Menon", "My name is Asha Menon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, ScrubPII(tt.input))
		})
	}
}

func TestScrubMessages(t *testing.T) {
	msgs := []Message{
		{Role: "user", Content: "my email is test@test.com", Timestamp: time.Now()},
		{Role: "assistant", Content: "Got it!", Timestamp: time.Now()},
	}
	ScrubMessages(msgs)
	assert.Equal(t, "my email is [EMAIL]", msgs[0].Content)
	assert.Equal(t, "Got it!", msgs[1].Content)
}
