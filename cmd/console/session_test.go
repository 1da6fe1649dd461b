package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/booking-assistant/internal/booking"
	"github.com/wolfman30/booking-assistant/internal/dialogue"
	"github.com/wolfman30/booking-assistant/internal/orchestrator"
)

type scriptedBooker struct {
	said   []string
	closed bool
}

func (b *scriptedBooker) CreateSession(_ context.Context, opts orchestrator.SessionOptions) (orchestrator.Snapshot, error) {
	return orchestrator.Snapshot{ID: "s1", Language: opts.Language}, nil
}

func (b *scriptedBooker) SubmitText(_ context.Context, _ string, text string) (orchestrator.Result, error) {
	b.said = append(b.said, text)
	res := orchestrator.Result{Reply: dialogue.Reply{DisplayText: "noted " + text}}
	if text == "confirm" {
		res.Appointment = &booking.Appointment{PatientName: "Anu", DoctorName: "Dr. Smith", TimeSlot: "2026-01-08 10:00 AM"}
	}
	return res, nil
}

func (b *scriptedBooker) CloseSession(context.Context, string) error {
	b.closed = true
	return nil
}

func TestRunReadsUntilQuit(t *testing.T) {
	b := &scriptedBooker{}
	var out bytes.Buffer

	err := run(context.Background(), b, strings.NewReader("hello\n\nconfirm\n/quit\nignored\n"), &out, "ml-IN", "Puck")
	require.NoError(t, err)

	assert.Equal(t, []string{"hello", "confirm"}, b.said)
	assert.True(t, b.closed)
	assert.Contains(t, out.String(), "session s1 (ml-IN)")
	assert.Contains(t, out.String(), "Puck: noted hello")
	assert.Contains(t, out.String(), "[booked Anu with Dr. Smith at 2026-01-08 10:00 AM]")
}

func TestRunClosesOnEOF(t *testing.T) {
	b := &scriptedBooker{}
	require.NoError(t, run(context.Background(), b, strings.NewReader("hi"), &bytes.Buffer{}, "en-US", "Puck"))
	assert.True(t, b.closed)
	assert.Equal(t, []string{"hi"}, b.said)
}
