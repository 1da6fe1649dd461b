package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/wolfman30/booking-assistant/internal/orchestrator"
)

// booker is the part of the orchestrator the console drives.
type booker interface {
	CreateSession(ctx context.Context, opts orchestrator.SessionOptions) (orchestrator.Snapshot, error)
	SubmitText(ctx context.Context, id, text string) (orchestrator.Result, error)
	CloseSession(ctx context.Context, id string) error
}

// run reads one utterance per line until EOF or "/quit".
func run(ctx context.Context, svc booker, in io.Reader, out io.Writer, language, assistant string) error {
	snap, err := svc.CreateSession(ctx, orchestrator.SessionOptions{Language: language})
	if err != nil {
		return fmt.Errorf("console: create session: %w", err)
	}
	fmt.Fprintf(out, "session %s (%s). Type /quit to end.\n", snap.ID, snap.Language)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "You: ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			break
		}

		res, err := svc.SubmitText(ctx, snap.ID, line)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			fmt.Fprintf(out, "[%v]\n", err)
			continue
		}
		fmt.Fprintf(out, "%s: %s\n", assistant, res.Reply.DisplayText)
		if res.Appointment != nil {
			fmt.Fprintf(out, "[booked %s with %s at %s]\n", res.Appointment.PatientName, res.Appointment.DoctorName, res.Appointment.TimeSlot)
		}
		if ctx.Err() != nil {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("console: read input: %w", err)
	}

	if err := svc.CloseSession(context.WithoutCancel(ctx), snap.ID); err != nil && !errors.Is(err, orchestrator.ErrSessionNotFound) {
		return fmt.Errorf("console: close session: %w", err)
	}
	return nil
}
