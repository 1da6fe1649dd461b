// Package availability supplies bookable doctor slots.
package availability

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wolfman30/booking-assistant/internal/backend"
	"github.com/wolfman30/booking-assistant/internal/booking"
)

// Provider returns a snapshot of bookable slots. Snapshots may be stale.
type Provider interface {
	Slots(ctx context.Context) ([]booking.Slot, error)
}

// DefaultSlots seeds a provider when no slot file is configured.
func DefaultSlots() []booking.Slot {
	return []booking.Slot{
		{Doctor: "Dr. Smith", Department: "General Medicine", Date: "2026-01-08", Time: "10:00 AM"},
		{Doctor: "Dr. Jones", Department: "General Medicine", Date: "2026-01-08", Time: "2:00 PM"},
	}
}

// StaticProvider serves a fixed slot list.
type StaticProvider struct {
	slots []booking.Slot
}

// NewStaticProvider serves slots, or DefaultSlots when slots is empty.
func NewStaticProvider(slots []booking.Slot) *StaticProvider {
	if len(slots) == 0 {
		slots = DefaultSlots()
	}
	return &StaticProvider{slots: slots}
}

type slotFile struct {
	Slots []booking.Slot `yaml:"slots" json:"slots"`
}

// LoadStaticFile reads a {slots: [...]} document. YAML and JSON both parse.
func LoadStaticFile(path string) (*StaticProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("availability: read %s: %w", path, err)
	}
	var doc slotFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("availability: parse %s: %w", path, err)
	}
	if len(doc.Slots) == 0 {
		return nil, fmt.Errorf("availability: %s lists no slots", path)
	}
	return &StaticProvider{slots: doc.Slots}, nil
}

// Slots returns a copy of the configured slots.
func (p *StaticProvider) Slots(context.Context) ([]booking.Slot, error) {
	out := make([]booking.Slot, len(p.slots))
	copy(out, p.slots)
	return out, nil
}

// HTTPProvider reads slots from the records service.
type HTTPProvider struct {
	client *backend.Client
}

// NewHTTPProvider creates a provider backed by GET /doctors.
func NewHTTPProvider(client *backend.Client) *HTTPProvider {
	if client == nil {
		panic("availability: backend client cannot be nil")
	}
	return &HTTPProvider{client: client}
}

type doctorsResponse struct {
	Slots []struct {
		Doctor     string `json:"doctor"`
		Department string `json:"department"`
		Date       string `json:"date"`
		Day        string `json:"day"`
		Time       string `json:"time"`
	} `json:"slots"`
}

// Slots fetches the current slot list.
func (p *HTTPProvider) Slots(ctx context.Context) ([]booking.Slot, error) {
	var resp doctorsResponse
	if err := p.client.GetJSON(ctx, backend.PathDoctors, &resp); err != nil {
		return nil, fmt.Errorf("availability: fetch doctors: %w", err)
	}
	out := make([]booking.Slot, 0, len(resp.Slots))
	for _, s := range resp.Slots {
		date := s.Date
		if strings.TrimSpace(date) == "" {
			date = s.Day
		}
		out = append(out, booking.Slot{Doctor: s.Doctor, Department: s.Department, Date: date, Time: s.Time})
	}
	return out, nil
}

// Summaries renders one line per slot for the system instruction.
func Summaries(slots []booking.Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		line := s.Label()
		if s.Department != "" {
			line += " (" + s.Department + ")"
		}
		out = append(out, line)
	}
	return out
}
