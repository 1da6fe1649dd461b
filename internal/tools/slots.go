package tools

import (
	"strings"

	"github.com/wolfman30/booking-assistant/internal/booking"
)

// FilterByDepartment keeps slots whose department contains the requested one
// or is contained by it, ignoring case. With no match (or no department) the
// full list comes back.
func FilterByDepartment(slots []booking.Slot, department string) []booking.Slot {
	want := strings.ToLower(strings.TrimSpace(department))
	if want == "" {
		return slots
	}
	var matched []booking.Slot
	for _, s := range slots {
		have := strings.ToLower(strings.TrimSpace(s.Department))
		if have == "" {
			continue
		}
		if strings.Contains(have, want) || strings.Contains(want, have) {
			matched = append(matched, s)
		}
	}
	if len(matched) == 0 {
		return slots
	}
	return matched
}

// FormatSlots joins slot labels the way they are read back to the caller.
func FormatSlots(slots []booking.Slot) string {
	if len(slots) == 0 {
		return "None"
	}
	labels := make([]string, 0, len(slots))
	for _, s := range slots {
		labels = append(labels, s.Label())
	}
	return strings.Join(labels, ", or ")
}

// AvailabilityResult is the tool result handed back to the model.
func AvailabilityResult(slots []booking.Slot, language string) string {
	return "Found slots: " + FormatSlots(slots) + ". Ask user to pick one. Reply in " + booking.LanguageName(language) + "."
}
