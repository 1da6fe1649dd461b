package dialogue

import (
	"fmt"
	"strings"
	"time"
)

// PromptParams feeds the booking system instruction.
type PromptParams struct {
	AssistantName string
	HospitalName  string
	Language      string
	Today         time.Time
	// SlotSummary is a pre-rendered, possibly stale list of bookable slots.
	SlotSummary []string
	Tools       []FunctionDecl
}

// BookingInstruction renders the system instruction for a booking session.
func BookingInstruction(p PromptParams) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, a hospital booking assistant for %s.\n", valueOr(p.AssistantName, "Puck"), valueOr(p.HospitalName, "the hospital"))
	fmt.Fprintf(&b, "TODAY IS: %s.\n", p.Today.Format("Monday, Jan 2"))
	fmt.Fprintf(&b, "Always reply in %s.\n\n", valueOr(p.Language, "English"))

	if len(p.SlotSummary) > 0 {
		b.WriteString("KNOWN SLOTS (may be out of date, always check availability before offering a time):\n")
		for _, s := range p.SlotSummary {
			fmt.Fprintf(&b, "- %s\n", s)
		}
		b.WriteString("\n")
	}

	b.WriteString(`STRICT RULES:
1. STEP 1: Ask for Patient Name and Symptoms.
2. STEP 2: Ask for Department.
3. STEP 3: Call 'get_availability' to see slots.
4. STEP 4: READ the available slots to the user (e.g., "Dr Smith at 10 AM").
5. STEP 5: WAIT for the user to pick a specific time.
6. STEP 6: Call 'confirm_appointment' ONLY after the user picks a time.

DO NOT confirm an appointment if the user hasn't selected a time slot.
`)

	if len(p.Tools) > 0 {
		b.WriteString("\nTOOLS:\n")
		for _, t := range p.Tools {
			var required, optional []string
			for _, prm := range t.Params {
				if prm.Required {
					required = append(required, prm.Name)
				} else {
					optional = append(optional, prm.Name)
				}
			}
			fmt.Fprintf(&b, "- %s(%s)", t.Name, strings.Join(required, ", "))
			if len(optional) > 0 {
				fmt.Fprintf(&b, " optional: %s", strings.Join(optional, ", "))
			}
			fmt.Fprintf(&b, ": %s\n", t.Description)
		}
	}

	b.WriteString("\nOutput JSON: { \"text\": \"...\", \"speech\": \"...\" }")
	return b.String()
}

func valueOr(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
