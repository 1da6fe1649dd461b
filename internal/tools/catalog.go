// Package tools resolves model tool requests against the availability
// provider and the appointment store.
package tools

import (
	"errors"
	"fmt"

	"github.com/wolfman30/booking-assistant/internal/booking"
	"github.com/wolfman30/booking-assistant/internal/dialogue"
)

// Name is one of the fixed tool names.
type Name string

const (
	NameGetAvailability    Name = "get_availability"
	NameConfirmAppointment Name = "confirm_appointment"
)

var (
	// ErrToolProtocolViolation covers unknown tool names and a tool call where
	// a direct reply was required.
	ErrToolProtocolViolation = errors.New("tools: tool protocol violation")
	// ErrIncompleteBooking is reported when confirm_appointment arrives
	// without every required booking field.
	ErrIncompleteBooking = errors.New("tools: booking is incomplete")
)

// Catalog returns the declarations advertised to the model.
func Catalog() []dialogue.FunctionDecl {
	return []dialogue.FunctionDecl{
		{
			Name:        string(NameGetAvailability),
			Description: "Get the list of available doctor slots for a specific department.",
			Params: []dialogue.Param{
				{Name: "department", Description: "Medical department (e.g. General, Cardiology)", Required: true},
			},
		},
		{
			Name:        string(NameConfirmAppointment),
			Description: "Finalize the booking. REQUIRED: You must have a specific time slot selected by the user before calling this.",
			Params: []dialogue.Param{
				{Name: "patientName", Description: "Name of patient", Required: true},
				{Name: "department", Description: "Department booked", Required: true},
				{Name: "doctorName", Description: "Doctor name"},
				{Name: "symptoms", Description: "Patient symptoms", Required: true},
				{Name: "timeSlot", Description: `The specific time slot selected (e.g. "10:00 AM")`, Required: true},
			},
		},
	}
}

// Call is a decoded tool request. The concrete type is one of
// AvailabilityCall or ConfirmCall.
type Call interface {
	ToolName() Name
}

// AvailabilityCall asks for bookable slots in a department.
type AvailabilityCall struct {
	Department string
}

func (AvailabilityCall) ToolName() Name { return NameGetAvailability }

// ConfirmCall asks to commit a booking.
type ConfirmCall struct {
	Fields booking.Draft
}

func (ConfirmCall) ToolName() Name { return NameConfirmAppointment }

// Decode maps an invocation onto its typed call.
func Decode(inv dialogue.Invocation) (Call, error) {
	switch Name(inv.Name) {
	case NameGetAvailability:
		return AvailabilityCall{Department: inv.Arg("department")}, nil
	case NameConfirmAppointment:
		return ConfirmCall{Fields: booking.Draft{
			PatientName: inv.Arg("patientName"),
			Department:  inv.Arg("department"),
			DoctorName:  inv.Arg("doctorName"),
			Symptoms:    inv.Arg("symptoms"),
			TimeSlot:    inv.Arg("timeSlot"),
		}}, nil
	default:
		return nil, fmt.Errorf("%w: unknown tool %q", ErrToolProtocolViolation, inv.Name)
	}
}
