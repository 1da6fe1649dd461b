package booking

import (
	"fmt"
	"html"
	"strings"
	"time"
)

// FormatAppointmentSummary generates a plain-text summary for the booking desk.
func FormatAppointmentSummary(appt Appointment) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Patient: %s\n", valueOrNA(appt.PatientName)))
	b.WriteString(fmt.Sprintf("Department: %s\n", valueOrNA(appt.Department)))
	b.WriteString(fmt.Sprintf("Doctor: %s\n", valueOrNA(appt.DoctorName)))
	b.WriteString(fmt.Sprintf("Time Slot: %s\n", valueOrNA(appt.TimeSlot)))
	b.WriteString(fmt.Sprintf("Symptoms: %s\n", valueOrNA(appt.Symptoms)))
	if appt.Sentiment != "" {
		b.WriteString(fmt.Sprintf("Sentiment: %s (%.2f)\n", appt.Sentiment, appt.Confidence))
	}
	b.WriteString(fmt.Sprintf("Booked: %s\n", appt.CreatedAt.Format(time.RFC1123)))

	return b.String()
}

// FormatAppointmentSummaryHTML generates an HTML summary for email.
func FormatAppointmentSummaryHTML(appt Appointment) string {
	var sentimentRow string
	if appt.Sentiment != "" {
		sentimentRow = row("Sentiment", fmt.Sprintf("%s (%.2f)", appt.Sentiment, appt.Confidence))
	}

	return fmt.Sprintf(`<div style="font-family:sans-serif;max-width:600px;">
<h2 style="color:#333;">New Appointment</h2>
<table style="border-collapse:collapse;width:100%%;">
%s
%s
%s
%s
%s
%s
%s
</table>
<p style="color:#666;font-size:12px;">Booked by the %s assistant.</p>
</div>`,
		row("Patient", valueOrNA(appt.PatientName)),
		row("Department", valueOrNA(appt.Department)),
		row("Doctor", valueOrNA(appt.DoctorName)),
		row("Time Slot", valueOrNA(appt.TimeSlot)),
		row("Symptoms", valueOrNA(appt.Symptoms)),
		sentimentRow,
		row("Booked", appt.CreatedAt.Format(time.RFC1123)),
		html.EscapeString(valueOrNA(appt.Source)),
	)
}

func row(label, value string) string {
	return fmt.Sprintf(`<tr><td style="padding:6px 12px;font-weight:bold;">%s</td><td style="padding:6px 12px;">%s</td></tr>`,
		label, html.EscapeString(value))
}

func valueOrNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
