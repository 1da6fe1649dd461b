package notify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

func TestNewSendGridSender_NilWithoutAPIKey(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{FromEmail: "desk@example.com"}, nil)
	if sender != nil {
		t.Error("expected nil sender when API key is empty")
	}
}

func TestNewSendGridSender_Identity(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{APIKey: "test-key", FromEmail: "desk@example.com"}, nil)
	if sender == nil {
		t.Fatal("expected non-nil sender")
	}
	if sender.from.Name != "Booking Desk" {
		t.Errorf("expected default from name 'Booking Desk', got %q", sender.from.Name)
	}
	if sender.replyTo.Address != "desk@example.com" {
		t.Errorf("expected reply-to to default to the sender, got %q", sender.replyTo.Address)
	}

	custom := NewSendGridSender(SendGridConfig{
		APIKey:    "test-key",
		FromEmail: "noreply@example.com",
		FromName:  "Rajagiri Front Desk",
		ReplyTo:   "frontdesk@example.com",
	}, nil)
	if custom.from.Name != "Rajagiri Front Desk" || custom.replyTo.Address != "frontdesk@example.com" {
		t.Errorf("unexpected identity: from=%+v reply_to=%+v", custom.from, custom.replyTo)
	}
}

type sgAddress struct {
	Email string `json:"email"`
}

type sgPersonalization struct {
	To         []sgAddress       `json:"to"`
	CustomArgs map[string]string `json:"custom_args"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgPayload struct {
	Subject          string              `json:"subject"`
	Categories       []string            `json:"categories"`
	ReplyTo          sgAddress           `json:"reply_to"`
	Personalizations []sgPersonalization `json:"personalizations"`
	Content          []sgContent         `json:"content"`
}

func decodePayload(t *testing.T, m *mail.SGMailV3) sgPayload {
	t.Helper()
	var p sgPayload
	if err := json.Unmarshal(mail.GetRequestBody(m), &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return p
}

func TestSendGridSender_BuildDeskMessage(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{APIKey: "test-key", FromEmail: "desk@example.com"}, nil)
	p := decodePayload(t, sender.build(EmailMessage{
		To:         "frontdesk@rajagiri.example",
		Subject:    "New appointment",
		Body:       "Patient: Asha",
		HTML:       "<p>Patient: Asha</p>",
		Categories: []string{"appointment-confirmed"},
		Tags:       map[string]string{"appointment_id": "appt-1"},
	}))

	if p.Subject != "New appointment" {
		t.Errorf("subject = %q", p.Subject)
	}
	if len(p.Categories) != 2 || p.Categories[0] != CategoryBookingDesk || p.Categories[1] != "appointment-confirmed" {
		t.Errorf("categories = %v", p.Categories)
	}
	if p.ReplyTo.Email != "desk@example.com" {
		t.Errorf("reply_to = %q", p.ReplyTo.Email)
	}
	if len(p.Personalizations) != 1 || p.Personalizations[0].To[0].Email != "frontdesk@rajagiri.example" {
		t.Fatalf("personalizations = %+v", p.Personalizations)
	}
	if got := p.Personalizations[0].CustomArgs["appointment_id"]; got != "appt-1" {
		t.Errorf("custom arg appointment_id = %q", got)
	}
	if len(p.Content) != 2 || p.Content[0].Type != "text/plain" || p.Content[1].Type != "text/html" {
		t.Errorf("content = %+v", p.Content)
	}
}

func TestSendGridSender_BuildPlainOnly(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{APIKey: "test-key", FromEmail: "desk@example.com"}, nil)
	p := decodePayload(t, sender.build(EmailMessage{To: "frontdesk@rajagiri.example", Subject: "s", Body: "b", Categories: []string{""}}))
	if len(p.Content) != 1 || p.Content[0].Value != "b" {
		t.Errorf("content = %+v", p.Content)
	}
	if len(p.Categories) != 1 {
		t.Errorf("categories = %v", p.Categories)
	}
}

func TestSendGridSender_Send_NilClient(t *testing.T) {
	sender := &SendGridSender{}
	err := sender.Send(context.Background(), EmailMessage{To: "desk@example.com", Subject: "Test", Body: "body"})
	if err == nil {
		t.Error("expected error when client is nil")
	}
}

func TestStubEmailSender_Records(t *testing.T) {
	sender := NewStubEmailSender(nil)
	if err := sender.Send(context.Background(), EmailMessage{To: "desk@example.com", Subject: "Hello"}); err != nil {
		t.Fatalf("stub sender should not return error, got: %v", err)
	}
	sent := sender.Sent()
	if len(sent) != 1 || sent[0].Subject != "Hello" {
		t.Errorf("unexpected recorded messages: %+v", sent)
	}
}
