package email

import (
	"net/smtp"
	"strings"
	"testing"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{name: "empty config", config: Config{}, expected: false},
		{name: "missing host", config: Config{Port: "587", From: "portal@example.com"}, expected: false},
		{name: "missing port", config: Config{Host: "smtp.example.com", From: "portal@example.com"}, expected: false},
		{name: "missing from", config: Config{Host: "smtp.example.com", Port: "587"}, expected: false},
		{name: "fully configured", config: Config{Host: "smtp.example.com", Port: "587", From: "portal@example.com"}, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestSendRequiresConfiguration(t *testing.T) {
	svc := NewService(Config{})
	if err := svc.SendEmail([]string{"a@example.com"}, "s", "b"); err == nil {
		t.Fatal("expected error from unconfigured service")
	}
	if err := svc.SendDMAXReminder("a@example.com", "A", "May", 2024); err == nil {
		t.Fatal("expected error from unconfigured service")
	}
}

func TestRenderReminderTemplate(t *testing.T) {
	html, err := renderTemplate(reminderEmailTemplate, ReminderData{
		AppName:  "Compliance Portal",
		UserName: "Rahul Varma",
		Month:    "May",
		Year:     2024,
	})
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}
	for _, want := range []string{"Compliance Portal", "Rahul Varma", "May 2024"} {
		if !strings.Contains(html, want) {
			t.Errorf("template should contain %q", want)
		}
	}
}

func TestSendDMAXReminderMessage(t *testing.T) {
	svc := NewService(Config{Host: "smtp.example.com", Port: "25", From: "portal@example.com", FromName: "Compliance Portal"})
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	svc.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	if err := svc.SendDMAXReminder("rahul.v@desicrew.in", "Rahul Varma", "May", 2024); err != nil {
		t.Fatalf("SendDMAXReminder failed: %v", err)
	}
	if gotAddr != "smtp.example.com:25" || gotFrom != "portal@example.com" {
		t.Fatalf("unexpected envelope %s %s", gotAddr, gotFrom)
	}
	if len(gotTo) != 1 || gotTo[0] != "rahul.v@desicrew.in" {
		t.Fatalf("unexpected recipients %v", gotTo)
	}
	msg := string(gotMsg)
	for _, want := range []string{
		"From: Compliance Portal <portal@example.com>",
		"Subject: Reminder: DMAX report for May 2024 is pending",
		"Content-Type: text/plain",
		"Content-Type: text/html",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}
