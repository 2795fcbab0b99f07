package mail_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wuwenbin0122/otpchat/internal/mail"
	"github.com/wuwenbin0122/otpchat/internal/utils"
)

func TestClientSendOTP(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/emails" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer key-123" {
			t.Errorf("unexpected authorization header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"email-1"}`))
	}))
	defer server.Close()

	client, err := mail.NewClient(utils.MailConfig{
		APIBase: server.URL,
		APIKey:  "key-123",
		From:    "noreply@example.com",
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if err := client.SendOTP(context.Background(), "a@x.com", "Your login code", "4821"); err != nil {
		t.Fatalf("send returned error: %v", err)
	}

	if got["from"] != "noreply@example.com" {
		t.Fatalf("unexpected from %v", got["from"])
	}
	if got["subject"] != "Your login code" {
		t.Fatalf("unexpected subject %v", got["subject"])
	}
	to, ok := got["to"].([]any)
	if !ok || len(to) != 1 || to[0] != "a@x.com" {
		t.Fatalf("unexpected recipients %v", got["to"])
	}
	if text, _ := got["text"].(string); !strings.Contains(text, "4821") {
		t.Fatalf("expected code in text body, got %q", text)
	}
}

func TestClientSendOTPUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"name":"validation_error","message":"invalid from address"}`))
	}))
	defer server.Close()

	client, err := mail.NewClient(utils.MailConfig{APIBase: server.URL, APIKey: "k", From: "bad"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	err = client.SendOTP(context.Background(), "a@x.com", "s", "1")
	if err == nil {
		t.Fatal("expected error from upstream failure")
	}
	if !strings.Contains(err.Error(), "422") || !strings.Contains(err.Error(), "invalid from address") {
		t.Fatalf("expected status and upstream message in error, got %v", err)
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	if _, err := mail.NewClient(utils.MailConfig{From: "a@x.com"}); err == nil {
		t.Fatal("expected error without api key")
	}
	if _, err := mail.NewClient(utils.MailConfig{APIKey: "k"}); err == nil {
		t.Fatal("expected error without sender")
	}
}
