package sms

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewSMSLocalClient_Defaults(t *testing.T) {
	client := NewSMSLocalClient("api-key", "", "")
	if client.BaseURL != "https://app.smslocal.in/api/smsapi" {
		t.Errorf("BaseURL = %q, want default", client.BaseURL)
	}
	if client.HTTPClient == nil || client.HTTPClient.Timeout != defaultTimeout {
		t.Fatalf("HTTPClient timeout not set: %+v", client.HTTPClient)
	}
}

func TestSendOTP_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if r.Header.Get("Authorization") != "test-api-key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("Decode body: %v", err)
		}
		if body["route"] != "otp" || body["numbers"] != "919876543210" || body["variables"] != "123456" {
			t.Errorf("body = %v", body)
		}
		if body["sender_id"] != "PFLYZE" {
			t.Errorf("sender_id = %q", body["sender_id"])
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"success"}`))
	}))
	defer server.Close()

	client := NewSMSLocalClient("test-api-key", server.URL, "PFLYZE")
	if err := client.SendOTP(context.Background(), "+919876543210", "123456"); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
}

func TestSendOTP_NoAPIKey(t *testing.T) {
	client := NewSMSLocalClient("", "http://unused.invalid", "")
	if err := client.SendOTP(context.Background(), "+919876543210", "123456"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("SendOTP without key: want ErrNotConfigured, got %v", err)
	}
}

func TestSendOTP_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid number"}`))
	}))
	defer server.Close()

	err := NewSMSLocalClient("k", server.URL, "").SendOTP(context.Background(), "+911", "123456")
	if err == nil || !strings.Contains(err.Error(), "status=400") {
		t.Fatalf("SendOTP: want status error, got %v", err)
	}
}

func TestSendOTP_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := NewSMSLocalClient("k", server.URL, "").SendOTP(ctx, "+919876543210", "123456"); err == nil {
		t.Fatal("SendOTP should fail when context expires")
	}
}
