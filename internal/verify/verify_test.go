package verify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSubmitAccepted(t *testing.T) {
	var got submitRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/verifications" {
			t.Errorf("path = %s, want /verifications", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer hunter2" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(Result{Accepted: true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "hunter2", time.Second)
	res, err := c.Submit(context.Background(), "CALL-1", "pin", "1234")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.Accepted {
		t.Error("expected accepted result")
	}
	if got.SessionID != "CALL-1" || got.Method != "pin" || got.Value != "1234" {
		t.Errorf("request body = %+v", got)
	}
}

func TestSubmitRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Result{Accepted: false, Reason: "mismatch"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	res, err := c.Submit(context.Background(), "CALL-1", "pin", "0000")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Accepted {
		t.Error("expected rejection")
	}
	if res.Reason != "mismatch" {
		t.Errorf("reason = %q, want mismatch", res.Reason)
	}
}

func TestSubmitServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	if _, err := c.Submit(context.Background(), "CALL-1", "pin", "1234"); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestSubmitTimeoutIsRejection(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := NewClient(srv.URL, "", 50*time.Millisecond)
	res, err := c.Submit(context.Background(), "CALL-1", "pin", "1234")
	if err != nil {
		t.Fatalf("timeout should not surface as an error, got %v", err)
	}
	if res.Accepted {
		t.Error("expected rejection on timeout")
	}
	if res.Reason != "timeout" {
		t.Errorf("reason = %q, want timeout", res.Reason)
	}
}

func TestNewClientDefaultTimeout(t *testing.T) {
	c := NewClient("http://localhost", "", 0)
	if c.timeout != defaultTimeout {
		t.Errorf("timeout = %v, want %v", c.timeout, defaultTimeout)
	}
}
