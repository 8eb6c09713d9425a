package api

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
		ok     bool
	}{
		{"with scheme", "Bearer abc.def.ghi", "abc.def.ghi", true},
		{"bare token", "abc.def.ghi", "abc.def.ghi", true},
		{"missing", "", "", false},
		{"scheme only", "Bearer ", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, ok := bearerToken(r)
			if got != tt.want || ok != tt.ok {
				t.Errorf("bearerToken() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.9:54321"
	if got := clientIP(r); got != "10.0.0.9" {
		t.Errorf("clientIP = %q, want 10.0.0.9", got)
	}

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientIP(r); got != "203.0.113.7" {
		t.Errorf("forwarded clientIP = %q, want 203.0.113.7", got)
	}
}

func TestTicketStoreExpiry(t *testing.T) {
	store := newTicketStore()
	id := store.issue("usr-11111111")

	// Force the ticket past its deadline.
	store.mu.Lock()
	ticket := store.tickets[id]
	ticket.expires = time.Now().Add(-time.Second)
	store.tickets[id] = ticket
	store.mu.Unlock()

	if _, ok := store.redeem(id); ok {
		t.Error("expired ticket redeemed")
	}
}
