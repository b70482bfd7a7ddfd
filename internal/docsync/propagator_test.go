package docsync

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"checkinbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestPropagate_Success(t *testing.T) {
	var gotPath string
	var gotDoc map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotDoc)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewPropagator(PropagatorConfig{
		Docs:   NewHTTPDocumentStore(HTTPDocumentStoreConfig{BaseURL: srv.URL}),
		Logger: testLogger(),
	})

	ok := p.Propagate(context.Background(), domain.Contact{
		ID:                 1,
		Name:               "Alice",
		Phone:              "050-1111111",
		LastDeliveryStatus: "sent",
		LastReplyBody:      "fine",
	})
	if !ok {
		t.Fatal("expected propagation to succeed")
	}
	if gotPath != "/documents/contact-972501111111" {
		t.Errorf("unexpected document path: %s", gotPath)
	}
	if gotDoc["last_reply_body"] != "fine" {
		t.Errorf("unexpected document: %v", gotDoc)
	}
}

func TestPropagate_FailureSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewPropagator(PropagatorConfig{
		Docs:   NewHTTPDocumentStore(HTTPDocumentStoreConfig{BaseURL: srv.URL}),
		Logger: testLogger(),
	})

	if p.Propagate(context.Background(), domain.Contact{ID: 1, Phone: "050-1111111"}) {
		t.Error("expected propagation to report failure")
	}
}

func TestDocumentKey_PhonePreferred(t *testing.T) {
	key := DocumentKey(domain.Contact{Name: "Alice", Phone: "whatsapp:+972501111111"})
	if key != "contact-972501111111" {
		t.Errorf("expected phone-derived key, got %s", key)
	}
}

func TestDocumentKey_NameFallback(t *testing.T) {
	key := DocumentKey(domain.Contact{Name: "Alice Cohen"})
	if key != "contact-alice-cohen" {
		t.Errorf("expected name-derived key, got %s", key)
	}
}

func TestDocumentKey_RandomFallback(t *testing.T) {
	key := DocumentKey(domain.Contact{})
	if !strings.HasPrefix(key, "contact-") || len(key) != len("contact-")+8 {
		t.Errorf("expected random-suffixed key, got %s", key)
	}
}
