// Package docsync mirrors contact updates into an external JSON document
// store. The push is best-effort: the primary roster write has already
// succeeded by the time a propagation runs, so failures here are logged and
// counted, never surfaced to the caller.
package docsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"checkinbot/internal/domain"
	"checkinbot/internal/metrics"
	"checkinbot/internal/phone"

	"github.com/google/uuid"
)

// HTTPDocumentStore implements domain.DocumentStore against a REST document
// store: PUT {base}/documents/{key} with a JSON body, last write wins.
type HTTPDocumentStore struct {
	baseURL   string
	authToken string
	client    *http.Client
}

type HTTPDocumentStoreConfig struct {
	BaseURL   string
	AuthToken string
}

func NewHTTPDocumentStore(cfg HTTPDocumentStoreConfig) *HTTPDocumentStore {
	return &HTTPDocumentStore{
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		authToken: cfg.AuthToken,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *HTTPDocumentStore) Put(ctx context.Context, key string, doc map[string]any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	url := s.baseURL + "/documents/" + key
	req, err := http.NewRequestWithContext(ctx, "PUT", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.authToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("put: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("document store %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Propagator pushes a contact's current field values into the document store.
type Propagator struct {
	docs   domain.DocumentStore
	logger *slog.Logger
}

type PropagatorConfig struct {
	Docs   domain.DocumentStore
	Logger *slog.Logger
}

func NewPropagator(cfg PropagatorConfig) *Propagator {
	return &Propagator{docs: cfg.Docs, logger: cfg.Logger}
}

// Propagate is idempotent at the document-store layer: pushing the same
// contact twice with unchanged fields overwrites the document with itself.
func (p *Propagator) Propagate(ctx context.Context, c domain.Contact) bool {
	key := DocumentKey(c)
	doc := map[string]any{
		"name":                 c.Name,
		"phone":                c.Phone,
		"last_delivery_status": c.LastDeliveryStatus,
		"last_reply_body":      c.LastReplyBody,
	}
	if c.LastReplyAt != nil {
		doc["last_reply_at"] = c.LastReplyAt.Format(time.RFC3339)
	}

	if err := p.docs.Put(ctx, key, doc); err != nil {
		p.logger.Warn("document sync failed", "key", key, "contact", c.ID, "err", err)
		metrics.DocSyncFailures.Inc()
		return false
	}
	p.logger.Debug("document synced", "key", key, "contact", c.ID)
	return true
}

// DocumentKey derives a stable document identifier for a contact: the
// normalized phone when present, the name otherwise, and a random suffix as
// the last resort so the document is at least written somewhere visible.
func DocumentKey(c domain.Contact) string {
	if key := phone.Normalize(c.Phone); key != "" {
		return "contact-" + key
	}
	if name := slugify(c.Name); name != "" {
		return "contact-" + name
	}
	return "contact-" + uuid.NewString()[:8]
}

func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
