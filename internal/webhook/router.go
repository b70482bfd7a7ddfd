// Package webhook exposes the single inbound POST entry point. Every request
// is classified once into a typed variant (reply, trigger, unrecognized) and
// always answered with HTTP 200: the upstream caller treats anything else as
// a delivery failure and retries, which would duplicate side effects.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"checkinbot/internal/domain"
	"checkinbot/internal/metrics"
)

// Correlator is the reply-handling side of the router.
type Correlator interface {
	Correlate(ctx context.Context, reply domain.InboundReply) bool
}

// RouterConfig configures the webhook router. RunPass and RebuildIndex are
// injected so the router stays decoupled from the dispatcher wiring.
type RouterConfig struct {
	Host         string
	Port         int
	Path         string // webhook URL path (default: /webhook)
	Secret       string // HMAC secret for verifying webhook signatures
	Correlator   Correlator
	RunPass      func(ctx context.Context)
	RebuildIndex func(ctx context.Context) error
	AutoRebuild  bool // rebuild the reply index before a triggered pass
	Metrics      http.Handler
	MetricsPath  string
	Logger       *slog.Logger
}

// Router accepts webhook traffic and dispatches by payload shape.
type Router struct {
	cfg    RouterConfig
	logger *slog.Logger
	server *http.Server
}

func NewRouter(cfg RouterConfig) *Router {
	if cfg.Path == "" {
		cfg.Path = "/webhook"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	return &Router{cfg: cfg, logger: cfg.Logger}
}

// Handler returns the router's HTTP handler (exposed for tests and for
// mounting on an existing mux).
func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(rt.cfg.Path, requireMethod(http.MethodPost, rt.handleWebhook))
	if rt.cfg.Metrics != nil {
		path := rt.cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle(path, requireMethod(http.MethodGet, rt.cfg.Metrics.ServeHTTP))
	}
	return mux
}

// requireMethod scopes a handler to one HTTP method, matching the behavior of
// Go 1.22+ method-prefixed ServeMux patterns on toolchains that predate them.
func requireMethod(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			rw.Header().Set("Allow", method)
			http.Error(rw, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		next(rw, r)
	}
}

// Start runs the webhook HTTP server until ctx is cancelled.
func (rt *Router) Start(ctx context.Context) error {
	rt.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", rt.cfg.Host, rt.cfg.Port),
		Handler:           rt.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	rt.logger.Info("webhook server starting", "addr", rt.server.Addr, "path", rt.cfg.Path)

	errCh := make(chan error, 1)
	go func() {
		if err := rt.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		rt.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return rt.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("webhook server: %w", err)
	}
}

// handleWebhook never lets an internal error reach the caller: any panic or
// failure terminates in a log line and the same 200 acknowledgment.
func (rt *Router) handleWebhook(rw http.ResponseWriter, r *http.Request) {
	acked := false
	ack := func() {
		if !acked {
			acked = true
			rw.WriteHeader(http.StatusOK)
			fmt.Fprint(rw, "ok")
		}
	}
	defer func() {
		if rec := recover(); rec != nil {
			rt.logger.Error("webhook handler panic", "panic", rec)
		}
		ack()
	}()

	metrics.WebhookRequests.Inc()

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB max
	if err != nil {
		rt.logger.Warn("webhook body read failed", "err", err)
		return
	}
	defer r.Body.Close()

	// A bad signature is logged and treated as unrecognized; the ack still
	// goes out so the caller does not retry.
	if rt.cfg.Secret != "" {
		sig := r.Header.Get("X-Signature-256")
		if !verifyHMAC(body, rt.cfg.Secret, sig) {
			rt.logger.Warn("webhook signature mismatch", "remote", r.RemoteAddr)
			return
		}
	}

	req := classify(r.Header.Get("Content-Type"), body)
	switch req.kind {
	case kindReply:
		rt.logger.Info("reply received", "from", req.reply.From, "body_len", len(req.reply.Body))
		if rt.cfg.Correlator != nil {
			rt.cfg.Correlator.Correlate(r.Context(), req.reply)
		}
	case kindTrigger:
		rt.logger.Info("outbound pass triggered via webhook")
		rt.startPass()
	default:
		rt.logger.Info("unrecognized webhook payload", "bytes", len(body))
	}
}

// startPass runs the (optionally index-rebuilding) pass on its own goroutine
// so the webhook response stays fast; a paced pass can take minutes.
func (rt *Router) startPass() {
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				rt.logger.Error("triggered pass panic", "panic", rec)
			}
		}()
		ctx := context.Background()
		if rt.cfg.AutoRebuild && rt.cfg.RebuildIndex != nil {
			if err := rt.cfg.RebuildIndex(ctx); err != nil {
				rt.logger.Error("pre-pass index rebuild failed", "err", err)
			}
		}
		if rt.cfg.RunPass != nil {
			rt.cfg.RunPass(ctx)
		}
	}()
}

type requestKind int

const (
	kindUnrecognized requestKind = iota
	kindReply
	kindTrigger
)

type classified struct {
	kind  requestKind
	reply domain.InboundReply
}

// classify inspects the payload shape exactly once. Accepts both
// form-encoded (Twilio-style From/Body) and JSON payloads.
func classify(contentType string, body []byte) classified {
	fields := flatten(contentType, body)

	if isTruthy(pick(fields, "trigger", "run", "start")) {
		return classified{kind: kindTrigger}
	}

	from := pick(fields, "From", "from", "sender")
	text := pick(fields, "Body", "body", "message")
	if from != "" && text != "" {
		return classified{
			kind: kindReply,
			reply: domain.InboundReply{
				From:       from,
				Body:       text,
				ReceivedAt: time.Now(),
			},
		}
	}

	return classified{kind: kindUnrecognized}
}

// flatten parses the payload into a flat string map regardless of encoding.
func flatten(contentType string, body []byte) map[string]string {
	fields := make(map[string]string)

	if strings.Contains(contentType, "application/json") {
		var raw map[string]any
		if err := json.Unmarshal(body, &raw); err != nil {
			return fields
		}
		for k, v := range raw {
			switch val := v.(type) {
			case string:
				fields[k] = val
			case bool:
				fields[k] = fmt.Sprintf("%t", val)
			case float64:
				fields[k] = strings.TrimSuffix(fmt.Sprintf("%v", val), ".0")
			}
		}
		return fields
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return fields
	}
	for k := range values {
		fields[k] = values.Get(k)
	}
	return fields
}

func pick(fields map[string]string, names ...string) string {
	for _, name := range names {
		if v := fields[name]; v != "" {
			return v
		}
	}
	return ""
}

func isTruthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// verifyHMAC verifies the HMAC-SHA256 signature of the body.
func verifyHMAC(body []byte, secret, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
