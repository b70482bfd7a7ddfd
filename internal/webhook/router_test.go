package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"
	"time"

	"checkinbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeCorrelator struct {
	replies []domain.InboundReply
	panics  bool
}

func (c *fakeCorrelator) Correlate(ctx context.Context, reply domain.InboundReply) bool {
	if c.panics {
		panic("correlator exploded")
	}
	c.replies = append(c.replies, reply)
	return true
}

func post(t *testing.T, rt *Router, contentType, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/webhook", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", contentType)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rr := httptest.NewRecorder()
	rt.Handler().ServeHTTP(rr, req)
	return rr
}

func TestRouter_ReplyShapedForm(t *testing.T) {
	corr := &fakeCorrelator{}
	rt := NewRouter(RouterConfig{Correlator: corr, Logger: testLogger()})

	form := url.Values{"From": {"whatsapp:+972501111111"}, "Body": {"fine"}}
	rr := post(t, rt, "application/x-www-form-urlencoded", form.Encode(), nil)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
	if len(corr.replies) != 1 {
		t.Fatalf("expected 1 correlated reply, got %d", len(corr.replies))
	}
	if corr.replies[0].From != "whatsapp:+972501111111" || corr.replies[0].Body != "fine" {
		t.Errorf("unexpected reply: %+v", corr.replies[0])
	}
}

func TestRouter_ReplyShapedJSON(t *testing.T) {
	corr := &fakeCorrelator{}
	rt := NewRouter(RouterConfig{Correlator: corr, Logger: testLogger()})

	rr := post(t, rt, "application/json", `{"from":"0501111111","body":"ok"}`, nil)
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
	if len(corr.replies) != 1 {
		t.Errorf("expected JSON reply to be correlated, got %d", len(corr.replies))
	}
}

func TestRouter_TriggerShaped(t *testing.T) {
	ran := make(chan struct{})
	rebuilt := make(chan struct{})
	rt := NewRouter(RouterConfig{
		AutoRebuild:  true,
		RebuildIndex: func(ctx context.Context) error { close(rebuilt); return nil },
		RunPass:      func(ctx context.Context) { close(ran) },
		Logger:       testLogger(),
	})

	rr := post(t, rt, "application/json", `{"trigger":true}`, nil)
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
	select {
	case <-rebuilt:
	case <-time.After(2 * time.Second):
		t.Fatal("auto-rebuild never ran")
	}
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("pass never ran")
	}
}

func TestRouter_TriggerWithoutAutoRebuild(t *testing.T) {
	ran := make(chan struct{})
	rt := NewRouter(RouterConfig{
		AutoRebuild:  false,
		RebuildIndex: func(ctx context.Context) error { t.Error("rebuild must not run"); return nil },
		RunPass:      func(ctx context.Context) { close(ran) },
		Logger:       testLogger(),
	})

	post(t, rt, "application/x-www-form-urlencoded", "trigger=1", nil)
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("pass never ran")
	}
}

func TestRouter_UnrecognizedStillAcked(t *testing.T) {
	corr := &fakeCorrelator{}
	rt := NewRouter(RouterConfig{Correlator: corr, Logger: testLogger()})

	for _, body := range []string{`{"unexpected":"shape"}`, "not json at all", ""} {
		rr := post(t, rt, "application/json", body, nil)
		if rr.Code != http.StatusOK {
			t.Errorf("payload %q: expected 200, got %d", body, rr.Code)
		}
	}
	if len(corr.replies) != 0 {
		t.Error("unrecognized payloads must cause no side effects")
	}
}

func TestRouter_PanickingHandlerStillAcked(t *testing.T) {
	rt := NewRouter(RouterConfig{Correlator: &fakeCorrelator{panics: true}, Logger: testLogger()})

	form := url.Values{"From": {"0501111111"}, "Body": {"boom"}}
	rr := post(t, rt, "application/x-www-form-urlencoded", form.Encode(), nil)
	if rr.Code != http.StatusOK {
		t.Errorf("panicking handler must still be acked with 200, got %d", rr.Code)
	}
}

func TestRouter_BadSignatureAckedWithoutSideEffects(t *testing.T) {
	corr := &fakeCorrelator{}
	rt := NewRouter(RouterConfig{Secret: "s3cret", Correlator: corr, Logger: testLogger()})

	form := url.Values{"From": {"0501111111"}, "Body": {"hi"}}
	header := http.Header{"X-Signature-256": {"sha256=bogus"}}
	rr := post(t, rt, "application/x-www-form-urlencoded", form.Encode(), header)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200 even on bad signature, got %d", rr.Code)
	}
	if len(corr.replies) != 0 {
		t.Error("bad signature must not reach the correlator")
	}
}

func TestRouter_GoodSignatureAccepted(t *testing.T) {
	corr := &fakeCorrelator{}
	rt := NewRouter(RouterConfig{Secret: "s3cret", Correlator: corr, Logger: testLogger()})

	body := url.Values{"From": {"0501111111"}, "Body": {"hi"}}.Encode()
	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write([]byte(body))
	sig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	header := http.Header{"X-Signature-256": {sig}}
	rr := post(t, rt, "application/x-www-form-urlencoded", body, header)
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
	if len(corr.replies) != 1 {
		t.Error("valid signature should reach the correlator")
	}
}

func TestVerifyHMAC(t *testing.T) {
	body := []byte("payload")
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write(body)
	sig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	if !verifyHMAC(body, "secret", sig) {
		t.Error("valid HMAC should verify")
	}
	if verifyHMAC(body, "secret", "sha256=invalid") {
		t.Error("invalid HMAC should not verify")
	}
	if verifyHMAC(body, "secret", "") {
		t.Error("empty signature should not verify")
	}
}

func TestClassify_TriggerBeatsReply(t *testing.T) {
	// A payload carrying both shapes is a trigger: the flag is explicit.
	c := classify("application/json", []byte(`{"trigger":"1","from":"x","body":"y"}`))
	if c.kind != kindTrigger {
		t.Errorf("expected trigger classification, got %d", c.kind)
	}
}

func TestClassify_ReplyNeedsBothFields(t *testing.T) {
	c := classify("application/x-www-form-urlencoded", []byte("From=0501111111"))
	if c.kind != kindUnrecognized {
		t.Error("sender without body is not reply-shaped")
	}
	c = classify("application/x-www-form-urlencoded", []byte("Body=hello"))
	if c.kind != kindUnrecognized {
		t.Error("body without sender is not reply-shaped")
	}
}
