// Package transport implements the outbound message transport against the
// WhatsApp Business Cloud API.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"checkinbot/internal/config"
	"checkinbot/internal/template"
)

const whatsappAPIBase = "https://graph.facebook.com/v21.0"

// WhatsApp implements domain.Transport for WhatsApp Business Cloud API.
// Template IDs are resolved through the registry and sent as text messages.
type WhatsApp struct {
	cfg       config.WhatsAppConfig
	templates *template.Registry
	logger    *slog.Logger
	client    *http.Client
	apiBase   string
}

type WhatsAppTransportConfig struct {
	Config    config.WhatsAppConfig
	Templates *template.Registry
	Logger    *slog.Logger
}

func NewWhatsApp(cfg WhatsAppTransportConfig) *WhatsApp {
	apiBase := cfg.Config.APIBase
	if apiBase == "" {
		apiBase = whatsappAPIBase
	}
	return &WhatsApp{
		cfg:       cfg.Config,
		templates: cfg.Templates,
		logger:    cfg.Logger,
		client:    &http.Client{Timeout: 30 * time.Second},
		apiBase:   apiBase,
	}
}

// Send delivers one templated message to a phone number and returns the
// provider's message ID as the delivery status.
func (w *WhatsApp) Send(ctx context.Context, phone, templateID string) (string, error) {
	tpl, ok := w.templates.Get(templateID)
	if !ok {
		return "", fmt.Errorf("unknown template: %s", templateID)
	}

	url := fmt.Sprintf("%s/%s/messages", w.apiBase, w.cfg.PhoneNumberID)

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                phone,
		"type":              "text",
		"text":              map[string]string{"body": tpl.Body},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+w.cfg.AccessToken)

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("whatsapp API %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && len(result.Messages) > 0 {
		return "sent:" + result.Messages[0].ID, nil
	}
	return "sent", nil
}
