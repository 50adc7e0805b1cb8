package messaging

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/postclinics/clinic-agent/internal/conversation"
	"github.com/postclinics/clinic-agent/internal/observability/metrics"
	"github.com/postclinics/clinic-agent/pkg/logging"
)

type messagePublisher interface {
	Enqueue(ctx context.Context, msg conversation.InboundMessage) error
}

// WebhookHandler receives WhatsApp provider callbacks. Payload shape varies
// across provider versions, so fields are extracted leniently; only phone
// and text are mandatory. Accepted messages are queued and the HTTP request
// returns immediately.
type WebhookHandler struct {
	secret    string
	gate      Gate
	publisher messagePublisher
	metrics   *metrics.PipelineMetrics
	logger    *logging.Logger
}

// WebhookConfig wires the webhook endpoint. An empty Secret disables
// signature validation.
type WebhookConfig struct {
	Secret    string
	Gate      Gate
	Publisher messagePublisher
	Metrics   *metrics.PipelineMetrics
	Logger    *logging.Logger
}

// NewWebhookHandler builds the provider callback handler.
func NewWebhookHandler(cfg WebhookConfig) *WebhookHandler {
	if cfg.Gate == nil {
		panic("messaging: gate cannot be nil")
	}
	if cfg.Publisher == nil {
		panic("messaging: publisher cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &WebhookHandler{
		secret:    cfg.Secret,
		gate:      cfg.Gate,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
}

type inboundPayload struct {
	Phone        string          `json:"phone"`
	MessageID    string          `json:"messageId"`
	Text         json.RawMessage `json:"text"`
	FromMe       bool            `json:"fromMe"`
	IsGroup      bool            `json:"isGroup"`
	IsNewsletter bool            `json:"isNewsletter"`
}

// textContent accepts both the object form {"message": "..."} and a bare
// string.
func (p *inboundPayload) textContent() string {
	if len(p.Text) == 0 {
		return ""
	}
	var wrapped struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(p.Text, &wrapped); err == nil && wrapped.Message != "" {
		return wrapped.Message
	}
	var plain string
	if err := json.Unmarshal(p.Text, &plain); err == nil {
		return plain
	}
	return ""
}

// HandleInbound processes one provider callback.
func (h *WebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if h.secret != "" {
		if !VerifySignature(h.secret, r.Header.Get(SignatureHeader), body) {
			h.logger.Warn("invalid webhook signature")
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	var payload inboundPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	text := payload.textContent()
	h.logger.Info("webhook received",
		"message_id", payload.MessageID,
		"from_me", payload.FromMe,
		"is_group", payload.IsGroup,
		"phone_suffix", phoneSuffix(payload.Phone),
	)

	if payload.Phone == "" || text == "" {
		h.ignored(w, "missing_data")
		return
	}
	if payload.FromMe || payload.IsGroup || payload.IsNewsletter {
		h.ignored(w, "filtered_source")
		return
	}

	verdict, err := h.gate.Admit(r.Context(), payload.Phone, payload.MessageID)
	if err != nil {
		h.logger.Error("admission check failed", "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if verdict != VerdictAccepted {
		h.logger.Info("message rejected", "verdict", verdict, "phone_suffix", phoneSuffix(payload.Phone))
		h.ignored(w, string(verdict))
		return
	}

	if err := h.publisher.Enqueue(r.Context(), conversation.InboundMessage{
		Phone:     payload.Phone,
		MessageID: payload.MessageID,
		Text:      text,
	}); err != nil {
		h.logger.Error("enqueue failed", "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	h.metrics.ObserveWebhook("queued")
	writeJSON(w, http.StatusOK, map[string]string{"status": "queued"})
}

func (h *WebhookHandler) ignored(w http.ResponseWriter, reason string) {
	h.metrics.ObserveWebhook(reason)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "reason": reason})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func phoneSuffix(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	return phone[len(phone)-4:]
}
