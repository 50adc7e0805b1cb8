package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postclinics/clinic-agent/internal/conversation"
)

type capturePublisher struct {
	messages []conversation.InboundMessage
	err      error
}

func (p *capturePublisher) Enqueue(_ context.Context, msg conversation.InboundMessage) error {
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

type stubGate struct {
	verdict Verdict
	err     error
}

func (g *stubGate) Admit(context.Context, string, string) (Verdict, error) {
	if g.err != nil {
		return "", g.err
	}
	return g.verdict, nil
}

func newWebhookFixture(secret string, gate Gate) (*WebhookHandler, *capturePublisher) {
	publisher := &capturePublisher{}
	if gate == nil {
		gate = &stubGate{verdict: VerdictAccepted}
	}
	handler := NewWebhookHandler(WebhookConfig{
		Secret:    secret,
		Gate:      gate,
		Publisher: publisher,
	})
	return handler, publisher
}

func postWebhook(t *testing.T, handler *WebhookHandler, body []byte, sign func(*http.Request)) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/zapi", bytes.NewReader(body))
	if sign != nil {
		sign(req)
	}
	rec := httptest.NewRecorder()
	handler.HandleInbound(rec, req)

	var response map[string]string
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	}
	return rec, response
}

func TestWebhookQueuesValidMessage(t *testing.T) {
	handler, publisher := newWebhookFixture("", nil)
	body := []byte(`{"phone":"5511999990001","messageId":"msg-1","text":{"message":"Olá, quero agendar"}}`)

	rec, response := postWebhook(t, handler, body, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "queued", response["status"])

	require.Len(t, publisher.messages, 1)
	assert.Equal(t, "5511999990001", publisher.messages[0].Phone)
	assert.Equal(t, "msg-1", publisher.messages[0].MessageID)
	assert.Equal(t, "Olá, quero agendar", publisher.messages[0].Text)
}

func TestWebhookAcceptsBareStringText(t *testing.T) {
	handler, publisher := newWebhookFixture("", nil)
	body := []byte(`{"phone":"5511999990001","messageId":"msg-1","text":"Oi"}`)

	rec, response := postWebhook(t, handler, body, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "queued", response["status"])
	require.Len(t, publisher.messages, 1)
	assert.Equal(t, "Oi", publisher.messages[0].Text)
}

func TestWebhookIgnoresMissingData(t *testing.T) {
	handler, publisher := newWebhookFixture("", nil)

	for _, body := range []string{
		`{"messageId":"msg-1","text":"Oi"}`,
		`{"phone":"5511999990001","messageId":"msg-1"}`,
	} {
		rec, response := postWebhook(t, handler, []byte(body), nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ignored", response["status"])
		assert.Equal(t, "missing_data", response["reason"])
	}
	assert.Empty(t, publisher.messages)
}

func TestWebhookFiltersOwnGroupAndNewsletterTraffic(t *testing.T) {
	handler, publisher := newWebhookFixture("", nil)

	for _, body := range []string{
		`{"phone":"5511999990001","messageId":"m1","text":"Oi","fromMe":true}`,
		`{"phone":"5511999990001","messageId":"m2","text":"Oi","isGroup":true}`,
		`{"phone":"5511999990001","messageId":"m3","text":"Oi","isNewsletter":true}`,
	} {
		rec, response := postWebhook(t, handler, []byte(body), nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ignored", response["status"])
		assert.Equal(t, "filtered_source", response["reason"])
	}
	assert.Empty(t, publisher.messages)
}

func TestWebhookReportsGateVerdict(t *testing.T) {
	handler, publisher := newWebhookFixture("", &stubGate{verdict: VerdictDuplicate})
	body := []byte(`{"phone":"5511999990001","messageId":"msg-1","text":"Oi"}`)

	rec, response := postWebhook(t, handler, body, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ignored", response["status"])
	assert.Equal(t, "duplicate_message", response["reason"])
	assert.Empty(t, publisher.messages)
}

func TestWebhookGateErrorIsServerError(t *testing.T) {
	handler, _ := newWebhookFixture("", &stubGate{err: errors.New("redis down")})
	body := []byte(`{"phone":"5511999990001","messageId":"msg-1","text":"Oi"}`)

	rec, _ := postWebhook(t, handler, body, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWebhookEnqueueErrorIsServerError(t *testing.T) {
	handler, publisher := newWebhookFixture("", nil)
	publisher.err = errors.New("queue full")
	body := []byte(`{"phone":"5511999990001","messageId":"msg-1","text":"Oi"}`)

	rec, _ := postWebhook(t, handler, body, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	handler, publisher := newWebhookFixture("topsecret", nil)
	body := []byte(`{"phone":"5511999990001","messageId":"msg-1","text":"Oi"}`)

	rec, _ := postWebhook(t, handler, body, func(req *http.Request) {
		req.Header.Set(SignatureHeader, "sha256=deadbeef")
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, publisher.messages)

	rec, _ = postWebhook(t, handler, body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookAcceptsValidSignature(t *testing.T) {
	handler, publisher := newWebhookFixture("topsecret", nil)
	body := []byte(`{"phone":"5511999990001","messageId":"msg-1","text":"Oi"}`)

	rec, response := postWebhook(t, handler, body, func(req *http.Request) {
		req.Header.Set(SignatureHeader, "sha256="+Sign("topsecret", body))
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "queued", response["status"])
	require.Len(t, publisher.messages, 1)
}

func TestWebhookRejectsMalformedJSON(t *testing.T) {
	handler, _ := newWebhookFixture("", nil)
	rec, _ := postWebhook(t, handler, []byte(`{not json`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
