package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Bizinso/BizSocials-sub013/internal/config"
	"github.com/Bizinso/BizSocials-sub013/internal/ingest"
)

type countingConsumer struct {
	events []ingest.Event
}

func (c *countingConsumer) Consume(_ context.Context, event ingest.Event) error {
	c.events = append(c.events, event)
	return nil
}

func newTestApp() (*fiber.App, *countingConsumer, *ingest.Forwarder) {
	cfg := &config.InboundConfig{
		MetaAppSecret:         "meta-app-secret",
		MetaVerifyToken:       "verify-token",
		TwitterConsumerSecret: "consumer-secret",
		IngestBuffer:          32,
	}
	consumer := &countingConsumer{}
	forwarder := ingest.NewForwarder(consumer, cfg.IngestBuffer, zap.NewNop())

	h := NewHandler(cfg, forwarder, zap.NewNop())
	app := fiber.New()
	app.Get("/webhooks/meta", h.MetaVerify)
	app.Post("/webhooks/meta", h.MetaEvents)
	app.Get("/webhooks/twitter", h.TwitterCRC)
	app.Post("/webhooks/twitter", h.TwitterEvents)
	return app, consumer, forwarder
}

func metaSign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func twitterSign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func decodeEnvelope(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestMetaVerify(t *testing.T) {
	app, _, _ := newTestApp()

	q := url.Values{}
	q.Set("hub_mode", "subscribe")
	q.Set("hub_verify_token", "verify-token")
	q.Set("hub_challenge", "challenge-1234")
	req := httptest.NewRequest(http.MethodGet, "/webhooks/meta?"+q.Encode(), nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "challenge-1234", string(body))
}

func TestMetaVerify_BadToken(t *testing.T) {
	app, _, _ := newTestApp()

	q := url.Values{}
	q.Set("hub_mode", "subscribe")
	q.Set("hub_verify_token", "wrong")
	q.Set("hub_challenge", "challenge-1234")
	req := httptest.NewRequest(http.MethodGet, "/webhooks/meta?"+q.Encode(), nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	env := decodeEnvelope(t, resp)
	assert.Equal(t, false, env["success"])
}

func TestMetaEvents_ValidSignature(t *testing.T) {
	app, consumer, forwarder := newTestApp()

	body := []byte(`{"object":"page","entry":[{"id":"111","changes":[]},{"id":"222","changes":[]}]}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/meta", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hub-Signature-256", metaSign(body, "meta-app-secret"))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	env := decodeEnvelope(t, resp)
	assert.Equal(t, true, env["success"])
	assert.Equal(t, float64(2), env["processed"])

	forwarder.Start()
	forwarder.Stop()
	require.Len(t, consumer.events, 2)
	assert.Equal(t, PlatformMeta, consumer.events[0].Platform)
	assert.Equal(t, "page", consumer.events[0].Kind)
	assert.Equal(t, "111", consumer.events[0].ScopeHint)
}

func TestMetaEvents_InvalidSignatureNotParsed(t *testing.T) {
	app, consumer, _ := newTestApp()

	// Not even JSON: a bad signature must be rejected before parsing.
	body := []byte(`{definitely not json`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/meta", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	env := decodeEnvelope(t, resp)
	assert.Equal(t, "Invalid webhook signature", env["error"])
	assert.Empty(t, consumer.events)
}

func TestMetaEvents_MissingSignature(t *testing.T) {
	app, _, _ := newTestApp()

	body := []byte(`{"object":"page","entry":[]}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/meta", bytes.NewReader(body))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestMetaEvents_VerifiedButMalformed(t *testing.T) {
	app, _, _ := newTestApp()

	body := []byte(`this verified but is not json`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/meta", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", metaSign(body, "meta-app-secret"))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	env := decodeEnvelope(t, resp)
	assert.Equal(t, "Webhook processing failed", env["error"])
}

func TestTwitterCRC(t *testing.T) {
	app, _, _ := newTestApp()

	req := httptest.NewRequest(http.MethodGet, "/webhooks/twitter?crc_token=abc123", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	mac := hmac.New(sha256.New, []byte("consumer-secret"))
	mac.Write([]byte("abc123"))
	want := "sha256=" + base64.StdEncoding.EncodeToString(mac.Sum(nil))

	env := decodeEnvelope(t, resp)
	assert.Equal(t, want, env["response_token"])
}

func TestTwitterCRC_MissingToken(t *testing.T) {
	app, _, _ := newTestApp()

	req := httptest.NewRequest(http.MethodGet, "/webhooks/twitter", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTwitterEvents(t *testing.T) {
	app, consumer, forwarder := newTestApp()

	body := []byte(`{"for_user_id":"999","tweet_create_events":[{"id_str":"1"}],"favorite_events":[{"id":"2"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/twitter", bytes.NewReader(body))
	req.Header.Set("X-Twitter-Webhooks-Signature", twitterSign(body, "consumer-secret"))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	env := decodeEnvelope(t, resp)
	assert.Equal(t, true, env["success"])
	assert.Equal(t, float64(2), env["processed"])

	forwarder.Start()
	forwarder.Stop()
	require.Len(t, consumer.events, 2)
	for _, event := range consumer.events {
		assert.Equal(t, PlatformTwitter, event.Platform)
		assert.Equal(t, "999", event.ScopeHint)
	}
}

func TestTwitterEvents_BadSignature(t *testing.T) {
	app, consumer, _ := newTestApp()

	body := []byte(`{"tweet_create_events":[]}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/twitter", bytes.NewReader(body))
	req.Header.Set("X-Twitter-Webhooks-Signature", twitterSign(body, "wrong-secret"))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Empty(t, consumer.events)
}
