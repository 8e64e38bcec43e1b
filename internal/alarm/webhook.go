package alarm

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Webhook POSTs alarm transitions to an operator-configured URL.
// Failures log a warning and are never retried — delivery is at most
// once.
type Webhook struct {
	url     string
	secret  string
	spaceID string
	client  *http.Client
	log     zerolog.Logger
}

// NewWebhook returns nil when url is empty, so callers can unconditionally
// pass it to Engine.New and the transition path will skip dispatch.
func NewWebhook(url, secret, spaceID string, timeout time.Duration, log zerolog.Logger) *Webhook {
	if url == "" {
		return nil
	}
	return &Webhook{
		url:     url,
		secret:  secret,
		spaceID: spaceID,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

// transitionPayload is the webhook's JSON body:
// {eventId(random), spaceShortId, transition,...}.
type transitionPayload struct {
	EventID      string  `json:"eventId"`
	SpaceShortID string  `json:"spaceShortId,omitempty"`
	Transition   string  `json:"transition"`
	RuleID       int64   `json:"ruleId"`
	RuleName     string  `json:"ruleName"`
	Group        string  `json:"group"`
	Node         string  `json:"node"`
	Device       string  `json:"device,omitempty"`
	Metric       string  `json:"metric"`
	Value        float64 `json:"value"`
	TS           int64   `json:"ts"`
}

// Dispatch sends one webhook POST for a state transition. Errors are
// logged by this method itself (never returned) since callers invoke it
// fire-and-forget; a failed delivery must never block ingestion.
func (w *Webhook) Dispatch(ctx context.Context, rule *Rule, transition string, value float64) {
	payload := transitionPayload{
		EventID:      uuid.NewString(),
		SpaceShortID: w.spaceID,
		Transition:   transition,
		RuleID:       rule.ID,
		RuleName:     rule.Name,
		Group:        rule.Identity.Group,
		Node:         rule.Identity.Node,
		Device:       rule.Identity.Device,
		Metric:       rule.Identity.Metric,
		Value:        value,
		TS:           time.Now().UnixMilli(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		w.log.Warn().Err(err).Msg("alarm webhook: marshal payload failed")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		w.log.Warn().Err(err).Msg("alarm webhook: build request failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if w.secret != "" {
		req.Header.Set("X-Alarm-Webhook-Secret", w.secret)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		w.log.Warn().Err(err).Str("url", w.url).Msg("alarm webhook: request failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		w.log.Warn().Int("status", resp.StatusCode).Str("url", w.url).Msg("alarm webhook: non-2xx response")
	}
}
