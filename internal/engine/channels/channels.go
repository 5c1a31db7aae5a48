// Package channels posts rule notifications to chat and paging integrations
// configured under channels.<id> in the config file.
package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"notifyd/internal/platform/config"
	"notifyd/internal/platform/models"
)

const (
	KindSlack   = "slack"
	KindDiscord = "discord"
	KindGeneric = "generic"

	sendTimeout = 10 * time.Second
	username    = "notifyd"
)

var ErrUnknownChannel = errors.New("unknown channel")

// Message is a rendered rule notification.
type Message struct {
	Escalation bool
	Title      string
	Text       string
	RuleID     string
	RuleName   string
	EventID    string
	EventType  models.TriggerType
	ScopeKey   string
	OccurredAt time.Time
}

type channel struct {
	kind string
	url  string
}

// Registry resolves channel ids to their configured integration.
type Registry struct {
	channels map[string]channel
	client   *http.Client
}

func NewRegistry(cfg map[string]config.ChannelConfig) (*Registry, error) {
	r := &Registry{
		channels: make(map[string]channel, len(cfg)),
		client:   &http.Client{Timeout: sendTimeout},
	}
	for id, ch := range cfg {
		switch ch.Kind {
		case KindSlack, KindDiscord, KindGeneric:
		case "":
			ch.Kind = KindGeneric
		default:
			return nil, fmt.Errorf("channel %s: unknown kind %q", id, ch.Kind)
		}
		r.channels[id] = channel{kind: ch.Kind, url: ch.URL}
	}
	return r, nil
}

func (r *Registry) Has(channelID string) bool {
	_, ok := r.channels[channelID]
	return ok
}

// Send posts msg to the channel. Any non-2xx answer is an error.
func (r *Registry) Send(ctx context.Context, channelID string, msg Message) error {
	ch, ok := r.channels[channelID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, channelID)
	}

	var payload interface{}
	switch ch.kind {
	case KindSlack:
		payload = slackPayload(msg)
	case KindDiscord:
		payload = discordPayload(msg)
	default:
		payload = genericPayload(msg)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", ch.kind, err)
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ch.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s notification: %w", ch.kind, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s channel %s returned status %d", ch.kind, channelID, resp.StatusCode)
	}
	return nil
}
