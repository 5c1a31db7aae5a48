package channels

import (
	"fmt"
	"time"
)

const (
	colorRed    = 16711680 // escalation
	colorOrange = 16753920 // notification
)

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color     string       `json:"color"`
	Title     string       `json:"title"`
	Text      string       `json:"text"`
	Fields    []slackField `json:"fields"`
	Footer    string       `json:"footer"`
	Timestamp int64        `json:"ts"`
}

type slackRequest struct {
	Username    string            `json:"username"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordFooter struct {
	Text string `json:"text"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields"`
	Footer      *discordFooter `json:"footer,omitempty"`
	Timestamp   string         `json:"timestamp"`
}

type discordRequest struct {
	Username string         `json:"username"`
	Embeds   []discordEmbed `json:"embeds"`
}

type genericRequest struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Text       string `json:"text"`
	RuleID     string `json:"rule_id"`
	RuleName   string `json:"rule_name"`
	EventID    string `json:"event_id"`
	EventType  string `json:"event_type"`
	ScopeKey   string `json:"scope_key"`
	OccurredAt string `json:"occurred_at"`
}

func slackPayload(msg Message) slackRequest {
	color, icon, header := "warning", ":bell:", ":bell: *NOTIFICATION*"
	if msg.Escalation {
		color, icon, header = "danger", ":rotating_light:", ":rotating_light: *ESCALATION*"
	}

	return slackRequest{
		Username:  username,
		IconEmoji: icon,
		Text:      header,
		Attachments: []slackAttachment{
			{
				Color: color,
				Title: msg.Title,
				Text:  msg.Text,
				Fields: []slackField{
					{Title: "Event", Value: string(msg.EventType), Short: true},
					{Title: "Scope", Value: msg.ScopeKey, Short: true},
					{Title: "Rule", Value: msg.RuleName, Short: false},
					{Title: "Occurred At", Value: formatTime(msg.OccurredAt), Short: false},
				},
				Footer:    fmt.Sprintf("Event %s", msg.EventID),
				Timestamp: msg.OccurredAt.Unix(),
			},
		},
	}
}

func discordPayload(msg Message) discordRequest {
	color := colorOrange
	if msg.Escalation {
		color = colorRed
	}

	return discordRequest{
		Username: username,
		Embeds: []discordEmbed{
			{
				Title:       fmt.Sprintf("**%s**", msg.Title),
				Description: msg.Text,
				Color:       color,
				Fields: []discordField{
					{Name: "Event", Value: string(msg.EventType), Inline: true},
					{Name: "Scope", Value: msg.ScopeKey, Inline: true},
					{Name: "Rule", Value: msg.RuleName, Inline: false},
				},
				Footer:    &discordFooter{Text: fmt.Sprintf("Event %s", msg.EventID)},
				Timestamp: msg.OccurredAt.UTC().Format(time.RFC3339),
			},
		},
	}
}

func genericPayload(msg Message) genericRequest {
	kind := "notification"
	if msg.Escalation {
		kind = "escalation"
	}
	return genericRequest{
		Type:       kind,
		Title:      msg.Title,
		Text:       msg.Text,
		RuleID:     msg.RuleID,
		RuleName:   msg.RuleName,
		EventID:    msg.EventID,
		EventType:  string(msg.EventType),
		ScopeKey:   msg.ScopeKey,
		OccurredAt: msg.OccurredAt.UTC().Format(time.RFC3339),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "Unknown"
	}
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}
