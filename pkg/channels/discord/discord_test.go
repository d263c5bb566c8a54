package discord

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"tendbot/pkg/bus"
	"tendbot/pkg/config"
	"tendbot/pkg/delivery"
)

func restError(code int, status int) *discordgo.RESTError {
	err := &discordgo.RESTError{}
	if code != 0 {
		err.Message = &discordgo.APIErrorMessage{Code: code}
	}
	if status != 0 {
		err.Response = &http.Response{StatusCode: status}
	}
	return err
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want delivery.FailureKind
	}{
		{"cannot dm user", restError(discordgo.ErrCodeCannotSendMessagesToThisUser, 0), delivery.KindPermissionDenied},
		{"unknown channel", restError(discordgo.ErrCodeUnknownChannel, 0), delivery.KindUnknownRecipient},
		{"unknown user", restError(discordgo.ErrCodeUnknownUser, 0), delivery.KindUnknownRecipient},
		{"forbidden", restError(0, http.StatusForbidden), delivery.KindPermissionDenied},
		{"not found", restError(0, http.StatusNotFound), delivery.KindUnknownRecipient},
		{"rate limited", restError(0, http.StatusTooManyRequests), delivery.KindTransient},
		{"server error", restError(0, http.StatusBadGateway), delivery.KindTransient},
		{"bad request", restError(0, http.StatusBadRequest), delivery.KindTerminal},
		{"network error", errors.New("connection reset"), delivery.KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := delivery.Classify(classify(tt.err)); got != tt.want {
				t.Errorf("classify() kind = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildComponentsCapsButtons(t *testing.T) {
	resp := &bus.Response{
		Text:        "pick one",
		Suggestions: []string{"a", "b", "c", "d", "e", "f", "g"},
	}

	comps := buildComponents(resp)
	if len(comps) != 1 {
		t.Fatalf("got %d component rows, want 1", len(comps))
	}
	row, ok := comps[0].(discordgo.ActionsRow)
	if !ok {
		t.Fatalf("component is %T, want ActionsRow", comps[0])
	}
	if len(row.Components) != bus.MaxSuggestions {
		t.Errorf("got %d buttons, want %d", len(row.Components), bus.MaxSuggestions)
	}

	btn, ok := row.Components[0].(discordgo.Button)
	if !ok {
		t.Fatalf("row component is %T, want Button", row.Components[0])
	}
	if btn.Label != "a" || btn.CustomID != suggestPrefix+"a" {
		t.Errorf("button = %+v", btn)
	}
}

func TestBuildComponentsNoSuggestions(t *testing.T) {
	if comps := buildComponents(&bus.Response{Text: "plain"}); comps != nil {
		t.Errorf("got %v, want nil", comps)
	}
}

func TestBuildEmbeds(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rich := &bus.RichData{
		Title:  "Daily check-in",
		Fields: []bus.Field{{Name: "Mood", Value: "okay", Inline: true}, {}},
		Footer: "see you tomorrow",
		Timestamp: func() *time.Time {
			return &ts
		}(),
	}

	embeds := buildEmbeds(rich)
	if len(embeds) != 1 {
		t.Fatalf("got %d embeds, want 1", len(embeds))
	}
	e := embeds[0]
	if e.Title != "Daily check-in" {
		t.Errorf("Title = %q", e.Title)
	}
	if len(e.Fields) != 1 {
		t.Errorf("empty field not skipped: %d fields", len(e.Fields))
	}
	if e.Footer == nil || e.Footer.Text != "see you tomorrow" {
		t.Errorf("Footer = %+v", e.Footer)
	}
	if e.Timestamp != ts.Format(time.RFC3339) {
		t.Errorf("Timestamp = %q", e.Timestamp)
	}

	if buildEmbeds(nil) != nil {
		t.Error("nil rich data should produce no embeds")
	}
}

func TestNormalizeAttachments(t *testing.T) {
	in := []*discordgo.MessageAttachment{
		{Filename: "notes.txt", URL: "https://cdn.example/notes.txt", ContentType: "text/plain", Size: 42},
		nil,
	}

	out := normalizeAttachments(in)
	if len(out) != 1 {
		t.Fatalf("got %d attachments, want 1", len(out))
	}
	if out[0].Name != "notes.txt" || out[0].Size != 42 {
		t.Errorf("attachment = %+v", out[0])
	}

	if normalizeAttachments(nil) != nil {
		t.Error("no attachments should normalize to nil")
	}
}

func TestIsAllowed(t *testing.T) {
	c := &Channel{config: config.DiscordConfig{}}
	if !c.isAllowed("anyone") {
		t.Error("empty allowlist should allow everyone")
	}

	c.config.AllowFrom = []string{"123"}
	if c.isAllowed("456") {
		t.Error("user outside allowlist was allowed")
	}
	if !c.isAllowed("123") {
		t.Error("allowlisted user was rejected")
	}

	c.config.AllowFrom = []string{"*"}
	if !c.isAllowed("456") {
		t.Error("wildcard allowlist should allow everyone")
	}
}
