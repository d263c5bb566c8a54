package format

import (
	"strings"
	"testing"
	"unicode/utf8"

	"tendbot/pkg/bus"
)

func TestSuggestionsCapped(t *testing.T) {
	resp := &bus.Response{
		Suggestions: []string{"a", "b", "c", "d", "e", "f", "g"},
	}
	got := Suggestions(resp)
	if len(got) != bus.MaxSuggestions {
		t.Fatalf("expected %d suggestions, got %d", bus.MaxSuggestions, len(got))
	}
	if got[0] != "a" || got[4] != "e" {
		t.Errorf("expected first five in order, got %v", got)
	}
}

func TestSuggestionsDedupAndTrim(t *testing.T) {
	resp := &bus.Response{
		Suggestions: []string{" yes ", "yes", "", "no"},
	}
	got := Suggestions(resp)
	if len(got) != 2 || got[0] != "yes" || got[1] != "no" {
		t.Errorf("expected [yes no], got %v", got)
	}
}

func TestPlainTextFlattensRich(t *testing.T) {
	resp := &bus.Response{
		Text: "Here is your day.",
		Rich: &bus.RichData{
			Title:       "Tuesday",
			Description: "3 tasks",
			Fields: []bus.Field{
				{Name: "09:00", Value: "standup"},
				{Name: "", Value: ""},
			},
			Footer: "updated just now",
		},
		Suggestions: []string{"done", "skip"},
	}
	got := PlainText(resp)
	for _, want := range []string{"Here is your day.", "Tuesday", "3 tasks", "09:00: standup", "updated just now", "Reply with: done | skip"} {
		if !strings.Contains(got, want) {
			t.Errorf("plain text missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, ": \n") {
		t.Errorf("empty field leaked into output:\n%s", got)
	}
}

func TestPlainTextNilResponse(t *testing.T) {
	if got := PlainText(nil); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestMarkdownBoldsFieldNames(t *testing.T) {
	resp := &bus.Response{
		Rich: &bus.RichData{
			Title:  "Status",
			Fields: []bus.Field{{Name: "discord", Value: "connected"}},
			Footer: "all good",
		},
	}
	got := Markdown(resp)
	if !strings.Contains(got, "*Status*") {
		t.Errorf("title not bolded: %s", got)
	}
	if !strings.Contains(got, "*discord*: connected") {
		t.Errorf("field not formatted: %s", got)
	}
	if !strings.Contains(got, "_all good_") {
		t.Errorf("footer not italicized: %s", got)
	}
}

func TestEmailSubjectFromTitle(t *testing.T) {
	resp := &bus.Response{
		Text: "body text",
		Rich: &bus.RichData{Title: "Daily digest"},
	}
	mail := Email(resp)
	if mail.Subject != "Daily digest" {
		t.Errorf("expected subject from title, got %q", mail.Subject)
	}
}

func TestEmailSubjectFallsBackToFirstLine(t *testing.T) {
	mail := Email(&bus.Response{Text: "Reminder: standup\nat 09:00"})
	if mail.Subject != "Reminder: standup" {
		t.Errorf("expected first line subject, got %q", mail.Subject)
	}
}

func TestEmailEscapesHTML(t *testing.T) {
	resp := &bus.Response{
		Text: "a <b> tag & so on",
		Rich: &bus.RichData{
			Fields: []bus.Field{{Name: "<script>", Value: "x < y"}},
		},
	}
	mail := Email(resp)
	if strings.Contains(mail.HTML, "<script>") {
		t.Errorf("unescaped markup in HTML body:\n%s", mail.HTML)
	}
	if !strings.Contains(mail.HTML, "&lt;script&gt;") {
		t.Errorf("expected escaped field name:\n%s", mail.HTML)
	}
	if !strings.Contains(mail.Text, "a <b> tag & so on") {
		t.Errorf("plain alternative should not be escaped:\n%s", mail.Text)
	}
}

func TestEmailSuggestionsBecomeReplyHints(t *testing.T) {
	mail := Email(&bus.Response{Text: "pick one", Suggestions: []string{"yes", "no"}})
	if !strings.Contains(mail.HTML, "Reply with: yes | no") {
		t.Errorf("expected reply hint in HTML:\n%s", mail.HTML)
	}
}

func TestClampTruncatesLongValues(t *testing.T) {
	long := strings.Repeat("x", MaxFieldValueLen+100)
	resp := &bus.Response{Rich: &bus.RichData{Fields: []bus.Field{{Name: "n", Value: long}}}}
	got := PlainText(resp)
	if len(got) > MaxFieldValueLen+16 {
		t.Errorf("field value not clamped, len=%d", len(got))
	}
	if !strings.Contains(got, "...") {
		t.Error("expected truncation marker")
	}
}

func TestClampKeepsRunesIntact(t *testing.T) {
	long := strings.Repeat("ありがとう", MaxFieldValueLen)
	resp := &bus.Response{Rich: &bus.RichData{Fields: []bus.Field{{Name: "n", Value: long}}}}
	got := PlainText(resp)
	if !utf8.ValidString(got) {
		t.Error("truncation produced invalid UTF-8")
	}
	if !strings.Contains(got, "...") {
		t.Error("expected truncation marker")
	}
}

func TestSuggestionTruncationKeepsRunesIntact(t *testing.T) {
	long := strings.Repeat("é", MaxSuggestionLen+10)
	labels := Suggestions(&bus.Response{Suggestions: []string{long}})
	if len(labels) != 1 {
		t.Fatalf("got %d labels, want 1", len(labels))
	}
	if !utf8.ValidString(labels[0]) {
		t.Error("truncated label is invalid UTF-8")
	}
	if got := utf8.RuneCountInString(labels[0]); got != MaxSuggestionLen {
		t.Errorf("label rune count = %d, want %d", got, MaxSuggestionLen)
	}
}
