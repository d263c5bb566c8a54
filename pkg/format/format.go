// Package format renders channel-agnostic responses into the concrete
// shapes each channel can carry. Rich chat channels get structured
// content and capped suggestion buttons, email gets an HTML body with a
// plain-text alternative, and plain channels get flattened text.
package format

import (
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"tendbot/pkg/bus"
)

const (
	// MaxFieldValueLen bounds a single rich field value. Longer values
	// are truncated rather than rejected.
	MaxFieldValueLen = 1024
	// MaxSuggestionLen bounds a single suggestion label.
	MaxSuggestionLen = 80
)

// EmailContent is a rendered email payload. Text is the plain-text
// alternative for clients that do not render HTML.
type EmailContent struct {
	Subject string
	HTML    string
	Text    string
}

// Suggestions returns the response's suggestion labels, deduplicated,
// trimmed and capped at the channel-wide interactive element limit.
func Suggestions(resp *bus.Response) []string {
	if resp == nil || len(resp.Suggestions) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(resp.Suggestions))
	out := make([]string, 0, bus.MaxSuggestions)
	for _, s := range resp.Suggestions {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		if utf8.RuneCountInString(s) > MaxSuggestionLen {
			s = string([]rune(s)[:MaxSuggestionLen])
		}
		seen[s] = true
		out = append(out, s)
		if len(out) == bus.MaxSuggestions {
			break
		}
	}
	return out
}

// PlainText flattens a response to text for channels without rich
// rendering. Rich fields become "Name: Value" lines under the title.
func PlainText(resp *bus.Response) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	if resp.Text != "" {
		b.WriteString(resp.Text)
	}
	if r := resp.Rich; r != nil {
		if r.Title != "" {
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(r.Title)
		}
		if r.Description != "" {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(r.Description)
		}
		for _, f := range r.Fields {
			if f.Name == "" && f.Value == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(f.Name)
			if f.Name != "" && f.Value != "" {
				b.WriteString(": ")
			}
			b.WriteString(clamp(f.Value, MaxFieldValueLen))
		}
		if r.Footer != "" {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(r.Footer)
		}
	}
	if labels := Suggestions(resp); len(labels) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Reply with: ")
		b.WriteString(strings.Join(labels, " | "))
	}
	return b.String()
}

// Markdown renders a response for channels that accept lightweight
// markup. Field names are bolded; everything else matches PlainText.
func Markdown(resp *bus.Response) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	if resp.Text != "" {
		b.WriteString(resp.Text)
	}
	if r := resp.Rich; r != nil {
		if r.Title != "" {
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString("*")
			b.WriteString(r.Title)
			b.WriteString("*")
		}
		if r.Description != "" {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(r.Description)
		}
		for _, f := range r.Fields {
			if f.Name == "" && f.Value == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			if f.Name != "" {
				b.WriteString("*")
				b.WriteString(f.Name)
				b.WriteString("*: ")
			}
			b.WriteString(clamp(f.Value, MaxFieldValueLen))
		}
		if r.Footer != "" {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString("_")
			b.WriteString(r.Footer)
			b.WriteString("_")
		}
	}
	if labels := Suggestions(resp); len(labels) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Reply with: ")
		b.WriteString(strings.Join(labels, " | "))
	}
	return b.String()
}

// Email renders a response as an HTML email with a plain-text
// alternative. The subject comes from the rich title when present,
// otherwise from the first line of the text.
func Email(resp *bus.Response) EmailContent {
	if resp == nil {
		return EmailContent{}
	}

	subject := ""
	if resp.Rich != nil && resp.Rich.Title != "" {
		subject = resp.Rich.Title
	} else if resp.Text != "" {
		subject = firstLine(resp.Text)
	}
	if subject == "" {
		subject = "Notification"
	}

	var h strings.Builder
	h.WriteString("<html><body>")
	if resp.Text != "" {
		h.WriteString("<p>")
		h.WriteString(paragraphs(resp.Text))
		h.WriteString("</p>")
	}
	if r := resp.Rich; r != nil {
		if r.Title != "" {
			h.WriteString("<h2>")
			h.WriteString(html.EscapeString(r.Title))
			h.WriteString("</h2>")
		}
		if r.Description != "" {
			h.WriteString("<p>")
			h.WriteString(paragraphs(r.Description))
			h.WriteString("</p>")
		}
		if len(r.Fields) > 0 {
			h.WriteString("<table>")
			for _, f := range r.Fields {
				if f.Name == "" && f.Value == "" {
					continue
				}
				h.WriteString("<tr><td><b>")
				h.WriteString(html.EscapeString(f.Name))
				h.WriteString("</b></td><td>")
				h.WriteString(html.EscapeString(clamp(f.Value, MaxFieldValueLen)))
				h.WriteString("</td></tr>")
			}
			h.WriteString("</table>")
		}
		if r.Footer != "" {
			h.WriteString("<p><small>")
			h.WriteString(html.EscapeString(r.Footer))
			h.WriteString("</small></p>")
		}
		if r.Timestamp != nil {
			h.WriteString("<p><small>")
			h.WriteString(r.Timestamp.Format(time.RFC1123))
			h.WriteString("</small></p>")
		}
	}
	// Email carries no buttons; suggestions become reply hints.
	if labels := Suggestions(resp); len(labels) > 0 {
		h.WriteString("<p><i>Reply with: ")
		h.WriteString(html.EscapeString(strings.Join(labels, " | ")))
		h.WriteString("</i></p>")
	}
	h.WriteString("</body></html>")

	return EmailContent{
		Subject: subject,
		HTML:    h.String(),
		Text:    PlainText(resp),
	}
}

// clamp truncates on a rune boundary so multi-byte text never splits
// into invalid UTF-8.
func clamp(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max-3]) + "..."
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func paragraphs(s string) string {
	escaped := html.EscapeString(s)
	return strings.ReplaceAll(escaped, "\n", "<br>")
}

// ErrorResponse builds a user-facing response for a failed operation.
func ErrorResponse(action string) *bus.Response {
	return &bus.Response{
		Text: fmt.Sprintf("Sorry, something went wrong while handling %s. Please try again.", action),
	}
}
