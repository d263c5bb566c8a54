package flow

import (
	"context"
	"strings"
	"time"

	"tendbot/pkg/bus"
)

// CheckinFlow is the guided daily check-in: mood, focus, blockers, then
// a summary.
type CheckinFlow struct{}

// NewCheckinFlow creates the check-in flow.
func NewCheckinFlow() *CheckinFlow {
	return &CheckinFlow{}
}

// Name implements Flow.
func (f *CheckinFlow) Name() string {
	return "checkin"
}

// Begin implements Flow.
func (f *CheckinFlow) Begin(ctx context.Context, s *Session) (*bus.Response, error) {
	return &bus.Response{
		Text:        "Let's check in. How are you feeling today?",
		Suggestions: []string{"great", "okay", "stressed"},
	}, nil
}

// HandleReply implements Flow.
func (f *CheckinFlow) HandleReply(ctx context.Context, s *Session, input string) (*bus.Response, bool, error) {
	input = strings.TrimSpace(input)

	switch s.Step {
	case 0:
		s.Data["mood"] = input
		s.Step++
		return &bus.Response{
			Text: "Got it. What's the one thing you most want to get done today?",
		}, false, nil

	case 1:
		s.Data["focus"] = input
		s.Step++
		return &bus.Response{
			Text:        "Anything blocking you or worrying you?",
			Suggestions: []string{"nothing"},
		}, false, nil

	default:
		s.Data["blockers"] = input
		now := time.Now()

		fields := []bus.Field{
			{Name: "Mood", Value: s.Data["mood"], Inline: true},
			{Name: "Focus", Value: s.Data["focus"]},
		}
		if b := s.Data["blockers"]; b != "" && !strings.EqualFold(b, "nothing") {
			fields = append(fields, bus.Field{Name: "Blockers", Value: b})
		}

		return &bus.Response{
			Text: "Thanks, check-in recorded. Have a good one!",
			Rich: &bus.RichData{
				Title:     "Daily check-in",
				Fields:    fields,
				Footer:    "Use /checkin any time to update",
				Timestamp: &now,
			},
		}, true, nil
	}
}
