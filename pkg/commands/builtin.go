package commands

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"tendbot/pkg/bus"
	"tendbot/pkg/version"
)

var processStartTime = time.Now()

// HealthReporter exposes channel health for the status command. The
// channel orchestrator implements it.
type HealthReporter interface {
	// Statuses returns connection state per channel type.
	Statuses() map[string]string
}

// Task is one scheduled item surfaced by the tasks command.
type Task struct {
	Title string
	Due   string
	Done  bool
}

// TaskSource supplies a user's tasks. Persistent schedule storage is an
// external collaborator; the default source reports an empty day.
type TaskSource interface {
	ListToday(ctx context.Context, userID string) ([]Task, error)
}

// EmptyTaskSource is the default TaskSource when no store is wired.
type EmptyTaskSource struct{}

// ListToday implements TaskSource.
func (EmptyTaskSource) ListToday(ctx context.Context, userID string) ([]Task, error) {
	return nil, nil
}

// Dependencies carries collaborators for builtin command handlers.
type Dependencies struct {
	Health HealthReporter
	Tasks  TaskSource
}

// RegisterBuiltins registers the builtin commands on a registry.
func RegisterBuiltins(registry *Registry, deps Dependencies) error {
	if deps.Tasks == nil {
		deps.Tasks = EmptyTaskSource{}
	}

	builtins := []*Definition{
		{
			Name:        "help",
			Description: "Show available commands",
			Usage:       "/help [command]",
			Handler:     helpHandler(registry),
			Aliases:     []string{"h", "commands"},
			Enabled:     true,
		},
		{
			Name:        "start",
			Description: "Start interacting with the bot",
			Usage:       "/start",
			Handler:     startHandler,
			Enabled:     true,
		},
		{
			Name:        "status",
			Description: "Show bot and channel health",
			Usage:       "/status",
			Handler:     statusHandler(deps.Health),
			Cooldown:    5 * time.Second,
			Enabled:     true,
		},
		{
			Name:        "tasks",
			Description: "List today's tasks",
			Usage:       "/tasks",
			Handler:     tasksHandler(deps.Tasks),
			Aliases:     []string{"todo"},
			Enabled:     true,
		},
	}

	for _, def := range builtins {
		if err := registry.Register(def); err != nil {
			return fmt.Errorf("registering %s: %w", def.Name, err)
		}
	}
	return nil
}

// helpHandler creates a handler for the /help command.
func helpHandler(registry *Registry) Handler {
	return func(ctx context.Context, req Request) (*bus.Response, error) {
		// Detailed help for a single command.
		if req.Args != "" {
			parts := strings.Fields(req.Args)
			if len(parts) > 0 {
				if def, exists := registry.Get(parts[0]); exists {
					return &bus.Response{
						Text: fmt.Sprintf("/%s - %s", def.Name, def.Description),
						Rich: &bus.RichData{
							Title:       "/" + def.Name,
							Description: def.Description,
							Fields: []bus.Field{
								{Name: "Usage", Value: def.Usage},
							},
						},
					}, nil
				}
			}
		}

		defs := registry.ListEnabled()
		if len(defs) == 0 {
			return &bus.Response{Text: "No commands available."}, nil
		}

		sort.Slice(defs, func(i, j int) bool {
			return defs[i].Name < defs[j].Name
		})

		fields := make([]bus.Field, 0, len(defs))
		var sb strings.Builder
		sb.WriteString("Available commands:\n")
		for _, def := range defs {
			sb.WriteString(fmt.Sprintf("/%s - %s\n", def.Name, def.Description))
			fields = append(fields, bus.Field{Name: "/" + def.Name, Value: def.Description})
		}

		return &bus.Response{
			Text: sb.String(),
			Rich: &bus.RichData{
				Title:  "Available Commands",
				Fields: fields,
				Footer: "Use /help [command] for details",
			},
			Suggestions: []string{"/status", "/tasks", "/checkin"},
		}, nil
	}
}

// startHandler handles the /start command.
func startHandler(ctx context.Context, req Request) (*bus.Response, error) {
	return &bus.Response{
		Text: "Hi! I'm tendbot. I can track your day and run guided check-ins.\n" +
			"Type /help to see what I can do, or just tell me what's on your mind.",
		Suggestions: []string{"/help", "/checkin"},
	}, nil
}

// statusHandler builds the /status handler.
func statusHandler(health HealthReporter) Handler {
	return func(ctx context.Context, req Request) (*bus.Response, error) {
		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)

		fields := []bus.Field{
			{Name: "Version", Value: version.GetVersion(), Inline: true},
			{Name: "Uptime", Value: time.Since(processStartTime).Round(time.Second).String(), Inline: true},
			{Name: "Memory", Value: fmt.Sprintf("%.2f MB", float64(mem.Alloc)/1024.0/1024.0), Inline: true},
			{Name: "Go", Value: runtime.Version(), Inline: true},
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "tendbot %s - up %s",
			version.GetVersion(),
			time.Since(processStartTime).Round(time.Second))

		if health != nil {
			for channelType, state := range health.Statuses() {
				fields = append(fields, bus.Field{
					Name:   channelType,
					Value:  state,
					Inline: true,
				})
				fmt.Fprintf(&sb, "\n%s: %s", channelType, state)
			}
		}

		return &bus.Response{
			Text: sb.String(),
			Rich: &bus.RichData{
				Title:  "Status",
				Fields: fields,
				Footer: "Reached via " + req.Channel,
			},
		}, nil
	}
}

// tasksHandler builds the /tasks handler.
func tasksHandler(source TaskSource) Handler {
	return func(ctx context.Context, req Request) (*bus.Response, error) {
		tasks, err := source.ListToday(ctx, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("listing tasks: %w", err)
		}

		if len(tasks) == 0 {
			return &bus.Response{
				Text:        "Nothing scheduled for today.",
				Suggestions: []string{"/checkin"},
			}, nil
		}

		fields := make([]bus.Field, 0, len(tasks))
		var sb strings.Builder
		sb.WriteString("Today:\n")
		for _, task := range tasks {
			mark := "•"
			if task.Done {
				mark = "✓"
			}
			sb.WriteString(fmt.Sprintf("%s %s", mark, task.Title))
			if task.Due != "" {
				sb.WriteString(" (" + task.Due + ")")
			}
			sb.WriteString("\n")
			fields = append(fields, bus.Field{Name: task.Title, Value: valueOr(task.Due, "anytime"), Inline: true})
		}

		return &bus.Response{
			Text: sb.String(),
			Rich: &bus.RichData{
				Title:  "Today's tasks",
				Fields: fields,
			},
		}, nil
	}
}

func valueOr(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
