package commands

import (
	"context"
	"testing"
	"time"

	"tendbot/pkg/bus"
	"tendbot/pkg/logger"
)

func nopHandler(ctx context.Context, req Request) (*bus.Response, error) {
	return &bus.Response{Text: "ok"}, nil
}

func TestRegisterAndGet(t *testing.T) {
	reg := NewRegistry(logger.NewNop(), "discord")

	def := &Definition{
		Name:    "Tasks",
		Handler: nopHandler,
		Aliases: []string{"todo", "t"},
		Enabled: true,
	}
	if err := reg.Register(def); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Name is normalized on registration.
	if def.Name != "tasks" {
		t.Errorf("expected normalized name, got %q", def.Name)
	}

	for _, lookup := range []string{"tasks", "TASKS", "/tasks", "todo", "t"} {
		if got, ok := reg.Get(lookup); !ok || got != def {
			t.Errorf("Get(%q) did not resolve", lookup)
		}
	}
	if !reg.IsRegistered("todo") {
		t.Error("IsRegistered(todo) = false")
	}
	if reg.IsRegistered("nope") {
		t.Error("IsRegistered(nope) = true")
	}
}

func TestAliasCollisionLastWins(t *testing.T) {
	reg := NewRegistry(logger.NewNop(), "discord")

	first := &Definition{Name: "first", Handler: nopHandler, Aliases: []string{"x"}, Enabled: true}
	second := &Definition{Name: "second", Handler: nopHandler, Aliases: []string{"x"}, Enabled: true}

	if err := reg.Register(first); err != nil {
		t.Fatalf("Register first: %v", err)
	}
	// Collision must not be an error.
	if err := reg.Register(second); err != nil {
		t.Fatalf("Register second: %v", err)
	}

	got, ok := reg.Get("x")
	if !ok {
		t.Fatal("alias vanished")
	}
	if got.Name != "second" {
		t.Errorf("alias should resolve to the last registration, got %q", got.Name)
	}
}

func TestUnregisterRemovesAliases(t *testing.T) {
	reg := NewRegistry(logger.NewNop(), "email")

	def := &Definition{Name: "ping", Handler: nopHandler, Aliases: []string{"p"}, Enabled: true}
	if err := reg.Register(def); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if !reg.Unregister("ping") {
		t.Fatal("Unregister returned false for known command")
	}
	if reg.IsRegistered("ping") || reg.IsRegistered("p") {
		t.Error("command or alias survived unregistration")
	}
	if reg.Unregister("ping") {
		t.Error("Unregister should return false for unknown command")
	}
}

func TestListEnabled(t *testing.T) {
	reg := NewRegistry(logger.NewNop(), "discord")

	reg.Register(&Definition{Name: "on", Handler: nopHandler, Enabled: true})
	reg.Register(&Definition{Name: "off", Handler: nopHandler, Enabled: false})

	if got := len(reg.List()); got != 2 {
		t.Errorf("List: expected 2, got %d", got)
	}
	enabled := reg.ListEnabled()
	if len(enabled) != 1 || enabled[0].Name != "on" {
		t.Errorf("ListEnabled: expected [on], got %v", enabled)
	}
}

func TestAuthorized(t *testing.T) {
	reg := NewRegistry(logger.NewNop(), "discord")

	open := &Definition{Name: "open"}
	locked := &Definition{Name: "locked", Permissions: []string{"admin"}}

	if !reg.Authorized(open, nil) {
		t.Error("command without permissions must be open")
	}
	if reg.Authorized(locked, []string{"user"}) {
		t.Error("missing permission must deny")
	}
	if !reg.Authorized(locked, []string{"user", "admin"}) {
		t.Error("held permission must allow")
	}
}

func TestReserveCooldown(t *testing.T) {
	reg := NewRegistry(logger.NewNop(), "discord")
	current := time.Unix(1000, 0)
	reg.now = func() time.Time { return current }

	def := &Definition{Name: "status", Cooldown: 10 * time.Second}

	if _, ok := reg.ReserveCooldown(def, "u1"); !ok {
		t.Fatal("first use must pass")
	}
	if remaining, ok := reg.ReserveCooldown(def, "u1"); ok || remaining <= 0 {
		t.Errorf("second use must be blocked, got ok=%v remaining=%v", ok, remaining)
	}
	// A different user is not affected.
	if _, ok := reg.ReserveCooldown(def, "u2"); !ok {
		t.Error("cooldown must be per user")
	}

	current = current.Add(11 * time.Second)
	if _, ok := reg.ReserveCooldown(def, "u1"); !ok {
		t.Error("cooldown must expire")
	}
}

type recordingBinder struct {
	bound   []string
	unbound []string
}

func (b *recordingBinder) BindCommand(ctx context.Context, def *Definition) error {
	b.bound = append(b.bound, def.Name)
	return nil
}

func (b *recordingBinder) UnbindCommand(ctx context.Context, name string) error {
	b.unbound = append(b.unbound, name)
	return nil
}

func TestBindPlatform(t *testing.T) {
	reg := NewRegistry(logger.NewNop(), "discord")
	reg.Register(&Definition{Name: "a", Handler: nopHandler, Enabled: true})
	reg.Register(&Definition{Name: "b", Handler: nopHandler, Enabled: false})

	binder := &recordingBinder{}
	reg.SetBinder(binder)

	if err := reg.BindPlatform(context.Background()); err != nil {
		t.Fatalf("BindPlatform: %v", err)
	}
	if len(binder.bound) != 1 || binder.bound[0] != "a" {
		t.Errorf("expected only enabled commands bound, got %v", binder.bound)
	}
}

func TestNopBinderForEmail(t *testing.T) {
	reg := NewRegistry(logger.NewNop(), "email")
	reg.Register(&Definition{Name: "help", Handler: nopHandler, Enabled: true})

	// Email commands are parse-only; binding is a no-op success.
	if err := reg.BindPlatform(context.Background()); err != nil {
		t.Errorf("NopBinder must succeed, got %v", err)
	}
}
