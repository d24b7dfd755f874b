package chat

import (
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func testDispatch(t *testing.T, reg *Registry, line string) []string {
	t.Helper()
	var replies []string
	ctx := NewContext(nil, nil, "/"+line, func(text string) error {
		replies = append(replies, text)
		return nil
	})
	reg.Dispatch(ctx, line)
	return replies
}

func TestDispatchBindsOptionalAndRest(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	var got map[string]string
	err := reg.Register("kick <name> [reason...]", "Kick a player", func(ctx *Context, args map[string]string) error {
		got = args
		return nil
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	testDispatch(t, reg, "kick 'big bob' was being mean")

	if got["name"] != "big bob" {
		t.Fatalf("name = %q, want %q", got["name"], "big bob")
	}
	if got["reason"] != "was being mean" {
		t.Fatalf("reason = %q, want %q", got["reason"], "was being mean")
	}
}

func TestDispatchOptionalAbsent(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	var got map[string]string
	_ = reg.Register("kick <name> [reason...]", "Kick a player", func(ctx *Context, args map[string]string) error {
		got = args
		return nil
	})

	testDispatch(t, reg, "kick bob")

	if got["name"] != "bob" {
		t.Fatalf("name = %q, want bob", got["name"])
	}
	if _, bound := got["reason"]; bound {
		t.Fatal("absent optional must not be bound")
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	replies := testDispatch(t, reg, "frobnicate")
	if len(replies) != 1 || replies[0] != "No command with name: frobnicate" {
		t.Fatalf("replies = %#v", replies)
	}
}

func TestDispatchMissingRequiredRepliesUsage(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	_ = reg.Register("kick <name> [reason...]", "Kick a player", func(ctx *Context, args map[string]string) error {
		t.Fatal("handler must not run without required params")
		return nil
	})

	replies := testDispatch(t, reg, "kick")
	if len(replies) != 1 {
		t.Fatalf("replies = %#v", replies)
	}
	if !strings.Contains(replies[0], "kick <name> [reason...]") || !strings.Contains(replies[0], "Kick a player") {
		t.Fatalf("usage reply incomplete: %q", replies[0])
	}
}

func TestDispatchCallErrorRelayed(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	_ = reg.Register("fail <x>", "Always fails", func(ctx *Context, args map[string]string) error {
		return Callf("cannot do that to %s", args["x"])
	})

	replies := testDispatch(t, reg, "fail bob")
	if len(replies) != 1 || replies[0] != "cannot do that to bob" {
		t.Fatalf("replies = %#v", replies)
	}
}

func TestDispatchInternalErrorSwallowed(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	_ = reg.Register("boom", "Always explodes", func(ctx *Context, args map[string]string) error {
		return errors.New("internal")
	})

	replies := testDispatch(t, reg, "boom")
	if len(replies) != 0 {
		t.Fatalf("internal errors must not reach the caller, got %#v", replies)
	}
}

func TestHelpListsCommands(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	_ = reg.Register("kick <name> [reason...]", "Kick a player", func(ctx *Context, args map[string]string) error {
		return nil
	})

	replies := testDispatch(t, reg, "help")
	if len(replies) != 1 {
		t.Fatalf("replies = %#v", replies)
	}
	if !strings.Contains(replies[0], "/help") || !strings.Contains(replies[0], "/kick <name> [reason...]") {
		t.Fatalf("help output incomplete: %q", replies[0])
	}

	detail := testDispatch(t, reg, "help kick")
	if len(detail) != 1 || !strings.Contains(detail[0], "Kick a player") {
		t.Fatalf("help detail = %#v", detail)
	}

	missing := testDispatch(t, reg, "help nope")
	if len(missing) != 1 || !strings.Contains(missing[0], "No command with name: nope") {
		t.Fatalf("help for unknown = %#v", missing)
	}
}
