package operator

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

type fakeBackend struct {
	clients []ClientRow
	rooms   []RoomRow

	disconnects []DisconnectFilter
	destroyed   []string
	loaded      []string
	unloaded    []string
	broadcasts  [][2]string
}

func (f *fakeBackend) ListClients() []ClientRow  { return f.clients }
func (f *fakeBackend) ListRooms() []RoomRow      { return f.rooms }
func (f *fakeBackend) ListPlugins() []PluginRow  { return nil }
func (f *fakeBackend) ListMods(clientID int32) ([]ModRow, error) {
	return []ModRow{{ID: "mod.a", Version: "1.0.0", Side: "both"}}, nil
}
func (f *fakeBackend) ListPlayers(code string) ([]ClientRow, error)     { return f.clients, nil }
func (f *fakeBackend) ListPerspectives(code string) ([]PovRow, error)   { return nil, nil }
func (f *fakeBackend) DisconnectClients(filter DisconnectFilter) (int, error) {
	f.disconnects = append(f.disconnects, filter)
	return 1, nil
}
func (f *fakeBackend) DestroyRoom(code, reason string) error {
	f.destroyed = append(f.destroyed, code)
	return nil
}
func (f *fakeBackend) LoadPlugin(path string) error { f.loaded = append(f.loaded, path); return nil }
func (f *fakeBackend) UnloadPlugin(id string) error { f.unloaded = append(f.unloaded, id); return nil }
func (f *fakeBackend) BroadcastChat(text, roomCode string) error {
	f.broadcasts = append(f.broadcasts, [2]string{text, roomCode})
	return nil
}
func (f *fakeBackend) MemStats() MemStats { return MemStats{Clients: 3, Rooms: 1} }

func newTestConsole(backend Backend) (*Console, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return NewConsole(backend, out, zerolog.Nop()), out
}

func TestListClients(t *testing.T) {
	backend := &fakeBackend{clients: []ClientRow{
		{ID: 1, Username: "bob", Address: "127.0.0.1:5000"},
		{ID: 2, Username: "eve", Address: "127.0.0.1:5001", Room: "QWXRTY"},
	}}
	console, out := newTestConsole(backend)

	console.Exec("list clients")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("output lines = %d, want 2: %q", len(lines), out.String())
	}
	if !strings.Contains(lines[0], `"username":"bob"`) {
		t.Fatalf("first row missing username: %q", lines[0])
	}
	if !strings.Contains(lines[1], `"room":"QWXRTY"`) {
		t.Fatalf("second row missing room: %q", lines[1])
	}
}

func TestListEmpty(t *testing.T) {
	console, out := newTestConsole(&fakeBackend{})
	console.Exec("list rooms")
	if strings.TrimSpace(out.String()) != "(none)" {
		t.Fatalf("empty listing = %q", out.String())
	}
}

func TestDisconnectFilterParsing(t *testing.T) {
	backend := &fakeBackend{}
	console, out := newTestConsole(backend)

	console.Exec("dc --clientid 7 --reason misbehaving --ban 30")

	if len(backend.disconnects) != 1 {
		t.Fatalf("disconnects = %d, want 1", len(backend.disconnects))
	}
	filter := backend.disconnects[0]
	if filter.ClientID != 7 || filter.Reason != "misbehaving" || filter.BanMinutes != 30 {
		t.Fatalf("bad filter: %+v", filter)
	}
	if !strings.Contains(out.String(), "disconnected 1") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestDisconnectNeedsAFilter(t *testing.T) {
	backend := &fakeBackend{}
	console, out := newTestConsole(backend)

	console.Exec("dc --reason why")

	if len(backend.disconnects) != 0 {
		t.Fatal("dc without a selector must not disconnect anyone")
	}
	if !strings.Contains(out.String(), "error:") {
		t.Fatalf("expected an error message, got %q", out.String())
	}
}

func TestDestroyAndPlugins(t *testing.T) {
	backend := &fakeBackend{}
	console, _ := newTestConsole(backend)

	console.Exec("destroy QWXRTY --reason closing")
	console.Exec("load ./plugin.json")
	console.Exec("unload com.example.plugin")

	if len(backend.destroyed) != 1 || backend.destroyed[0] != "QWXRTY" {
		t.Fatalf("destroyed = %v", backend.destroyed)
	}
	if len(backend.loaded) != 1 || backend.loaded[0] != "./plugin.json" {
		t.Fatalf("loaded = %v", backend.loaded)
	}
	if len(backend.unloaded) != 1 || backend.unloaded[0] != "com.example.plugin" {
		t.Fatalf("unloaded = %v", backend.unloaded)
	}
}

func TestBroadcast(t *testing.T) {
	backend := &fakeBackend{}
	console, _ := newTestConsole(backend)

	console.Exec("broadcast server restarting soon --room QWXRTY")

	if len(backend.broadcasts) != 1 {
		t.Fatalf("broadcasts = %v", backend.broadcasts)
	}
	if backend.broadcasts[0][0] != "server restarting soon" || backend.broadcasts[0][1] != "QWXRTY" {
		t.Fatalf("broadcast = %v", backend.broadcasts[0])
	}
}

func TestMem(t *testing.T) {
	console, out := newTestConsole(&fakeBackend{})
	console.Exec("mem")
	if !strings.Contains(out.String(), `"clients":3`) {
		t.Fatalf("mem output = %q", out.String())
	}
}

func TestUnknownCommand(t *testing.T) {
	console, out := newTestConsole(&fakeBackend{})
	console.Exec("frobnicate")
	if !strings.Contains(out.String(), "error:") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestRunReadsLines(t *testing.T) {
	backend := &fakeBackend{}
	console, out := newTestConsole(backend)

	input := strings.NewReader("mem\nlist rooms\n")
	if err := console.Run(context.Background(), input); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), `"clients":3`) || !strings.Contains(out.String(), "(none)") {
		t.Fatalf("output = %q", out.String())
	}
}
