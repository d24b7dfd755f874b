package reactor

import (
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/ILikePlayingGames/Hindenburg/config"
	"github.com/ILikePlayingGames/Hindenburg/protocol"
	"github.com/ILikePlayingGames/Hindenburg/server/clients"
	"github.com/rs/zerolog"
)

type fakeSink struct {
	mu      sync.Mutex
	packets [][]byte
}

func (f *fakeSink) WriteToUDP(b []byte, addr *net.UDPAddr) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.packets = append(f.packets, append([]byte(nil), b...))
	return len(b), nil
}

func (f *fakeSink) reliableChildren(t *testing.T) [][]protocol.Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]protocol.Message
	for _, data := range f.packets {
		pkt, err := protocol.Parse(data, protocol.Clientbound)
		if err != nil {
			t.Fatalf("parse sent packet: %v", err)
		}
		if rel, ok := pkt.(*protocol.ReliablePacket); ok {
			out = append(out, rel.Children)
		}
	}
	return out
}

type fakePlugins struct {
	mirrors []*protocol.PluginMirror
}

func (f *fakePlugins) MirroredMods() []*protocol.PluginMirror { return f.mirrors }

var nextPort = 50000

func newTestConn(sink clients.PacketSink) *clients.Connection {
	nextPort++
	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: nextPort}
	return clients.NewConnection(int32(nextPort-50000), addr, sink, zerolog.Nop())
}

func testConfig(reactorYAML config.Reactor) *config.Config {
	cfg := &config.Config{Reactor: reactorYAML}
	cfg.ApplyDefaults()
	return cfg
}

func vanillaHello(t *testing.T) *protocol.HelloPacket {
	t.Helper()
	version, err := protocol.ParseVersionString(config.DefaultVersions[0])
	if err != nil {
		t.Fatalf("parse default version: %v", err)
	}
	return &protocol.HelloPacket{Nonce: 1, ClientVersion: version, Username: "bob", Language: 1}
}

func moddedHello(t *testing.T, modCount uint32) *protocol.HelloPacket {
	hello := vanillaHello(t)
	hello.Mod = &protocol.ModHello{ProtocolVersion: 1, ModCount: modCount}
	return hello
}

func declare(id, version string) *protocol.ModDeclaration {
	return &protocol.ModDeclaration{NetID: 1, ModID: id, Version: version, Side: protocol.SideBoth}
}

func TestVanillaHelloGoesStraightToReady(t *testing.T) {
	h := NewHandshake(testConfig(config.Reactor{}), &fakePlugins{}, "dev", zerolog.Nop())
	c := newTestConn(&fakeSink{})

	if refusal := h.OnHello(c, vanillaHello(t)); refusal != nil {
		t.Fatalf("vanilla hello refused: %+v", refusal)
	}
	if c.State() != clients.StateReady {
		t.Fatalf("state = %v, want ready", c.State())
	}
	if !c.HelloDone || c.UsesReactor {
		t.Fatal("vanilla hello must complete without the mod framework")
	}
}

func TestBadVersionRefused(t *testing.T) {
	h := NewHandshake(testConfig(config.Reactor{}), &fakePlugins{}, "dev", zerolog.Nop())
	c := newTestConn(&fakeSink{})

	hello := vanillaHello(t)
	hello.ClientVersion = 12345
	refusal := h.OnHello(c, hello)
	if refusal == nil || refusal.Reason != protocol.ReasonIncorrectVersion {
		t.Fatalf("want IncorrectVersion refusal, got %+v", refusal)
	}
}

func TestVanillaRefusedWhenModsRequired(t *testing.T) {
	h := NewHandshake(testConfig(config.Reactor{Enabled: true, AllowNormalClients: false}), &fakePlugins{}, "dev", zerolog.Nop())
	c := newTestConn(&fakeSink{})

	refusal := h.OnHello(c, vanillaHello(t))
	if refusal == nil || refusal.Reason != protocol.ReasonCustom {
		t.Fatalf("want custom refusal, got %+v", refusal)
	}
	if !strings.Contains(refusal.Message, "mod framework") {
		t.Fatalf("refusal should name the mod framework: %q", refusal.Message)
	}
}

func TestModdedHelloRefusedWhenReactorDisabled(t *testing.T) {
	h := NewHandshake(testConfig(config.Reactor{Enabled: false}), &fakePlugins{}, "dev", zerolog.Nop())
	c := newTestConn(&fakeSink{})

	refusal := h.OnHello(c, moddedHello(t, 2))
	if refusal == nil || refusal.Reason != protocol.ReasonCustom {
		t.Fatalf("want custom refusal, got %+v", refusal)
	}
}

func TestModdedHandshakeAdvertisesPluginsChunked(t *testing.T) {
	mirrors := make([]*protocol.PluginMirror, 9)
	for i := range mirrors {
		mirrors[i] = &protocol.PluginMirror{ID: "plugin", Version: "1.0.0", Side: protocol.SideServerside}
	}
	h := NewHandshake(testConfig(config.Reactor{Enabled: true, AllowNormalClients: true, AllowExtraMods: true}), &fakePlugins{mirrors: mirrors}, "dev", zerolog.Nop())
	sink := &fakeSink{}
	c := newTestConn(sink)

	if refusal := h.OnHello(c, moddedHello(t, 1)); refusal != nil {
		t.Fatalf("modded hello refused: %+v", refusal)
	}
	if c.State() != clients.StateModsAwaited {
		t.Fatalf("state = %v, want mods awaited", c.State())
	}

	sent := sink.reliableChildren(t)
	if len(sent) == 0 {
		t.Fatal("no handshake traffic sent")
	}
	ack, ok := sent[0][0].(*protocol.ReactorHandshake)
	if !ok {
		t.Fatalf("first message is %T, want handshake ack", sent[0][0])
	}
	if ack.PluginCount != 9 {
		t.Fatalf("advertised %d plugins, want 9", ack.PluginCount)
	}

	// Nine mirrors travel as chunks of at most four.
	var chunks [][]protocol.Message
	for _, children := range sent[1:] {
		chunks = append(chunks, children)
	}
	if len(chunks) != 3 {
		t.Fatalf("mirror chunks = %d, want 3", len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk) > 4 {
			t.Fatalf("chunk %d carries %d mirrors, cap is 4", i, len(chunk))
		}
	}
}

func TestModDeclarationsCompleteHandshake(t *testing.T) {
	h := NewHandshake(testConfig(config.Reactor{Enabled: true, AllowNormalClients: true, AllowExtraMods: true}), &fakePlugins{}, "dev", zerolog.Nop())
	c := newTestConn(&fakeSink{})

	if refusal := h.OnHello(c, moddedHello(t, 2)); refusal != nil {
		t.Fatalf("hello refused: %+v", refusal)
	}

	h.OnModDeclaration(c, declare("mod.a", "1.0.0"))
	if c.State() != clients.StateModsAwaited {
		t.Fatal("one of two mods should not complete the handshake")
	}
	h.OnModDeclaration(c, declare("mod.b", "1.0.0"))
	if c.State() != clients.StateReady {
		t.Fatal("all declared mods received, state should be ready")
	}

	// Excess declarations are silently discarded.
	h.OnModDeclaration(c, declare("mod.c", "1.0.0"))
	if c.ModCount() != 2 {
		t.Fatalf("mod count = %d, want 2", c.ModCount())
	}
}

func TestZeroModCountIsImmediatelyReady(t *testing.T) {
	h := NewHandshake(testConfig(config.Reactor{Enabled: true, AllowNormalClients: true, AllowExtraMods: true}), &fakePlugins{}, "dev", zerolog.Nop())
	c := newTestConn(&fakeSink{})

	if refusal := h.OnHello(c, moddedHello(t, 0)); refusal != nil {
		t.Fatalf("hello refused: %+v", refusal)
	}
	if c.State() != clients.StateReady {
		t.Fatalf("state = %v, want ready", c.State())
	}
}
