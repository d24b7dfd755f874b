package reactor

import (
	"strings"
	"testing"

	"github.com/ILikePlayingGames/Hindenburg/config"
	"github.com/ILikePlayingGames/Hindenburg/protocol"
	"github.com/ILikePlayingGames/Hindenburg/server/clients"
	"github.com/rs/zerolog"
)

func readyModdedClient(t *testing.T, h *Handshake, mods ...*protocol.ModDeclaration) *clients.Connection {
	t.Helper()
	c := newTestConn(&fakeSink{})
	if refusal := h.OnHello(c, moddedHello(t, uint32(len(mods)))); refusal != nil {
		t.Fatalf("hello refused: %+v", refusal)
	}
	for _, m := range mods {
		h.OnModDeclaration(c, m)
	}
	if c.State() != clients.StateReady {
		t.Fatalf("client not ready after %d declarations", len(mods))
	}
	return c
}

func policyHandshake(t *testing.T, mods map[string]config.ModPolicy, mutate func(*config.Reactor)) *Handshake {
	t.Helper()
	reactor := config.Reactor{
		Enabled:            true,
		AllowNormalClients: true,
		AllowExtraMods:     true,
		Mods:               mods,
	}
	if mutate != nil {
		mutate(&reactor)
	}
	return NewHandshake(testConfig(reactor), &fakePlugins{}, "dev", zerolog.Nop())
}

func TestJoinRefusedBeforeAllModsArrive(t *testing.T) {
	h := policyHandshake(t, nil, nil)
	c := newTestConn(&fakeSink{})
	if refusal := h.OnHello(c, moddedHello(t, 2)); refusal != nil {
		t.Fatalf("hello refused: %+v", refusal)
	}
	h.OnModDeclaration(c, declare("mod.a", "1.0.0"))

	refusal := h.ValidateJoin(c, nil)
	if refusal == nil || !strings.Contains(refusal.Message, "mods") {
		t.Fatalf("want a missing-mods refusal, got %+v", refusal)
	}
}

func TestMissingRequiredMod(t *testing.T) {
	h := policyHandshake(t, map[string]config.ModPolicy{"modA": {}}, nil)
	c := readyModdedClient(t, h)

	refusal := h.ValidateJoin(c, nil)
	if refusal == nil {
		t.Fatal("joiner without modA must be refused")
	}
	if !strings.Contains(refusal.Message, "modA") || !strings.Contains(refusal.Message, "any") {
		t.Fatalf("refusal must name modA and the any-version requirement: %q", refusal.Message)
	}
}

func TestOptionalModMayBeAbsent(t *testing.T) {
	h := policyHandshake(t, map[string]config.ModPolicy{"modA": {Optional: true}}, nil)
	c := readyModdedClient(t, h)

	if refusal := h.ValidateJoin(c, nil); refusal != nil {
		t.Fatalf("optional mod must not block the join: %+v", refusal)
	}
}

func TestBannedMod(t *testing.T) {
	h := policyHandshake(t, map[string]config.ModPolicy{"modA": {Banned: true}}, nil)

	// Absent banned mod is fine.
	clean := readyModdedClient(t, h)
	if refusal := h.ValidateJoin(clean, nil); refusal != nil {
		t.Fatalf("client without the banned mod refused: %+v", refusal)
	}

	carrying := readyModdedClient(t, h, declare("modA", "1.0.0"))
	refusal := h.ValidateJoin(carrying, nil)
	if refusal == nil || !strings.Contains(refusal.Message, "modA") {
		t.Fatalf("banned mod must refuse the join, got %+v", refusal)
	}
}

func TestModVersionRange(t *testing.T) {
	h := policyHandshake(t, map[string]config.ModPolicy{"modA": {Version: "^2.0"}}, nil)

	ok := readyModdedClient(t, h, declare("modA", "2.3.1"))
	if refusal := h.ValidateJoin(ok, nil); refusal != nil {
		t.Fatalf("in-range version refused: %+v", refusal)
	}

	old := readyModdedClient(t, h, declare("modA", "1.9.0"))
	if refusal := h.ValidateJoin(old, nil); refusal == nil {
		t.Fatal("out-of-range version must be refused")
	}
}

func TestExtraModsPolicy(t *testing.T) {
	h := policyHandshake(t, map[string]config.ModPolicy{"modA": {}}, func(r *config.Reactor) {
		r.AllowExtraMods = false
	})

	extra := readyModdedClient(t, h, declare("modA", "1.0.0"), declare("mod.extra", "0.1.0"))
	refusal := h.ValidateJoin(extra, nil)
	if refusal == nil || !strings.Contains(refusal.Message, "mod.extra") {
		t.Fatalf("undeclared extra mod must refuse the join, got %+v", refusal)
	}

	allowed := policyHandshake(t, map[string]config.ModPolicy{"modA": {}}, nil)
	tolerant := readyModdedClient(t, allowed, declare("modA", "1.0.0"), declare("mod.extra", "0.1.0"))
	if refusal := allowed.ValidateJoin(tolerant, nil); refusal != nil {
		t.Fatalf("extra mods allowed by default: %+v", refusal)
	}
}

func TestRequireHostMods(t *testing.T) {
	h := policyHandshake(t, nil, func(r *config.Reactor) {
		r.RequireHostMods = true
	})

	host := readyModdedClient(t, h, declare("mod.shared", "1.0.0"))

	matching := readyModdedClient(t, h, declare("mod.shared", "1.0.0"))
	if refusal := h.ValidateJoin(matching, host); refusal != nil {
		t.Fatalf("matching mod sets refused: %+v", refusal)
	}

	missing := readyModdedClient(t, h)
	if refusal := h.ValidateJoin(missing, host); refusal == nil {
		t.Fatal("joiner lacking a host mod must be refused")
	}

	mismatched := readyModdedClient(t, h, declare("mod.shared", "2.0.0"))
	if refusal := h.ValidateJoin(mismatched, host); refusal == nil {
		t.Fatal("version mismatch with the host must be refused")
	}

	surplus := readyModdedClient(t, h, declare("mod.shared", "1.0.0"), declare("mod.other", "1.0.0"))
	if refusal := h.ValidateJoin(surplus, host); refusal == nil {
		t.Fatal("joiner mod absent from the host must be refused")
	}
}

func TestRequireHostModsSkipsClientSideWhenBlocked(t *testing.T) {
	h := policyHandshake(t, nil, func(r *config.Reactor) {
		r.RequireHostMods = true
		r.BlockClientSideOnly = true
	})

	host := readyModdedClient(t, h)
	clientSide := &protocol.ModDeclaration{NetID: 9, ModID: "mod.cosmetic", Version: "1.0.0", Side: protocol.SideClientside}
	joiner := readyModdedClient(t, h, clientSide)

	if refusal := h.ValidateJoin(joiner, host); refusal != nil {
		t.Fatalf("client-side-only mod must be skipped: %+v", refusal)
	}
}

func TestVanillaClientStillCheckedAgainstTable(t *testing.T) {
	// A required mod is configured and a vanilla client joins. Vanilla
	// clients still hit the table, so the join is refused.
	h := policyHandshake(t, map[string]config.ModPolicy{"modA": {}}, nil)
	c := newTestConn(&fakeSink{})
	if refusal := h.OnHello(c, vanillaHello(t)); refusal != nil {
		t.Fatalf("hello refused: %+v", refusal)
	}
	refusal := h.ValidateJoin(c, nil)
	if refusal == nil || !strings.Contains(refusal.Message, "modA") {
		t.Fatalf("vanilla client must still satisfy the required-mod table, got %+v", refusal)
	}
}
