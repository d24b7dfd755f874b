package reactor

import (
	"fmt"

	"github.com/ILikePlayingGames/Hindenburg/protocol"
	"github.com/ILikePlayingGames/Hindenburg/server/clients"
)

// ValidateJoin enforces the mod policy when a connection asks to join a
// room whose host may be nil. A nil return admits the join.
func (h *Handshake) ValidateJoin(c *clients.Connection, host *clients.Connection) *Refusal {
	if c.UsesReactor {
		if c.State() != clients.StateReady || c.ModCount() < c.DeclaredMods {
			return custom("The server hasn't received all your mods yet, please try again")
		}
	}

	if h.cfg.Reactor.Enabled {
		if r := h.checkModTable(c); r != nil {
			return r
		}
		if h.cfg.Reactor.RequireHostMods && host != nil && host.ID() != c.ID() {
			if r := h.checkHostMods(c, host); r != nil {
				return r
			}
		}
	}
	return nil
}

func (h *Handshake) checkModTable(c *clients.Connection) *Refusal {
	table := h.cfg.Reactor.Mods
	for id, policy := range table {
		mod, has := c.Mod(id)
		if !has {
			if policy.Banned || policy.Optional {
				continue
			}
			version := policy.Version
			if version == "" {
				version = "any"
			}
			return custom(fmt.Sprintf("Missing required mod: %s (%s)", id, version))
		}
		if policy.Banned {
			return custom(fmt.Sprintf("Banned mod: %s", id))
		}
		if !policy.VersionAllows(mod.Version) {
			return custom(fmt.Sprintf("Bad mod version: %s@%s, needs %s", id, mod.Version, policy.Version))
		}
	}

	if !h.cfg.Reactor.AllowExtraMods {
		for _, mod := range c.Mods() {
			if _, known := table[mod.ID]; !known {
				return custom(fmt.Sprintf("Mod not allowed: %s", mod.ID))
			}
		}
	}
	return nil
}

// checkHostMods requires the joiner and the room host to carry matching
// non-client-side mod sets. Client-side-only mods are exempt when
// blockClientSideOnly is set.
func (h *Handshake) checkHostMods(c *clients.Connection, host *clients.Connection) *Refusal {
	skip := func(m *clients.ModInfo) bool {
		return m.Side == protocol.SideClientside && h.cfg.Reactor.BlockClientSideOnly
	}

	for _, hostMod := range host.Mods() {
		if skip(hostMod) {
			continue
		}
		mod, has := c.Mod(hostMod.ID)
		if !has {
			return custom(fmt.Sprintf("Missing mod required by the host: %s (%s)", hostMod.ID, hostMod.Version))
		}
		if mod.Version != hostMod.Version {
			return custom(fmt.Sprintf("Mod version mismatch with the host: %s@%s, host has %s", hostMod.ID, mod.Version, hostMod.Version))
		}
	}

	for _, mod := range c.Mods() {
		if skip(mod) {
			continue
		}
		if _, has := host.Mod(mod.ID); !has {
			return custom(fmt.Sprintf("Mod not held by the host: %s", mod.ID))
		}
	}
	return nil
}
