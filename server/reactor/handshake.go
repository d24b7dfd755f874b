// Package reactor implements the optional client-mod handshake and the
// join-time mod policy.
package reactor

import (
	"github.com/ILikePlayingGames/Hindenburg/config"
	"github.com/ILikePlayingGames/Hindenburg/protocol"
	"github.com/ILikePlayingGames/Hindenburg/server/clients"
	"github.com/rs/zerolog"
)

const (
	serverBrand = "Hindenburg"
	// mirrorChunkSize bounds how many plugin mirrors ride in one reliable
	// message during the handshake.
	mirrorChunkSize = 4
)

// PluginSource exposes the server plugins that mirror as mods.
type PluginSource interface {
	MirroredMods() []*protocol.PluginMirror
}

// Refusal is a handshake or policy verdict that must end the connection.
type Refusal struct {
	Reason  protocol.DisconnectReason
	Message string
}

func custom(message string) *Refusal {
	return &Refusal{Reason: protocol.ReasonCustom, Message: message}
}

// Handshake drives the per-connection mod negotiation:
// New → HelloReceived → (ModsAwaited | Ready) → Ready.
type Handshake struct {
	cfg     *config.Config
	plugins PluginSource
	version string
	logger  zerolog.Logger
}

func NewHandshake(cfg *config.Config, plugins PluginSource, serverVersion string, logger zerolog.Logger) *Handshake {
	return &Handshake{
		cfg:     cfg,
		plugins: plugins,
		version: serverVersion,
		logger:  logger.With().Str("com", "reactor").Logger(),
	}
}

// OnHello applies the handshake rules to a Hello. A nil return means the
// connection proceeds; otherwise the caller must disconnect with the
// refusal.
func (h *Handshake) OnHello(c *clients.Connection, hello *protocol.HelloPacket) *Refusal {
	c.SetState(clients.StateHelloReceived)
	c.Username = hello.Username
	c.Language = hello.Language
	c.ClientVersion = hello.ClientVersion

	if !h.versionAccepted(hello.ClientVersion) {
		return &Refusal{Reason: protocol.ReasonIncorrectVersion}
	}

	if hello.Mod == nil {
		if h.cfg.Reactor.Enabled && !h.cfg.Reactor.AllowNormalClients {
			return custom("This server requires you to have the mod framework installed")
		}
		c.HelloDone = true
		c.SetState(clients.StateReady)
		return nil
	}

	if !h.cfg.Reactor.Enabled {
		return custom("The mod framework is not enabled on this server")
	}

	c.HelloDone = true
	c.UsesReactor = true
	c.DeclaredMods = hello.Mod.ModCount

	mirrors := h.plugins.MirroredMods()
	ack := &protocol.ReactorHandshake{
		Brand:       serverBrand,
		Version:     h.version,
		PluginCount: uint32(len(mirrors)),
	}
	if err := c.SendReliable(ack); err != nil {
		h.logger.Warn().Err(err).Int32("client_id", c.ID()).Msg("handshake ack failed")
	}
	for start := 0; start < len(mirrors); start += mirrorChunkSize {
		end := min(start+mirrorChunkSize, len(mirrors))
		chunk := make([]protocol.Message, 0, end-start)
		for _, m := range mirrors[start:end] {
			chunk = append(chunk, m)
		}
		if err := c.SendReliable(chunk...); err != nil {
			h.logger.Warn().Err(err).Int32("client_id", c.ID()).Msg("plugin mirror send failed")
		}
	}

	if hello.Mod.ModCount == 0 {
		c.SetState(clients.StateReady)
	} else {
		c.SetState(clients.StateModsAwaited)
	}
	return nil
}

// OnModDeclaration records one announced mod. Declarations past the
// declared count are silently discarded; reaching the count completes the
// handshake.
func (h *Handshake) OnModDeclaration(c *clients.Connection, decl *protocol.ModDeclaration) {
	if c.State() != clients.StateModsAwaited {
		return
	}
	done := c.AddMod(&clients.ModInfo{
		NetID:   decl.NetID,
		ID:      decl.ModID,
		Version: decl.Version,
		Side:    decl.Side,
	})
	if done {
		c.SetState(clients.StateReady)
		h.logger.Debug().
			Int32("client_id", c.ID()).
			Uint32("mods", c.ModCount()).
			Msg("mod handshake complete")
	}
}

func (h *Handshake) versionAccepted(v int32) bool {
	for _, s := range h.cfg.Versions {
		allowed, err := protocol.ParseVersionString(s)
		if err != nil {
			continue
		}
		if allowed == v {
			return true
		}
	}
	return false
}
