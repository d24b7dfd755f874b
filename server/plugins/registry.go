// Package plugins is the in-core face of the external plugin loader. A
// plugin here is its manifest: the loader collaborator owns the code.
package plugins

import (
	"fmt"
	"os"
	"sync"

	"github.com/ILikePlayingGames/Hindenburg/protocol"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Manifest is the JSON descriptor shipped next to a plugin.
type Manifest struct {
	ID           string `json:"id"`
	Version      string `json:"version"`
	MirrorsAsMod bool   `json:"mirrorsAsMod"`
	// Side is "clientside", "serverside" or "both"; only meaningful with
	// MirrorsAsMod.
	Side string `json:"side"`
}

// Plugin is one loaded plugin record.
type Plugin struct {
	Instance string // per-load instance tag
	Manifest Manifest
	Path     string
}

// Registry tracks loaded plugins.
type Registry struct {
	mu      sync.Mutex
	plugins map[string]*Plugin // manifest id -> plugin
	logger  zerolog.Logger
}

func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		plugins: make(map[string]*Plugin),
		logger:  logger.With().Str("com", "plugins").Logger(),
	}
}

// Load reads a plugin manifest and registers it.
func (r *Registry) Load(path string) (*Plugin, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plugin manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse plugin manifest: %w", err)
	}
	if m.ID == "" {
		return nil, fmt.Errorf("plugin manifest %s has no id", path)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, loaded := r.plugins[m.ID]; loaded {
		return nil, fmt.Errorf("plugin %s is already loaded", m.ID)
	}
	p := &Plugin{Instance: uuid.New().String(), Manifest: m, Path: path}
	r.plugins[m.ID] = p
	r.logger.Info().Str("plugin", m.ID).Str("version", m.Version).Msg("plugin loaded")
	return p, nil
}

// Unload forgets a plugin by manifest id.
func (r *Registry) Unload(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, loaded := r.plugins[id]; !loaded {
		return fmt.Errorf("plugin %s is not loaded", id)
	}
	delete(r.plugins, id)
	r.logger.Info().Str("plugin", id).Msg("plugin unloaded")
	return nil
}

// List snapshots the loaded plugins.
func (r *Registry) List() []*Plugin {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Plugin, 0, len(r.plugins))
	for _, p := range r.plugins {
		out = append(out, p)
	}
	return out
}

// MirroredMods renders the plugins that mirror as mods for the handshake
// advertisement.
func (r *Registry) MirroredMods() []*protocol.PluginMirror {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*protocol.PluginMirror
	for _, p := range r.plugins {
		if !p.Manifest.MirrorsAsMod {
			continue
		}
		side := protocol.SideBoth
		switch p.Manifest.Side {
		case "clientside":
			side = protocol.SideClientside
		case "serverside":
			side = protocol.SideServerside
		}
		out = append(out, &protocol.PluginMirror{
			ID:      p.Manifest.ID,
			Version: p.Manifest.Version,
			Side:    side,
		})
	}
	return out
}
