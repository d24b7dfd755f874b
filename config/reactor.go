package config

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// Reactor is the mod-framework policy node. It accepts three YAML shapes:
// `false` (handshake refused), `true` (handshake required), or a mapping
// with the fields below.
type Reactor struct {
	Enabled bool

	AllowNormalClients  bool                 `yaml:"allowNormalClients"`
	RequireHostMods     bool                 `yaml:"requireHostMods"`
	BlockClientSideOnly bool                 `yaml:"blockClientSideOnly"`
	AllowExtraMods      bool                 `yaml:"allowExtraMods"`
	Mods                map[string]ModPolicy `yaml:"mods"`
}

func (r *Reactor) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var enabled bool
		if err := value.Decode(&enabled); err != nil {
			return fmt.Errorf("reactor: %w", err)
		}
		// Bare `true` means modded clients only.
		*r = Reactor{Enabled: enabled, AllowNormalClients: !enabled, AllowExtraMods: true}
		return nil
	}
	type plain struct {
		AllowNormalClients  *bool                `yaml:"allowNormalClients"`
		RequireHostMods     bool                 `yaml:"requireHostMods"`
		BlockClientSideOnly bool                 `yaml:"blockClientSideOnly"`
		AllowExtraMods      *bool                `yaml:"allowExtraMods"`
		Mods                map[string]ModPolicy `yaml:"mods"`
	}
	var p plain
	if err := value.Decode(&p); err != nil {
		return fmt.Errorf("reactor: %w", err)
	}
	*r = Reactor{
		Enabled:             true,
		AllowNormalClients:  p.AllowNormalClients == nil || *p.AllowNormalClients,
		RequireHostMods:     p.RequireHostMods,
		BlockClientSideOnly: p.BlockClientSideOnly,
		AllowExtraMods:      p.AllowExtraMods == nil || *p.AllowExtraMods,
		Mods:                p.Mods,
	}
	return nil
}

// Validate checks every version range in the mod table.
func (r *Reactor) Validate() error {
	for id, policy := range r.Mods {
		if policy.Version == "" {
			continue
		}
		if _, err := semver.NewConstraint(policy.Version); err != nil {
			return fmt.Errorf("reactor.mods.%s.version: %w", id, err)
		}
	}
	return nil
}

// ModPolicy is one entry of the server-wide mod table. `true` means the mod
// is required at any version, `false` means banned; a mapping refines that
// with a semver range and flags.
type ModPolicy struct {
	Banned   bool   `yaml:"banned"`
	Optional bool   `yaml:"optional"`
	Version  string `yaml:"version"`
}

func (p *ModPolicy) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var allowed bool
		if err := value.Decode(&allowed); err != nil {
			return fmt.Errorf("mod policy: %w", err)
		}
		*p = ModPolicy{Banned: !allowed}
		return nil
	}
	type plain ModPolicy
	var v plain
	if err := value.Decode(&v); err != nil {
		return fmt.Errorf("mod policy: %w", err)
	}
	*p = ModPolicy(v)
	return nil
}

// VersionAllows reports whether a declared mod version satisfies the
// policy's range. An empty range allows any version.
func (p ModPolicy) VersionAllows(version string) bool {
	if p.Version == "" {
		return true
	}
	constraint, err := semver.NewConstraint(p.Version)
	if err != nil {
		return false
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	return constraint.Check(v)
}
