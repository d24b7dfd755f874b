package plugins

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ILikePlayingGames/Hindenburg/protocol"
	"github.com/rs/zerolog"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plugin.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestLoadUnload(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	path := writeManifest(t, `{"id":"com.example.plugin","version":"1.2.0","mirrorsAsMod":true,"side":"serverside"}`)

	p, err := r.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Manifest.ID != "com.example.plugin" || p.Instance == "" {
		t.Fatalf("bad plugin record: %+v", p)
	}

	if _, err := r.Load(path); err == nil {
		t.Fatal("double load must fail")
	}

	if err := r.Unload("com.example.plugin"); err != nil {
		t.Fatalf("unload: %v", err)
	}
	if err := r.Unload("com.example.plugin"); err == nil {
		t.Fatal("unloading an absent plugin must fail")
	}
}

func TestLoadRejectsBadManifests(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	if _, err := r.Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("missing file must fail")
	}
	if _, err := r.Load(writeManifest(t, "{not json")); err == nil {
		t.Fatal("bad json must fail")
	}
	if _, err := r.Load(writeManifest(t, `{"version":"1.0.0"}`)); err == nil {
		t.Fatal("manifest without id must fail")
	}
}

func TestMirroredMods(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	mirror := writeManifest(t, `{"id":"com.example.mirror","version":"1.0.0","mirrorsAsMod":true,"side":"both"}`)
	quiet := writeManifest(t, `{"id":"com.example.quiet","version":"1.0.0"}`)
	if _, err := r.Load(mirror); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := r.Load(quiet); err != nil {
		t.Fatalf("load: %v", err)
	}

	mods := r.MirroredMods()
	if len(mods) != 1 {
		t.Fatalf("mirrored mods = %d, want 1", len(mods))
	}
	if mods[0].ID != "com.example.mirror" || mods[0].Side != protocol.SideBoth {
		t.Fatalf("bad mirror: %+v", mods[0])
	}
}
