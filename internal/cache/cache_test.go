package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"arr/internal/errors"
	"arr/internal/identity"
	"arr/internal/logging"
	"arr/internal/probe"
)

func writeManifest(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestProbeMemoizesByMtime(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "Foo.dll", `{"name": "Foo", "version": "1.0.0.0"}`)

	c := NewResolutionCache(logging.Nop())
	prober := probe.NewManifestProber()

	r1, err := c.Probe(path, prober)
	if err != nil {
		t.Fatalf("first Probe failed: %v", err)
	}
	if c.ProbeCount() != 1 {
		t.Errorf("ProbeCount = %d, want 1", c.ProbeCount())
	}
	if !c.Dirty() {
		t.Error("cache should be dirty after a real probe")
	}

	r2, err := c.Probe(path, prober)
	if err != nil {
		t.Fatalf("second Probe failed: %v", err)
	}
	if c.ProbeCount() != 1 {
		t.Errorf("ProbeCount = %d after cached lookup, want 1", c.ProbeCount())
	}
	if r1 != r2 {
		t.Error("cached lookup should return the same result value")
	}
}

func TestProbeReprobesOnMtimeChange(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "Foo.dll", `{"name": "Foo", "version": "1.0.0.0"}`)

	c := NewResolutionCache(logging.Nop())
	prober := probe.NewManifestProber()

	if _, err := c.Probe(path, prober); err != nil {
		t.Fatalf("Probe failed: %v", err)
	}

	writeManifest(t, dir, "Foo.dll", `{"name": "Foo", "version": "2.0.0.0"}`)
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	r, err := c.Probe(path, prober)
	if err != nil {
		t.Fatalf("reprobe failed: %v", err)
	}
	if r.Identity.Version != (identity.Version{Major: 2, Minor: 0, Build: 0, Revision: 0}) {
		t.Errorf("reprobe Version = %v, want 2.0.0.0", r.Identity.Version)
	}
	if c.ProbeCount() != 2 {
		t.Errorf("ProbeCount = %d, want 2", c.ProbeCount())
	}
}

func TestStateFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	pathA := writeManifest(t, dir, "A.dll", `{"name": "A", "version": "1.0.0.0"}`)
	pathB := writeManifest(t, dir, "B.dll", `{"name": "B", "version": "2.0.0.0", "references": ["A, Version=1.0.0.0"]}`)

	c := NewResolutionCache(logging.Nop())
	prober := probe.NewManifestProber()
	for _, p := range []string{pathA, pathB} {
		if _, err := c.Probe(p, prober); err != nil {
			t.Fatalf("Probe(%s): %v", p, err)
		}
	}

	stateFile := filepath.Join(dir, "arr.cache")
	if err := c.Flush(stateFile); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if c.Dirty() {
		t.Error("Flush should clear the dirty flag")
	}

	c2 := NewResolutionCache(logging.Nop())
	if err := c2.Load(stateFile); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c2.Len() != 2 {
		t.Fatalf("Len = %d after Load, want 2", c2.Len())
	}
	if c2.Dirty() {
		t.Error("freshly loaded cache should not be dirty")
	}

	// Unchanged mtimes: no reprobes.
	if _, err := c2.Probe(pathA, prober); err != nil {
		t.Fatalf("Probe after Load: %v", err)
	}
	if _, err := c2.Probe(pathB, prober); err != nil {
		t.Fatalf("Probe after Load: %v", err)
	}
	if c2.ProbeCount() != 0 {
		t.Errorf("ProbeCount = %d after warm Load, want 0", c2.ProbeCount())
	}
	if c2.Dirty() {
		t.Error("warm lookups must not mark the cache dirty")
	}
}

func TestStateFileSerializeDeterministic(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "A.dll", `{"name": "A", "version": "1.0.0.0"}`)

	c := NewResolutionCache(logging.Nop())
	if _, err := c.Probe(path, probe.NewManifestProber()); err != nil {
		t.Fatalf("Probe: %v", err)
	}

	f1 := filepath.Join(dir, "one.cache")
	f2 := filepath.Join(dir, "two.cache")
	if err := c.Flush(f1); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	c2 := NewResolutionCache(logging.Nop())
	if err := c2.Load(f1); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := c2.Flush(f2); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	b1, _ := os.ReadFile(f1)
	b2, _ := os.ReadFile(f2)
	if !bytes.Equal(b1, b2) {
		t.Error("serialize -> deserialize -> serialize should be byte-identical")
	}
}

func TestLoadCorruptStateFile(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		data []byte
	}{
		{"badmagic", []byte("XXXX\x01\x00\x00\x00\x00")},
		{"badversion", []byte("ARSC\x09\x00\x00\x00\x00")},
		{"truncated", []byte("ARSC\x01\x05\x00\x00\x00")},
		{"empty", []byte{}},
	}
	for _, tt := range tests {
		path := filepath.Join(dir, tt.name)
		if err := os.WriteFile(path, tt.data, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		c := NewResolutionCache(logging.Nop())
		err := c.Load(path)
		if err == nil {
			t.Errorf("Load(%s) should fail", tt.name)
			continue
		}
		if errors.CodeOf(err) != errors.CacheUnreadable {
			t.Errorf("Load(%s) code = %v, want CacheUnreadable", tt.name, errors.CodeOf(err))
		}
	}
}

func TestLoadMissingStateFile(t *testing.T) {
	c := NewResolutionCache(logging.Nop())
	err := c.Load(filepath.Join(t.TempDir(), "absent.cache"))
	if !os.IsNotExist(err) {
		t.Errorf("Load of absent file should surface os.IsNotExist, got %v", err)
	}
}

func TestFsMemos(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "b.dll", `{}`)
	writeManifest(t, dir, "A.dll", `{}`)

	c := NewResolutionCache(logging.Nop())
	names := c.ListDir(dir)
	if len(names) != 2 || names[0] != "A.dll" || names[1] != "b.dll" {
		t.Errorf("ListDir = %v, want case-insensitive sorted", names)
	}
	if !c.FileExists(filepath.Join(dir, "A.dll")) {
		t.Error("FileExists should find A.dll")
	}
	if c.FileExists(filepath.Join(dir, "zzz.dll")) {
		t.Error("FileExists should miss zzz.dll")
	}

	// Memoized: a file added after the first listing stays invisible
	// until the memos reset.
	writeManifest(t, dir, "c.dll", `{}`)
	if got := c.ListDir(dir); len(got) != 2 {
		t.Errorf("memoized ListDir = %v, want 2 entries", got)
	}
	c.ResetMemos()
	if got := c.ListDir(dir); len(got) != 3 {
		t.Errorf("ListDir after reset = %v, want 3 entries", got)
	}
}

func TestVerify(t *testing.T) {
	dir := t.TempDir()
	fresh := writeManifest(t, dir, "Fresh.dll", `{"name": "Fresh", "version": "1.0.0.0"}`)
	gone := writeManifest(t, dir, "Gone.dll", `{"name": "Gone", "version": "1.0.0.0"}`)
	drift := writeManifest(t, dir, "Drift.dll", `{"name": "Drift", "version": "1.0.0.0"}`)

	c := NewResolutionCache(logging.Nop())
	prober := probe.NewManifestProber()
	for _, p := range []string{fresh, gone, drift} {
		if _, err := c.Probe(p, prober); err != nil {
			t.Fatalf("Probe(%s): %v", p, err)
		}
	}

	if err := os.Remove(gone); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	// Rewrite with the same mtime: only the digest can catch this.
	info, _ := os.Stat(drift)
	if err := os.WriteFile(drift, []byte(`{"name": "Drift", "version": "9.0.0.0"}`), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if err := os.Chtimes(drift, info.ModTime(), info.ModTime()); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	byPath := map[string]VerifyStatus{}
	for _, e := range c.Verify() {
		byPath[filepath.Base(e.Path)] = e.Status
	}
	if byPath["Fresh.dll"] != VerifyFresh {
		t.Errorf("Fresh.dll = %v, want fresh", byPath["Fresh.dll"])
	}
	if byPath["Gone.dll"] != VerifyMissing {
		t.Errorf("Gone.dll = %v, want missing", byPath["Gone.dll"])
	}
	if byPath["Drift.dll"] != VerifyContentDrift {
		t.Errorf("Drift.dll = %v, want content-drift", byPath["Drift.dll"])
	}
}
