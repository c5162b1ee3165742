package config

import (
	"os"
	"path/filepath"
	"testing"

	"arr/internal/errors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if got := cfg.AllowedAssemblyExtensions; len(got) != 3 || got[0] != ".winmd" || got[1] != ".dll" || got[2] != ".exe" {
		t.Errorf("AllowedAssemblyExtensions = %v", got)
	}
	if got := cfg.AllowedRelatedFileExtensions; len(got) != 2 || got[0] != ".pdb" || got[1] != ".xml" {
		t.Errorf("AllowedRelatedFileExtensions = %v", got)
	}
	if cfg.TargetedRuntimeVersion != "v2.0.50727" {
		t.Errorf("TargetedRuntimeVersion = %q", cfg.TargetedRuntimeVersion)
	}
	if !cfg.FindDependencies {
		t.Error("FindDependencies should default to true")
	}
	if !cfg.CopyLocalDependenciesWhenParentInGac {
		t.Error("CopyLocalDependenciesWhenParentInGac should default to true")
	}
	if cfg.AutoUnify {
		t.Error("AutoUnify should default to false")
	}
	if cfg.WarnOrErrorOnTargetArchitectureMismatch != ArchMismatchWarning {
		t.Errorf("arch mismatch severity = %v", cfg.WarnOrErrorOnTargetArchitectureMismatch)
	}
}

func TestValidate(t *testing.T) {
	base := func() *ResolverConfig {
		cfg := DefaultConfig()
		cfg.PrimaryAssemblies = []PrimaryReference{{Identity: "Foo, Version=1.0.0.0"}}
		return cfg
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*ResolverConfig)
	}{
		{"no primaries", func(c *ResolverConfig) { c.PrimaryAssemblies = nil }},
		{"bad identity", func(c *ResolverConfig) { c.PrimaryAssemblies[0].Identity = "Foo, Version=x" }},
		{"bad arch", func(c *ResolverConfig) { c.TargetProcessorArchitecture = "Sparc" }},
		{"bad severity", func(c *ResolverConfig) { c.WarnOrErrorOnTargetArchitectureMismatch = "Panic" }},
		{"bad runtime", func(c *ResolverConfig) { c.TargetedRuntimeVersion = "vNext" }},
		{"bad extension", func(c *ResolverConfig) { c.AllowedAssemblyExtensions = []string{"dll"} }},
		{"negative workers", func(c *ResolverConfig) { c.ProbeWorkers = -1 }},
	}
	for _, tt := range tests {
		cfg := base()
		tt.mutate(cfg)
		err := cfg.Validate()
		if err == nil {
			t.Errorf("%s: Validate should fail", tt.name)
			continue
		}
		if errors.CodeOf(err) != errors.InvalidParameter {
			t.Errorf("%s: code = %v, want InvalidParameter", tt.name, errors.CodeOf(err))
		}
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "arr.json")
	content := `{
  "primaryAssemblies": [{"identity": "Foo, Version=1.0.0.0", "specificVersion": true}],
  "searchPaths": ["/lib", "{GAC}"],
  "autoUnify": true
}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if len(cfg.PrimaryAssemblies) != 1 || !cfg.PrimaryAssemblies[0].SpecificVersion {
		t.Errorf("PrimaryAssemblies = %+v", cfg.PrimaryAssemblies)
	}
	if !cfg.AutoUnify {
		t.Error("AutoUnify should load as true")
	}
	// Defaults survive partial files.
	if !cfg.FindDependencies {
		t.Error("FindDependencies default lost")
	}
	if len(cfg.AllowedAssemblyExtensions) != 3 {
		t.Errorf("extension defaults lost: %v", cfg.AllowedAssemblyExtensions)
	}
}

func TestLoadConfigMissing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	if err == nil {
		t.Fatal("LoadConfig of missing file should fail")
	}
	if errors.CodeOf(err) != errors.InvalidParameter {
		t.Errorf("code = %v, want InvalidParameter", errors.CodeOf(err))
	}
}
