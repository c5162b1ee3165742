package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestResolveCommand(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "Foo.dll", `{"name": "Foo", "version": "1.0.0.0"}`)
	cfgPath := writeFixture(t, dir, "arr.json", fmt.Sprintf(`{
  "primaryAssemblies": [{"identity": "Foo, Version=1.0.0.0"}],
  "searchPaths": [%q]
}`, dir))
	reportPath := filepath.Join(dir, "report.yaml")

	out, err := runCommand(t, "resolve", "--config", cfgPath, "--report", reportPath, "--silent")
	if err != nil {
		t.Fatalf("resolve failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "resolved 1 primary") {
		t.Errorf("output = %q", out)
	}

	data, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	if !strings.Contains(string(data), "Foo.dll") {
		t.Errorf("report content:\n%s", data)
	}
}

func TestResolveCommandMissingConfig(t *testing.T) {
	_, err := runCommand(t, "resolve", "--config", filepath.Join(t.TempDir(), "absent.json"))
	if err == nil {
		t.Fatal("resolve with a missing config should fail")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, "arr") {
		t.Errorf("output = %q", out)
	}
}
