package locate

import (
	"os"
	"path/filepath"
	"testing"

	"arr/internal/cache"
	"arr/internal/identity"
	"arr/internal/logging"
)

func TestParseSearchPath(t *testing.T) {
	tests := []struct {
		in      string
		want    TokenKind
		wantErr bool
	}{
		{"/usr/lib/assemblies", TokenDirectory, false},
		{"{HintPathFromItem}", TokenHintPath, false},
		{"{CandidateAssemblyFiles}", TokenCandidateFiles, false},
		{"{Registry:Software\\Test,v4.0,AssemblyFoldersEx}", TokenRegistry, false},
		{"{AssemblyFolders}", TokenAssemblyFolders, false},
		{"{GAC}", TokenGac, false},
		{"{RawFileName}", TokenRawFileName, false},
		{"{TargetFrameworkDirectory}", TokenTargetFrameworkDirectory, false},
		{"{Bogus}", "", true},
		{"{Registry:only,two}", "", true},
		{"", "", true},
		{"{Unclosed", "", true},
	}
	for _, tt := range tests {
		sp, err := ParseSearchPath(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSearchPath(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && sp.Kind != tt.want {
			t.Errorf("ParseSearchPath(%q) kind = %v, want %v", tt.in, sp.Kind, tt.want)
		}
	}
}

func TestParseRegistryToken(t *testing.T) {
	sp, err := ParseSearchPath("{Registry:Software\\Test,v4.0,AssemblyFoldersEx}")
	if err != nil {
		t.Fatalf("ParseSearchPath failed: %v", err)
	}
	if sp.RegistryBase != "Software\\Test" || sp.RegistryVersion != "v4.0" || sp.RegistrySuffix != "AssemblyFoldersEx" {
		t.Errorf("registry fields = %q/%q/%q", sp.RegistryBase, sp.RegistryVersion, sp.RegistrySuffix)
	}
}

func newTestLocator(t *testing.T, rawPaths []string) (*Locator, string) {
	t.Helper()
	dir := t.TempDir()
	paths, err := ParseSearchPaths(rawPaths)
	if err != nil {
		t.Fatalf("ParseSearchPaths: %v", err)
	}
	return &Locator{
		SearchPaths: paths,
		Extensions:  []string{".winmd", ".dll", ".exe"},
		Registry:    EmptyRegistry{},
		Gac:         NullGac{},
		FS:          cache.NewResolutionCache(logging.Nop()),
	}, dir
}

func TestDirectoryCandidatesExtensionOrder(t *testing.T) {
	l, dir := newTestLocator(t, nil)
	sp, _ := ParseSearchPath(dir)
	l.SearchPaths = []SearchPath{sp}

	cands := l.Candidates(Request{Identity: identity.MustParse("Foo")})
	if len(cands) != 3 {
		t.Fatalf("candidates = %d, want 3 (one per extension)", len(cands))
	}
	wantOrder := []string{"Foo.winmd", "Foo.dll", "Foo.exe"}
	for i, c := range cands {
		if filepath.Base(c.Path) != wantOrder[i] {
			t.Errorf("candidate %d = %s, want %s", i, filepath.Base(c.Path), wantOrder[i])
		}
		if c.Source != SourceDirectory {
			t.Errorf("candidate %d source = %v", i, c.Source)
		}
	}
}

func TestHintPathCandidate(t *testing.T) {
	l, _ := newTestLocator(t, []string{"{HintPathFromItem}"})
	cands := l.Candidates(Request{
		Identity: identity.MustParse("Foo"),
		HintPath: "/lib/Foo.dll",
	})
	if len(cands) != 1 || cands[0].Path != "/lib/Foo.dll" || cands[0].Source != SourceHintPath {
		t.Errorf("candidates = %+v", cands)
	}
	// No hint attribute, no candidate.
	if got := l.Candidates(Request{Identity: identity.MustParse("Foo")}); len(got) != 0 {
		t.Errorf("hintless candidates = %+v, want none", got)
	}
}

func TestCandidateFilesFiltering(t *testing.T) {
	l, _ := newTestLocator(t, []string{"{CandidateAssemblyFiles}"})
	l.CandidateFiles = []string{
		"/build/foo.dll",
		"/build/Foo.exe",
		"/build/Foo.txt",
		"/build/Other.dll",
	}
	cands := l.Candidates(Request{Identity: identity.MustParse("Foo")})
	if len(cands) != 2 {
		t.Fatalf("candidates = %+v, want foo.dll and Foo.exe", cands)
	}
	if cands[0].Path != "/build/foo.dll" || cands[1].Path != "/build/Foo.exe" {
		t.Errorf("candidates = %+v", cands)
	}
}

func TestSearchPathOrderPreserved(t *testing.T) {
	l, dir := newTestLocator(t, nil)
	other := t.TempDir()
	paths, _ := ParseSearchPaths([]string{dir, other})
	l.SearchPaths = paths

	cands := l.Candidates(Request{Identity: identity.MustParse("Foo")})
	if len(cands) != 6 {
		t.Fatalf("candidates = %d, want 6", len(cands))
	}
	for i, c := range cands {
		wantIdx := 0
		if i >= 3 {
			wantIdx = 1
		}
		if c.SearchPathIndex != wantIdx {
			t.Errorf("candidate %d index = %d, want %d", i, c.SearchPathIndex, wantIdx)
		}
	}
}

func TestRegistryCandidates(t *testing.T) {
	l, _ := newTestLocator(t, []string{`{Registry:Software\Vendor,v4.0,AssemblyFoldersEx}`})
	l.Registry = &MapRegistry{Values: map[string]string{
		`Software\Vendor\v4.0\AssemblyFoldersEx\ControlVendor`: "/opt/vendor/controls",
		`Software\Vendor\v4.0\AssemblyFoldersEx\Widgets`:       "/opt/vendor/widgets",
	}}

	cands := l.Candidates(Request{Identity: identity.MustParse("Foo")})
	if len(cands) != 6 {
		t.Fatalf("candidates = %d, want 2 dirs x 3 extensions", len(cands))
	}
	if cands[0].Path != filepath.Join("/opt/vendor/controls", "Foo.winmd") {
		t.Errorf("first candidate = %s", cands[0].Path)
	}
	if cands[0].Source != SourceRegistry {
		t.Errorf("source = %v, want Registry", cands[0].Source)
	}
}

func TestRegistryMissingSubtree(t *testing.T) {
	l, _ := newTestLocator(t, []string{`{Registry:Software\Vendor,v4.0,AssemblyFoldersEx}`})
	if cands := l.Candidates(Request{Identity: identity.MustParse("Foo")}); len(cands) != 0 {
		t.Errorf("candidates = %+v, want none for missing registry subtree", cands)
	}
}

func TestGacCandidates(t *testing.T) {
	root := t.TempDir()
	entryDir := filepath.Join(root, "Foo", "2.0.0.0_neutral_aaaaaaaaaaaaaaaa")
	if err := os.MkdirAll(entryDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(entryDir, "Foo.dll"), []byte(`{"name":"Foo","version":"2.0.0.0"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	l, _ := newTestLocator(t, []string{"{GAC}"})
	l.Gac = &DirectoryGac{Root: root}

	hit := l.Candidates(Request{Identity: identity.MustParse("Foo, Version=2.0.0.0, PublicKeyToken=aaaaaaaaaaaaaaaa")})
	if len(hit) != 1 || hit[0].PreRejection != "" || hit[0].Source != SourceGac {
		t.Fatalf("gac hit = %+v", hit)
	}

	miss := l.Candidates(Request{Identity: identity.MustParse("Bar")})
	if len(miss) != 1 || miss[0].PreRejection != RejectNotInGac {
		t.Fatalf("gac miss = %+v, want NotInGac", miss)
	}
}

func TestDirectoryGacHighestVersionWins(t *testing.T) {
	root := t.TempDir()
	for _, v := range []string{"1.0.0.0", "3.0.0.0", "2.0.0.0"} {
		d := filepath.Join(root, "Lib", v+"_neutral_aaaaaaaaaaaaaaaa")
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(d, "Lib.dll"), []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	g := &DirectoryGac{Root: root}
	_, found, ok := g.Lookup(identity.MustParse("Lib, PublicKeyToken=aaaaaaaaaaaaaaaa"))
	if !ok {
		t.Fatal("Lookup should succeed")
	}
	if found.Version != (identity.Version{Major: 3, Minor: 0, Build: 0, Revision: 0}) {
		t.Errorf("version = %v, want highest 3.0.0.0", found.Version)
	}

	// A pinned version matches exactly.
	_, found, ok = g.Lookup(identity.MustParse("Lib, Version=2.0.0.0, PublicKeyToken=aaaaaaaaaaaaaaaa"))
	if !ok || found.Version != (identity.Version{Major: 2, Minor: 0, Build: 0, Revision: 0}) {
		t.Errorf("pinned lookup = %v ok=%v", found, ok)
	}
}

func TestRawFileNameCandidate(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "Literal.dll")
	if err := os.WriteFile(real, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	l, _ := newTestLocator(t, []string{"{RawFileName}"})
	hit := l.Candidates(Request{Identity: identity.SimpleName(real)})
	if len(hit) != 1 || hit[0].PreRejection != "" {
		t.Fatalf("raw hit = %+v", hit)
	}

	miss := l.Candidates(Request{Identity: identity.SimpleName(filepath.Join(dir, "Absent.dll"))})
	if len(miss) != 1 || miss[0].PreRejection != RejectNotAFileNameOnDisk {
		t.Fatalf("raw miss = %+v, want NotAFileNameOnDisk", miss)
	}
}

func TestFrameworkDirCandidates(t *testing.T) {
	l, _ := newTestLocator(t, []string{"{TargetFrameworkDirectory}"})
	l.FrameworkDirs = []string{"/fw/v4.8", "/fw/v4.8/extensions"}
	cands := l.Candidates(Request{Identity: identity.MustParse("System.Data")})
	if len(cands) != 6 {
		t.Fatalf("candidates = %d, want 6", len(cands))
	}
	if cands[0].Source != SourceFrameworkDir {
		t.Errorf("source = %v", cands[0].Source)
	}
}

func TestMatchModeSelection(t *testing.T) {
	strong := Request{Identity: identity.MustParse("Lib, Version=1.0.0.0, PublicKeyToken=aaaaaaaaaaaaaaaa")}
	if strong.MatchMode() != identity.Strict {
		t.Error("strong-named request should match strictly")
	}
	pinned := Request{Identity: identity.MustParse("Lib, Version=1.0.0.0"), SpecificVersion: true}
	if pinned.MatchMode() != identity.Strict {
		t.Error("SpecificVersion request should match strictly")
	}
	loose := Request{Identity: identity.MustParse("Lib, Version=1.0.0.0")}
	if loose.MatchMode() != identity.Simple {
		t.Error("weak-named request should match simply")
	}
}

func TestArchCompatible(t *testing.T) {
	tests := []struct {
		probed, target identity.ProcessorArchitecture
		want           bool
	}{
		{identity.ArchMSIL, identity.ArchX86, true},
		{identity.ArchNone, identity.ArchAMD64, true},
		{identity.ArchX86, identity.ArchX86, true},
		{identity.ArchAMD64, identity.ArchX86, false},
		{identity.ArchAMD64, identity.ArchNone, true},
		{identity.ArchAMD64, identity.ArchMSIL, true},
	}
	for _, tt := range tests {
		if got := ArchCompatible(tt.probed, tt.target); got != tt.want {
			t.Errorf("ArchCompatible(%v, %v) = %v, want %v", tt.probed, tt.target, got, tt.want)
		}
	}
}
