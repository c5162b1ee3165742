// Package probe extracts assembly metadata from files on disk.
//
// The on-disk container is a JSON assembly manifest carrying the fusion
// identity, the referenced fusion names, the runtime version, the target
// architecture and the scatter-file list. Native PE/COFF images are
// recognized by their MZ header and rejected as bad images; a native
// reader can be plugged in through the Prober interface.
package probe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"arr/internal/errors"
	"arr/internal/identity"
)

// Result holds everything the probe learns about one assembly file.
type Result struct {
	Identity       identity.Identity   `json:"identity"`
	References     []identity.Identity `json:"references,omitempty"`
	ScatterFiles   []string            `json:"scatterFiles,omitempty"`
	RuntimeVersion string              `json:"runtimeVersion,omitempty"`
	FrameworkName  string              `json:"frameworkName,omitempty"`
	FileVersion    identity.Version    `json:"fileVersion"`
	IsWinMD        bool                `json:"isWinmd,omitempty"`
}

// Prober reads assembly metadata from a path. Implementations must be
// pure functions of the file content; the persistent cache relies on
// that to memoize results by path and mtime.
type Prober interface {
	Probe(path string) (*Result, error)
}

// manifest is the wire shape of the JSON assembly manifest.
type manifest struct {
	Name           string   `json:"name"`
	Version        string   `json:"version"`
	Culture        string   `json:"culture"`
	PublicKeyToken string   `json:"publicKeyToken"`
	Architecture   string   `json:"architecture"`
	RuntimeVersion string   `json:"runtimeVersion"`
	TargetFramework string  `json:"targetFramework"`
	FileVersion    string   `json:"fileVersion"`
	WinMD          bool     `json:"winmd"`
	References     []string `json:"references"`
	ScatterFiles   []string `json:"scatterFiles"`
}

// ManifestProber reads JSON assembly manifests.
type ManifestProber struct{}

// NewManifestProber returns the default prober.
func NewManifestProber() *ManifestProber {
	return &ManifestProber{}
}

// DefaultRuntimeVersion is assumed when a manifest states none.
const DefaultRuntimeVersion = "v2.0.50727"

// Probe reads and decodes the manifest at path. It returns an IoFailure
// error for filesystem problems and a BadImage error for anything the
// decoder rejects.
func (p *ManifestProber) Probe(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.IoFailure, fmt.Sprintf("cannot read %s", path), err)
	}
	return Decode(path, data)
}

// Decode parses manifest bytes already read from path.
func Decode(path string, data []byte) (*Result, error) {
	if len(data) >= 2 && data[0] == 'M' && data[1] == 'Z' {
		return nil, errors.Newf(errors.BadImage, "%s: native PE image, no manifest reader registered", path)
	}
	var m manifest
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, errors.New(errors.BadImage, fmt.Sprintf("%s: malformed assembly manifest", path), err)
	}
	if m.Name == "" {
		return nil, errors.Newf(errors.BadImage, "%s: manifest has no assembly name", path)
	}

	version := identity.Version{}
	if m.Version != "" {
		v, err := identity.ParseVersion(m.Version)
		if err != nil {
			return nil, errors.New(errors.BadImage, fmt.Sprintf("%s: bad assembly version", path), err)
		}
		version = v
	}
	id := identity.New(m.Name, version, m.Culture, m.PublicKeyToken, identity.ParseArch(m.Architecture))

	fileVersion := version
	if m.FileVersion != "" {
		fv, err := identity.ParseVersion(m.FileVersion)
		if err != nil {
			return nil, errors.New(errors.BadImage, fmt.Sprintf("%s: bad file version", path), err)
		}
		fileVersion = fv
	}

	refs := make([]identity.Identity, 0, len(m.References))
	for _, r := range m.References {
		ref, err := identity.Parse(r)
		if err != nil {
			return nil, errors.New(errors.BadImage, fmt.Sprintf("%s: bad reference", path), err)
		}
		refs = append(refs, ref)
	}
	identity.SortIdentities(refs)

	runtime := m.RuntimeVersion
	if runtime == "" {
		runtime = DefaultRuntimeVersion
	}

	return &Result{
		Identity:       id,
		References:     refs,
		ScatterFiles:   append([]string(nil), m.ScatterFiles...),
		RuntimeVersion: runtime,
		FrameworkName:  m.TargetFramework,
		FileVersion:    fileVersion,
		IsWinMD:        m.WinMD,
	}, nil
}

// Encode renders a Result back into manifest bytes that Decode reads.
// The cache state file does not use it; it stores Results as plain JSON.
func Encode(r *Result) ([]byte, error) {
	m := manifest{
		Name:            r.Identity.Name,
		Culture:         r.Identity.Culture,
		PublicKeyToken:  r.Identity.PublicKeyToken,
		Architecture:    string(r.Identity.Arch),
		RuntimeVersion:  r.RuntimeVersion,
		TargetFramework: r.FrameworkName,
		WinMD:           r.IsWinMD,
		ScatterFiles:    r.ScatterFiles,
	}
	if r.Identity.HasVersion {
		m.Version = r.Identity.Version.String()
	}
	if !r.FileVersion.IsZero() || r.Identity.HasVersion {
		m.FileVersion = r.FileVersion.String()
	}
	for _, ref := range r.References {
		m.References = append(m.References, ref.Fusion())
	}
	return json.MarshalIndent(&m, "", "  ")
}
