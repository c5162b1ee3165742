// Package locate enumerates candidate files for a requested assembly
// identity, walking the configured search paths strictly in order.
package locate

import (
	"path/filepath"
	"strings"

	"arr/internal/cache"
	"arr/internal/identity"
)

// SourceTag records which search-path form produced a file location.
type SourceTag string

const (
	SourceHintPath      SourceTag = "HintPath"
	SourceCandidateFile SourceTag = "CandidateFile"
	SourceDirectory     SourceTag = "Directory"
	SourceRegistry      SourceTag = "Registry"
	SourceGac           SourceTag = "Gac"
	SourceRawFile       SourceTag = "RawFile"
	SourceFrameworkDir  SourceTag = "FrameworkDir"
)

// RejectionReason explains why a considered location was not selected.
type RejectionReason string

const (
	RejectFileNotFound          RejectionReason = "FileNotFound"
	RejectFusionNamesDidNotMatch RejectionReason = "FusionNamesDidNotMatch"
	RejectTargetHadNoFusionName RejectionReason = "TargetHadNoFusionName"
	RejectNotInGac              RejectionReason = "NotInGac"
	RejectNotAFileNameOnDisk    RejectionReason = "NotAFileNameOnDisk"
	RejectArchDoesNotMatch      RejectionReason = "ProcessorArchitectureDoesNotMatch"
	RejectBadImage              RejectionReason = "BadImage"
)

// Candidate is one file location to try, in priority order.
type Candidate struct {
	Path            string
	Source          SourceTag
	SearchPathIndex int
	SearchPathRaw   string

	// PreRejection is set when the locator already knows the candidate
	// cannot be selected (for example a GAC miss); the builder records
	// it and moves on without probing.
	PreRejection RejectionReason
}

// Request carries everything the locator needs for one identity.
type Request struct {
	Identity        identity.Identity
	HintPath        string
	SpecificVersion bool
	// ExecutableExtension, when set, narrows directory scans to that
	// single extension.
	ExecutableExtension string
}

// MatchMode returns the identity match mode the request demands:
// strict when the request is strong-named or pinned to a version.
func (r Request) MatchMode() identity.MatchMode {
	if r.Identity.IsStrongNamed() || r.SpecificVersion {
		return identity.Strict
	}
	return identity.Simple
}

// Locator enumerates candidates for identities against a fixed
// search-path configuration.
type Locator struct {
	SearchPaths        []SearchPath
	Extensions         []string // in selection order, e.g. .winmd,.dll,.exe
	FrameworkDirs      []string
	CandidateFiles     []string
	AssemblyFolderDirs []string // legacy registered directories
	Registry           Registry
	Gac                Gac
	FS                 *cache.ResolutionCache
}

// Candidates returns every location to consider for the request, in
// strict search-path priority order. Locations are not probed here;
// entries the locator can already rule out carry a PreRejection.
func (l *Locator) Candidates(req Request) []Candidate {
	var out []Candidate
	name := req.Identity.Name
	exts := l.Extensions
	if req.ExecutableExtension != "" {
		exts = []string{req.ExecutableExtension}
	}

	add := func(idx int, sp SearchPath, path string, src SourceTag, pre RejectionReason) {
		out = append(out, Candidate{
			Path:            path,
			Source:          src,
			SearchPathIndex: idx,
			SearchPathRaw:   sp.Raw,
			PreRejection:    pre,
		})
	}

	for idx, sp := range l.SearchPaths {
		switch sp.Kind {
		case TokenDirectory:
			for _, ext := range exts {
				add(idx, sp, filepath.Join(sp.Dir, name+ext), SourceDirectory, "")
			}

		case TokenHintPath:
			if req.HintPath != "" {
				add(idx, sp, req.HintPath, SourceHintPath, "")
			}

		case TokenCandidateFiles:
			for _, f := range l.CandidateFiles {
				if !l.extensionAllowed(f) {
					continue
				}
				base := strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
				if !strings.EqualFold(base, name) {
					continue
				}
				add(idx, sp, f, SourceCandidateFile, "")
			}

		case TokenRegistry:
			for _, dir := range registryDirs(l.Registry, sp) {
				for _, ext := range exts {
					add(idx, sp, filepath.Join(dir, name+ext), SourceRegistry, "")
				}
			}

		case TokenAssemblyFolders:
			for _, dir := range l.AssemblyFolderDirs {
				for _, ext := range exts {
					add(idx, sp, filepath.Join(dir, name+ext), SourceDirectory, "")
				}
			}

		case TokenGac:
			if l.Gac == nil {
				break
			}
			if path, _, ok := l.Gac.Lookup(req.Identity); ok {
				add(idx, sp, path, SourceGac, "")
			} else {
				add(idx, sp, req.Identity.Fusion(), SourceGac, RejectNotInGac)
			}

		case TokenRawFileName:
			path := name
			if l.FS != nil && !l.FS.FileExists(path) {
				add(idx, sp, path, SourceRawFile, RejectNotAFileNameOnDisk)
			} else {
				add(idx, sp, path, SourceRawFile, "")
			}

		case TokenTargetFrameworkDirectory:
			for _, dir := range l.FrameworkDirs {
				for _, ext := range exts {
					add(idx, sp, filepath.Join(dir, name+ext), SourceFrameworkDir, "")
				}
			}
		}
	}
	return out
}

func (l *Locator) extensionAllowed(path string) bool {
	ext := filepath.Ext(path)
	for _, allowed := range l.Extensions {
		if strings.EqualFold(ext, allowed) {
			return true
		}
	}
	return false
}

// ArchCompatible reports whether a probed architecture satisfies the
// resolution target. MSIL and arch-less images run anywhere; a None
// target accepts everything.
func ArchCompatible(probed, target identity.ProcessorArchitecture) bool {
	if target == identity.ArchNone || target == identity.ArchMSIL {
		return true
	}
	if probed == identity.ArchNone || probed == identity.ArchMSIL {
		return true
	}
	return probed == target
}
