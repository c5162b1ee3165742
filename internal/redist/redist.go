// Package redist loads XML framework-membership lists and classifies
// assembly identities as in-framework, excluded by the targeted profile
// subset, or unknown.
package redist

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"

	"arr/internal/errors"
	"arr/internal/identity"
	"arr/internal/logging"
)

// Entry is one framework member.
type Entry struct {
	Identity     identity.Identity
	InGac        bool
	RedistName   string
	Retargetable bool
	FrameworkDir string
}

// ClassKind tags a classification result.
type ClassKind int

const (
	// Unknown means no loaded list mentions the identity.
	Unknown ClassKind = iota
	// InFramework means a redist list contains the identity.
	InFramework
	// Excluded means the full framework contains the identity but the
	// targeted subset does not.
	Excluded
)

// Classification is the result of Policy.Classify.
type Classification struct {
	Kind         ClassKind
	RedistName   string
	InGac        bool
	Retargetable bool
	SubsetName   string // for Excluded: the subset that dropped it
}

// fileList mirrors the XML redist list schema.
type fileList struct {
	XMLName xml.Name   `xml:"FileList"`
	Redist  string     `xml:"Redist,attr"`
	Name    string     `xml:"Name,attr"`
	Files   []fileNode `xml:"File"`
}

type fileNode struct {
	AssemblyName   string `xml:"AssemblyName,attr"`
	Version        string `xml:"Version,attr"`
	Culture        string `xml:"Culture,attr"`
	PublicKeyToken string `xml:"PublicKeyToken,attr"`
	InGac          string `xml:"InGac,attr"`
	Retargetable   string `xml:"Retargetable,attr"`
}

// List is one parsed membership list.
type List struct {
	Path       string
	RedistName string
	Entries    []Entry
}

func xmlBool(s string) bool {
	return strings.EqualFold(s, "true") || strings.EqualFold(s, "yes")
}

// ParseList reads one XML list. The FrameworkDir of every entry is left
// empty; LoadRedistLists fills it from the configured framework directory.
func ParseList(path string) (*List, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.InvalidRedistList, fmt.Sprintf("cannot read redist list %s", path), err)
	}
	var fl fileList
	if err := xml.Unmarshal(data, &fl); err != nil {
		return nil, errors.New(errors.InvalidRedistList, fmt.Sprintf("malformed redist list %s", path), err)
	}
	name := fl.Redist
	if name == "" {
		name = fl.Name
	}
	list := &List{Path: path, RedistName: name}
	for _, f := range fl.Files {
		if f.AssemblyName == "" {
			return nil, errors.Newf(errors.InvalidRedistList, "redist list %s: File with no AssemblyName", path)
		}
		version := identity.Version{}
		if f.Version != "" {
			v, err := identity.ParseVersion(f.Version)
			if err != nil {
				return nil, errors.New(errors.InvalidRedistList, fmt.Sprintf("redist list %s: entry %s", path, f.AssemblyName), err)
			}
			version = v
		}
		id := identity.New(f.AssemblyName, version, f.Culture, f.PublicKeyToken, identity.ArchNone)
		list.Entries = append(list.Entries, Entry{
			Identity:     id,
			InGac:        xmlBool(f.InGac),
			RedistName:   name,
			Retargetable: xmlBool(f.Retargetable),
		})
	}
	return list, nil
}

// Policy holds the loaded framework membership and the derived
// exclusion list.
type Policy struct {
	framework map[string]Entry // simple key -> member
	subset    map[string]bool  // simple key -> present in subset
	subsetNames []string

	haveSubset        bool
	exclusionDisabled bool
	fullSynonyms      []string

	logger *logging.Logger
}

// DefaultFullSubsetNames are subset names that stand for the whole
// framework; seeing one disables the exclusion mechanism.
var DefaultFullSubsetNames = []string{"Full"}

// NewPolicy creates an empty policy.
func NewPolicy(logger *logging.Logger, fullSynonyms []string) *Policy {
	if len(fullSynonyms) == 0 {
		fullSynonyms = DefaultFullSubsetNames
	}
	return &Policy{
		framework:    make(map[string]Entry),
		subset:       make(map[string]bool),
		fullSynonyms: fullSynonyms,
		logger:       logger.WithComponent("redist"),
	}
}

// LoadRedistLists loads full-framework membership lists. Invalid files
// are skipped; their errors come back for advisory logging.
func (p *Policy) LoadRedistLists(paths []string, frameworkDir string) []error {
	var errs []error
	for _, path := range paths {
		list, err := ParseList(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, e := range list.Entries {
			e.FrameworkDir = frameworkDir
			p.framework[e.Identity.SimpleKey()] = e
		}
		p.logger.Debug("Loaded redist list", map[string]interface{}{
			"path":    path,
			"entries": len(list.Entries),
		})
	}
	return errs
}

// LoadSubsetLists loads targeted-profile subset lists. A subset whose
// name matches a full synonym disables exclusion entirely.
func (p *Policy) LoadSubsetLists(paths []string) []error {
	var errs []error
	for _, path := range paths {
		list, err := ParseList(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		p.haveSubset = true
		p.subsetNames = append(p.subsetNames, list.RedistName)
		for _, syn := range p.fullSynonyms {
			if strings.EqualFold(list.RedistName, syn) {
				p.exclusionDisabled = true
				p.logger.Debug("Subset names the full framework, exclusion disabled", map[string]interface{}{
					"path":   path,
					"subset": list.RedistName,
				})
			}
		}
		for _, e := range list.Entries {
			p.subset[e.Identity.SimpleKey()] = true
		}
	}
	return errs
}

// SubsetName reports the first loaded subset name, for diagnostics.
func (p *Policy) SubsetName() string {
	if len(p.subsetNames) == 0 {
		return ""
	}
	return p.subsetNames[0]
}

// ExclusionActive reports whether the full-minus-subset exclusion
// mechanism applies.
func (p *Policy) ExclusionActive() bool {
	return p.haveSubset && !p.exclusionDisabled
}

// Classify buckets an identity per the loaded lists. Lookup is by
// simple identity (name, culture, token; versions ignored).
func (p *Policy) Classify(id identity.Identity) Classification {
	e, ok := p.framework[id.SimpleKey()]
	if !ok {
		return Classification{Kind: Unknown}
	}
	if p.ExclusionActive() && !p.subset[id.SimpleKey()] {
		return Classification{Kind: Excluded, RedistName: e.RedistName, SubsetName: p.SubsetName()}
	}
	return Classification{
		Kind:         InFramework,
		RedistName:   e.RedistName,
		InGac:        e.InGac,
		Retargetable: e.Retargetable,
	}
}

// FrameworkMembers returns every framework entry; the redirect engine
// derives retarget remappings from the retargetable members.
func (p *Policy) FrameworkMembers() []Entry {
	out := make([]Entry, 0, len(p.framework))
	for _, e := range p.framework {
		out = append(out, e)
	}
	return out
}
