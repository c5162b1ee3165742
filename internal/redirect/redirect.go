// Package redirect applies binding redirects: explicit config remaps,
// framework-retarget remaps derived from the redist list, and the
// auto-unify remaps synthesized by conflict resolution.
package redirect

import (
	"sort"

	"arr/internal/identity"
	"arr/internal/redist"
)

// Source ranks where a redirect came from; lower ranks win.
type Source int

const (
	// SourceConfig is an explicit config-file redirect.
	SourceConfig Source = iota
	// SourceFrameworkRetarget is derived from retargetable redist entries.
	SourceFrameworkRetarget
	// SourceAutoUnify is synthesized by the conflict resolver.
	SourceAutoUnify
)

// UnificationReason names the source on a reference's pre-unification
// version record.
func (s Source) UnificationReason() string {
	switch s {
	case SourceConfig:
		return "ConfigRedirect"
	case SourceFrameworkRetarget:
		return "FrameworkRetarget"
	case SourceAutoUnify:
		return "AutoUnify"
	default:
		return "None"
	}
}

// Redirect remaps versions of one partial identity (name, culture,
// token; version ignored) within an inclusive range to a new version.
type Redirect struct {
	Partial    identity.Identity
	Range      identity.VersionRange
	NewVersion identity.Version
	Origin     Source
}

// MaxVersion is the open upper bound of retarget ranges. Auto-unify
// ranges end at the winning version instead.
var MaxVersion = identity.Version{Major: 65535, Minor: 65535, Build: 65535, Revision: 65535}

// Set is an ordered collection of redirects.
type Set struct {
	redirects []Redirect
}

// NewSet creates an empty redirect set.
func NewSet() *Set {
	return &Set{}
}

// Add appends redirects to the set.
func (s *Set) Add(rs ...Redirect) {
	s.redirects = append(s.redirects, rs...)
}

// Len returns the number of installed redirects.
func (s *Set) Len() int { return len(s.redirects) }

// Apply remaps the identity's version. Candidate redirects are those
// whose partial identity matches simply and whose range contains the
// stated version; among them the highest-priority source wins, and
// within one source the highest new version. Identities without a
// stated version pass through unchanged.
func (s *Set) Apply(id identity.Identity) (identity.Identity, Source, bool) {
	if !id.HasVersion {
		return id, 0, false
	}
	var matches []Redirect
	for _, r := range s.redirects {
		if !r.Partial.Matches(id, identity.Simple) {
			continue
		}
		if !r.Range.Contains(id.Version) {
			continue
		}
		matches = append(matches, r)
	}
	if len(matches) == 0 {
		return id, 0, false
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Origin != matches[j].Origin {
			return matches[i].Origin < matches[j].Origin
		}
		return matches[j].NewVersion.Less(matches[i].NewVersion)
	})
	winner := matches[0]
	if winner.NewVersion == id.Version {
		return id, winner.Origin, false
	}
	return id.WithVersion(winner.NewVersion), winner.Origin, true
}

// RetargetsFromPolicy derives framework-retarget redirects: every
// retargetable framework member pulls any version of its identity up to
// the framework's version of it.
func RetargetsFromPolicy(policy *redist.Policy) []Redirect {
	var out []Redirect
	for _, e := range policy.FrameworkMembers() {
		if !e.Retargetable || !e.Identity.HasVersion {
			continue
		}
		out = append(out, Redirect{
			Partial:    e.Identity,
			Range:      identity.VersionRange{Low: identity.ZeroVersion, High: MaxVersion},
			NewVersion: e.Identity.Version,
			Origin:     SourceFrameworkRetarget,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Partial.Fusion() < out[j].Partial.Fusion()
	})
	return out
}
