package resolve

import (
	"sort"

	"arr/internal/identity"
	"arr/internal/redirect"
)

// SuggestedRedirect is a binding redirect the user could add to settle
// a conflict: any version of the partial identity up to MaxVersion.
type SuggestedRedirect struct {
	Partial    identity.Identity
	MaxVersion identity.Version
}

// ConflictRecord pairs one victim with the victor that beat it.
type ConflictRecord struct {
	Winner    *Reference
	Loser     *Reference
	Reason    LossReason
	Insoluble bool
}

// ConflictResult is everything conflict resolution produced.
type ConflictResult struct {
	Records    []ConflictRecord
	Suggested  []SuggestedRedirect
	AutoUnify  []redirect.Redirect
}

// HasInsoluble reports whether any conflict involved two primaries.
func (r *ConflictResult) HasInsoluble() bool {
	for _, rec := range r.Records {
		if rec.Insoluble {
			return true
		}
	}
	return false
}

// ResolveConflicts detects identity conflicts (equal simple identity,
// distinct strict identities), selects winners, marks losers, and
// produces the suggested redirects. In auto-unify mode it additionally
// synthesizes live redirects for the redirect engine.
func ResolveConflicts(table *Table, autoUnify bool) *ConflictResult {
	result := &ConflictResult{}

	for _, group := range table.ConflictGroups() {
		ordered := make([]*Reference, len(group))
		copy(ordered, group)
		sort.SliceStable(ordered, func(i, j int) bool {
			a, b := ordered[i], ordered[j]
			if a.IsPrimary != b.IsPrimary {
				return a.IsPrimary
			}
			if cmp := a.Effective.Version.Compare(b.Effective.Version); cmp != 0 {
				return cmp > 0
			}
			if cmp := fileVersion(a).Compare(fileVersion(b)); cmp != 0 {
				return cmp > 0
			}
			if a.SearchPathIndex != b.SearchPathIndex {
				return a.SearchPathIndex < b.SearchPathIndex
			}
			return a.CandidateOrder < b.CandidateOrder
		})

		winner := ordered[0]
		winner.Conflict = ConflictVictor

		primaries := 0
		for _, ref := range group {
			if ref.IsPrimary {
				primaries++
			}
		}
		insoluble := primaries >= 2

		victims := 0
		for _, loser := range ordered[1:] {
			reason := lossReason(winner, loser, insoluble)
			loser.Conflict = ConflictVictim
			loser.Loss = reason
			loser.WinnerKey = winner.Key()
			victims++
			result.Records = append(result.Records, ConflictRecord{
				Winner:    winner,
				Loser:     loser,
				Reason:    reason,
				Insoluble: insoluble && loser.IsPrimary,
			})
		}

		if victims == 0 {
			continue
		}
		partial := winner.Effective
		partial.HasVersion = false
		partial.Version = identity.ZeroVersion
		result.Suggested = append(result.Suggested, SuggestedRedirect{
			Partial:    partial,
			MaxVersion: winner.Effective.Version,
		})
		if autoUnify && !insoluble {
			result.AutoUnify = append(result.AutoUnify, redirect.Redirect{
				Partial:    partial,
				Range:      identity.VersionRange{Low: identity.ZeroVersion, High: winner.Effective.Version},
				NewVersion: winner.Effective.Version,
				Origin:     redirect.SourceAutoUnify,
			})
		}
	}

	return result
}

func fileVersion(r *Reference) identity.Version {
	if r.Probe == nil {
		return identity.ZeroVersion
	}
	return r.Probe.FileVersion
}

func lossReason(winner, loser *Reference, insoluble bool) LossReason {
	if insoluble && loser.IsPrimary {
		return LossInsolubleConflict
	}
	switch cmp := loser.Effective.Version.Compare(winner.Effective.Version); {
	case cmp == 0:
		return LossFusionEquivalent
	case cmp < 0:
		return LossHadLowerVersion
	default:
		// A primary beat a higher-versioned dependency.
		return LossWasNotPrimary
	}
}
