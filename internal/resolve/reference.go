// Package resolve computes the transitive reference closure: it drives
// candidate location, metadata probing, redirect application, conflict
// resolution and output classification for one resolver invocation.
package resolve

import (
	"arr/internal/identity"
	"arr/internal/locate"
	"arr/internal/probe"
)

// CopyLocal is the classified copy-to-output decision for a reference.
type CopyLocal string

const (
	// CopyLocalYes comes from explicit Private=true metadata.
	CopyLocalYes CopyLocal = "Yes"
	// CopyLocalNo comes from explicit Private=false metadata or an
	// unresolved reference.
	CopyLocalNo CopyLocal = "No"
	// CopyLocalNoPrerequisite marks framework prerequisites (in the
	// framework and in the GAC).
	CopyLocalNoPrerequisite CopyLocal = "NoPrerequisite"
	// CopyLocalNoEmbedded marks embedded interop references.
	CopyLocalNoEmbedded CopyLocal = "NoEmbedded"
	// CopyLocalNoConflictVictim marks conflict losers.
	CopyLocalNoConflictVictim CopyLocal = "NoConflictVictim"
	// CopyLocalNoResolvedFromGac marks references resolved out of the GAC.
	CopyLocalNoResolvedFromGac CopyLocal = "NoResolvedFromGac"
	// CopyLocalNoFoundInGac marks references present in the GAC when
	// configuration disables GAC copies.
	CopyLocalNoFoundInGac CopyLocal = "NoFoundInGac"
	// CopyLocalNoParentsInGac marks dependencies whose parents all live
	// in the GAC.
	CopyLocalNoParentsInGac CopyLocal = "NoParentsInGac"
	// CopyLocalNoFrameworkFile marks framework files.
	CopyLocalNoFrameworkFile CopyLocal = "NoFrameworkFile"
	// CopyLocalYesHeuristic is the default positive decision.
	CopyLocalYesHeuristic CopyLocal = "YesHeuristic"
)

// ShouldCopy reports whether the decision places the file in the output
// directory.
func (c CopyLocal) ShouldCopy() bool {
	return c == CopyLocalYes || c == CopyLocalYesHeuristic
}

// ConflictState tags a reference's role in conflict resolution.
type ConflictState int

const (
	ConflictNone ConflictState = iota
	ConflictVictor
	ConflictVictim
)

// LossReason explains why a victim lost its conflict.
type LossReason string

const (
	LossHadLowerVersion     LossReason = "HadLowerVersion"
	LossWasNotPrimary       LossReason = "WasNotPrimary"
	LossInsolubleConflict   LossReason = "InsolubleConflict"
	LossFusionEquivalent    LossReason = "FusionEquivalentWithSameVersion"
)

// ErrorTag classifies a per-reference failure.
type ErrorTag string

const (
	TagResolutionFailed ErrorTag = "ResolutionFailed"
	TagDependencyFailed ErrorTag = "DependencyFailed"
	TagBadImage         ErrorTag = "BadImage"
	TagArchMismatch     ErrorTag = "ArchMismatch"
)

// RefError is one tagged failure recorded on a reference.
type RefError struct {
	Tag     ErrorTag
	Message string
}

// Considered is one candidate location and why it was not selected (an
// empty reason marks the selected location).
type Considered struct {
	Location locate.Candidate
	Reason   locate.RejectionReason
}

// PreUnification records one version remap applied before resolution.
type PreUnification struct {
	Version identity.Version
	Reason  string // ConfigRedirect | AutoUnify | FrameworkRetarget | None
}

// Reference is the central graph node: one assembly identity and
// everything learned about it during resolution.
type Reference struct {
	Requested identity.Identity // as stated by the requester
	Effective identity.Identity // after redirects
	Resolved  identity.Identity // from the chosen file

	Location        string
	Source          locate.SourceTag
	SearchPathIndex int
	CandidateOrder  int // position within the winning search-path entry

	IsPrimary  bool
	IsUnified  bool
	PreUnified []PreUnification

	// Dependees maps the strict key of each requester to its identity;
	// handles, not pointers, so the table owns every node.
	Dependees map[string]identity.Identity
	// SourceItems is the set of primary fusion names that transitively
	// required this reference.
	SourceItems map[string]bool

	ConsideredLocations []Considered

	RelatedFiles       []string
	SatelliteFiles     []string
	ScatterFiles       []string
	SerializationFiles []string

	CopyLocal CopyLocal

	Errors []RefError

	Conflict   ConflictState
	Loss       LossReason
	WinnerKey  string

	IsFrameworkFile bool
	FoundInGac      bool
	RedistName      string

	Probe *probe.Result

	// Per-item overrides from the requesting project item.
	HintPath            string
	SpecificVersion     bool
	EmbedInteropTypes   bool
	Private             *bool
	ExternallyResolved  bool
	ExecutableExtension string
}

// NewReference creates a node for a requested identity.
func NewReference(requested identity.Identity, primary bool) *Reference {
	return &Reference{
		Requested:   requested,
		Effective:   requested,
		IsPrimary:   primary,
		Dependees:   make(map[string]identity.Identity),
		SourceItems: make(map[string]bool),
	}
}

// IsResolved reports whether a location was chosen and probed.
func (r *Reference) IsResolved() bool {
	return r.Location != "" && r.Probe != nil
}

// Key is the reference's strict identity key in the table.
func (r *Reference) Key() string {
	return r.Effective.StrictKey()
}

// AddDependee records a requester edge.
func (r *Reference) AddDependee(requester identity.Identity) {
	r.Dependees[requester.StrictKey()] = requester
}

// recordPreUnification appends a remap record, skipping duplicates from
// repeated requests of the same version.
func (r *Reference) recordPreUnification(p PreUnification) {
	for _, have := range r.PreUnified {
		if have == p {
			return
		}
	}
	r.PreUnified = append(r.PreUnified, p)
}

// AddError records a tagged failure.
func (r *Reference) AddError(tag ErrorTag, message string) {
	r.Errors = append(r.Errors, RefError{Tag: tag, Message: message})
}

// HasError reports whether an error with the tag was recorded.
func (r *Reference) HasError(tag ErrorTag) bool {
	for _, e := range r.Errors {
		if e.Tag == tag {
			return true
		}
	}
	return false
}

// Table maps strict identity keys to references, preserving insertion
// order for deterministic output. Conflict grouping goes through the
// simple-key index.
type Table struct {
	refs   map[string]*Reference
	order  []string
	simple map[string][]string // simple key -> strict keys, insertion order
}

// NewTable creates an empty reference table.
func NewTable() *Table {
	return &Table{
		refs:   make(map[string]*Reference),
		simple: make(map[string][]string),
	}
}

// Get returns the reference with the strict key, or nil.
func (t *Table) Get(key string) *Reference {
	return t.refs[key]
}

// SimpleGroup returns the references sharing the identity's simple key,
// in insertion order.
func (t *Table) SimpleGroup(id identity.Identity) []*Reference {
	keys := t.simple[id.SimpleKey()]
	out := make([]*Reference, 0, len(keys))
	for _, k := range keys {
		if ref, ok := t.refs[k]; ok {
			out = append(out, ref)
		}
	}
	return out
}

// Add inserts a reference keyed by its effective identity.
func (t *Table) Add(ref *Reference) {
	key := ref.Key()
	if _, exists := t.refs[key]; exists {
		return
	}
	t.refs[key] = ref
	t.order = append(t.order, key)
	sk := ref.Effective.SimpleKey()
	t.simple[sk] = append(t.simple[sk], key)
}

// Remove deletes a reference and its edges into other nodes.
func (t *Table) Remove(key string) {
	ref, ok := t.refs[key]
	if !ok {
		return
	}
	delete(t.refs, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	sk := ref.Effective.SimpleKey()
	keys := t.simple[sk]
	for i, k := range keys {
		if k == key {
			t.simple[sk] = append(keys[:i], keys[i+1:]...)
			break
		}
	}
	for _, other := range t.refs {
		delete(other.Dependees, key)
	}
}

// All returns every reference in insertion order.
func (t *Table) All() []*Reference {
	out := make([]*Reference, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, t.refs[k])
	}
	return out
}

// Len returns the number of references.
func (t *Table) Len() int { return len(t.refs) }

// ConflictGroups returns every simple-key group holding two or more
// live references, in first-insertion order.
func (t *Table) ConflictGroups() [][]*Reference {
	var out [][]*Reference
	seen := make(map[string]bool)
	for _, k := range t.order {
		ref := t.refs[k]
		sk := ref.Effective.SimpleKey()
		if seen[sk] {
			continue
		}
		seen[sk] = true
		group := t.SimpleGroup(ref.Effective)
		if len(group) >= 2 {
			out = append(out, group)
		}
	}
	return out
}
