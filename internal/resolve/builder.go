package resolve

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"arr/internal/cache"
	"arr/internal/config"
	"arr/internal/errors"
	"arr/internal/identity"
	"arr/internal/locate"
	"arr/internal/logging"
	"arr/internal/probe"
	"arr/internal/redirect"
	"arr/internal/redist"
)

// VerboseSearchEnv enables per-candidate probe messages on the
// operational logger even outside diagnostic mode.
const VerboseSearchEnv = "ARR_LOG_VERBOSE_SEARCH_RESULTS"

// Builder computes the reference closure for one invocation. The
// ReferenceTable is mutated only from the driver goroutine; workers
// only touch the shared probe cache.
type Builder struct {
	cfg       *config.ResolverConfig
	locator   *locate.Locator
	cache     *cache.ResolutionCache
	prober    probe.Prober
	pool      *Pool
	policy    *redist.Policy
	redirects *redirect.Set
	logger    *logging.Logger

	verboseSearch bool
	advisories    []string
	exclusions    []*Reference
}

// NewBuilder wires a builder from its collaborators.
func NewBuilder(cfg *config.ResolverConfig, loc *locate.Locator, c *cache.ResolutionCache,
	prober probe.Prober, policy *redist.Policy, redirects *redirect.Set, logger *logging.Logger) *Builder {
	return &Builder{
		cfg:           cfg,
		locator:       loc,
		cache:         c,
		prober:        prober,
		pool:          NewPool(cfg.ProbeWorkers, c, prober),
		policy:        policy,
		redirects:     redirects,
		logger:        logger.WithComponent("closure"),
		verboseSearch: os.Getenv(VerboseSearchEnv) != "",
	}
}

// Advisories returns non-fatal notices collected while building.
func (b *Builder) Advisories() []string { return b.advisories }

// Exclusions returns the references removed by the subset exclusion
// list, for logging.
func (b *Builder) Exclusions() []*Reference { return b.exclusions }

type queueItem struct {
	id          identity.Identity
	requester   *identity.Identity
	primary     *config.PrimaryReference
	sourceItems map[string]bool
}

// BuildClosure seeds the queue with the primaries and expands until
// fixpoint. Unresolvable references stay in the table unresolved; only
// cancellation stops the walk.
func (b *Builder) BuildClosure(ctx context.Context) (*Table, error) {
	b.advisories = nil
	b.exclusions = nil
	table := NewTable()

	var queue []queueItem
	for i := range b.cfg.PrimaryAssemblies {
		p := &b.cfg.PrimaryAssemblies[i]
		id, err := identity.Parse(p.Identity)
		if err != nil {
			return nil, errors.New(errors.InvalidParameter, "bad primary assembly identity", err)
		}
		queue = append(queue, queueItem{
			id:          id,
			primary:     p,
			sourceItems: map[string]bool{id.Fusion(): true},
		})
	}

	for _, path := range b.cfg.PrimaryFiles {
		b.seedPrimaryFile(table, path)
	}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, errors.New(errors.Cancelled, "resolution cancelled", err)
		}
		item := queue[0]
		queue = queue[1:]

		ref, created := b.admit(table, item)
		if !created {
			continue
		}

		if err := b.resolveReference(ctx, ref); err != nil {
			return nil, err
		}

		if !b.cfg.FindDependencies || !ref.IsResolved() {
			continue
		}
		if ref.ExternallyResolved && !b.cfg.FindDependenciesOfExternallyResolved {
			continue
		}
		requester := ref.Effective
		for _, dep := range ref.Probe.References {
			queue = append(queue, queueItem{
				id:          dep,
				requester:   &requester,
				sourceItems: ref.SourceItems,
			})
		}
	}

	b.pruneExclusions(table)
	b.markDependencyFailures(table)
	return table, nil
}

// admit applies redirects and either merges the item into an existing
// node or creates a new one. A stated version that differs from every
// existing entry of the same simple identity creates a separate node;
// conflict resolution decides between them later.
func (b *Builder) admit(table *Table, item queueItem) (*Reference, bool) {
	effective := item.id
	var pre []PreUnification
	unified := false
	if out, src, applied := b.redirects.Apply(item.id); applied {
		pre = append(pre, PreUnification{Version: item.id.Version, Reason: src.UnificationReason()})
		effective = out
		unified = true
	}

	var existing *Reference
	if ref := table.Get(effective.StrictKey()); ref != nil {
		existing = ref
	} else if !effective.HasVersion {
		if group := table.SimpleGroup(effective); len(group) > 0 {
			existing = group[0]
		}
	}

	if existing != nil {
		if item.requester != nil {
			existing.AddDependee(*item.requester)
		}
		for s := range item.sourceItems {
			existing.SourceItems[s] = true
		}
		for _, p := range pre {
			existing.recordPreUnification(p)
		}
		if unified {
			existing.IsUnified = true
		}
		return existing, false
	}

	ref := NewReference(item.id, item.primary != nil)
	ref.Effective = effective
	ref.IsUnified = unified
	ref.PreUnified = pre
	if item.requester != nil {
		ref.AddDependee(*item.requester)
	}
	for s := range item.sourceItems {
		ref.SourceItems[s] = true
	}
	if p := item.primary; p != nil {
		ref.HintPath = p.HintPath
		ref.SpecificVersion = p.SpecificVersion
		ref.EmbedInteropTypes = p.EmbedInteropTypes
		ref.Private = p.Private
		ref.ExternallyResolved = p.ExternallyResolved
		ref.ExecutableExtension = p.ExecutableExtension
	}
	table.Add(ref)
	return ref, true
}

// seedPrimaryFile roots the graph at a file whose location is already
// known.
func (b *Builder) seedPrimaryFile(table *Table, path string) {
	ref := NewReference(identity.SimpleName(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))), true)
	result, err := b.cache.Probe(path, b.prober)
	if err != nil {
		code := errors.CodeOf(err)
		if code == errors.BadImage {
			ref.AddError(TagBadImage, err.Error())
		}
		ref.AddError(TagResolutionFailed, fmt.Sprintf("cannot probe primary file %s", path))
		ref.SourceItems[path] = true
		table.Add(ref)
		return
	}
	ref.Requested = result.Identity
	ref.Effective = result.Identity
	ref.Resolved = result.Identity
	ref.Location = path
	ref.Source = locate.SourceRawFile
	ref.Probe = result
	ref.ScatterFiles = append([]string(nil), result.ScatterFiles...)
	ref.SourceItems[result.Identity.Fusion()] = true
	table.Add(ref)
}

// resolveReference walks the candidate list in priority order and picks
// the first probed match. Candidates that exist on disk are probed as a
// parallel batch; selection stays in enumeration order.
func (b *Builder) resolveReference(ctx context.Context, ref *Reference) error {
	req := locate.Request{
		Identity:            ref.Effective,
		HintPath:            ref.HintPath,
		SpecificVersion:     ref.SpecificVersion,
		ExecutableExtension: ref.ExecutableExtension,
	}
	candidates := b.locator.Candidates(req)

	var toProbe []string
	present := make(map[string]bool)
	for _, c := range candidates {
		if c.PreRejection != "" {
			continue
		}
		if b.cache.FileExists(c.Path) {
			present[c.Path] = true
			toProbe = append(toProbe, c.Path)
		}
	}
	outcomes, err := b.pool.ProbeBatch(ctx, toProbe)
	if err != nil {
		return errors.New(errors.Cancelled, "resolution cancelled", err)
	}

	mode := req.MatchMode()
	orderWithin := make(map[int]int)
	for _, c := range candidates {
		order := orderWithin[c.SearchPathIndex]
		orderWithin[c.SearchPathIndex] = order + 1

		if b.verboseSearch {
			b.logger.Info("Considering candidate", map[string]interface{}{
				"reference": ref.Effective.Fusion(),
				"path":      c.Path,
				"source":    string(c.Source),
			})
		}

		if c.PreRejection != "" {
			ref.ConsideredLocations = append(ref.ConsideredLocations, Considered{Location: c, Reason: c.PreRejection})
			continue
		}
		if !present[c.Path] {
			ref.ConsideredLocations = append(ref.ConsideredLocations, Considered{Location: c, Reason: locate.RejectFileNotFound})
			continue
		}

		o := outcomes[c.Path]
		if o.Err != nil {
			reason := locate.RejectFileNotFound
			if errors.CodeOf(o.Err) == errors.BadImage {
				reason = locate.RejectBadImage
				ref.AddError(TagBadImage, o.Err.Error())
			}
			ref.ConsideredLocations = append(ref.ConsideredLocations, Considered{Location: c, Reason: reason})
			continue
		}
		if o.Result.Identity.Name == "" {
			ref.ConsideredLocations = append(ref.ConsideredLocations, Considered{Location: c, Reason: locate.RejectTargetHadNoFusionName})
			continue
		}
		if !o.Result.Identity.Matches(ref.Effective, mode) {
			ref.ConsideredLocations = append(ref.ConsideredLocations, Considered{Location: c, Reason: locate.RejectFusionNamesDidNotMatch})
			continue
		}
		// GAC lookups filter by target architecture; elsewhere a
		// mismatch is a diagnostic on the resolved reference, not a
		// rejection.
		if c.Source == locate.SourceGac && !locate.ArchCompatible(o.Result.Identity.Arch, b.cfg.TargetArch()) {
			ref.ConsideredLocations = append(ref.ConsideredLocations, Considered{Location: c, Reason: locate.RejectArchDoesNotMatch})
			continue
		}

		ref.ConsideredLocations = append(ref.ConsideredLocations, Considered{Location: c})
		ref.Location = c.Path
		ref.Source = c.Source
		ref.SearchPathIndex = c.SearchPathIndex
		ref.CandidateOrder = order
		ref.Resolved = o.Result.Identity
		ref.Probe = o.Result
		ref.ScatterFiles = append([]string(nil), o.Result.ScatterFiles...)
		break
	}

	if !ref.IsResolved() {
		ref.AddError(TagResolutionFailed, fmt.Sprintf("no candidate matched %s", ref.Effective.Fusion()))
		return nil
	}

	if !locate.ArchCompatible(ref.Resolved.Arch, b.cfg.TargetArch()) {
		ref.AddError(TagArchMismatch, fmt.Sprintf(
			"%s: architecture %s does not match target %s",
			ref.Location, ref.Resolved.Arch, b.cfg.TargetArch()))
	}
	return nil
}

// pruneExclusions classifies every node against the redist policy,
// removing subset-excluded references and tagging framework members.
func (b *Builder) pruneExclusions(table *Table) {
	if b.policy == nil {
		return
	}
	for _, ref := range table.All() {
		class := b.policy.Classify(ref.Effective)
		switch class.Kind {
		case redist.Excluded:
			b.exclusions = append(b.exclusions, ref)
			table.Remove(ref.Key())
		case redist.InFramework:
			ref.IsFrameworkFile = true
			ref.RedistName = class.RedistName
			if class.InGac {
				ref.FoundInGac = true
			}
		}
	}
	if b.locator.Gac != nil {
		for _, ref := range table.All() {
			if !ref.FoundInGac && b.locator.Gac.Contains(ref.Effective) {
				ref.FoundInGac = true
			}
		}
	}
}

// markDependencyFailures records an aggregated DependencyFailed error on
// every parent of an unresolved dependency.
func (b *Builder) markDependencyFailures(table *Table) {
	for _, ref := range table.All() {
		if ref.IsResolved() || !ref.HasError(TagResolutionFailed) {
			continue
		}
		for key := range ref.Dependees {
			parent := table.Get(key)
			if parent == nil {
				continue
			}
			parent.AddError(TagDependencyFailed, fmt.Sprintf(
				"dependency %s could not be resolved", ref.Effective.Fusion()))
		}
		b.advisories = append(b.advisories, fmt.Sprintf(
			"reference %s could not be resolved", ref.Effective.Fusion()))
	}
}
