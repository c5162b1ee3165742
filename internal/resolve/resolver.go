package resolve

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"arr/internal/cache"
	"arr/internal/config"
	"arr/internal/declog"
	"arr/internal/errors"
	"arr/internal/identity"
	"arr/internal/locate"
	"arr/internal/logging"
	"arr/internal/probe"
	"arr/internal/redirect"
	"arr/internal/redist"
)

// Diagnostic codes emitted on the decision log.
const (
	CodeConflict          = "ARR1001"
	CodeInsolubleConflict = "ARR1002"
	CodeUnresolvedPrimary = "ARR1003"
	CodeArchMismatch      = "ARR2001"
)

// Resolver runs complete invocations. The cache, policy and log are
// values handed to the constructor, never globals; the same resolver
// value can run repeatedly while the cache persists across runs.
type Resolver struct {
	cfg    *config.ResolverConfig
	logger *logging.Logger
	cache  *cache.ResolutionCache
	prober probe.Prober

	registry locate.Registry
	gac      locate.Gac
	sinks    []declog.Sink
}

// Option customizes a resolver.
type Option func(*Resolver)

// WithProber replaces the default manifest prober.
func WithProber(p probe.Prober) Option { return func(r *Resolver) { r.prober = p } }

// WithCache supplies a shared cache instead of a fresh one.
func WithCache(c *cache.ResolutionCache) Option { return func(r *Resolver) { r.cache = c } }

// WithRegistry supplies a platform registry.
func WithRegistry(reg locate.Registry) Option { return func(r *Resolver) { r.registry = reg } }

// WithGac supplies a shared assembly cache.
func WithGac(g locate.Gac) Option { return func(r *Resolver) { r.gac = g } }

// WithSink attaches an extra decision-log sink.
func WithSink(s declog.Sink) Option { return func(r *Resolver) { r.sinks = append(r.sinks, s) } }

// New creates a resolver for the configuration.
func New(cfg *config.ResolverConfig, logger *logging.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		cfg:      cfg,
		logger:   logger.WithComponent("resolver"),
		prober:   probe.NewManifestProber(),
		registry: locate.EmptyRegistry{},
	}
	for _, o := range opts {
		o(r)
	}
	if r.cache == nil {
		r.cache = cache.NewResolutionCache(logger)
	}
	if r.gac == nil {
		if cfg.GacRoot != "" {
			r.gac = &locate.DirectoryGac{Root: cfg.GacRoot}
		} else {
			r.gac = locate.NullGac{}
		}
	}
	return r
}

// Cache exposes the resolver's probe cache, mainly for instrumentation.
func (r *Resolver) Cache() *cache.ResolutionCache { return r.cache }

// Run executes one invocation. Only invalid parameters, an unreadable
// redirect config file, or cancellation return an error; every other
// failure lands on the decision log and Run still produces a Result
// whose Success flag reflects whether any Error event was logged.
//
// Auto-unify needs a dependency closure to act on, so when
// FindDependencies is false the unification pass is skipped entirely
// and no redirects are synthesized.
func (r *Resolver) Run(ctx context.Context) (*Result, error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}

	invocationID := uuid.NewString()
	sinks := r.sinks
	if r.cfg.DecisionLogDB != "" {
		sqlSink, err := declog.NewSqliteSink(r.cfg.DecisionLogDB, invocationID)
		if err != nil {
			r.logger.Warn("Decision log database unavailable", map[string]interface{}{
				"path":  r.cfg.DecisionLogDB,
				"error": err.Error(),
			})
		} else {
			sinks = append(sinks, sqlSink)
		}
	}
	log := declog.NewWithID(invocationID, r.cfg.Silent, sinks...)

	var advisories []string

	r.cache.ResetMemos()
	if r.cfg.StateFile != "" {
		if err := r.cache.Load(r.cfg.StateFile); err != nil {
			if os.IsNotExist(err) {
				r.logger.Debug("No state file yet", map[string]interface{}{"path": r.cfg.StateFile})
			} else {
				advisories = append(advisories, err.Error())
			}
		}
	}

	frameworkDir := ""
	if len(r.cfg.TargetFrameworkDirs) > 0 {
		frameworkDir = r.cfg.TargetFrameworkDirs[0]
	}
	policy := redist.NewPolicy(r.logger, r.cfg.FullSubsetNames)
	for _, err := range policy.LoadRedistLists(r.cfg.InstalledAssemblyTables, frameworkDir) {
		advisories = append(advisories, err.Error())
	}
	for _, err := range policy.LoadRedistLists(r.cfg.FullFrameworkTables, frameworkDir) {
		advisories = append(advisories, err.Error())
	}
	for _, err := range policy.LoadSubsetLists(r.cfg.InstalledAssemblySubsetTables) {
		advisories = append(advisories, err.Error())
	}

	redirects := redirect.NewSet()
	if r.cfg.ConfigFile != "" {
		explicit, err := redirect.LoadAppConfig(r.cfg.ConfigFile)
		if err != nil {
			log.Close()
			return nil, err
		}
		redirects.Add(explicit...)
	}
	redirects.Add(redirect.RetargetsFromPolicy(policy)...)

	locator := &locate.Locator{
		Extensions:         r.cfg.AllowedAssemblyExtensions,
		FrameworkDirs:      r.cfg.TargetFrameworkDirs,
		CandidateFiles:     r.cfg.CandidateAssemblyFiles,
		AssemblyFolderDirs: r.cfg.AssemblyFolderDirs,
		Registry:           r.registry,
		Gac:                r.gac,
		FS:                 r.cache,
	}
	searchPaths, err := locate.ParseSearchPaths(r.cfg.SearchPaths)
	if err != nil {
		log.Close()
		return nil, errors.New(errors.InvalidParameter, "bad search path", err)
	}
	locator.SearchPaths = searchPaths

	builder := NewBuilder(r.cfg, locator, r.cache, r.prober, policy, redirects, r.logger)

	table, err := builder.BuildClosure(ctx)
	if err != nil {
		log.Close()
		return nil, err
	}
	conflicts := ResolveConflicts(table, r.cfg.AutoUnify && r.cfg.FindDependencies)

	autoUnified := false
	if len(conflicts.AutoUnify) > 0 {
		redirects.Add(conflicts.AutoUnify...)
		table, err = builder.BuildClosure(ctx)
		if err != nil {
			log.Close()
			return nil, err
		}
		conflicts = ResolveConflicts(table, false)
		autoUnified = true
	}

	advisories = append(advisories, builder.Advisories()...)

	NewClassifier(r.cfg, r.cache).Classify(table)
	result := BuildOutputs(table, conflicts)

	r.emitLog(log, table, conflicts, builder.Exclusions(), policy.SubsetName(), advisories, autoUnified)

	if r.cfg.StateFile != "" && r.cache.Dirty() {
		if err := r.cache.Flush(r.cfg.StateFile); err != nil {
			// Reported but the success flag is unaffected.
			log.Advisory(fmt.Sprintf("cannot write state file: %v", err))
			r.logger.Warn("State file flush failed", map[string]interface{}{
				"path":  r.cfg.StateFile,
				"error": err.Error(),
			})
		} else {
			result.FilesWritten = append(result.FilesWritten, r.cfg.StateFile)
		}
	}

	if err := log.Close(); err != nil {
		r.logger.Warn("Decision log sink close failed", map[string]interface{}{"error": err.Error()})
	}
	result.Events = log.Events()
	result.Success = !log.HasErrors()
	return result, nil
}

// emitLog writes the canonical decision-log sequence: inputs, one block
// per reference (primaries before dependencies), conflicts, suggested
// redirects, then the general diagnostics.
func (r *Resolver) emitLog(log *declog.Log, table *Table, conflicts *ConflictResult,
	exclusions []*Reference, subsetName string, advisories []string, autoUnified bool) {

	log.Input("TargetProcessorArchitecture", r.cfg.TargetProcessorArchitecture)
	log.Input("TargetedRuntimeVersion", r.cfg.TargetedRuntimeVersion)
	log.Input("TargetFrameworkMoniker", r.cfg.TargetFrameworkMoniker)
	log.Input("AutoUnify", strconv.FormatBool(r.cfg.AutoUnify))
	log.Input("FindDependencies", strconv.FormatBool(r.cfg.FindDependencies))
	log.Input("SearchPaths", strings.Join(r.cfg.SearchPaths, ";"))
	if r.cfg.StateFile != "" {
		log.Input("StateFile", r.cfg.StateFile)
	}
	if r.cfg.ConfigFile != "" {
		log.Input("ConfigFile", r.cfg.ConfigFile)
	}

	refs := table.All()
	emitBlock := func(ref *Reference) {
		fusion := ref.Effective.Fusion()
		if ref.IsPrimary {
			log.Primary(fusion)
		} else {
			log.Dependency(fusion)
		}
		for _, c := range ref.ConsideredLocations {
			log.Considered(fusion, c.Location.Path, string(c.Reason))
		}
		if ref.IsResolved() {
			log.Resolved(fusion, ref.Location)
		}
		for _, pre := range ref.PreUnified {
			log.Unification(fusion, pre.Version.String(), ref.Effective.Version.String(), pre.Reason)
		}
		log.CopyLocal(fusion, string(ref.CopyLocal))
	}
	for _, ref := range refs {
		if ref.IsPrimary {
			emitBlock(ref)
		}
	}
	for _, ref := range refs {
		if !ref.IsPrimary {
			emitBlock(ref)
		}
	}

	for _, rec := range conflicts.Records {
		log.Conflict(rec.Winner.Effective.Fusion(), rec.Loser.Effective.Fusion(), string(rec.Reason))
		switch {
		case rec.Insoluble:
			log.Warning(CodeInsolubleConflict, fmt.Sprintf(
				"primary references disagree on the version of %s", rec.Winner.Effective.Name))
		case !autoUnified && !r.cfg.AutoUnify:
			log.Warning(CodeConflict, fmt.Sprintf(
				"found conflicts between versions of %s", rec.Winner.Effective.Name))
		}
	}

	for _, s := range conflicts.Suggested {
		log.SuggestedRedirect(s.Partial.Fusion(), s.MaxVersion.String())
	}

	for _, ref := range exclusions {
		log.Exclusion(ref.Effective.Fusion(), subsetName)
		log.Advisory(fmt.Sprintf("reference %s removed: not part of the targeted framework subset", ref.Effective.Fusion()))
	}

	for _, msg := range advisories {
		log.Advisory(msg)
	}

	for _, ref := range refs {
		if ref.IsPrimary && ref.HasError(TagResolutionFailed) {
			log.Warning(CodeUnresolvedPrimary, fmt.Sprintf(
				"primary reference %s could not be resolved", ref.Effective.Fusion()))
		}
		if ref.HasError(TagArchMismatch) {
			msg := archMismatchMessage(ref, r.cfg.TargetArch())
			switch r.cfg.WarnOrErrorOnTargetArchitectureMismatch {
			case config.ArchMismatchWarning:
				log.Warning(CodeArchMismatch, msg)
			case config.ArchMismatchError:
				log.Error(CodeArchMismatch, msg)
			}
		}
	}
}

func archMismatchMessage(ref *Reference, target identity.ProcessorArchitecture) string {
	return fmt.Sprintf("assembly %s has architecture %s but the target is %s",
		ref.Effective.Fusion(), ref.Resolved.Arch, target)
}

