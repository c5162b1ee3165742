package resolve

import (
	"sort"
	"strings"

	"arr/internal/declog"
)

// ResolvedFile is one row of an output table.
type ResolvedFile struct {
	Path            string    `json:"path" yaml:"path" toml:"path"`
	Fusion          string    `json:"fusion" yaml:"fusion" toml:"fusion"`
	CopyLocal       CopyLocal `json:"copyLocal" yaml:"copyLocal" toml:"copyLocal"`
	IsPrimary       bool      `json:"isPrimary" yaml:"isPrimary" toml:"isPrimary"`
	IsFrameworkFile bool      `json:"isFrameworkFile,omitempty" yaml:"isFrameworkFile,omitempty" toml:"isFrameworkFile,omitempty"`
	IsWinMD         bool      `json:"isWinmd,omitempty" yaml:"isWinmd,omitempty" toml:"isWinmd,omitempty"`
	RuntimeVersion  string    `json:"runtimeVersion,omitempty" yaml:"runtimeVersion,omitempty" toml:"runtimeVersion,omitempty"`
	SourceItems     []string  `json:"sourceItems,omitempty" yaml:"sourceItems,omitempty" toml:"sourceItems,omitempty"`
}

// RedirectSuggestion is the externally visible shape of a suggested
// binding redirect.
type RedirectSuggestion struct {
	Partial    string `json:"partial" yaml:"partial" toml:"partial"`
	MaxVersion string `json:"maxVersion" yaml:"maxVersion" toml:"maxVersion"`
}

// Result carries every output of one invocation.
type Result struct {
	Success bool `json:"success" yaml:"success" toml:"success"`

	ResolvedFiles              []ResolvedFile `json:"resolvedFiles" yaml:"resolvedFiles" toml:"resolvedFiles"`
	ResolvedDependencyFiles    []ResolvedFile `json:"resolvedDependencyFiles" yaml:"resolvedDependencyFiles" toml:"resolvedDependencyFiles"`
	RelatedFiles               []string       `json:"relatedFiles,omitempty" yaml:"relatedFiles,omitempty" toml:"relatedFiles,omitempty"`
	SatelliteFiles             []string       `json:"satelliteFiles,omitempty" yaml:"satelliteFiles,omitempty" toml:"satelliteFiles,omitempty"`
	SerializationAssemblyFiles []string       `json:"serializationAssemblyFiles,omitempty" yaml:"serializationAssemblyFiles,omitempty" toml:"serializationAssemblyFiles,omitempty"`
	ScatterFiles               []string       `json:"scatterFiles,omitempty" yaml:"scatterFiles,omitempty" toml:"scatterFiles,omitempty"`
	CopyLocalFiles             []string       `json:"copyLocalFiles,omitempty" yaml:"copyLocalFiles,omitempty" toml:"copyLocalFiles,omitempty"`

	SuggestedRedirects []RedirectSuggestion `json:"suggestedRedirects,omitempty" yaml:"suggestedRedirects,omitempty" toml:"suggestedRedirects,omitempty"`

	DependsOnSystemRuntime bool `json:"dependsOnSystemRuntime" yaml:"dependsOnSystemRuntime" toml:"dependsOnSystemRuntime"`
	DependsOnNetStandard   bool `json:"dependsOnNetstandard" yaml:"dependsOnNetstandard" toml:"dependsOnNetstandard"`

	FilesWritten []string `json:"filesWritten,omitempty" yaml:"filesWritten,omitempty" toml:"filesWritten,omitempty"`

	Events []declog.Event `json:"-" yaml:"-" toml:"-"`
}

func toResolvedFile(ref *Reference) ResolvedFile {
	items := make([]string, 0, len(ref.SourceItems))
	for s := range ref.SourceItems {
		items = append(items, s)
	}
	sort.Strings(items)
	rf := ResolvedFile{
		Path:            ref.Location,
		Fusion:          ref.Resolved.Fusion(),
		CopyLocal:       ref.CopyLocal,
		IsPrimary:       ref.IsPrimary,
		IsFrameworkFile: ref.IsFrameworkFile,
		SourceItems:     items,
	}
	if ref.Probe != nil {
		rf.IsWinMD = ref.Probe.IsWinMD
		rf.RuntimeVersion = ref.Probe.RuntimeVersion
	}
	return rf
}

// BuildOutputs assembles the ordered output tables from a classified
// table. Conflict victims never contribute files: resolution chooses
// exactly one concrete file per simple identity.
func BuildOutputs(table *Table, conflicts *ConflictResult) *Result {
	result := &Result{Success: true}

	for _, ref := range table.All() {
		name := ref.Effective.Name
		if strings.EqualFold(name, "System.Runtime") {
			result.DependsOnSystemRuntime = true
		}
		if strings.EqualFold(name, "netstandard") {
			result.DependsOnNetStandard = true
		}

		if !ref.IsResolved() || ref.Conflict == ConflictVictim {
			continue
		}

		rf := toResolvedFile(ref)
		if ref.IsPrimary {
			result.ResolvedFiles = append(result.ResolvedFiles, rf)
		} else {
			result.ResolvedDependencyFiles = append(result.ResolvedDependencyFiles, rf)
		}
		result.RelatedFiles = append(result.RelatedFiles, ref.RelatedFiles...)
		result.SatelliteFiles = append(result.SatelliteFiles, ref.SatelliteFiles...)
		result.SerializationAssemblyFiles = append(result.SerializationAssemblyFiles, ref.SerializationFiles...)
		result.ScatterFiles = append(result.ScatterFiles, ref.ScatterFiles...)
		if ref.CopyLocal.ShouldCopy() {
			result.CopyLocalFiles = append(result.CopyLocalFiles, ref.Location)
		}
	}

	if conflicts != nil {
		for _, s := range conflicts.Suggested {
			result.SuggestedRedirects = append(result.SuggestedRedirects, RedirectSuggestion{
				Partial:    s.Partial.Fusion(),
				MaxVersion: s.MaxVersion.String(),
			})
		}
	}
	return result
}
