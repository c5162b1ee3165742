// Package config defines the resolver's configuration surface and its
// file loading. One ResolverConfig aggregate carries every recognized
// option; Validate rejects bad input before a run starts.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"arr/internal/errors"
	"arr/internal/identity"
)

// PrimaryReference is one user-requested root of the reference graph.
type PrimaryReference struct {
	Identity            string `json:"identity" mapstructure:"identity"` // fusion name
	HintPath            string `json:"hintPath,omitempty" mapstructure:"hintPath"`
	Private             *bool  `json:"private,omitempty" mapstructure:"private"`
	SpecificVersion     bool   `json:"specificVersion,omitempty" mapstructure:"specificVersion"`
	EmbedInteropTypes   bool   `json:"embedInteropTypes,omitempty" mapstructure:"embedInteropTypes"`
	ExecutableExtension string `json:"executableExtension,omitempty" mapstructure:"executableExtension"`
	SubType             string `json:"subType,omitempty" mapstructure:"subType"`
	ExternallyResolved  bool   `json:"externallyResolved,omitempty" mapstructure:"externallyResolved"`
}

// ArchMismatchSeverity selects how an architecture mismatch is reported.
type ArchMismatchSeverity string

const (
	ArchMismatchNone    ArchMismatchSeverity = "None"
	ArchMismatchWarning ArchMismatchSeverity = "Warning"
	ArchMismatchError   ArchMismatchSeverity = "Error"
)

// LoggingConfig configures the operational logger.
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// ResolverConfig is the complete input surface of one resolver
// invocation.
type ResolverConfig struct {
	PrimaryAssemblies []PrimaryReference `json:"primaryAssemblies" mapstructure:"primaryAssemblies"`
	PrimaryFiles      []string           `json:"primaryFiles" mapstructure:"primaryFiles"`

	SearchPaths                  []string `json:"searchPaths" mapstructure:"searchPaths"`
	AllowedAssemblyExtensions    []string `json:"allowedAssemblyExtensions" mapstructure:"allowedAssemblyExtensions"`
	AllowedRelatedFileExtensions []string `json:"allowedRelatedFileExtensions" mapstructure:"allowedRelatedFileExtensions"`
	CandidateAssemblyFiles       []string `json:"candidateAssemblyFiles" mapstructure:"candidateAssemblyFiles"`
	AssemblyFolderDirs           []string `json:"assemblyFolderDirs" mapstructure:"assemblyFolderDirs"`

	TargetFrameworkDirs           []string `json:"targetFrameworkDirs" mapstructure:"targetFrameworkDirs"`
	InstalledAssemblyTables       []string `json:"installedAssemblyTables" mapstructure:"installedAssemblyTables"`
	InstalledAssemblySubsetTables []string `json:"installedAssemblySubsetTables" mapstructure:"installedAssemblySubsetTables"`
	FullFrameworkTables           []string `json:"fullFrameworkTables" mapstructure:"fullFrameworkTables"`
	FullFrameworkDirs             []string `json:"fullFrameworkDirs" mapstructure:"fullFrameworkDirs"`
	FullSubsetNames               []string `json:"fullSubsetNames" mapstructure:"fullSubsetNames"`

	IgnoreDefaultInstalledAssemblyTables bool `json:"ignoreDefaultInstalledAssemblyTables" mapstructure:"ignoreDefaultInstalledAssemblyTables"`

	TargetFrameworkVersion      string `json:"targetFrameworkVersion" mapstructure:"targetFrameworkVersion"`
	TargetFrameworkMoniker      string `json:"targetFrameworkMoniker" mapstructure:"targetFrameworkMoniker"`
	TargetedRuntimeVersion      string `json:"targetedRuntimeVersion" mapstructure:"targetedRuntimeVersion"`
	TargetProcessorArchitecture string `json:"targetProcessorArchitecture" mapstructure:"targetProcessorArchitecture"`

	AutoUnify bool `json:"autoUnify" mapstructure:"autoUnify"`

	CopyLocalDependenciesWhenParentInGac bool `json:"copyLocalDependenciesWhenParentInGac" mapstructure:"copyLocalDependenciesWhenParentInGac"`
	DoNotCopyLocalIfInGac                bool `json:"doNotCopyLocalIfInGac" mapstructure:"doNotCopyLocalIfInGac"`

	ConfigFile string `json:"configFile" mapstructure:"configFile"`
	StateFile  string `json:"stateFile" mapstructure:"stateFile"`

	GacRoot string `json:"gacRoot" mapstructure:"gacRoot"`

	FindDependencies            bool `json:"findDependencies" mapstructure:"findDependencies"`
	FindDependenciesOfExternallyResolved bool `json:"findDependenciesOfExternallyResolved" mapstructure:"findDependenciesOfExternallyResolved"`
	FindSatellites              bool `json:"findSatellites" mapstructure:"findSatellites"`
	FindSerializationAssemblies bool `json:"findSerializationAssemblies" mapstructure:"findSerializationAssemblies"`
	FindRelatedFiles            bool `json:"findRelatedFiles" mapstructure:"findRelatedFiles"`

	WarnOrErrorOnTargetArchitectureMismatch ArchMismatchSeverity `json:"warnOrErrorOnTargetArchitectureMismatch" mapstructure:"warnOrErrorOnTargetArchitectureMismatch"`

	Silent bool `json:"silent" mapstructure:"silent"`

	DecisionLogDB string `json:"decisionLogDb" mapstructure:"decisionLogDb"`

	ProbeWorkers int `json:"probeWorkers" mapstructure:"probeWorkers"`

	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *ResolverConfig {
	return &ResolverConfig{
		AllowedAssemblyExtensions:    []string{".winmd", ".dll", ".exe"},
		AllowedRelatedFileExtensions: []string{".pdb", ".xml"},
		TargetedRuntimeVersion:       "v2.0.50727",
		TargetProcessorArchitecture:  string(identity.ArchMSIL),
		CopyLocalDependenciesWhenParentInGac: true,
		FindDependencies:             true,
		FindSatellites:               true,
		FindRelatedFiles:             true,
		WarnOrErrorOnTargetArchitectureMismatch: ArchMismatchWarning,
		ProbeWorkers: 4,
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// LoadConfig reads a resolver configuration file (JSON, YAML or TOML by
// extension) over the defaults.
func LoadConfig(path string) (*ResolverConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.New(errors.InvalidParameter, "cannot read resolver config "+path, err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.New(errors.InvalidParameter, "cannot decode resolver config "+path, err)
	}
	return cfg, nil
}

// Save writes the configuration as indented JSON.
func (c *ResolverConfig) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

var validArches = map[string]bool{
	string(identity.ArchNone):  true,
	string(identity.ArchMSIL):  true,
	string(identity.ArchX86):   true,
	string(identity.ArchAMD64): true,
	string(identity.ArchIA64):  true,
	string(identity.ArchARM):   true,
}

// Validate checks the configuration; failures are InvalidParameter
// errors and abort the invocation.
func (c *ResolverConfig) Validate() error {
	if len(c.PrimaryAssemblies) == 0 && len(c.PrimaryFiles) == 0 {
		return errors.Newf(errors.InvalidParameter, "no primary assemblies or primary files given")
	}
	for _, p := range c.PrimaryAssemblies {
		if _, err := identity.Parse(p.Identity); err != nil {
			return errors.New(errors.InvalidParameter, "bad primary assembly identity", err)
		}
	}
	if !validArches[c.TargetProcessorArchitecture] {
		return errors.Newf(errors.InvalidParameter, "bad target processor architecture %q", c.TargetProcessorArchitecture)
	}
	switch c.WarnOrErrorOnTargetArchitectureMismatch {
	case ArchMismatchNone, ArchMismatchWarning, ArchMismatchError:
	default:
		return errors.Newf(errors.InvalidParameter, "bad architecture mismatch severity %q", c.WarnOrErrorOnTargetArchitectureMismatch)
	}
	if c.TargetedRuntimeVersion != "" {
		v := strings.TrimPrefix(c.TargetedRuntimeVersion, "v")
		if _, err := identity.ParseVersion(v); err != nil {
			return errors.New(errors.InvalidParameter, "bad targeted runtime version", err)
		}
	}
	for _, ext := range c.AllowedAssemblyExtensions {
		if !strings.HasPrefix(ext, ".") {
			return errors.Newf(errors.InvalidParameter, "assembly extension %q must start with a dot", ext)
		}
	}
	if c.ProbeWorkers < 0 {
		return errors.Newf(errors.InvalidParameter, "probe workers must be non-negative")
	}
	return nil
}

// TargetArch returns the parsed target architecture.
func (c *ResolverConfig) TargetArch() identity.ProcessorArchitecture {
	return identity.ProcessorArchitecture(c.TargetProcessorArchitecture)
}
