package resolve

import (
	"path/filepath"
	"strings"

	"arr/internal/cache"
	"arr/internal/config"
	"arr/internal/locate"
)

// Classifier computes copy-local decisions and the related, satellite
// and serialization file sets for every resolved reference.
type Classifier struct {
	cfg   *config.ResolverConfig
	cache *cache.ResolutionCache
}

// NewClassifier creates a classifier.
func NewClassifier(cfg *config.ResolverConfig, c *cache.ResolutionCache) *Classifier {
	return &Classifier{cfg: cfg, cache: c}
}

// Classify runs over the whole table.
func (cl *Classifier) Classify(table *Table) {
	for _, ref := range table.All() {
		ref.CopyLocal = cl.copyLocal(table, ref)
		if !ref.IsResolved() {
			continue
		}
		if cl.cfg.FindRelatedFiles {
			ref.RelatedFiles = cl.relatedFiles(ref)
		}
		if cl.cfg.FindSatellites {
			ref.SatelliteFiles = cl.satelliteFiles(ref)
		}
		if cl.cfg.FindSerializationAssemblies {
			ref.SerializationFiles = cl.serializationFiles(ref)
		}
	}
}

// copyLocal applies the ordered decision rules; the first match wins.
func (cl *Classifier) copyLocal(table *Table, ref *Reference) CopyLocal {
	if ref.Private != nil {
		if *ref.Private {
			return CopyLocalYes
		}
		return CopyLocalNo
	}
	if !ref.IsResolved() {
		return CopyLocalNo
	}
	if ref.IsFrameworkFile && ref.FoundInGac {
		return CopyLocalNoPrerequisite
	}
	if ref.EmbedInteropTypes {
		return CopyLocalNoEmbedded
	}
	if ref.Conflict == ConflictVictim {
		return CopyLocalNoConflictVictim
	}
	if ref.Source == locate.SourceGac {
		return CopyLocalNoResolvedFromGac
	}
	if ref.FoundInGac && cl.cfg.DoNotCopyLocalIfInGac {
		return CopyLocalNoFoundInGac
	}
	if !ref.IsPrimary && !cl.cfg.CopyLocalDependenciesWhenParentInGac && cl.allParentsInGac(table, ref) {
		return CopyLocalNoParentsInGac
	}
	if ref.IsFrameworkFile {
		return CopyLocalNoFrameworkFile
	}
	return CopyLocalYesHeuristic
}

func (cl *Classifier) allParentsInGac(table *Table, ref *Reference) bool {
	if len(ref.Dependees) == 0 {
		return false
	}
	for key := range ref.Dependees {
		parent := table.Get(key)
		if parent == nil {
			continue
		}
		if !parent.FoundInGac && parent.Source != locate.SourceGac {
			return false
		}
	}
	return true
}

// relatedFiles finds same-basename files with the configured related
// extensions next to the resolved file.
func (cl *Classifier) relatedFiles(ref *Reference) []string {
	dir := filepath.Dir(ref.Location)
	base := strings.TrimSuffix(filepath.Base(ref.Location), filepath.Ext(ref.Location))

	var out []string
	for _, name := range cl.cache.ListDir(dir) {
		ext := filepath.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		if !strings.EqualFold(stem, base) {
			continue
		}
		for _, allowed := range cl.cfg.AllowedRelatedFileExtensions {
			if strings.EqualFold(ext, allowed) {
				out = append(out, filepath.Join(dir, name))
				break
			}
		}
	}
	return out
}

// satelliteFiles probes every subdirectory of the resolved file's
// directory for <basename>.resources.dll; subdirectory names are not
// checked against a list of cultures.
func (cl *Classifier) satelliteFiles(ref *Reference) []string {
	dir := filepath.Dir(ref.Location)
	base := strings.TrimSuffix(filepath.Base(ref.Location), filepath.Ext(ref.Location))

	var out []string
	for _, sub := range cl.cache.ListSubdirs(dir) {
		candidate := filepath.Join(dir, sub, base+".resources.dll")
		if cl.cache.FileExists(candidate) {
			out = append(out, candidate)
		}
	}
	return out
}

// serializationFiles finds pre-generated serializer assemblies next to
// the resolved file.
func (cl *Classifier) serializationFiles(ref *Reference) []string {
	dir := filepath.Dir(ref.Location)
	base := strings.TrimSuffix(filepath.Base(ref.Location), filepath.Ext(ref.Location))

	candidate := filepath.Join(dir, base+".XmlSerializers.dll")
	if cl.cache.FileExists(candidate) {
		return []string{candidate}
	}
	return nil
}
