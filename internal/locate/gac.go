package locate

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"arr/internal/identity"
)

// Gac abstracts the shared assembly cache. Lookup returns the path of
// the best entry for the identity, or ok=false when the cache has none.
type Gac interface {
	Lookup(id identity.Identity) (path string, found identity.Identity, ok bool)
	// Contains reports membership without choosing a file. The output
	// classifier uses it for the found-in-GAC copy-local rule.
	Contains(id identity.Identity) bool
}

// NullGac is the empty shared cache.
type NullGac struct{}

func (NullGac) Lookup(identity.Identity) (string, identity.Identity, bool) {
	return "", identity.Identity{}, false
}
func (NullGac) Contains(identity.Identity) bool { return false }

// DirectoryGac reads a GAC laid out on disk as
//
//	root/<simple name>/<version>_<culture>_<token>/<simple name>.dll
//
// When the request states a version only that version matches; otherwise
// the highest version wins.
type DirectoryGac struct {
	Root string
}

type gacEntry struct {
	dir     string
	version identity.Version
	culture string
	token   string
}

func (g *DirectoryGac) entries(name string) []gacEntry {
	nameDir := filepath.Join(g.Root, name)
	ents, err := os.ReadDir(nameDir)
	if err != nil {
		return nil
	}
	var out []gacEntry
	for _, e := range ents {
		if !e.IsDir() {
			continue
		}
		parts := strings.SplitN(e.Name(), "_", 3)
		if len(parts) != 3 {
			continue
		}
		v, err := identity.ParseVersion(parts[0])
		if err != nil {
			continue
		}
		out = append(out, gacEntry{
			dir:     filepath.Join(nameDir, e.Name()),
			version: v,
			culture: identity.NormalizeCulture(parts[1]),
			token:   strings.ToLower(parts[2]),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[j].version.Less(out[i].version) })
	return out
}

func (g *DirectoryGac) match(id identity.Identity) (gacEntry, bool) {
	for _, e := range g.entries(id.Name) {
		if e.culture != id.Culture {
			continue
		}
		if id.PublicKeyToken != "" && e.token != id.PublicKeyToken {
			continue
		}
		if id.HasVersion && e.version != id.Version {
			continue
		}
		return e, true
	}
	return gacEntry{}, false
}

func (g *DirectoryGac) Lookup(id identity.Identity) (string, identity.Identity, bool) {
	e, ok := g.match(id)
	if !ok {
		return "", identity.Identity{}, false
	}
	path := filepath.Join(e.dir, id.Name+".dll")
	if _, err := os.Stat(path); err != nil {
		return "", identity.Identity{}, false
	}
	found := identity.New(id.Name, e.version, e.culture, e.token, identity.ArchNone)
	return path, found, true
}

func (g *DirectoryGac) Contains(id identity.Identity) bool {
	_, ok := g.match(id)
	return ok
}
