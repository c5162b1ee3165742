package locate

import (
	"sort"
	"strings"
)

// Registry abstracts the platform registry behind the three operations
// the locator needs. Platforms without a registry return empty results;
// registry probing is best-effort and failure yields zero candidates.
type Registry interface {
	// SubkeyNames lists the child key names under root\path.
	SubkeyNames(root, path string) []string
	// DefaultValue returns the default value of root\path, or "".
	DefaultValue(root, path string) string
	// Open reports whether root\path exists.
	Open(root, path string) bool
}

// EmptyRegistry is the non-platform registry: every probe comes back
// empty.
type EmptyRegistry struct{}

func (EmptyRegistry) SubkeyNames(root, path string) []string { return nil }
func (EmptyRegistry) DefaultValue(root, path string) string  { return "" }
func (EmptyRegistry) Open(root, path string) bool            { return false }

// MapRegistry is an in-memory registry used by tests and fixtures. Keys
// are "root\path" joined with backslashes; values are default values.
type MapRegistry struct {
	Values map[string]string
}

func regJoin(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, `\`)
}

func (m *MapRegistry) SubkeyNames(root, path string) []string {
	prefix := regJoin(root, path) + `\`
	seen := map[string]bool{}
	for k := range m.Values {
		if !strings.HasPrefix(strings.ToLower(k), strings.ToLower(prefix)) {
			continue
		}
		rest := k[len(prefix):]
		if i := strings.IndexByte(rest, '\\'); i >= 0 {
			rest = rest[:i]
		}
		if rest != "" {
			seen[rest] = true
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (m *MapRegistry) DefaultValue(root, path string) string {
	key := regJoin(root, path)
	for k, v := range m.Values {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func (m *MapRegistry) Open(root, path string) bool {
	key := strings.ToLower(regJoin(root, path))
	for k := range m.Values {
		lk := strings.ToLower(k)
		if lk == key || strings.HasPrefix(lk, key+`\`) {
			return true
		}
	}
	return false
}

// registryDirs walks a {Registry:base,version,suffix} subtree and
// derives candidate directories: the non-empty default value of
// base\version\suffix itself, then that of each of its subkeys. The
// values are not checked for being existing directories.
func registryDirs(reg Registry, sp SearchPath) []string {
	base := regJoin(sp.RegistryBase, sp.RegistryVersion, sp.RegistrySuffix)
	if !reg.Open("", base) {
		return nil
	}
	var dirs []string
	if v := reg.DefaultValue("", base); v != "" {
		dirs = append(dirs, v)
	}
	for _, sub := range reg.SubkeyNames("", base) {
		if v := reg.DefaultValue("", regJoin(base, sub)); v != "" {
			dirs = append(dirs, v)
		}
	}
	return dirs
}
