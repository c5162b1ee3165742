package identity

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a four-part assembly version. Missing components compare
// as zero.
type Version struct {
	Major    int
	Minor    int
	Build    int
	Revision int
}

// ZeroVersion is the all-zero version used as the open lower bound of a
// suggested redirect range.
var ZeroVersion = Version{}

// ParseVersion parses a dotted version string with one to four components.
func ParseVersion(s string) (Version, error) {
	var v Version
	if s == "" {
		return v, fmt.Errorf("empty version")
	}
	parts := strings.Split(s, ".")
	if len(parts) > 4 {
		return v, fmt.Errorf("version %q has more than four components", s)
	}
	fields := []*int{&v.Major, &v.Minor, &v.Build, &v.Revision}
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("version %q: bad component %q", s, p)
		}
		*fields[i] = n
	}
	return v, nil
}

// Compare returns -1, 0 or 1 ordering v against o lexicographically by
// (major, minor, build, revision).
func (v Version) Compare(o Version) int {
	pairs := [4][2]int{
		{v.Major, o.Major},
		{v.Minor, o.Minor},
		{v.Build, o.Build},
		{v.Revision, o.Revision},
	}
	for _, p := range pairs {
		if p[0] < p[1] {
			return -1
		}
		if p[0] > p[1] {
			return 1
		}
	}
	return 0
}

// Less reports whether v orders before o.
func (v Version) Less(o Version) bool { return v.Compare(o) < 0 }

// IsZero reports whether all four components are zero.
func (v Version) IsZero() bool { return v == Version{} }

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Build, v.Revision)
}

// VersionRange is an inclusive version interval used by binding redirects.
type VersionRange struct {
	Low  Version
	High Version
}

// Contains reports whether v lies within the inclusive range.
func (r VersionRange) Contains(v Version) bool {
	return r.Low.Compare(v) <= 0 && v.Compare(r.High) <= 0
}

// ParseVersionRange parses either a single version or a "low-high" pair.
func ParseVersionRange(s string) (VersionRange, error) {
	if i := strings.IndexByte(s, '-'); i >= 0 {
		low, err := ParseVersion(strings.TrimSpace(s[:i]))
		if err != nil {
			return VersionRange{}, err
		}
		high, err := ParseVersion(strings.TrimSpace(s[i+1:]))
		if err != nil {
			return VersionRange{}, err
		}
		if high.Less(low) {
			return VersionRange{}, fmt.Errorf("version range %q: bounds inverted", s)
		}
		return VersionRange{Low: low, High: high}, nil
	}
	v, err := ParseVersion(strings.TrimSpace(s))
	if err != nil {
		return VersionRange{}, err
	}
	return VersionRange{Low: v, High: v}, nil
}

func (r VersionRange) String() string {
	if r.Low == r.High {
		return r.Low.String()
	}
	return r.Low.String() + "-" + r.High.String()
}
