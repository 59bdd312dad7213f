package routeros

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var versionRe = regexp.MustCompile(`^\s*([0-9]+(?:\.[0-9]+)*)(?:[-_.]?(?:alpha|beta|preview|pre|rc|a|b|c)[-_.]?([0-9]+)?)?\s*`)

// Version is a RouterOS firmware version. Ordering compares the release
// tuple (major, minor, patch) first and the pre-release ordinal only when
// the tuples are equal; an absent pre-release counts as ordinal 0, so
// 7.6 < 7.6.1 and 7 == 7.0.0.
type Version struct {
	Major, Minor, Patch int
	Pre                 int
}

// ParseVersion parses strings like "7.6", "7.11.2", "7.13rc1" or the
// "/system/resource" form "7.11.2 (stable)".
func ParseVersion(s string) (Version, error) {
	m := versionRe.FindStringSubmatch(strings.ToLower(s))
	if m == nil {
		return Version{}, fmt.Errorf("routeros: unable to parse version %q", s)
	}
	var v Version
	parts := strings.Split(m[1], ".")
	nums := []*int{&v.Major, &v.Minor, &v.Patch}
	for i, p := range parts {
		if i >= len(nums) {
			break
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, fmt.Errorf("routeros: unable to parse version %q", s)
		}
		*nums[i] = n
	}
	if m[2] != "" {
		v.Pre, _ = strconv.Atoi(m[2])
	}
	return v, nil
}

// MustVersion is ParseVersion for static version literals.
func MustVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Compare returns -1, 0 or 1.
func (v Version) Compare(o Version) int {
	pairs := [][2]int{
		{v.Major, o.Major},
		{v.Minor, o.Minor},
		{v.Patch, o.Patch},
		{v.Pre, o.Pre},
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

func (v Version) Less(o Version) bool    { return v.Compare(o) < 0 }
func (v Version) Greater(o Version) bool { return v.Compare(o) > 0 }

func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Pre != 0 {
		s += fmt.Sprintf("rc%d", v.Pre)
	}
	return s
}
