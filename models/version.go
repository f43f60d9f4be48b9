package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// versionPattern accepts "24.5", "24.5.1" and "24.5.1.1763" with an optional
// leading "v" and an optional suffix such as " (official build)" or "-lts".
var versionPattern = regexp.MustCompile(`^v?(\d+)\.(\d+)(?:\.(\d+))?(?:\.(\d+))?(?:[\s\-+].*)?$`)

// ServerVersion is a parsed ClickHouse server version.
//
// Up to four numeric components are kept (major, minor, patch, build).
// Components that were not present in the source text are stored as zero,
// so "24.5" and "24.5.0" compare equal.
type ServerVersion struct {
	Major int
	Minor int
	Patch int
	Build int

	// components is how many parts the source text had, used by String.
	components int
}

// ParseVersion parses a dotted version string.
//
// Version detection is best effort, so ParseVersion never fails loudly:
// it returns nil when the text cannot be parsed and callers treat nil as
// "unknown version".
func ParseVersion(text string) *ServerVersion {
	m := versionPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return nil
	}

	var parts [4]int
	count := 0
	for i, raw := range m[1:] {
		if raw == "" {
			break
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil
		}
		parts[i] = n
		count++
	}

	return &ServerVersion{
		Major:      parts[0],
		Minor:      parts[1],
		Patch:      parts[2],
		Build:      parts[3],
		components: count,
	}
}

// MustParseVersion is like ParseVersion but panics on invalid input.
// It is meant for static catalog definitions.
func MustParseVersion(text string) ServerVersion {
	v := ParseVersion(text)
	if v == nil {
		panic(fmt.Sprintf("models: invalid version %q", text))
	}
	return *v
}

// Compare returns -1, 0 or 1 when a is lower than, equal to or greater than b.
func Compare(a, b ServerVersion) int {
	left := [4]int{a.Major, a.Minor, a.Patch, a.Build}
	right := [4]int{b.Major, b.Minor, b.Patch, b.Build}
	for i := range left {
		switch {
		case left[i] < right[i]:
			return -1
		case left[i] > right[i]:
			return 1
		}
	}
	return 0
}

// AtLeast reports whether v >= other.
func (v ServerVersion) AtLeast(other ServerVersion) bool {
	return Compare(v, other) >= 0
}

func (v ServerVersion) String() string {
	parts := []int{v.Major, v.Minor, v.Patch, v.Build}
	n := v.components
	if n < 2 {
		n = 2
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = strconv.Itoa(parts[i])
	}
	return strings.Join(out, ".")
}

// MarshalJSON encodes the version as its dotted string.
func (v ServerVersion) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

// UnmarshalJSON decodes a dotted version string.
func (v *ServerVersion) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return err
	}
	parsed := ParseVersion(text)
	if parsed == nil {
		return fmt.Errorf("invalid server version %q", text)
	}
	*v = *parsed
	return nil
}
