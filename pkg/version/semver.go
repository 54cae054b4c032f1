package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// SemVer is a parsed semantic version (semver.org 2.0.0). A leading "v" is accepted.
type SemVer struct {
	Major uint64
	Minor uint64
	Patch uint64

	PreRelease string
	Build      string
}

// Parse parses raw as a semantic version.
func Parse(raw string) (SemVer, error) {
	s := strings.TrimPrefix(strings.TrimSpace(raw), "v")
	if s == "" {
		return SemVer{}, errors.New("version cannot be empty")
	}

	var v SemVer
	s, build, hasBuild := strings.Cut(s, "+")
	if hasBuild {
		if err := checkIdentifiers(build, false); err != nil {
			return SemVer{}, fmt.Errorf("invalid build metadata in %q: %w", raw, err)
		}
		v.Build = build
	}
	core, pre, hasPre := strings.Cut(s, "-")
	if hasPre {
		if err := checkIdentifiers(pre, true); err != nil {
			return SemVer{}, fmt.Errorf("invalid prerelease in %q: %w", raw, err)
		}
		v.PreRelease = pre
	}

	parts := strings.Split(core, ".")
	if len(parts) != 3 {
		return SemVer{}, fmt.Errorf("invalid semantic version %q: want MAJOR.MINOR.PATCH", raw)
	}
	fields := [3]*uint64{&v.Major, &v.Minor, &v.Patch}
	for i, part := range parts {
		n, err := parseNumeric(part)
		if err != nil {
			return SemVer{}, fmt.Errorf("invalid semantic version %q: %w", raw, err)
		}
		*fields[i] = n
	}
	return v, nil
}

// IsValid reports whether raw is a semantic version.
func IsValid(raw string) bool {
	_, err := Parse(raw)
	return err == nil
}

// IsPreRelease reports whether v carries a prerelease tag.
func (v SemVer) IsPreRelease() bool {
	return v.PreRelease != ""
}

// APILabel returns the API version implied by the major version, e.g. "v2".
func (v SemVer) APILabel() string {
	return "v" + strconv.FormatUint(v.Major, 10)
}

// String returns the canonical form, without the "v" prefix.
func (v SemVer) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.PreRelease != "" {
		b.WriteString("-" + v.PreRelease)
	}
	if v.Build != "" {
		b.WriteString("+" + v.Build)
	}
	return b.String()
}

func parseNumeric(s string) (uint64, error) {
	if s == "" {
		return 0, errors.New("empty numeric component")
	}
	if len(s) > 1 && s[0] == '0' {
		return 0, fmt.Errorf("numeric component %q has a leading zero", s)
	}
	return strconv.ParseUint(s, 10, 64)
}

// checkIdentifiers validates dot-separated identifiers. Numeric prerelease
// identifiers must not have leading zeros; build identifiers may.
func checkIdentifiers(s string, prerelease bool) error {
	for _, id := range strings.Split(s, ".") {
		if id == "" {
			return errors.New("empty identifier")
		}
		numeric := true
		for _, r := range id {
			switch {
			case r >= '0' && r <= '9':
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '-':
				numeric = false
			default:
				return fmt.Errorf("identifier %q contains %q", id, r)
			}
		}
		if prerelease && numeric && len(id) > 1 && id[0] == '0' {
			return fmt.Errorf("numeric identifier %q has a leading zero", id)
		}
	}
	return nil
}
