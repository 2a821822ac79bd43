package version

import (
	"strings"

	"golang.org/x/mod/semver"
)

// Canonical returns s in "vMAJOR.MINOR.PATCH[-pre]" form. ok is false unless s
// is a full three-part semantic version; the shorthand forms semver accepts
// ("1", "1.2") are rejected. A leading "v" is optional.
func Canonical(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if s[0] != 'v' {
		s = "v" + s
	}
	if !semver.IsValid(s) {
		return "", false
	}

	core := s[1:]
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	if strings.Count(core, ".") != 2 {
		return "", false
	}

	return semver.Canonical(s), true
}

// IsUpdateAvailable reports whether latest has higher semver precedence than
// current. If either side does not parse, it returns false: a corrupt version
// string must never start an uninstall/install cycle.
func IsUpdateAvailable(current, latest string) bool {
	cur, ok := Canonical(current)
	if !ok {
		log.Warn("current version is not semver, treating as up to date", "version", current)
		return false
	}
	lat, ok := Canonical(latest)
	if !ok {
		log.Warn("latest version is not semver, treating as up to date", "version", latest)
		return false
	}
	return semver.Compare(lat, cur) > 0
}
