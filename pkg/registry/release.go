package registry

import (
	"time"

	"github.com/package-url/packageurl-go"
)

// Release is one published version of a crate.
type Release struct {
	Number      string
	License     string
	Yanked      bool
	PublishedAt time.Time
}

// Releases is the published history of a crate, newest first as the
// registry lists it.
type Releases []Release

// Numbers returns the version numbers, skipping yanked releases unless
// includeYanked is set.
func (rs Releases) Numbers(includeYanked bool) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		if r.Yanked && !includeYanked {
			continue
		}
		out = append(out, r.Number)
	}
	return out
}

// Lookup finds the release with the given number.
func (rs Releases) Lookup(number string) (Release, bool) {
	for _, r := range rs {
		if r.Number == number {
			return r, true
		}
	}
	return Release{}, false
}

// License returns the license expression published with a version and
// whether that version exists.
func (rs Releases) License(number string) (string, bool) {
	r, ok := rs.Lookup(number)
	return r.License, ok
}

// PURL returns the package URL of a crate version, e.g.
// pkg:cargo/serde@1.0.195. An empty version is omitted.
func PURL(name, version string) string {
	return packageurl.NewPackageURL(packageurl.TypeCargo, "", name, version, nil, "").ToString()
}
