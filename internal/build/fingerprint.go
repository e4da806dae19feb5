package build

import (
	"slices"
	"strings"

	"github.com/inful/mdfp"
)

// siteFingerprint accumulates per-output fingerprints into one value that
// changes whenever any rendered output changes.
type siteFingerprint struct {
	entries []string
}

func (f *siteFingerprint) add(output, html string) {
	f.entries = append(f.entries, output+"\t"+mdfp.CalculateFingerprintFromParts(output, html))
}

func (f *siteFingerprint) sum() string {
	if len(f.entries) == 0 {
		return ""
	}
	sorted := slices.Clone(f.entries)
	slices.Sort(sorted)
	return mdfp.CalculateFingerprintFromParts("", strings.Join(sorted, "\n"))
}
