package retrieval

import (
	"fmt"
	"strings"
)

// WeightProfile fixes how seed weight is split across the three resolver
// tiers. Profiles are immutable values; per-query adjustments happen by
// selecting a different profile, never by mutating one.
type WeightProfile struct {
	Name       string
	Entity     float64
	Structural float64
	Thematic   float64
}

const (
	ProfileNameDefault    = "default"
	ProfileNameEntity     = "entity"
	ProfileNameStructural = "structural"
	ProfileNameThematic   = "thematic"
)

var weightProfiles = map[string]WeightProfile{
	ProfileNameDefault:    {Name: ProfileNameDefault, Entity: 0.5, Structural: 0.3, Thematic: 0.2},
	ProfileNameEntity:     {Name: ProfileNameEntity, Entity: 0.6, Structural: 0.25, Thematic: 0.15},
	ProfileNameStructural: {Name: ProfileNameStructural, Entity: 0.3, Structural: 0.5, Thematic: 0.2},
	ProfileNameThematic:   {Name: ProfileNameThematic, Entity: 0.25, Structural: 0.25, Thematic: 0.5},
}

// ProfileByName returns the weight profile registered under name.
func ProfileByName(name string) (WeightProfile, error) {
	p, ok := weightProfiles[name]
	if !ok {
		return WeightProfile{}, fmt.Errorf("unknown weight profile %q", name)
	}
	return p, nil
}

var comparativeMarkers = []string{
	"compare", "comparison", "versus", " vs ", " vs.", "difference between",
	"differences between", "across all", "across the", "in common",
}

var structuralMarkers = []string{
	"section", "clause", "paragraph", "article ", "chapter", "appendix", "annex",
}

// SelectWeightProfile picks a weight profile from surface features of the
// query text. Broad comparative phrasing shifts weight toward the thematic
// tier, clause-level phrasing toward the structural tier, everything else
// uses the default split. Pure function of the query string.
func SelectWeightProfile(query string) WeightProfile {
	q := " " + strings.ToLower(strings.TrimSpace(query)) + " "

	for _, marker := range comparativeMarkers {
		if strings.Contains(q, marker) {
			return weightProfiles[ProfileNameThematic]
		}
	}
	for _, marker := range structuralMarkers {
		if strings.Contains(q, marker) {
			return weightProfiles[ProfileNameStructural]
		}
	}
	return weightProfiles[ProfileNameDefault]
}
