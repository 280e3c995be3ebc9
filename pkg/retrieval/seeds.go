package retrieval

// TierSeedCounts records how many distinct nodes each tier contributed to
// the seed vector. Reported in bundle metadata.
type TierSeedCounts struct {
	Entity     int `json:"entity"`
	Structural int `json:"structural"`
	Thematic   int `json:"thematic"`
}

func (c TierSeedCounts) add(other TierSeedCounts) TierSeedCounts {
	return TierSeedCounts{
		Entity:     c.Entity + other.Entity,
		Structural: c.Structural + other.Structural,
		Thematic:   c.Thematic + other.Thematic,
	}
}

func tierShare(profile WeightProfile, tier string) float64 {
	switch tier {
	case tierEntity:
		return profile.Entity
	case tierStructural:
		return profile.Structural
	case tierThematic:
		return profile.Thematic
	}
	return 0
}

// tierRank orders tiers by evidence priority. Lower ranks are protected
// longer when the budgeter drops passages.
func tierRank(tier string) int {
	switch tier {
	case tierEntity:
		return 0
	case tierStructural:
		return 1
	case tierThematic:
		return 2
	}
	return 3
}

// buildSeedVector merges the tier results into one normalized
// seed/teleportation vector over node ids.
//
// Shares of empty tiers redistribute proportionally across the non-empty
// ones with no loss. Within a tier, weight is divided across semantic
// groups first and only then across each group's member nodes, so a large
// group cannot dilute a small highly relevant one to invisibility.
func buildSeedVector(tiers []tierResult, profile WeightProfile) (map[string]float64, TierSeedCounts) {
	var counts TierSeedCounts

	nonEmptyShareSum := 0.0
	for _, t := range tiers {
		if countedGroups(t) > 0 {
			nonEmptyShareSum += tierShare(profile, t.tier)
		}
	}
	if nonEmptyShareSum == 0 {
		return map[string]float64{}, counts
	}

	seed := map[string]float64{}
	for _, t := range tiers {
		groups := countedGroups(t)
		if groups == 0 {
			continue
		}

		share := tierShare(profile, t.tier) / nonEmptyShareSum
		groupShare := share / float64(groups)

		tierNodes := map[string]struct{}{}
		for _, g := range t.groups {
			if len(g.nodeIDs) == 0 {
				continue
			}
			memberShare := groupShare / float64(len(g.nodeIDs))
			for _, id := range g.nodeIDs {
				seed[id] += memberShare
				tierNodes[id] = struct{}{}
			}
		}

		switch t.tier {
		case tierEntity:
			counts.Entity = len(tierNodes)
		case tierStructural:
			counts.Structural = len(tierNodes)
		case tierThematic:
			counts.Thematic = len(tierNodes)
		}
	}

	normalizeVector(seed)
	return seed, counts
}

func countedGroups(t tierResult) int {
	n := 0
	for _, g := range t.groups {
		if len(g.nodeIDs) > 0 {
			n++
		}
	}
	return n
}

// seedOrigins maps each seeded node to the strongest tier that produced
// it, using tierRank ordering.
func seedOrigins(tiers []tierResult) map[string]int {
	origins := map[string]int{}
	for _, t := range tiers {
		rank := tierRank(t.tier)
		for _, g := range t.groups {
			for _, id := range g.nodeIDs {
				if existing, ok := origins[id]; !ok || rank < existing {
					origins[id] = rank
				}
			}
		}
	}
	return origins
}

// uniformSeed spreads seed weight evenly across the given node ids.
func uniformSeed(ids []string) map[string]float64 {
	seed := make(map[string]float64, len(ids))
	if len(ids) == 0 {
		return seed
	}
	w := 1 / float64(len(ids))
	for _, id := range ids {
		seed[id] = w
	}
	return seed
}

// normalizeVector scales the vector in place so its values sum to 1.
// Zero or empty vectors are left untouched.
func normalizeVector(v map[string]float64) {
	sum := 0.0
	for _, w := range v {
		sum += w
	}
	if sum <= 0 {
		return
	}
	for id := range v {
		v[id] /= sum
	}
}
