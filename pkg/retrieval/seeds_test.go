package retrieval

import (
	"fmt"
	"math"
	"testing"
)

func group(key string, nodeIDs ...string) seedGroup {
	return seedGroup{key: key, nodeIDs: nodeIDs}
}

func vectorSum(v map[string]float64) float64 {
	sum := 0.0
	for _, w := range v {
		sum += w
	}
	return sum
}

func TestBuildSeedVector_WeightConservation(t *testing.T) {
	entity := tierResult{tier: tierEntity, groups: []seedGroup{group("turbine", "n1")}}
	structural := tierResult{tier: tierStructural, groups: []seedGroup{group("s1", "n2", "n3")}}
	thematic := tierResult{tier: tierThematic, groups: []seedGroup{group("p1", "n4")}}
	empty := func(tier string) tierResult { return tierResult{tier: tier} }

	// Every profile against every combination of empty and non-empty
	// tiers must yield a vector summing to exactly 1 after redistribution.
	for name := range weightProfiles {
		profile := weightProfiles[name]
		for mask := 1; mask < 8; mask++ {
			tiers := []tierResult{empty(tierEntity), empty(tierStructural), empty(tierThematic)}
			if mask&1 != 0 {
				tiers[0] = entity
			}
			if mask&2 != 0 {
				tiers[1] = structural
			}
			if mask&4 != 0 {
				tiers[2] = thematic
			}

			t.Run(fmt.Sprintf("%s_mask%d", name, mask), func(t *testing.T) {
				seed, _ := buildSeedVector(tiers, profile)
				if sum := vectorSum(seed); math.Abs(sum-1) > 1e-9 {
					t.Fatalf("seed vector sums to %v, want 1", sum)
				}
			})
		}
	}
}

func TestBuildSeedVector_AllTiersEmpty(t *testing.T) {
	tiers := []tierResult{
		{tier: tierEntity},
		{tier: tierStructural},
		{tier: tierThematic},
	}
	seed, counts := buildSeedVector(tiers, weightProfiles[ProfileNameDefault])
	if len(seed) != 0 {
		t.Fatalf("expected empty seed vector, got %d entries", len(seed))
	}
	if counts != (TierSeedCounts{}) {
		t.Fatalf("expected zero counts, got %+v", counts)
	}
}

func TestBuildSeedVector_RedistributesEmptyTiers(t *testing.T) {
	tiers := []tierResult{
		{tier: tierEntity},
		{tier: tierStructural, groups: []seedGroup{group("s1", "n1")}},
		{tier: tierThematic, groups: []seedGroup{group("p1", "n2")}},
	}

	// default profile 0.5/0.3/0.2: the empty entity share is spread
	// proportionally, giving structural 0.6 and thematic 0.4.
	seed, counts := buildSeedVector(tiers, weightProfiles[ProfileNameDefault])
	if math.Abs(seed["n1"]-0.6) > 1e-9 {
		t.Fatalf("structural node weight = %v, want 0.6", seed["n1"])
	}
	if math.Abs(seed["n2"]-0.4) > 1e-9 {
		t.Fatalf("thematic node weight = %v, want 0.4", seed["n2"])
	}
	if counts.Entity != 0 || counts.Structural != 1 || counts.Thematic != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}

func TestBuildSeedVector_GroupLevelDivision(t *testing.T) {
	// One small and one large group in the same tier: the small group's
	// members must not be diluted by the large group's member count.
	large := make([]string, 40)
	for i := range large {
		large[i] = fmt.Sprintf("big%d", i)
	}
	tiers := []tierResult{
		{tier: tierEntity},
		{tier: tierStructural, groups: []seedGroup{
			group("s-small", "a1", "a2", "a3"),
			{key: "s-large", nodeIDs: large},
		}},
		{tier: tierThematic},
	}

	seed, _ := buildSeedVector(tiers, weightProfiles[ProfileNameDefault])

	smallWeight := seed["a1"]
	largeWeight := seed["big0"]
	// Each group holds half the tier share, so per-node weight differs by
	// the member ratio 40/3, not by a flat per-node division.
	if math.Abs(smallWeight/largeWeight-40.0/3.0) > 1e-6 {
		t.Fatalf("small/large member weight ratio = %v, want %v", smallWeight/largeWeight, 40.0/3.0)
	}
	if sum := vectorSum(seed); math.Abs(sum-1) > 1e-9 {
		t.Fatalf("seed vector sums to %v, want 1", sum)
	}
}

func TestBuildSeedVector_NodeInMultipleTiersAccumulates(t *testing.T) {
	tiers := []tierResult{
		{tier: tierEntity, groups: []seedGroup{group("turbine", "n1")}},
		{tier: tierStructural, groups: []seedGroup{group("s1", "n1")}},
		{tier: tierThematic, groups: []seedGroup{group("p1", "n2")}},
	}

	seed, _ := buildSeedVector(tiers, weightProfiles[ProfileNameDefault])
	if math.Abs(seed["n1"]-0.8) > 1e-9 {
		t.Fatalf("n1 weight = %v, want 0.8 (entity 0.5 + structural 0.3)", seed["n1"])
	}
	if math.Abs(seed["n2"]-0.2) > 1e-9 {
		t.Fatalf("n2 weight = %v, want 0.2", seed["n2"])
	}
}

func TestBuildSeedVector_SkipsEmptyGroups(t *testing.T) {
	tiers := []tierResult{
		{tier: tierEntity, groups: []seedGroup{group("miss"), group("hit", "n1")}},
		{tier: tierStructural},
		{tier: tierThematic},
	}

	seed, _ := buildSeedVector(tiers, weightProfiles[ProfileNameDefault])
	if math.Abs(seed["n1"]-1) > 1e-9 {
		t.Fatalf("n1 weight = %v, want 1 (memberless group must not hold share)", seed["n1"])
	}
}

func TestSeedOrigins_KeepsStrongestTier(t *testing.T) {
	tiers := []tierResult{
		{tier: tierThematic, groups: []seedGroup{group("p1", "n1", "n2")}},
		{tier: tierEntity, groups: []seedGroup{group("turbine", "n1")}},
	}

	origins := seedOrigins(tiers)
	if origins["n1"] != tierRank(tierEntity) {
		t.Fatalf("n1 origin = %d, want entity rank %d", origins["n1"], tierRank(tierEntity))
	}
	if origins["n2"] != tierRank(tierThematic) {
		t.Fatalf("n2 origin = %d, want thematic rank %d", origins["n2"], tierRank(tierThematic))
	}
}

func TestUniformSeed(t *testing.T) {
	seed := uniformSeed([]string{"a", "b", "c", "d"})
	if len(seed) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(seed))
	}
	for id, w := range seed {
		if math.Abs(w-0.25) > 1e-9 {
			t.Fatalf("weight of %s = %v, want 0.25", id, w)
		}
	}
	if len(uniformSeed(nil)) != 0 {
		t.Fatal("expected empty seed for no ids")
	}
}
