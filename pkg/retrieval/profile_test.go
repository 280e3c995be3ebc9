package retrieval

import (
	"math"
	"testing"
)

func TestProfileByName(t *testing.T) {
	for _, name := range []string{ProfileNameDefault, ProfileNameEntity, ProfileNameStructural, ProfileNameThematic} {
		p, err := ProfileByName(name)
		if err != nil {
			t.Fatalf("ProfileByName(%q) returned error: %v", name, err)
		}
		if p.Name != name {
			t.Fatalf("ProfileByName(%q) returned profile named %q", name, p.Name)
		}
		if sum := p.Entity + p.Structural + p.Thematic; math.Abs(sum-1) > 1e-9 {
			t.Fatalf("profile %q shares sum to %v, want 1", name, sum)
		}
	}

	if _, err := ProfileByName("recency"); err == nil {
		t.Fatal("expected error for unknown profile name")
	}
}

func TestSelectWeightProfile(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "plain factual query",
			query: "What is the warranty period for the main bearing?",
			want:  ProfileNameDefault,
		},
		{
			name:  "comparative phrasing",
			query: "Compare the submission deadlines across all documents",
			want:  ProfileNameThematic,
		},
		{
			name:  "versus phrasing",
			query: "Offshore foundations vs onshore foundations",
			want:  ProfileNameThematic,
		},
		{
			name:  "clause level phrasing",
			query: "What does section 4.2 require for grid compliance?",
			want:  ProfileNameStructural,
		},
		{
			name:  "case insensitive",
			query: "COMPARE maintenance intervals",
			want:  ProfileNameThematic,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectWeightProfile(tt.query)
			if got.Name != tt.want {
				t.Fatalf("SelectWeightProfile(%q) = %q, want %q", tt.query, got.Name, tt.want)
			}
		})
	}
}

func TestSelectWeightProfileIsPure(t *testing.T) {
	query := "Compare clauses across all annexes"
	first := SelectWeightProfile(query)
	second := SelectWeightProfile(query)
	if first != second {
		t.Fatalf("profile selection not deterministic: %+v vs %+v", first, second)
	}
}
