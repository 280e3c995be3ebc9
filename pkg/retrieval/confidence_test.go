package retrieval

import (
	"testing"

	"github.com/ternhq/tern/pkg/common"
)

func resultWithDocs(topMass float64, docIDs ...string) *pipelineResult {
	res := &pipelineResult{}
	for i, docID := range docIDs {
		res.evidence = append(res.evidence, passageEvidence{
			passage: common.Passage{ID: docID + "-p", DocumentID: docID},
			order:   i,
		})
	}
	// Four nodes shaped so the top-3 share of total score is exactly topMass.
	if topMass > 0 {
		res.ranked = []RankedNode{
			{ID: "top1", Score: topMass / 3},
			{ID: "top2", Score: topMass / 3},
			{ID: "top3", Score: topMass / 3},
			{ID: "rest", Score: 1 - topMass},
		}
	}
	return res
}

func TestConfidenceScore(t *testing.T) {
	tests := []struct {
		name    string
		results []*pipelineResult
		want    float64
	}{
		{
			name:    "no results",
			results: nil,
			want:    0,
		},
		{
			name:    "empty result",
			results: []*pipelineResult{{}},
			want:    0,
		},
		{
			name: "focused evidence across distinct documents",
			results: []*pipelineResult{
				resultWithDocs(1.0, "d1"),
				resultWithDocs(1.0, "d2"),
			},
			want: 1.0,
		},
		{
			name: "all results hit the same document",
			results: []*pipelineResult{
				resultWithDocs(1.0, "d1"),
				resultWithDocs(1.0, "d1"),
				resultWithDocs(1.0, "d1"),
			},
			// diversity 1/3, concentration 1.
			want: 0.5*(1.0/3.0) + 0.5,
		},
		{
			name: "flat ranking drags confidence down",
			results: []*pipelineResult{
				resultWithDocs(0.5, "d1"),
			},
			// diversity 1, concentration 0.5.
			want: 0.75,
		},
		{
			name: "nil results contribute nothing",
			results: []*pipelineResult{
				nil,
				resultWithDocs(1.0, "d1"),
			},
			// diversity 1/2, concentration 1/2.
			want: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := confidenceScore(tt.results)
			if !almostEqual(got, tt.want) {
				t.Fatalf("confidenceScore = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfidenceScore_Bounded(t *testing.T) {
	results := []*pipelineResult{
		resultWithDocs(1.0, "d1", "d2", "d3"),
		resultWithDocs(1.0, "d4"),
		resultWithDocs(0.1, "d1"),
		{},
	}
	got := confidenceScore(results)
	if got < 0 || got > 1 {
		t.Fatalf("confidenceScore = %v, want within [0, 1]", got)
	}
}

func TestTopScoreMass(t *testing.T) {
	ranked := []RankedNode{
		{ID: "a", Score: 0.4},
		{ID: "b", Score: 0.3},
		{ID: "c", Score: 0.2},
		{ID: "d", Score: 0.1},
	}

	if got := topScoreMass(ranked, 3); !almostEqual(got, 0.9) {
		t.Fatalf("topScoreMass(_, 3) = %v, want 0.9", got)
	}
	if got := topScoreMass(ranked, 10); !almostEqual(got, 1.0) {
		t.Fatalf("n beyond length should cover everything, got %v", got)
	}
	if got := topScoreMass(nil, 3); got != 0 {
		t.Fatalf("empty ranking = %v, want 0", got)
	}
	if got := topScoreMass([]RankedNode{{ID: "a", Score: 0}}, 3); got != 0 {
		t.Fatalf("zero-score ranking = %v, want 0", got)
	}
}
