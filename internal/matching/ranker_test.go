package matching

import (
	"errors"
	"math"
	"testing"

	"jobboard/internal/errcode"
)

func newDefaultRanker(t *testing.T) *Ranker {
	t.Helper()
	r, err := NewRanker(DefaultWeights, DefaultThreshold, DefaultTopK)
	if err != nil {
		t.Fatalf("NewRanker: %v", err)
	}
	return r
}

func TestNewRankerRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name    string
		weights Weights
		topK    int
	}{
		{name: "negative skill", weights: Weights{Skill: -0.1, Location: 0.3}, topK: 10},
		{name: "negative location", weights: Weights{Skill: 0.7, Location: -1}, topK: 10},
		{name: "zero top-k", weights: DefaultWeights, topK: 0},
		{name: "nan skill", weights: Weights{Skill: math.NaN(), Location: 0.3}, topK: 10},
		{name: "infinite skill", weights: Weights{Skill: math.Inf(1), Location: 0.3}, topK: 10},
		{name: "negative infinite location", weights: Weights{Skill: 0.7, Location: math.Inf(-1)}, topK: 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRanker(tc.weights, DefaultThreshold, tc.topK)
			var ve *errcode.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestCompositeWorkedExample(t *testing.T) {
	r := newDefaultRanker(t)
	ranked := r.Score(Pair{
		TargetID:  1,
		Candidate: Side{Text: "python go rust", Location: "Austin"},
		Job:       Side{Text: "Python Go", Location: "Austin, TX"},
	})
	if ranked.SkillScore != 76 || ranked.LocationScore != 50 || ranked.Score != 68 {
		t.Fatalf("unexpected scores: %+v", ranked)
	}
}

func TestCompositeBoundsAndMonotonicity(t *testing.T) {
	r := newDefaultRanker(t)
	if got := r.Composite(100, 100); got != 100 {
		t.Fatalf("expected 100, got %d", got)
	}
	if got := r.Composite(100, 0); got != 70 {
		t.Fatalf("expected 70, got %d", got)
	}
	if got := r.Composite(0, 0); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}

	heavy, err := NewRanker(Weights{Skill: 2, Location: 2}, DefaultThreshold, DefaultTopK)
	if err != nil {
		t.Fatalf("NewRanker: %v", err)
	}
	if got := heavy.Composite(90, 90); got != 100 {
		t.Fatalf("expected clamp to 100, got %d", got)
	}

	for loc := 0; loc <= 100; loc += 50 {
		prev := -1
		for skill := 0; skill <= 100; skill++ {
			got := r.Composite(skill, loc)
			if got < prev {
				t.Fatalf("composite decreased at skill=%d loc=%d: %d < %d", skill, loc, got, prev)
			}
			prev = got
		}
	}
}

func TestRankThresholdOrderingAndTopK(t *testing.T) {
	r, err := NewRanker(DefaultWeights, DefaultThreshold, 2)
	if err != nil {
		t.Fatalf("NewRanker: %v", err)
	}
	job := Side{Text: "go rust", Location: "Austin"}
	pairs := []Pair{
		{TargetID: 9, Candidate: Side{Text: "go rust", Location: "Austin"}, Job: job}, // 100
		{TargetID: 3, Candidate: Side{Text: "go rust", Location: "Boston"}, Job: job}, // 70
		{TargetID: 2, Candidate: Side{Text: "go rust", Location: "Boston"}, Job: job}, // 70
		{TargetID: 1, Candidate: Side{Text: "java", Location: "Austin"}, Job: job},    // 30
		{TargetID: 5, Candidate: Side{Text: "java", Location: "Boston"}, Job: job},    // 0
	}

	all := r.Rank(pairs)
	if len(all) != 2 {
		t.Fatalf("expected top-2, got %d", len(all))
	}
	if all[0].TargetID != 9 || all[1].TargetID != 2 {
		t.Fatalf("unexpected order: %+v", all)
	}

	wide := newDefaultRanker(t)
	ranked := wide.Rank(pairs)
	gotIDs := make([]uint, 0, len(ranked))
	for _, item := range ranked {
		if item.Score <= DefaultThreshold {
			t.Fatalf("entry at or below threshold kept: %+v", item)
		}
		gotIDs = append(gotIDs, item.TargetID)
	}
	want := []uint{9, 2, 3, 1}
	if len(gotIDs) != len(want) {
		t.Fatalf("expected %v, got %v", want, gotIDs)
	}
	for i := range want {
		if gotIDs[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, gotIDs)
		}
	}
}

func TestMergeKeepsGlobalTopK(t *testing.T) {
	r, err := NewRanker(DefaultWeights, DefaultThreshold, 2)
	if err != nil {
		t.Fatalf("NewRanker: %v", err)
	}
	first := []Ranked{{TargetID: 4, Score: 50}, {TargetID: 1, Score: 40}}
	second := []Ranked{{TargetID: 2, Score: 50}, {TargetID: 3, Score: 90}}
	got := r.Merge(first, second)
	if len(got) != 2 || got[0].TargetID != 3 || got[1].TargetID != 2 {
		t.Fatalf("unexpected merge result: %+v", got)
	}
}

func TestRankEmptyPool(t *testing.T) {
	r := newDefaultRanker(t)
	if got := r.Rank(nil); len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
}
