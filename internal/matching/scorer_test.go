package matching

import "testing"

func TestTokenize(t *testing.T) {
	tokens := Tokenize("Go, Rust;  and the PYTHON\tfor kubernetes")
	want := []string{"go", "rust", "python", "kubernetes"}
	if len(tokens) != len(want) {
		t.Fatalf("expected %d tokens, got %d (%v)", len(want), len(tokens), tokens)
	}
	for _, w := range want {
		if _, ok := tokens[w]; !ok {
			t.Fatalf("missing token %q in %v", w, tokens)
		}
	}
	if _, ok := tokens["and"]; ok {
		t.Fatalf("stop word should be removed")
	}
}

func TestSkillScore(t *testing.T) {
	cases := []struct {
		name      string
		candidate string
		job       string
		want      int
	}{
		{name: "partial overlap", candidate: "python go rust", job: "Python Go", want: 76},
		{name: "identical sets", candidate: "go rust", job: "rust, go", want: 100},
		{name: "no overlap", candidate: "java", job: "go rust", want: 0},
		{name: "empty candidate", candidate: "", job: "go", want: 0},
		{name: "only stop words", candidate: "and the of", job: "go", want: 0},
		{name: "empty job", candidate: "go", job: "  ", want: 0},
		// o=1, |C|=1, |J|=4: trunc(70 + 7.5) = 77
		{name: "candidate fully covered", candidate: "go", job: "go rust python java", want: 77},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SkillScore(tc.candidate, tc.job); got != tc.want {
				t.Fatalf("SkillScore(%q, %q) = %d, want %d", tc.candidate, tc.job, got, tc.want)
			}
		})
	}
}

func TestLocationScore(t *testing.T) {
	cases := []struct {
		candidate string
		job       string
		want      int
	}{
		{"Austin, TX", "austin, tx", 100},
		{"Austin", "Austin, TX", 50},
		{"Austin, TX", "Austin", 50},
		{"Austin", "Boston", 0},
		{"", "Austin", 0},
		{"Austin", "   ", 0},
	}

	for _, tc := range cases {
		if got := LocationScore(tc.candidate, tc.job); got != tc.want {
			t.Fatalf("LocationScore(%q, %q) = %d, want %d", tc.candidate, tc.job, got, tc.want)
		}
	}
}

func TestJobText(t *testing.T) {
	if got := JobText("Python Go", "Backend", "Engineering"); got != "Python Go Backend Engineering" {
		t.Fatalf("unexpected job text %q", got)
	}
}
