package plagiarism

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases", "Hello World", "hello world"},
		{"strips punctuation", "it's done, right?", "its done right"},
		{"collapses whitespace", "a \t b\n\nc", "a b c"},
		{"keeps digits and underscore", "var_1 = 42", "var_1 42"},
		{"empty", "", ""},
		{"punctuation only", "?!...", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestGrams(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty text has no grams", "", nil},
		{"short text is its own gram", "ab", []string{"ab"}},
		{"exactly three chars", "abc", []string{"abc"}},
		{"sliding window", "abcd", []string{"abc", "bcd"}},
		{"whitespace removed before windowing", "a b cd", []string{"abc", "bcd"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Grams(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("Grams(%q) has %d grams, want %d", tt.in, len(got), len(tt.want))
			}
			for _, g := range tt.want {
				if _, ok := got[g]; !ok {
					t.Errorf("Grams(%q) missing %q", tt.in, g)
				}
			}
		})
	}
}

func TestGramsMultibyte(t *testing.T) {
	grams := Grams("héllo")
	if _, ok := grams["hél"]; !ok {
		t.Errorf("expected rune-based windows, got %v", grams)
	}
}

func TestJaccard(t *testing.T) {
	set := func(items ...string) map[string]struct{} {
		m := make(map[string]struct{})
		for _, s := range items {
			m[s] = struct{}{}
		}
		return m
	}

	tests := []struct {
		name string
		a, b map[string]struct{}
		want float64
	}{
		{"both empty", set(), set(), 0},
		{"one empty", set("abc"), set(), 0},
		{"identical", set("abc", "bcd"), set("abc", "bcd"), 1},
		{"disjoint", set("abc"), set("xyz"), 0},
		{"half overlap", set("abc", "bcd"), set("abc", "xyz"), 1.0 / 3.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Jaccard(tt.a, tt.b); got != tt.want {
				t.Errorf("Jaccard = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	t.Run("identical text scores 100", func(t *testing.T) {
		report := Compare("the quick brown fox", []AttemptText{
			{AttemptID: "a1", Text: "The quick brown fox!"},
		})
		if report.Percent != 100 {
			t.Errorf("Percent = %v, want 100", report.Percent)
		}
		if len(report.Matches) != 1 || report.Matches[0].Percent != 100 {
			t.Errorf("unexpected matches: %+v", report.Matches)
		}
	})

	t.Run("no peers scores 0", func(t *testing.T) {
		report := Compare("anything at all", nil)
		if report.Percent != 0 || len(report.Matches) != 0 {
			t.Errorf("unexpected report: %+v", report)
		}
	})

	t.Run("empty own text matches nothing", func(t *testing.T) {
		report := Compare("", []AttemptText{
			{AttemptID: "a1", Text: "some essay"},
			{AttemptID: "a2", Text: ""},
		})
		if report.Percent != 0 {
			t.Errorf("empty text must not match, got %v", report.Percent)
		}
		if report.OwnGrams != 0 {
			t.Errorf("empty text has no grams, got %d", report.OwnGrams)
		}
	})

	t.Run("max of several peers", func(t *testing.T) {
		report := Compare("alpha beta gamma", []AttemptText{
			{AttemptID: "same", Text: "alpha beta gamma"},
			{AttemptID: "different", Text: "totally unrelated words"},
		})
		if report.Percent != 100 {
			t.Errorf("Percent = %v, want max over peers", report.Percent)
		}
		for _, m := range report.Matches {
			if m.AttemptID == "different" && m.Percent == 100 {
				t.Errorf("unrelated peer scored 100: %+v", report.Matches)
			}
		}
	})

	t.Run("percent rounds to one decimal", func(t *testing.T) {
		report := Compare("abcdef", []AttemptText{{AttemptID: "a", Text: "abcdxy"}})
		if report.Percent != round1(report.Percent) {
			t.Errorf("Percent %v not rounded to one decimal", report.Percent)
		}
	})
}
