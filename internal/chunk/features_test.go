package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "simple lowercase", input: "Hello World", want: "hello world"},
		{name: "trim whitespace", input: "  hello  ", want: "hello"},
		{name: "collapse internal whitespace", input: "hello    world", want: "hello world"},
		{name: "tabs and newlines", input: "hello\t\n  world", want: "hello world"},
		{name: "empty string", input: "", want: ""},
		{name: "only whitespace", input: "   \t\n   ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTokens(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "sorted unique", input: "beta alpha beta", want: []string{"alpha", "beta"}},
		{name: "punctuation split", input: "heat-decay, ttl!", want: []string{"decay", "heat", "ttl"}},
		{name: "short tokens dropped", input: "a an the ox", want: []string{"the"}},
		{name: "case folded", input: "Void VOID void", want: []string{"void"}},
		{name: "digits kept", input: "run 2024 r2d2", want: []string{"2024", "r2d2", "run"}},
		{name: "empty", input: "", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokens(tt.input))
		})
	}
}

func TestExtract(t *testing.T) {
	f := Extract("  Telemetry alpha   entry  ")
	assert.Equal(t, []string{"alpha", "entry", "telemetry"}, f.Tokens)
	assert.Equal(t, 27, f.Chars)
	assert.Equal(t, 3, f.Words)
	assert.Equal(t, 7, f.EstimatedTokens())
}

func TestCountChars(t *testing.T) {
	if got := CountChars("héllo"); got != 5 {
		t.Errorf("CountChars() = %d, want 5", got)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"one", 1},
		{"four", 1},
		{"héllo", 2},
		{"one two three", 4},
		{"one two three four five six seven eight nine ten", 12},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.input); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{"identical", []string{"abc", "def"}, []string{"abc", "def"}, 1},
		{"disjoint", []string{"abc"}, []string{"def"}, 0},
		{"half", []string{"abc", "def"}, []string{"abc", "xyz"}, 1.0 / 3.0},
		{"both empty", nil, nil, 1},
		{"one empty", []string{"abc"}, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Jaccard(tt.a, tt.b), 1e-12)
		})
	}
}

func TestOverlap(t *testing.T) {
	assert.Equal(t, 2, Overlap([]string{"aaa", "bbb", "ccc"}, []string{"bbb", "ccc", "ddd"}))
	assert.Equal(t, 0, Overlap(nil, []string{"aaa"}))
}
