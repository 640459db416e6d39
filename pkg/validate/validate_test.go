package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearchText(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		valid bool
	}{
		{"simple term", "wifi", true},
		{"phrase", `"free wifi"`, true},
		{"empty", "", false},
		{"whitespace only", "   \t ", false},
		{"too long", strings.Repeat("a", 1001), false},
		{"exactly max length", strings.Repeat("a", 1000), true},
		{"unbalanced double quote", `"free wifi`, false},
		{"unbalanced single quote", "it's", false},
		{"unbalanced parenthesis", "(wifi OR pool", false},
		{"balanced parentheses", "(wifi OR pool)", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := SearchText(tt.text)
			assert.Equal(t, tt.valid, outcome.Valid)
			if !tt.valid {
				assert.NotEmpty(t, outcome.Message)
			}
		})
	}
}

func TestPaging(t *testing.T) {
	tests := []struct {
		name  string
		top   int
		skip  int
		valid bool
	}{
		{"defaults", 50, 0, true},
		{"zero top", 0, 0, true},
		{"max top", 1000, 0, true},
		{"negative top", -1, 0, false},
		{"top too large", 1001, 0, false},
		{"negative skip", 50, -1, false},
		{"max skip", 50, 100000, true},
		{"skip too large", 50, 100001, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := Paging(tt.top, tt.skip)
			assert.Equal(t, tt.valid, outcome.Valid)
		})
	}
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		valid  bool
	}{
		{"empty filter", "", true},
		{"named operator", "category eq 'Technology'", true},
		{"combined", "category eq 'Hotel' and rating ge 4", true},
		{"symbolic equals", "category = 'x'", false},
		{"not equals", "rating != 3", false},
		{"logical and", "a eq 1 && b eq 2", false},
		{"logical or", "a eq 1 || b eq 2", false},
		{"less than symbol", "rating < 3", false},
		{"unbalanced parenthesis", "(a eq 1", false},
		{"balanced grouping", "(a eq 1 or b eq 2) and c eq 3", true},
		{"operator inside literal", "name eq 'a=b'", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := Filter(tt.filter)
			assert.Equal(t, tt.valid, outcome.Valid, outcome.Message)
		})
	}
}
