package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildSearchOptions(t *testing.T) {
	opts := buildSearchOptions("category eq 'Hotel'", "rating desc,name", "id,name", 25, 50, true)

	assert.Equal(t, "category eq 'Hotel'", opts.Filter)
	assert.Equal(t, []string{"rating desc", "name"}, opts.OrderBy)
	assert.Equal(t, []string{"id", "name"}, opts.Select)
	assert.Equal(t, 25, opts.Top)
	assert.Equal(t, 50, opts.Skip)
	assert.True(t, opts.IncludeCount)
}

func TestBuildSearchOptions_EmptyListsStayNil(t *testing.T) {
	opts := buildSearchOptions("", "", "", 10, 0, false)

	assert.Nil(t, opts.OrderBy)
	assert.Nil(t, opts.Select)
	assert.False(t, opts.IncludeCount)
}
