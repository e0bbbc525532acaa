package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPagination(t *testing.T) {
	p := NewPagination(1, 20, 45)
	assert.Equal(t, 1, p.CurrentPage)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 45, p.TotalCount)
	assert.True(t, p.HasNextPage)
	assert.False(t, p.HasPrevPage)

	p = NewPagination(3, 20, 45)
	assert.False(t, p.HasNextPage)
	assert.True(t, p.HasPrevPage)

	p = NewPagination(2, 20, 45)
	assert.True(t, p.HasNextPage)
	assert.True(t, p.HasPrevPage)
}

func TestNewPagination_Defaults(t *testing.T) {
	p := NewPagination(0, 0, 0)
	assert.Equal(t, 1, p.CurrentPage)
	assert.Zero(t, p.TotalPages)
	assert.False(t, p.HasNextPage)
	assert.False(t, p.HasPrevPage)

	// An exact multiple does not produce a trailing empty page.
	p = NewPagination(1, 10, 20)
	assert.Equal(t, 2, p.TotalPages)
}
