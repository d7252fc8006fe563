package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSelection(t *testing.T) {
	tests := []struct {
		in   string
		want []int
	}{
		{"all", []int{0, 1, 2, 3, 4}},
		{" ALL ", []int{0, 1, 2, 3, 4}},
		{"3", []int{2}},
		{"1,3-4", []int{0, 2, 3}},
		{"5 1", []int{0, 4}},
		{"4-2", []int{1, 2, 3}},
		{"2,2,1-2", []int{0, 1}},
	}
	for _, tt := range tests {
		got, err := ParseSelection(tt.in, 5)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseSelectionErrors(t *testing.T) {
	_, err := ParseSelection("", 5)
	assert.ErrorIs(t, err, ErrEmptySelection)

	_, err = ParseSelection("0", 5)
	assert.ErrorIs(t, err, ErrInvalidSelection)

	_, err = ParseSelection("6", 5)
	assert.ErrorIs(t, err, ErrInvalidSelection)

	_, err = ParseSelection("a-b", 5)
	assert.ErrorIs(t, err, ErrInvalidSelection)

	sel, err := ParseSelection("1-50000000", 3)
	assert.ErrorIs(t, err, ErrInvalidSelection)
	assert.Nil(t, sel)

	_, err = ParseSelection("0-2", 3)
	assert.ErrorIs(t, err, ErrInvalidSelection)
}

func TestAll(t *testing.T) {
	assert.Equal(t, []int{0, 1, 2}, All(3))
	assert.Empty(t, All(0))
}
