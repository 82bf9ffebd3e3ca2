package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrTSQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"budget planning,greenway", "budget | planning | greenway"},
		{"Main St. & 5th (zoning)!", "main | st | 5th | zoning"},
		{"':*|!", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, orTSQuery(tt.in), tt.in)
	}
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0, cosineDistance([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 1, cosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, 2, cosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 1.0, cosineDistance([]float32{0, 0}, []float32{1, 0}))
}

func TestSanitizeUTF8(t *testing.T) {
	assert.Equal(t, "abc", sanitizeUTF8("a\xffbc"))
	assert.Equal(t, "héllo", sanitizeUTF8("héllo"))
}
