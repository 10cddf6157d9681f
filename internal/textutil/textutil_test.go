package textutil_test

import (
	"testing"

	"matchroom/backend/internal/textutil"

	"github.com/stretchr/testify/assert"
)

func TestCapitalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"female", "Female"},
		{"  other ", "Other"},
		{"board games", "Board Games"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, textutil.Capitalize(tt.in), tt.in)
	}
}

func TestContainsFold(t *testing.T) {
	assert.True(t, textutil.ContainsFold("Board Games", "GAME"))
	assert.True(t, textutil.ContainsFold("Ada", ""))
	assert.False(t, textutil.ContainsFold("Hiking", "chess"))
}
