package feature

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeetsMinVersion(t *testing.T) {
	cases := []struct {
		version, min string
		want         bool
	}{
		{"1.5.0", "1.5.0", true},
		{"1.6.5", "1.5.0", true},
		{"1.4.9", "1.5.0", false},
		{"1.5", "1.5.0", true},
		{"2.0.0", "1.6.5", true},
		{"1.6.4", "1.6.5", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, MeetsMinVersion(c.version, c.min), "%s vs %s", c.version, c.min)
	}
}

func TestIsRecentClient(t *testing.T) {
	assert.True(t, IsRecentClient("1.6.5"))
	assert.False(t, IsRecentClient("1.6.4"))
}
