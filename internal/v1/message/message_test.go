package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetKnownKey(t *testing.T) {
	assert.Equal(t, catalog[KeyMOTDTemplateOverflow], Get(KeyMOTDTemplateOverflow))
}

func TestGetUnknownKeyReturnsKeyItself(t *testing.T) {
	assert.Equal(t, "no-such-key", Get("no-such-key"))
}
