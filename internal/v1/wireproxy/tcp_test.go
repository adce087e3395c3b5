package wireproxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddrFor(t *testing.T) {
	assert.Equal(t, ":8999", addrFor(8999))
}

func TestItoa(t *testing.T) {
	assert.Equal(t, "0", itoa(0))
	assert.Equal(t, "42", itoa(42))
	assert.Equal(t, "-7", itoa(-7))
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "pipe", hostOf(netAddrString("pipe")))
	assert.Equal(t, "192.0.2.1", hostOf(netAddrString("192.0.2.1:5555")))
}
