package wire

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	a, err := ParseAddress("127.0.0.1:30900")
	require.NoError(t, err)
	assert.True(t, a.IP.Equal(net.ParseIP("127.0.0.1")))
	assert.Equal(t, uint16(30900), a.Port)
}

func TestParseAddressRejectsMissingPort(t *testing.T) {
	_, err := ParseAddress("127.0.0.1")
	assert.Error(t, err)
}

func TestAddressString(t *testing.T) {
	a := Address{IP: net.ParseIP("10.1.2.3"), Port: 9000}
	assert.Equal(t, "10.1.2.3:9000", a.String())
}
