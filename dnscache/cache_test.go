package dnscache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/guidoreina/netmon/netaddr"
)

func TestAddAndHostIPv4(t *testing.T) {
	c := New()

	addr, err := netaddr.FromBytes([]byte{93, 184, 216, 34})
	require.NoError(t, err)

	_, ok := c.Host(addr)
	require.False(t, ok)

	c.Add(addr, "example.com")

	host, ok := c.Host(addr)
	require.True(t, ok)
	require.Equal(t, "example.com", host)
	require.Equal(t, 1, c.Len())
}

func TestAddOverwritesPreviousHost(t *testing.T) {
	c := New()

	addr, err := netaddr.FromBytes([]byte{10, 0, 0, 1})
	require.NoError(t, err)

	c.Add(addr, "old.example.com")
	c.Add(addr, "new.example.com")

	host, ok := c.Host(addr)
	require.True(t, ok)
	require.Equal(t, "new.example.com", host)
	require.Equal(t, 1, c.Len())
}

func TestIPv4AndIPv6FamiliesAreDistinct(t *testing.T) {
	c := New()

	v4, err := netaddr.FromBytes([]byte{1, 2, 3, 4})
	require.NoError(t, err)
	v6, err := netaddr.FromBytes(make([]byte, netaddr.Len16))
	require.NoError(t, err)

	c.Add(v4, "v4.example.com")
	c.Add(v6, "v6.example.com")

	h4, ok := c.Host(v4)
	require.True(t, ok)
	require.Equal(t, "v4.example.com", h4)

	h6, ok := c.Host(v6)
	require.True(t, ok)
	require.Equal(t, "v6.example.com", h6)

	require.Equal(t, 2, c.Len())
}
