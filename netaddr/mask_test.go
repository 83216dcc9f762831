package netaddr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMaskMatchIPv4(t *testing.T) {
	m, err := ParseMask("10.0.0.0/8")
	require.NoError(t, err)

	in, err := FromBytes([]byte{10, 1, 2, 3})
	require.NoError(t, err)
	require.True(t, m.Match(in))

	out, err := FromBytes([]byte{11, 1, 2, 3})
	require.NoError(t, err)
	require.False(t, m.Match(out))
}

func TestMaskMatchIPv6(t *testing.T) {
	m, err := ParseMask("2001:db8::/32")
	require.NoError(t, err)

	in, err := FromBytes([]byte{0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1})
	require.NoError(t, err)
	require.True(t, m.Match(in))

	out, err := FromBytes([]byte{0x20, 0x01, 0x0d, 0xb9, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1})
	require.NoError(t, err)
	require.False(t, m.Match(out))
}

func TestMaskBareAddressMatchesExactly(t *testing.T) {
	m, err := ParseMask("10.1.2.3")
	require.NoError(t, err)

	exact, err := FromBytes([]byte{10, 1, 2, 3})
	require.NoError(t, err)
	require.True(t, m.Match(exact))

	other, err := FromBytes([]byte{10, 1, 2, 4})
	require.NoError(t, err)
	require.False(t, m.Match(other))
}

func TestMaskFamilyMismatch(t *testing.T) {
	m, err := ParseMask("10.0.0.0/8")
	require.NoError(t, err)

	v6, err := FromBytes(make([]byte, Len16))
	require.NoError(t, err)
	require.False(t, m.Match(v6))
}

func TestCompareAndEqual(t *testing.T) {
	a, _ := FromBytes([]byte{1, 2, 3, 4})
	b, _ := FromBytes([]byte{1, 2, 3, 5})

	require.True(t, Compare(a, b) < 0)
	require.False(t, Equal(a, b))
	require.True(t, Equal(a, a))
}
