package tcp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConnectionHandshake(t *testing.T) {
	var c connection

	require.True(t, c.processPacket(FromAddr1, FlagSYN, 60, 100))
	require.Equal(t, StateConnectionRequested, c.state)
	require.Equal(t, OriginatorAddr1, c.activeOpener)

	require.True(t, c.processPacket(FromAddr2, FlagSYN|FlagACK, 60, 200))
	require.Equal(t, StateConnectionEstablished, c.state)

	require.True(t, c.processPacket(FromAddr1, FlagACK, 52, 300))
	require.Equal(t, StateDataTransfer, c.state)
	require.Equal(t, uint64(112), c.sent[0]) // 60 (syn) + 52 (ack)
}

func TestConnectionUnexpectedAckFromNonOpenerFails(t *testing.T) {
	var c connection
	require.True(t, c.processPacket(FromAddr1, FlagSYN, 60, 100))

	// ACK from addr2 while still awaiting the SYN-ACK is not a valid
	// transition and moves the connection to failure.
	require.False(t, c.processPacket(FromAddr2, FlagACK, 52, 200))
	require.Equal(t, StateFailure, c.state)
}

func TestConnectionFailureStateIsSticky(t *testing.T) {
	var c connection
	c.state = StateFailure
	require.False(t, c.processPacket(FromAddr1, FlagACK, 10, 1))
	require.Equal(t, StateFailure, c.state)
}

func TestConnectionResetDuringDataTransferCloses(t *testing.T) {
	var c connection
	require.True(t, c.processPacket(FromAddr1, FlagSYN, 60, 100))
	require.True(t, c.processPacket(FromAddr2, FlagSYN|FlagACK, 60, 200))
	require.True(t, c.processPacket(FromAddr1, FlagACK, 52, 300))

	require.True(t, c.processPacket(FromAddr2, FlagRST, 40, 400))
	require.Equal(t, StateClosed, c.state)
	require.Equal(t, OriginatorAddr2, c.activeCloser)
}

func TestConnectionSimultaneousCloseBothSidesFin(t *testing.T) {
	var c connection
	require.True(t, c.processPacket(FromAddr1, FlagSYN, 60, 100))
	require.True(t, c.processPacket(FromAddr2, FlagSYN|FlagACK, 60, 200))
	require.True(t, c.processPacket(FromAddr1, FlagACK, 52, 300))

	require.True(t, c.processPacket(FromAddr1, FlagFIN|FlagACK, 52, 400))
	require.Equal(t, StateClosing, c.state)
	require.Equal(t, OriginatorAddr1, c.activeCloser)

	require.True(t, c.processPacket(FromAddr2, FlagFIN|FlagACK, 52, 500))
	require.Equal(t, StateClosed, c.state)
}
