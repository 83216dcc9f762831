package capture

import (
	"net"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// setPromiscuous enables promiscuous mode on iface via PACKET_ADD_MEMBERSHIP,
// the same mechanism tcpdump/libpcap use under the hood. It opens a
// short-lived raw socket purely to issue the setsockopt; the capture socket
// itself is owned by afpacket.
func setPromiscuous(iface string) error {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return errors.Wrapf(err, "capture: look up interface %q", iface)
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return errors.Wrap(err, "capture: open promiscuous-mode socket")
	}
	defer unix.Close(fd)

	mreq := unix.PacketMreq{
		Ifindex: int32(ifi.Index),
		Type:    unix.PACKET_MR_PROMISC,
	}

	return unix.SetsockoptPacketMreq(fd, unix.SOL_PACKET, unix.PACKET_ADD_MEMBERSHIP, &mreq)
}

func htons(h uint16) uint16 {
	return (h << 8) | (h >> 8)
}
