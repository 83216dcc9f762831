// Package dnscache implements the address-to-hostname inverted cache built
// while replaying or reading an event stream: every dns response event
// teaches the cache its answers' hostnames, and later icmp/udp/tcp events
// involving one of those addresses can be annotated with the hostname for
// display or filtering (spec §4.4 component F).
package dnscache

import (
	"sync"

	"github.com/guidoreina/netmon/netaddr"
)

// Cache maps addresses observed in DNS responses to their most recently
// learned hostname. It lives for the duration of one reader/worker
// instance; a plain map is enough here — the original's append-only string
// arena with an intrusive hash table exists to avoid per-entry heap
// allocation in C++, a concern Go's map already manages internally.
type Cache struct {
	mu   sync.RWMutex
	byV4 map[[netaddr.Len4]byte]string
	byV6 map[[netaddr.Len16]byte]string
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{
		byV4: make(map[[netaddr.Len4]byte]string),
		byV6: make(map[[netaddr.Len16]byte]string),
	}
}

func key4(a netaddr.Addr) [netaddr.Len4]byte {
	var k [netaddr.Len4]byte
	copy(k[:], a.Bytes())
	return k
}

func key6(a netaddr.Addr) [netaddr.Len16]byte {
	var k [netaddr.Len16]byte
	copy(k[:], a.Bytes())
	return k
}

// Add records that addr resolves to host, overwriting any previous entry
// for that address.
func (c *Cache) Add(addr netaddr.Addr, host string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if addr.IsIPv6() {
		c.byV6[key6(addr)] = host
	} else {
		c.byV4[key4(addr)] = host
	}
}

// Host returns the most recently learned hostname for addr, and whether one
// was found.
func (c *Cache) Host(addr netaddr.Addr) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if addr.IsIPv6() {
		h, ok := c.byV6[key6(addr)]
		return h, ok
	}
	h, ok := c.byV4[key4(addr)]
	return h, ok
}

// Len reports the total number of cached entries across both families.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byV4) + len(c.byV6)
}
