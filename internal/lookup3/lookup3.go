// Package lookup3 implements the fixed-word forms of Bob Jenkins' lookup3
// hash (http://burtleburtle.net/bob/c/lookup3.c), used by the TCP tracker
// to fold a connection's two addresses and port pair into one bucket index.
package lookup3

const initval = 0xdeadbeef

func rol32(x uint32, k uint) uint32 {
	return (x << k) | (x >> (32 - k))
}

func final(a, b, c uint32) (uint32, uint32, uint32) {
	c ^= b
	c -= rol32(b, 14)
	a ^= c
	a -= rol32(c, 11)
	b ^= a
	b -= rol32(a, 25)
	c ^= b
	c -= rol32(b, 16)
	a ^= c
	a -= rol32(c, 4)
	b ^= a
	b -= rol32(a, 14)
	c ^= b
	c -= rol32(b, 24)
	return a, b, c
}

func hashNWords(a, b, c, iv uint32) uint32 {
	a += iv
	b += iv
	c += iv
	_, _, c = final(a, b, c)
	return c
}

// Hash1Word hashes a single 32-bit word.
func Hash1Word(a, iv uint32) uint32 {
	return hashNWords(a, 0, 0, iv+initval+(1<<2))
}

// Hash2Words hashes two 32-bit words.
func Hash2Words(a, b, iv uint32) uint32 {
	return hashNWords(a, b, 0, iv+initval+(2<<2))
}

// Hash3Words hashes three 32-bit words.
func Hash3Words(a, b, c, iv uint32) uint32 {
	return hashNWords(a, b, c, iv+initval+(3<<2))
}
