// Copyright 2015 The go-ethereum Authors
// Copyright 2025 The Basalt Network Authors
// This file is part of the gbasalt library.
//
// The gbasalt library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The gbasalt library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the gbasalt library. If not, see <http://www.gnu.org/licenses/>.

package discover

import (
	"bytes"
	"fmt"
	"math/bits"
	"net"

	"github.com/basalt-network/gbasalt/crypto"
	"github.com/basalt-network/gbasalt/crypto/ed25519"
)

// ID is a node identity: the BLAKE3 hash of the node's ed25519 public key.
// A peer proves ownership during the handshake by signing with that key.
type ID [32]byte

// PubkeyID derives the node ID for a public key.
func PubkeyID(pub ed25519.PublicKey) ID {
	return ID(crypto.Blake3Hash(pub))
}

func (id ID) String() string {
	return fmt.Sprintf("%x", id[:8])
}

// LogDist returns the logarithmic XOR distance between a and b: the position
// of the highest differing bit, 1-based. Zero means a == b.
func LogDist(a, b ID) int {
	lz := 0
	for i := range a {
		x := a[i] ^ b[i]
		if x == 0 {
			lz += 8
		} else {
			lz += bits.LeadingZeros8(x)
			break
		}
	}
	return len(a)*8 - lz
}

// DistCmp compares the XOR distances target↔a and target↔b. It returns -1 if
// a is closer, 1 if b is closer and 0 when equal.
func DistCmp(target, a, b ID) int {
	for i := range target {
		da := a[i] ^ target[i]
		db := b[i] ^ target[i]
		if da > db {
			return 1
		} else if da < db {
			return -1
		}
	}
	return 0
}

// Node is one routing-table entry.
type Node struct {
	ID         ID
	IP         net.IP
	Port       uint16
	LastSeenMs int64
}

// Addr formats the node's network endpoint.
func (n *Node) Addr() string {
	return net.JoinHostPort(n.IP.String(), fmt.Sprintf("%d", n.Port))
}

// subnetKey collapses an IP to its diversity bucket: /24 for IPv4 and /48
// for IPv6.
func subnetKey(ip net.IP) string {
	if v4 := ip.To4(); v4 != nil {
		return string(v4[:3])
	}
	v6 := ip.To16()
	if v6 == nil {
		return ""
	}
	return string(v6[:6])
}

// sortByDistance orders nodes by XOR distance to target, breaking distance
// ties by raw id so equal-distance peers are never dropped from sorted
// containers.
func sortByDistance(nodes []*Node, target ID) {
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0; j-- {
			cmp := DistCmp(target, nodes[j].ID, nodes[j-1].ID)
			if cmp > 0 {
				break
			}
			if cmp == 0 && bytes.Compare(nodes[j].ID[:], nodes[j-1].ID[:]) >= 0 {
				break
			}
			nodes[j], nodes[j-1] = nodes[j-1], nodes[j]
		}
	}
}
