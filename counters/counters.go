// Copyright (c) 2026 Tigera, Inc. All rights reserved.

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package counters defines the telemetry counter slots maintained by APF
// filter programs.  Counter numbers are part of the program/firmware
// contract: pass-path counting operations may only use the pass range and
// drop-path operations the drop range.  The interpreter stores counter
// values as big-endian 32-bit words growing backwards from the end of the
// data region.
package counters

import (
	"encoding/binary"
	"fmt"
)

// Counter is the numeric id of one telemetry slot.
type Counter int32

const (
	TotalPackets Counter = iota + 1

	PassedArp
	PassedDhcp
	PassedIPv4
	PassedIPv6Icmp
	PassedIPv4Unicast
	PassedIPv6NonIcmp
	PassedIPv4FromDhcpServer
	PassedIPv6NsDad
	PassedIPv6NsNoAddress
	PassedIPv6NsTentative
	PassedArpRequest
	PassedArpUnicastReply
	PassedNonIPUnicast
	PassedMdns
	PassedMld

	DroppedEthBroadcast
	DroppedRa
	DroppedIPv4L2Broadcast
	DroppedIPv4BroadcastAddr
	DroppedIPv4BroadcastNet
	DroppedIPv4Multicast
	DroppedIPv6RouterSolicitation
	DroppedIPv6MulticastNa
	DroppedIPv6Multicast
	DroppedIPv6MulticastPing
	DroppedIPv6NonIcmpMulticast
	Dropped8023Frame
	DroppedEthertypeNotAllowed
	DroppedIPv4KeepaliveAck
	DroppedIPv6KeepaliveAck
	DroppedIPv4NattKeepalive
	DroppedMdns
	DroppedMdnsReplied
	DroppedArpNonIPv4
	DroppedArpOtherHost
	DroppedArpReplySpaNoHost
	DroppedArpRequestAnyhost
	DroppedArpRequestReplied
	DroppedGarpReply

	numCounters
)

const (
	firstPassCounter = PassedArp
	lastPassCounter  = PassedMld
	firstDropCounter = DroppedEthBroadcast
	lastDropCounter  = DroppedGarpReply
)

// Value returns the numeric id encoded into count-and-terminate
// instructions.
func (c Counter) Value() uint32 {
	return uint32(c)
}

// PassEligible reports whether pass-path counting operations may use this
// counter.
func (c Counter) PassEligible() bool {
	return c >= firstPassCounter && c <= lastPassCounter
}

// DropEligible reports whether drop-path counting operations may use this
// counter.
func (c Counter) DropEligible() bool {
	return c >= firstDropCounter && c <= lastDropCounter
}

func (c Counter) String() string {
	if name, ok := names[c]; ok {
		return name
	}
	return fmt.Sprintf("COUNTER_%d", int32(c))
}

// Description ties a counter to its symbolic identifier and category, for
// registry lookups and reporting.
type Description struct {
	Counter  Counter
	Name     string
	Category string
}

var descriptions = []Description{
	{TotalPackets, "TOTAL_PACKETS", "total"},

	{PassedArp, "PASSED_ARP", "pass"},
	{PassedDhcp, "PASSED_DHCP", "pass"},
	{PassedIPv4, "PASSED_IPV4", "pass"},
	{PassedIPv6Icmp, "PASSED_IPV6_ICMP", "pass"},
	{PassedIPv4Unicast, "PASSED_IPV4_UNICAST", "pass"},
	{PassedIPv6NonIcmp, "PASSED_IPV6_NON_ICMP", "pass"},
	{PassedIPv4FromDhcpServer, "PASSED_IPV4_FROM_DHCPV4_SERVER", "pass"},
	{PassedIPv6NsDad, "PASSED_IPV6_NS_DAD", "pass"},
	{PassedIPv6NsNoAddress, "PASSED_IPV6_NS_NO_ADDRESS", "pass"},
	{PassedIPv6NsTentative, "PASSED_IPV6_NS_TENTATIVE", "pass"},
	{PassedArpRequest, "PASSED_ARP_REQUEST", "pass"},
	{PassedArpUnicastReply, "PASSED_ARP_UNICAST_REPLY", "pass"},
	{PassedNonIPUnicast, "PASSED_NON_IP_UNICAST", "pass"},
	{PassedMdns, "PASSED_MDNS", "pass"},
	{PassedMld, "PASSED_MLD", "pass"},

	{DroppedEthBroadcast, "DROPPED_ETH_BROADCAST", "drop"},
	{DroppedRa, "DROPPED_RA", "drop"},
	{DroppedIPv4L2Broadcast, "DROPPED_IPV4_L2_BROADCAST", "drop"},
	{DroppedIPv4BroadcastAddr, "DROPPED_IPV4_BROADCAST_ADDR", "drop"},
	{DroppedIPv4BroadcastNet, "DROPPED_IPV4_BROADCAST_NET", "drop"},
	{DroppedIPv4Multicast, "DROPPED_IPV4_MULTICAST", "drop"},
	{DroppedIPv6RouterSolicitation, "DROPPED_IPV6_ROUTER_SOLICITATION", "drop"},
	{DroppedIPv6MulticastNa, "DROPPED_IPV6_MULTICAST_NA", "drop"},
	{DroppedIPv6Multicast, "DROPPED_IPV6_MULTICAST", "drop"},
	{DroppedIPv6MulticastPing, "DROPPED_IPV6_MULTICAST_PING", "drop"},
	{DroppedIPv6NonIcmpMulticast, "DROPPED_IPV6_NON_ICMP_MULTICAST", "drop"},
	{Dropped8023Frame, "DROPPED_802_3_FRAME", "drop"},
	{DroppedEthertypeNotAllowed, "DROPPED_ETHERTYPE_NOT_ALLOWED", "drop"},
	{DroppedIPv4KeepaliveAck, "DROPPED_IPV4_KEEPALIVE_ACK", "drop"},
	{DroppedIPv6KeepaliveAck, "DROPPED_IPV6_KEEPALIVE_ACK", "drop"},
	{DroppedIPv4NattKeepalive, "DROPPED_IPV4_NATT_KEEPALIVE", "drop"},
	{DroppedMdns, "DROPPED_MDNS", "drop"},
	{DroppedMdnsReplied, "DROPPED_MDNS_REPLIED", "drop"},
	{DroppedArpNonIPv4, "DROPPED_ARP_NON_IPV4", "drop"},
	{DroppedArpOtherHost, "DROPPED_ARP_OTHER_HOST", "drop"},
	{DroppedArpReplySpaNoHost, "DROPPED_ARP_REPLY_SPA_NO_HOST", "drop"},
	{DroppedArpRequestAnyhost, "DROPPED_ARP_REQUEST_ANYHOST", "drop"},
	{DroppedArpRequestReplied, "DROPPED_ARP_REQUEST_REPLIED", "drop"},
	{DroppedGarpReply, "DROPPED_GARP_REPLY", "drop"},
}

var (
	names  = map[Counter]string{}
	byName = map[string]Counter{}
)

func init() {
	for _, d := range descriptions {
		names[d.Counter] = d.Name
		byName[d.Name] = d.Counter
	}
}

// Descriptions returns the registry of known counters in id order.
func Descriptions() []Description {
	out := make([]Description, len(descriptions))
	copy(out, descriptions)
	return out
}

// FromName resolves a symbolic counter identifier to its Counter.
func FromName(name string) (Counter, bool) {
	c, ok := byName[name]
	return c, ok
}

// ReadAll extracts the counter values from a data region snapshot.  The
// interpreter keeps counter n in the 4 bytes ending 4*(n-1) bytes before
// the end of the region; counters that never fired read as zero and are
// omitted.
func ReadAll(data []byte) map[Counter]uint32 {
	out := map[Counter]uint32{}
	for c := TotalPackets; c < numCounters; c++ {
		off := len(data) - 4*int(c)
		if off < 0 {
			break
		}
		if v := binary.BigEndian.Uint32(data[off : off+4]); v != 0 {
			out[c] = v
		}
	}
	return out
}
