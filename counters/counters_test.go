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

package counters_test

import (
	"encoding/binary"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/projectcalico/apf/counters"
)

var _ = Describe("Counter ranges", func() {
	It("should put TOTAL_PACKETS outside both verdict ranges", func() {
		Expect(counters.TotalPackets.PassEligible()).To(BeFalse())
		Expect(counters.TotalPackets.DropEligible()).To(BeFalse())
	})

	It("should keep the pass and drop ranges disjoint", func() {
		for _, d := range counters.Descriptions() {
			switch d.Category {
			case "pass":
				Expect(d.Counter.PassEligible()).To(BeTrue(), d.Name)
				Expect(d.Counter.DropEligible()).To(BeFalse(), d.Name)
			case "drop":
				Expect(d.Counter.DropEligible()).To(BeTrue(), d.Name)
				Expect(d.Counter.PassEligible()).To(BeFalse(), d.Name)
			}
		}
	})

	It("should assign contiguous ids starting at TOTAL_PACKETS", func() {
		descs := counters.Descriptions()
		Expect(descs[0].Counter).To(Equal(counters.TotalPackets))
		Expect(counters.TotalPackets.Value()).To(Equal(uint32(1)))
		for i := 1; i < len(descs); i++ {
			Expect(descs[i].Counter.Value()).To(Equal(descs[i-1].Counter.Value() + 1))
		}
	})
})

var _ = Describe("Counter names", func() {
	It("should round-trip through FromName", func() {
		for _, d := range counters.Descriptions() {
			Expect(d.Counter.String()).To(Equal(d.Name))
			c, ok := counters.FromName(d.Name)
			Expect(ok).To(BeTrue(), d.Name)
			Expect(c).To(Equal(d.Counter))
		}
	})

	It("should reject unknown names", func() {
		_, ok := counters.FromName("NO_SUCH_COUNTER")
		Expect(ok).To(BeFalse())
	})

	It("should fall back to a numeric form for unknown ids", func() {
		Expect(counters.Counter(999).String()).To(Equal("COUNTER_999"))
	})
})

var _ = Describe("ReadAll", func() {
	// Counters live at the end of the data region, counter n occupying
	// the four bytes ending 4*(n-1) from the end.
	region := func(vals map[counters.Counter]uint32) []byte {
		data := make([]byte, 256)
		for c, v := range vals {
			binary.BigEndian.PutUint32(data[len(data)-4*int(c.Value()):], v)
		}
		return data
	}

	It("should read counters back from the region tail", func() {
		vals := map[counters.Counter]uint32{
			counters.TotalPackets:        42,
			counters.PassedArp:           7,
			counters.DroppedEthBroadcast: 0xdeadbeef,
		}
		Expect(counters.ReadAll(region(vals))).To(Equal(vals))
	})

	It("should omit zero counters", func() {
		got := counters.ReadAll(region(map[counters.Counter]uint32{
			counters.PassedMdns: 1,
		}))
		Expect(got).To(HaveLen(1))
		Expect(got).To(HaveKeyWithValue(counters.PassedMdns, uint32(1)))
	})

	It("should cope with a region too small for every counter", func() {
		data := make([]byte, 8)
		binary.BigEndian.PutUint32(data[4:], 3)
		got := counters.ReadAll(data)
		Expect(got).To(Equal(map[counters.Counter]uint32{counters.TotalPackets: 3}))
	})

	It("should return an empty map for an empty region", func() {
		Expect(counters.ReadAll(nil)).To(BeEmpty())
	})
})
