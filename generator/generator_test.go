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

package generator

import (
	"testing"

	. "github.com/onsi/gomega"

	"github.com/projectcalico/apf/asm"
	"github.com/projectcalico/apf/counters"
)

func TestGenerator_PassAndDrop(t *testing.T) {
	RegisterTestingT(t)
	b, err := New().AddPass().AddDrop().Assemble()
	Expect(err).NotTo(HaveOccurred())
	Expect(b).To(Equal([]byte{0x00, 0x01}))
}

func TestGenerator_CountAndPassProgram(t *testing.T) {
	RegisterTestingT(t)
	g := New()
	g.AddData(nil).AddCountAndPass(counters.PassedArp)
	Expect(g.Err()).NotTo(HaveOccurred())
	Expect(g.Len()).To(Equal(2))

	b, err := g.Assemble()
	Expect(err).NotTo(HaveOccurred())
	// Data section header, then the count-and-pass with the counter id as
	// its immediate.
	Expect(b).To(Equal([]byte{0x75, 0x00, 0x00, 0x02, byte(counters.PassedArp)}))
}

func TestGenerator_CounterRanges(t *testing.T) {
	RegisterTestingT(t)
	for _, d := range counters.Descriptions() {
		g := New().AddCountAndPass(d.Counter)
		if d.Category == "pass" {
			Expect(g.Err()).NotTo(HaveOccurred(), "pass-range counter %s must be accepted", d.Name)
		} else {
			Expect(g.Err()).To(MatchError(asm.ErrInvalidInput), "counter %s must be rejected on the pass path", d.Name)
		}

		g = New().AddCountAndDrop(d.Counter)
		if d.Category == "drop" {
			Expect(g.Err()).NotTo(HaveOccurred(), "drop-range counter %s must be accepted", d.Name)
		} else {
			Expect(g.Err()).To(MatchError(asm.ErrInvalidInput), "counter %s must be rejected on the drop path", d.Name)
		}
	}

	// Boundary ids just outside the declared ranges.
	Expect(New().AddCountAndPass(counters.TotalPackets).Err()).To(MatchError(asm.ErrInvalidInput))
	Expect(New().AddCountAndPass(counters.DroppedEthBroadcast).Err()).To(MatchError(asm.ErrInvalidInput))
	Expect(New().AddCountAndDrop(counters.PassedMld).Err()).To(MatchError(asm.ErrInvalidInput))
	Expect(New().AddCountAndDrop(counters.Counter(10000)).Err()).To(MatchError(asm.ErrInvalidInput))
}

func TestGenerator_Allocate(t *testing.T) {
	RegisterTestingT(t)
	b, err := New().AddAllocateR0().AddAllocate(1500).Assemble()
	Expect(err).NotTo(HaveOccurred())
	Expect(b).To(Equal([]byte{0xaa, 0x24, 0xab, 0x24, 0x05, 0xdc}))

	Expect(New().AddAllocate(65536).Err()).To(MatchError(asm.ErrInvalidInput))
	Expect(New().AddAllocate(-1).Err()).To(MatchError(asm.ErrInvalidInput))
}

func TestGenerator_Transmit(t *testing.T) {
	RegisterTestingT(t)
	noChecksum, err := New().AddTransmitWithoutChecksum().Assemble()
	Expect(err).NotTo(HaveOccurred())

	sentinel, err := New().AddTransmit(-1).Assemble()
	Expect(err).NotTo(HaveOccurred())
	// -1 is normalised to the 255 "not applicable" encoding.
	Expect(sentinel).To(Equal(noChecksum))
	Expect(sentinel).To(Equal([]byte{0xaa, 0x25, 0xff, 0xff}))

	withIP, err := New().AddTransmit(14).Assemble()
	Expect(err).NotTo(HaveOccurred())
	Expect(withIP).To(Equal([]byte{0xaa, 0x25, 0x0e, 0xff}))

	Expect(New().AddTransmit(255).Err()).To(MatchError(asm.ErrInvalidInput))
	Expect(New().AddTransmit(256).Err()).To(MatchError(asm.ErrInvalidInput))
	Expect(New().AddTransmit(-2).Err()).To(MatchError(asm.ErrInvalidInput))
}

func TestGenerator_TransmitL4(t *testing.T) {
	RegisterTestingT(t)
	b, err := New().AddTransmitL4(14, 40, 34, 0x1122, true).Assemble()
	Expect(err).NotTo(HaveOccurred())
	Expect(b).To(Equal([]byte{0xab, 0x25, 14, 40, 34, 0x11, 0x22}))

	Expect(New().AddTransmitL4(14, 255, 34, 0, true).Err()).To(MatchError(asm.ErrInvalidInput))
	Expect(New().AddTransmitL4(300, 40, 34, 0, false).Err()).To(MatchError(asm.ErrInvalidInput))
}

func TestGenerator_DataCopyDeduplicates(t *testing.T) {
	RegisterTestingT(t)
	g := New()
	g.AddData(nil).
		AddDataCopy([]byte{1, 2, 3}).
		AddDataCopy([]byte{1, 2, 3}).
		AddDataCopy([]byte{4, 5})

	b, err := g.Assemble()
	Expect(err).NotTo(HaveOccurred())
	Expect(b).To(Equal([]byte{
		0x75, 0x00, 0x05, 1, 2, 3, 4, 5, // data section grew to 5 bytes
		0xcb, 0x03, 0x03, // copy from offset 3, identical content
		0xcb, 0x03, 0x03, // same offset: the section did not grow again
		0xcb, 0x06, 0x02, // new content appended at offset 6
	}))
}

func TestGenerator_DataCopyRequiresDataSection(t *testing.T) {
	RegisterTestingT(t)
	g := New().AddDrop().AddDataCopy([]byte{1})
	Expect(g.Err()).To(MatchError(asm.ErrIllegalProgram))
	Expect(g.ClearErr()).To(BeFalse(), "illegal-program errors must not be clearable")
}

func TestGenerator_DataSectionMustComeFirst(t *testing.T) {
	RegisterTestingT(t)
	g := New().AddDrop().AddData(nil)
	Expect(g.Err()).To(MatchError(asm.ErrIllegalProgram))
}

func TestGenerator_InvalidInputLeavesProgramUntouched(t *testing.T) {
	RegisterTestingT(t)
	g := New().AddDrop()
	Expect(g.Len()).To(Equal(1))

	g.AddTransmit(400)
	Expect(g.Err()).To(MatchError(asm.ErrInvalidInput))
	Expect(g.Len()).To(Equal(1), "a rejected call must not append")

	// The failure is recoverable: clear it and retry with good arguments.
	Expect(g.ClearErr()).To(BeTrue())
	g.AddTransmit(-1)
	Expect(g.Err()).NotTo(HaveOccurred())
	Expect(g.Len()).To(Equal(2))
}

func TestGenerator_CopyLimits(t *testing.T) {
	RegisterTestingT(t)
	Expect(New().AddData(nil).AddDataCopy(make([]byte, 256)).Err()).To(MatchError(asm.ErrInvalidInput))
	Expect(New().AddPacketCopyFrom(-1, 10).Err()).To(MatchError(asm.ErrInvalidInput))
	Expect(New().AddPacketCopyFrom(0, 256).Err()).To(MatchError(asm.ErrInvalidInput))
	Expect(New().AddDataCopyFromR0(256).Err()).To(MatchError(asm.ErrInvalidInput))

	b, err := New().
		AddPacketCopyFrom(22, 12).
		AddDataCopyFromR0(8).
		AddPacketCopyFromR0LenR1().
		Assemble()
	Expect(err).NotTo(HaveOccurred())
	Expect(b).To(Equal([]byte{
		0xca, 0x16, 0x0c, // pktdatacopy from the packet, offset 22 len 12
		0xab, 0x29, 0x08, // data copy, offset in R0
		0xaa, 0x2a, // packet copy, offset in R0, length in R1
	}))
}

func TestGenerator_Writes(t *testing.T) {
	RegisterTestingT(t)
	b, err := New().
		AddWriteU8(0xab).
		AddWriteU16(0x1234).
		AddWriteU32(0xdeadbeef).
		AddWrite32([]byte{1, 2, 3, 4}).
		AddWriteU8FromRegister(asm.R1).
		AddWriteU32FromRegister(asm.R0).
		Assemble()
	Expect(err).NotTo(HaveOccurred())
	Expect(b).To(Equal([]byte{
		0xc2, 0xab,
		0xc4, 0x12, 0x34,
		0xc6, 0xde, 0xad, 0xbe, 0xef,
		0xc6, 0x01, 0x02, 0x03, 0x04,
		0xab, 0x26,
		0xaa, 0x28,
	}))

	Expect(New().AddWriteU8(256).Err()).To(MatchError(asm.ErrInvalidInput))
	Expect(New().AddWrite32([]byte{1, 2, 3}).Err()).To(MatchError(asm.ErrInvalidInput))
}

func TestGenerator_LoadStoreCounter(t *testing.T) {
	RegisterTestingT(t)
	b, err := New().
		AddLoadCounter(asm.R1, counters.TotalPackets).
		AddStoreCounter(counters.TotalPackets, asm.R0).
		Assemble()
	Expect(err).NotTo(HaveOccurred())
	Expect(b).To(Equal([]byte{0xb3, 0x01, 0xba, 0x01}))

	Expect(New().AddLoadCounter(asm.R0, counters.Counter(0)).Err()).To(MatchError(asm.ErrInvalidInput))
	Expect(New().AddStoreCounter(counters.Counter(1001), asm.R0).Err()).To(MatchError(asm.ErrInvalidInput))
}

func TestGenerator_CountAndDropIfR0LessThan(t *testing.T) {
	RegisterTestingT(t)
	Expect(New().AddCountAndDropIfR0LessThan(0, counters.DroppedEthBroadcast).Err()).
		To(MatchError(asm.ErrInvalidInput))
	Expect(New().AddCountAndDropIfR0LessThan(-5, counters.DroppedEthBroadcast).Err()).
		To(MatchError(asm.ErrInvalidInput))

	g := New().AddCountAndDropIfR0LessThan(5, counters.DroppedEthBroadcast)
	Expect(g.Err()).NotTo(HaveOccurred())
	// The macro is exactly three units: inverse jump, count+drop, label.
	Expect(g.Len()).To(Equal(3))

	b, err := g.Assemble()
	Expect(err).NotTo(HaveOccurred())
	jgt := []byte{0x8a, 0x02, 0x04} // jgt r0, 4 -> skip
	countDrop := []byte{0x03, 0x11} // count-and-drop, counter 17
	Expect(b).To(Equal(append(jgt, countDrop...)), "macro length is the sum of its parts")
}

func TestGenerator_CountAndPassIfR0Equals(t *testing.T) {
	RegisterTestingT(t)
	b, err := New().
		AddCountAndPassIfR0Equals(0x0806, counters.PassedArp).
		Assemble()
	Expect(err).NotTo(HaveOccurred())
	Expect(b).To(Equal([]byte{
		0x84, 0x00, 0x02, 0x08, 0x06, // jne r0, 0x806 -> skip (2-byte width)
		0x02, 0x02, // count-and-pass, counter 2
	}))
}

func TestGenerator_CountAndDropIfBytesAtR0NotEqual(t *testing.T) {
	RegisterTestingT(t)
	g := New().AddCountAndDropIfBytesAtR0NotEqual([]byte{0xde, 0xad}, counters.DroppedEthBroadcast)
	Expect(g.Err()).NotTo(HaveOccurred())
	b, err := g.Assemble()
	Expect(err).NotTo(HaveOccurred())
	Expect(b).To(Equal([]byte{
		0xa3, 0x02, 0x02, 0xde, 0xad, // jnebs (equal flavour) -> skip
		0x03, 0x11, // count-and-drop, counter 17
	}))
}

func TestGenerator_SiblingMacrosDontCollide(t *testing.T) {
	RegisterTestingT(t)
	g := New().
		AddCountAndDropIfR0Equals(1, counters.DroppedRa).
		AddCountAndDropIfR0Equals(2, counters.DroppedRa).
		AddCountAndPassIfR0NotEquals(3, counters.PassedMdns)
	Expect(g.Err()).NotTo(HaveOccurred())
	_, err := g.Assemble()
	Expect(err).NotTo(HaveOccurred())
}

func TestGenerator_BaseOps(t *testing.T) {
	RegisterTestingT(t)
	b, err := New().
		AddLoad16(asm.R0, 12).
		AddLoadImmediate(asm.R1, -1).
		AddAdd(-4).
		AddAnd(0xff).
		AddLeftShift(8).
		AddSwap().
		AddLoadFromMemory(asm.R0, asm.PacketSizeSlot).
		Assemble()
	Expect(err).NotTo(HaveOccurred())
	Expect(b).To(Equal([]byte{
		0x12, 0x0c, // ldh r0, [12]
		0x6b, 0xff, // li r1, -1
		0x3e, 0xff, 0xff, 0xff, 0xfc, // add -4 as two's complement
		0x5a, 0xff, // and 0xff
		0x62, 0x08, // sh 8
		0xaa, 0x22, // swap
		0xaa, 0x0e, // ldm slot 14
	}))

	Expect(New().AddLoadFromMemory(asm.R0, 16).Err()).To(MatchError(asm.ErrInvalidInput))
	Expect(New().AddLeftShift(32).Err()).To(MatchError(asm.ErrInvalidInput))
}

func TestGenerator_JumpFamily(t *testing.T) {
	RegisterTestingT(t)
	g := New()
	end := g.UniqueLabel()
	g.AddJumpIfR0Equals(0, end).
		AddJumpIfR0AnyBitsSet(0x180, end).
		AddJumpIfR0EqualsR1(end).
		AddDrop().
		DefineLabel(end).
		AddPass()
	Expect(g.Err()).NotTo(HaveOccurred())
	_, err := g.Assemble()
	Expect(err).NotTo(HaveOccurred())

	Expect(New().AddJumpIfR0Equals(1<<32, "x").Err()).To(MatchError(asm.ErrInvalidInput))
	Expect(New().AddJump("").Err()).To(MatchError(asm.ErrInvalidInput))
}
