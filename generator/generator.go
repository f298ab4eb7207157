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

// Package generator builds APF filter programs out of semantic operations:
// "count this packet and pass it", "reply from the data section", "jump if
// the DNS question doesn't match".  Each operation validates its inputs
// before any instruction is created, then emits one instruction or a short
// fixed expansion; the encoding details live in the asm package.
//
// Operations return the generator itself so programs read as chains:
//
//	g := generator.New()
//	g.AddData(nil).
//		AddLoad16(asm.R0, 12).
//		AddCountAndDropIfR0Equals(0x88a2, counters.DroppedEthertypeNotAllowed).
//		AddCountAndPass(counters.PassedIPv4)
//	program, err := g.Assemble()
//
// The first failing operation is recorded and every later operation becomes
// a no-op, so the chain's error surfaces exactly once, from Err or
// Assemble.  Invalid-input failures leave the program untouched and can be
// cleared with ClearErr to retry; illegal-program failures are fatal to the
// build.
package generator

import (
	"encoding/binary"
	"errors"
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/projectcalico/apf/asm"
	"github.com/projectcalico/apf/counters"
)

const (
	// maxCopyLen is the single-instruction copy limit; longer copies take
	// multiple instructions.
	maxCopyLen = 255

	// maxCounterID bounds the counter immediate accepted by the
	// interpreter.
	maxCounterID = 1000
)

// Generator accumulates one APF program.  It owns its instruction list,
// label table and data section exclusively; a Generator is not safe for
// concurrent use.
type Generator struct {
	prog *asm.Program
	err  error
}

func New() *Generator {
	return &Generator{prog: asm.NewProgram()}
}

// Err returns the first error recorded by a builder operation, or nil.
func (g *Generator) Err() error {
	return g.err
}

// ClearErr discards a recorded invalid-input error so the caller can retry
// the failed operation with corrected arguments.  It reports whether the
// generator is usable again; illegal-program errors are fatal and cannot
// be cleared.
func (g *Generator) ClearErr() bool {
	if g.err != nil && errors.Is(g.err, asm.ErrInvalidInput) {
		g.err = nil
	}
	return g.err == nil
}

// Len returns the number of program units appended so far, label
// definitions included.
func (g *Generator) Len() int {
	return g.prog.Len()
}

// DefineLabel attaches name to the current end-of-program position.
func (g *Generator) DefineLabel(name string) *Generator {
	if g.err != nil {
		return g
	}
	if err := g.prog.DefineLabel(name); err != nil {
		g.err = err
	}
	return g
}

// UniqueLabel returns a fresh label name guaranteed not to collide with
// any other label on this generator.
func (g *Generator) UniqueLabel() string {
	return g.prog.UniqueLabel()
}

// Assemble resolves labels and emits the program's byte stream.
func (g *Generator) Assemble() ([]byte, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.prog.Assemble()
}

func (g *Generator) fail(err error) *Generator {
	if g.err == nil {
		g.err = err
	}
	return g
}

func (g *Generator) append(n *asm.Instruction) *Generator {
	if g.err == nil {
		g.prog.Append(n)
	}
	return g
}

// AddPass appends an unconditional PASS verdict.  PASS shares its opcode
// with DROP; the discriminator bit is pinned here and never exposed.
func (g *Generator) AddPass() *Generator {
	return g.append(asm.NewInstruction(asm.OpPassDrop, asm.Bit0))
}

// AddDrop appends an unconditional DROP verdict.
func (g *Generator) AddDrop() *Generator {
	return g.append(asm.NewInstruction(asm.OpPassDrop, asm.Bit1))
}

// AddCountAndPass increments cnt and immediately returns PASS.  cnt must
// be in the pass-eligible range.
func (g *Generator) AddCountAndPass(cnt counters.Counter) *Generator {
	if g.err != nil {
		return g
	}
	if err := checkPassCounter(cnt); err != nil {
		return g.fail(err)
	}
	return g.append(asm.NewInstruction(asm.OpPassDrop, asm.Bit0).AddUnsigned(cnt.Value()))
}

// AddCountAndDrop increments cnt and immediately returns DROP.  cnt must
// be in the drop-eligible range.
func (g *Generator) AddCountAndDrop(cnt counters.Counter) *Generator {
	if g.err != nil {
		return g
	}
	if err := checkDropCounter(cnt); err != nil {
		return g.fail(err)
	}
	return g.append(asm.NewInstruction(asm.OpPassDrop, asm.Bit1).AddUnsigned(cnt.Value()))
}

// AddAllocateR0 allocates the output buffer; the length is taken from R0.
func (g *Generator) AddAllocateR0() *Generator {
	return g.append(asm.NewExtInstruction(asm.ExtAllocate, asm.Bit0))
}

// AddAllocate allocates an output buffer of the given length.
func (g *Generator) AddAllocate(size int) *Generator {
	if g.err != nil {
		return g
	}
	if size < 0 || size > math.MaxUint16 {
		return g.fail(asm.InvalidInputf("allocation size %d outside [0, %d]", size, math.MaxUint16))
	}
	// Bit 1 signals that the explicit 2-byte length immediate is present.
	return g.append(asm.NewExtInstruction(asm.ExtAllocate, asm.Bit1).AddU16(uint16(size)))
}

// AddTransmitWithoutChecksum transmits the allocated buffer with no
// checksum fixup.
func (g *Generator) AddTransmitWithoutChecksum() *Generator {
	return g.AddTransmit(-1)
}

// AddTransmit transmits the allocated buffer.  ipOfs is the IP header
// offset used for the IPv4 header checksum; -1 means not applicable and is
// encoded as 255.
func (g *Generator) AddTransmit(ipOfs int) *Generator {
	if g.err != nil {
		return g
	}
	if ipOfs < -1 || ipOfs >= 255 {
		return g.fail(asm.InvalidInputf("IP offset %d must be < 255", ipOfs))
	}
	if ipOfs == -1 {
		ipOfs = 255
	}
	return g.append(asm.NewExtInstruction(asm.ExtTransmit, asm.Bit0).
		AddU8(uint8(ipOfs)).AddU8(255))
}

// AddTransmitL4 transmits the allocated buffer, computing an L4 checksum
// from the partial checksum and writing it at csumOfs.  The bit selects
// UDP semantics (checksum 0 becomes 0xffff).
func (g *Generator) AddTransmitL4(ipOfs, csumOfs, csumStart, partialCsum int, isUDP bool) *Generator {
	if g.err != nil {
		return g
	}
	if ipOfs < -1 || ipOfs >= 255 {
		return g.fail(asm.InvalidInputf("IP offset %d must be < 255", ipOfs))
	}
	if ipOfs == -1 {
		ipOfs = 255
	}
	if csumOfs < 0 || csumOfs >= 255 {
		return g.fail(asm.InvalidInputf("L4 checksum offset %d must be in [0, 255)", csumOfs))
	}
	if csumStart < 0 || csumStart > 255 {
		return g.fail(asm.InvalidInputf("L4 checksum start %d must be in [0, 255]", csumStart))
	}
	if partialCsum < 0 || partialCsum > math.MaxUint16 {
		return g.fail(asm.InvalidInputf("partial checksum %#x outside [0, %#x]", partialCsum, math.MaxUint16))
	}
	bit := asm.Bit0
	if isUDP {
		bit = asm.Bit1
	}
	return g.append(asm.NewExtInstruction(asm.ExtTransmit, bit).
		AddU8(uint8(ipOfs)).AddU8(uint8(csumOfs)).AddU8(uint8(csumStart)).AddU16(uint16(partialCsum)))
}

// AddData reserves the data region, which later AddDataCopy calls grow.
// It must be the very first instruction of the program.  Pass nil to
// declare an empty region.
func (g *Generator) AddData(data []byte) *Generator {
	if g.err != nil {
		return g
	}
	if !g.prog.Empty() {
		return g.fail(asm.IllegalProgramf("data section must be the first instruction"))
	}
	if len(data) > math.MaxUint16 {
		return g.fail(asm.InvalidInputf("data size %d larger than %d", len(data), math.MaxUint16))
	}
	return g.append(asm.NewDataInstruction(data))
}

// AddDataCopy copies content from the data region into the output buffer,
// growing the region only if an identical byte run is not already present.
// Requires AddData to have been called first.
func (g *Generator) AddDataCopy(content []byte) *Generator {
	if g.err != nil {
		return g
	}
	if content == nil {
		return g.fail(asm.InvalidInputf("data copy content must not be nil"))
	}
	if len(content) > maxCopyLen {
		return g.fail(asm.InvalidInputf("data copy of %d bytes exceeds the %d byte limit", len(content), maxCopyLen))
	}
	ds, err := g.prog.DataSection()
	if err != nil {
		return g.fail(err)
	}
	src, err := ds.GrowData(content)
	if err != nil {
		return g.fail(err)
	}
	log.WithFields(log.Fields{"offset": src, "len": len(content)}).Debug("Data copy source resolved")
	return g.AddDataCopyFrom(src, len(content))
}

// AddDataCopyFrom copies length bytes from the given program/data region
// offset into the output buffer.
func (g *Generator) AddDataCopyFrom(src, length int) *Generator {
	if g.err != nil {
		return g
	}
	if err := g.checkCopyArgs(src, length); err != nil {
		return g.fail(err)
	}
	return g.append(asm.NewInstruction(asm.OpPacketCopy, asm.Bit1).
		AddUnsigned(uint32(src)).AddU8(uint8(length)))
}

// AddPacketCopyFrom copies length bytes from the given input packet offset
// into the output buffer.
func (g *Generator) AddPacketCopyFrom(src, length int) *Generator {
	if g.err != nil {
		return g
	}
	if err := g.checkCopyArgs(src, length); err != nil {
		return g.fail(err)
	}
	return g.append(asm.NewInstruction(asm.OpPacketCopy, asm.Bit0).
		AddUnsigned(uint32(src)).AddU8(uint8(length)))
}

// AddDataCopyFromR0 copies length bytes from the data region offset held
// in R0.
func (g *Generator) AddDataCopyFromR0(length int) *Generator {
	if g.err != nil {
		return g
	}
	if length < 0 || length > maxCopyLen {
		return g.fail(asm.InvalidInputf("copy length %d outside [0, %d]", length, maxCopyLen))
	}
	return g.append(asm.NewExtInstruction(asm.ExtDataCopyImm, asm.Bit1).AddU8(uint8(length)))
}

// AddPacketCopyFromR0 copies length bytes from the packet offset held in
// R0.
func (g *Generator) AddPacketCopyFromR0(length int) *Generator {
	if g.err != nil {
		return g
	}
	if length < 0 || length > maxCopyLen {
		return g.fail(asm.InvalidInputf("copy length %d outside [0, %d]", length, maxCopyLen))
	}
	return g.append(asm.NewExtInstruction(asm.ExtDataCopyImm, asm.Bit0).AddU8(uint8(length)))
}

// AddDataCopyFromR0LenR1 copies from the data region; source offset in R0,
// length in R1.
func (g *Generator) AddDataCopyFromR0LenR1() *Generator {
	return g.append(asm.NewExtInstruction(asm.ExtDataCopyR1, asm.Bit1))
}

// AddPacketCopyFromR0LenR1 copies from the packet; source offset in R0,
// length in R1.
func (g *Generator) AddPacketCopyFromR0LenR1() *Generator {
	return g.append(asm.NewExtInstruction(asm.ExtDataCopyR1, asm.Bit0))
}

func (g *Generator) checkCopyArgs(src, length int) error {
	if src < 0 {
		return asm.InvalidInputf("copy source offset %d must not be negative", src)
	}
	if length < 0 || length > maxCopyLen {
		return asm.InvalidInputf("copy length %d outside [0, %d]", length, maxCopyLen)
	}
	return nil
}

// AddWriteU8 writes a 1-byte literal to the output buffer.
func (g *Generator) AddWriteU8(val int) *Generator {
	if g.err != nil {
		return g
	}
	if val < 0 || val > math.MaxUint8 {
		return g.fail(asm.InvalidInputf("write value %d outside [0, %d]", val, math.MaxUint8))
	}
	return g.append(asm.NewInstruction(asm.OpWrite, asm.Bit0).OverrideImmSize(1).AddU8(uint8(val)))
}

// AddWriteU16 writes a 2-byte literal to the output buffer.
func (g *Generator) AddWriteU16(val int) *Generator {
	if g.err != nil {
		return g
	}
	if val < 0 || val > math.MaxUint16 {
		return g.fail(asm.InvalidInputf("write value %d outside [0, %d]", val, math.MaxUint16))
	}
	return g.append(asm.NewInstruction(asm.OpWrite, asm.Bit0).OverrideImmSize(2).AddU16(uint16(val)))
}

// AddWriteU32 writes a 4-byte literal to the output buffer.
func (g *Generator) AddWriteU32(val uint32) *Generator {
	return g.append(asm.NewInstruction(asm.OpWrite, asm.Bit0).OverrideImmSize(4).AddU32(val))
}

// AddWrite32 writes a 4-byte array to the output buffer.
func (g *Generator) AddWrite32(b []byte) *Generator {
	if g.err != nil {
		return g
	}
	if len(b) != 4 {
		return g.fail(asm.InvalidInputf("write array must be 4 bytes, got %d", len(b)))
	}
	return g.AddWriteU32(binary.BigEndian.Uint32(b))
}

// AddWriteU8FromRegister writes the low byte of reg to the output buffer.
func (g *Generator) AddWriteU8FromRegister(reg asm.Register) *Generator {
	return g.addRegWrite(asm.ExtWrite1, reg)
}

// AddWriteU16FromRegister writes the low 2 bytes of reg to the output
// buffer.
func (g *Generator) AddWriteU16FromRegister(reg asm.Register) *Generator {
	return g.addRegWrite(asm.ExtWrite2, reg)
}

// AddWriteU32FromRegister writes reg to the output buffer.
func (g *Generator) AddWriteU32FromRegister(reg asm.Register) *Generator {
	return g.addRegWrite(asm.ExtWrite4, reg)
}

func (g *Generator) addRegWrite(ext asm.ExtOpcode, reg asm.Register) *Generator {
	if g.err != nil {
		return g
	}
	if err := checkRegister(reg); err != nil {
		return g.fail(err)
	}
	return g.append(asm.NewExtRegInstruction(ext, reg))
}

// AddLoadCounter loads the value of cnt into reg.
func (g *Generator) AddLoadCounter(reg asm.Register, cnt counters.Counter) *Generator {
	if g.err != nil {
		return g
	}
	if err := checkRegister(reg); err != nil {
		return g.fail(err)
	}
	if err := checkCounterID(cnt); err != nil {
		return g.fail(err)
	}
	return g.append(asm.NewRegInstruction(asm.OpLoadData, reg).AddUnsigned(cnt.Value()))
}

// AddStoreCounter stores reg into cnt.
func (g *Generator) AddStoreCounter(cnt counters.Counter, reg asm.Register) *Generator {
	if g.err != nil {
		return g
	}
	if err := checkRegister(reg); err != nil {
		return g.fail(err)
	}
	if err := checkCounterID(cnt); err != nil {
		return g.fail(err)
	}
	return g.append(asm.NewRegInstruction(asm.OpStoreData, reg).AddUnsigned(cnt.Value()))
}

// AddJumpIfBytesAtR0Equal jumps to tgt if the packet bytes at the offset
// held in R0 equal b.  The discriminator bit selects "equal"; its "not
// equal" sibling is AddJumpIfBytesAtR0NotEqual.
func (g *Generator) AddJumpIfBytesAtR0Equal(b []byte, tgt string) *Generator {
	return g.addBytesMatch(asm.Bit1, b, tgt)
}

// AddJumpIfBytesAtR0NotEqual jumps to tgt if the packet bytes at the
// offset held in R0 differ from b.
func (g *Generator) AddJumpIfBytesAtR0NotEqual(b []byte, tgt string) *Generator {
	return g.addBytesMatch(asm.Bit0, b, tgt)
}

func (g *Generator) addBytesMatch(bit asm.Bit, b []byte, tgt string) *Generator {
	if g.err != nil {
		return g
	}
	if len(b) == 0 {
		return g.fail(asm.InvalidInputf("byte match pattern must not be empty"))
	}
	if tgt == "" {
		return g.fail(asm.InvalidInputf("jump target must not be empty"))
	}
	return g.append(asm.NewInstruction(asm.OpJumpBytesNE, bit).
		AddUnsigned(uint32(len(b))).SetTarget(tgt).SetBytes(b))
}

func checkRegister(reg asm.Register) error {
	if reg != asm.R0 && reg != asm.R1 {
		return asm.InvalidInputf("register %d does not exist", reg)
	}
	return nil
}

func checkCounterID(cnt counters.Counter) error {
	if cnt < 1 || int32(cnt) > maxCounterID {
		return asm.InvalidInputf("counter id %d outside [1, %d]", int32(cnt), maxCounterID)
	}
	return nil
}
