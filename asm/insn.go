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

package asm

import (
	"bytes"
	"fmt"
	"math"
	"strings"
)

// dataHeaderSize is the encoded size of the data pseudo-instruction's
// header: the leading byte plus the forced 2-byte length immediate.  Data
// region offsets handed to copy instructions are relative to the start of
// the program, so the first payload byte lives at this offset.
const dataHeaderSize = 3

// immediate is a single numeric operand.  width 1/2/4 is fixed by the
// instruction semantics; width 0 means the operand is encoded at the
// instruction's shared variable width (the one advertised by the leading
// byte's length field).
type immediate struct {
	value  uint32
	width  int
	signed bool
}

// Instruction is one APF instruction under construction.  Constructing an
// instruction never fails; range and content validation happens in the
// calling layer before the instruction is appended to a program.
type Instruction struct {
	op     Opcode
	rbit   Bit
	ext    ExtOpcode
	hasExt bool

	imms     []immediate
	bytesImm []byte
	target   string // jump target label, resolved at assembly time.
	label    string // set only on opLabel pseudo-instructions.

	// immSizeOverride forces the variable-immediate width; some opcodes
	// (WRITE, the data pseudo-instruction) encode meaning in the length
	// field itself so it cannot be inferred from the value.
	immSizeOverride int

	// Assembly state, only meaningful while Program.Assemble runs.
	offset int
	indet  int
}

// NewInstruction creates an instruction whose operand bit is a pure
// discriminator (pass vs drop, match vs no-match).
func NewInstruction(op Opcode, bit Bit) *Instruction {
	return &Instruction{op: op, rbit: bit}
}

// NewRegInstruction creates an instruction whose operand bit selects the
// register the opcode acts on.
func NewRegInstruction(op Opcode, reg Register) *Instruction {
	return &Instruction{op: op, rbit: reg.bit()}
}

// NewExtInstruction creates an OpExt instruction with a discriminator bit.
func NewExtInstruction(ext ExtOpcode, bit Bit) *Instruction {
	return &Instruction{op: OpExt, rbit: bit, ext: ext, hasExt: true}
}

// NewExtRegInstruction creates an OpExt instruction acting on a register.
func NewExtRegInstruction(ext ExtOpcode, reg Register) *Instruction {
	return &Instruction{op: OpExt, rbit: reg.bit(), ext: ext, hasExt: true}
}

// NewDataInstruction creates the data section pseudo-instruction: an
// OpJump over the raw bytes, with the length immediate pinned at 2 bytes
// so the payload offset stays stable as the section grows.
func NewDataInstruction(data []byte) *Instruction {
	n := NewInstruction(OpJump, Bit1)
	n.AddUnsigned(uint32(len(data)))
	// The payload must stay non-nil even when empty: a nil payload means
	// "no data section".
	buf := make([]byte, len(data))
	copy(buf, data)
	n.SetBytes(buf)
	n.OverrideImmSize(2)
	return n
}

func newLabelInstruction(name string) *Instruction {
	return &Instruction{op: opLabel, label: name}
}

// AddUnsigned attaches an unsigned immediate encoded at the instruction's
// shared variable width.
func (n *Instruction) AddUnsigned(v uint32) *Instruction {
	n.imms = append(n.imms, immediate{value: v})
	return n
}

// AddSigned attaches a signed immediate encoded at the instruction's
// shared variable width.
func (n *Instruction) AddSigned(v int32) *Instruction {
	n.imms = append(n.imms, immediate{value: uint32(v), signed: true})
	return n
}

// AddU8 attaches a fixed single-byte immediate.
func (n *Instruction) AddU8(v uint8) *Instruction {
	n.imms = append(n.imms, immediate{value: uint32(v), width: 1})
	return n
}

// AddU16 attaches a fixed big-endian 2-byte immediate.
func (n *Instruction) AddU16(v uint16) *Instruction {
	n.imms = append(n.imms, immediate{value: uint32(v), width: 2})
	return n
}

// AddU32 attaches a fixed big-endian 4-byte immediate.
func (n *Instruction) AddU32(v uint32) *Instruction {
	n.imms = append(n.imms, immediate{value: v, width: 4})
	return n
}

// SetBytes attaches the raw byte payload, emitted verbatim after the
// immediates.
func (n *Instruction) SetBytes(b []byte) *Instruction {
	n.bytesImm = b
	return n
}

// SetTarget records a jump target.  The offset is computed and encoded
// when the owning program is assembled.
func (n *Instruction) SetTarget(label string) *Instruction {
	n.target = label
	return n
}

// OverrideImmSize pins the variable-immediate width to 1, 2 or 4 bytes
// regardless of the attached values.
func (n *Instruction) OverrideImmSize(width int) *Instruction {
	n.immSizeOverride = width
	return n
}

// IsData reports whether this is the data section pseudo-instruction.
func (n *Instruction) IsData() bool {
	return n.op == OpJump && n.rbit == Bit1 && n.bytesImm != nil
}

// GrowData deduplicates content into the data section and returns the
// program-relative offset of the (found or appended) copy.  The search is
// a first-match linear scan over the existing bytes.
func (n *Instruction) GrowData(content []byte) (int, error) {
	if !n.IsData() {
		return 0, IllegalProgramf("program has no data section")
	}
	if idx := bytes.Index(n.bytesImm, content); idx >= 0 {
		return dataHeaderSize + idx, nil
	}
	if len(n.bytesImm)+len(content) > math.MaxUint16 {
		return 0, InvalidInputf("data section would grow to %d bytes, max %d",
			len(n.bytesImm)+len(content), math.MaxUint16)
	}
	off := dataHeaderSize + len(n.bytesImm)
	n.bytesImm = append(n.bytesImm, content...)
	n.imms[0].value = uint32(len(n.bytesImm))
	return off, nil
}

// minVariableWidth is the smallest shared width that can represent every
// variable immediate (including the extended opcode), ignoring any jump
// target.
func (n *Instruction) minVariableWidth() int {
	w := 0
	if n.hasExt {
		w = widthForUnsigned(uint32(n.ext))
	}
	for _, imm := range n.imms {
		if imm.width != 0 {
			continue
		}
		var req int
		if imm.signed {
			req = widthForSigned(int32(imm.value))
		} else {
			req = widthForUnsigned(imm.value)
		}
		if req > w {
			w = req
		}
	}
	return w
}

// size is the encoded byte length at the current variable width.
func (n *Instruction) size() int {
	if n.op == opLabel {
		return 0
	}
	sz := 1
	if n.hasExt {
		sz += n.indet
	}
	if n.target != "" {
		sz += n.indet
	}
	for _, imm := range n.imms {
		if imm.width != 0 {
			sz += imm.width
		} else {
			sz += n.indet
		}
	}
	return sz + len(n.bytesImm)
}

// encode appends the instruction's bytes to out.  jumpOff is the already
// resolved target offset (0 if the instruction has no target).
func (n *Instruction) encode(out []byte, jumpOff uint32) []byte {
	if n.op == opLabel {
		return out
	}
	out = append(out, uint8(n.op)<<3|lenField(n.indet)<<1|uint8(n.rbit))
	if n.hasExt {
		out = appendValue(out, uint32(n.ext), n.indet)
	}
	if n.target != "" {
		out = appendValue(out, jumpOff, n.indet)
	}
	for _, imm := range n.imms {
		w := imm.width
		if w == 0 {
			w = n.indet
		}
		out = appendValue(out, imm.value, w)
	}
	return append(out, n.bytesImm...)
}

func (n *Instruction) String() string {
	if n.op == opLabel {
		return n.label + ":"
	}
	var b strings.Builder
	b.WriteString(n.op.String())
	if n.hasExt {
		fmt.Fprintf(&b, " ext=%d", n.ext)
	}
	fmt.Fprintf(&b, " r=%d", n.rbit)
	for _, imm := range n.imms {
		if imm.signed {
			fmt.Fprintf(&b, " imm=%d", int32(imm.value))
		} else {
			fmt.Fprintf(&b, " imm=%d", imm.value)
		}
	}
	if n.target != "" {
		b.WriteString(" -> " + n.target)
	}
	if n.bytesImm != nil {
		fmt.Fprintf(&b, " bytes=%x", n.bytesImm)
	}
	return b.String()
}

func appendValue(out []byte, v uint32, width int) []byte {
	switch width {
	case 1:
		return append(out, uint8(v))
	case 2:
		return append(out, uint8(v>>8), uint8(v))
	case 4:
		return append(out, uint8(v>>24), uint8(v>>16), uint8(v>>8), uint8(v))
	}
	return out
}

func widthForUnsigned(v uint32) int {
	switch {
	case v == 0:
		return 0
	case v <= math.MaxUint8:
		return 1
	case v <= math.MaxUint16:
		return 2
	}
	return 4
}

func widthForSigned(v int32) int {
	switch {
	case v == 0:
		return 0
	case v >= math.MinInt8 && v <= math.MaxInt8:
		return 1
	case v >= math.MinInt16 && v <= math.MaxInt16:
		return 2
	}
	return 4
}

func lenField(width int) uint8 {
	if width == 4 {
		return 3
	}
	return uint8(width)
}
