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

// Package asm implements the instruction-level layer of the APF (Android
// Packet Filter) assembler: the fixed-format instruction encoding, symbolic
// labels and the final offset-resolution pass that turns a program into the
// flat byte stream executed by the in-NIC interpreter.
//
// Instruction numbering below follows the APF interpreter specification;
// the leading byte of every instruction packs the opcode, a 2-bit immediate
// length field and a single register/discriminator bit:
//
//	opcode<<3 | lenField<<1 | rbit
//
// All immediates are big-endian.
package asm

// Opcode is one of the APF interpreter's base opcodes.
type Opcode uint8

const (
	// OpPassDrop terminates the program.  The register bit selects the
	// verdict: bit 0 is PASS, bit 1 is DROP.  An optional unsigned
	// immediate carries the counter number to increment.
	OpPassDrop Opcode = 0
	OpLoad8    Opcode = 1 // LDB: load 1 byte from packet at immediate offset.
	OpLoad16   Opcode = 2 // LDH
	OpLoad32   Opcode = 3 // LDW
	// Indexed loads add R1 to the immediate offset.
	OpLoad8Indexed  Opcode = 4 // LDBX
	OpLoad16Indexed Opcode = 5 // LDHX
	OpLoad32Indexed Opcode = 6 // LDWX
	OpAdd           Opcode = 7
	OpMul           Opcode = 8
	OpSub           Opcode = 9
	OpOr            Opcode = 10
	OpAnd           Opcode = 11
	OpShift         Opcode = 12 // SH: signed immediate, negative shifts right.
	OpLoadImm       Opcode = 13 // LI: load signed immediate into register.
	// OpJump doubles as the data pseudo-instruction: with the register bit
	// set, the immediate is the length of a raw byte region that follows
	// and the interpreter jumps over it.
	OpJump        Opcode = 14
	OpJumpEq      Opcode = 15 // JEQ
	OpJumpNE      Opcode = 16 // JNE
	OpJumpGT      Opcode = 17 // JGT
	OpJumpLT      Opcode = 18 // JLT
	OpJumpSet     Opcode = 19 // JSET: jump if R0 & imm != 0.
	OpJumpBytesNE Opcode = 20 // JNEBS: compare packet bytes at R0 with literal bytes.
	OpExt         Opcode = 21 // EXT: first immediate selects an ExtOpcode.
	OpLoadData    Opcode = 22 // LDDW: load counter value.
	OpStoreData   Opcode = 23 // STDW: store register into counter.
	OpWrite       Opcode = 24 // WRITE: emit immediate into the output buffer.
	OpPacketCopy  Opcode = 25 // PKTDATACOPY: bit selects packet vs data region source.

	// opLabel marks the zero-size pseudo-instruction produced by
	// Program.DefineLabel.  It never reaches the byte stream.
	opLabel Opcode = 0x3f
)

// ExtOpcode is an extended opcode, encoded as the first immediate of an
// OpExt instruction.
type ExtOpcode uint16

const (
	// ExtLoadMemory/ExtStoreMemory are bases; the memory slot number
	// (0-15) is added to them.
	ExtLoadMemory  ExtOpcode = 0
	ExtStoreMemory ExtOpcode = 16

	ExtNot  ExtOpcode = 32
	ExtNeg  ExtOpcode = 33
	ExtSwap ExtOpcode = 34
	ExtMove ExtOpcode = 35

	ExtAllocate ExtOpcode = 36
	ExtTransmit ExtOpcode = 37
	ExtWrite1   ExtOpcode = 38 // EWRITE1: write 1 byte from register.
	ExtWrite2   ExtOpcode = 39
	ExtWrite4   ExtOpcode = 40

	ExtDataCopyImm ExtOpcode = 41 // EPKTDATACOPYIMM: copy, source offset in R0.
	ExtDataCopyR1  ExtOpcode = 42 // EPKTDATACOPYR1: offset in R0, length in R1.

	ExtJumpDNSQMatch     ExtOpcode = 43 // JDNSQMATCH
	ExtJumpDNSAMatch     ExtOpcode = 44 // JDNSAMATCH
	ExtJumpDNSQMatchSafe ExtOpcode = 45 // JDNSQMATCHSAFE
	ExtJumpDNSAMatchSafe ExtOpcode = 46 // JDNSAMATCHSAFE
)

// Register identifies one of the interpreter's two registers.  It shares
// its encoding with the instruction's discriminator bit; opcodes that use
// the bit to select between sibling operations (pass/drop, match/no-match)
// take a Bit instead so the distinction stays visible at call sites.
type Register uint8

const (
	R0 Register = 0
	R1 Register = 1
)

// Bit is the raw single-bit operand for opcodes that use it as a
// discriminator rather than a register selector.
type Bit uint8

const (
	Bit0 Bit = 0
	Bit1 Bit = 1
)

func (r Register) bit() Bit {
	if r == R1 {
		return Bit1
	}
	return Bit0
}

// Interpreter memory slots.  Slots 0-12 are scratch; the remainder are
// prefilled by the interpreter before the program runs.
const (
	MemorySlots = 16

	IPv4HeaderSizeSlot = 13
	PacketSizeSlot     = 14
	FilterAgeSlot      = 15
)

var opcodeNames = map[Opcode]string{
	OpPassDrop:      "passdrop",
	OpLoad8:         "ldb",
	OpLoad16:        "ldh",
	OpLoad32:        "ldw",
	OpLoad8Indexed:  "ldbx",
	OpLoad16Indexed: "ldhx",
	OpLoad32Indexed: "ldwx",
	OpAdd:           "add",
	OpMul:           "mul",
	OpSub:           "sub",
	OpOr:            "or",
	OpAnd:           "and",
	OpShift:         "sh",
	OpLoadImm:       "li",
	OpJump:          "jmp",
	OpJumpEq:        "jeq",
	OpJumpNE:        "jne",
	OpJumpGT:        "jgt",
	OpJumpLT:        "jlt",
	OpJumpSet:       "jset",
	OpJumpBytesNE:   "jnebs",
	OpExt:           "ext",
	OpLoadData:      "lddw",
	OpStoreData:     "stdw",
	OpWrite:         "write",
	OpPacketCopy:    "pktdatacopy",
	opLabel:         "label",
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return "unknown"
}
