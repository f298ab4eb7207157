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
	"math"

	"github.com/projectcalico/apf/asm"
)

// Register loads, arithmetic and conditional jumps: the substrate the
// semantic operations and macros are built from.

// AddLoad8 loads one packet byte at the immediate offset into reg.
func (g *Generator) AddLoad8(reg asm.Register, ofs int) *Generator {
	return g.addLoad(asm.OpLoad8, reg, ofs)
}

// AddLoad16 loads two packet bytes at the immediate offset into reg.
func (g *Generator) AddLoad16(reg asm.Register, ofs int) *Generator {
	return g.addLoad(asm.OpLoad16, reg, ofs)
}

// AddLoad32 loads four packet bytes at the immediate offset into reg.
func (g *Generator) AddLoad32(reg asm.Register, ofs int) *Generator {
	return g.addLoad(asm.OpLoad32, reg, ofs)
}

// AddLoad8Indexed loads one packet byte at the immediate offset plus R1.
func (g *Generator) AddLoad8Indexed(reg asm.Register, ofs int) *Generator {
	return g.addLoad(asm.OpLoad8Indexed, reg, ofs)
}

// AddLoad16Indexed loads two packet bytes at the immediate offset plus R1.
func (g *Generator) AddLoad16Indexed(reg asm.Register, ofs int) *Generator {
	return g.addLoad(asm.OpLoad16Indexed, reg, ofs)
}

// AddLoad32Indexed loads four packet bytes at the immediate offset plus R1.
func (g *Generator) AddLoad32Indexed(reg asm.Register, ofs int) *Generator {
	return g.addLoad(asm.OpLoad32Indexed, reg, ofs)
}

func (g *Generator) addLoad(op asm.Opcode, reg asm.Register, ofs int) *Generator {
	if g.err != nil {
		return g
	}
	if err := checkRegister(reg); err != nil {
		return g.fail(err)
	}
	if err := checkU32("load offset", int64(ofs)); err != nil {
		return g.fail(err)
	}
	return g.append(asm.NewRegInstruction(op, reg).AddUnsigned(uint32(ofs)))
}

// AddLoadImmediate loads a signed immediate into reg.
func (g *Generator) AddLoadImmediate(reg asm.Register, val int32) *Generator {
	if g.err != nil {
		return g
	}
	if err := checkRegister(reg); err != nil {
		return g.fail(err)
	}
	return g.append(asm.NewRegInstruction(asm.OpLoadImm, reg).AddSigned(val))
}

// AddLoadFromMemory loads interpreter memory slot into reg.
func (g *Generator) AddLoadFromMemory(reg asm.Register, slot int) *Generator {
	return g.addMemoryOp(asm.ExtLoadMemory, reg, slot)
}

// AddStoreToMemory stores reg into an interpreter memory slot.
func (g *Generator) AddStoreToMemory(slot int, reg asm.Register) *Generator {
	return g.addMemoryOp(asm.ExtStoreMemory, reg, slot)
}

func (g *Generator) addMemoryOp(base asm.ExtOpcode, reg asm.Register, slot int) *Generator {
	if g.err != nil {
		return g
	}
	if err := checkRegister(reg); err != nil {
		return g.fail(err)
	}
	if slot < 0 || slot >= asm.MemorySlots {
		return g.fail(asm.InvalidInputf("memory slot %d outside [0, %d)", slot, asm.MemorySlots))
	}
	return g.append(asm.NewExtRegInstruction(base+asm.ExtOpcode(slot), reg))
}

// AddAdd adds val to R0.  A negative value is encoded as its unsigned
// two's complement; the interpreter adds with wraparound, so this doubles
// as subtract.
func (g *Generator) AddAdd(val int32) *Generator {
	return g.append(asm.NewInstruction(asm.OpAdd, asm.Bit0).AddUnsigned(uint32(val)))
}

// AddOr ors the mask into R0.
func (g *Generator) AddOr(mask uint32) *Generator {
	return g.append(asm.NewInstruction(asm.OpOr, asm.Bit0).AddUnsigned(mask))
}

// AddAnd ands the mask into R0.
func (g *Generator) AddAnd(mask uint32) *Generator {
	return g.append(asm.NewInstruction(asm.OpAnd, asm.Bit0).AddUnsigned(mask))
}

// AddLeftShift shifts R0 left by val bits.
func (g *Generator) AddLeftShift(val int) *Generator {
	return g.addShift(val)
}

// AddRightShift shifts R0 right by val bits.
func (g *Generator) AddRightShift(val int) *Generator {
	return g.addShift(-val)
}

// The shift immediate is signed: negative shifts right.
func (g *Generator) addShift(val int) *Generator {
	if g.err != nil {
		return g
	}
	if val < -31 || val > 31 {
		return g.fail(asm.InvalidInputf("shift of %d bits outside [-31, 31]", val))
	}
	return g.append(asm.NewInstruction(asm.OpShift, asm.Bit0).AddSigned(int32(val)))
}

// Register-register arithmetic: R0 = R0 <op> R1.

func (g *Generator) AddAddR1() *Generator {
	return g.append(asm.NewRegInstruction(asm.OpAdd, asm.R1))
}

func (g *Generator) AddMulR1() *Generator {
	return g.append(asm.NewRegInstruction(asm.OpMul, asm.R1))
}

func (g *Generator) AddSubR1() *Generator {
	return g.append(asm.NewRegInstruction(asm.OpSub, asm.R1))
}

func (g *Generator) AddOrR1() *Generator {
	return g.append(asm.NewRegInstruction(asm.OpOr, asm.R1))
}

func (g *Generator) AddAndR1() *Generator {
	return g.append(asm.NewRegInstruction(asm.OpAnd, asm.R1))
}

// AddMove copies the other register into reg.
func (g *Generator) AddMove(reg asm.Register) *Generator {
	if g.err != nil {
		return g
	}
	if err := checkRegister(reg); err != nil {
		return g.fail(err)
	}
	return g.append(asm.NewExtRegInstruction(asm.ExtMove, reg))
}

// AddSwap exchanges R0 and R1.
func (g *Generator) AddSwap() *Generator {
	return g.append(asm.NewExtInstruction(asm.ExtSwap, asm.Bit0))
}

// AddNot inverts all bits of reg.
func (g *Generator) AddNot(reg asm.Register) *Generator {
	if g.err != nil {
		return g
	}
	if err := checkRegister(reg); err != nil {
		return g.fail(err)
	}
	return g.append(asm.NewExtRegInstruction(asm.ExtNot, reg))
}

// AddNeg negates reg.
func (g *Generator) AddNeg(reg asm.Register) *Generator {
	if g.err != nil {
		return g
	}
	if err := checkRegister(reg); err != nil {
		return g.fail(err)
	}
	return g.append(asm.NewExtRegInstruction(asm.ExtNeg, reg))
}

// AddJump jumps unconditionally to tgt.
func (g *Generator) AddJump(tgt string) *Generator {
	if g.err != nil {
		return g
	}
	if tgt == "" {
		return g.fail(asm.InvalidInputf("jump target must not be empty"))
	}
	return g.append(asm.NewInstruction(asm.OpJump, asm.Bit0).SetTarget(tgt))
}

// AddJumpIfR0Equals jumps to tgt if R0 == val.
func (g *Generator) AddJumpIfR0Equals(val int64, tgt string) *Generator {
	return g.addCompareJump(asm.OpJumpEq, val, tgt)
}

// AddJumpIfR0NotEquals jumps to tgt if R0 != val.
func (g *Generator) AddJumpIfR0NotEquals(val int64, tgt string) *Generator {
	return g.addCompareJump(asm.OpJumpNE, val, tgt)
}

// AddJumpIfR0GreaterThan jumps to tgt if R0 > val (unsigned).
func (g *Generator) AddJumpIfR0GreaterThan(val int64, tgt string) *Generator {
	return g.addCompareJump(asm.OpJumpGT, val, tgt)
}

// AddJumpIfR0LessThan jumps to tgt if R0 < val (unsigned).
func (g *Generator) AddJumpIfR0LessThan(val int64, tgt string) *Generator {
	return g.addCompareJump(asm.OpJumpLT, val, tgt)
}

// AddJumpIfR0AnyBitsSet jumps to tgt if R0 & val != 0.
func (g *Generator) AddJumpIfR0AnyBitsSet(val int64, tgt string) *Generator {
	return g.addCompareJump(asm.OpJumpSet, val, tgt)
}

func (g *Generator) addCompareJump(op asm.Opcode, val int64, tgt string) *Generator {
	if g.err != nil {
		return g
	}
	if err := checkU32("comparison value", val); err != nil {
		return g.fail(err)
	}
	if tgt == "" {
		return g.fail(asm.InvalidInputf("jump target must not be empty"))
	}
	return g.append(asm.NewInstruction(op, asm.Bit0).AddUnsigned(uint32(val)).SetTarget(tgt))
}

// Register-register comparisons.

func (g *Generator) AddJumpIfR0EqualsR1(tgt string) *Generator {
	return g.addRegCompareJump(asm.OpJumpEq, tgt)
}

func (g *Generator) AddJumpIfR0NotEqualsR1(tgt string) *Generator {
	return g.addRegCompareJump(asm.OpJumpNE, tgt)
}

func (g *Generator) AddJumpIfR0GreaterThanR1(tgt string) *Generator {
	return g.addRegCompareJump(asm.OpJumpGT, tgt)
}

func (g *Generator) AddJumpIfR0LessThanR1(tgt string) *Generator {
	return g.addRegCompareJump(asm.OpJumpLT, tgt)
}

func (g *Generator) AddJumpIfR0AnyBitsSetR1(tgt string) *Generator {
	return g.addRegCompareJump(asm.OpJumpSet, tgt)
}

func (g *Generator) addRegCompareJump(op asm.Opcode, tgt string) *Generator {
	if g.err != nil {
		return g
	}
	if tgt == "" {
		return g.fail(asm.InvalidInputf("jump target must not be empty"))
	}
	return g.append(asm.NewRegInstruction(op, asm.R1).SetTarget(tgt))
}

func checkU32(what string, v int64) error {
	if v < 0 || v > math.MaxUint32 {
		return asm.InvalidInputf("%s %d outside [0, %d]", what, v, int64(math.MaxUint32))
	}
	return nil
}
