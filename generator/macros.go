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
	"github.com/projectcalico/apf/asm"
	"github.com/projectcalico/apf/counters"
)

// The count-and-terminate macros expand to a fixed three-unit sequence:
// a conditional jump testing the inverse condition to a fresh unique
// label, the count-and-terminate instruction, and the label definition.
// Unique labels keep nested and sibling expansions from colliding.
//
// The counter's range eligibility is checked before the first instruction
// is appended so a rejected call leaves the program untouched.

// AddCountAndDropIfR0Equals drops and counts if R0 == val.
func (g *Generator) AddCountAndDropIfR0Equals(val int64, cnt counters.Counter) *Generator {
	if g.err != nil {
		return g
	}
	if err := checkDropCounter(cnt); err != nil {
		return g.fail(err)
	}
	tgt := g.UniqueLabel()
	return g.AddJumpIfR0NotEquals(val, tgt).AddCountAndDrop(cnt).DefineLabel(tgt)
}

// AddCountAndPassIfR0Equals passes and counts if R0 == val.
func (g *Generator) AddCountAndPassIfR0Equals(val int64, cnt counters.Counter) *Generator {
	if g.err != nil {
		return g
	}
	if err := checkPassCounter(cnt); err != nil {
		return g.fail(err)
	}
	tgt := g.UniqueLabel()
	return g.AddJumpIfR0NotEquals(val, tgt).AddCountAndPass(cnt).DefineLabel(tgt)
}

// AddCountAndDropIfR0NotEquals drops and counts if R0 != val.
func (g *Generator) AddCountAndDropIfR0NotEquals(val int64, cnt counters.Counter) *Generator {
	if g.err != nil {
		return g
	}
	if err := checkDropCounter(cnt); err != nil {
		return g.fail(err)
	}
	tgt := g.UniqueLabel()
	return g.AddJumpIfR0Equals(val, tgt).AddCountAndDrop(cnt).DefineLabel(tgt)
}

// AddCountAndPassIfR0NotEquals passes and counts if R0 != val.
func (g *Generator) AddCountAndPassIfR0NotEquals(val int64, cnt counters.Counter) *Generator {
	if g.err != nil {
		return g
	}
	if err := checkPassCounter(cnt); err != nil {
		return g.fail(err)
	}
	tgt := g.UniqueLabel()
	return g.AddJumpIfR0Equals(val, tgt).AddCountAndPass(cnt).DefineLabel(tgt)
}

// AddCountAndDropIfR0LessThan drops and counts if R0 < val.  val must be
// strictly positive: the underlying primitive only expresses "greater
// than", so the inverse test is R0 > val-1.
func (g *Generator) AddCountAndDropIfR0LessThan(val int64, cnt counters.Counter) *Generator {
	if g.err != nil {
		return g
	}
	if err := checkDropCounter(cnt); err != nil {
		return g.fail(err)
	}
	if val <= 0 {
		return g.fail(asm.InvalidInputf("threshold must be > 0, got %d", val))
	}
	tgt := g.UniqueLabel()
	return g.AddJumpIfR0GreaterThan(val-1, tgt).AddCountAndDrop(cnt).DefineLabel(tgt)
}

// AddCountAndPassIfR0LessThan passes and counts if R0 < val.  val must be
// strictly positive.
func (g *Generator) AddCountAndPassIfR0LessThan(val int64, cnt counters.Counter) *Generator {
	if g.err != nil {
		return g
	}
	if err := checkPassCounter(cnt); err != nil {
		return g.fail(err)
	}
	if val <= 0 {
		return g.fail(asm.InvalidInputf("threshold must be > 0, got %d", val))
	}
	tgt := g.UniqueLabel()
	return g.AddJumpIfR0GreaterThan(val-1, tgt).AddCountAndPass(cnt).DefineLabel(tgt)
}

// AddCountAndDropIfBytesAtR0NotEqual drops and counts if the packet bytes
// at the offset held in R0 differ from b.
func (g *Generator) AddCountAndDropIfBytesAtR0NotEqual(b []byte, cnt counters.Counter) *Generator {
	if g.err != nil {
		return g
	}
	if err := checkDropCounter(cnt); err != nil {
		return g.fail(err)
	}
	tgt := g.UniqueLabel()
	return g.AddJumpIfBytesAtR0Equal(b, tgt).AddCountAndDrop(cnt).DefineLabel(tgt)
}

// AddCountAndPassIfBytesAtR0NotEqual passes and counts if the packet
// bytes at the offset held in R0 differ from b.
func (g *Generator) AddCountAndPassIfBytesAtR0NotEqual(b []byte, cnt counters.Counter) *Generator {
	if g.err != nil {
		return g
	}
	if err := checkPassCounter(cnt); err != nil {
		return g.fail(err)
	}
	tgt := g.UniqueLabel()
	return g.AddJumpIfBytesAtR0Equal(b, tgt).AddCountAndPass(cnt).DefineLabel(tgt)
}

func checkPassCounter(cnt counters.Counter) error {
	if !cnt.PassEligible() {
		return asm.InvalidInputf("counter %s (%d) is not in the pass range", cnt, int32(cnt))
	}
	return nil
}

func checkDropCounter(cnt counters.Counter) error {
	if !cnt.DropEligible() {
		return asm.InvalidInputf("counter %s (%d) is not in the drop range", cnt, int32(cnt))
	}
	return nil
}
