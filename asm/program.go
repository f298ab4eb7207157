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
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

const (
	// PassLabel and DropLabel are implicit jump targets just past the end
	// of the program; the interpreter treats landing there as the final
	// pass/drop verdict.
	PassLabel = "__PASS__"
	DropLabel = "__DROP__"

	uniqueLabelPrefix = "__tmp"

	// Widths only ever shrink during assembly, from 4 bytes down, so a
	// handful of passes always reaches the fixpoint.
	maxShrinkPasses = 10
)

// Program is an ordered list of instructions under construction, together
// with its label table.  A Program belongs to a single caller; it is not
// safe for concurrent mutation.
type Program struct {
	insns        []*Instruction
	labels       map[string]*Instruction
	uniqueLabels int
}

func NewProgram() *Program {
	return &Program{labels: map[string]*Instruction{}}
}

// Append adds an instruction at the end of the program.
func (p *Program) Append(n *Instruction) {
	p.insns = append(p.insns, n)
}

// Empty reports whether no instruction has been appended yet.
func (p *Program) Empty() bool {
	return len(p.insns) == 0
}

// Len returns the number of appended instructions, label definitions
// included.
func (p *Program) Len() int {
	return len(p.insns)
}

// DataSection returns the data pseudo-instruction, which is only ever
// valid as the very first instruction of a program.
func (p *Program) DataSection() (*Instruction, error) {
	if len(p.insns) == 0 || !p.insns[0].IsData() {
		return nil, IllegalProgramf("program has no data section")
	}
	return p.insns[0], nil
}

// DefineLabel attaches a label to the current end-of-program position.
// Each label may be defined exactly once.
func (p *Program) DefineLabel(name string) error {
	if name == "" {
		return InvalidInputf("label name must not be empty")
	}
	if name == PassLabel || name == DropLabel {
		return InvalidInputf("label %q is reserved", name)
	}
	if _, ok := p.labels[name]; ok {
		return IllegalProgramf("label %q defined twice", name)
	}
	// If the caller hands back a generated name, advance the counter past
	// it so UniqueLabel can never collide with it.
	if rest, ok := strings.CutPrefix(name, uniqueLabelPrefix); ok {
		if v, err := strconv.Atoi(rest); err == nil && v >= p.uniqueLabels {
			p.uniqueLabels = v + 1
		}
	}
	n := newLabelInstruction(name)
	p.labels[name] = n
	p.Append(n)
	return nil
}

// UniqueLabel returns a fresh label name that is guaranteed not to collide
// with any label defined on this program, before or after the call.
func (p *Program) UniqueLabel() string {
	name := fmt.Sprintf("%s%d", uniqueLabelPrefix, p.uniqueLabels)
	p.uniqueLabels++
	return name
}

// Assemble resolves every label to a byte offset and emits the flat byte
// stream.  Jump offsets are encoded at the smallest width that can
// represent them; since offset widths influence instruction sizes, which
// in turn influence offsets, assembly starts from the worst case and
// shrinks to a fixpoint.
func (p *Program) Assemble() ([]byte, error) {
	for _, n := range p.insns {
		if n.target == "" || n.target == PassLabel || n.target == DropLabel {
			continue
		}
		if _, ok := p.labels[n.target]; !ok {
			return nil, IllegalProgramf("label %q referenced but never defined", n.target)
		}
	}

	for _, n := range p.insns {
		n.indet = n.immSizeOverride
		if n.indet == 0 {
			n.indet = n.minVariableWidth()
			if n.target != "" && n.indet < 4 {
				n.indet = 4
			}
		}
	}

	var total int
	for pass := 0; pass < maxShrinkPasses; pass++ {
		total = p.updateOffsets()
		changed := false
		for _, n := range p.insns {
			if n.target == "" || n.immSizeOverride != 0 {
				continue
			}
			off, err := p.targetOffset(n, total)
			if err != nil {
				return nil, err
			}
			w := n.minVariableWidth()
			if req := widthForUnsigned(uint32(off)); req > w {
				w = req
			}
			// Widths may only shrink; growing could invalidate offsets
			// computed earlier in this pass.
			if w < n.indet {
				n.indet = w
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	out := make([]byte, 0, total)
	for _, n := range p.insns {
		var off int
		if n.target != "" {
			var err error
			if off, err = p.targetOffset(n, total); err != nil {
				return nil, err
			}
		}
		out = n.encode(out, uint32(off))
	}
	if len(out) != total {
		return nil, IllegalProgramf("assembled %d bytes, expected %d", len(out), total)
	}

	if log.IsLevelEnabled(log.TraceLevel) {
		for _, n := range p.insns {
			log.WithField("offset", n.offset).Trace(n.String())
		}
	}
	log.WithFields(log.Fields{
		"instructions": len(p.insns),
		"bytes":        len(out),
	}).Debug("Assembled APF program")
	return out, nil
}

func (p *Program) updateOffsets() int {
	off := 0
	for _, n := range p.insns {
		n.offset = off
		off += n.size()
	}
	return off
}

// targetOffset computes the encoded jump distance: the offset is relative
// to the first byte after the jumping instruction, and the interpreter
// only ever jumps forward.
func (p *Program) targetOffset(n *Instruction, total int) (int, error) {
	var tgt int
	switch n.target {
	case PassLabel:
		tgt = total
	case DropLabel:
		tgt = total + 1
	default:
		tgt = p.labels[n.target].offset
	}
	off := tgt - (n.offset + n.size())
	if off < 0 {
		return 0, IllegalProgramf("backward jump to label %q from offset %d", n.target, n.offset)
	}
	return off, nil
}
