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
	"strings"

	"github.com/projectcalico/apf/asm"
)

// DNS name lists are part of the interpreter's binary contract: a
// concatenation of TLV-encoded names, each name a sequence of
// length-prefixed labels ended by a 0 byte, with a final 0 byte closing
// the whole list.  A length byte of 0xff is a single-label wildcard and
// carries no payload.  Label characters are restricted to what the
// interpreter's matcher can scan: A-Z, 0-9, '-', '_' and '%'.

const wildcardLabel = 0xff

func isValidDNSCharacter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
		c == '-' || c == '_' || c == '%'
}

// ValidateNames checks that names is a well-formed, null-terminated list
// of TLV-encoded DNS names.  Handing the matcher anything else is unsafe,
// so every DNS match operation validates before emitting an instruction.
func ValidateNames(names []byte) error {
	n := len(names)
	if n < 4 {
		return asm.InvalidInputf("qname list %x: length %d, need at least 4", names, n)
	}
	i := 0
	for i < n-1 {
		labelLen := int(names[i])
		i++
		if labelLen == wildcardLabel {
			continue
		}
		if labelLen < 1 || labelLen > 63 {
			return asm.InvalidInputf("qname list %x: label length %d outside [1, 63]", names, labelLen)
		}
		if i+labelLen >= n-1 {
			return asm.InvalidInputf("qname list %x is not a null-terminated TLV name list", names)
		}
		for ; labelLen > 0; labelLen-- {
			if !isValidDNSCharacter(names[i]) {
				return asm.InvalidInputf("qname list %x contains invalid character %q", names, names[i])
			}
			i++
		}
		if names[i] == 0 {
			i++ // End of one name.
		}
	}
	if names[n-1] != 0 {
		return asm.InvalidInputf("qname list %x is not null terminated", names)
	}
	return nil
}

// EncodeQNames builds the TLV name list for the given dotted names.  A
// "*" component becomes a wildcard label; everything else is upper-cased
// to match the interpreter's case folding.
func EncodeQNames(names ...string) ([]byte, error) {
	if len(names) == 0 {
		return nil, asm.InvalidInputf("need at least one name")
	}
	var out []byte
	for _, name := range names {
		for _, comp := range strings.Split(strings.ToUpper(name), ".") {
			if comp == "*" {
				out = append(out, wildcardLabel)
				continue
			}
			if len(comp) < 1 || len(comp) > 63 {
				return nil, asm.InvalidInputf("name %q: label %q length outside [1, 63]", name, comp)
			}
			for i := 0; i < len(comp); i++ {
				if !isValidDNSCharacter(comp[i]) {
					return nil, asm.InvalidInputf("name %q contains invalid character %q", name, comp[i])
				}
			}
			out = append(out, byte(len(comp)))
			out = append(out, comp...)
		}
		out = append(out, 0)
	}
	out = append(out, 0)
	if err := ValidateNames(out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddJumpIfPktAtR0ContainDnsQ jumps to tgt if the DNS questions in the
// UDP payload starting at the offset in R0 contain one of the qnames with
// the given qtype.  The discriminator bit selects "contains"; corrupted
// packets are dropped.
func (g *Generator) AddJumpIfPktAtR0ContainDnsQ(qnames []byte, qtype int, tgt string) *Generator {
	return g.addDNSQMatch(asm.ExtJumpDNSQMatch, asm.Bit1, qnames, qtype, tgt)
}

// AddJumpIfPktAtR0ContainDnsQSafe is AddJumpIfPktAtR0ContainDnsQ, except
// corrupted packets are passed.
func (g *Generator) AddJumpIfPktAtR0ContainDnsQSafe(qnames []byte, qtype int, tgt string) *Generator {
	return g.addDNSQMatch(asm.ExtJumpDNSQMatchSafe, asm.Bit1, qnames, qtype, tgt)
}

// AddJumpIfPktAtR0DoesNotContainDnsQ jumps to tgt if the DNS questions do
// NOT contain any of the qnames with the given qtype.  Corrupted packets
// are dropped.
func (g *Generator) AddJumpIfPktAtR0DoesNotContainDnsQ(qnames []byte, qtype int, tgt string) *Generator {
	return g.addDNSQMatch(asm.ExtJumpDNSQMatch, asm.Bit0, qnames, qtype, tgt)
}

// AddJumpIfPktAtR0DoesNotContainDnsQSafe is
// AddJumpIfPktAtR0DoesNotContainDnsQ, except corrupted packets are passed.
func (g *Generator) AddJumpIfPktAtR0DoesNotContainDnsQSafe(qnames []byte, qtype int, tgt string) *Generator {
	return g.addDNSQMatch(asm.ExtJumpDNSQMatchSafe, asm.Bit0, qnames, qtype, tgt)
}

// AddJumpIfPktAtR0ContainDnsA jumps to tgt if the DNS answer sections in
// the UDP payload starting at the offset in R0 contain one of the names.
// Corrupted packets are dropped.
func (g *Generator) AddJumpIfPktAtR0ContainDnsA(names []byte, tgt string) *Generator {
	return g.addDNSAMatch(asm.ExtJumpDNSAMatch, asm.Bit1, names, tgt)
}

// AddJumpIfPktAtR0ContainDnsASafe is AddJumpIfPktAtR0ContainDnsA, except
// corrupted packets are passed.
func (g *Generator) AddJumpIfPktAtR0ContainDnsASafe(names []byte, tgt string) *Generator {
	return g.addDNSAMatch(asm.ExtJumpDNSAMatchSafe, asm.Bit1, names, tgt)
}

// AddJumpIfPktAtR0DoesNotContainDnsA jumps to tgt if the DNS answer
// sections do NOT contain any of the names.  Corrupted packets are
// dropped.
func (g *Generator) AddJumpIfPktAtR0DoesNotContainDnsA(names []byte, tgt string) *Generator {
	return g.addDNSAMatch(asm.ExtJumpDNSAMatch, asm.Bit0, names, tgt)
}

// AddJumpIfPktAtR0DoesNotContainDnsASafe is
// AddJumpIfPktAtR0DoesNotContainDnsA, except corrupted packets are passed.
func (g *Generator) AddJumpIfPktAtR0DoesNotContainDnsASafe(names []byte, tgt string) *Generator {
	return g.addDNSAMatch(asm.ExtJumpDNSAMatchSafe, asm.Bit0, names, tgt)
}

func (g *Generator) addDNSQMatch(ext asm.ExtOpcode, bit asm.Bit, qnames []byte, qtype int, tgt string) *Generator {
	if g.err != nil {
		return g
	}
	if err := ValidateNames(qnames); err != nil {
		return g.fail(err)
	}
	if qtype < 0 || qtype > 255 {
		return g.fail(asm.InvalidInputf("qtype %d outside [0, 255]", qtype))
	}
	if tgt == "" {
		return g.fail(asm.InvalidInputf("jump target must not be empty"))
	}
	return g.append(asm.NewExtInstruction(ext, bit).
		SetTarget(tgt).AddU8(uint8(qtype)).SetBytes(qnames))
}

func (g *Generator) addDNSAMatch(ext asm.ExtOpcode, bit asm.Bit, names []byte, tgt string) *Generator {
	if g.err != nil {
		return g
	}
	if err := ValidateNames(names); err != nil {
		return g.fail(err)
	}
	if tgt == "" {
		return g.fail(asm.InvalidInputf("jump target must not be empty"))
	}
	return g.append(asm.NewExtInstruction(ext, bit).
		SetTarget(tgt).SetBytes(names))
}
