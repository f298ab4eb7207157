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
	stderrors "errors"

	"github.com/pkg/errors"
)

// The assembler reports exactly two kinds of failure.  Both are sentinel
// errors so callers can discriminate with errors.Is.
var (
	// ErrInvalidInput marks a rejected call: an argument was out of range
	// or malformed.  The program is left exactly as it was; the caller may
	// retry with corrected arguments.
	ErrInvalidInput = stderrors.New("invalid input")

	// ErrIllegalProgram marks a structural caller bug (data section out of
	// order, undefined label, duplicate label).  The program cannot be
	// completed and must be discarded.
	ErrIllegalProgram = stderrors.New("illegal program state")
)

// InvalidInputf wraps ErrInvalidInput with a diagnostic.
func InvalidInputf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidInput, format, args...)
}

// IllegalProgramf wraps ErrIllegalProgram with a diagnostic.
func IllegalProgramf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrIllegalProgram, format, args...)
}
