// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package link

import (
	"fmt"
	"strings"

	"github.com/gogpu/glslink/ir"
)

// ErrorKind categorizes link errors.
type ErrorKind uint8

const (
	// ErrIncompatibleBlockDefinition indicates a block redeclared with a
	// different member layout or packing.
	ErrIncompatibleBlockDefinition ErrorKind = iota

	// ErrUniformRedeclarationMismatch indicates a uniform redeclared with a
	// different type, array size or qualifiers.
	ErrUniformRedeclarationMismatch

	// ErrExplicitLocationCollision indicates two uniforms claiming one location.
	ErrExplicitLocationCollision

	// ErrExplicitBindingCollision indicates conflicting explicit bindings.
	ErrExplicitBindingCollision

	// ErrResourceLimitExceeded indicates a per-stage or combined limit overflow.
	ErrResourceLimitExceeded

	// ErrRecursionLimitExceeded indicates type nesting past ir.MaxTypeDepth.
	ErrRecursionLimitExceeded

	// ErrMalformedStorageQualifier indicates an invalid qualifier or member
	// placement, such as an unsized array that is not the last member.
	ErrMalformedStorageQualifier

	// ErrDuplicateSubroutineIndex indicates two subroutine functions with
	// the same explicit index.
	ErrDuplicateSubroutineIndex

	// ErrInvalidProgram indicates a malformed set of stages or invalid input.
	ErrInvalidProgram
)

// String returns a human-readable error kind name.
func (k ErrorKind) String() string {
	switch k {
	case ErrIncompatibleBlockDefinition:
		return "IncompatibleBlockDefinition"
	case ErrUniformRedeclarationMismatch:
		return "UniformRedeclarationMismatch"
	case ErrExplicitLocationCollision:
		return "ExplicitLocationCollision"
	case ErrExplicitBindingCollision:
		return "ExplicitBindingCollision"
	case ErrResourceLimitExceeded:
		return "ResourceLimitExceeded"
	case ErrRecursionLimitExceeded:
		return "RecursionLimitExceeded"
	case ErrMalformedStorageQualifier:
		return "MalformedStorageQualifier"
	case ErrDuplicateSubroutineIndex:
		return "DuplicateSubroutineIndex"
	case ErrInvalidProgram:
		return "InvalidProgram"
	default:
		return "Unknown"
	}
}

// NoStage marks errors that concern the whole program.
const NoStage = ir.StageCount

// Error is a single link error.
type Error struct {
	// Kind categorizes the error.
	Kind ErrorKind

	// Stage is the stage the error was found in, or NoStage.
	Stage ir.ShaderStage

	// Message provides details about the error.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Stage < ir.StageCount {
		return fmt.Sprintf("%s shader: %s: %s", e.Stage, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is reports whether target is an *Error of the same kind, so that
// errors.Is(err, &Error{Kind: k}) matches any error of kind k.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Message == ""
}

// Errors is the ordered list of errors of one link.
type Errors []*Error

// Error implements the error interface.
func (el Errors) Error() string {
	if len(el) == 0 {
		return "no errors"
	}
	if len(el) == 1 {
		return el[0].Error()
	}
	return fmt.Sprintf("%s (and %d more errors)", el[0].Error(), len(el)-1)
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (el Errors) Unwrap() []error {
	out := make([]error, len(el))
	for i, e := range el {
		out[i] = e
	}
	return out
}

// Add adds an error to the list.
func (el *Errors) Add(err *Error) {
	*el = append(*el, err)
}

// Addf adds a formatted error.
func (el *Errors) Addf(kind ErrorKind, stage ir.ShaderStage, format string, args ...any) {
	el.Add(&Error{Kind: kind, Stage: stage, Message: fmt.Sprintf(format, args...)})
}

// Len returns the number of errors.
func (el Errors) Len() int {
	return len(el)
}

// HasErrors returns true if there are any errors.
func (el Errors) HasErrors() bool {
	return len(el) > 0
}

// HasKind reports whether any error has the given kind.
func (el Errors) HasKind(kind ErrorKind) bool {
	for _, e := range el {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

// FormatAll returns one line per error, the way a program info log reads.
func (el Errors) FormatAll() string {
	var sb strings.Builder
	for i, e := range el {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("error: ")
		sb.WriteString(e.Error())
	}
	return sb.String()
}
