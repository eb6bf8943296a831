// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package link

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/glslink/ir"
)

func TestErrorKindString(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want string
	}{
		{ErrIncompatibleBlockDefinition, "IncompatibleBlockDefinition"},
		{ErrUniformRedeclarationMismatch, "UniformRedeclarationMismatch"},
		{ErrExplicitLocationCollision, "ExplicitLocationCollision"},
		{ErrExplicitBindingCollision, "ExplicitBindingCollision"},
		{ErrResourceLimitExceeded, "ResourceLimitExceeded"},
		{ErrRecursionLimitExceeded, "RecursionLimitExceeded"},
		{ErrMalformedStorageQualifier, "MalformedStorageQualifier"},
		{ErrDuplicateSubroutineIndex, "DuplicateSubroutineIndex"},
		{ErrInvalidProgram, "InvalidProgram"},
		{ErrorKind(200), "Unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.String())
	}
}

func TestErrorFormatting(t *testing.T) {
	staged := &Error{Kind: ErrResourceLimitExceeded, Stage: ir.StageFragment, Message: "too many"}
	assert.Equal(t, "fragment shader: ResourceLimitExceeded: too many", staged.Error())

	global := &Error{Kind: ErrInvalidProgram, Stage: NoStage, Message: "no stages"}
	assert.Equal(t, "InvalidProgram: no stages", global.Error())

	var el Errors
	assert.Equal(t, "no errors", el.Error())
	assert.False(t, el.HasErrors())

	el.Add(staged)
	assert.Equal(t, staged.Error(), el.Error())
	el.Addf(ErrInvalidProgram, NoStage, "%d stages", 0)
	assert.Equal(t, 2, el.Len())
	assert.Equal(t, staged.Error()+" (and 1 more errors)", el.Error())
	assert.Equal(t,
		"error: fragment shader: ResourceLimitExceeded: too many\nerror: InvalidProgram: 0 stages",
		el.FormatAll())
}

func TestErrorsMatchByKind(t *testing.T) {
	b := newStage(ir.StageFragment)
	b.uniform("a", b.float(), ir.Qualifiers{Location: u32p(1)})
	b.uniform("b", b.float(), ir.Qualifiers{Location: u32p(1)})
	p := link(t, Options{}, b.build())

	err := p.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, &Error{Kind: ErrExplicitLocationCollision}))
	assert.False(t, errors.Is(err, &Error{Kind: ErrResourceLimitExceeded}))

	var le *Error
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ir.StageFragment, le.Stage)
	assert.Equal(t, p.InfoLog(), p.Errors().FormatAll())
}
