// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package link

import "github.com/gogpu/glslink/ir"

// StageLimits holds the resource limits of one shader stage.
type StageLimits struct {
	MaxUniformComponents    uint32
	MaxTextureImageUnits    uint32
	MaxImageUniforms        uint32
	MaxUniformBlocks        uint32
	MaxShaderStorageBlocks  uint32
	MaxAtomicCounters       uint32
	MaxAtomicCounterBuffers uint32
}

// Limits is the constants table a link is checked against.
type Limits struct {
	// Stages is indexed by ir.ShaderStage.
	Stages [ir.StageCount]StageLimits

	MaxCombinedTextureImageUnits      uint32
	MaxCombinedImageUniforms          uint32
	MaxCombinedUniformBlocks          uint32
	MaxCombinedShaderStorageBlocks    uint32
	MaxCombinedAtomicCounters         uint32
	MaxCombinedAtomicBuffers          uint32
	MaxAtomicCounterBufferBindings    uint32
	MaxUniformBlockSize               uint32
	MaxShaderStorageBlockSize         uint32
	MaxUserAssignableUniformLocations uint32
	MaxSubroutines                    uint32
	MaxSubroutineUniformLocations     uint32

	// UseSTD430AsDefaultPacking lays out blocks without a packing
	// qualifier as std430 instead of shared.
	UseSTD430AsDefaultPacking bool

	// PackedDriverUniformStorage packs 64-bit uniforms into the data store
	// without aligning them to an even slot.
	PackedDriverUniformStorage bool
}

// DefaultLimits returns the limits of a typical desktop OpenGL 4.6 driver.
func DefaultLimits() Limits {
	stage := StageLimits{
		MaxUniformComponents:    4096,
		MaxTextureImageUnits:    32,
		MaxImageUniforms:        32,
		MaxUniformBlocks:        14,
		MaxShaderStorageBlocks:  16,
		MaxAtomicCounters:       4096,
		MaxAtomicCounterBuffers: 8,
	}
	l := Limits{
		MaxCombinedTextureImageUnits:      192,
		MaxCombinedImageUniforms:          192,
		MaxCombinedUniformBlocks:          84,
		MaxCombinedShaderStorageBlocks:    96,
		MaxCombinedAtomicCounters:         24576,
		MaxCombinedAtomicBuffers:          48,
		MaxAtomicCounterBufferBindings:    8,
		MaxUniformBlockSize:               65536,
		MaxShaderStorageBlockSize:         1 << 27,
		MaxUserAssignableUniformLocations: 4096,
		MaxSubroutines:                    256,
		MaxSubroutineUniformLocations:     1024,
	}
	for i := range l.Stages {
		l.Stages[i] = stage
	}
	return l
}
