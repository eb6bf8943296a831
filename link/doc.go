// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package link links the uniforms and interface blocks of a set of shader
// stages into one program.
//
// Link takes the validated per-stage IR and produces a Program holding:
//   - UniformBlocks and ShaderStorageBlocks: one descriptor per active
//     block or active element of a block array, with member offsets and
//     strides from the layout package
//   - Uniforms: one entry per flattened leaf uniform, with per-stage
//     opaque indices for samplers, images and subroutine uniforms
//   - RemapTable and the per-stage subroutine remap tables
//   - AtomicBuffers, the backing store size, and the resource list
//
// # Linking Modes
//
// Source selects how declarations are matched across stages. SourceNamed
// follows GLSL: uniforms by flattened name, blocks by block name.
// SourceLocation follows SPIR-V: uniforms by location or binding, blocks by
// binding, and explicit offsets are trusted.
//
// # Errors
//
// A link never returns a Go error. Every violation is recorded as an
// *Error with an ErrorKind, the linker keeps going where it can, and the
// program's link status becomes false:
//
//	prog := link.Link(stages, link.Options{})
//	if !prog.LinkStatus() {
//	    fmt.Print(prog.InfoLog())
//	}
//
// # Queries
//
// The Program answers introspection queries by interface and index:
//
//	idx, ok := prog.ResourceIndex(link.InterfaceUniformBlock, "Lights")
//	size, _ := prog.ResourceProperty(link.InterfaceUniformBlock, idx, link.PropBufferDataSize)
//	loc := prog.UniformLocation("colors[2]")
//
// A failed link answers every query with "not found".
package link
