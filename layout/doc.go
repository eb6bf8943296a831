// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package layout implements the std140 and std430 block layout rules.
//
// The rules follow the OpenGL 4.6 specification, section 7.6.2.2:
//
//   - Scalars align to their own size (4 bytes, 8 for 64-bit types).
//   - Two-component vectors align to twice the scalar size; three- and
//     four-component vectors align to four times the scalar size.
//   - Arrays and matrices are laid out as arrays of elements (columns, or
//     rows when row-major). std140 rounds their alignment and stride up to
//     16 bytes; std430 does not.
//   - Structs align to their largest member, rounded up to 16 bytes in
//     std140, and their size is padded to that alignment.
//
// The shared and packed qualifiers are laid out as std140. Input compiled
// from SPIR-V carries explicit offsets and strides, which a Calculator
// created with explicit set uses unchanged.
//
// Example:
//
//	calc := layout.New(types, ir.PackingStd430, false)
//	for _, m := range calc.Members(block, false) {
//		fmt.Println(m.Offset, m.Size)
//	}
//	size := calc.BlockSize(block, false)
package layout
