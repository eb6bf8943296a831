// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package reflection exports the resource tables of a linked program in
// the formats renderers consume.
package reflection

import (
	"errors"
	"fmt"
	"strconv"

	"gioui.org/shader"

	"github.com/gogpu/glslink/ir"
	"github.com/gogpu/glslink/link"
)

var (
	// ErrNotLinked is returned for programs whose link failed.
	ErrNotLinked = errors.New("program is not linked")

	// ErrUnsupported is returned for resources Gio's reflection format
	// cannot express.
	ErrUnsupported = errors.New("unsupported by gio reflection")
)

// GioSources describes one stage of a linked program as Gio shader
// sources. Uniform blocks referenced by the stage are concatenated in
// block order, so member offsets are relative to the start of the first
// block. Only reflection fields are filled; the stage has no compiled code.
func GioSources(p *link.Program, stage ir.ShaderStage, name string) (shader.Sources, error) {
	src := shader.Sources{Name: name}
	if !p.LinkStatus() {
		return src, ErrNotLinked
	}
	if !p.Stages.Has(stage) {
		return src, fmt.Errorf("program has no %s shader", stage)
	}

	for _, in := range p.Inputs {
		if in.Stage != stage || in.Builtin {
			continue
		}
		dt, size, err := dataType(ir.Inner(p.Types, in.Type))
		if err != nil {
			return src, fmt.Errorf("input %q: %w", in.Name, err)
		}
		src.Inputs = append(src.Inputs, shader.InputLocation{
			Name:     in.Name,
			Location: in.Location,
			Type:     dt,
			Size:     size,
		})
	}

	base := 0
	for _, b := range p.UniformBlocks {
		if !b.StageRefs.Has(stage) {
			continue
		}
		for _, v := range b.Variables {
			locs, err := uniformLocations(p, v, base)
			if err != nil {
				return src, fmt.Errorf("block %q: %w", b.Name, err)
			}
			src.Uniforms.Locations = append(src.Uniforms.Locations, locs...)
		}
		base += int(b.DataSize)
	}
	src.Uniforms.Size = base

	for i := range p.Uniforms {
		u := &p.Uniforms[i]
		if u.BlockIndex >= 0 || !u.ActiveStages.Has(stage) || u.Hidden || u.Builtin {
			continue
		}
		switch ir.Inner(p.Types, u.Type).(type) {
		case ir.SamplerType:
			for _, e := range expand(u) {
				src.Textures = append(src.Textures, shader.TextureBinding{Name: e.name, Binding: e.value})
			}
		case ir.ImageType:
			for _, e := range expand(u) {
				src.Images = append(src.Images, shader.ImageBinding{Name: e.name, Binding: e.value})
			}
		case ir.AtomicCounterType, ir.SubroutineType:
			return src, fmt.Errorf("uniform %q: %w", u.Name, ErrUnsupported)
		default:
			return src, fmt.Errorf("default-block uniform %q: %w", u.Name, ErrUnsupported)
		}
	}

	for _, b := range p.ShaderStorageBlocks {
		if !b.StageRefs.Has(stage) {
			continue
		}
		src.StorageBuffers = append(src.StorageBuffers, shader.BufferBinding{Name: b.Name, Binding: max(b.Binding, 0)})
	}
	return src, nil
}

// element is one array element of a resource with its binding or byte
// offset.
type element struct {
	name  string
	value int
}

// expand lists the elements of an opaque uniform with their bindings.
// Without an explicit binding the opaque index in the first active stage
// stands in.
func expand(u *link.Uniform) []element {
	binding := u.Binding
	if binding < 0 {
		for _, o := range u.Opaque {
			if o.Active {
				binding = int(o.Index)
				break
			}
		}
	}
	if u.ArrayElements == 0 {
		return []element{{u.Name, binding}}
	}
	out := make([]element, u.ArrayElements)
	for i := range out {
		out[i] = element{u.Name + "[" + strconv.Itoa(i) + "]", binding + i}
	}
	return out
}

// uniformLocations flattens one block member into vector-sized entries:
// one per array element and matrix column.
func uniformLocations(p *link.Program, v link.BufferVariable, base int) ([]shader.UniformLocation, error) {
	inner := ir.Inner(p.Types, v.Type)

	elements := []element{{v.Name, base + int(v.Offset)}}
	if v.ArrayElements > 0 {
		elements = elements[:0]
		for i := 0; i < int(v.ArrayElements); i++ {
			elements = append(elements, element{
				v.Name + "[" + strconv.Itoa(i) + "]",
				base + int(v.Offset) + i*int(v.ArrayStride),
			})
		}
	}

	var out []shader.UniformLocation
	for _, e := range elements {
		if m, ok := inner.(ir.MatrixType); ok {
			if v.RowMajor {
				return nil, fmt.Errorf("row-major matrix %q: %w", v.Name, ErrUnsupported)
			}
			col := ir.VectorType{Size: m.Rows, Scalar: m.Scalar}
			dt, size, err := dataType(col)
			if err != nil {
				return nil, fmt.Errorf("member %q: %w", v.Name, err)
			}
			for c := 0; c < int(m.Columns); c++ {
				out = append(out, shader.UniformLocation{
					Name:   e.name + "[" + strconv.Itoa(c) + "]",
					Type:   dt,
					Size:   size,
					Offset: e.value + c*int(v.MatrixStride),
				})
			}
			continue
		}
		dt, size, err := dataType(inner)
		if err != nil {
			return nil, fmt.Errorf("member %q: %w", v.Name, err)
		}
		out = append(out, shader.UniformLocation{Name: e.name, Type: dt, Size: size, Offset: e.value})
	}
	return out, nil
}

// dataType maps 32-bit scalars and vectors to Gio data types.
func dataType(inner ir.TypeInner) (shader.DataType, int, error) {
	s, ok := ir.ScalarOf(inner)
	n := int(ir.ComponentCount(inner))
	if _, mat := inner.(ir.MatrixType); !ok || mat || s.Is64Bit() {
		return 0, 0, ErrUnsupported
	}
	switch s.Kind {
	case ir.ScalarFloat:
		return shader.DataTypeFloat, n, nil
	case ir.ScalarSint, ir.ScalarUint, ir.ScalarBool:
		return shader.DataTypeInt, n, nil
	}
	return 0, 0, ErrUnsupported
}
