// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package manifest reads program manifests: YAML descriptions of the
// interface of each shader stage of a program, as a front end would hand
// them to the linker.
//
//	version: "450"
//	source: named
//	stages:
//	  - stage: vertex
//	    structs:
//	      - name: Light
//	        members: [{name: color, type: vec4}, {name: shadow, type: sampler2DShadow}]
//	    globals:
//	      - {name: mvp, space: uniform, type: mat4, location: 0}
//	      - {name: lights, space: uniform, type: "Light[4]"}
//	      - name: blk
//	        space: uniform_block
//	        block: Block
//	        type: "Block[4]"
//	        packing: packed
//	        members: [{name: v, type: vec4}]
//	        usage: {dims: [{indices: [1, 3]}]}
//
// Type strings are GLSL built-in type names, struct or block names, or
// "subroutine Name", each optionally followed by array suffixes such as
// "[4]", "[]" or "[2][3]".
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gogpu/glslink/link"
)

// Manifest is a whole program.
type Manifest struct {
	// Version is the default #version of the stages.
	Version string `yaml:"version"`

	// Source selects the linking mode: "named" (GLSL) or "location" (SPIR-V).
	Source string `yaml:"source"`

	// Limits is an optional limits file, relative to the manifest.
	Limits string `yaml:"limits"`

	Stages []Stage `yaml:"stages"`
}

// Stage is the interface of one shader stage.
type Stage struct {
	Stage   string `yaml:"stage"`
	Version string `yaml:"version"`

	Structs     []Struct     `yaml:"structs"`
	Globals     []Global     `yaml:"globals"`
	Subroutines []Subroutine `yaml:"subroutines"`
	Xfb         []XfbOutput  `yaml:"xfb"`
}

// Struct declares a named struct usable in later type strings.
type Struct struct {
	Name    string   `yaml:"name"`
	Members []Member `yaml:"members"`
}

// Member is a struct or block member.
type Member struct {
	Name   string  `yaml:"name"`
	Type   string  `yaml:"type"`
	Offset *uint32 `yaml:"offset"`
	Align  *uint32 `yaml:"align"`
	// Layout is "row_major" or "column_major".
	Layout string `yaml:"layout"`
}

// Global is a module-scope variable or interface block.
type Global struct {
	Name string `yaml:"name"`

	// Space is one of uniform, uniform_block, storage_block, input,
	// output and private.
	Space string `yaml:"space"`

	// Type is the variable's type string. For blocks it may be omitted or
	// carry array suffixes on the block name.
	Type string `yaml:"type"`

	// Block and Members declare the block type of uniform_block and
	// storage_block globals.
	Block   string   `yaml:"block"`
	Members []Member `yaml:"members"`

	Location *uint32 `yaml:"location"`
	Binding  *uint32 `yaml:"binding"`
	Offset   *uint32 `yaml:"offset"`
	Packing  string  `yaml:"packing"`
	Layout   string  `yaml:"layout"`
	Bindless bool    `yaml:"bindless"`
	Builtin  bool    `yaml:"builtin"`
	Hidden   bool    `yaml:"hidden"`

	Usage *Usage `yaml:"usage"`
}

// Usage is the static use of a global. An omitted usage means fully used.
type Usage struct {
	// Referenced defaults to true.
	Referenced *bool `yaml:"referenced"`
	// MaxIndex is the largest constant index on the outermost dimension.
	MaxIndex *int  `yaml:"max_index"`
	Dims     []Dim `yaml:"dims"`
}

// Dim is the use of one array dimension.
type Dim struct {
	Indices []uint32 `yaml:"indices"`
	Dynamic bool     `yaml:"dynamic"`
}

// Subroutine is a function declared with subroutine(...).
type Subroutine struct {
	Name  string   `yaml:"name"`
	Types []string `yaml:"types"`
	Index *uint32  `yaml:"index"`
}

// XfbOutput is a captured transform feedback varying.
type XfbOutput struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Buffer uint32 `yaml:"buffer"`
	Offset uint32 `yaml:"offset"`
}

// ErrNoStages is returned for manifests without stages.
var ErrNoStages = errors.New("manifest declares no stages")

// Parse decodes a manifest. Unknown keys are rejected.
func Parse(data []byte) (*Manifest, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads a manifest from r.
func Decode(r io.Reader) (*Manifest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoStages
		}
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	if len(m.Stages) == 0 {
		return nil, ErrNoStages
	}
	return &m, nil
}

// Load reads a manifest file.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	m, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// LinkSource returns the linking mode the manifest selects.
func (m *Manifest) LinkSource() (link.Source, error) {
	switch m.Source {
	case "", "named", "glsl":
		return link.SourceNamed, nil
	case "location", "spirv":
		return link.SourceLocation, nil
	}
	return 0, fmt.Errorf("unknown source %q", m.Source)
}
