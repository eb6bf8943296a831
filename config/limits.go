// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package config loads link limits from HCL or TOML files and watches
// input files for changes.
//
// A limits file overrides DefaultLimits field by field. Absent keys keep
// their default. HCL files use labeled stage blocks:
//
//	max_combined_texture_image_units = 96
//	use_std430_as_default_packing    = true
//
//	stage "fragment" {
//	  max_texture_image_units = 16
//	}
//
// TOML files use one table per stage:
//
//	max_combined_texture_image_units = 96
//
//	[stage.fragment]
//	max_texture_image_units = 16
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/pelletier/go-toml/v2"

	"github.com/gogpu/glslink/ir"
	"github.com/gogpu/glslink/link"
)

// ErrUnknownFormat is returned for files that are neither .hcl nor .toml.
var ErrUnknownFormat = errors.New("unknown limits file format")

// stageOverrides holds the optional per-stage limits of a file. Name is
// the HCL block label; TOML files key stages by table name instead.
type stageOverrides struct {
	Name string `hcl:"name,label" toml:"-"`

	MaxUniformComponents    *uint32 `hcl:"max_uniform_components,optional" toml:"max_uniform_components"`
	MaxTextureImageUnits    *uint32 `hcl:"max_texture_image_units,optional" toml:"max_texture_image_units"`
	MaxImageUniforms        *uint32 `hcl:"max_image_uniforms,optional" toml:"max_image_uniforms"`
	MaxUniformBlocks        *uint32 `hcl:"max_uniform_blocks,optional" toml:"max_uniform_blocks"`
	MaxShaderStorageBlocks  *uint32 `hcl:"max_shader_storage_blocks,optional" toml:"max_shader_storage_blocks"`
	MaxAtomicCounters       *uint32 `hcl:"max_atomic_counters,optional" toml:"max_atomic_counters"`
	MaxAtomicCounterBuffers *uint32 `hcl:"max_atomic_counter_buffers,optional" toml:"max_atomic_counter_buffers"`
}

// overrides holds the optional program-wide limits of a file.
type overrides struct {
	MaxCombinedTextureImageUnits      *uint32 `hcl:"max_combined_texture_image_units,optional" toml:"max_combined_texture_image_units"`
	MaxCombinedImageUniforms          *uint32 `hcl:"max_combined_image_uniforms,optional" toml:"max_combined_image_uniforms"`
	MaxCombinedUniformBlocks          *uint32 `hcl:"max_combined_uniform_blocks,optional" toml:"max_combined_uniform_blocks"`
	MaxCombinedShaderStorageBlocks    *uint32 `hcl:"max_combined_shader_storage_blocks,optional" toml:"max_combined_shader_storage_blocks"`
	MaxCombinedAtomicCounters         *uint32 `hcl:"max_combined_atomic_counters,optional" toml:"max_combined_atomic_counters"`
	MaxCombinedAtomicBuffers          *uint32 `hcl:"max_combined_atomic_buffers,optional" toml:"max_combined_atomic_buffers"`
	MaxAtomicCounterBufferBindings    *uint32 `hcl:"max_atomic_counter_buffer_bindings,optional" toml:"max_atomic_counter_buffer_bindings"`
	MaxUniformBlockSize               *uint32 `hcl:"max_uniform_block_size,optional" toml:"max_uniform_block_size"`
	MaxShaderStorageBlockSize         *uint32 `hcl:"max_shader_storage_block_size,optional" toml:"max_shader_storage_block_size"`
	MaxUserAssignableUniformLocations *uint32 `hcl:"max_user_assignable_uniform_locations,optional" toml:"max_user_assignable_uniform_locations"`
	MaxSubroutines                    *uint32 `hcl:"max_subroutines,optional" toml:"max_subroutines"`
	MaxSubroutineUniformLocations     *uint32 `hcl:"max_subroutine_uniform_locations,optional" toml:"max_subroutine_uniform_locations"`
	UseSTD430AsDefaultPacking         *bool   `hcl:"use_std430_as_default_packing,optional" toml:"use_std430_as_default_packing"`
	PackedDriverUniformStorage        *bool   `hcl:"packed_driver_uniform_storage,optional" toml:"packed_driver_uniform_storage"`

	HCLStages  []stageOverrides          `hcl:"stage,block" toml:"-"`
	TOMLStages map[string]stageOverrides `toml:"stage"`
}

// LoadLimits reads a limits file and applies it on top of DefaultLimits.
// The format is chosen by extension: .hcl or .toml.
func LoadLimits(path string) (link.Limits, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return link.Limits{}, fmt.Errorf("failed to read limits file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hcl":
		return ParseHCL(src, path)
	case ".toml":
		return ParseTOML(src, path)
	default:
		return link.Limits{}, fmt.Errorf("%s: %w", path, ErrUnknownFormat)
	}
}

// ParseHCL decodes HCL limits. filename is used in diagnostics only.
func ParseHCL(src []byte, filename string) (link.Limits, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return link.Limits{}, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}

	var o overrides
	diags = gohcl.DecodeBody(file.Body, nil, &o)
	if diags.HasErrors() {
		return link.Limits{}, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	stages := make(map[string]stageOverrides, len(o.HCLStages))
	for _, s := range o.HCLStages {
		if _, dup := stages[s.Name]; dup {
			return link.Limits{}, fmt.Errorf("%s: duplicate stage block %q", filename, s.Name)
		}
		stages[s.Name] = s
	}
	return o.apply(stages, filename)
}

// ParseTOML decodes TOML limits. Unknown keys are rejected.
func ParseTOML(src []byte, filename string) (link.Limits, error) {
	var o overrides
	dec := toml.NewDecoder(bytes.NewReader(src))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&o); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return link.Limits{}, fmt.Errorf("failed to decode TOML file %s: %s", filename, strict.String())
		}
		return link.Limits{}, fmt.Errorf("failed to decode TOML file %s: %w", filename, err)
	}
	return o.apply(o.TOMLStages, filename)
}

func (o *overrides) apply(stages map[string]stageOverrides, filename string) (link.Limits, error) {
	l := link.DefaultLimits()
	set(&l.MaxCombinedTextureImageUnits, o.MaxCombinedTextureImageUnits)
	set(&l.MaxCombinedImageUniforms, o.MaxCombinedImageUniforms)
	set(&l.MaxCombinedUniformBlocks, o.MaxCombinedUniformBlocks)
	set(&l.MaxCombinedShaderStorageBlocks, o.MaxCombinedShaderStorageBlocks)
	set(&l.MaxCombinedAtomicCounters, o.MaxCombinedAtomicCounters)
	set(&l.MaxCombinedAtomicBuffers, o.MaxCombinedAtomicBuffers)
	set(&l.MaxAtomicCounterBufferBindings, o.MaxAtomicCounterBufferBindings)
	set(&l.MaxUniformBlockSize, o.MaxUniformBlockSize)
	set(&l.MaxShaderStorageBlockSize, o.MaxShaderStorageBlockSize)
	set(&l.MaxUserAssignableUniformLocations, o.MaxUserAssignableUniformLocations)
	set(&l.MaxSubroutines, o.MaxSubroutines)
	set(&l.MaxSubroutineUniformLocations, o.MaxSubroutineUniformLocations)
	set(&l.UseSTD430AsDefaultPacking, o.UseSTD430AsDefaultPacking)
	set(&l.PackedDriverUniformStorage, o.PackedDriverUniformStorage)

	for name, so := range stages {
		stage, ok := ir.ParseShaderStage(name)
		if !ok {
			return link.Limits{}, fmt.Errorf("%s: unknown shader stage %q", filename, name)
		}
		sl := &l.Stages[stage]
		set(&sl.MaxUniformComponents, so.MaxUniformComponents)
		set(&sl.MaxTextureImageUnits, so.MaxTextureImageUnits)
		set(&sl.MaxImageUniforms, so.MaxImageUniforms)
		set(&sl.MaxUniformBlocks, so.MaxUniformBlocks)
		set(&sl.MaxShaderStorageBlocks, so.MaxShaderStorageBlocks)
		set(&sl.MaxAtomicCounters, so.MaxAtomicCounters)
		set(&sl.MaxAtomicCounterBuffers, so.MaxAtomicCounterBuffers)
	}
	return l, nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
