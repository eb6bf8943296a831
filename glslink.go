// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package glslink links the uniform and interface-block declarations of
// the shader stages of a GLSL program.
//
// Linking merges the stages' uniforms into one program-wide table, lays out
// uniform and shader storage blocks, assigns locations, bindings and
// backing-store slots, validates the result against driver limits, and
// builds the program resource list that introspection queries read.
//
// Stages are usually described by a manifest:
//
//	p, err := glslink.LinkFile("program.yaml", link.Options{})
//	if err != nil {
//	    log.Fatal(err) // the manifest or limits file could not be read
//	}
//	if !p.LinkStatus() {
//	    log.Fatal(p.InfoLog())
//	}
//	loc := p.UniformLocation("mvp")
//
// Front ends that build ir.Shader values directly call Link.
package glslink

import (
	"fmt"
	"path/filepath"

	"github.com/gogpu/glslink/config"
	"github.com/gogpu/glslink/ir"
	"github.com/gogpu/glslink/link"
	"github.com/gogpu/glslink/manifest"
)

// Link links the given stages. Problems are reported through the program's
// link status and info log.
func Link(stages []*ir.Shader, opts link.Options) *link.Program {
	return link.Link(stages, opts)
}

// LinkManifest links the stages a manifest describes. The manifest's limits
// file is resolved relative to dir and is only read when opts carries no
// limits of its own. The manifest selects the linking mode.
//
// The returned error covers the manifest and the limits file; a program
// that fails to link is returned with a nil error.
func LinkManifest(m *manifest.Manifest, dir string, opts link.Options) (*link.Program, error) {
	source, err := m.LinkSource()
	if err != nil {
		return nil, err
	}
	opts.Source = source

	if opts.Limits == nil && m.Limits != "" {
		path := m.Limits
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		limits, err := config.LoadLimits(path)
		if err != nil {
			return nil, err
		}
		opts.Limits = &limits
	}

	shaders, err := m.Shaders()
	if err != nil {
		return nil, err
	}
	return link.Link(shaders, opts), nil
}

// LinkFile reads a manifest file and links it.
func LinkFile(path string, opts link.Options) (*link.Program, error) {
	m, err := manifest.Load(path)
	if err != nil {
		return nil, err
	}
	p, err := LinkManifest(m, filepath.Dir(path), opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}
