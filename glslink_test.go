// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package glslink

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/glslink/ir"
	"github.com/gogpu/glslink/link"
	"github.com/gogpu/glslink/manifest"
)

func TestLinkFile(t *testing.T) {
	p, err := LinkFile(filepath.Join("testdata", "program.yaml"), link.Options{})
	require.NoError(t, err)
	require.True(t, p.LinkStatus(), p.InfoLog())

	require.Len(t, p.UniformBlocks, 1)
	camera := p.UniformBlocks[0]
	assert.Equal(t, "Camera", camera.Name)
	assert.Equal(t, 0, camera.Binding)
	assert.Equal(t, uint32(144), camera.DataSize)
	assert.True(t, camera.StageRefs.Has(ir.StageVertex))
	assert.True(t, camera.StageRefs.Has(ir.StageFragment))

	require.Len(t, p.ShaderStorageBlocks, 1)
	assert.Equal(t, "Lights", p.ShaderStorageBlocks[0].Name)
	assert.Equal(t, 1, p.ShaderStorageBlocks[0].Binding)

	assert.Equal(t, 0, p.UniformLocation("model"))
	assert.NotEqual(t, link.Unmapped, p.UniformLocation("tint"))

	_, ok := p.ResourceIndex(link.InterfaceProgramInput, "position")
	assert.True(t, ok)
	_, ok = p.ResourceIndex(link.InterfaceProgramOutput, "fragColor")
	assert.True(t, ok)
}

const limitedProgram = `
limits: limits.hcl
stages:
  - stage: fragment
    globals:
      - {name: albedo, type: sampler2D}
`

func TestLinkManifestLimits(t *testing.T) {
	m, err := manifest.Parse([]byte(limitedProgram))
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "limits.hcl"),
		[]byte("stage \"fragment\" {\n  max_texture_image_units = 0\n}\n"), 0o600))

	p, err := LinkManifest(m, dir, link.Options{})
	require.NoError(t, err)
	assert.False(t, p.LinkStatus())
	assert.True(t, p.Errors().HasKind(link.ErrResourceLimitExceeded), p.InfoLog())

	// Limits passed by the caller win over the manifest's file.
	limits := link.DefaultLimits()
	p, err = LinkManifest(m, t.TempDir(), link.Options{Limits: &limits})
	require.NoError(t, err)
	assert.True(t, p.LinkStatus(), p.InfoLog())
}

func TestLinkManifestErrors(t *testing.T) {
	m, err := manifest.Parse([]byte(limitedProgram))
	require.NoError(t, err)
	_, err = LinkManifest(m, t.TempDir(), link.Options{})
	assert.ErrorIs(t, err, os.ErrNotExist)

	m, err = manifest.Parse([]byte("source: hlsl\nstages: [{stage: vertex}]\n"))
	require.NoError(t, err)
	_, err = LinkManifest(m, "", link.Options{})
	assert.ErrorContains(t, err, "unknown source")

	m, err = manifest.Parse([]byte("stages: [{stage: vertex, globals: [{name: a, type: vec9}]}]\n"))
	require.NoError(t, err)
	_, err = LinkManifest(m, "", link.Options{})
	assert.ErrorIs(t, err, manifest.ErrUnknownType)

	_, err = LinkFile(filepath.Join(t.TempDir(), "missing.yaml"), link.Options{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLinkSourceLocation(t *testing.T) {
	m, err := manifest.Parse([]byte(`
source: spirv
stages:
  - stage: vertex
    globals: [{type: vec4, location: 3}]
  - stage: fragment
    globals: [{type: vec4, location: 3}]
`))
	require.NoError(t, err)
	p, err := LinkManifest(m, "", link.Options{Source: link.SourceNamed})
	require.NoError(t, err)
	require.True(t, p.LinkStatus(), p.InfoLog())
	require.Len(t, p.Uniforms, 1)
	assert.Equal(t, 3, p.Uniforms[0].Location)
	assert.Equal(t, ir.StageVertex.Bit()|ir.StageFragment.Bit(), p.Uniforms[0].ActiveStages)
}

func TestLink(t *testing.T) {
	p := Link(nil, link.Options{})
	assert.False(t, p.LinkStatus())
	assert.True(t, p.Errors().HasKind(link.ErrInvalidProgram))
}
