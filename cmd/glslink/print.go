// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gioui.org/shader"

	"github.com/gogpu/glslink/ir"
	"github.com/gogpu/glslink/link"
)

// printProgram prints the link status and info log, and for linked
// programs the block, uniform and resource tables.
func printProgram(w io.Writer, p *link.Program) error {
	if !p.LinkStatus() {
		fmt.Fprintln(w, "status: failed")
		fmt.Fprintln(w, p.InfoLog())
		return nil
	}
	fmt.Fprintln(w, "status: linked")

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	printBlocks(tw, "uniform blocks", p.UniformBlocks)
	printBlocks(tw, "shader storage blocks", p.ShaderStorageBlocks)

	if len(p.Uniforms) > 0 {
		fmt.Fprintf(tw, "\nuniforms:\n")
		fmt.Fprintf(tw, "  NAME\tTYPE\tLOCATION\tBLOCK\tOFFSET\tSLOT\tSTAGES\n")
		for i := range p.Uniforms {
			u := &p.Uniforms[i]
			typ := p.TypeName(u.Type)
			if u.ArrayElements > 0 {
				typ = fmt.Sprintf("%s[%d]", typ, u.ArrayElements)
			}
			block, offset, slot := "-", "-", "-"
			if u.BlockIndex >= 0 {
				block = fmt.Sprint(u.BlockIndex)
				offset = fmt.Sprint(u.Offset)
			} else if u.DataSlots > 0 {
				slot = fmt.Sprint(u.DataSlot)
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				u.Name, typ, location(u.Location), block, offset, slot, stages(u.ActiveStages))
		}
	}

	fmt.Fprintf(tw, "\nresources:\n")
	for iface := link.Interface(0); iface < link.InterfaceCount; iface++ {
		info := p.InterfaceInfo(iface)
		if info.ActiveResources == 0 {
			continue
		}
		fmt.Fprintf(tw, "  %s (%d):\n", iface, info.ActiveResources)
		for i := 0; i < info.ActiveResources; i++ {
			name, _ := p.ResourceName(iface, i)
			if name == "" {
				name = "<unnamed>"
			}
			fmt.Fprintf(tw, "    %d\t%s\n", i, name)
		}
	}
	return tw.Flush()
}

func printBlocks(w io.Writer, title string, blocks []link.BlockDescriptor) {
	if len(blocks) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	fmt.Fprintf(w, "  INDEX\tNAME\tBINDING\tSIZE\tSTAGES\n")
	for i, b := range blocks {
		name := b.Name
		if name == "" {
			name = "<unnamed>"
		}
		fmt.Fprintf(w, "  %d\t%s\t%s\t%d\t%s\n", i, name, location(b.Binding), b.DataSize, stages(b.StageRefs))
	}
}

// printGio prints the reflection fields of Gio shader sources.
func printGio(w io.Writer, src shader.Sources) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "gio sources: %s\n", src.Name)
	if len(src.Inputs) > 0 {
		fmt.Fprintf(tw, "\ninputs:\n")
		for _, in := range src.Inputs {
			fmt.Fprintf(tw, "  %s\tlocation %d\t%s x%d\n", in.Name, in.Location, dataType(in.Type), in.Size)
		}
	}
	if len(src.Uniforms.Locations) > 0 {
		fmt.Fprintf(tw, "\nuniforms (%d bytes):\n", src.Uniforms.Size)
		for _, u := range src.Uniforms.Locations {
			fmt.Fprintf(tw, "  %s\toffset %d\t%s x%d\n", u.Name, u.Offset, dataType(u.Type), u.Size)
		}
	}
	type binding struct {
		name    string
		binding int
	}
	printBindings := func(title string, bs []binding) {
		if len(bs) == 0 {
			return
		}
		fmt.Fprintf(tw, "\n%s:\n", title)
		for _, b := range bs {
			fmt.Fprintf(tw, "  %s\tbinding %d\n", b.name, b.binding)
		}
	}
	var textures, images, buffers []binding
	for _, t := range src.Textures {
		textures = append(textures, binding{t.Name, t.Binding})
	}
	for _, img := range src.Images {
		images = append(images, binding{img.Name, img.Binding})
	}
	for _, b := range src.StorageBuffers {
		buffers = append(buffers, binding{b.Name, b.Binding})
	}
	printBindings("textures", textures)
	printBindings("images", images)
	printBindings("storage buffers", buffers)
	return tw.Flush()
}

func dataType(t shader.DataType) string {
	switch t {
	case shader.DataTypeFloat:
		return "float"
	case shader.DataTypeInt:
		return "int"
	case shader.DataTypeShort:
		return "short"
	default:
		return "unknown"
	}
}

func location(loc int) string {
	if loc < 0 {
		return "-"
	}
	return fmt.Sprint(loc)
}

// stages renders a stage mask as a comma-separated list.
func stages(m ir.StageMask) string {
	var names []string
	for s := ir.ShaderStage(0); s < ir.StageCount; s++ {
		if m.Has(s) {
			names = append(names, s.String())
		}
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ",")
}
