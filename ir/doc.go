// Package ir defines the per-stage input representation for glslink.
//
// # Structure
//
// A Shader is organized around:
//   - Types: the stage's type arena, addressed by TypeHandle
//   - GlobalVariables: uniforms, blocks and I/O variables with qualifiers
//   - Functions: optional bodies, walked only for static-use analysis
//   - SubroutineFunctions and XfbOutputs: inputs to the resource list
//
// # Types across stages
//
// Handles are local to one Shader. The linker imports every stage's types
// into a single TypeRegistry, which deduplicates by structure, so that two
// stages declaring the same struct end up with the same handle:
//
//	reg := ir.NewTypeRegistry()
//	im := reg.NewImporter(shader.Types)
//	h, err := im.Import(gv.Type)
//
// # Static use
//
// GlobalVariable.Usage carries static-use information. Front-ends may fill it
// directly; otherwise AnalyzeUsage derives it from the function bodies
// reachable from the entry point.
package ir
