package ir

import "sort"

// AnalyzeUsage derives static-use information for every global variable
// from the function bodies reachable from the shader's entry point.
//
// A global is referenced when any reachable expression names it. Access
// chains rooted at a global record, per leading array dimension, which
// constant indices are used and whether a dynamic index appears. Globals
// that already carry Usage (set by the front-end) are left untouched.
// Shaders without an entry point are not analyzed.
func AnalyzeUsage(shader *Shader) {
	if shader == nil || shader.EntryPoint == nil || int(*shader.EntryPoint) >= len(shader.Functions) {
		return
	}

	types := Types(shader.Types)
	results := make([]*usageBuilder, len(shader.GlobalVariables))

	for _, fh := range reachableFunctions(shader, *shader.EntryPoint) {
		fn := &shader.Functions[fh]
		isBase := make([]bool, len(fn.Expressions))
		for _, expr := range fn.Expressions {
			switch k := expr.Kind.(type) {
			case ExprAccess:
				markBase(isBase, k.Base)
			case ExprAccessIndex:
				markBase(isBase, k.Base)
			}
		}

		for h := range fn.Expressions {
			if isBase[h] {
				continue
			}
			global, steps, ok := accessChain(fn, ExpressionHandle(h))
			if !ok || int(global) >= len(shader.GlobalVariables) {
				continue
			}
			if shader.GlobalVariables[global].Usage != nil {
				continue
			}
			ub := results[global]
			if ub == nil {
				_, dims := StripArrays(types, shader.GlobalVariables[global].Type)
				ub = newUsageBuilder(len(dims))
				results[global] = ub
			}
			ub.record(steps)
		}
	}

	for i := range shader.GlobalVariables {
		gv := &shader.GlobalVariables[i]
		if gv.Usage != nil {
			continue
		}
		if results[i] == nil {
			gv.Usage = &Usage{MaxIndex: -1}
			continue
		}
		gv.Usage = results[i].build()
	}
}

func markBase(isBase []bool, h ExpressionHandle) {
	if int(h) < len(isBase) {
		isBase[h] = true
	}
}

// accessStep is one level of an access chain: a constant index or a
// dynamic one.
type accessStep struct {
	index   uint32
	dynamic bool
}

// accessChain walks from an expression down to the global it is rooted at.
// Steps are returned outermost first.
func accessChain(fn *Function, h ExpressionHandle) (GlobalVariableHandle, []accessStep, bool) {
	var reversed []accessStep
	for guard := 0; guard <= len(fn.Expressions); guard++ {
		if int(h) >= len(fn.Expressions) {
			return 0, nil, false
		}
		switch k := fn.Expressions[h].Kind.(type) {
		case ExprGlobalVariable:
			steps := make([]accessStep, len(reversed))
			for i := range reversed {
				steps[i] = reversed[len(reversed)-1-i]
			}
			return k.Variable, steps, true
		case ExprAccessIndex:
			reversed = append(reversed, accessStep{index: k.Index})
			h = k.Base
		case ExprAccess:
			if idx, ok := constantIndex(fn, k.Index); ok {
				reversed = append(reversed, accessStep{index: idx})
			} else {
				reversed = append(reversed, accessStep{dynamic: true})
			}
			h = k.Base
		default:
			return 0, nil, false
		}
	}
	return 0, nil, false
}

// constantIndex folds literal indices.
func constantIndex(fn *Function, h ExpressionHandle) (uint32, bool) {
	if int(h) >= len(fn.Expressions) {
		return 0, false
	}
	lit, ok := fn.Expressions[h].Kind.(Literal)
	if !ok {
		return 0, false
	}
	switch v := lit.Value.(type) {
	case LiteralU32:
		return uint32(v), true
	case LiteralI32:
		if v >= 0 {
			return uint32(v), true
		}
	}
	return 0, false
}

// reachableFunctions returns the entry point and every function it calls,
// transitively, in discovery order.
func reachableFunctions(shader *Shader, entry FunctionHandle) []FunctionHandle {
	seen := make(map[FunctionHandle]bool)
	order := []FunctionHandle{entry}
	seen[entry] = true
	for i := 0; i < len(order); i++ {
		fn := &shader.Functions[order[i]]
		walkCalls(fn.Body, func(callee FunctionHandle) {
			if seen[callee] || int(callee) >= len(shader.Functions) {
				return
			}
			seen[callee] = true
			order = append(order, callee)
		})
	}
	return order
}

func walkCalls(block Block, visit func(FunctionHandle)) {
	for _, stmt := range block {
		switch k := stmt.Kind.(type) {
		case StmtCall:
			visit(k.Function)
		case StmtBlock:
			walkCalls(k.Block, visit)
		case StmtIf:
			walkCalls(k.Accept, visit)
			walkCalls(k.Reject, visit)
		case StmtLoop:
			walkCalls(k.Body, visit)
			walkCalls(k.Continuing, visit)
		}
	}
}

type usageBuilder struct {
	dims     []map[uint32]bool
	dynamic  []bool
	maxIndex int
}

func newUsageBuilder(arrayDims int) *usageBuilder {
	ub := &usageBuilder{
		dims:     make([]map[uint32]bool, arrayDims),
		dynamic:  make([]bool, arrayDims),
		maxIndex: -1,
	}
	for i := range ub.dims {
		ub.dims[i] = make(map[uint32]bool)
	}
	return ub
}

// record folds one access chain into the usage. Dimensions the chain does
// not index are used in full.
func (ub *usageBuilder) record(steps []accessStep) {
	for d := range ub.dims {
		if d >= len(steps) {
			ub.dynamic[d] = true
			continue
		}
		if steps[d].dynamic {
			ub.dynamic[d] = true
			continue
		}
		ub.dims[d][steps[d].index] = true
		if d == 0 && int(steps[d].index) > ub.maxIndex {
			ub.maxIndex = int(steps[d].index)
		}
	}
}

func (ub *usageBuilder) build() *Usage {
	u := &Usage{
		Referenced: true,
		Dims:       make([]DimUsage, len(ub.dims)),
		MaxIndex:   ub.maxIndex,
	}
	for d, set := range ub.dims {
		indices := make([]uint32, 0, len(set))
		for idx := range set {
			indices = append(indices, idx)
		}
		sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
		u.Dims[d] = DimUsage{Indices: indices, Dynamic: ub.dynamic[d]}
	}
	return u
}
