// Package sema is the semantic analyzer: five ordered passes over an
// ast.Program that register names, resolve impl targets and use-clauses,
// compute every declared signature, and finally walk each function body
// producing a Ty for every expression. The passes are organized as
// pipeline.Processors sharing one PipelineContext.
package sema

import (
	"github.com/margarine-lang/marginc/internal/ast"
	"github.com/margarine-lang/marginc/internal/intern"
	"github.com/margarine-lang/marginc/internal/nsmap"
	"github.com/margarine-lang/marginc/internal/pipeline"
	"github.com/margarine-lang/marginc/internal/symtab"
)

// NewPipeline builds the standard five-pass analyzer pipeline.
func NewPipeline() *pipeline.Pipeline {
	return pipeline.New(
		pipeline.ProcessorFunc(CollectNames),
		pipeline.ProcessorFunc(CollectImpls),
		pipeline.ProcessorFunc(CollectUses),
		pipeline.ProcessorFunc(ComputeTypes),
		pipeline.ProcessorFunc(CheckBodies),
	)
}

// Analyze runs every pass over program and returns the finished context.
// Errors from every pass accumulate in ctx.Diagnostics; analysis never
// stops early: analysis is total.
func Analyze(program *ast.Program, interner *intern.Interner) *pipeline.PipelineContext {
	symbols := symtab.New(interner)
	namespaces := nsmap.New(interner)
	ctx := pipeline.NewContext(program, interner, symbols, namespaces)
	seedUniverse(ctx)
	return NewPipeline().Run(ctx)
}
