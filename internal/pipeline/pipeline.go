// Package pipeline sequences the semantic analyzer's passes over one
// shared PipelineContext: name collection, impl folding, use resolution,
// signature computation, then body checking. Each pass runs to
// completion and hands the same context to the next.
package pipeline

// Pipeline is an ordered list of analyzer passes.
type Pipeline struct {
	passes []Processor
}

func New(passes ...Processor) *Pipeline {
	return &Pipeline{passes: passes}
}

// Run drives every pass over ctx in order. A pass never aborts the run:
// failures land in ctx.Diagnostics as poisoned bindings and recorded
// errors, and the later passes still execute so one bad declaration
// doesn't hide unrelated problems elsewhere in the program.
func (p *Pipeline) Run(ctx *PipelineContext) *PipelineContext {
	for _, pass := range p.passes {
		ctx = pass.Process(ctx)
	}
	return ctx
}
