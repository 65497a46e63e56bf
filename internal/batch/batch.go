// Package batch runs several independent VM jobs concurrently. VMs share
// nothing — each job gets its own arena, stack and caches — so the only
// coordination needed is the worker limit and first-error propagation,
// which errgroup provides.
package batch

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/margarine-lang/marginc/internal/bytecode"
	"github.com/margarine-lang/marginc/internal/vmrun"
)

// Job is one VM invocation: an image, an entry function and its
// arguments. Setup, when non-nil, runs against the freshly built VM
// before execution (host-module registration).
type Job struct {
	Name  string
	Image *bytecode.Image
	Entry string
	Args  []vmrun.Reg
	VM    vmrun.Config
	Setup func(*vmrun.VM) error
}

// Result pairs one job with its outcome. Err carries the runtime fault,
// if any; Value is only meaningful when Err is nil. Rendered is the
// value formatted by the VM that produced it, since registers are not
// interpretable without their owning arena.
type Result struct {
	Name     string
	Value    vmrun.Reg
	Rendered string
	Stats    vmrun.RunStats
	Err      error
}

// Run executes all jobs with at most limit in flight (limit <= 0 means
// unbounded). Every job runs to completion even when others fault; the
// per-job outcome is in its Result, and the error return is reserved for
// ctx cancellation.
func Run(ctx context.Context, jobs []Job, limit int) ([]Result, error) {
	results := make([]Result, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, job := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = runOne(job)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func runOne(job Job) Result {
	vm := vmrun.NewWith(job.Image, job.VM)
	if job.Setup != nil {
		if err := job.Setup(vm); err != nil {
			return Result{Name: job.Name, Err: err}
		}
	}
	val, err := vm.Run(job.Entry, job.Args)
	res := Result{Name: job.Name, Value: val, Stats: vm.Stats(), Err: err}
	if err == nil {
		res.Rendered = vm.FormatValue(val)
	}
	return res
}
