package batch

import (
	"context"
	"testing"

	"github.com/margarine-lang/marginc/internal/bytecode"
	"github.com/margarine-lang/marginc/internal/vmrun"
)

// constImage builds an image whose main returns the given integer.
func constImage(v int64) *bytecode.Image {
	var code bytecode.Buffer
	code.WriteOp(bytecode.OpConstInt)
	code.WriteI64(v)
	code.WriteOp(bytecode.OpRet)
	code.WriteU8(0)
	return &bytecode.Image{
		FormatVersion: bytecode.FormatVersion,
		Funcs: []bytecode.FuncEntry{{
			Name:        "main",
			Realization: bytecode.RealizeCode,
			CodeLen:     uint32(code.Len()),
		}},
		Code: code.Bytes(),
	}
}

func TestRunIsolatesJobs(t *testing.T) {
	jobs := []Job{
		{Name: "a", Image: constImage(1), Entry: "main"},
		{Name: "b", Image: constImage(2), Entry: "main"},
		{Name: "missing", Image: constImage(3), Entry: "nope"},
		{Name: "c", Image: constImage(4), Entry: "main"},
	}
	results, err := Run(context.Background(), jobs, 2)
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if len(results) != len(jobs) {
		t.Fatalf("got %d results for %d jobs", len(results), len(jobs))
	}
	for i, want := range []int64{1, 2, 0, 4} {
		r := results[i]
		if r.Name == "missing" {
			if r.Err == nil {
				t.Fatal("job with a bad entry reported no error")
			}
			continue
		}
		if r.Err != nil {
			t.Fatalf("job %s failed: %v", r.Name, r.Err)
		}
		if got := r.Value.AsInt(); got != want {
			t.Fatalf("job %s returned %d, want %d", r.Name, got, want)
		}
	}
}

func TestRunHonorsSetup(t *testing.T) {
	called := false
	jobs := []Job{{
		Name:  "a",
		Image: constImage(7),
		Entry: "main",
		Setup: func(vm *vmrun.VM) error {
			called = true
			return nil
		},
	}}
	if _, err := Run(context.Background(), jobs, 0); err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if !called {
		t.Fatal("setup hook never ran")
	}
}
