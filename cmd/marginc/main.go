// Command marginc loads a compiled bytecode image and executes a named
// entry function, with subcommands for disassembly and for running a
// directory of images concurrently.
//
//	marginc run [-fn main] [-stats] prog.mgb
//	marginc dump prog.mgb
//	marginc run-all [-fn main] [-limit 4] dir/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/margarine-lang/marginc/internal/batch"
	"github.com/margarine-lang/marginc/internal/bytecode"
	"github.com/margarine-lang/marginc/internal/hostlib"
	"github.com/margarine-lang/marginc/internal/projectcfg"
	"github.com/margarine-lang/marginc/internal/vmrun"
	"github.com/margarine-lang/marginc/internal/vmstat"
)

func main() {
	args := os.Args[1:]
	cmd := "run"
	if len(args) > 0 {
		switch args[0] {
		case "run", "dump", "run-all":
			cmd = args[0]
			args = args[1:]
		}
	}

	var err error
	switch cmd {
	case "dump":
		err = dumpCmd(args)
	case "run-all":
		err = runAllCmd(args)
	default:
		err = runCmd(args)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, colorize("error: "+err.Error()))
		os.Exit(1)
	}
}

// colorize wraps a message in red when stderr is a terminal.
func colorize(msg string) string {
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return "\x1b[31m" + msg + "\x1b[0m"
	}
	return msg
}

func loadImage(path string) (*bytecode.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := bytecode.Decode(data)
	if err != nil {
		return nil, err
	}
	if err := bytecode.CheckVersion(img.FormatVersion); err != nil {
		return nil, err
	}
	return img, nil
}

func runCmd(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	fn := fs.String("fn", "", "entry function name")
	cfgPath := fs.String("config", "marginc.yaml", "project configuration file")
	stats := fs.Bool("stats", false, "print run statistics")
	fs.Parse(args)

	cfg, err := projectcfg.Load(*cfgPath)
	if err != nil {
		return err
	}
	imagePath := cfg.Image
	if fs.NArg() > 0 {
		imagePath = fs.Arg(0)
	}
	if imagePath == "" {
		return fmt.Errorf("no bytecode image given (argument or %s)", *cfgPath)
	}
	entry := cfg.Function
	if *fn != "" {
		entry = *fn
	}

	img, err := loadImage(imagePath)
	if err != nil {
		return err
	}

	vm := vmrun.NewWith(img, vmrun.Config{
		MaxFrames:    cfg.VM.MaxFrames,
		DisableCache: cfg.VM.DisableCache,
	})
	closeHosts, err := hostlib.Register(vm, hostlib.Config{
		StorePath: cfg.Host.StorePath,
		RPCTarget: cfg.Host.RPCTarget,
	})
	if err != nil {
		return err
	}
	defer closeHosts()

	start := time.Now()
	result, err := vm.Run(entry, nil)
	elapsed := time.Since(start)
	if err != nil {
		return err
	}
	fmt.Println(vm.FormatValue(result))
	if *stats {
		fmt.Fprint(os.Stderr, vmstat.Report{Elapsed: elapsed, Stats: vm.Stats()}.Render())
	}
	return nil
}

func dumpCmd(args []string) error {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: marginc dump <image>")
	}
	img, err := loadImage(fs.Arg(0))
	if err != nil {
		return err
	}
	for _, f := range img.Funcs {
		if f.Realization == bytecode.RealizeExtern {
			fmt.Printf("== %s == extern %q\n", f.Name, f.ExternPath)
			continue
		}
		code := img.Code[f.CodeOffset : f.CodeOffset+f.CodeLen]
		fmt.Print(bytecode.Disassemble(f.Name, code))
	}
	return nil
}

func runAllCmd(args []string) error {
	fs := flag.NewFlagSet("run-all", flag.ExitOnError)
	fn := fs.String("fn", "main", "entry function name")
	limit := fs.Int("limit", 4, "max VMs in flight")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: marginc run-all <dir>")
	}

	paths, err := filepath.Glob(filepath.Join(fs.Arg(0), "*.mgb"))
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no .mgb images under %s", fs.Arg(0))
	}

	jobs := make([]batch.Job, 0, len(paths))
	for _, p := range paths {
		img, err := loadImage(p)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		jobs = append(jobs, batch.Job{
			Name:  filepath.Base(p),
			Image: img,
			Entry: *fn,
			Setup: func(vm *vmrun.VM) error {
				_, err := hostlib.Register(vm, hostlib.Config{})
				return err
			},
		})
	}

	results, err := batch.Run(context.Background(), jobs, *limit)
	if err != nil {
		return err
	}
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: %s\n", r.Name, colorize(r.Err.Error()))
			continue
		}
		fmt.Printf("%s: %s\n", r.Name, r.Rendered)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d images failed", failed, len(results))
	}
	return nil
}
