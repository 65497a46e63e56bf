package vmrun

import (
	"fmt"

	"github.com/margarine-lang/marginc/internal/bytecode"
	"github.com/margarine-lang/marginc/internal/diag"
)

// Status is the outcome channel threaded through execution and host
// calls: the zero value is Ok, a set Fault aborts the run.
type Status struct {
	Fault *diag.Fault
}

func (s Status) Ok() bool { return s.Fault == nil }

// HostFunc is the host call-out ABI: a host reads its arguments off the
// VM's stack (Arg), writes exactly one return value into out, and
// reports failure through status. It runs synchronously; the VM resumes
// as soon as it returns.
type HostFunc func(vm *VM, out *Reg, status *Status)

// frame is one suspended (or running) function activation.
type frame struct {
	funcIndex  uint32
	code       []byte
	ip         int
	prevBottom int
	argc       int

	cacheKey string
	cached   bool
}

// Config tunes a VM instance. Zero values select the defaults.
type Config struct {
	// MaxFrames bounds call depth; 0 means 4096.
	MaxFrames int
	// DisableCache turns the per-function result cache off even for
	// functions whose directory entry requests it.
	DisableCache bool
}

// RunStats counts what one VM did; read it after Run via Stats.
type RunStats struct {
	Instructions uint64
	Allocations  uint64
	Calls        uint64
	CacheHits    uint64
	CacheMisses  uint64
}

// VM executes one loaded image. It is single-threaded; a VM must not be
// shared across goroutines, but any number of VMs over disjoint arenas
// can run side by side.
type VM struct {
	img *bytecode.Image
	cfg Config

	stack   []Reg
	bottom  int
	frames  []frame
	objects []Object

	hosts map[string]HostFunc

	// cache maps function index -> encoded-arguments -> return value.
	cache map[uint32]map[string]Reg

	// hostArgc is the argument count of the host call in flight, so Arg
	// can address the cells below the stack top.
	hostArgc int

	stats RunStats
}

// New creates a VM over img with default tuning.
func New(img *bytecode.Image) *VM {
	return NewWith(img, Config{})
}

// NewWith creates a VM over img with explicit tuning.
func NewWith(img *bytecode.Image, cfg Config) *VM {
	if cfg.MaxFrames == 0 {
		cfg.MaxFrames = 4096
	}
	return &VM{
		img:   img,
		cfg:   cfg,
		hosts: make(map[string]HostFunc),
		cache: make(map[uint32]map[string]Reg),
	}
}

// RegisterHostModule installs a named batch of host functions; a
// directory entry whose extern path is "<module>::<name>" dispatches to
// fns[name]. Registration must happen before Run.
func (vm *VM) RegisterHostModule(module string, fns map[string]HostFunc) {
	for name, fn := range fns {
		vm.hosts[module+"::"+name] = fn
	}
}

// Stats reports what the last Run did.
func (vm *VM) Stats() RunStats { return vm.stats }

// Arg reads argument i of the host call in flight: the top hostArgc
// cells below the stack top, left to right.
func (vm *VM) Arg(i int) Reg {
	return vm.stack[len(vm.stack)-vm.hostArgc+i]
}

// ArgCount reports how many arguments the host call in flight received.
func (vm *VM) ArgCount() int { return vm.hostArgc }

// Run resolves the entry function by name, pushes args, and executes
// until the call stack drains or an instruction faults.
func (vm *VM) Run(entry string, args []Reg) (Reg, error) {
	var entryIdx = -1
	for i := range vm.img.Funcs {
		if vm.img.Funcs[i].Name == entry {
			entryIdx = i
			break
		}
	}
	if entryIdx < 0 {
		return UnitReg(), diag.NewFault(diag.FaultEntryNotFound, entry)
	}

	vm.stack = vm.stack[:0]
	vm.frames = vm.frames[:0]
	vm.bottom = 0
	vm.stats = RunStats{}

	vm.stack = append(vm.stack, args...)
	if fault := vm.call(uint32(entryIdx), len(args)); fault != nil {
		return UnitReg(), fault
	}
	if len(vm.frames) == 0 {
		// The entry call was satisfied without executing bytecode (a
		// host function or a cache hit); its value is on the stack.
		return vm.pop(), nil
	}

	result, fault := vm.exec()
	if fault != nil {
		return UnitReg(), fault
	}
	return result, nil
}

func (vm *VM) push(r Reg) {
	vm.stack = append(vm.stack, r)
}

func (vm *VM) pop() Reg {
	r := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return r
}

func (vm *VM) top() *Reg {
	return &vm.stack[len(vm.stack)-1]
}

// call dispatches a function index: host functions run to completion in
// place, cached functions may short-circuit, and bytecode functions push
// a new frame for exec to continue into.
func (vm *VM) call(funcIndex uint32, argc int) *diag.Fault {
	if int(funcIndex) >= len(vm.img.Funcs) {
		return diag.NewFault(diag.FaultOutOfBounds, fmt.Sprintf("function index %d", funcIndex))
	}
	entry := &vm.img.Funcs[funcIndex]
	vm.stats.Calls++

	if entry.Realization == bytecode.RealizeExtern {
		host, ok := vm.hosts[entry.ExternPath]
		if !ok {
			return diag.NewFault(diag.FaultEntryNotFound, "host function "+entry.ExternPath)
		}
		vm.hostArgc = argc
		var out Reg
		var status Status
		host(vm, &out, &status)
		vm.hostArgc = 0
		if !status.Ok() {
			return status.Fault
		}
		vm.stack = vm.stack[:len(vm.stack)-argc]
		vm.push(out)
		return nil
	}

	var cacheKey string
	useCache := entry.Cached && !vm.cfg.DisableCache
	if useCache {
		cacheKey = vm.encodeArgs(argc)
		if slot, ok := vm.cache[funcIndex]; ok {
			if val, hit := slot[cacheKey]; hit {
				vm.stats.CacheHits++
				vm.stack = vm.stack[:len(vm.stack)-argc]
				vm.push(val)
				return nil
			}
		}
		vm.stats.CacheMisses++
	}

	if len(vm.frames) >= vm.cfg.MaxFrames {
		return diag.NewFault(diag.FaultHostReported, "call depth exceeded")
	}
	vm.frames = append(vm.frames, frame{
		funcIndex:  funcIndex,
		code:       vm.img.Code[entry.CodeOffset : entry.CodeOffset+entry.CodeLen],
		prevBottom: vm.bottom,
		argc:       argc,
		cacheKey:   cacheKey,
		cached:     useCache,
	})
	vm.bottom = len(vm.stack) - argc
	return nil
}

// ret unwinds the current frame: the return value is on top, the frame's
// locals (arguments included) are discarded, and the value lands on the
// caller's stack. done reports that the outermost frame just returned.
func (vm *VM) ret() (result Reg, done bool) {
	val := vm.pop()
	vm.stack = vm.stack[:vm.bottom]

	f := vm.frames[len(vm.frames)-1]
	vm.frames = vm.frames[:len(vm.frames)-1]
	vm.bottom = f.prevBottom

	if f.cached {
		slot, ok := vm.cache[f.funcIndex]
		if !ok {
			slot = make(map[string]Reg)
			vm.cache[f.funcIndex] = slot
		}
		slot[f.cacheKey] = val
	}

	if len(vm.frames) == 0 {
		return val, true
	}
	vm.push(val)
	return UnitReg(), false
}

// encodeArgs builds the structural cache key for the top argc stack
// cells, following object references so two equal lists key the same.
func (vm *VM) encodeArgs(argc int) string {
	var b []byte
	for i := len(vm.stack) - argc; i < len(vm.stack); i++ {
		b = vm.encodeReg(b, vm.stack[i])
	}
	return string(b)
}

func (vm *VM) encodeReg(b []byte, r Reg) []byte {
	b = append(b, byte(r.Kind))
	if r.Kind != RegObj {
		for shift := 0; shift < 64; shift += 8 {
			b = append(b, byte(r.Data>>shift))
		}
		return b
	}
	o := vm.obj(r)
	b = append(b, byte(o.Kind))
	switch o.Kind {
	case ObjString:
		n := len(o.Bytes)
		b = append(b, byte(n), byte(n>>8), byte(n>>16), byte(n>>24))
		b = append(b, o.Bytes...)
	case ObjFuncRef:
		b = append(b, byte(o.Func), byte(o.Func>>8), byte(o.Func>>16), byte(o.Func>>24))
		for _, c := range o.Captures {
			b = vm.encodeReg(b, c)
		}
	default:
		b = append(b, byte(len(o.Fields)))
		for _, f := range o.Fields {
			b = vm.encodeReg(b, f)
		}
	}
	return b
}

// errMessage resolves an Err instruction's operands against the image's
// error table.
func (vm *VM) errMessage(section uint8, file, index uint32) string {
	var files [][]string
	switch diag.ErrorTableSection(section) {
	case diag.SectionLexer:
		files = vm.img.Errors.Lexer
	case diag.SectionParser:
		files = vm.img.Errors.Parser
	default:
		files = vm.img.Errors.Sema
	}
	if int(file) < len(files) && int(index) < len(files[file]) {
		return files[file][index]
	}
	return "compile-time error reached at runtime"
}
