package vm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"
)

var log = commonlog.GetLogger("grumpy.vm")

// Default resource limits.
const (
	DefaultMaxStack = 1 << 16
	DefaultMaxSteps = 0 // unlimited
	DefaultMaxHeap  = 1 << 22

	// cancelCheckInterval is how many instructions run between context checks.
	cancelCheckInterval = 1024
)

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// Option configures a Machine.
type Option func(*machineConfig)

type machineConfig struct {
	out      io.Writer
	maxStack int
	maxSteps int
	maxHeap  int
}

// WithOutput sets where print writes. Defaults to io.Discard.
func WithOutput(w io.Writer) Option {
	return func(c *machineConfig) { c.out = w }
}

// WithMaxStack bounds the operand stack depth of each machine.
func WithMaxStack(n int) Option {
	return func(c *machineConfig) { c.maxStack = n }
}

// WithMaxSteps bounds the number of instructions each machine executes.
// Zero means no limit.
func WithMaxSteps(n int) Option {
	return func(c *machineConfig) { c.maxSteps = n }
}

// WithMaxHeap bounds the heap, in cells, shared by a machine and the
// machines it spawns. Zero means no limit.
func WithMaxHeap(n int) Option {
	return func(c *machineConfig) { c.maxHeap = n }
}

// syncWriter serializes print output from spawned machines.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) println(v Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.w, v)
	return err
}

// ---------------------------------------------------------------------------
// Machine: GrumpyVM executor
// ---------------------------------------------------------------------------

// Machine executes a Module against an operand stack, a heap and a frame
// pointer.
type Machine struct {
	mod  *Module
	cfg  machineConfig
	heap *Heap
	out  *syncWriter

	stack    []Value
	fp       int
	callerFP int // fp in effect before the last SetFrame, saved by Call
	pc       int
	steps    int
	haltPC   int

	group *errgroup.Group
	ctx   context.Context
}

// NewMachine creates a machine for mod with an empty stack and heap.
func NewMachine(mod *Module, opts ...Option) *Machine {
	cfg := machineConfig{
		out:      io.Discard,
		maxStack: DefaultMaxStack,
		maxSteps: DefaultMaxSteps,
		maxHeap:  DefaultMaxHeap,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	m := &Machine{
		mod:    mod,
		cfg:    cfg,
		heap:   NewBoundedHeap(cfg.maxHeap),
		out:    &syncWriter{w: cfg.out},
		haltPC: -1,
	}
	for i, in := range mod.Instrs {
		if in.Op == OpHalt {
			m.haltPC = i
			break
		}
	}
	return m
}

// Stack returns a copy of the operand stack.
func (m *Machine) Stack() []Value {
	out := make([]Value, len(m.stack))
	copy(out, m.stack)
	return out
}

// Heap returns the machine's heap.
func (m *Machine) Heap() *Heap {
	return m.heap
}

// Run executes from instruction 0 until Halt and returns the top of the
// stack. Spawned tasks are waited for before Run returns; the first
// failure among them fails the run.
func (m *Machine) Run(ctx context.Context) (Value, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	m.group = g
	m.ctx = gctx

	result, err := m.exec(gctx)
	if err != nil {
		cancel()
	}
	werr := g.Wait()

	switch {
	case err != nil && werr != nil && errors.Is(err, context.Canceled):
		return Undef, werr
	case err != nil:
		return Undef, err
	case werr != nil:
		return Undef, werr
	}
	return result, nil
}

// spawn starts the zero-argument function at target on a child machine
// sharing this machine's heap and output.
func (m *Machine) spawn(target uint32) error {
	if m.haltPC < 0 {
		return ErrNoHalt
	}
	child := &Machine{
		mod:    m.mod,
		cfg:    m.cfg,
		heap:   m.heap,
		out:    m.out,
		haltPC: m.haltPC,
		group:  m.group,
		ctx:    m.ctx,
		// Frame as if called from the prologue: saved fp, then a return
		// address pointing at Halt.
		stack: []Value{Loc(0), Loc(uint32(m.haltPC))},
		pc:    int(target),
	}
	log.Debugf("spawn loc %d", target)
	m.group.Go(func() error {
		_, err := child.exec(child.ctx)
		return err
	})
	return nil
}

func (m *Machine) exec(ctx context.Context) (Value, error) {
	code := m.mod.Instrs
	for {
		if m.pc < 0 || m.pc >= len(code) {
			return Undef, &RuntimeError{PC: m.pc, Err: ErrPCRange}
		}
		in := code[m.pc]

		m.steps++
		if m.cfg.maxSteps > 0 && m.steps > m.cfg.maxSteps {
			return Undef, &RuntimeError{PC: m.pc, Instr: in, Err: ErrStepLimit}
		}
		if m.steps%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return Undef, err
			}
		}

		if in.Op == OpHalt {
			if len(m.stack) == 0 {
				return Undef, &RuntimeError{PC: m.pc, Instr: in, Err: ErrStackUnderflow}
			}
			return m.stack[len(m.stack)-1], nil
		}

		jumped, err := m.step(in)
		if err != nil {
			return Undef, &RuntimeError{PC: m.pc, Instr: in, Err: err}
		}
		if !jumped {
			m.pc++
		}
	}
}

// step executes one instruction. It reports whether the instruction set
// the program counter itself.
func (m *Machine) step(in Instr) (bool, error) {
	switch in.Op {
	case OpPush:
		return false, m.push(in.Val)

	case OpPop:
		_, err := m.pop()
		return false, err

	case OpPeek:
		idx := len(m.stack) - 1 - int(in.Arg)
		if idx < 0 {
			return false, ErrStackUnderflow
		}
		return false, m.push(m.stack[idx])

	case OpUnary:
		v, err := m.pop()
		if err != nil {
			return false, err
		}
		r, err := m.unary(in.Unop(), v)
		if err != nil {
			return false, err
		}
		return false, m.push(r)

	case OpBinary:
		r, err := m.pop()
		if err != nil {
			return false, err
		}
		l, err := m.pop()
		if err != nil {
			return false, err
		}
		v, err := applyBinary(in.Binop(), l, r)
		if err != nil {
			return false, err
		}
		return false, m.push(v)

	case OpSwap:
		n := len(m.stack)
		if n < 2 {
			return false, ErrStackUnderflow
		}
		m.stack[n-1], m.stack[n-2] = m.stack[n-2], m.stack[n-1]
		return false, nil

	case OpAlloc:
		init, err := m.pop()
		if err != nil {
			return false, err
		}
		size, err := m.popKind(KindI32, "alloc size")
		if err != nil {
			return false, err
		}
		addr, err := m.heap.Alloc(size.I32(), init)
		if err != nil {
			return false, err
		}
		return false, m.push(Addr(addr))

	case OpSet:
		v, err := m.pop()
		if err != nil {
			return false, err
		}
		idx, err := m.popKind(KindI32, "set index")
		if err != nil {
			return false, err
		}
		arr, err := m.popKind(KindAddr, "set array")
		if err != nil {
			return false, err
		}
		return false, m.heap.Set(arr.Index(), idx.I32(), v)

	case OpGet:
		idx, err := m.popKind(KindI32, "get index")
		if err != nil {
			return false, err
		}
		arr, err := m.popKind(KindAddr, "get array")
		if err != nil {
			return false, err
		}
		v, err := m.heap.Get(arr.Index(), idx.I32())
		if err != nil {
			return false, err
		}
		return false, m.push(v)

	case OpVar:
		slot := m.fp + int(in.Arg)
		if slot >= len(m.stack) {
			return false, fmt.Errorf("%w: fp+%d with fp=%d, stack %d", ErrBadFrame, in.Arg, m.fp, len(m.stack))
		}
		return false, m.push(m.stack[slot])

	case OpStore:
		v, err := m.pop()
		if err != nil {
			return false, err
		}
		slot := m.fp + int(in.Arg)
		if slot >= len(m.stack) {
			return false, fmt.Errorf("%w: fp+%d with fp=%d, stack %d", ErrBadFrame, in.Arg, m.fp, len(m.stack))
		}
		m.stack[slot] = v
		return false, nil

	case OpSetFrame:
		if int(in.Arg) > len(m.stack) {
			return false, fmt.Errorf("%w: setframe %d with stack %d", ErrBadFrame, in.Arg, len(m.stack))
		}
		m.callerFP = m.fp
		m.fp = len(m.stack) - int(in.Arg)
		return false, nil

	case OpCall:
		target, err := m.popKind(KindLoc, "call target")
		if err != nil {
			return false, err
		}
		if err := m.push(Loc(uint32(m.callerFP))); err != nil {
			return false, err
		}
		if err := m.push(Loc(uint32(m.pc + 1))); err != nil {
			return false, err
		}
		m.pc = int(target.Index())
		return true, nil

	case OpRet:
		result, err := m.pop()
		if err != nil {
			return false, err
		}
		ra, err := m.popKind(KindLoc, "return address")
		if err != nil {
			return false, err
		}
		saved, err := m.popKind(KindLoc, "saved frame pointer")
		if err != nil {
			return false, err
		}
		if m.fp > len(m.stack) {
			return false, fmt.Errorf("%w: fp=%d beyond stack %d", ErrBadFrame, m.fp, len(m.stack))
		}
		m.stack = m.stack[:m.fp]
		m.fp = int(saved.Index())
		m.pc = int(ra.Index())
		return true, m.push(result)

	case OpBranch:
		target, err := m.popKind(KindLoc, "branch target")
		if err != nil {
			return false, err
		}
		cond, err := m.popKind(KindBool, "branch condition")
		if err != nil {
			return false, err
		}
		if cond.Bool() {
			m.pc = int(target.Index())
			return true, nil
		}
		return false, nil

	default:
		return false, fmt.Errorf("unknown opcode %d", in.Op)
	}
}

func (m *Machine) unary(op Unop, v Value) (Value, error) {
	switch op {
	case Neg:
		switch v.Kind {
		case KindI32:
			return Int(-v.I32()), nil
		case KindBool:
			return Bool(!v.Bool()), nil
		}
		return Undef, fmt.Errorf("%w: neg expects i32 or bool, got %s", ErrTypeMismatch, v.Kind)
	case Print:
		if err := m.out.println(v); err != nil {
			return Undef, err
		}
		return Unit, nil
	case Spawn:
		if v.Kind != KindLoc {
			return Undef, typeError("spawn", KindLoc, v)
		}
		if err := m.spawn(v.Index()); err != nil {
			return Undef, err
		}
		return Unit, nil
	}
	return Undef, fmt.Errorf("unknown unary operator %d", op)
}

func applyBinary(op Binop, l, r Value) (Value, error) {
	if op == Eq {
		return Bool(l.Equal(r)), nil
	}
	if l.Kind != KindI32 {
		return Undef, typeError(op.String(), KindI32, l)
	}
	if r.Kind != KindI32 {
		return Undef, typeError(op.String(), KindI32, r)
	}
	a, b := l.I32(), r.I32()
	switch op {
	case Add:
		return Int(a + b), nil
	case Sub:
		return Int(a - b), nil
	case Mul:
		return Int(a * b), nil
	case Div:
		if b == 0 {
			return Undef, ErrDivideByZero
		}
		return Int(a / b), nil
	case Lt:
		return Bool(a < b), nil
	}
	return Undef, fmt.Errorf("unknown binary operator %d", op)
}

// ---------------------------------------------------------------------------
// Stack helpers
// ---------------------------------------------------------------------------

func (m *Machine) push(v Value) error {
	if m.cfg.maxStack > 0 && len(m.stack) >= m.cfg.maxStack {
		return ErrStackOverflow
	}
	m.stack = append(m.stack, v)
	return nil
}

func (m *Machine) pop() (Value, error) {
	n := len(m.stack)
	if n == 0 {
		return Undef, ErrStackUnderflow
	}
	v := m.stack[n-1]
	m.stack = m.stack[:n-1]
	return v, nil
}

func (m *Machine) popKind(k Kind, what string) (Value, error) {
	v, err := m.pop()
	if err != nil {
		return Undef, err
	}
	if v.Kind != k {
		return Undef, typeError(what, k, v)
	}
	return v, nil
}
