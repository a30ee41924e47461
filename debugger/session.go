package debugger

import (
	"math"
	"strconv"
	"strings"

	"llsvm/debugdb"
	"llsvm/vm"
)

// Session owns one debug run: the VM state, an optional debug database, the
// frontend it talks to, and all of the REPL's gating state (§4.6, §4.8,
// §4.9). It is not safe for concurrent use - only RunDebug's own goroutine
// ever touches it, matching vm.State's own single-threaded contract.
type Session struct {
	state *vm.State
	db    *debugdb.Reader
	front Frontend

	tracker *RecentValuesTracker

	hasBreakpoint bool
	breakpoint    uint64

	stepPending         bool
	lineBreakPending    bool
	stepOutPending      bool
	stepOutDepth        int
	runUntilCallPending bool

	silent         bool
	silentComments bool
	autoBreakOnHit bool

	callDepth int
	quit      bool

	initialCode      []byte
	initialRegisters [vm.NumRegisters]uint64
	opts             []vm.Option
}

// NewSession builds a debug session ready to run. db may be nil if no debug
// database was supplied or it failed version validation - the caller is
// expected to have already emitted that one-shot warning.
func NewSession(code []byte, registers *[vm.NumRegisters]uint64, db *debugdb.Reader, front Frontend, opts ...vm.Option) *Session {
	s := &Session{
		db:          db,
		front:       front,
		tracker:     NewRecentValuesTracker(MinTrackerSlots),
		initialCode: code,
		opts:        opts,
	}
	if registers != nil {
		s.initialRegisters = *registers
	}
	s.state = vm.NewState(code, &s.initialRegisters, opts...)
	return s
}

// State exposes the underlying VM state for read-only inspection by callers
// (e.g. a cmd/ entry point printing the final registers).
func (sess *Session) State() *vm.State { return sess.state }

// SetBreakpoint pre-seeds a breakpoint before RunDebug starts, e.g. from a
// --break CLI flag.
func (sess *Session) SetBreakpoint(addr uint64) {
	sess.hasBreakpoint = true
	sess.breakpoint = addr
}

// RunDebug runs the REPL loop to completion: free execution except while
// step_pending is set, in which case it blocks on a single command byte
// between instructions, per SPEC_FULL.md §4.6.
func (sess *Session) RunDebug() error {
	stop, cleanup := sess.installSignalOverlay()
	defer cleanup()

	sess.front.Printf("commands: c n l f F b r p y i m v o w W s S q x z\n")
	sess.stepPending = true

	for {
		select {
		case <-stop:
			// Only RunDebug's own goroutine ever reads/writes stepPending and
			// quit, so this decision is race-free: the signal goroutine just
			// forwards the interrupt, it never inspects session state itself.
			if sess.stepPending {
				sess.quit = true
			} else {
				sess.stepPending = true
			}
		default:
		}

		if sess.hasBreakpoint && sess.state.IP() == sess.breakpoint {
			sess.stepPending = true
		}

		if sess.quit {
			return sess.state.Err()
		}

		if sess.stepPending {
			advance, err := sess.prompt()
			if err != nil {
				return sess.state.Err()
			}
			if sess.quit {
				return sess.state.Err()
			}
			if !advance {
				continue
			}
		}

		startIP := sess.state.IP()
		wasLineEnd := sess.isLineEnd(startIP)
		depthBefore := sess.callDepth

		sess.visitVariables(startIP)

		var opcode vm.Opcode
		if int(startIP) < len(sess.state.Code()) {
			opcode = vm.Opcode(sess.state.Code()[startIP])
		}

		ok := sess.state.Step()
		sess.tracker.Tick()
		sess.afterStep(opcode, wasLineEnd, depthBefore)

		if !sess.silent {
			sess.front.Printf("%04x: %s\n", startIP, opcode)
		}

		if !ok {
			if err := sess.state.Err(); err != nil {
				sess.front.Printf("%s at instruction %04x\n", err, startIP)
				sess.cmdTracker()
				sess.cmdDumpRegisters()
				sess.front.Printf("sp = %d\n", sess.state.SP())
			}
			return sess.state.Err()
		}
	}
}

func (sess *Session) afterStep(opcode vm.Opcode, wasLineEnd bool, depthBefore int) {
	switch opcode {
	case vm.OpCallInternal:
		sess.callDepth++
	case vm.OpReturnInternal:
		sess.callDepth--
	}

	if sess.lineBreakPending && wasLineEnd {
		sess.stepPending = true
		sess.lineBreakPending = false
	}
	if sess.stepOutPending && opcode == vm.OpReturnInternal && sess.callDepth < sess.stepOutDepth {
		sess.stepPending = true
		sess.stepOutPending = false
	}
	if sess.runUntilCallPending && (opcode == vm.OpCallInternal || opcode == vm.OpReturnInternal) {
		sess.stepPending = true
		sess.runUntilCallPending = false
	}
	_ = depthBefore
}

func (sess *Session) isLineEnd(addr uint64) bool {
	if sess.db == nil {
		return false
	}
	entry, ok := sess.db.Lookup(addr)
	return ok && len(entry.CodeFragments) > 0
}

func (sess *Session) visitVariables(addr uint64) {
	if sess.db == nil {
		return
	}
	entry, ok := sess.db.Lookup(addr)
	if !ok {
		return
	}
	for _, c := range entry.Comments {
		if sess.silentComments {
			continue
		}
		if c.IsNote() {
			sess.front.Printf("    %s\n", c.Text)
		} else {
			sess.front.Printf("=== %s ===\n", c.Text)
		}
	}
	for _, v := range entry.Variables {
		result := sess.tracker.Store(v, sess.callDepth)
		if result.evictedHighlighted {
			sess.front.Printf("(evicted highlighted binding %q)\n", result.evictedName)
			sess.stepPending = true
		}
		if sess.autoBreakOnHit && sess.tracker.isHighlighted(v) {
			sess.stepPending = true
		}
	}
}

// prompt reads and dispatches exactly one command while paused. It reports
// whether the main loop should go on to execute an instruction this
// iteration ('n', 'c', 'l', 'f', 'F') or stay at the prompt ('r', 'p', ...,
// every introspection/toggle command that doesn't advance execution).
func (sess *Session) prompt() (advance bool, err error) {
	cmd, err := sess.front.ReadCommand()
	if err != nil {
		return false, err
	}
	switch cmd {
	case 'c':
		sess.stepPending = false
		return true, nil
	case 'n':
		return true, nil
	case 'l':
		sess.lineBreakPending = true
		sess.stepPending = false
		return true, nil
	case 'f':
		sess.stepOutDepth = sess.callDepth
		sess.stepOutPending = true
		sess.stepPending = false
		return true, nil
	case 'F':
		sess.runUntilCallPending = true
		sess.stepPending = false
		return true, nil
	case 'b':
		sess.cmdBreakpoint()
	case 'r':
		sess.cmdDumpRegisters()
	case 'p':
		sess.cmdDumpStack()
	case 'y':
		sess.cmdDumpWindow()
	case 'i':
		sess.cmdInspect()
	case 'm':
		sess.cmdModify()
	case 'v':
		sess.cmdTracker()
	case 'o':
		sess.tracker.ClearNonHighlighted()
	case 'w':
		line, _ := sess.front.ReadLine()
		sess.tracker.SetFilter(line)
	case 'W':
		sess.autoBreakOnHit = !sess.autoBreakOnHit
	case 's':
		sess.silent = !sess.silent
	case 'S':
		sess.silentComments = !sess.silentComments
	case 'q':
		sess.restart()
	case 'x':
		sess.quit = true
	case 'z':
		sess.front.Printf("debugger trap\n")
	default:
		sess.front.Printf("unknown command %q\n", cmd)
	}
	return false, nil
}

func (sess *Session) restart() {
	regs := sess.initialRegisters
	sess.state = vm.NewState(sess.initialCode, &regs, sess.opts...)
	sess.callDepth = 0
	sess.stepPending = true
}

func (sess *Session) cmdBreakpoint() {
	line, err := sess.front.ReadLine()
	if err != nil {
		return
	}
	addr, err := strconv.ParseUint(strings.TrimPrefix(line, "0x"), 16, 64)
	if err != nil {
		sess.front.Printf("bad address: %v\n", err)
		return
	}
	if sess.hasBreakpoint && sess.breakpoint == addr {
		sess.hasBreakpoint = false
		return
	}
	sess.hasBreakpoint = true
	sess.breakpoint = addr
}

func (sess *Session) cmdDumpRegisters() {
	regs := sess.state.Registers()
	for i, v := range regs {
		sess.front.Printf("r%-2d = %#016x\n", i, v)
	}
	sess.front.Printf("compare = %v\n", sess.state.CompareFlag())
}

func (sess *Session) cmdDumpStack() {
	stack := sess.state.Stack()
	sp := sess.state.SP()
	start := uint64(0)
	if sp > 64 {
		start = sp - 64
	}
	window := stack[start:sp]
	sess.front.Printf("hex=%x ascii=%q\n", window, asciiPreview(window))
}

func (sess *Session) cmdDumpWindow() {
	offLine, _ := sess.front.ReadLine()
	sizeLine, _ := sess.front.ReadLine()
	off, err1 := strconv.ParseUint(offLine, 10, 64)
	size, err2 := strconv.ParseUint(sizeLine, 10, 64)
	if err1 != nil || err2 != nil {
		sess.front.Printf("bad offset/size\n")
		return
	}
	stack := sess.state.Stack()
	if off+size > uint64(len(stack)) {
		sess.front.Printf("<BAD_PTR>\n")
		return
	}
	window := stack[off : off+size]
	sess.front.Printf("hex=%x ascii=%q\n", window, asciiPreview(window))
}

func (sess *Session) cmdInspect() {
	line, err := sess.front.ReadLine()
	if err != nil {
		return
	}
	off, err := strconv.ParseInt(line, 10, 64)
	if err != nil {
		sess.front.Printf("bad offset: %v\n", err)
		return
	}
	sp := sess.state.SP()
	addr := int64(sp) - off
	if addr < 0 || uint64(addr)+8 > uint64(len(sess.state.Stack())) {
		sess.front.Printf("<BAD_PTR>\n")
		return
	}
	b := sess.state.Stack()[addr : addr+8]
	v := leU64(b)
	sess.front.Printf("unsigned=%d signed=%d hex=%#x ascii=%q float=%v\n",
		v, int64(v), v, asciiPreview(b), math.Float64frombits(v))
}

func (sess *Session) cmdModify() {
	target, err := sess.front.ReadLine()
	if err != nil {
		return
	}
	value, err := sess.front.ReadLine()
	if err != nil {
		return
	}
	switch {
	case target == "compare":
		sess.state.SetCompareFlag(value == "1" || value == "true")
	case strings.HasPrefix(target, "r"):
		idx, err := strconv.Atoi(strings.TrimPrefix(target, "r"))
		if err != nil || idx < 0 || idx >= vm.NumRegisters {
			sess.front.Printf("bad register: %s\n", target)
			return
		}
		v, err := strconv.ParseUint(value, 0, 64)
		if err != nil {
			sess.front.Printf("bad value: %v\n", err)
			return
		}
		sess.state.SetIntReg(byte(idx), v)
	default:
		off, err1 := strconv.ParseInt(target, 10, 64)
		v, err2 := strconv.ParseUint(value, 0, 8)
		if err1 != nil || err2 != nil {
			sess.front.Printf("bad stack modify: %s %s\n", target, value)
			return
		}
		sp := sess.state.SP()
		addr := int64(sp) - off
		if addr < 0 || uint64(addr) >= uint64(len(sess.state.Stack())) {
			sess.front.Printf("<BAD_PTR>\n")
			return
		}
		sess.state.Stack()[addr] = byte(v)
	}
}

func (sess *Session) cmdTracker() {
	for _, v := range sess.tracker.Slots() {
		if !v.Visible(sess.callDepth) {
			continue
		}
		mark := " "
		if v.Highlighted {
			mark = "*"
		}
		sess.front.Printf("%s %s\n", mark, FormatVariable(sess.state, v.Location))
	}
}

