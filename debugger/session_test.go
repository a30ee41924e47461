package debugger

import (
	"encoding/binary"
	"strings"
	"testing"

	"llsvm/vm"
)

func assertDbg(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(format, args...)
	}
}

func u64le(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}

// tinyProgram builds MOV_IMM_R r0, 1; ADD_IMM r0, 41; EXIT.
func tinyProgram() []byte {
	var code []byte
	code = append(code, byte(vm.OpMovImmR), 0)
	code = append(code, u64le(1)...)
	code = append(code, byte(vm.OpAddImm), 0)
	code = append(code, u64le(41)...)
	code = append(code, byte(vm.OpExit))
	return code
}

func TestSteppingThenContinueReachesExit(t *testing.T) {
	front := &ScriptedFrontend{Commands: []byte("ncc")}
	sess := NewSession(tinyProgram(), nil, nil, front)

	err := sess.RunDebug()
	assertDbg(t, err == nil, "expected clean exit, got %v", err)
	assertDbg(t, sess.State().Done(), "expected VM to have exited")
	assertDbg(t, sess.State().IntReg(0) == 42, "expected r0 == 42, got %d", sess.State().IntReg(0))
}

func TestBreakpointPausesExecution(t *testing.T) {
	// addr 10 is the AddImm instruction (see tinyProgram). Set a breakpoint
	// there, continue, then confirm we're paused before it has executed,
	// then continue once more to finish.
	front := &ScriptedFrontend{
		Commands: []byte("bcc"),
		Lines:    []string{"0xa"},
	}

	sess := NewSession(tinyProgram(), nil, nil, front)
	err := sess.RunDebug()
	assertDbg(t, err == nil, "expected clean exit, got %v", err)
	assertDbg(t, sess.State().Done(), "expected VM to have exited")
	// Without the pause at 0xa the first 'c' would run to EXIT and the
	// second 'c' would never be read.
	assertDbg(t, front.cmdPos == len(front.Commands), "expected the breakpoint to pause and consume every command, consumed %d of %d", front.cmdPos, len(front.Commands))
}

func TestQuitStopsWithoutRunningToCompletion(t *testing.T) {
	front := &ScriptedFrontend{Commands: []byte("x")}
	sess := NewSession(tinyProgram(), nil, nil, front)

	err := sess.RunDebug()
	assertDbg(t, err == nil, "expected nil error on explicit quit, got %v", err)
	assertDbg(t, !sess.State().Done(), "expected VM to NOT have run to completion after quit")
	assertDbg(t, sess.State().IP() == 0, "expected ip untouched before any step, got %d", sess.State().IP())
}

func TestSilentToggleSuppressesTrace(t *testing.T) {
	front := &ScriptedFrontend{Commands: []byte("sc")}
	sess := NewSession(tinyProgram(), nil, nil, front)

	err := sess.RunDebug()
	assertDbg(t, err == nil, "expected clean exit, got %v", err)
	assertDbg(t, front.Output.Len() > 0, "expected the initial command banner to still print")
	assertDbg(t, !strings.Contains(front.Output.String(), "MOV_IMM_R"), "expected no per-instruction trace while silent, got %q", front.Output.String())
}
