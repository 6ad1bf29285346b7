// Command robodbg-repl is a small embedding harness demonstrating how a
// host program drives a Debugger: it launches or attaches to a target,
// installs breakpoints from the command line, and optionally hands control
// of each breakpoint hit to a Lua script (spec.md SUPPLEMENTED FEATURES —
// an example consumer of the Callback Surface, not part of the core
// itself, grounded on the teacher's cmd/ie32to64's flag-based CLI shape).
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"golang.design/x/clipboard"
	"golang.org/x/term"

	"github.com/m2w4/robodbg"
)

func main() {
	attachPID := flag.Int("attach", 0, "attach to an existing process by pid instead of launching")
	archFlag := flag.String("arch", "amd64", "target architecture: amd64 or 386")
	scriptPath := flag.String("script", "", "Lua script driving breakpoint hooks")
	breakpoints := flag.String("break", "", "comma-separated hex addresses to set software breakpoints on")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: robodbg-repl [options] [target.exe [args...]]\n\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	arch := robodbg.ArchAMD64
	if *archFlag == "386" {
		arch = robodbg.Arch386
	}

	session, err := newSession(arch, *scriptPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer session.close()

	for _, field := range strings.Split(*breakpoints, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		addr, err := strconv.ParseUint(strings.TrimPrefix(field, "0x"), 16, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bad breakpoint address %q: %v\n", field, err)
			os.Exit(1)
		}
		session.pendingBreakpoints = append(session.pendingBreakpoints, robodbg.Address(addr))
	}

	var runErr error
	if *attachPID != 0 {
		runErr = session.attach(*attachPID)
	} else if flag.NArg() >= 1 {
		runErr = session.launch(flag.Arg(0), flag.Args()[1:])
	} else {
		flag.Usage()
		os.Exit(1)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		os.Exit(1)
	}
}

// session wires a Debugger to the REPL's Lua hooks and console output.
type session struct {
	dbg *robodbg.Debugger
	L   *lua.LState

	pendingBreakpoints []robodbg.Address
}

func newSession(arch robodbg.Arch, scriptPath string) (*session, error) {
	s := &session{}

	adapter := robodbg.NewAdapter()
	mem := robodbg.NewMemoryAccessor()
	regs := robodbg.NewRegisterAccessor(arch)

	s.dbg = robodbg.NewDebugger(arch, adapter, mem, regs, robodbg.Callbacks{
		OnProcessCreate: s.onProcessCreate,
		OnProcessExit:   s.onProcessExit,
		OnThreadCreate:  s.onThreadCreate,
		OnDebugString:   s.onDebugString,
		OnBreakpoint:    s.onBreakpoint,
	})

	if scriptPath != "" {
		s.L = lua.NewState()
		s.registerLuaAPI()
		if err := s.L.DoFile(scriptPath); err != nil {
			s.L.Close()
			return nil, fmt.Errorf("lua script %s: %w", scriptPath, err)
		}
	}
	return s, nil
}

func (s *session) close() {
	if s.L != nil {
		s.L.Close()
	}
}

func (s *session) launch(path string, args []string) error {
	fmt.Printf("launching %s\n", path)
	return s.dbg.Launch(path, args)
}

func (s *session) attach(pid int) error {
	fmt.Printf("attaching to pid %d\n", pid)
	return s.dbg.Attach(pid)
}

func (s *session) onProcessCreate(pid uint32, info robodbg.ProcessCreateInfo) {
	fmt.Printf("process %d created, image base %#x\n", pid, s.dbg.ImageBase())
	for _, addr := range s.pendingBreakpoints {
		if err := s.dbg.SetBreakpoint(addr); err != nil {
			fmt.Fprintf(os.Stderr, "set breakpoint %#x: %v\n", addr, err)
			continue
		}
		fmt.Printf("breakpoint set at %#x\n", addr)
	}
}

func (s *session) onProcessExit(pid uint32, info robodbg.ProcessExitInfo) {
	fmt.Printf("process %d exited with code %d\n", pid, info.ExitCode)
}

func (s *session) onThreadCreate(tid uint32, info robodbg.ThreadCreateInfo) {
	fmt.Printf("thread %d created\n", tid)
}

func (s *session) onDebugString(info robodbg.DebugStringInfo) {
	fmt.Printf("debug string: %s\n", info.Message)
}

// onBreakpoint is the default hook: if a Lua script is loaded, it asks the
// script's "onBreakpoint" global function for a continuation; otherwise it
// drops into a raw-mode terminal prompt so a human can inspect state.
func (s *session) onBreakpoint(tid uint32, addr robodbg.Address) robodbg.ContinuationAction {
	fmt.Printf("breakpoint hit: thread %d at %#x\n", tid, addr)

	if s.L != nil {
		return s.callLuaBreakpointHook(tid, addr)
	}
	return s.promptBreakpointAction(tid, addr)
}

// promptBreakpointAction reads a single keystroke in raw terminal mode so
// the user doesn't need to press Enter: (c)ontinue, (s)tep, or dump
// (r)egisters to the clipboard.
func (s *session) promptBreakpointAction(tid uint32, addr robodbg.Address) robodbg.ContinuationAction {
	fmt.Print("[c]ontinue / [s]tep / [r]egs-to-clipboard / [b]reak: ")

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Println()
		return robodbg.Restore
	}
	defer term.Restore(fd, oldState)

	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		if n == 0 || err != nil {
			return robodbg.Restore
		}
		switch buf[0] {
		case 'c', 'C':
			fmt.Print("\r\ncontinue\r\n")
			return robodbg.Restore
		case 's', 'S':
			fmt.Print("\r\nstep\r\n")
			return robodbg.SingleStep
		case 'b', 'B':
			fmt.Print("\r\nbreak\r\n")
			return robodbg.Break
		case 'r', 'R':
			s.copyRegistersToClipboard(tid)
			fmt.Print("\r\nregisters copied\r\n")
		default:
			fmt.Print("\r\n? ")
		}
	}
}

func (s *session) copyRegistersToClipboard(tid uint32) {
	regs, err := s.dbg.Registers(tid)
	if err != nil {
		return
	}
	var b strings.Builder
	for _, r := range regs {
		fmt.Fprintf(&b, "%s=%016X\n", r.Name, r.Value)
	}
	if err := clipboard.Init(); err == nil {
		clipboard.Write(clipboard.FmtText, []byte(b.String()))
	}
}

// ---------------------------------------------------------------------------
// Lua scripting console
// ---------------------------------------------------------------------------

// registerLuaAPI exposes a handful of Debugger operations to Lua scripts so
// they can set breakpoints, read registers, and read memory from their own
// onBreakpoint hook.
func (s *session) registerLuaAPI() {
	s.L.SetGlobal("set_breakpoint", s.L.NewFunction(func(L *lua.LState) int {
		addr := robodbg.Address(L.CheckInt64(1))
		err := s.dbg.SetBreakpoint(addr)
		L.Push(lua.LBool(err == nil))
		return 1
	}))
	s.L.SetGlobal("clear_breakpoint", s.L.NewFunction(func(L *lua.LState) int {
		addr := robodbg.Address(L.CheckInt64(1))
		err := s.dbg.ClearBreakpoint(addr)
		L.Push(lua.LBool(err == nil))
		return 1
	}))
	s.L.SetGlobal("read_register", s.L.NewFunction(func(L *lua.LState) int {
		tid := uint32(L.CheckInt(1))
		name := L.CheckString(2)
		regs, err := s.dbg.Registers(tid)
		if err != nil {
			L.Push(lua.LNil)
			return 1
		}
		for _, r := range regs {
			if r.Name == name {
				L.Push(lua.LNumber(r.Value))
				return 1
			}
		}
		L.Push(lua.LNil)
		return 1
	}))
	s.L.SetGlobal("read_memory", s.L.NewFunction(func(L *lua.LState) int {
		addr := robodbg.Address(L.CheckInt64(1))
		n := L.CheckInt(2)
		buf := make([]byte, n)
		if _, err := s.dbg.ReadMemory(addr, buf); err != nil {
			L.Push(lua.LNil)
			return 1
		}
		table := L.NewTable()
		for i, b := range buf {
			table.RawSetInt(i+1, lua.LNumber(b))
		}
		L.Push(table)
		return 1
	}))
}

// callLuaBreakpointHook invokes the script's onBreakpoint(tid, addr)
// function, if defined, translating its return string into a
// ContinuationAction. A missing hook or a non-string return defaults to
// Restore (continue past the breakpoint).
func (s *session) callLuaBreakpointHook(tid uint32, addr robodbg.Address) robodbg.ContinuationAction {
	fn := s.L.GetGlobal("onBreakpoint")
	if fn.Type() != lua.LTFunction {
		return robodbg.Restore
	}
	if err := s.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true},
		lua.LNumber(tid), lua.LNumber(addr)); err != nil {
		fmt.Fprintf(os.Stderr, "lua onBreakpoint: %v\n", err)
		return robodbg.Restore
	}
	ret := s.L.Get(-1)
	s.L.Pop(1)
	switch strings.ToLower(lua.LVAsString(ret)) {
	case "break":
		return robodbg.Break
	case "step":
		return robodbg.SingleStep
	default:
		return robodbg.Restore
	}
}
