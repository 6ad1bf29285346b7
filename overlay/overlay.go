//go:build !headless

// Package overlay renders a full-screen ebiten HUD over a live debug
// session: a scrollback console with an input line, whose commands print
// register dumps and the thread list as console lines (breakpoints are not
// listed) — the interactive counterpart to driving
// a Debugger purely through callbacks (spec.md SUPPLEMENTED FEATURES,
// adapted from the teacher's debug_overlay.go/debug_monitor.go machine
// monitor).
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/m2w4/robodbg"
)

const (
	width  = 900
	height = 540
	cols   = 110
	rows   = 38
	glyphW = 7
	glyphH = 13
)

// state mirrors the teacher's MonitorState: the overlay is either off the
// screen entirely or capturing keyboard input as a console.
type state int

const (
	stateInactive state = iota
	stateActive
)

type outputLine struct {
	text  string
	color color.RGBA
}

var (
	colorWhite   = color.RGBA{0xFF, 0xFF, 0xFF, 0xFF}
	colorCyan    = color.RGBA{0x64, 0xC8, 0xFF, 0xFF}
	colorYellow  = color.RGBA{0xFF, 0xFF, 0x55, 0xFF}
	colorRed     = color.RGBA{0xFF, 0x55, 0x55, 0xFF}
	colorGreen   = color.RGBA{0x55, 0xFF, 0x55, 0xFF}
	colorDim     = color.RGBA{0x55, 0x55, 0xFF, 0xFF}
	backgroundBG = color.RGBA{0x00, 0x10, 0x28, 0xFF}
)

// BreakEvent is what a Callbacks.OnBreakpoint/OnHardwareBreakpoint hook
// forwards to the overlay so it can activate itself on the render
// goroutine (mirrors the teacher's BreakpointEvent/breakpointChan).
type BreakEvent struct {
	ThreadID uint32
	Addr     robodbg.Address
	Hardware bool
}

// Overlay is the monitor console for a single Debugger session.
type Overlay struct {
	mu sync.Mutex

	dbg   *robodbg.Debugger
	state state

	outputLines []outputLine
	maxOutput   int
	scrollOff   int

	inputLine  []byte
	cursorPos  int
	history    []string
	historyIdx int

	focusedTID uint32
	prevRegs   map[string]uint64

	events chan BreakEvent

	img *ebiten.Image
	rgb *image.RGBA
}

// New builds an overlay bound to dbg. Call ListenForBreaks in a goroutine
// to have the overlay auto-activate itself when a breakpoint fires.
func New(dbg *robodbg.Debugger) *Overlay {
	o := &Overlay{
		dbg:       dbg,
		maxOutput: 500,
		events:    make(chan BreakEvent, 16),
		rgb:       image.NewRGBA(image.Rect(0, 0, width, height)),
	}
	o.appendOutput("robodbg console - press F12 to toggle, ? for help", colorCyan)
	return o
}

// Notify is the hook to wire into Callbacks.OnBreakpoint/OnHardwareBreakpoint;
// it never blocks the dispatch loop thanks to the buffered channel.
func (o *Overlay) Notify(ev BreakEvent) {
	select {
	case o.events <- ev:
	default:
	}
}

// ListenForBreaks drains Notify events and activates the overlay for each,
// mirroring the teacher's StartBreakpointListener goroutine. Run it once
// per Overlay in its own goroutine.
func (o *Overlay) ListenForBreaks() {
	for ev := range o.events {
		o.mu.Lock()
		o.focusedTID = ev.ThreadID
		kind := "BREAK"
		if ev.Hardware {
			kind = "HW BREAK"
		}
		o.appendOutputLocked(fmt.Sprintf("%s at %#x on thread %d", kind, ev.Addr, ev.ThreadID), colorRed)
		o.state = stateActive
		o.saveRegsLocked()
		o.showRegistersLocked()
		o.mu.Unlock()
	}
}

func (o *Overlay) appendOutput(text string, c color.RGBA) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.appendOutputLocked(text, c)
}

func (o *Overlay) appendOutputLocked(text string, c color.RGBA) {
	o.outputLines = append(o.outputLines, outputLine{text: text, color: c})
	if len(o.outputLines) > o.maxOutput {
		o.outputLines = o.outputLines[len(o.outputLines)-o.maxOutput:]
	}
}

func (o *Overlay) saveRegsLocked() {
	regs, err := o.dbg.Registers(o.focusedTID)
	if err != nil {
		return
	}
	o.prevRegs = make(map[string]uint64, len(regs))
	for _, r := range regs {
		o.prevRegs[r.Name] = r.Value
	}
}

func (o *Overlay) showRegistersLocked() {
	regs, err := o.dbg.Registers(o.focusedTID)
	if err != nil {
		o.appendOutputLocked(fmt.Sprintf("registers: %v", err), colorRed)
		return
	}
	var line strings.Builder
	for i, r := range regs {
		fmt.Fprintf(&line, "%-4s=%016X ", r.Name, r.Value)
		if (i+1)%4 == 0 {
			o.appendOutputLocked(strings.TrimRight(line.String(), " "), colorWhite)
			line.Reset()
		}
	}
	if line.Len() > 0 {
		o.appendOutputLocked(strings.TrimRight(line.String(), " "), colorWhite)
	}
}

// Active reports whether the overlay currently captures keyboard input.
func (o *Overlay) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state == stateActive
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

// ExecuteCommand parses and runs one console command line, returning true
// if the overlay should deactivate.
func (o *Overlay) ExecuteCommand(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToLower(fields[0]) {
	case "?", "help":
		o.appendOutputLocked("break <addr> | clear <addr> | regs | threads | mem <addr> <len> | quit", colorCyan)
	case "break", "b":
		o.cmdBreak(fields)
	case "clear", "c":
		o.cmdClear(fields)
	case "regs", "r":
		o.showRegistersLocked()
	case "threads", "t":
		o.cmdThreads()
	case "mem", "m":
		o.cmdMem(fields)
	case "focus":
		o.cmdFocus(fields)
	case "quit", "exit":
		return true
	default:
		o.appendOutputLocked("unknown command: "+fields[0], colorRed)
	}
	return false
}

func parseAddr(s string) (robodbg.Address, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "$")
	v, err := strconv.ParseUint(s, 16, 64)
	return robodbg.Address(v), err
}

func (o *Overlay) cmdBreak(fields []string) {
	if len(fields) < 2 {
		o.appendOutputLocked("usage: break <addr>", colorRed)
		return
	}
	addr, err := parseAddr(fields[1])
	if err != nil {
		o.appendOutputLocked("bad address: "+fields[1], colorRed)
		return
	}
	if err := o.dbg.SetBreakpoint(addr); err != nil {
		o.appendOutputLocked(fmt.Sprintf("break: %v", err), colorRed)
		return
	}
	o.appendOutputLocked(fmt.Sprintf("breakpoint set at %#x", addr), colorGreen)
}

func (o *Overlay) cmdClear(fields []string) {
	if len(fields) < 2 {
		o.appendOutputLocked("usage: clear <addr>", colorRed)
		return
	}
	addr, err := parseAddr(fields[1])
	if err != nil {
		o.appendOutputLocked("bad address: "+fields[1], colorRed)
		return
	}
	if err := o.dbg.ClearBreakpoint(addr); err != nil {
		o.appendOutputLocked(fmt.Sprintf("clear: %v", err), colorRed)
		return
	}
	o.appendOutputLocked(fmt.Sprintf("breakpoint cleared at %#x", addr), colorGreen)
}

func (o *Overlay) cmdThreads() {
	ids := o.dbg.Threads().IDs()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		marker := " "
		if id == o.focusedTID {
			marker = "*"
		}
		o.appendOutputLocked(fmt.Sprintf("%s thread %d", marker, id), colorWhite)
	}
}

func (o *Overlay) cmdMem(fields []string) {
	if len(fields) < 3 {
		o.appendOutputLocked("usage: mem <addr> <len>", colorRed)
		return
	}
	addr, err := parseAddr(fields[1])
	if err != nil {
		o.appendOutputLocked("bad address: "+fields[1], colorRed)
		return
	}
	n, err := strconv.Atoi(fields[2])
	if err != nil || n <= 0 || n > 4096 {
		o.appendOutputLocked("bad length: "+fields[2], colorRed)
		return
	}
	buf := make([]byte, n)
	if _, err := o.dbg.ReadMemory(addr, buf); err != nil {
		o.appendOutputLocked(fmt.Sprintf("mem: %v", err), colorRed)
		return
	}
	for off := 0; off < len(buf); off += 16 {
		end := off + 16
		if end > len(buf) {
			end = len(buf)
		}
		o.appendOutputLocked(fmt.Sprintf("%06X: % X", uint64(addr)+uint64(off), buf[off:end]), colorDim)
	}
}

func (o *Overlay) cmdFocus(fields []string) {
	if len(fields) < 2 {
		o.appendOutputLocked("usage: focus <tid>", colorRed)
		return
	}
	tid, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		o.appendOutputLocked("bad thread id: "+fields[1], colorRed)
		return
	}
	o.focusedTID = uint32(tid)
	o.saveRegsLocked()
}

// ---------------------------------------------------------------------------
// Rendering
// ---------------------------------------------------------------------------

// Draw renders the console onto screen when active.
func (o *Overlay) Draw(screen *ebiten.Image) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != stateActive {
		return
	}
	if o.img == nil {
		o.img = ebiten.NewImage(width, height)
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			o.rgb.SetRGBA(x, y, backgroundBG)
		}
	}

	drawer := &font.Drawer{Dst: o.rgb, Src: image.NewUniform(colorWhite), Face: basicfont.Face7x13}

	outputRows := rows - 2
	total := len(o.outputLines)
	start := total - outputRows - o.scrollOff
	if start < 0 {
		start = 0
	}
	for row := 0; row < outputRows; row++ {
		idx := start + row
		if idx < 0 || idx >= total {
			continue
		}
		line := o.outputLines[idx]
		drawer.Src = image.NewUniform(line.color)
		drawer.Dot = fixed.P(4, (row+1)*glyphH)
		drawer.DrawString(clip(line.text, cols))
	}

	inputRow := rows - 1
	drawer.Src = image.NewUniform(colorWhite)
	drawer.Dot = fixed.P(4, (inputRow+1)*glyphH)
	drawer.DrawString("> " + string(o.inputLine))

	o.img.WritePixels(o.rgb.Pix)
	screen.DrawImage(o.img, nil)
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// ---------------------------------------------------------------------------
// Input
// ---------------------------------------------------------------------------

// HandleInput processes keyboard events when the overlay is active,
// returning true when F12 toggled it or it just deactivated.
func (o *Overlay) HandleInput() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if inpututil.IsKeyJustPressed(ebiten.KeyF12) {
		if o.state == stateActive {
			o.state = stateInactive
		} else {
			o.state = stateActive
			o.saveRegsLocked()
		}
		return true
	}
	if o.state != stateActive {
		return false
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		o.state = stateInactive
		return true
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyEnter) {
		line := string(o.inputLine)
		o.appendOutputLocked("> "+line, colorDim)
		o.inputLine = nil
		o.cursorPos = 0
		o.scrollOff = 0
		if line != "" {
			o.history = append(o.history, line)
			o.historyIdx = len(o.history)
		}
		if o.ExecuteCommand(line) {
			o.state = stateInactive
			return true
		}
		return false
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyBackspace) {
		if o.cursorPos > 0 {
			o.inputLine = append(o.inputLine[:o.cursorPos-1], o.inputLine[o.cursorPos:]...)
			o.cursorPos--
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowUp) {
		if o.historyIdx > 0 {
			o.historyIdx--
			o.inputLine = []byte(o.history[o.historyIdx])
			o.cursorPos = len(o.inputLine)
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowDown) {
		if o.historyIdx < len(o.history)-1 {
			o.historyIdx++
			o.inputLine = []byte(o.history[o.historyIdx])
			o.cursorPos = len(o.inputLine)
		} else {
			o.historyIdx = len(o.history)
			o.inputLine = nil
			o.cursorPos = 0
		}
	}
	for _, r := range ebiten.AppendInputChars(nil) {
		if r >= 0x20 && r < 0x7F && len(o.inputLine) < cols-4 {
			o.inputLine = append(o.inputLine, 0)
			copy(o.inputLine[o.cursorPos+1:], o.inputLine[o.cursorPos:])
			o.inputLine[o.cursorPos] = byte(r)
			o.cursorPos++
		}
	}
	return false
}
