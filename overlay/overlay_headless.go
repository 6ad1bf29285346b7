//go:build headless

package overlay

import "github.com/m2w4/robodbg"

// Overlay is a no-op in headless builds (testing, CI, or any environment
// without a display), mirroring the teacher's debug_overlay_headless.go.
type Overlay struct{}

// BreakEvent mirrors the non-headless type so callers compile unchanged.
type BreakEvent struct {
	ThreadID uint32
	Addr     robodbg.Address
	Hardware bool
}

func New(dbg *robodbg.Debugger) *Overlay { return &Overlay{} }

func (o *Overlay) Notify(ev BreakEvent)         {}
func (o *Overlay) ListenForBreaks()             {}
func (o *Overlay) Active() bool                 { return false }
func (o *Overlay) ExecuteCommand(s string) bool { return false }
func (o *Overlay) HandleInput() bool            { return false }
