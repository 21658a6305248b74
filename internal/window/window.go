// Package window holds the state of the overlay's top-level window as seen
// by the runtime. The state is exposed through the gpucontext window
// interfaces; size changes are fanned out to resize callbacks, which is how
// the surface lifecycle manager learns about them.
package window

import (
	"errors"
	"sync"

	"github.com/gogpu/gpucontext"
)

// ErrNotFound is returned when no window is attached or it was closed.
var ErrNotFound = errors.New("window: not found")

// Mode is the display mode of a window.
type Mode int

const (
	ModeNormal Mode = iota
	ModeFullscreen
)

// State is a snapshot of a window.
type State struct {
	Title       string
	X, Y        int
	Width       int
	Height      int
	MinWidth    int
	MinHeight   int
	MaxWidth    int
	MaxHeight   int
	Scale       float64
	Mode        Mode
	Maximized   bool
	Minimized   bool
	Resizable   bool
	AlwaysOnTop bool
	Frameless   bool
	DevTools    bool
	Attention   bool
	Closed      bool
}

// Window is a mutex-guarded window state.
type Window struct {
	// notifyMu orders size changes with their callbacks: a resize is not
	// applied until the previous one has been delivered.
	notifyMu sync.Mutex

	mu       sync.Mutex
	st       State
	hitTest  gpucontext.HitTestCallback
	onResize []func(width, height int)
	redraws  int
}

var (
	_ gpucontext.WindowProvider = (*Window)(nil)
	_ gpucontext.WindowChrome   = (*Window)(nil)
)

// New returns a visible, resizable window of the given size.
func New(title string, width, height int) *Window {
	return &Window{st: State{
		Title:     title,
		Width:     width,
		Height:    height,
		Scale:     1,
		Resizable: true,
	}}
}

// State returns a copy of the window state.
func (w *Window) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.st
}

// Size returns the client area size.
func (w *Window) Size() (width, height int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.st.Width, w.st.Height
}

// ScaleFactor returns the DPI scale factor.
func (w *Window) ScaleFactor() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.st.Scale
}

// RequestRedraw counts redraw requests. The render loop ticks continuously,
// so nothing else happens.
func (w *Window) RequestRedraw() {
	w.mu.Lock()
	w.redraws++
	w.mu.Unlock()
}

// OnResize registers fn to be called after every size change.
func (w *Window) OnResize(fn func(width, height int)) {
	w.mu.Lock()
	w.onResize = append(w.onResize, fn)
	w.mu.Unlock()
}

// SetSize resizes the client area, honouring the minimum and maximum size
// constraints, and notifies resize callbacks if the size changed.
func (w *Window) SetSize(width, height int) {
	w.resize(func(*State) (int, int) { return width, height })
}

// SetWidth changes only the width.
func (w *Window) SetWidth(width int) {
	w.resize(func(st *State) (int, int) { return width, st.Height })
}

// SetHeight changes only the height.
func (w *Window) SetHeight(height int) {
	w.resize(func(st *State) (int, int) { return st.Width, height })
}

// resize computes the new size from the current state with fn and delivers
// it to the resize callbacks before any later resize is applied. Callbacks
// may read the window but must not resize it.
func (w *Window) resize(fn func(st *State) (width, height int)) {
	w.notifyMu.Lock()
	defer w.notifyMu.Unlock()

	w.mu.Lock()
	width, height := fn(&w.st)
	width = constrain(width, w.st.MinWidth, w.st.MaxWidth)
	height = constrain(height, w.st.MinHeight, w.st.MaxHeight)
	changed := width != w.st.Width || height != w.st.Height
	w.st.Width, w.st.Height = width, height
	callbacks := w.onResize
	w.mu.Unlock()

	if changed {
		for _, fn := range callbacks {
			fn(width, height)
		}
	}
}

// constrain clamps v into [lo, hi]; a zero bound is unset.
func constrain(v, lo, hi int) int {
	if lo > 0 && v < lo {
		v = lo
	}
	if hi > 0 && v > hi {
		v = hi
	}
	return v
}

// SetMinimumSize sets the minimum size and grows the window to it if needed.
func (w *Window) SetMinimumSize(width, height int) {
	w.resize(func(st *State) (int, int) {
		st.MinWidth, st.MinHeight = width, height
		return st.Width, st.Height
	})
}

// SetMaximumSize sets the maximum size and shrinks the window to it if needed.
func (w *Window) SetMaximumSize(width, height int) {
	w.resize(func(st *State) (int, int) {
		st.MaxWidth, st.MaxHeight = width, height
		return st.Width, st.Height
	})
}

func (w *Window) update(fn func(st *State)) {
	w.mu.Lock()
	fn(&w.st)
	w.mu.Unlock()
}

// SetTitle sets the title.
func (w *Window) SetTitle(title string) { w.update(func(st *State) { st.Title = title }) }

// SetPosition moves the window.
func (w *Window) SetPosition(x, y int) { w.update(func(st *State) { st.X, st.Y = x, y }) }

// SetX moves the window horizontally.
func (w *Window) SetX(x int) { w.update(func(st *State) { st.X = x }) }

// SetY moves the window vertically.
func (w *Window) SetY(y int) { w.update(func(st *State) { st.Y = y }) }

// SetResizable sets whether the user may resize the window.
func (w *Window) SetResizable(v bool) { w.update(func(st *State) { st.Resizable = v }) }

// SetAlwaysOnTop keeps the window above others.
func (w *Window) SetAlwaysOnTop(v bool) { w.update(func(st *State) { st.AlwaysOnTop = v }) }

// ShowDevTools toggles the developer tools.
func (w *Window) ShowDevTools(v bool) { w.update(func(st *State) { st.DevTools = v }) }

// RequestAttention flags the window until it is restored or focused.
func (w *Window) RequestAttention() { w.update(func(st *State) { st.Attention = true }) }

// SetScaleFactor sets the DPI scale factor.
func (w *Window) SetScaleFactor(s float64) { w.update(func(st *State) { st.Scale = s }) }

// SetFrameless enables or disables frameless mode.
func (w *Window) SetFrameless(v bool) { w.update(func(st *State) { st.Frameless = v }) }

// IsFrameless reports frameless mode.
func (w *Window) IsFrameless() bool { return w.State().Frameless }

// SetHitTestCallback stores the hit-test callback used in frameless mode.
func (w *Window) SetHitTestCallback(cb gpucontext.HitTestCallback) {
	w.mu.Lock()
	w.hitTest = cb
	w.mu.Unlock()
}

// HitTest runs the hit-test callback, or reports the client area.
func (w *Window) HitTest(x, y float64) gpucontext.HitTestResult {
	w.mu.Lock()
	cb := w.hitTest
	w.mu.Unlock()
	if cb == nil {
		return gpucontext.HitTestClient
	}
	return cb(x, y)
}

// Minimize minimizes the window.
func (w *Window) Minimize() { w.update(func(st *State) { st.Minimized = true }) }

// Maximize toggles between maximized and restored.
func (w *Window) Maximize() {
	w.update(func(st *State) {
		st.Maximized = !st.Maximized
		st.Minimized = false
	})
}

// Unmaximize leaves the maximized state.
func (w *Window) Unmaximize() { w.update(func(st *State) { st.Maximized = false }) }

// Restore leaves the minimized and maximized states and clears attention.
func (w *Window) Restore() {
	w.update(func(st *State) {
		st.Minimized = false
		st.Maximized = false
		st.Attention = false
	})
}

// IsMaximized reports the maximized state.
func (w *Window) IsMaximized() bool { return w.State().Maximized }

// SetFullscreen switches between fullscreen and normal mode.
func (w *Window) SetFullscreen(v bool) {
	w.update(func(st *State) {
		st.Mode = ModeNormal
		if v {
			st.Mode = ModeFullscreen
		}
	})
}

// IsFullscreen reports fullscreen mode.
func (w *Window) IsFullscreen() bool { return w.State().Mode == ModeFullscreen }

// Close marks the window closed.
func (w *Window) Close() { w.update(func(st *State) { st.Closed = true }) }

// Manager resolves the window that host actions target.
type Manager struct {
	mu   sync.RWMutex
	main *Window
}

// NewManager returns a manager targeting main, which may be nil.
func NewManager(main *Window) *Manager {
	return &Manager{main: main}
}

// Attach replaces the main window.
func (m *Manager) Attach(w *Window) {
	m.mu.Lock()
	m.main = w
	m.mu.Unlock()
}

// Main returns the main window, or ErrNotFound if there is none or it has
// been closed.
func (m *Manager) Main() (*Window, error) {
	m.mu.RLock()
	w := m.main
	m.mu.RUnlock()
	if w == nil || w.State().Closed {
		return nil, ErrNotFound
	}
	return w, nil
}
