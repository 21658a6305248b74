package handlers

import (
	"context"
	"fmt"

	"github.com/gogpu/overlay/internal/bridge"
	"github.com/gogpu/overlay/internal/window"
)

type boolValue struct {
	Value *bool `json:"value"`
}

type intValue struct {
	Value *int `json:"value"`
}

type stringValue struct {
	Value *string `json:"value"`
}

type sizeBody struct {
	Width  *int `json:"width"`
	Height *int `json:"height"`
}

// windowAction adapts fn, which acts on the main window, to a route handler.
func (h *host) windowAction(fn func(w *window.Window, req *bridge.Request) error) bridge.HandlerFunc {
	return func(_ context.Context, req *bridge.Request) (any, error) {
		if h.deps.Windows == nil {
			return nil, window.ErrNotFound
		}
		w, err := h.deps.Windows.Main()
		if err != nil {
			return nil, err
		}
		return nil, fn(w, req)
	}
}

func simple(fn func(w *window.Window)) func(*window.Window, *bridge.Request) error {
	return func(w *window.Window, _ *bridge.Request) error {
		fn(w)
		return nil
	}
}

func withBool(fn func(w *window.Window, v bool)) func(*window.Window, *bridge.Request) error {
	return func(w *window.Window, req *bridge.Request) error {
		b, err := bind[boolValue](req)
		if err != nil {
			return err
		}
		v, err := required("value", b.Value)
		if err != nil {
			return err
		}
		fn(w, v)
		return nil
	}
}

func withInt(fn func(w *window.Window, v int)) func(*window.Window, *bridge.Request) error {
	return func(w *window.Window, req *bridge.Request) error {
		b, err := bind[intValue](req)
		if err != nil {
			return err
		}
		v, err := required("value", b.Value)
		if err != nil {
			return err
		}
		fn(w, v)
		return nil
	}
}

func withSize(fn func(w *window.Window, width, height int)) func(*window.Window, *bridge.Request) error {
	return func(w *window.Window, req *bridge.Request) error {
		b, err := bind[sizeBody](req)
		if err != nil {
			return err
		}
		width, err := required("width", b.Width)
		if err != nil {
			return err
		}
		height, err := required("height", b.Height)
		if err != nil {
			return err
		}
		fn(w, width, height)
		return nil
	}
}

func setTitle(w *window.Window, req *bridge.Request) error {
	b, err := bind[stringValue](req)
	if err != nil {
		return err
	}
	title, err := required("value", b.Value)
	if err != nil {
		return err
	}
	w.SetTitle(title)
	return nil
}

func setFullscreen(w *window.Window, req *bridge.Request) error {
	b, err := bind[stringValue](req)
	if err != nil {
		return err
	}
	mode, err := required("value", b.Value)
	if err != nil {
		return err
	}
	switch mode {
	case "fullscreen":
		w.SetFullscreen(true)
	case "normal":
		w.SetFullscreen(false)
	default:
		return fmt.Errorf("invalid fullscreen mode %q", mode)
	}
	return nil
}

func registerWindow(r *bridge.Router, h *host) {
	routes := map[string]func(*window.Window, *bridge.Request) error{
		"/window/maximize":          simple((*window.Window).Maximize),
		"/window/minimize":          simple((*window.Window).Minimize),
		"/window/restore":           simple((*window.Window).Restore),
		"/window/unmaximize":        simple((*window.Window).Unmaximize),
		"/window/request-attention": simple((*window.Window).RequestAttention),
		"/window/set-always-on-top": withBool((*window.Window).SetAlwaysOnTop),
		"/window/set-resizable":     withBool((*window.Window).SetResizable),
		"/window/show-dev-tools":    withBool((*window.Window).ShowDevTools),
		"/window/set-width":         withInt((*window.Window).SetWidth),
		"/window/set-height":        withInt((*window.Window).SetHeight),
		"/window/set-x":             withInt((*window.Window).SetX),
		"/window/set-y":             withInt((*window.Window).SetY),
		"/window/set-minimum-size":  withSize((*window.Window).SetMinimumSize),
		"/window/set-maximum-size":  withSize((*window.Window).SetMaximumSize),
		"/window/set-title":         setTitle,
		"/window/set-fullscreen":    setFullscreen,
	}
	for route, fn := range routes {
		r.Handle(route, h.windowAction(fn))
	}
}
