// Package handlers implements the host actions behind every bridge route.
//
// Handlers decode their body, act on a collaborator (window state, a
// filesystem, the overlay SDK, the host OS) and return either response data
// or an error. They never write to the connection themselves.
package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/overlay/internal/bridge"
	"github.com/gogpu/overlay/internal/overlaysdk"
	"github.com/gogpu/overlay/internal/window"
	"github.com/spf13/afero"
)

// ErrMissingField is returned when a required body field is absent.
var ErrMissingField = errors.New("missing required field")

func missing(name string) error {
	return fmt.Errorf("%w %q", ErrMissingField, name)
}

// Launcher opens paths with the host's default applications.
type Launcher interface {
	Open(ctx context.Context, path string) error
	Reveal(ctx context.Context, path string) error
}

// Deps are the collaborators the handlers act on. Nil collaborators make the
// routes that need them fail with an error.
type Deps struct {
	Windows  *window.Manager
	FS       afero.Fs
	Paths    PathConfig
	SDK      overlaysdk.Service
	Launcher Launcher

	// Adapter describes the GPU adapter for /engine. Nil when the render
	// domain is not running.
	Adapter func() gpucontext.AdapterInfo

	// Exit terminates the process. It runs after the /exit response has been
	// written.
	Exit func(code int)

	// Version is reported by /infos.
	Version string
}

// Register adds every host action route to r.
func Register(r *bridge.Router, d Deps) {
	if d.FS == nil {
		d.FS = afero.NewOsFs()
	}
	h := &host{deps: d}

	registerWindow(r, h)
	registerFS(r, h)
	registerDialog(r)

	r.Handle("/paths", h.paths)
	r.Handle("/open", h.open)
	r.Handle("/show-in-explorer", h.showInExplorer)
	r.Handle("/run", h.run)
	r.Handle("/engine", h.engine)
	r.Handle("/infos", h.infos)
	r.Handle("/exit", h.exit)
	r.Handle("/steam/raw", h.steamRaw)

	slogger().Debug("handlers: registered", "routes", len(r.Routes()))
}

type host struct {
	deps Deps
}

// bind decodes the request body into a new T.
func bind[T any](req *bridge.Request) (T, error) {
	var v T
	err := req.Decode(&v)
	return v, err
}

// required returns *v or a missing-field error naming the field.
func required[T any](name string, v *T) (T, error) {
	if v == nil {
		var zero T
		return zero, missing(name)
	}
	return *v, nil
}
