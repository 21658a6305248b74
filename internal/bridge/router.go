package bridge

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
)

// HandlerFunc handles one request. The returned value becomes the response
// data; a non-nil error becomes the response error.
type HandlerFunc func(ctx context.Context, req *Request) (any, error)

// Router maps routes to handlers by exact string match.
type Router struct {
	mu     sync.RWMutex
	routes map[string]HandlerFunc
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{routes: make(map[string]HandlerFunc)}
}

// Handle registers h for route, replacing any previous handler.
func (r *Router) Handle(route string, h HandlerFunc) {
	r.mu.Lock()
	r.routes[route] = h
	r.mu.Unlock()
}

// Routes returns the registered routes in sorted order.
func (r *Router) Routes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.routes))
	for k := range r.routes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Dispatch runs the handler for req.URL. A panicking handler is reported as
// an error.
func (r *Router) Dispatch(ctx context.Context, req *Request) (data any, err error) {
	r.mu.RLock()
	h, ok := r.routes[req.URL]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnhandledRoute, req.URL)
	}

	defer func() {
		if p := recover(); p != nil {
			slogger().Error("bridge: handler panic", "route", req.URL, "panic", p, "stack", string(debug.Stack()))
			data, err = nil, fmt.Errorf("handler panic: %v", p)
		}
	}()
	return h(ctx, req)
}
