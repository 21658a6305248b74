// Package overlaysdk models the external platform overlay SDK (store
// overlay, friends presence, raw SDK calls) as a service the host action
// handlers call into.
package overlaysdk

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownMethod is returned by Call for a namespace/method pair the
// service does not implement.
var ErrUnknownMethod = errors.New("overlaysdk: unknown method")

// PersonaState is the online state of a friend.
type PersonaState int

const (
	PersonaOffline PersonaState = iota
	PersonaOnline
	PersonaBusy
	PersonaAway
)

func (s PersonaState) String() string {
	switch s {
	case PersonaOffline:
		return "offline"
	case PersonaOnline:
		return "online"
	case PersonaBusy:
		return "busy"
	case PersonaAway:
		return "away"
	default:
		return fmt.Sprintf("PersonaState(%d)", int(s))
	}
}

// PresenceEvent reports a persona state change.
type PresenceEvent struct {
	SteamID string
	Name    string
	State   PersonaState
}

// Service is the overlay SDK surface used by the runtime.
type Service interface {
	// ActivateOverlay opens the named overlay dialog. It does not wait for
	// the overlay to appear.
	ActivateOverlay(dialog string)

	// OnPresence registers fn for presence events and returns a function
	// that removes it.
	OnPresence(fn func(PresenceEvent)) (unsubscribe func())

	// Call invokes a raw SDK method.
	Call(ctx context.Context, namespace, method string, args []any) (any, error)
}

// Player identifies the local user.
type Player struct {
	SteamID string
	Name    string
	Level   int
}

// Local is an in-process Service. It keeps the local player, records overlay
// activations and lets the host publish presence events.
type Local struct {
	mu          sync.Mutex
	player      Player
	activations []string
	nextID      int
	listeners   map[int]func(PresenceEvent)
}

var _ Service = (*Local)(nil)

// NewLocal returns a Local service for player.
func NewLocal(player Player) *Local {
	return &Local{player: player, listeners: make(map[int]func(PresenceEvent))}
}

// ActivateOverlay records dialog.
func (l *Local) ActivateOverlay(dialog string) {
	l.mu.Lock()
	l.activations = append(l.activations, dialog)
	l.mu.Unlock()
}

// Activations returns the dialogs activated so far, oldest first.
func (l *Local) Activations() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.activations...)
}

// OnPresence registers fn.
func (l *Local) OnPresence(fn func(PresenceEvent)) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.listeners[id] = fn
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.listeners, id)
			l.mu.Unlock()
		})
	}
}

// Publish delivers ev to every registered listener.
func (l *Local) Publish(ev PresenceEvent) {
	l.mu.Lock()
	fns := make([]func(PresenceEvent), 0, len(l.listeners))
	for _, fn := range l.listeners {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Call answers the localplayer and overlay namespaces.
func (l *Local) Call(ctx context.Context, namespace, method string, args []any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch namespace + "." + method {
	case "localplayer.getSteamId":
		return l.player.SteamID, nil
	case "localplayer.getName":
		return l.player.Name, nil
	case "localplayer.getLevel":
		return l.player.Level, nil
	case "overlay.activate", "overlay.activateDialog":
		dialog, err := stringArg(args, 0)
		if err != nil {
			return nil, err
		}
		l.ActivateOverlay(dialog)
		return nil, nil
	case "overlay.activateToWebPage":
		url, err := stringArg(args, 0)
		if err != nil {
			return nil, err
		}
		l.ActivateOverlay("webpage:" + url)
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrUnknownMethod, namespace, method)
}

func stringArg(args []any, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("overlaysdk: missing argument %d", i)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("overlaysdk: argument %d: want string, got %T", i, args[i])
	}
	return s, nil
}
