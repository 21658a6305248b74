package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/gogpu/overlay/internal/bridge"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// EngineName is reported by /engine.
const EngineName = "gogpu"

func (h *host) engine(context.Context, *bridge.Request) (any, error) {
	data := map[string]any{"engine": EngineName}
	if h.deps.Adapter != nil {
		info := h.deps.Adapter()
		data["adapter"] = info.Name
		data["adapterType"] = info.Type.String()
	}
	return data, nil
}

func (h *host) infos(context.Context, *bridge.Request) (any, error) {
	return map[string]any{
		"arch":     runtime.GOARCH,
		"platform": cases.Title(language.English).String(runtime.GOOS),
		"version":  h.deps.Version,
		"locale":   hostLocale(os.Getenv).String(),
	}, nil
}

// hostLocale derives a BCP 47 tag from the POSIX locale variables, e.g.
// "en_US.UTF-8" becomes en-US. It returns language.Und when none parse.
func hostLocale(getenv func(string) string) language.Tag {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		v := getenv(key)
		if v == "" || v == "C" || v == "POSIX" {
			continue
		}
		if i := strings.IndexAny(v, ".@"); i >= 0 {
			v = v[:i]
		}
		tag, err := language.Parse(strings.ReplaceAll(v, "_", "-"))
		if err == nil {
			return tag
		}
	}
	return language.Und
}

type runBody struct {
	Command *string           `json:"command"`
	Args    []string          `json:"args"`
	Cwd     string            `json:"cwd"`
	Env     map[string]string `json:"env"`
}

func (h *host) run(ctx context.Context, req *bridge.Request) (any, error) {
	b, err := bind[runBody](req)
	if err != nil {
		return nil, err
	}
	command, err := required("command", b.Command)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, command, b.Args...)
	cmd.Dir = b.Cwd
	if len(b.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range b.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	code := 0
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("run %s: %w", command, err)
		}
		code = exitErr.ExitCode()
	}
	slogger().Debug("handlers: command finished", "command", command, "code", code)
	return map[string]any{
		"stdout": stdout.String(),
		"stderr": stderr.String(),
		"code":   code,
	}, nil
}

type exitBody struct {
	Code int `json:"code"`
}

func (h *host) exit(_ context.Context, req *bridge.Request) (any, error) {
	b, err := bind[exitBody](req)
	if err != nil {
		return nil, err
	}
	if h.deps.Exit == nil {
		return nil, errors.New("exit not supported")
	}
	slogger().Info("handlers: exit requested", "code", b.Code)
	return bridge.Then(nil, func() { h.deps.Exit(b.Code) }), nil
}

func (h *host) open(ctx context.Context, req *bridge.Request) (any, error) {
	_, path, err := bindPath(req)
	if err != nil {
		return nil, err
	}
	if h.deps.Launcher == nil {
		return nil, errors.New("launcher not available")
	}
	return nil, h.deps.Launcher.Open(ctx, path)
}

func (h *host) showInExplorer(ctx context.Context, req *bridge.Request) (any, error) {
	_, path, err := bindPath(req)
	if err != nil {
		return nil, err
	}
	if h.deps.Launcher == nil {
		return nil, errors.New("launcher not available")
	}
	return nil, h.deps.Launcher.Reveal(ctx, path)
}

// SystemLauncher opens paths with the platform's opener command.
type SystemLauncher struct{}

// Open opens path with its default application.
func (SystemLauncher) Open(ctx context.Context, path string) error {
	name, args := openerCommand(runtime.GOOS, path, false)
	return exec.CommandContext(ctx, name, args...).Start()
}

// Reveal shows path in the file manager.
func (SystemLauncher) Reveal(ctx context.Context, path string) error {
	name, args := openerCommand(runtime.GOOS, path, true)
	return exec.CommandContext(ctx, name, args...).Start()
}

func openerCommand(goos, path string, reveal bool) (string, []string) {
	switch goos {
	case "windows":
		if reveal {
			return "explorer", []string{"/select," + path}
		}
		return "rundll32", []string{"url.dll,FileProtocolHandler", path}
	case "darwin":
		if reveal {
			return "open", []string{"-R", path}
		}
		return "open", []string{path}
	default:
		if reveal {
			// xdg-open has no select mode; open the containing folder.
			path = parentDir(path)
		}
		return "xdg-open", []string{path}
	}
}

func parentDir(path string) string {
	i := strings.LastIndexAny(path, `/\`)
	if i <= 0 {
		return "."
	}
	return path[:i]
}

func registerDialog(r *bridge.Router) {
	canceled := func(context.Context, *bridge.Request) (any, error) {
		return map[string]any{"canceled": true, "paths": []string{}}, nil
	}
	r.Handle("/dialog/folder", canceled)
	r.Handle("/dialog/open", canceled)
	r.Handle("/dialog/save", func(context.Context, *bridge.Request) (any, error) {
		return map[string]any{"canceled": true, "path": ""}, nil
	})
}

type steamBody struct {
	Namespace *string `json:"namespace"`
	Method    *string `json:"method"`
	Args      []any   `json:"args"`
}

func (h *host) steamRaw(ctx context.Context, req *bridge.Request) (any, error) {
	b, err := bind[steamBody](req)
	if err != nil {
		return nil, err
	}
	ns, err := required("namespace", b.Namespace)
	if err != nil {
		return nil, err
	}
	method, err := required("method", b.Method)
	if err != nil {
		return nil, err
	}
	if h.deps.SDK == nil {
		return nil, errors.New("overlay sdk not available")
	}

	if ns == "overlay" && (method == "activate" || method == "activateToWebPage") {
		if len(b.Args) == 0 {
			return nil, missing("args")
		}
		arg, ok := b.Args[0].(string)
		if !ok {
			return nil, fmt.Errorf("overlay.%s: want string argument, got %T", method, b.Args[0])
		}
		dialog := arg
		if method == "activateToWebPage" {
			dialog = "webpage:" + arg
		}
		go h.deps.SDK.ActivateOverlay(dialog)
		return nil, nil
	}

	return h.deps.SDK.Call(ctx, ns, method, b.Args)
}
