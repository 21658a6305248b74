// Package overlay is the runtime of a desktop overlay shell: a transparent,
// GPU-composited window whose UI is a web layer driving the host through a
// local WebSocket command bridge.
//
// # Overview
//
// A [Runtime] runs two independent domains:
//
//   - The render domain owns the GPU. Each tick it acquires a frame from the
//     window surface (or an offscreen texture), composites the latest UI
//     [Layer] over a clear color, optionally copies the frame back to host
//     memory, and presents it. A lost or outdated surface skips the frame and
//     is reconfigured; repeated losses stop the runtime.
//   - The command bridge accepts JSON requests of the form
//     {"url": "/route", "correlationId": ..., "body": {...}} and answers each
//     with {"url", "correlationId", "body": {"success", "data"|"error"}}.
//     Routes cover window control, the filesystem, host paths, process
//     launch and the overlay SDK.
//
// # Quick Start
//
//	cfg := config.DefaultConfig()
//	rt := overlay.New(cfg, overlay.WithWindowHandle(handle))
//	go func() {
//	    for fb := range rt.Frames() {
//	        consume(fb.Pix)
//	    }
//	}()
//	if err := rt.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	os.Exit(rt.ExitCode())
//
// # Logging
//
// Nothing is logged by default. [SetLogger] enables logging for the runtime,
// its sub-packages and the wgpu backend.
package overlay
