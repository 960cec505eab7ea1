/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/prism/engine"
	"github.com/spaghettifunk/prism/engine/config"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/testbed"
)

func main() {
	configPath := flag.String("config", "prism.toml", "path to the engine configuration")
	backend := flag.String("backend", "", "overrides the configured backend (opengl, vulkan, headless)")
	frames := flag.Uint64("frames", 0, "stops after this many frames, 0 runs until closed")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if errors.Is(err, fs.ErrNotExist) {
		core.LogWarn("no configuration at %s, using defaults", *configPath)
		cfg, err = config.Default(), nil
	}
	if err != nil {
		core.LogFatal("failed to load configuration: %s", err)
	}
	if *backend != "" {
		cfg.Application.Backend = *backend
	}
	if *frames > 0 {
		cfg.Application.MaxFrames = *frames
	}

	tb := testbed.NewTestGame(cfg)

	e, err := engine.New(tb.Game)
	if err != nil {
		core.LogFatal("failed to create the engine: %s", err)
	}
	if err := e.Initialize(); err != nil {
		core.LogFatal("failed to initialize the engine: %s", err)
	}

	// capture sigterm and other system calls
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	runErr := e.Run(ctx)
	if err := e.Shutdown(); err != nil {
		core.LogError("shutdown: %s", err)
	}
	if runErr != nil {
		if core.IsFatal(runErr) {
			core.LogFatal("engine aborted: %s", runErr)
		}
		core.LogError("engine stopped: %s", runErr)
		os.Exit(1)
	}
}
