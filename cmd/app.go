package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/tanq16/pullq/internal/config"
	"github.com/tanq16/pullq/internal/downloaders"
	"github.com/tanq16/pullq/internal/downloaders/ghrelease"
	"github.com/tanq16/pullq/internal/downloaders/hls"
	pullhttp "github.com/tanq16/pullq/internal/downloaders/http"
	s3fetch "github.com/tanq16/pullq/internal/downloaders/s3"
	"github.com/tanq16/pullq/internal/downloaders/simulated"
	"github.com/tanq16/pullq/internal/engine"
	"github.com/tanq16/pullq/internal/output"
	"github.com/tanq16/pullq/internal/queue"
	"github.com/tanq16/pullq/internal/scheduler"
	"github.com/tanq16/pullq/internal/sink"
	"github.com/tanq16/pullq/internal/store"
	"github.com/tanq16/pullq/internal/utils"
	"golang.org/x/term"
)

// simulatedDelay paces simulated reads so progress is visible.
const simulatedDelay = 20 * time.Millisecond

type app struct {
	store   *store.SQLite
	queue   *queue.Service
	surface output.Surface
	manager *output.Manager
	stopSig func()
}

// newApp opens the store and wires the run pipeline. The terminal manager is
// used when stdout is a terminal; logs then go to a file in the output dir.
func newApp(c *config.Config) (*app, error) {
	st, err := store.Open(c.DBPath)
	if err != nil {
		return nil, err
	}
	a := &app{store: st}
	if term.IsTerminal(int(os.Stdout.Fd())) {
		logPath := filepath.Join(c.OutputDir, utils.LogFile)
		if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
			utils.SetLogOutput(f)
		}
		a.manager = output.NewManager(os.Stdout)
		a.surface = a.manager
	} else {
		a.surface = output.NewLogObserver()
	}

	engineOpts := engine.DefaultOptions()
	engineOpts.MaxConcurrent = c.MaxConcurrent
	engineOpts.MaxPasses = c.MaxPasses
	engineOpts.PassBackoff = c.PassBackoff.Duration
	orchestrator := engine.New(st, buildFetcher(c), sink.NewFiles(c.OutputDir), a.surface, engineOpts)

	schedOpts := scheduler.DefaultOptions()
	schedOpts.RunTimeout = c.RunTimeout.Duration
	schedOpts.RunRetries = c.RunRetries
	sched := scheduler.New(orchestrator, schedOpts)
	a.queue = queue.NewService(st, sched)
	return a, nil
}

func buildFetcher(c *config.Config) *downloaders.Registry {
	registry := downloaders.NewRegistry()
	sim := simulated.New(simulatedDelay)
	registry.Register(sim, "sim")
	if c.Simulate {
		registry.Register(sim, "http", "https", "s3", "hls", "ghrelease")
		return registry
	}
	client := utils.NewHTTPClient(httpClientConfig(c))
	web := pullhttp.NewFetcher(client, c.HTTP.Method)
	stream := hls.NewFetcher(client)
	registry.Register(web, "http", "https")
	registry.Register(stream, "hls")
	registry.RegisterExtension(stream, ".m3u8")
	registry.Register(ghrelease.NewFetcher(client, pullhttp.NewFetcher(client, "")), "ghrelease")
	registry.Register(s3fetch.NewFetcher(c.S3.Profile, c.S3.Region), "s3")
	return registry
}

// startDisplay shows progress and turns SIGINT/SIGTERM into a run cancel.
func (a *app) startDisplay() {
	if a.manager != nil {
		a.manager.StartDisplay()
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
			a.surface.RequestCancel()
		case <-done:
		}
	}()
	a.stopSig = func() {
		signal.Stop(sigCh)
		close(done)
	}
}

func (a *app) stopDisplay() {
	if a.stopSig != nil {
		a.stopSig()
	}
	if a.manager != nil {
		a.manager.StopDisplay()
	}
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error closing store: %v\n", err)
	}
}

func mustApp() *app {
	a, err := newApp(cfg)
	if err != nil {
		output.PrintError(fmt.Sprintf("Error opening queue: %v", err))
		os.Exit(1)
	}
	return a
}
