package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hobob-dev/hobob/internal/bootconfig"
	"github.com/hobob-dev/hobob/internal/council"
	"github.com/hobob-dev/hobob/internal/persist"
	"github.com/hobob-dev/hobob/internal/schema"
)

func signalCancelContext() (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(context.Background())
	sigCh := make(chan os.Signal, 1)
	stopCh := make(chan struct{})
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for {
			select {
			case sig := <-sigCh:
				cancel(fmt.Errorf("stopped by signal %s", sig.String()))
			case <-stopCh:
				return
			}
		}
	}()
	cleanup := func() {
		signal.Stop(sigCh)
		close(stopCh)
		cancel(nil)
	}
	return ctx, cleanup
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "--version", "-v", "version":
		fmt.Println("hobobd dev")
		os.Exit(0)
	case "serve":
		serve(os.Args[2:])
	case "status":
		status(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  hobobd --version")
	fmt.Fprintln(os.Stderr, "  hobobd serve --config <config.yaml>")
	fmt.Fprintln(os.Stderr, "  hobobd status --config <config.yaml>")
}

func flagValue(args []string, name string) string {
	for i, a := range args {
		if a == name && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func loadConfig(path string) *bootconfig.Config {
	if path == "" {
		path = "hobobd.yaml"
	}
	cfg, err := bootconfig.Load(path, os.ReadFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hobobd:", err)
		os.Exit(1)
	}
	return cfg
}

func serve(args []string) {
	cfg := loadConfig(flagValue(args, "--config"))

	reg := schema.Default()
	logger := log.New(os.Stderr, "[hobobd] ", log.LstdFlags)

	seed := &council.RuntimeSeed{
		BucketMinGap:         cfg.Bucket.MinGap,
		BucketMinChangeGap:   cfg.Bucket.MinChangeGap,
		BucketGap:            cfg.Bucket.Gap,
		DumpTimeoutMin:       int64(cfg.Persistence.DumpTimeoutMin),
		VlogDumpGapSec:       int64(cfg.Persistence.VlogDumpGapSec),
		BackupKeep:           int64(cfg.Persistence.BackupKeep),
		LogFilterMaxLevel:    cfg.LogFilter.MaxLevel,
		LogFilterBufferLines: cfg.LogFilter.BufferLines,
		LogFilterFitLines:    cfg.LogFilter.FitLines,
	}

	c, err := council.Open(cfg.Persistence.Path, reg, logger, seed)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hobobd: open:", err)
		os.Exit(1)
	}

	ctx, cleanup := signalCancelContext()
	defer cleanup()

	done := make(chan struct{})
	go func() {
		c.Run()
		close(done)
	}()

	logChair := c.NewChair()
	logChair.Log(2, "hobobd started")

	select {
	case <-ctx.Done():
		logger.Printf("shutting down: %v", context.Cause(ctx))
	case <-done:
		logger.Printf("bus loop exited")
	}

	logChair.Release()
	c.Close()

	select {
	case <-c.Closed():
	case <-time.After(10 * time.Second):
		logger.Printf("timed out waiting for graceful close")
	}

	if cfg.Persistence.BackupKeep > 0 {
		if err := persist.Sweep(cfg.Persistence.Path, cfg.Persistence.BackupKeep); err != nil {
			logger.Printf("retention sweep: %v", err)
		}
	}
}

func status(args []string) {
	cfg := loadConfig(flagValue(args, "--config"))

	b, err := persist.Load(cfg.Persistence.Path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hobobd: load:", err)
		os.Exit(1)
	}

	out := map[string]any{
		"subjects": b.UpByFid.Len(),
		"groups":   b.GroupInfo.Len(),
		"closing":  b.IsClosing(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}
