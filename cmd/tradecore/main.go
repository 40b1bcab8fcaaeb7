// Command tradecore runs the signal-to-execution server: it loads
// configuration, wires every component via internal/app, and serves
// until it receives SIGINT/SIGTERM or a fatal error occurs.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"tradecore/internal/app"
	"tradecore/internal/config"
)

// Exit codes.
const (
	exitOK          = 0
	exitConfigError = 1
	exitBindFailure = 2
	exitFatalInit   = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := flag.String("config", "config.yaml", "path to config file")
	bind := flag.String("bind", "", "listen address, overrides config bind/api.addr")
	mode := flag.String("mode", "", "dev or prod, overrides config mode")
	flag.Parse()

	cfg, err := config.LoadFile(*cfgPath)
	if err != nil {
		log.Printf("warning: config file: %v, using defaults", err)
		cfg = config.Default()
		cfg.ApplyEnv()
	}

	if *bind != "" {
		cfg.Bind = *bind
		cfg.API.Addr = *bind
	}
	if *mode != "" {
		cfg.Mode = strings.ToLower(*mode)
	}

	if err := cfg.Validate(); err != nil {
		log.Printf("config error: %v", err)
		return exitConfigError
	}

	log.Printf("tradecore starting (trading_mode=%s mode=%s bind=%s)", cfg.TradingMode, cfg.Mode, cfg.API.Addr)

	a, err := app.New(cfg)
	if err != nil {
		log.Printf("initialization failed: %v", err)
		return exitFatalInit
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	if err := a.Run(ctx); err != nil {
		if errors.Is(err, app.ErrBindFailed) {
			log.Printf("bind failed: %v", err)
			return exitBindFailure
		}
		log.Printf("fatal: %v", err)
		return exitFatalInit
	}

	log.Println("shutdown complete")
	return exitOK
}
