// Package main is the wampd entry point: it loads configuration, builds a
// Router over the configured realms, and starts a Server listening on
// every configured transport until an OS signal asks it to stop.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tenzoki/wampcore/internal/config"
	"github.com/tenzoki/wampcore/internal/handshake"
	"github.com/tenzoki/wampcore/internal/router"
	"github.com/tenzoki/wampcore/internal/server"
)

// main starts wampd. Configuration source priority: a config file path
// given as the sole command-line argument, then config/wampd.yaml in the
// working directory, then built-in defaults.
func main() {
	var cfg *config.Config
	var configSource string

	switch {
	case len(os.Args) >= 2:
		loaded, err := config.Load(os.Args[1])
		if err != nil {
			log.Fatalf("failed to load config from %s: %v", os.Args[1], err)
		}
		cfg = loaded
		configSource = fmt.Sprintf("config file: %s", os.Args[1])

	default:
		if _, err := os.Stat("config/wampd.yaml"); err == nil {
			loaded, err := config.Load("config/wampd.yaml")
			if err != nil {
				log.Printf("config/wampd.yaml exists but failed to load: %v", err)
				cfg = defaultConfig()
				configSource = "built-in defaults (config/wampd.yaml failed to parse)"
			} else {
				cfg = loaded
				configSource = "config/wampd.yaml"
			}
		} else {
			cfg = defaultConfig()
			configSource = "built-in defaults"
		}
	}

	log.Printf("starting %s using %s", cfg.AppName, configSource)
	if cfg.Debug {
		log.Printf("debug logging enabled")
	}

	r := router.New(cfg.RealmNames()...)
	s := server.New(r)
	s.Auth = handshake.AnonymousAuthenticator{}
	s.Debug = cfg.Debug

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Run(ctx, cfg.Listeners)
	}()

	for _, l := range cfg.Listeners {
		log.Printf("listening: %s/%s on %s", l.Protocol, l.Network, l.Address)
	}
	for _, name := range cfg.RealmNames() {
		log.Printf("realm configured: %s", name)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("received signal %s, shutting down", sig)
	case err := <-errCh:
		if err != nil {
			log.Printf("server error: %v", err)
		}
	}

	cancel()

	select {
	case <-errCh:
	case <-time.After(time.Duration(cfg.AwaitGoodbyeSeconds) * time.Second):
		log.Printf("shutdown timeout exceeded")
	}

	log.Printf("wampd stopped")
}

// defaultConfig returns the hardcoded fallback used when no config file is
// available: one raw-socket listener on :8080 and a single anonymous
// realm.
func defaultConfig() *config.Config {
	return &config.Config{
		AppName:             "wampd",
		Debug:               true,
		Listeners:           []config.ListenerConfig{{Protocol: "rawsocket", Network: "tcp", Address: ":8080"}},
		Realms:              []config.RealmConfig{{Name: "realm1", Anonymous: true}},
		AwaitGoodbyeSeconds: 10,
	}
}
