// igbot — Instagram DM chat-bot shell.
//
// Wires the client facade, module pipeline, scheduler, console, and gateway
// API together around a shared domain event bus. The Instagram private-API
// wrapper itself is supplied by the embedding application; without one the
// binary runs against the in-memory fake, which is enough for the console
// and gateway to be exercised end to end.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/openig/igbot/pkg/api"
	"github.com/openig/igbot/pkg/client"
	"github.com/openig/igbot/pkg/config"
	"github.com/openig/igbot/pkg/console"
	"github.com/openig/igbot/pkg/domain"
	"github.com/openig/igbot/pkg/igclient"
	"github.com/openig/igbot/pkg/infrastructure/eventbus"
	"github.com/openig/igbot/pkg/logger"
	"github.com/openig/igbot/pkg/modules"
	"github.com/openig/igbot/pkg/scheduler"
	"github.com/openig/igbot/pkg/session"
)

// newAPI builds the private-API client. Embedders replace this with a factory
// for the real wrapper; the default fake keeps the shell runnable offline.
var newAPI = func(cfg *config.Config) igclient.API {
	fake := igclient.NewFake()
	fake.SeedThread(igclient.ThreadInfo{
		ThreadID: "demo",
		Title:    "demo thread",
		UserPKs:  []string{"7"},
		Users:    []igclient.UserInfo{{PK: "7", Username: "demo_user"}},
	})
	return fake
}

func main() {
	configPath := flag.String("config", "igbot.yaml", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "igbot:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Initialize(cfg.LogLevel); err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := eventbus.New()
	defer bus.Close()

	store, err := session.Open(cfg.Session.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	cl := client.New(newAPI(cfg), bus, store, cfg)
	if err := cl.Login(ctx, cfg.Username, cfg.Password); err != nil {
		return err
	}
	if err := cl.Connect(ctx); err != nil {
		return err
	}
	defer cl.Disconnect(context.Background())

	mgr := modules.NewManager(bus, cfg.Modules.Prefix)
	for _, mod := range []modules.Module{
		modules.PingModule{},
		modules.EchoModule{},
		modules.NewHelpModule(mgr),
	} {
		if err := mgr.Register(mod); err != nil {
			return err
		}
	}
	mgr.SetSelf(cl.SelfID())
	mgr.Start()
	defer mgr.Stop()

	sched := scheduler.New(bus, cl, cfg.Scheduler.Jobs)
	sched.Start()
	defer sched.Stop()

	var gateway *api.Server
	if cfg.Gateway.Enabled {
		gateway = api.NewServer(cfg, cl, mgr, sched, bus)
		if err := gateway.Start(ctx); err != nil {
			return err
		}
		defer gateway.Stop()
	}

	if cfg.Console.Enabled {
		console.New(cl, cfg.Console.DefaultChatID).RunBackground(ctx)
	}

	bus.Publish(domain.NewEvent(domain.EventSystemStartup, cl.SelfID(), nil))
	logger.InfoCF("main", "igbot is up", map[string]interface{}{
		"user":    cl.Status().Username,
		"gateway": cfg.Gateway.Enabled,
		"console": cfg.Console.Enabled,
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.InfoC("main", "Shutting down")
	bus.Publish(domain.NewEvent(domain.EventSystemShutdown, cl.SelfID(), nil))
	return nil
}
