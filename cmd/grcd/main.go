package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/yokoszn/CreatureGRC/internal/app"
	"github.com/yokoszn/CreatureGRC/internal/config"
	httpinfra "github.com/yokoszn/CreatureGRC/internal/infra/http"
	"github.com/yokoszn/CreatureGRC/internal/infra/inbox"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.FromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	defer a.Close()

	if cfg.InboxDir != "" {
		proc := &inbox.Processor{Root: cfg.InboxDir, Store: a.Evidence}
		watcher := inbox.NewWatcher(cfg.InboxDir, cfg.InboxWorkers, proc.Handle)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				log.Printf("inbox watcher stopped: %v", err)
			}
		}()
		log.Printf("watching %s for manual evidence", cfg.InboxDir)
	}

	srv := httpinfra.NewServer(cfg, httpinfra.ServerDeps{
		Evidence:  a.Evidence,
		Scheduler: a.Scheduler,
		Assembler: a.Assembler,
		Packages:  a.Packages,
		Mode:      a.Mode,
	})
	log.Printf("grcd listening on %s (%s mode)", cfg.HTTPAddr, a.Mode)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
