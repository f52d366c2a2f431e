package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/yokoszn/CreatureGRC/internal/activities"
	"github.com/yokoszn/CreatureGRC/internal/app"
	"github.com/yokoszn/CreatureGRC/internal/config"
	"github.com/yokoszn/CreatureGRC/internal/infra/metrics"
	"github.com/yokoszn/CreatureGRC/internal/workflows"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/worker"
)

func main() {
	cfg := config.FromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	defer a.Close()

	healthSrv := startHealthServer(cfg.HealthAddr, a.Mode, a.Metrics)
	defer func() {
		_ = healthSrv.Shutdown(context.Background())
	}()

	temporalClient, err := app.DialTemporal(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer temporalClient.Close()

	w := worker.New(temporalClient, cfg.TaskQueue, worker.Options{})
	register(w, a.Activities())

	go func() {
		<-ctx.Done()
		w.Stop()
	}()

	log.Printf("grc worker listening on task queue %s (%s mode, %d sources)", cfg.TaskQueue, a.Mode, len(a.Sources.Sources))
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker exited: %v", err)
	}
}

type registry interface {
	RegisterWorkflow(w interface{})
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}

func register(w registry, acts *activities.Activities) {
	w.RegisterWorkflow(workflows.EvidenceCollectionWorkflow)
	w.RegisterWorkflow(workflows.ControlTestingWorkflow)
	w.RegisterWorkflow(workflows.AuditPackageWorkflow)
	w.RegisterActivityWithOptions(acts.CollectSource, activity.RegisterOptions{Name: activities.CollectSourceActivityName})
	w.RegisterActivityWithOptions(acts.DueControls, activity.RegisterOptions{Name: activities.DueControlsActivityName})
	w.RegisterActivityWithOptions(acts.RunControlTest, activity.RegisterOptions{Name: activities.RunControlTestActivityName})
	w.RegisterActivityWithOptions(acts.RecordTestResult, activity.RegisterOptions{Name: activities.RecordTestResultActivityName})
	w.RegisterActivityWithOptions(acts.AssemblePackage, activity.RegisterOptions{Name: activities.AssemblePackageActivityName})
	w.RegisterActivityWithOptions(acts.Notify, activity.RegisterOptions{Name: activities.NotifyActivityName})
}

func startHealthServer(addr, mode string, m *metrics.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok " + mode))
	})
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("health server error: %v", err)
		}
	}()
	return srv
}
