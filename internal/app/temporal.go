package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/yokoszn/CreatureGRC/internal/config"
	"github.com/yokoszn/CreatureGRC/internal/workflows"

	"go.temporal.io/sdk/client"
	sdklog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/temporal"
)

const (
	CollectionScheduleID = "grc-evidence-collection"
	TestingScheduleID    = "grc-control-testing"
	PackageScheduleID    = "grc-audit-package"
)

// NewLogger returns the JSON slog logger handed to the Temporal client.
func NewLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

func DialTemporal(cfg config.Config) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
		Logger:    sdklog.NewStructuredLogger(NewLogger(cfg.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create temporal client: %w", err)
	}
	return c, nil
}

type ScheduleSet struct {
	Client    string
	Framework string
	// Cron expressions; empty fields fall back to daily collection at
	// 02:00, testing every six hours and a Monday 06:00 package.
	CollectionCron string
	TestingCron    string
	PackageCron    string
}

// Schedules builds the recurring workflow starts for cfg and sources.
func Schedules(cfg config.Config, sources config.Sources, set ScheduleSet) []client.ScheduleOptions {
	cron := func(v, def string) []string {
		if v == "" {
			v = def
		}
		return []string{v}
	}
	framework := set.Framework
	if framework == "" {
		framework = sources.Framework
	}
	collection := workflows.CollectionInput(sources, cfg.NotifyChannel)
	collection.Framework = framework

	opts := []client.ScheduleOptions{
		{
			ID:   CollectionScheduleID,
			Spec: client.ScheduleSpec{CronExpressions: cron(set.CollectionCron, "0 2 * * *")},
			Action: &client.ScheduleWorkflowAction{
				ID:        workflows.CollectionWorkflowID(framework),
				Workflow:  workflows.EvidenceCollectionWorkflow,
				Args:      []interface{}{collection},
				TaskQueue: cfg.TaskQueue,
			},
		},
		{
			ID:   TestingScheduleID,
			Spec: client.ScheduleSpec{CronExpressions: cron(set.TestingCron, "0 */6 * * *")},
			Action: &client.ScheduleWorkflowAction{
				ID:       workflows.ControlTestingWorkflowID(),
				Workflow: workflows.ControlTestingWorkflow,
				Args: []interface{}{workflows.ControlTestingInput{
					Limit:         cfg.DueLimit,
					NotifyChannel: cfg.NotifyChannel,
					AlertChannel:  cfg.NotifyAlertChannel,
				}},
				TaskQueue: cfg.TaskQueue,
			},
		},
	}
	if set.Client != "" {
		opts = append(opts, client.ScheduleOptions{
			ID:   PackageScheduleID,
			Spec: client.ScheduleSpec{CronExpressions: cron(set.PackageCron, "0 6 * * 1")},
			Action: &client.ScheduleWorkflowAction{
				ID:       workflows.AuditPackageWorkflowID(set.Client, framework),
				Workflow: workflows.AuditPackageWorkflow,
				Args: []interface{}{workflows.AuditPackageInput{
					Client:        set.Client,
					Framework:     framework,
					NotifyChannel: cfg.NotifyChannel,
				}},
				TaskQueue: cfg.TaskQueue,
			},
		})
	}
	return opts
}

// InstallSchedules creates each schedule, skipping ones that already
// exist. It returns the IDs it created.
func InstallSchedules(ctx context.Context, c client.Client, opts []client.ScheduleOptions) ([]string, error) {
	var created []string
	for _, o := range opts {
		_, err := c.ScheduleClient().Create(ctx, o)
		if errors.Is(err, temporal.ErrScheduleAlreadyRunning) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("create schedule %s: %w", o.ID, err)
		}
		created = append(created, o.ID)
	}
	return created, nil
}
