package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/yokoszn/CreatureGRC/internal/config"

	"go.temporal.io/sdk/client"
)

// startWorkflow starts wf on the worker task queue. With wait it blocks
// for the result and reports true.
func startWorkflow(ctx context.Context, out io.Writer, cfg config.Config, id string, wf, input, result interface{}, wait bool) (bool, error) {
	c, err := dialTemporal(cfg)
	if err != nil {
		return false, err
	}
	defer c.Close()

	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        id + "-" + now().UTC().Format("20060102T150405"),
		TaskQueue: cfg.TaskQueue,
	}, wf, input)
	if err != nil {
		return false, fmt.Errorf("start workflow: %w", err)
	}
	fmt.Fprintf(out, "started workflow %s (run %s)\n", run.GetID(), run.GetRunID())
	if !wait {
		return false, nil
	}
	if err := run.Get(ctx, result); err != nil {
		return false, fmt.Errorf("workflow %s: %w", run.GetID(), err)
	}
	return true, nil
}
