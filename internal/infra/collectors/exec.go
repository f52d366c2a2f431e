package collectors

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/yokoszn/CreatureGRC/internal/config"
	"github.com/yokoszn/CreatureGRC/internal/domain"
)

// Exec runs a scanner command per evidence item and keeps its stdout.
type Exec struct {
	source config.Source
	now    func() time.Time
}

func NewExec(src config.Source) *Exec {
	return &Exec{source: src, now: time.Now}
}

func (c *Exec) Collect(ctx context.Context, lookbackDays int) (domain.EvidenceBatch, error) {
	now := c.now().UTC()
	since := now.AddDate(0, 0, -lookbackDays)
	var batch domain.EvidenceBatch
	for _, spec := range c.source.Evidence {
		cmd := exec.CommandContext(ctx, spec.Command[0], spec.Command[1:]...)
		cmd.Env = append(os.Environ(),
			"GRC_SINCE="+since.Format(time.RFC3339),
			"GRC_LOOKBACK_DAYS="+strconv.Itoa(lookbackDays),
		)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		err := cmd.Run()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.EvidenceBatch{}, &domain.TransientSourceError{Source: c.source.ID, Err: ctxErr}
		}
		exitCode := 0
		if err != nil {
			var exitErr *exec.ExitError
			switch {
			case errors.Is(err, exec.ErrNotFound):
				return domain.EvidenceBatch{}, &domain.PermanentSourceError{Source: c.source.ID, Err: err}
			case errors.As(err, &exitErr) && slices.Contains(spec.OKExitCodes, exitErr.ExitCode()):
				exitCode = exitErr.ExitCode()
			default:
				batch.Errors = append(batch.Errors, fmt.Sprintf("%s: %v: %s", spec.Name, err, strings.TrimSpace(stderr.String())))
				continue
			}
		}
		if stdout.Len() == 0 {
			batch.Errors = append(batch.Errors, fmt.Sprintf("%s: command produced no output", spec.Name))
			continue
		}
		batch.Items = append(batch.Items, domain.EvidenceItem{
			ControlReference: spec.Control,
			LogicalName:      spec.Name,
			Category:         spec.Category,
			EvidenceType:     spec.Type,
			Content:          stdout.Bytes(),
			PeriodStart:      now,
			PeriodEnd:        now,
			Metadata:         map[string]any{"command": spec.Command[0], "exit_code": exitCode},
		})
	}
	return batch, nil
}
