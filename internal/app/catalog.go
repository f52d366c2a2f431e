package app

import (
	"context"
	"fmt"
	"time"

	"github.com/yokoszn/CreatureGRC/internal/config"
	"github.com/yokoszn/CreatureGRC/internal/domain"
	"github.com/yokoszn/CreatureGRC/internal/usecase"
)

type ImportResult struct {
	Controls        int
	Implementations int
}

// ImportCatalog enrolls every control of c. Re-importing is safe; test
// dates already recorded are kept.
func ImportCatalog(ctx context.Context, sched *usecase.Scheduler, c config.Catalog, asOf time.Time) (ImportResult, error) {
	var res ImportResult
	for _, d := range c.Domains {
		for _, ctl := range d.Controls {
			control := domain.Control{
				Framework:   c.Framework,
				DomainCode:  d.Code,
				DomainName:  d.Name,
				Code:        ctl.Code,
				Name:        ctl.Name,
				Description: ctl.Description,
			}
			var impl domain.ControlImplementation
			if ctl.Implementation != nil {
				impl = domain.ControlImplementation{
					ImplementationStatus: domain.ImplementationStatus(ctl.Implementation.Status),
					AutomationLevel:      domain.AutomationLevel(ctl.Implementation.Automation),
					TestingFrequency:     domain.TestingFrequency(ctl.Implementation.Frequency),
				}
			}
			if _, err := sched.Enroll(ctx, control, impl, asOf); err != nil {
				return res, fmt.Errorf("enroll %s: %w", ctl.Code, err)
			}
			res.Controls++
			if impl.ImplementationStatus != "" {
				res.Implementations++
			}
		}
	}
	return res, nil
}
