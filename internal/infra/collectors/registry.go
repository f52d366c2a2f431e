package collectors

import (
	"fmt"

	"github.com/yokoszn/CreatureGRC/internal/config"
	"github.com/yokoszn/CreatureGRC/internal/usecase"
)

// Build creates one collector per configured source, keyed by source id.
func Build(sources config.Sources) (map[string]usecase.SourceCollector, error) {
	out := make(map[string]usecase.SourceCollector, len(sources.Sources))
	for _, src := range sources.Sources {
		switch src.Kind {
		case config.SourceKindHTTP:
			out[src.ID] = NewHTTP(src)
		case config.SourceKindExec:
			out[src.ID] = NewExec(src)
		default:
			return nil, fmt.Errorf("source %s: unknown kind %q", src.ID, src.Kind)
		}
	}
	return out, nil
}
