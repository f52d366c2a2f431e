// Package collectors turns configured sources into evidence collectors.
// They fetch raw artifacts and leave interpretation to control tests.
package collectors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/yokoszn/CreatureGRC/internal/config"
	"github.com/yokoszn/CreatureGRC/internal/domain"
)

const maxBodyBytes = 64 << 20

var errBodyTooLarge = errors.New("response body exceeds size limit")

// HTTP fetches each evidence path from a JSON API.
type HTTP struct {
	source  config.Source
	client  *http.Client
	token   string
	maxBody int64
	now     func() time.Time
}

func NewHTTP(src config.Source) *HTTP {
	return &HTTP{
		source:  src,
		client:  &http.Client{Timeout: src.Timeout},
		token:   os.Getenv(src.TokenEnv),
		maxBody: maxBodyBytes,
		now:     time.Now,
	}
}

func (c *HTTP) Collect(ctx context.Context, lookbackDays int) (domain.EvidenceBatch, error) {
	now := c.now().UTC()
	since := now.AddDate(0, 0, -lookbackDays)
	var batch domain.EvidenceBatch
	for _, spec := range c.source.Evidence {
		url := strings.TrimRight(c.source.BaseURL, "/") + strings.ReplaceAll(spec.Path, "{since}", since.Format(time.RFC3339))
		body, status, err := c.fetch(ctx, url)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return domain.EvidenceBatch{}, &domain.TransientSourceError{Source: c.source.ID, Err: err}
			}
			batch.Errors = append(batch.Errors, fmt.Sprintf("%s: %v", spec.Name, err))
			continue
		}
		switch {
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return domain.EvidenceBatch{}, &domain.PermanentSourceError{Source: c.source.ID, Err: fmt.Errorf("%s: HTTP %d", spec.Name, status)}
		case status < 200 || status >= 300:
			batch.Errors = append(batch.Errors, fmt.Sprintf("%s: HTTP %d", spec.Name, status))
			continue
		}
		batch.Items = append(batch.Items, domain.EvidenceItem{
			ControlReference: spec.Control,
			LogicalName:      spec.Name,
			Category:         spec.Category,
			EvidenceType:     spec.Type,
			Content:          body,
			PeriodStart:      since,
			PeriodEnd:        now,
			Metadata:         map[string]any{"url": url, "status": status},
		})
	}
	return batch, nil
}

func (c *HTTP) fetch(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range c.source.Headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	// One byte past the limit tells a full body from a truncated one.
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if int64(len(body)) > c.maxBody {
		return nil, resp.StatusCode, fmt.Errorf("%w (%d bytes)", errBodyTooLarge, c.maxBody)
	}
	return body, resp.StatusCode, nil
}
