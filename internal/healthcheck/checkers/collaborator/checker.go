package collaboratorchecker

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/memohai/linebot/internal/collab"
	"github.com/memohai/linebot/internal/healthcheck"
)

const checkTypeCollaborator = "collaborator"

// Probe performs a cheap live call against a collaborator.
type Probe func(ctx context.Context) error

// Checker reports whether one external collaborator is usable.
type Checker struct {
	logger     *slog.Logger
	name       string
	subtitle   string
	configured bool
	probe      Probe
	timeout    time.Duration
}

// NewChecker creates a collaborator checker. probe may be nil, in which case
// only the configuration state is reported.
func NewChecker(log *slog.Logger, name, subtitle string, configured bool, probe Probe, timeout time.Duration) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{
		logger:     log.With(slog.String("checker", "healthcheck_"+name)),
		name:       name,
		subtitle:   subtitle,
		configured: configured,
		probe:      probe,
		timeout:    timeout,
	}
}

// ListChecks evaluates the collaborator.
func (c *Checker) ListChecks(ctx context.Context) []healthcheck.CheckResult {
	if ctx == nil {
		ctx = context.Background()
	}
	result := healthcheck.CheckResult{
		ID:       checkTypeCollaborator + "." + c.name,
		Type:     checkTypeCollaborator,
		Subtitle: c.subtitle,
		Metadata: map[string]any{"configured": c.configured},
	}
	if !c.configured {
		result.Status = healthcheck.StatusWarn
		result.Summary = "Not configured; the feature is disabled."
		return []healthcheck.CheckResult{result}
	}
	if c.probe == nil {
		result.Status = healthcheck.StatusOK
		result.Summary = "Configured."
		return []healthcheck.CheckResult{result}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	start := time.Now()
	err := c.probe(ctx)
	result.Metadata["latency_ms"] = time.Since(start).Milliseconds()
	if err != nil {
		c.logger.Warn("collaborator probe failed", slog.Any("error", err))
		result.Status = healthcheck.StatusError
		result.Summary = "Probe failed."
		result.Detail = collab.Truncate(strings.TrimSpace(err.Error()), 300)
		return []healthcheck.CheckResult{result}
	}
	result.Status = healthcheck.StatusOK
	result.Summary = "Reachable."
	return []healthcheck.CheckResult{result}
}
