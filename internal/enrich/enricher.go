// Package enrich gathers live operational context around a failed operation.
//
// The enricher runs its sub-probes (permission scan, resource state,
// rate-limit status, operation history) concurrently, each under an
// independent timeout. A failing or timed-out probe contributes an empty
// section plus a PartialFailures entry; it never aborts sibling probes or
// the enrichment as a whole, so the diagnosis engine always receives a
// usable context within a bounded wait.
package enrich

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/halcyonlabs/remedyd/internal/platform"
)

const instrumentationName = "github.com/halcyonlabs/remedyd/internal/enrich"

// Config configures the enricher.
type Config struct {
	// ProbeTimeout is the independent timeout per sub-probe (default: 2s).
	ProbeTimeout time.Duration

	// HistorySize bounds the most-recent-N operation ring (default: 50).
	HistorySize int

	// RepeatWindow is how far back the history probe looks for the same
	// tool failing with the same error (default: 10m).
	RepeatWindow time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ProbeTimeout: 2 * time.Second,
		HistorySize:  50,
		RepeatWindow: 10 * time.Minute,
	}
}

// Enricher aggregates operational context from the platform client.
type Enricher struct {
	cfg     Config
	client  platform.Client
	logger  *zap.Logger
	tracer  trace.Tracer
	history *historyRing

	now func() time.Time
}

// New creates an enricher. The platform client is required.
func New(cfg Config, client platform.Client, logger *zap.Logger) (*Enricher, error) {
	if client == nil {
		return nil, errors.New("platform client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultConfig().ProbeTimeout
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultConfig().HistorySize
	}
	if cfg.RepeatWindow <= 0 {
		cfg.RepeatWindow = DefaultConfig().RepeatWindow
	}

	return &Enricher{
		cfg:     cfg,
		client:  client,
		logger:  logger,
		tracer:  otel.Tracer(instrumentationName),
		history: newHistoryRing(cfg.HistorySize),
		now:     time.Now,
	}, nil
}

// RecordOperation remembers an operation outcome for repeated-failure
// detection on later requests.
func (e *Enricher) RecordOperation(op platform.Operation, errorType string) {
	e.history.add(op.Name, errorType, e.now())
}

// Enrich gathers context for the given failed operation. It always returns
// a context; probe failures are recorded, never escalated.
func (e *Enricher) Enrich(ctx context.Context, op platform.Operation, errorType string) *EnrichedContext {
	ctx, span := e.tracer.Start(ctx, "enrich.context")
	defer span.End()

	ec := &EnrichedContext{Operation: op}

	var mu sync.Mutex
	fail := func(probe string, err error) {
		mu.Lock()
		ec.PartialFailures = append(ec.PartialFailures, ProbeFailure{
			Probe:  probe,
			Reason: err.Error(),
		})
		mu.Unlock()
		e.logger.Warn("context probe failed",
			zap.String("probe", probe),
			zap.String("operation", op.Name),
			zap.Error(err),
		)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		pctx, cancel := context.WithTimeout(gctx, e.cfg.ProbeTimeout)
		defer cancel()
		user, err := e.scanPermissions(pctx, op)
		if err != nil {
			fail(ProbePermissions, err)
			return nil
		}
		ec.User = user
		return nil
	})

	g.Go(func() error {
		pctx, cancel := context.WithTimeout(gctx, e.cfg.ProbeTimeout)
		defer cancel()
		resources, err := e.lookupResources(pctx, op)
		if err != nil {
			fail(ProbeResources, err)
			return nil
		}
		ec.Resources = resources
		return nil
	})

	g.Go(func() error {
		pctx, cancel := context.WithTimeout(gctx, e.cfg.ProbeTimeout)
		defer cancel()
		status, err := e.checkRateLimit(pctx, op)
		if err != nil {
			fail(ProbeRateLimit, err)
			return nil
		}
		ec.Environment.RateLimit = status
		return nil
	})

	g.Go(func() error {
		// Local lookup; cannot fail, but runs in the group so the overall
		// wait bound covers it too.
		repeats := e.history.countRecent(op.Name, errorType, e.cfg.RepeatWindow, e.now())
		ec.RepeatedFailure = repeats >= 2
		return nil
	})

	// Probes never propagate errors; Wait only bounds the join.
	_ = g.Wait()

	span.SetAttributes(
		attribute.Int("partial_failures", len(ec.PartialFailures)),
		attribute.Bool("repeated_failure", ec.RepeatedFailure),
	)
	return ec
}

// scanPermissions determines, for every scope visible to the caller, whether
// write access is held. It issues lightweight probe operations, never full
// writes, and caches per-scope results for the lifetime of this request.
func (e *Enricher) scanPermissions(ctx context.Context, op platform.Operation) (UserContext, error) {
	scopes, err := e.client.ListScopes(ctx)
	if err != nil {
		return UserContext{}, err
	}

	snapshot := make(map[string]bool, len(scopes))
	for _, scope := range scopes {
		if _, cached := snapshot[scope]; cached {
			continue
		}
		res, err := e.client.Probe(ctx, platform.Operation{
			Name:   "permissions.write-check",
			Params: map[string]any{"scope": scope},
			Scope:  scope,
		})
		if err != nil {
			// Context expiry aborts the scan; an individual denial is a
			// result, not a failure.
			if ctx.Err() != nil {
				return UserContext{}, ctx.Err()
			}
			snapshot[scope] = false
			continue
		}
		snapshot[scope] = res.Status < 400
	}

	return UserContext{AvailableScopes: scopes, PermissionSnapshot: snapshot}, nil
}

// lookupResources fetches the state of entities related to the operation.
func (e *Enricher) lookupResources(ctx context.Context, op platform.Operation) (ResourceContext, error) {
	res, err := e.client.Probe(ctx, platform.Operation{
		Name:   "resources.related",
		Params: op.Params,
		Scope:  op.Scope,
	})
	if err != nil {
		return ResourceContext{}, err
	}

	rc := ResourceContext{ResourceStates: map[string]string{}}
	body, ok := res.Body.(map[string]any)
	if !ok {
		return rc, nil
	}
	if entities, ok := body["entities"].([]any); ok {
		for _, e := range entities {
			if s, ok := e.(string); ok {
				rc.RelatedEntities = append(rc.RelatedEntities, s)
			}
		}
	}
	if states, ok := body["states"].(map[string]any); ok {
		for k, v := range states {
			if s, ok := v.(string); ok {
				rc.ResourceStates[k] = s
			}
		}
	}
	return rc, nil
}

// checkRateLimit fetches the caller's current rate-limit standing.
func (e *Enricher) checkRateLimit(ctx context.Context, op platform.Operation) (RateLimitStatus, error) {
	res, err := e.client.Probe(ctx, platform.Operation{
		Name:  "ratelimit.status",
		Scope: op.Scope,
	})
	if err != nil {
		return RateLimitStatus{}, err
	}

	status := RateLimitStatus{Known: true}
	body, ok := res.Body.(map[string]any)
	if !ok {
		return status, nil
	}
	if v, ok := body["limit"].(float64); ok {
		status.Limit = int(v)
	}
	if v, ok := body["remaining"].(float64); ok {
		status.Remaining = int(v)
	}
	if v, ok := body["reset_after_seconds"].(float64); ok {
		status.ResetAfter = time.Duration(v) * time.Second
	}
	return status, nil
}
