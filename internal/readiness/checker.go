package readiness

import (
	"context"
	"net/http"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/omnistrate-community/resource-scheduler/internal/cloud_api"
	"github.com/omnistrate-community/resource-scheduler/internal/config"
	"github.com/omnistrate-community/resource-scheduler/internal/metrics"
	"github.com/omnistrate-community/resource-scheduler/internal/resource"
)

var ErrTimeout = errors.New("timeout waiting for database instances to become available")

// Checker reports whether the database fleet has settled. It never mutates
// instance state.
type Checker struct {
	api      cloud_api.DatabaseAPI
	policy   string
	interval time.Duration
	timeout  time.Duration
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

func NewChecker(api cloud_api.DatabaseAPI, cfg *config.Config, m *metrics.Metrics, log zerolog.Logger) *Checker {
	return &Checker{
		api:      api,
		policy:   cfg.ReadinessPolicy,
		interval: cfg.ReadinessCheckInterval,
		timeout:  cfg.ReadinessTimeout,
		metrics:  m,
		log:      log.With().Str("component", "readiness").Logger(),
	}
}

// Check lists every database instance and returns the aggregate verdict.
//
// With the "all" policy every counted instance must be strictly available.
// With the "any" policy the first instance that is available or stopped makes
// the fleet available. Instances without a status are not counted, and a
// fleet with no counted instance is not available.
func (c *Checker) Check(ctx context.Context) (resource.Availability, error) {
	instances, err := c.api.ListDBInstances(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("Failed to list RDS instances")
		return resource.NotAvailable, errors.Wrap(err, "failed to list RDS instances")
	}

	verdict := c.evaluate(instances)
	c.metrics.RecordReadiness(verdict)
	c.log.Info().Int("instances", len(instances)).Str("rds_status", string(verdict)).Msg("Checked RDS readiness")
	return verdict, nil
}

func (c *Checker) evaluate(instances []cloud_api.DBInstance) resource.Availability {
	counted := 0
	for _, instance := range instances {
		if instance.Status == "" {
			c.log.Warn().Str("resource_id", instance.ID).Msg("Could not read RDS instance status, skipping")
			continue
		}
		counted++
		c.log.Debug().Str("resource_id", instance.ID).Str("status", instance.Status).Msg("RDS instance status")

		switch c.policy {
		case config.ReadinessPolicyAny:
			if instance.Status == cloud_api.DBStatusAvailable || instance.Status == cloud_api.DBStatusStopped {
				return resource.Available
			}
		default:
			if instance.Status != cloud_api.DBStatusAvailable {
				return resource.NotAvailable
			}
		}
	}

	if counted == 0 || c.policy == config.ReadinessPolicyAny {
		return resource.NotAvailable
	}
	return resource.Available
}

// Response wraps a verdict the way the readiness endpoint reports it.
func Response(verdict resource.Availability) resource.ReadinessResponse {
	return resource.ReadinessResponse{
		StatusCode: http.StatusOK,
		Body: resource.ReadinessBody{
			RDSStatus: verdict,
			CheckedAt: strfmt.DateTime(time.Now().UTC()),
		},
	}
}

// WaitUntilAvailable polls Check until the fleet is available, the configured
// timeout elapses or ctx is cancelled. Failed checks are logged and retried on
// the next tick.
func (c *Checker) WaitUntilAvailable(ctx context.Context) error {
	timeout := time.After(c.timeout)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return errors.Wrapf(ErrTimeout, "after %s", c.timeout)
		case <-ticker.C:
			verdict, err := c.Check(ctx)
			if err != nil {
				c.log.Warn().Err(err).Msg("Error checking RDS readiness")
				continue
			}
			if verdict == resource.Available {
				c.log.Info().Msg("RDS instances are now available")
				return nil
			}
			c.log.Debug().Str("rds_status", string(verdict)).Msg("RDS instances not available yet, waiting")
		}
	}
}
