package controllers

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/omnistrate-community/resource-scheduler/internal/cloud_api"
	"github.com/omnistrate-community/resource-scheduler/internal/resource"
)

// DatabaseController starts and stops RDS instances.
type DatabaseController struct {
	api  cloud_api.DatabaseAPI
	opts Options
}

func NewDatabaseController(api cloud_api.DatabaseAPI, opts Options) *DatabaseController {
	return &DatabaseController{api: api, opts: opts}
}

func (c *DatabaseController) Kind() resource.Kind {
	return resource.KindDatabase
}

// Transition starts or stops every DB instance. An instance already in an
// incompatible lifecycle state is an expected outcome and never aborts the
// loop.
func (c *DatabaseController) Transition(ctx context.Context, log zerolog.Logger, desired resource.DesiredState) ([]resource.Outcome, error) {
	instances, err := c.api.ListDBInstances(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list RDS instances")
		return nil, errors.Wrap(err, "failed to list RDS instances")
	}
	if len(instances) == 0 {
		log.Error().Msg("No RDS instances found")
		return nil, errors.Wrap(ErrNoResourcesFound, "RDS instances")
	}

	outcomes := make([]resource.Outcome, 0, len(instances))
	for i, instance := range instances {
		ilog := log.With().Str("resource_id", instance.ID).Str("status", instance.Status).Logger()

		if desired.State == resource.Running {
			err = c.api.StartDBInstance(ctx, instance.ID)
		} else {
			err = c.api.StopDBInstance(ctx, instance.ID)
		}

		switch {
		case err == nil:
			ilog.Info().Msgf("RDS instance %s", desired.Past())
			outcomes = append(outcomes, resource.Succeeded(c.Kind(), instance.ID,
				fmt.Sprintf("RDS instance %s %s", instance.ID, desired.Past())))

		case errors.Is(err, cloud_api.ErrInvalidState):
			msg := fmt.Sprintf("RDS instance %s cannot be %s as it is not in a valid state", instance.ID, desired.Past())
			ilog.Warn().Str("code", cloud_api.Code(err)).Msg(msg)
			outcomes = append(outcomes, resource.Failed(c.Kind(), instance.ID, resource.ReasonInvalidState, msg))

		default:
			ilog.Error().Err(err).Str("code", cloud_api.Code(err)).Msgf("Unexpected error while trying to %s RDS instance", desired.Verb())
			outcomes = append(outcomes, resource.Failed(c.Kind(), instance.ID, reasonFor(err),
				fmt.Sprintf("RDS instance %s could not be %s: %v", instance.ID, desired.Past(), err)))
			if c.opts.FailFast {
				remaining := len(instances) - i - 1
				return outcomes, errors.Wrapf(ErrAborted, "%d remaining RDS instances skipped after %s failed", remaining, instance.ID)
			}
		}
	}
	return outcomes, nil
}
