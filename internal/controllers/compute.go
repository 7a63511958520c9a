package controllers

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/omnistrate-community/resource-scheduler/internal/cloud_api"
	"github.com/omnistrate-community/resource-scheduler/internal/resource"
)

// ComputeController starts and stops EC2 instances.
type ComputeController struct {
	api cloud_api.ComputeAPI
}

func NewComputeController(api cloud_api.ComputeAPI) *ComputeController {
	return &ComputeController{api: api}
}

func (c *ComputeController) Kind() resource.Kind {
	return resource.KindComputeInstance
}

// Transition issues a start or stop call to every instance regardless of its
// current state; the control plane treats repeated calls as no-ops.
func (c *ComputeController) Transition(ctx context.Context, log zerolog.Logger, desired resource.DesiredState) ([]resource.Outcome, error) {
	instances, err := c.api.ListInstances(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list EC2 instances")
		return nil, errors.Wrap(err, "failed to list EC2 instances")
	}
	if len(instances) == 0 {
		log.Error().Msg("No EC2 instances found")
		return nil, errors.Wrap(ErrNoResourcesFound, "EC2 instances")
	}

	outcomes := make([]resource.Outcome, 0, len(instances))
	for _, instance := range instances {
		ilog := log.With().Str("resource_id", instance.ID).Str("state", instance.State).Logger()

		if desired.State == resource.Running {
			err = c.api.StartInstance(ctx, instance.ID)
		} else {
			err = c.api.StopInstance(ctx, instance.ID)
		}
		if err != nil {
			ilog.Error().Err(err).Str("code", cloud_api.Code(err)).Msgf("Failed to %s EC2 instance", desired.Verb())
			outcomes = append(outcomes, resource.Failed(c.Kind(), instance.ID, reasonFor(err),
				fmt.Sprintf("EC2 instance %s could not be %s: %v", instance.ID, desired.Past(), err)))
			continue
		}

		ilog.Info().Msgf("EC2 instance %s", desired.Past())
		outcomes = append(outcomes, resource.Succeeded(c.Kind(), instance.ID,
			fmt.Sprintf("EC2 instance %s %s", instance.ID, desired.Past())))
	}
	return outcomes, nil
}
