package controllers

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/omnistrate-community/resource-scheduler/internal/cloud_api"
	"github.com/omnistrate-community/resource-scheduler/internal/resource"
)

// AutoScalingController pins every autoscaling group to a fixed size.
type AutoScalingController struct {
	api  cloud_api.AutoScalingAPI
	opts Options
}

func NewAutoScalingController(api cloud_api.AutoScalingAPI, opts Options) *AutoScalingController {
	return &AutoScalingController{api: api, opts: opts}
}

func (c *AutoScalingController) Kind() resource.Kind {
	return resource.KindAutoScalingGroup
}

// Transition sets min, max and desired capacity of every group to
// desired.Capacity. Failing to list the groups is returned as an error.
func (c *AutoScalingController) Transition(ctx context.Context, log zerolog.Logger, desired resource.DesiredState) ([]resource.Outcome, error) {
	groups, err := c.api.ListAutoScalingGroups(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Error occurred while retrieving Auto Scaling Groups")
		return nil, errors.Wrap(err, "failed to retrieve Auto Scaling Groups")
	}
	if len(groups) == 0 {
		log.Error().Msg("No Auto Scaling Groups found")
		return nil, errors.Wrap(ErrNoResourcesFound, "Auto Scaling Groups")
	}

	capacity := resource.SymmetricCapacity(desired.Capacity)
	outcomes := make([]resource.Outcome, 0, len(groups))
	for i, group := range groups {
		glog := log.With().Str("resource_id", group.Name).Logger()

		if err := c.api.UpdateAutoScalingGroup(ctx, group.Name, capacity); err != nil {
			glog.Error().Err(err).Str("code", cloud_api.Code(err)).Msg("Error occurred while updating Auto Scaling Group")
			outcomes = append(outcomes, resource.Failed(c.Kind(), group.Name, reasonFor(err),
				fmt.Sprintf("Error occurred while updating Auto Scaling Group %s: %v", group.Name, err)))
			if c.opts.FailFast {
				remaining := len(groups) - i - 1
				return outcomes, errors.Wrapf(ErrAborted, "%d remaining Auto Scaling Groups skipped after %s failed", remaining, group.Name)
			}
			continue
		}

		msg := fmt.Sprintf("Capacity updated for Auto Scaling Group %s: from %d to %d", group.Name, group.Capacity.Desired, capacity.Desired)
		glog.Info().
			Int32("min", capacity.Min).
			Int32("max", capacity.Max).
			Int32("desired", capacity.Desired).
			Msg(msg)
		outcomes = append(outcomes, resource.Succeeded(c.Kind(), group.Name, msg))
	}
	return outcomes, nil
}
