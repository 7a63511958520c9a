package controllers

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/omnistrate-community/resource-scheduler/internal/cloud_api"
	"github.com/omnistrate-community/resource-scheduler/internal/resource"
)

// ContainerServiceController sets the desired task count of every service in
// every ACTIVE ECS cluster. It never returns an error: failures are recorded
// as outcomes.
type ContainerServiceController struct {
	api cloud_api.ContainerAPI
}

func NewContainerServiceController(api cloud_api.ContainerAPI) *ContainerServiceController {
	return &ContainerServiceController{api: api}
}

func (c *ContainerServiceController) Kind() resource.Kind {
	return resource.KindContainerService
}

func (c *ContainerServiceController) Transition(ctx context.Context, log zerolog.Logger, desired resource.DesiredState) ([]resource.Outcome, error) {
	clusters, err := c.api.ListClusters(ctx)
	if err != nil {
		return []resource.Outcome{c.failure(log, "", desired, err)}, nil
	}
	if len(clusters) == 0 {
		msg := fmt.Sprintf("No ECS clusters present, nothing to %s", desired.Verb())
		log.Info().Msg(msg)
		return []resource.Outcome{resource.Failed(c.Kind(), "", resource.ReasonNoResources, msg)}, nil
	}

	var outcomes []resource.Outcome
	for _, cluster := range clusters {
		clog := log.With().Str("cluster", cluster.Name).Logger()
		if cluster.Status != cloud_api.ClusterStatusActive {
			clog.Info().Str("status", cluster.Status).Msg("Skipping ECS cluster that is not ACTIVE")
			continue
		}

		clog.Info().Msgf("Updating number of service tasks to %d in %s", desired.Capacity, cluster.Name)
		services, err := c.api.ListServices(ctx, cluster.Name)
		if err != nil {
			outcomes = append(outcomes, c.failure(clog, cluster.Name, desired, err))
			continue
		}

		for _, service := range services {
			svcLog := clog.With().Str("resource_id", service).Logger()
			if err := c.api.UpdateServiceDesiredCount(ctx, cluster.Name, service, desired.Capacity); err != nil {
				outcomes = append(outcomes, c.failure(svcLog, service, desired, err))
				continue
			}
			msg := fmt.Sprintf("Desired number of tasks changed to %d for %s", desired.Capacity, service)
			svcLog.Info().Msg(msg)
			outcomes = append(outcomes, resource.Succeeded(c.Kind(), service, msg))
		}
	}

	if len(outcomes) == 0 {
		msg := fmt.Sprintf("No ECS services found in ACTIVE clusters, nothing to %s", desired.Verb())
		log.Info().Msg(msg)
		outcomes = append(outcomes, resource.Failed(c.Kind(), "", resource.ReasonNoResources, msg))
	}
	return outcomes, nil
}

// failure classifies an ECS error, logs it and turns it into an outcome.
func (c *ContainerServiceController) failure(log zerolog.Logger, id string, desired resource.DesiredState, err error) resource.Outcome {
	reason := reasonFor(err)
	var msg string
	switch {
	case errors.Is(err, cloud_api.ErrNotFound) && id != "":
		msg = fmt.Sprintf("%s not found in ECS, nothing to %s", id, desired.Verb())
		log.Info().Str("code", cloud_api.Code(err)).Msg(msg)
	case errors.Is(err, cloud_api.ErrNotFound):
		msg = fmt.Sprintf("No ECS clusters present, nothing to %s", desired.Verb())
		log.Info().Str("code", cloud_api.Code(err)).Msg(msg)
	case errors.Is(err, cloud_api.ErrAccessDenied):
		msg = "Access denied to ECS, check your credentials"
		log.Error().Err(err).Msg(msg)
	default:
		msg = fmt.Sprintf("An error occurred while updating ECS tasks: %v", err)
		log.Error().Err(err).Str("code", cloud_api.Code(err)).Msg("An error occurred while updating ECS tasks")
		if id == "" {
			reason = resource.ReasonEnumerationFailed
		}
	}
	return resource.Failed(c.Kind(), id, reason, msg)
}
