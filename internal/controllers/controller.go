package controllers

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/omnistrate-community/resource-scheduler/internal/cloud_api"
	"github.com/omnistrate-community/resource-scheduler/internal/resource"
)

var (
	// ErrNoResourcesFound is returned when a kind has nothing to transition.
	ErrNoResourcesFound = errors.New("no resources found")
	// ErrAborted is returned when a controller stops before visiting every resource.
	ErrAborted = errors.New("processing aborted")
)

// Controller discovers and transitions every resource of one kind.
type Controller interface {
	Kind() resource.Kind
	// Transition returns one outcome per attempted resource. A non-nil error
	// means the kind was not processed to completion; outcomes returned with
	// it are still valid.
	Transition(ctx context.Context, log zerolog.Logger, desired resource.DesiredState) ([]resource.Outcome, error)
}

type Options struct {
	// FailFast stops a database or autoscaling controller after the first
	// unexpected per-resource failure.
	FailFast bool
}

// NewControllers returns one controller per kind backed by client.
func NewControllers(client cloud_api.Client, opts Options) []Controller {
	return []Controller{
		NewDatabaseController(client, opts),
		NewContainerServiceController(client),
		NewAutoScalingController(client, opts),
		NewComputeController(client),
	}
}

func reasonFor(err error) resource.Reason {
	switch {
	case errors.Is(err, cloud_api.ErrInvalidState):
		return resource.ReasonInvalidState
	case errors.Is(err, cloud_api.ErrAccessDenied):
		return resource.ReasonAccessDenied
	case errors.Is(err, cloud_api.ErrNotFound):
		return resource.ReasonNotFound
	default:
		return resource.ReasonProviderError
	}
}
