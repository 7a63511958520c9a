package orchestrator

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/omnistrate-community/resource-scheduler/internal/config"
	"github.com/omnistrate-community/resource-scheduler/internal/controllers"
	"github.com/omnistrate-community/resource-scheduler/internal/metrics"
	"github.com/omnistrate-community/resource-scheduler/internal/resource"
)

// Request rejections. They surface as a 400 response and no controller runs.
var (
	ErrInvalidAction        = errors.New("Invalid action provided")
	ErrNoResourcesSpecified = errors.New("No resources provided")
	ErrUnsupportedResource  = errors.New("unsupported resource")
	ErrInvalidCapacity      = errors.New("invalid capacity override")
)

// InvalidRequestError wraps one of the request rejection errors with detail.
type InvalidRequestError struct {
	Err    error
	Detail string
}

func (e *InvalidRequestError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Detail)
}

func (e *InvalidRequestError) Unwrap() error {
	return e.Err
}

// Plan is a validated request: the kinds to process, in priority order, and
// the desired state of each.
type Plan struct {
	Action  resource.Action
	Kinds   []resource.Kind
	Desired map[resource.Kind]resource.DesiredState
}

type Orchestrator struct {
	controllers map[resource.Kind]controllers.Controller
	defaults    map[resource.Kind]int32
	parallel    bool
	metrics     *metrics.Metrics
	log         zerolog.Logger
	validate    *validator.Validate
}

// New builds an orchestrator. ctrls must contain exactly one controller for
// every resource kind.
func New(cfg *config.Config, ctrls []controllers.Controller, m *metrics.Metrics, log zerolog.Logger) (*Orchestrator, error) {
	table := make(map[resource.Kind]controllers.Controller, len(ctrls))
	for _, c := range ctrls {
		if _, dup := table[c.Kind()]; dup {
			return nil, errors.Errorf("duplicate controller for %s", c.Kind())
		}
		table[c.Kind()] = c
	}
	for _, kind := range resource.AllKinds() {
		if _, ok := table[kind]; !ok {
			return nil, errors.Errorf("no controller registered for %s", kind)
		}
	}

	return &Orchestrator{
		controllers: table,
		defaults: map[resource.Kind]int32{
			resource.KindContainerService: cfg.ECSDesiredCount,
			resource.KindAutoScalingGroup: cfg.ASGDesiredCount,
		},
		parallel: cfg.ParallelKinds,
		metrics:  m,
		log:      log,
		validate: validator.New(),
	}, nil
}

// Execute runs the requested action. It always returns a response: 400 when
// the request is rejected, 200 otherwise with one or more outcomes per kind.
func (o *Orchestrator) Execute(ctx context.Context, req resource.ActionRequest) resource.Response {
	start := time.Now()
	log := o.log.With().
		Str("invocation_id", uuid.NewString()).
		Str("action", string(req.Action)).
		Logger()

	plan, err := o.Plan(req)
	if err != nil {
		log.Warn().Err(err).Strs("resources", req.Resources).Msg("Rejected request")
		o.metrics.RecordInvocation(req.Action, http.StatusBadRequest, time.Since(start))
		return resource.Response{StatusCode: http.StatusBadRequest, Message: err.Error()}
	}

	names := make([]string, len(plan.Kinds))
	for i, kind := range plan.Kinds {
		names[i] = kind.String()
	}
	log.Info().Strs("resources", names).Msg("Executing lifecycle action")

	results := make([][]resource.Outcome, len(plan.Kinds))
	if o.parallel {
		var g errgroup.Group
		for i, kind := range plan.Kinds {
			i, kind := i, kind
			g.Go(func() error {
				results[i] = o.runKind(ctx, log, plan.Action, kind, plan.Desired[kind])
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, kind := range plan.Kinds {
			results[i] = o.runKind(ctx, log, plan.Action, kind, plan.Desired[kind])
		}
	}

	outcomes := []resource.Outcome{}
	for _, r := range results {
		outcomes = append(outcomes, r...)
	}
	resp := resource.Response{StatusCode: http.StatusOK, Outcomes: outcomes}

	log.Info().
		Int("outcomes", len(outcomes)).
		Int("failures", resp.Failures()).
		Dur("duration", time.Since(start)).
		Msg("Lifecycle action completed")
	o.metrics.RecordInvocation(plan.Action, resp.StatusCode, time.Since(start))
	return resp
}

// Plan validates req and resolves the kinds to act on. Stop without resources
// means every kind; start without resources is rejected.
func (o *Orchestrator) Plan(req resource.ActionRequest) (Plan, error) {
	if !req.Action.Valid() {
		return Plan{}, &InvalidRequestError{Err: ErrInvalidAction, Detail: fmt.Sprintf("%q", req.Action)}
	}
	if req.Action == resource.ActionStart && len(req.Resources) == 0 {
		return Plan{}, &InvalidRequestError{Err: ErrNoResourcesSpecified}
	}

	selected := make(map[resource.Kind]bool, len(req.Resources))
	for _, name := range req.Resources {
		kind, err := resource.ParseKind(name)
		if err != nil {
			return Plan{}, &InvalidRequestError{Err: ErrUnsupportedResource, Detail: fmt.Sprintf("%q", name)}
		}
		selected[kind] = true
	}

	overrides := map[resource.Kind]*resource.CapacityConfig{
		resource.KindContainerService: req.Config.ECS,
		resource.KindAutoScalingGroup: req.Config.ASG,
	}
	for kind, override := range overrides {
		if override == nil {
			continue
		}
		if err := o.validate.Struct(override); err != nil {
			return Plan{}, &InvalidRequestError{Err: ErrInvalidCapacity, Detail: fmt.Sprintf("%s: desired_count must be between 1 and %d", kind, math.MaxInt32)}
		}
	}

	plan := Plan{Action: req.Action, Desired: make(map[resource.Kind]resource.DesiredState)}
	for _, kind := range resource.AllKinds() {
		if len(selected) > 0 && !selected[kind] {
			continue
		}
		desired := resource.DesiredState{State: req.Action.Target()}
		if desired.State == resource.Running {
			desired.Capacity = o.defaults[kind]
			if override := overrides[kind]; override != nil {
				desired.Capacity = int32(*override.DesiredCount)
			}
		}
		plan.Kinds = append(plan.Kinds, kind)
		plan.Desired[kind] = desired
	}
	return plan, nil
}

// runKind invokes one controller. Errors and panics become a kind-level
// failed outcome appended after whatever the controller already recorded.
func (o *Orchestrator) runKind(ctx context.Context, log zerolog.Logger, action resource.Action, kind resource.Kind, desired resource.DesiredState) (outcomes []resource.Outcome) {
	klog := log.With().Str("resource_kind", kind.String()).Logger()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			klog.Error().Interface("panic", r).Msg("Controller panicked")
			outcomes = append(outcomes, resource.Failed(kind, "", resource.ReasonPanic, fmt.Sprintf("%s controller failed: %v", kind, r)))
		}
		o.metrics.RecordKind(kind, action, outcomes, time.Since(start))
	}()

	klog.Info().Str("state", string(desired.State)).Int32("capacity", desired.Capacity).Msg("Transitioning resources")

	var err error
	outcomes, err = o.controllers[kind].Transition(ctx, klog, desired)
	if err != nil {
		klog.Error().Err(err).Int("recorded", len(outcomes)).Msg("Resource kind did not complete")
		outcomes = append(outcomes, kindFailure(kind, err))
	}
	return outcomes
}

func kindFailure(kind resource.Kind, err error) resource.Outcome {
	reason := resource.ReasonEnumerationFailed
	switch {
	case errors.Is(err, controllers.ErrNoResourcesFound):
		reason = resource.ReasonNoResources
	case errors.Is(err, controllers.ErrAborted):
		reason = resource.ReasonAborted
	}
	return resource.Failed(kind, "", reason, err.Error())
}
