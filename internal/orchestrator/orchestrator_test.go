package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/omnistrate-community/resource-scheduler/internal/cloud_api"
	"github.com/omnistrate-community/resource-scheduler/internal/cloud_api/mocks"
	"github.com/omnistrate-community/resource-scheduler/internal/config"
	"github.com/omnistrate-community/resource-scheduler/internal/controllers"
	"github.com/omnistrate-community/resource-scheduler/internal/metrics"
	"github.com/omnistrate-community/resource-scheduler/internal/resource"
)

type fakeController struct {
	kind      resource.Kind
	outcomes  []resource.Outcome
	err       error
	panicWith any
	calls     int32
	desired   resource.DesiredState
}

func (f *fakeController) Kind() resource.Kind {
	return f.kind
}

func (f *fakeController) Transition(_ context.Context, _ zerolog.Logger, desired resource.DesiredState) ([]resource.Outcome, error) {
	atomic.AddInt32(&f.calls, 1)
	f.desired = desired
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	return f.outcomes, f.err
}

func okController(kind resource.Kind, ids ...string) *fakeController {
	f := &fakeController{kind: kind}
	for _, id := range ids {
		f.outcomes = append(f.outcomes, resource.Succeeded(kind, id, "ok"))
	}
	return f
}

func testConfig() *config.Config {
	return &config.Config{ECSDesiredCount: 1, ASGDesiredCount: 1}
}

func newTestOrchestrator(t *testing.T, cfg *config.Config, ctrls ...controllers.Controller) *Orchestrator {
	t.Helper()
	o, err := New(cfg, ctrls, metrics.New(), zerolog.Nop())
	require.NoError(t, err)
	return o
}

func kindsOf(outcomes []resource.Outcome) []resource.Kind {
	var kinds []resource.Kind
	for _, o := range outcomes {
		if len(kinds) == 0 || kinds[len(kinds)-1] != o.Kind {
			kinds = append(kinds, o.Kind)
		}
	}
	return kinds
}

func TestNew_RequiresEveryKind(t *testing.T) {
	_, err := New(testConfig(), []controllers.Controller{
		okController(resource.KindDatabase),
		okController(resource.KindComputeInstance),
	}, nil, zerolog.Nop())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no controller registered for ecs")
}

func TestNew_RejectsDuplicateKind(t *testing.T) {
	_, err := New(testConfig(), []controllers.Controller{
		okController(resource.KindDatabase),
		okController(resource.KindDatabase),
	}, nil, zerolog.Nop())

	assert.Error(t, err)
}

func TestExecute_StopAllInvokesEveryControllerDespiteFailures(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		cfg := testConfig()
		cfg.ParallelKinds = parallel

		db := &fakeController{kind: resource.KindDatabase, err: errors.New("access denied listing instances")}
		ecs := &fakeController{kind: resource.KindContainerService, panicWith: "nil map"}
		asg := okController(resource.KindAutoScalingGroup, "web")
		ec2 := okController(resource.KindComputeInstance, "i-1", "i-2")
		o := newTestOrchestrator(t, cfg, ec2, asg, ecs, db)

		resp := o.Execute(context.Background(), resource.ActionRequest{Action: resource.ActionStop})

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		for _, f := range []*fakeController{db, ecs, asg, ec2} {
			assert.Equal(t, int32(1), atomic.LoadInt32(&f.calls), "kind %s", f.kind)
			assert.Equal(t, resource.DesiredState{State: resource.Stopped, Capacity: 0}, f.desired)
		}

		require.Len(t, resp.Outcomes, 5)
		assert.Equal(t, resource.AllKinds(), kindsOf(resp.Outcomes))
		assert.Equal(t, resource.ReasonEnumerationFailed, resp.Outcomes[0].Reason)
		assert.Equal(t, resource.ReasonPanic, resp.Outcomes[1].Reason)
		assert.True(t, resp.Outcomes[2].Succeeded)
		assert.Equal(t, 2, resp.Failures())
	}
}

func TestExecute_KeepsOutcomesRecordedBeforeAbort(t *testing.T) {
	db := &fakeController{
		kind:     resource.KindDatabase,
		outcomes: []resource.Outcome{resource.Succeeded(resource.KindDatabase, "db-1", "ok")},
		err:      errors.Wrap(controllers.ErrAborted, "1 remaining RDS instances skipped"),
	}
	o := newTestOrchestrator(t, testConfig(), db,
		okController(resource.KindContainerService, "svc"),
		okController(resource.KindAutoScalingGroup, "web"),
		okController(resource.KindComputeInstance, "i-1"))

	resp := o.Execute(context.Background(), resource.ActionRequest{Action: resource.ActionStop, Resources: []string{"rds"}})

	require.Len(t, resp.Outcomes, 2)
	assert.True(t, resp.Outcomes[0].Succeeded)
	assert.Equal(t, resource.ReasonAborted, resp.Outcomes[1].Reason)
}

func TestExecute_RejectsBadRequests(t *testing.T) {
	zero := 0
	tooLarge := 2147483648
	wrapsToOne := 4294967297
	tests := []struct {
		name        string
		req         resource.ActionRequest
		expectedErr error
	}{
		{"start without resources", resource.ActionRequest{Action: resource.ActionStart}, ErrNoResourcesSpecified},
		{"start with empty resources", resource.ActionRequest{Action: resource.ActionStart, Resources: []string{}}, ErrNoResourcesSpecified},
		{"unknown action", resource.ActionRequest{Action: "restart"}, ErrInvalidAction},
		{"missing action", resource.ActionRequest{}, ErrInvalidAction},
		{"unsupported resource", resource.ActionRequest{Action: resource.ActionStop, Resources: []string{"rds", "lambda"}}, ErrUnsupportedResource},
		{
			"zero capacity override",
			resource.ActionRequest{
				Action:    resource.ActionStart,
				Resources: []string{"ecs"},
				Config:    resource.RequestConfig{ECS: &resource.CapacityConfig{DesiredCount: &zero}},
			},
			ErrInvalidCapacity,
		},
		{
			"override overflows int32",
			resource.ActionRequest{
				Action:    resource.ActionStart,
				Resources: []string{"asg"},
				Config:    resource.RequestConfig{ASG: &resource.CapacityConfig{DesiredCount: &tooLarge}},
			},
			ErrInvalidCapacity,
		},
		{
			"override wraps to one",
			resource.ActionRequest{
				Action:    resource.ActionStart,
				Resources: []string{"ecs"},
				Config:    resource.RequestConfig{ECS: &resource.CapacityConfig{DesiredCount: &wrapsToOne}},
			},
			ErrInvalidCapacity,
		},
		{
			"override without count",
			resource.ActionRequest{
				Action:    resource.ActionStart,
				Resources: []string{"asg"},
				Config:    resource.RequestConfig{ASG: &resource.CapacityConfig{}},
			},
			ErrInvalidCapacity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrls := []*fakeController{
				okController(resource.KindDatabase, "db"),
				okController(resource.KindContainerService, "svc"),
				okController(resource.KindAutoScalingGroup, "web"),
				okController(resource.KindComputeInstance, "i-1"),
			}
			o := newTestOrchestrator(t, testConfig(), ctrls[0], ctrls[1], ctrls[2], ctrls[3])

			_, err := o.Plan(tt.req)
			assert.True(t, errors.Is(err, tt.expectedErr))

			resp := o.Execute(context.Background(), tt.req)

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Nil(t, resp.Outcomes)
			assert.NotEmpty(t, resp.Message)
			for _, c := range ctrls {
				assert.Equal(t, int32(0), atomic.LoadInt32(&c.calls))
			}
		})
	}
}

func TestExecute_RejectionMessages(t *testing.T) {
	o := newTestOrchestrator(t, testConfig(),
		okController(resource.KindDatabase),
		okController(resource.KindContainerService),
		okController(resource.KindAutoScalingGroup),
		okController(resource.KindComputeInstance))

	resp := o.Execute(context.Background(), resource.ActionRequest{Action: resource.ActionStart})
	assert.Equal(t, "No resources provided", resp.Message)

	resp = o.Execute(context.Background(), resource.ActionRequest{Action: "restart"})
	assert.Equal(t, `Invalid action provided: "restart"`, resp.Message)
}

func TestPlan_OrdersAndDeduplicatesKinds(t *testing.T) {
	o := newTestOrchestrator(t, testConfig(),
		okController(resource.KindDatabase),
		okController(resource.KindContainerService),
		okController(resource.KindAutoScalingGroup),
		okController(resource.KindComputeInstance))

	plan, err := o.Plan(resource.ActionRequest{Action: resource.ActionStart, Resources: []string{"ec2", "asg", "RDS", "asg"}})

	require.NoError(t, err)
	assert.Equal(t, []resource.Kind{resource.KindDatabase, resource.KindAutoScalingGroup, resource.KindComputeInstance}, plan.Kinds)
}

func TestPlan_StartCapacity(t *testing.T) {
	cfg := testConfig()
	cfg.ASGDesiredCount = 2
	o := newTestOrchestrator(t, cfg,
		okController(resource.KindDatabase),
		okController(resource.KindContainerService),
		okController(resource.KindAutoScalingGroup),
		okController(resource.KindComputeInstance))
	three := 3

	plan, err := o.Plan(resource.ActionRequest{
		Action:    resource.ActionStart,
		Resources: []string{"ecs", "asg"},
		Config:    resource.RequestConfig{ECS: &resource.CapacityConfig{DesiredCount: &three}},
	})

	require.NoError(t, err)
	assert.Equal(t, resource.DesiredState{State: resource.Running, Capacity: 3}, plan.Desired[resource.KindContainerService])
	assert.Equal(t, resource.DesiredState{State: resource.Running, Capacity: 2}, plan.Desired[resource.KindAutoScalingGroup])
}

func TestPlan_StopIgnoresOverrides(t *testing.T) {
	o := newTestOrchestrator(t, testConfig(),
		okController(resource.KindDatabase),
		okController(resource.KindContainerService),
		okController(resource.KindAutoScalingGroup),
		okController(resource.KindComputeInstance))
	five := 5

	plan, err := o.Plan(resource.ActionRequest{
		Action: resource.ActionStop,
		Config: resource.RequestConfig{ASG: &resource.CapacityConfig{DesiredCount: &five}},
	})

	require.NoError(t, err)
	assert.Equal(t, resource.AllKinds(), plan.Kinds)
	assert.Equal(t, int32(0), plan.Desired[resource.KindAutoScalingGroup].Capacity)
}

// The scenarios below run the real controllers against a mocked control plane.

func newFleetOrchestrator(t *testing.T, client *mocks.MockClient) *Orchestrator {
	t.Helper()
	return newTestOrchestrator(t, testConfig(), controllers.NewControllers(client, controllers.Options{})...)
}

func TestExecute_StopMixedFleet(t *testing.T) {
	client := new(mocks.MockClient)
	ctx := context.Background()

	client.On("ListInstances", ctx).Return([]cloud_api.Instance{{ID: "i-1", State: "running"}, {ID: "i-2", State: "running"}}, nil)
	client.On("StopInstance", ctx, "i-1").Return(nil)
	client.On("StopInstance", ctx, "i-2").Return(nil)
	client.On("ListDBInstances", ctx).Return([]cloud_api.DBInstance{{ID: "db-1", Status: "stopped"}}, nil)
	client.On("StopDBInstance", ctx, "db-1").Return(cloud_api.NewProviderError("StopDBInstance", "InvalidDBInstanceState", "Instance db-1 is not in available state."))
	client.On("ListClusters", ctx).Return([]cloud_api.Cluster{{Name: "app", Status: "ACTIVE"}}, nil)
	client.On("ListServices", ctx, "app").Return([]string{"svc"}, nil)
	client.On("UpdateServiceDesiredCount", ctx, "app", "svc", int32(0)).Return(nil)
	client.On("ListAutoScalingGroups", ctx).Return([]cloud_api.AutoScalingGroup{{Name: "web", Capacity: resource.SymmetricCapacity(3)}}, nil)
	client.On("UpdateAutoScalingGroup", ctx, "web", resource.Capacity{Min: 0, Max: 0, Desired: 0}).Return(nil)

	resp := newFleetOrchestrator(t, client).Execute(ctx, resource.ActionRequest{Action: resource.ActionStop})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, resp.Outcomes, 5)

	assert.Equal(t, resource.KindDatabase, resp.Outcomes[0].Kind)
	assert.False(t, resp.Outcomes[0].Succeeded)
	assert.Equal(t, "RDS instance db-1 cannot be stopped as it is not in a valid state", resp.Outcomes[0].Message)

	assert.Equal(t, "svc", resp.Outcomes[1].ResourceID)
	assert.True(t, resp.Outcomes[1].Succeeded)

	assert.Equal(t, "web", resp.Outcomes[2].ResourceID)
	assert.True(t, resp.Outcomes[2].Succeeded)

	assert.Equal(t, "i-1", resp.Outcomes[3].ResourceID)
	assert.Equal(t, "i-2", resp.Outcomes[4].ResourceID)
	assert.True(t, resp.Outcomes[3].Succeeded && resp.Outcomes[4].Succeeded)

	client.AssertExpectations(t)

	body, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"statusCode":200`)
	assert.Contains(t, string(body), `"resource_kind":"rds"`)
}

func TestExecute_StopTwiceIsIdempotent(t *testing.T) {
	client := new(mocks.MockClient)
	ctx := context.Background()

	client.On("ListInstances", ctx).Return([]cloud_api.Instance{{ID: "i-1", State: "stopped"}}, nil)
	client.On("StopInstance", ctx, "i-1").Return(nil)
	client.On("ListDBInstances", ctx).Return([]cloud_api.DBInstance{{ID: "db-1", Status: "available"}}, nil)
	client.On("StopDBInstance", ctx, "db-1").Return(nil).Once()
	client.On("StopDBInstance", ctx, "db-1").Return(cloud_api.NewProviderError("StopDBInstance", "InvalidDBInstanceState", "stopping")).Once()
	client.On("ListClusters", ctx).Return([]cloud_api.Cluster{}, nil)
	client.On("ListAutoScalingGroups", ctx).Return([]cloud_api.AutoScalingGroup{{Name: "web"}}, nil)
	client.On("UpdateAutoScalingGroup", ctx, "web", resource.SymmetricCapacity(0)).Return(nil)

	o := newFleetOrchestrator(t, client)
	req := resource.ActionRequest{Action: resource.ActionStop}

	first := o.Execute(ctx, req)
	second := o.Execute(ctx, req)

	assert.Equal(t, http.StatusOK, first.StatusCode)
	assert.Equal(t, http.StatusOK, second.StatusCode)
	assert.True(t, first.Outcomes[0].Succeeded)
	assert.False(t, second.Outcomes[0].Succeeded)
	assert.Equal(t, resource.ReasonInvalidState, second.Outcomes[0].Reason)
	assert.Len(t, second.Outcomes, len(first.Outcomes))
	client.AssertExpectations(t)
}

func TestExecute_ZeroResourcesYieldsOneRecordPerKind(t *testing.T) {
	client := new(mocks.MockClient)
	ctx := context.Background()

	client.On("ListDBInstances", ctx).Return([]cloud_api.DBInstance{}, nil)
	client.On("ListInstances", ctx).Return([]cloud_api.Instance{{ID: "i-1"}}, nil)
	client.On("StartInstance", ctx, "i-1").Return(nil)

	resp := newFleetOrchestrator(t, client).Execute(ctx, resource.ActionRequest{
		Action:    resource.ActionStart,
		Resources: []string{"ec2", "rds"},
	})

	require.Len(t, resp.Outcomes, 2)
	assert.Equal(t, resource.KindDatabase, resp.Outcomes[0].Kind)
	assert.Equal(t, resource.ReasonNoResources, resp.Outcomes[0].Reason)
	assert.Equal(t, "RDS instances: no resources found", resp.Outcomes[0].Message)
	assert.True(t, resp.Outcomes[1].Succeeded)
	client.AssertNotCalled(t, "ListClusters", mock.Anything)
}

func TestExecute_StartWithoutOverrideUsesCapacityOne(t *testing.T) {
	client := new(mocks.MockClient)
	ctx := context.Background()

	client.On("ListAutoScalingGroups", ctx).Return([]cloud_api.AutoScalingGroup{{Name: "web"}, {Name: "workers"}}, nil)
	client.On("UpdateAutoScalingGroup", ctx, "web", resource.Capacity{Min: 1, Max: 1, Desired: 1}).Return(nil)
	client.On("UpdateAutoScalingGroup", ctx, "workers", resource.Capacity{Min: 1, Max: 1, Desired: 1}).Return(nil)

	resp := newFleetOrchestrator(t, client).Execute(ctx, resource.ActionRequest{
		Action:    resource.ActionStart,
		Resources: []string{"asg"},
	})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, resp.Failures())
	client.AssertExpectations(t)
}
