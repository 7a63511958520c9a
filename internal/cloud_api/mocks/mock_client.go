package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/omnistrate-community/resource-scheduler/internal/cloud_api"
	"github.com/omnistrate-community/resource-scheduler/internal/resource"
)

// MockClient is a mock implementation of the cloud_api.Client interface
type MockClient struct {
	mock.Mock
}

var _ cloud_api.Client = (*MockClient)(nil)

func (m *MockClient) ListInstances(ctx context.Context) ([]cloud_api.Instance, error) {
	args := m.Called(ctx)
	instances, _ := args.Get(0).([]cloud_api.Instance)
	return instances, args.Error(1)
}

func (m *MockClient) StartInstance(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockClient) StopInstance(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockClient) ListDBInstances(ctx context.Context) ([]cloud_api.DBInstance, error) {
	args := m.Called(ctx)
	instances, _ := args.Get(0).([]cloud_api.DBInstance)
	return instances, args.Error(1)
}

func (m *MockClient) StartDBInstance(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockClient) StopDBInstance(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockClient) ListClusters(ctx context.Context) ([]cloud_api.Cluster, error) {
	args := m.Called(ctx)
	clusters, _ := args.Get(0).([]cloud_api.Cluster)
	return clusters, args.Error(1)
}

func (m *MockClient) ListServices(ctx context.Context, cluster string) ([]string, error) {
	args := m.Called(ctx, cluster)
	services, _ := args.Get(0).([]string)
	return services, args.Error(1)
}

func (m *MockClient) UpdateServiceDesiredCount(ctx context.Context, cluster, service string, desiredCount int32) error {
	return m.Called(ctx, cluster, service, desiredCount).Error(0)
}

func (m *MockClient) ListAutoScalingGroups(ctx context.Context) ([]cloud_api.AutoScalingGroup, error) {
	args := m.Called(ctx)
	groups, _ := args.Get(0).([]cloud_api.AutoScalingGroup)
	return groups, args.Error(1)
}

func (m *MockClient) UpdateAutoScalingGroup(ctx context.Context, name string, capacity resource.Capacity) error {
	return m.Called(ctx, name, capacity).Error(0)
}
