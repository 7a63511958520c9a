package cloud_api

import (
	"context"

	"github.com/omnistrate-community/resource-scheduler/internal/resource"
)

// Instance is a compute instance as reported by the control plane.
type Instance struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

// DBInstance is a managed database instance.
type DBInstance struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Cluster is a container-service cluster.
type Cluster struct {
	ARN    string `json:"arn"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

const ClusterStatusActive = "ACTIVE"

const (
	DBStatusAvailable = "available"
	DBStatusStopped   = "stopped"
)

// AutoScalingGroup is a group with its current size bounds.
type AutoScalingGroup struct {
	Name     string            `json:"name"`
	Capacity resource.Capacity `json:"capacity"`
}

type ComputeAPI interface {
	ListInstances(ctx context.Context) ([]Instance, error)
	StartInstance(ctx context.Context, id string) error
	StopInstance(ctx context.Context, id string) error
}

type DatabaseAPI interface {
	ListDBInstances(ctx context.Context) ([]DBInstance, error)
	StartDBInstance(ctx context.Context, id string) error
	StopDBInstance(ctx context.Context, id string) error
}

type ContainerAPI interface {
	ListClusters(ctx context.Context) ([]Cluster, error)
	ListServices(ctx context.Context, cluster string) ([]string, error)
	UpdateServiceDesiredCount(ctx context.Context, cluster, service string, desiredCount int32) error
}

type AutoScalingAPI interface {
	ListAutoScalingGroups(ctx context.Context) ([]AutoScalingGroup, error)
	UpdateAutoScalingGroup(ctx context.Context, name string, capacity resource.Capacity) error
}

// Client is the whole control-plane surface the scheduler consumes.
type Client interface {
	ComputeAPI
	DatabaseAPI
	ContainerAPI
	AutoScalingAPI
}
