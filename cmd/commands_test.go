package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/omnistrate-community/resource-scheduler/internal/cloud_api"
	"github.com/omnistrate-community/resource-scheduler/internal/cloud_api/mocks"
	"github.com/omnistrate-community/resource-scheduler/internal/config"
	"github.com/omnistrate-community/resource-scheduler/internal/resource"
)

func useClient(t *testing.T, client cloud_api.Client) {
	t.Helper()
	orig := newClient
	newClient = func(context.Context, *config.Config, zerolog.Logger) (cloud_api.Client, error) {
		return client, nil
	}
	t.Cleanup(func() { newClient = orig })
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand(zerolog.Nop())
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestBuildRequest(t *testing.T) {
	yamlFile := writeFile(t, "request.yaml", `
action: start
resources:
  - ecs
  - asg
config:
  ecs:
    desired_count: 2
`)
	jsonFile := writeFile(t, "request.json", `{"action":"stop","resources":["rds"]}`)

	tests := []struct {
		name      string
		args      []string
		action    resource.Action
		resources []string
		ecs       *int
		asg       *int
	}{
		{"flags only", []string{"--action", "stop", "--resources", "rds,ec2"}, resource.ActionStop, []string{"rds", "ec2"}, nil, nil},
		{"yaml file", []string{"-f", yamlFile}, resource.ActionStart, []string{"ecs", "asg"}, intPtr(2), nil},
		{"json file", []string{"-f", jsonFile}, resource.ActionStop, []string{"rds"}, nil, nil},
		{"flags override file", []string{"-f", yamlFile, "--resources", "asg", "--asg-desired-count", "4"}, resource.ActionStart, []string{"asg"}, intPtr(2), intPtr(4)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var flags runFlags
			cmd := &cobra.Command{}
			bindRunFlags(cmd, &flags)
			require.NoError(t, cmd.ParseFlags(tt.args))

			req, err := buildRequest(cmd, flags)

			require.NoError(t, err)
			assert.Equal(t, tt.action, req.Action)
			assert.Equal(t, tt.resources, req.Resources)
			assertCount(t, tt.ecs, req.Config.ECS)
			assertCount(t, tt.asg, req.Config.ASG)
		})
	}
}

func TestBuildRequest_MissingFile(t *testing.T) {
	cmd := &cobra.Command{}
	_, err := buildRequest(cmd, runFlags{file: filepath.Join(t.TempDir(), "missing.yaml")})

	assert.Error(t, err)
}

func TestRunCommand_Stop(t *testing.T) {
	client := new(mocks.MockClient)
	client.On("ListDBInstances", mock.Anything).Return([]cloud_api.DBInstance{{ID: "db-1", Status: "available"}}, nil)
	client.On("StopDBInstance", mock.Anything, "db-1").Return(nil)
	useClient(t, client)

	out, err := execute(t, "run", "--action", "stop", "--resources", "rds")

	require.NoError(t, err)
	var resp resource.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 200, resp.StatusCode)
	require.Len(t, resp.Outcomes, 1)
	assert.Equal(t, "db-1", resp.Outcomes[0].ResourceID)
	client.AssertExpectations(t)
}

func TestRunCommand_StartWithoutResources(t *testing.T) {
	client := new(mocks.MockClient)
	useClient(t, client)

	out, err := execute(t, "run", "--action", "start")

	require.Error(t, err)
	assert.Contains(t, out, `"statusCode": 400`)
	assert.Empty(t, client.Calls)
}

func TestCheckCommand(t *testing.T) {
	client := new(mocks.MockClient)
	client.On("ListDBInstances", mock.Anything).Return([]cloud_api.DBInstance{
		{ID: "db-1", Status: "available"},
		{ID: "db-2", Status: "available"},
		{ID: "db-3", Status: "stopped"},
	}, nil)
	useClient(t, client)

	out, err := execute(t, "check")

	require.NoError(t, err)
	var resp resource.ReadinessResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, resource.NotAvailable, resp.Body.RDSStatus)
}

func TestCheckCommand_Wait(t *testing.T) {
	t.Setenv("SCHEDULER_READINESS_INTERVAL", "1")
	t.Setenv("SCHEDULER_READINESS_TIMEOUT", "5")

	client := new(mocks.MockClient)
	client.On("ListDBInstances", mock.Anything).Return([]cloud_api.DBInstance{{ID: "db-1", Status: "available"}}, nil)
	useClient(t, client)

	out, err := execute(t, "check", "--wait")

	require.NoError(t, err)
	assert.Contains(t, out, `"rds_status": "available"`)
}

func TestRootCommand_InvalidConfig(t *testing.T) {
	t.Setenv("SCHEDULER_READINESS_POLICY", "most")
	useClient(t, new(mocks.MockClient))

	_, err := execute(t, "check")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func intPtr(n int) *int {
	return &n
}

func assertCount(t *testing.T, expected *int, got *resource.CapacityConfig) {
	t.Helper()
	if expected == nil {
		assert.Nil(t, got)
		return
	}
	require.NotNil(t, got)
	require.NotNil(t, got.DesiredCount)
	assert.Equal(t, *expected, *got.DesiredCount)
}
