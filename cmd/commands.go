package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/omnistrate-community/resource-scheduler/internal/api"
	"github.com/omnistrate-community/resource-scheduler/internal/cloud_api"
	"github.com/omnistrate-community/resource-scheduler/internal/config"
	"github.com/omnistrate-community/resource-scheduler/internal/controllers"
	"github.com/omnistrate-community/resource-scheduler/internal/metrics"
	"github.com/omnistrate-community/resource-scheduler/internal/orchestrator"
	"github.com/omnistrate-community/resource-scheduler/internal/readiness"
	"github.com/omnistrate-community/resource-scheduler/internal/resource"
)

// newClient builds the control-plane client. Tests replace it.
var newClient = func(ctx context.Context, cfg *config.Config, log zerolog.Logger) (cloud_api.Client, error) {
	client, err := cloud_api.NewAWSClient(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// scheduler holds everything a command needs, built from the environment.
type scheduler struct {
	cfg          *config.Config
	log          zerolog.Logger
	metrics      *metrics.Metrics
	orchestrator *orchestrator.Orchestrator
	checker      *readiness.Checker
}

func newScheduler(ctx context.Context, log zerolog.Logger) (*scheduler, error) {
	cfg, err := config.NewConfigFromEnv()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}

	client, err := newClient(ctx, cfg, log)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create AWS client")
	}

	m := metrics.New()
	orch, err := orchestrator.New(cfg, controllers.NewControllers(client, controllers.Options{FailFast: cfg.FailFast}), m, log)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("region", cfg.Region).
		Bool("fail_fast", cfg.FailFast).
		Bool("parallel_kinds", cfg.ParallelKinds).
		Str("readiness_policy", cfg.ReadinessPolicy).
		Msg("Scheduler initialized")

	return &scheduler{
		cfg:          cfg,
		log:          log,
		metrics:      m,
		orchestrator: orch,
		checker:      readiness.NewChecker(client, cfg, m, log),
	}, nil
}

func newRootCommand(log zerolog.Logger) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "resource-scheduler",
		Short: "Start and stop AWS resources on demand",
		Long: `resource-scheduler starts or stops every RDS instance, ECS service,
Auto Scaling Group and EC2 instance of an account and region, and reports
whether the RDS fleet has settled.

Environment variables:
  - AWS_REGION: region to operate in (optional, SDK default chain otherwise)
  - PORT: HTTP port for serve (default 3000)
  - SCHEDULER_ECS_DESIRED_COUNT: ECS desired count on start (default 1)
  - SCHEDULER_ASG_DESIRED_COUNT: ASG capacity on start (default 1)
  - SCHEDULER_FAIL_FAST: abort a kind after an unexpected failure (default false)
  - SCHEDULER_PARALLEL_KINDS: process resource kinds concurrently (default false)
  - SCHEDULER_READINESS_POLICY: all or any (default all)
  - LOG_LEVEL, LOG_FORMAT: logging`,
		Version:       fmt.Sprintf("%s (commit: %s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newServeCommand(log))
	rootCmd.AddCommand(newRunCommand(log))
	rootCmd.AddCommand(newCheckCommand(log))

	return rootCmd
}

func newServeCommand(log zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the invoke, readiness, health and metrics endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newScheduler(cmd.Context(), log)
			if err != nil {
				return err
			}
			server := api.NewServer(s.orchestrator, s.checker, s.metrics, log)
			return server.ListenAndServe(cmd.Context(), s.cfg.Port)
		},
	}
}

type runFlags struct {
	file            string
	action          string
	resources       []string
	ecsDesiredCount int
	asgDesiredCount int
}

func newRunCommand(log zerolog.Logger) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one start or stop action and print the response",
		Example: `  # Stop everything
  resource-scheduler run --action stop

  # Start the databases and ECS services with 2 tasks each
  resource-scheduler run --action start --resources rds,ecs --ecs-desired-count 2

  # Run a request file
  resource-scheduler run -f request.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildRequest(cmd, flags)
			if err != nil {
				return err
			}

			s, err := newScheduler(cmd.Context(), log)
			if err != nil {
				return err
			}

			resp := s.orchestrator.Execute(cmd.Context(), req)
			if err := printJSON(cmd.OutOrStdout(), resp); err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				return errors.Errorf("request rejected: %s", resp.Message)
			}
			return nil
		},
	}

	bindRunFlags(cmd, &flags)

	return cmd
}

func bindRunFlags(cmd *cobra.Command, flags *runFlags) {
	cmd.Flags().StringVarP(&flags.file, "file", "f", "", "request file (YAML or JSON)")
	cmd.Flags().StringVarP(&flags.action, "action", "a", "", "action to run: start or stop")
	cmd.Flags().StringSliceVarP(&flags.resources, "resources", "r", nil, "resource kinds: rds, ecs, asg, ec2 (stop defaults to all)")
	cmd.Flags().IntVar(&flags.ecsDesiredCount, "ecs-desired-count", 0, "ECS desired count on start")
	cmd.Flags().IntVar(&flags.asgDesiredCount, "asg-desired-count", 0, "ASG capacity on start")
}

// buildRequest reads the request file, if any, and applies the flags that
// were set on top of it.
func buildRequest(cmd *cobra.Command, flags runFlags) (resource.ActionRequest, error) {
	var req resource.ActionRequest
	if flags.file != "" {
		data, err := os.ReadFile(flags.file)
		if err != nil {
			return req, errors.Wrap(err, "failed to read request file")
		}
		// YAML is a superset of JSON, so both formats decode here.
		if err := yaml.Unmarshal(data, &req); err != nil {
			return req, errors.Wrapf(err, "failed to parse request file %s", flags.file)
		}
	}

	changed := cmd.Flags().Changed
	if changed("action") {
		req.Action = resource.Action(flags.action)
	}
	if changed("resources") {
		req.Resources = flags.resources
	}
	if changed("ecs-desired-count") {
		n := flags.ecsDesiredCount
		req.Config.ECS = &resource.CapacityConfig{DesiredCount: &n}
	}
	if changed("asg-desired-count") {
		n := flags.asgDesiredCount
		req.Config.ASG = &resource.CapacityConfig{DesiredCount: &n}
	}
	return req, nil
}

func newCheckCommand(log zerolog.Logger) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report whether the RDS instances are available",
		Long: `Check lists every RDS instance and prints the readiness verdict.

With --wait it polls every SCHEDULER_READINESS_INTERVAL seconds until the
instances are available or SCHEDULER_READINESS_TIMEOUT seconds have passed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newScheduler(cmd.Context(), log)
			if err != nil {
				return err
			}

			if wait {
				if err := s.checker.WaitUntilAvailable(cmd.Context()); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), readiness.Response(resource.Available))
			}

			verdict, err := s.checker.Check(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), readiness.Response(verdict))
		},
	}

	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "poll until the instances are available")

	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
