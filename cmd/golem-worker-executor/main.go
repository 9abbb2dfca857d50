package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/golemproject/workerexec/internal/component/agent"
	"github.com/golemproject/workerexec/internal/config"
	"github.com/golemproject/workerexec/internal/engine"
	"github.com/golemproject/workerexec/internal/hostservices"
	"github.com/golemproject/workerexec/internal/logging"
	"github.com/golemproject/workerexec/internal/logsink"
	"github.com/golemproject/workerexec/internal/observability"
	"github.com/golemproject/workerexec/internal/oplog"
	"github.com/golemproject/workerexec/internal/oplogservice"
	"github.com/golemproject/workerexec/internal/payloadstore"
	"github.com/golemproject/workerexec/internal/valuetype"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "golem-worker-executor",
		Short: "Golem worker executor",
		Long:  "Drives durable WebAssembly worker execution: oplog, replay and the per-worker invocation lifecycle.",
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML config file (optional, env vars always override)")

	rootCmd.AddCommand(
		createCmd(),
		invokeCmd(),
		serveCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.LoadFromFile(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	config.LoadFromEnv(cfg)
	return cfg, nil
}

func openBackend(cfg *config.Config) (oplog.Backend, func() error, error) {
	switch cfg.Oplog.Backend {
	case "postgres":
		svc, err := oplogservice.NewPostgresService(context.Background(), cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		return svc, svc.Close, nil
	default:
		svc, err := oplogservice.NewBoltService(cfg.Oplog.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		return svc, svc.Close, nil
	}
}

func newRegistry(cfg *config.Config) (*engine.Registry, func() error, error) {
	tracingCfg := observability.Config{
		Enabled:     cfg.Observability.Tracing.Enabled,
		Exporter:    cfg.Observability.Tracing.Exporter,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		ServiceName: cfg.Observability.Tracing.ServiceName,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
	}
	if err := observability.Init(context.Background(), tracingCfg); err != nil {
		logging.Op().Warn("tracing disabled, continuing without it", "error", err)
	}

	backend, closer, err := openBackend(cfg)
	if err != nil {
		return nil, nil, err
	}

	components := hostservices.NewStaticComponentService()
	fileLoader := hostservices.NewContentAddressedFileLoader(nil)

	reg := engine.NewRegistry(backend, components, fileLoader)
	reg.DefaultRetry = cfg.RetryPolicy
	reg.DefaultLevel = cfg.Durability.Level()
	if cfg.Oplog.CommitLevel == "batched" {
		reg.CommitLevel = oplog.CommitDurableOnly
	} else {
		reg.CommitLevel = oplog.CommitImmediate
	}

	if cfg.Oplog.Backend == "postgres" {
		if sink, err := logsink.NewPostgresSink(context.Background(), cfg.Postgres.DSN); err == nil {
			reg.LogSink = sink
		} else {
			logging.Op().Warn("invocation log sink unavailable, falling back to no-op", "error", err)
		}
	}

	if cfg.Blob.Bucket != "" {
		store, err := payloadstore.NewS3Store(context.Background(), payloadstore.Config{
			Bucket:          cfg.Blob.Bucket,
			Prefix:          cfg.Blob.Prefix,
			Region:          cfg.Blob.Region,
			Endpoint:        cfg.Blob.Endpoint,
			UsePathStyle:    cfg.Blob.UsePathStyle,
			AccessKeyID:     cfg.Blob.AccessKeyID,
			SecretAccessKey: cfg.Blob.SecretAccessKey,
		})
		if err == nil {
			reg.Payloads = store
		} else {
			logging.Op().Warn("oversized-payload store unavailable, falling back to in-memory", "error", err)
		}
	}

	addr := agent.Addr(cfg.Agent.Addr)
	client := agent.NewClient(addr)
	reg.NewExecutor = func(componentId oplog.ComponentId, version uint64) (engine.WasmExecutor, error) {
		return engine.NewAgentExecutor(client, cfg.Agent.InvokeTimeout), nil
	}

	return reg, closer, nil
}

func parseComponentId(s string) (oplog.ComponentId, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return oplog.ComponentId{}, fmt.Errorf("invalid component id %q: %w", s, err)
	}
	return oplog.ComponentId{UUID: u}, nil
}

func ownedWorkerFromFlags(project, component, workerName string) (oplog.OwnedWorkerId, error) {
	cid, err := parseComponentId(component)
	if err != nil {
		return oplog.OwnedWorkerId{}, err
	}
	projectUUID, err := uuid.Parse(project)
	if err != nil {
		return oplog.OwnedWorkerId{}, fmt.Errorf("invalid project id %q: %w", project, err)
	}
	return oplog.OwnedWorkerId{
		ProjectId: oplog.ProjectId{UUID: projectUUID},
		WorkerId: oplog.WorkerId{
			ComponentId: cid,
			WorkerName:  workerName,
		},
	}, nil
}

func createCmd() *cobra.Command {
	var project, component, workerName string
	var args []string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new durable worker",
		RunE: func(cmd *cobra.Command, cargs []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			reg, closer, err := newRegistry(cfg)
			if err != nil {
				return err
			}
			defer closer()

			owner, err := ownedWorkerFromFlags(project, component, workerName)
			if err != nil {
				return err
			}
			w, err := reg.CreateWorker(cmd.Context(), engine.CreateParams{
				Owner:     owner,
				Component: owner.WorkerId.ComponentId,
				Args:      args,
				Env:       map[string]string{},
				CreatedBy: "cli",
			})
			if err != nil {
				return err
			}
			fmt.Println(w.Owner.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project id (UUID)")
	cmd.Flags().StringVar(&component, "component", "", "component id (UUID)")
	cmd.Flags().StringVar(&workerName, "name", "", "worker name")
	cmd.Flags().StringSliceVar(&args, "arg", nil, "worker command-line argument (repeatable)")
	_ = cmd.MarkFlagRequired("component")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func invokeCmd() *cobra.Command {
	var project, component, workerName, functionName, argsJSON, idempotencyKey string

	cmd := &cobra.Command{
		Use:   "invoke",
		Short: "Invoke an exported function on a worker, loading it (and replaying its oplog) first if necessary",
		RunE: func(cmd *cobra.Command, cargs []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			reg, closer, err := newRegistry(cfg)
			if err != nil {
				return err
			}
			defer closer()

			owner, err := ownedWorkerFromFlags(project, component, workerName)
			if err != nil {
				return err
			}

			var args []valuetype.ValueAndType
			if argsJSON != "" {
				if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
					return fmt.Errorf("parse --args: %w", err)
				}
			}

			exec, err := defaultExecutor(cfg)
			if err != nil {
				return err
			}
			w, err := reg.LoadOrGet(cmd.Context(), owner, exec)
			if err != nil {
				return err
			}

			key := oplog.IdempotencyKey{Value: idempotencyKey}
			if key.Value == "" {
				key = oplog.NewIdempotencyKey()
			}

			result, err := reg.Invoke(cmd.Context(), w, functionName, key, args)
			if err != nil {
				return err
			}
			encoded, err := json.Marshal(result)
			if err != nil {
				return err
			}
			fmt.Println(string(encoded))
			return nil
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project id (UUID)")
	cmd.Flags().StringVar(&component, "component", "", "component id (UUID)")
	cmd.Flags().StringVar(&workerName, "name", "", "worker name")
	cmd.Flags().StringVar(&functionName, "function", "", "exported function name")
	cmd.Flags().StringVar(&argsJSON, "args", "", "JSON-encoded []valuetype.ValueAndType argument list")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "idempotency key (random if omitted)")
	_ = cmd.MarkFlagRequired("component")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("function")
	return cmd
}

func defaultExecutor(cfg *config.Config) (engine.WasmExecutor, error) {
	addr := agent.Addr(cfg.Agent.Addr)
	client := agent.NewClient(addr)
	return engine.NewAgentExecutor(client, cfg.Agent.InvokeTimeout), nil
}

// serveCmd keeps the process alive so already-created workers can be driven
// by out-of-process callers (e.g. a future RPC front end); the durable
// orchestration itself is entirely within internal/engine.Registry, not
// this command.
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the worker executor daemon",
		RunE: func(cmd *cobra.Command, cargs []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			_, closer, err := newRegistry(cfg)
			if err != nil {
				return err
			}
			defer closer()

			logging.Op().Info("golem-worker-executor started", "oplog_backend", cfg.Oplog.Backend, "agent_addr", cfg.Agent.Addr)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			logging.Op().Info("golem-worker-executor shutting down")
			return nil
		},
	}
}
