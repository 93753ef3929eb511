package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/openclaw/openclaw/pkg/api"
	"github.com/openclaw/openclaw/pkg/events"
	"github.com/openclaw/openclaw/pkg/gateway"
	"github.com/openclaw/openclaw/pkg/log"
	"github.com/openclaw/openclaw/pkg/manager"
	"github.com/openclaw/openclaw/pkg/reconciler"
	"github.com/openclaw/openclaw/pkg/runtime"
	"github.com/openclaw/openclaw/pkg/storage"
	"github.com/openclaw/openclaw/pkg/workflow"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the control-plane API server",
	Long: `Run the control-plane: the REST API, the LLM gateway, the event
broker, and the deployment reconciler. Workflow starts and approval
signals are forwarded to the Temporal engine.

Provider keys are read from the environment (GEMINI_API_KEY,
ANTHROPIC_API_KEY, OPENAI_API_KEY, OLLAMA_URL) and can be updated at
runtime through the gateway config endpoint.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		listenAddr, _ := cmd.Flags().GetString("listen")
		temporalHost, _ := cmd.Flags().GetString("temporal")
		namespace, _ := cmd.Flags().GetString("temporal-namespace")
		agentImagesDir, _ := cmd.Flags().GetString("agent-images-dir")

		logger := log.WithComponent("server")

		store, err := storage.NewBoltStore(dataDir)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer store.Close()

		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()

		tc, err := temporalclient.Dial(temporalclient.Options{
			HostPort:  temporalHost,
			Namespace: namespace,
			Logger:    log.NewTemporalAdapter(log.WithComponent("temporal")),
		})
		if err != nil {
			return fmt.Errorf("dial temporal at %s: %w", temporalHost, err)
		}
		defer tc.Close()

		mgr := manager.NewManager(manager.Config{
			Store:          store,
			Broker:         broker,
			Starter:        workflow.NewStarter(tc, workflow.TaskQueue),
			AgentImagesDir: agentImagesDir,
		})

		gw := gateway.New(store, providerEnv())

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		go manager.NewMetricsCollector(mgr).Run(ctx)

		// The reconciler needs the Docker daemon. The API itself does not,
		// so a missing daemon degrades rather than fails.
		if rt, err := runtime.NewDockerRuntime(); err != nil {
			logger.Warn().Err(err).Msg("Container runtime unavailable, deployment reconciler disabled")
		} else {
			defer rt.Close()
			recon := reconciler.NewReconciler(mgr, rt)
			recon.Start()
			defer recon.Stop()
		}

		logger.Info().Str("addr", listenAddr).Str("data_dir", dataDir).Msg("Control plane starting")
		return api.NewServer(mgr, gw).Run(ctx, listenAddr)
	},
}

// providerEnv collects the gateway's seed configuration from the process
// environment, skipping unset keys so stored values survive restarts
func providerEnv() map[string]string {
	env := make(map[string]string)
	for _, key := range []string{
		gateway.KeyOllamaURL,
		gateway.KeyGeminiKey,
		gateway.KeyAnthropicKey,
		gateway.KeyOpenAIKey,
	} {
		if value := os.Getenv(key); value != "" {
			env[key] = value
		}
	}
	return env
}

func init() {
	serverCmd.Flags().String("data-dir", "/data", "Directory for the bbolt database")
	serverCmd.Flags().String("listen", ":8000", "Address for the REST API")
	serverCmd.Flags().String("temporal", "temporal:7233", "Temporal frontend address")
	serverCmd.Flags().String("temporal-namespace", "default", "Temporal namespace")
	serverCmd.Flags().String("agent-images-dir", "/agent-images", "Directory where the builder persists Dockerfiles")
}
