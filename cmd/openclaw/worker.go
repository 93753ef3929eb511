package main

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/openclaw/openclaw/pkg/agent"
	"github.com/openclaw/openclaw/pkg/client"
	"github.com/openclaw/openclaw/pkg/runtime"
	"github.com/openclaw/openclaw/pkg/workflow"
	"github.com/openclaw/openclaw/pkg/workspace"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the workflow worker",
	Long: `Run the Temporal worker that executes task workflows: launching
agent containers, polling their LLM turns, filing capability
requests, and driving deployment builds and starts.

The worker talks to the control plane and the builder over HTTP and
to the container engine directly, so it must run next to the Docker
daemon that hosts the agent containers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		temporalHost, _ := cmd.Flags().GetString("temporal")
		namespace, _ := cmd.Flags().GetString("temporal-namespace")
		controlPlaneURL, _ := cmd.Flags().GetString("control-plane")
		controlPlaneIP, _ := cmd.Flags().GetString("control-plane-ip")
		builderURL, _ := cmd.Flags().GetString("builder")
		workspacesDir, _ := cmd.Flags().GetString("workspaces-dir")
		agentImagesDir, _ := cmd.Flags().GetString("agent-images-dir")
		ollamaURL, _ := cmd.Flags().GetString("ollama")

		rt, err := runtime.NewDockerRuntime()
		if err != nil {
			return fmt.Errorf("container runtime: %w", err)
		}
		defer rt.Close()

		workspaces, err := workspace.NewManager(workspacesDir)
		if err != nil {
			return fmt.Errorf("workspaces at %s: %w", workspacesDir, err)
		}

		cp := client.NewControlPlane(controlPlaneURL)
		bld := client.NewBuilder(builderURL)

		agentCfg := agent.DefaultConfig()
		agentCfg.AgentImagesDir = agentImagesDir
		agentCfg.ControlPlaneIP = controlPlaneIP
		if ollamaURL != "" {
			agentCfg.OllamaURL = ollamaURL
		}
		if u, err := url.Parse(controlPlaneURL); err == nil && u.Hostname() != "" {
			agentCfg.ControlPlaneHost = u.Hostname()
			if port, err := strconv.Atoi(u.Port()); err == nil {
				agentCfg.ControlPlanePort = port
			}
		}

		cfg := workflow.DefaultWorkerConfig()
		cfg.TemporalHost = temporalHost
		cfg.Namespace = namespace

		w, err := workflow.NewWorker(cfg,
			workflow.NewTaskActivities(cp, bld, rt, workspaces),
			agent.NewActivities(agentCfg, rt, cp, workspaces),
		)
		if err != nil {
			return err
		}
		defer w.Close()

		return w.Run()
	},
}

func init() {
	workerCmd.Flags().String("temporal", "temporal:7233", "Temporal frontend address")
	workerCmd.Flags().String("temporal-namespace", "default", "Temporal namespace")
	workerCmd.Flags().String("control-plane", "http://control-plane:8000", "Control-plane base URL")
	workerCmd.Flags().String("control-plane-ip", "", "Control-plane IP injected into agent containers (overrides DNS resolution)")
	workerCmd.Flags().String("builder", "http://builder:8001", "Builder service base URL")
	workerCmd.Flags().String("workspaces-dir", "/workspaces", "Directory holding per-task workspaces")
	workerCmd.Flags().String("agent-images-dir", "/agent-images", "Directory where the builder persists Dockerfiles")
	workerCmd.Flags().String("ollama", "", "Ollama URL injected into agent containers")
}
