package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openclaw/openclaw/pkg/builder"
	"github.com/openclaw/openclaw/pkg/client"
	"github.com/openclaw/openclaw/pkg/log"
	"github.com/openclaw/openclaw/pkg/runtime"
)

var builderCmd = &cobra.Command{
	Use:   "builder",
	Short: "Run the image builder service",
	Long: `Run the builder: generates Dockerfiles for capability grants and
deployment packaging, builds them against the local daemon, and
pushes the results to the shared registry.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		listenAddr, _ := cmd.Flags().GetString("listen")
		registryURL, _ := cmd.Flags().GetString("registry")
		agentImagesDir, _ := cmd.Flags().GetString("agent-images-dir")
		workspacesDir, _ := cmd.Flags().GetString("workspaces-dir")
		bootstrapDir, _ := cmd.Flags().GetString("bootstrap-dir")
		controlPlaneURL, _ := cmd.Flags().GetString("control-plane")

		logger := log.WithComponent("builder")

		rt, err := runtime.NewDockerRuntime()
		if err != nil {
			return fmt.Errorf("container runtime: %w", err)
		}
		defer rt.Close()

		svc := builder.NewService(builder.Config{
			RegistryURL:    registryURL,
			AgentImagesDir: agentImagesDir,
			WorkspacesDir:  workspacesDir,
			BootstrapDir:   bootstrapDir,
		}, rt, client.NewControlPlane(controlPlaneURL))

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := svc.EnsureBaseImage(ctx); err != nil {
			logger.Warn().Err(err).Msg("Base image bootstrap failed, first build will retry")
		}

		server := &http.Server{Addr: listenAddr, Handler: svc.Router()}
		errCh := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		logger.Info().Str("addr", listenAddr).Str("registry", registryURL).Msg("Builder starting")

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

func init() {
	builderCmd.Flags().String("listen", ":8001", "Address for the builder API")
	builderCmd.Flags().String("registry", builder.DefaultRegistryURL, "Image registry address")
	builderCmd.Flags().String("agent-images-dir", "/agent-images", "Directory where generated Dockerfiles are persisted")
	builderCmd.Flags().String("workspaces-dir", "/workspaces", "Directory holding per-task workspaces")
	builderCmd.Flags().String("bootstrap-dir", "/bootstrap", "Directory holding the base-image Dockerfile")
	builderCmd.Flags().String("control-plane", "http://control-plane:8000", "Control-plane base URL")
}
