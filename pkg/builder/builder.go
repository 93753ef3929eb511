package builder

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openclaw/openclaw/pkg/log"
	"github.com/openclaw/openclaw/pkg/metrics"
	"github.com/openclaw/openclaw/pkg/runtime"
	"github.com/openclaw/openclaw/pkg/types"
)

const (
	// DefaultRegistryURL is the in-cluster registry
	DefaultRegistryURL = "localhost:5000"

	// BaseImageName is the shared agent base image tag
	BaseImageName = "openclaw-agent:openclaw"
)

// ControlPlane is the slice of the control-plane API the builder needs
// when assembling a deployment build context
type ControlPlane interface {
	GetTask(ctx context.Context, taskID string) (*types.Task, error)
	ListTaskOutputs(ctx context.Context, taskID string) ([]*types.TaskOutput, error)
}

// Config holds builder service configuration
type Config struct {
	RegistryURL    string
	AgentImagesDir string
	WorkspacesDir  string

	// BootstrapDir holds Dockerfile.openclaw for building the base
	// image when neither the daemon nor the registry has it
	BootstrapDir string
}

// Service builds agent and deployment images
type Service struct {
	config       Config
	runtime      runtime.ContainerRuntime
	controlPlane ControlPlane
	builds       *Registry
}

// NewService creates a builder service
func NewService(config Config, rt runtime.ContainerRuntime, cp ControlPlane) *Service {
	if config.RegistryURL == "" {
		config.RegistryURL = DefaultRegistryURL
	}
	return &Service{
		config:       config,
		runtime:      rt,
		controlPlane: cp,
		builds:       NewRegistry(),
	}
}

// Builds exposes the registry for the HTTP layer
func (s *Service) Builds() *Registry {
	return s.builds
}

// BaseImage returns the fully qualified base image reference
func (s *Service) BaseImage() string {
	return s.config.RegistryURL + "/" + BaseImageName
}

// StartAgentBuild registers a build for a new capability layer and runs
// it in the background. The returned build is in pending state.
func (s *Service) StartAgentBuild(taskID, baseImage string, caps []types.Capability) *types.Build {
	buildID := uuid.NewString()[:8]
	version := s.builds.NextVersion(taskID)
	imageTag := fmt.Sprintf("openclaw-agent:%s-v%d", taskID, version)

	if baseImage == "" {
		baseImage = s.BaseImage()
	}

	normalized := NormalizeCapabilities(caps)
	dockerfile := GenerateAgentDockerfile(taskID, buildID, baseImage, normalized)

	build := s.builds.Create(buildID, taskID, imageTag)
	log.WithBuildID(buildID).Info().
		Str("task_id", taskID).
		Str("image_tag", imageTag).
		Int("capabilities", len(normalized)).
		Msg("Agent image build queued")

	go s.runAgentBuild(buildID, taskID, dockerfile, imageTag, version)
	return build
}

func (s *Service) runAgentBuild(buildID, taskID, dockerfile, imageTag string, version int) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	timer := metrics.NewTimer()
	s.builds.SetStatus(buildID, types.BuildBuilding, "", "", "")

	dir := filepath.Join(s.config.AgentImagesDir, taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.fail(buildID, "agent", fmt.Errorf("create build dir: %w", err))
		return
	}

	// Persist versioned and latest Dockerfiles; the latest copy is what
	// agents see in AGENT_DOCKERFILE and what deployment builds scan
	versioned := filepath.Join(dir, fmt.Sprintf("Dockerfile.v%d", version))
	if err := os.WriteFile(versioned, []byte(dockerfile), 0o644); err != nil {
		s.fail(buildID, "agent", fmt.Errorf("write dockerfile: %w", err))
		return
	}
	if err := os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte(dockerfile), 0o644); err != nil {
		s.fail(buildID, "agent", fmt.Errorf("write latest dockerfile: %w", err))
		return
	}

	registryTag := s.config.RegistryURL + "/" + imageTag
	if err := s.buildTagPush(ctx, buildID, dir, filepath.Base(versioned), imageTag, registryTag); err != nil {
		s.fail(buildID, "agent", err)
		return
	}

	s.builds.SetStatus(buildID, types.BuildSuccess, registryTag, "", "")
	metrics.BuildsTotal.WithLabelValues("agent", "success").Inc()
	timer.ObserveDurationVec(metrics.BuildDuration, "agent")
	log.WithBuildID(buildID).Info().Str("image_tag", registryTag).Msg("Agent image build succeeded")
}

// StartDeploymentBuild registers a deployment image build and runs it in
// the background
func (s *Service) StartDeploymentBuild(deploymentID, taskID, entrypoint string, port int, extraPip []string) *types.Build {
	buildID := uuid.NewString()[:8]
	imageTag := "openclaw-deploy:" + deploymentID

	build := s.builds.Create(buildID, taskID, imageTag)
	log.WithBuildID(buildID).Info().
		Str("deployment_id", deploymentID).
		Str("task_id", taskID).
		Msg("Deployment image build queued")

	go s.runDeploymentBuild(buildID, deploymentID, taskID, entrypoint, port, extraPip)
	return build
}

func (s *Service) runDeploymentBuild(buildID, deploymentID, taskID, entrypoint string, port int, extraPip []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	timer := metrics.NewTimer()
	s.builds.SetStatus(buildID, types.BuildBuilding, "", "", "")

	pip, apt := s.inferPackages(taskID, extraPip)
	dockerfile := GenerateDeploymentDockerfile(deploymentID, taskID, entrypoint, port, pip, apt)

	dir := filepath.Join(s.config.AgentImagesDir, "deployments", deploymentID)
	appDir := filepath.Join(dir, "app")
	if err := os.MkdirAll(appDir, 0o755); err != nil {
		s.fail(buildID, "deployment", fmt.Errorf("create build dir: %w", err))
		return
	}
	if err := os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte(dockerfile), 0o644); err != nil {
		s.fail(buildID, "deployment", fmt.Errorf("write dockerfile: %w", err))
		return
	}

	if err := s.assembleAppDir(ctx, taskID, appDir); err != nil {
		s.fail(buildID, "deployment", err)
		return
	}

	imageTag := "openclaw-deploy:" + deploymentID
	registryTag := s.config.RegistryURL + "/" + imageTag
	if err := s.buildTagPush(ctx, buildID, dir, "Dockerfile", imageTag, registryTag); err != nil {
		s.fail(buildID, "deployment", err)
		return
	}

	s.builds.SetStatus(buildID, types.BuildSuccess, registryTag, "", "")
	metrics.BuildsTotal.WithLabelValues("deployment", "success").Inc()
	timer.ObserveDurationVec(metrics.BuildDuration, "deployment")
	log.WithBuildID(buildID).Info().Str("image_tag", registryTag).Msg("Deployment image build succeeded")
}

// inferPackages combines caller-supplied pip packages with whatever the
// task's agent Dockerfiles installed over its lifetime
func (s *Service) inferPackages(taskID string, extraPip []string) (pip, apt []string) {
	var contents []string
	taskDir := filepath.Join(s.config.AgentImagesDir, taskID)
	matches, _ := filepath.Glob(filepath.Join(taskDir, "Dockerfile*"))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		contents = append(contents, string(data))
	}

	pip, apt = InferDeploymentPackages(contents)

	seen := make(map[string]bool, len(pip))
	for _, pkg := range pip {
		seen[pkg] = true
	}
	for _, pkg := range extraPip {
		if pkg != "" && !seen[pkg] {
			seen[pkg] = true
			pip = append(pip, pkg)
		}
	}
	return pip, apt
}

// deployment builds exclude agent-internal files
var deploySkipFiles = map[string]bool{
	"AGENTS.md":   true,
	"SOUL.md":     true,
	"result.json": true,
	".openclaw":   true,
}

// assembleAppDir copies the task's workspace into the build context,
// falling back to stored deliverables when the workspace mount is empty
func (s *Service) assembleAppDir(ctx context.Context, taskID, appDir string) error {
	task, err := s.controlPlane.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("fetch task: %w", err)
	}

	wsPath := filepath.Join(s.config.WorkspacesDir, task.WorkspaceID)
	if entries, err := os.ReadDir(wsPath); err == nil {
		for _, entry := range entries {
			if deploySkipFiles[entry.Name()] {
				continue
			}
			src := filepath.Join(wsPath, entry.Name())
			dst := filepath.Join(appDir, entry.Name())
			if err := copyTree(src, dst); err != nil {
				return fmt.Errorf("copy workspace: %w", err)
			}
		}
	}

	// Deliverables from the most recent iteration that produced any
	if outputs, err := s.controlPlane.ListTaskOutputs(ctx, taskID); err == nil {
		for i := len(outputs) - 1; i >= 0; i-- {
			if len(outputs[i].Deliverables) == 0 {
				continue
			}
			for name, content := range outputs[i].Deliverables {
				path := filepath.Join(appDir, name)
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					continue
				}
				_ = os.WriteFile(path, []byte(content), 0o644)
			}
			break
		}
	}

	entries, err := os.ReadDir(appDir)
	if err != nil || len(entries) == 0 {
		return fmt.Errorf("no application files found for deployment: %w", types.ErrValidation)
	}
	return nil
}

func copyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		if err := os.MkdirAll(dst, 0o755); err != nil {
			return err
		}
		entries, err := os.ReadDir(src)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if err := copyTree(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
				return err
			}
		}
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// buildTagPush shells out to the docker CLI so the nested daemon's
// BuildKit and credential setup apply unchanged
func (s *Service) buildTagPush(ctx context.Context, buildID, dir, dockerfile, imageTag, registryTag string) error {
	steps := [][]string{
		{"build", "-f", dockerfile, "-t", imageTag, "."},
		{"tag", imageTag, registryTag},
		{"push", registryTag},
	}
	for _, args := range steps {
		out, err := s.docker(ctx, dir, args...)
		if out != "" {
			s.builds.AppendLog(buildID, out)
		}
		if err != nil {
			return fmt.Errorf("docker %s: %w", args[0], err)
		}
	}
	return nil
}

func (s *Service) docker(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%v: %s", err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

func (s *Service) fail(buildID, kind string, err error) {
	s.builds.SetStatus(buildID, types.BuildFailed, "", "", err.Error())
	metrics.BuildsTotal.WithLabelValues(kind, "failed").Inc()
	log.WithBuildID(buildID).Error().Err(err).Msg("Image build failed")
}

// EnsureBaseImage makes compose-up self-contained: check the daemon,
// then the registry, then build from the bundled Dockerfile and push
func (s *Service) EnsureBaseImage(ctx context.Context) error {
	base := s.BaseImage()

	if ok, err := s.runtime.ImageExists(ctx, base); err == nil && ok {
		log.WithComponent("builder").Info().Str("image", base).Msg("Base image already present")
		return nil
	}

	if err := s.runtime.Pull(ctx, base); err == nil {
		log.WithComponent("builder").Info().Str("image", base).Msg("Pulled base image from registry")
		return nil
	}

	dockerfile := filepath.Join(s.config.BootstrapDir, "Dockerfile.openclaw")
	if _, err := os.Stat(dockerfile); err != nil {
		return fmt.Errorf("base image %s missing and no bootstrap dockerfile at %s: %w",
			base, dockerfile, types.ErrImageNotFound)
	}

	log.WithComponent("builder").Info().Str("dockerfile", dockerfile).Msg("Base image not found, building")
	if out, err := s.docker(ctx, s.config.BootstrapDir, "build", "-f", "Dockerfile.openclaw", "-t", BaseImageName, "."); err != nil {
		return fmt.Errorf("bootstrap build: %w: %s", err, out)
	}
	if _, err := s.docker(ctx, s.config.BootstrapDir, "tag", BaseImageName, base); err != nil {
		return fmt.Errorf("bootstrap tag: %w", err)
	}
	if _, err := s.docker(ctx, s.config.BootstrapDir, "push", base); err != nil {
		return fmt.Errorf("bootstrap push: %w", err)
	}

	log.WithComponent("builder").Info().Str("image", base).Msg("Base image built and pushed")
	return nil
}
