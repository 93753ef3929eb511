package builder

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/openclaw/pkg/types"
)

func TestAgentDockerfileLayers(t *testing.T) {
	caps := []types.Capability{
		{Kind: "apt_package", Name: "ffmpeg"},
		{Kind: "pip_package", Name: "flask"},
		{Kind: "npm_package", Name: "typescript"},
	}
	df := GenerateAgentDockerfile("task-abc", "b1", "openclaw-agent:task-abc-v1", caps)

	assert.True(t, strings.HasPrefix(df, "FROM openclaw-agent:task-abc-v1\n"))
	assert.Contains(t, df, "apt-get update && apt-get install -y")
	assert.Contains(t, df, "rm -rf /var/lib/apt/lists/*")
	assert.Contains(t, df, "/opt/venv/bin/pip install --no-cache-dir flask")
	assert.Contains(t, df, "--break-system-packages")
	assert.Contains(t, df, "npm install -g")
	assert.Contains(t, df, "WORKDIR /workspace")
}

func TestAgentDockerfileOmitsEmptyBlocks(t *testing.T) {
	df := GenerateAgentDockerfile("task-abc", "b1", "base:latest", []types.Capability{
		{Kind: "pip_package", Name: "requests"},
	})

	assert.NotContains(t, df, "apt-get")
	assert.NotContains(t, df, "npm install")
}

func TestAgentDockerfileByteStable(t *testing.T) {
	caps := []types.Capability{
		{Kind: "apt_package", Name: "graphviz"},
		{Kind: "pip_package", Name: "pandas", Version: "2.2.0"},
	}
	first := GenerateAgentDockerfile("task-abc", "b1", "base:latest", caps)
	second := GenerateAgentDockerfile("task-abc", "b1", "base:latest", caps)
	assert.Equal(t, first, second)
}

func TestDeploymentDockerfile(t *testing.T) {
	df := GenerateDeploymentDockerfile("deploy-12345678", "task-abc", "python app.py", 5000,
		[]string{"flask"}, []string{"ffmpeg"})

	assert.True(t, strings.HasPrefix(df, "FROM python:3.11-slim\n"))
	assert.Contains(t, df, "RUN pip install --no-cache-dir flask")
	assert.Contains(t, df, "ffmpeg")
	assert.Contains(t, df, "COPY app/ /app/")
	assert.Contains(t, df, "s|/workspace/|/app/|g")
	assert.Contains(t, df, "EXPOSE 5000")
	assert.Contains(t, df, `CMD ["python","app.py"]`)
}

func TestEntrypointCmdExecForm(t *testing.T) {
	assert.Equal(t, `["python","app.py"]`, entrypointCmd("python app.py"))
}

func TestEntrypointCmdShellFormOnMetaChars(t *testing.T) {
	assert.Equal(t, `["sh","-c","pip install -r reqs.txt && python app.py"]`,
		entrypointCmd("pip install -r reqs.txt && python app.py"))
}

func TestEntrypointCmdShCWrapping(t *testing.T) {
	got := entrypointCmd(`sh -c "python app.py"`)
	assert.Equal(t, `["sh","-c","python app.py"]`, got)
}

func TestEntrypointCmdRewritesWorkspacePaths(t *testing.T) {
	assert.Equal(t, `["python","/app/server.py"]`, entrypointCmd("python /workspace/server.py"))
}

func TestInferDeploymentPackages(t *testing.T) {
	df := GenerateAgentDockerfile("task-abc", "b1", "base:latest", []types.Capability{
		{Kind: "pip_package", Name: "flask"},
		{Kind: "pip_package", Name: "redis"},
	})
	pip, apt := InferDeploymentPackages([]string{df})

	require.Contains(t, pip, "flask")
	require.Contains(t, pip, "redis")
	assert.Empty(t, apt)
}

func TestInferDeploymentPackagesDeduplicates(t *testing.T) {
	df := "RUN pip install --no-cache-dir flask ; pip3 install --no-cache-dir --break-system-packages flask || true"
	pip, _ := InferDeploymentPackages([]string{df, df})

	count := 0
	for _, pkg := range pip {
		if pkg == "flask" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
