package builder

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/openclaw/openclaw/pkg/types"
)

// GenerateAgentDockerfile renders the Dockerfile for one capability layer.
// Output is byte-stable for a given input so a version can be rebuilt from
// its stored capability list.
func GenerateAgentDockerfile(taskID, buildID, baseImage string, caps []types.Capability) string {
	apt, pip, npm, tools := partition(caps)

	labels := make([]string, 0, len(caps))
	for _, cap := range caps {
		labels = append(labels, cap.Kind+":"+cap.Name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "FROM %s\n\n", baseImage)
	fmt.Fprintf(&b, "LABEL task_id=%q\n", taskID)
	fmt.Fprintf(&b, "LABEL build_id=%q\n", buildID)
	fmt.Fprintf(&b, "LABEL capabilities=%q\n", strings.Join(labels, ","))

	if len(apt) > 0 {
		b.WriteString("\nUSER root\n")
		b.WriteString("RUN apt-get update && apt-get install -y \\\n")
		for _, pkg := range apt {
			fmt.Fprintf(&b, "    %s \\\n", pkg)
		}
		b.WriteString("    && rm -rf /var/lib/apt/lists/*\n")
	}

	if len(pip) > 0 {
		pkgs := strings.Join(pip, " ")
		b.WriteString("\nUSER root\n")
		// The base image carries two interpreters; install into both so
		// the agent finds the package no matter which python it runs
		fmt.Fprintf(&b, "RUN /opt/venv/bin/pip install --no-cache-dir %s ; "+
			"/usr/bin/pip3 install --no-cache-dir --break-system-packages %s || "+
			"/usr/bin/pip3 install --no-cache-dir %s || true\n", pkgs, pkgs, pkgs)
	}

	if len(npm) > 0 {
		b.WriteString("\nUSER root\n")
		b.WriteString("RUN npm install -g \\\n")
		for _, pkg := range npm {
			fmt.Fprintf(&b, "    %s \\\n", pkg)
		}
		b.WriteString("    && npm list -g --depth=0\n")
	}

	for _, tool := range tools {
		fmt.Fprintf(&b, "\nCOPY tools/%s /usr/local/bin/%s\n", tool, tool)
		fmt.Fprintf(&b, "RUN chmod +x /usr/local/bin/%s\n", tool)
	}

	b.WriteString("\nWORKDIR /workspace\n")
	return b.String()
}

// sed sweep over text-looking files so paths the agent embedded under
// /workspace keep working once the app lives in /app
const pathRewriteRun = `RUN find /app -type f \( -name '*.py' -o -name '*.sh' -o -name '*.yaml' -o -name '*.yml' -o -name '*.json' -o -name '*.toml' -o -name '*.cfg' -o -name '*.conf' -o -name '*.ini' -o -name '*.txt' -o -name '*.html' -o -name '*.js' \) -exec sed -i 's|/workspace/|/app/|g; s|/workspace|/app|g' {} + 2>/dev/null || true`

// GenerateDeploymentDockerfile renders the minimal image for a deployed
// app: no agent tooling, just the runtime, inferred packages, and the
// workspace files copied to /app
func GenerateDeploymentDockerfile(deploymentID, taskID, entrypoint string, port int, pip, apt []string) string {
	var b strings.Builder
	b.WriteString("FROM python:3.11-slim\n\n")
	fmt.Fprintf(&b, "LABEL deployment_id=%q\n", deploymentID)
	fmt.Fprintf(&b, "LABEL task_id=%q\n\n", taskID)
	b.WriteString("WORKDIR /app\n")

	if len(apt) > 0 {
		b.WriteString("\nRUN apt-get update && apt-get install -y \\\n")
		for _, pkg := range apt {
			fmt.Fprintf(&b, "    %s \\\n", pkg)
		}
		b.WriteString("    && rm -rf /var/lib/apt/lists/*\n")
	}

	if len(pip) > 0 {
		fmt.Fprintf(&b, "\nRUN pip install --no-cache-dir %s\n", strings.Join(pip, " "))
	}

	b.WriteString("\nCOPY app/ /app/\n\n")
	b.WriteString(pathRewriteRun + "\n\n")
	b.WriteString("RUN find /app -name '*.sh' -exec chmod +x {} + 2>/dev/null || true\n\n")
	fmt.Fprintf(&b, "EXPOSE %d\n\n", port)
	fmt.Fprintf(&b, "CMD %s\n", entrypointCmd(entrypoint))
	return b.String()
}

var shCRe = regexp.MustCompile(`sh\s+-c\s+["']?(.+?)["']?\s*$`)

// entrypointCmd renders a CMD argument. Plain commands become a JSON exec
// array; anything carrying shell meta-characters is wrapped in sh -c so
// pipes and chains still work.
func entrypointCmd(entrypoint string) string {
	entrypoint = strings.ReplaceAll(entrypoint, "/workspace/", "/app/")
	entrypoint = strings.ReplaceAll(entrypoint, "/workspace", "/app")

	marshal := func(parts []string) string {
		out, _ := json.Marshal(parts)
		return string(out)
	}

	if strings.Contains(entrypoint, "sh -c") {
		if m := shCRe.FindStringSubmatch(entrypoint); m != nil {
			return marshal([]string{"sh", "-c", m[1]})
		}
		inner := strings.TrimSpace(strings.SplitN(entrypoint, "sh -c", 2)[1])
		return marshal([]string{"sh", "-c", strings.Trim(inner, `"'`)})
	}
	if strings.ContainsAny(entrypoint, "&|;") {
		return marshal([]string{"sh", "-c", entrypoint})
	}
	return marshal(strings.Fields(entrypoint))
}

var (
	aptInstallRe = regexp.MustCompile(`apt-get install\s+-y\s+(.+?)(?:\s*&&|$)`)
	pipInstallRe = regexp.MustCompile(`--no-cache-dir\s+(.+?)(?:\s*[;|]|$)`)
)

// InferDeploymentPackages scans a task's agent Dockerfile text and pulls
// out the apt and pip packages installed along the way, so the deployment
// image carries the same dependencies the agent developed against
func InferDeploymentPackages(dockerfiles []string) (pip, apt []string) {
	seenPip := make(map[string]bool)
	seenApt := make(map[string]bool)

	for _, content := range dockerfiles {
		for _, line := range strings.Split(content, "\n") {
			for _, m := range aptInstallRe.FindAllStringSubmatch(line, -1) {
				for _, pkg := range strings.Fields(m[1]) {
					pkg = strings.TrimSuffix(strings.TrimSpace(pkg), `\`)
					if pkg == "" || strings.HasPrefix(pkg, "-") || seenApt[pkg] {
						continue
					}
					seenApt[pkg] = true
					apt = append(apt, pkg)
				}
			}
			for _, m := range pipInstallRe.FindAllStringSubmatch(line, -1) {
				for _, pkg := range strings.Fields(m[1]) {
					if strings.HasPrefix(pkg, "-") || seenPip[pkg] {
						continue
					}
					seenPip[pkg] = true
					pip = append(pip, pkg)
				}
			}
		}
	}
	return pip, apt
}
