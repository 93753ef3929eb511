package agent

import (
	"regexp"
	"strconv"
	"strings"
)

// CapabilityMarker is a parsed capability ask from agent output
type CapabilityMarker struct {
	Kind     string
	Packages []string
	Reason   string
}

var (
	capabilityRe  = regexp.MustCompile(`CAPABILITY_REQUEST:(\w+):([^:\n]+):(.+)`)
	moduleErrRe   = regexp.MustCompile(`(?i)(?:ModuleNotFoundError|ImportError):.*?no module named ['"]?([a-zA-Z0-9_]+)`)
	noModuleRe    = regexp.MustCompile(`(?i)no module named ['"]([^'"]+)['"]`)
	npmMissingRe  = regexp.MustCompile(`(?i)cannot find module ['"]([^'"]+)['"]`)
	pipListRe     = regexp.MustCompile(`python_packages=\[([^\]]+)\]`)
	deploymentRe  = regexp.MustCompile(`DEPLOYMENT_REQUEST:([^:]+):(\d+):(.+)`)
	pipFailureRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)pip3?\s+install\s+([a-zA-Z0-9_-]+).*(?:error|denied|externally.managed|not allowed)`),
		regexp.MustCompile(`(?i)(?:error|denied|permission).*pip3?\s+install\s+([a-zA-Z0-9_-]+)`),
		regexp.MustCompile(`(?i)pip3?\s+install\s+([a-zA-Z0-9_-]+).*failed`),
	}
)

// ParseCapabilityMarker scans agent output for a capability ask. The
// explicit CAPABILITY_REQUEST marker wins; failing that, missing-module
// errors and pip install failures are detected heuristically.
func ParseCapabilityMarker(output string) *CapabilityMarker {
	if m := capabilityRe.FindStringSubmatch(output); m != nil {
		var packages []string
		for _, p := range strings.Split(m[2], ",") {
			if p = strings.TrimSpace(p); p != "" {
				packages = append(packages, p)
			}
		}
		return &CapabilityMarker{Kind: m[1], Packages: packages, Reason: strings.TrimSpace(m[3])}
	}

	matches := moduleErrRe.FindAllStringSubmatch(output, -1)
	if matches == nil {
		matches = noModuleRe.FindAllStringSubmatch(output, -1)
	}
	if matches != nil {
		seen := make(map[string]bool)
		var packages []string
		for _, m := range matches {
			// Root package name only
			root := strings.SplitN(m[1], ".", 2)[0]
			if !seen[root] {
				seen[root] = true
				packages = append(packages, root)
			}
		}
		return &CapabilityMarker{Kind: "python_packages", Packages: packages}
	}

	for _, re := range pipFailureRes {
		if m := re.FindStringSubmatch(output); m != nil {
			return &CapabilityMarker{Kind: "python_packages", Packages: []string{m[1]}}
		}
	}

	if m := npmMissingRe.FindStringSubmatch(output); m != nil {
		mod := m[1]
		if !strings.HasPrefix(mod, "/") && !strings.HasPrefix(mod, ".") {
			return &CapabilityMarker{Kind: "npm_packages", Packages: []string{mod}}
		}
	}

	if m := pipListRe.FindStringSubmatch(output); m != nil {
		var packages []string
		for _, p := range strings.Split(m[1], ",") {
			p = strings.Trim(strings.TrimSpace(p), `'"`)
			if p != "" {
				packages = append(packages, p)
			}
		}
		return &CapabilityMarker{Kind: "python_packages", Packages: packages}
	}

	return nil
}

// DeploymentMarker is a parsed DEPLOYMENT_REQUEST:<name>:<port>:<entrypoint>
type DeploymentMarker struct {
	Name       string
	Port       int
	Entrypoint string
}

// ParseDeploymentMarker scans agent output for a deployment ask. The
// marker is often embedded inside a JSON string, so trailing punctuation
// and unbalanced quote characters are stripped from the entrypoint.
func ParseDeploymentMarker(output string) *DeploymentMarker {
	m := deploymentRe.FindStringSubmatch(output)
	if m == nil {
		return nil
	}

	entrypoint := strings.TrimSpace(m[3])
	entrypoint = strings.TrimRight(entrypoint, `.,;\]})`)
	for entrypoint != "" {
		last := entrypoint[len(entrypoint)-1]
		if last != '"' && last != '\'' {
			break
		}
		if strings.Count(entrypoint, string(last))%2 == 1 {
			entrypoint = entrypoint[:len(entrypoint)-1]
		} else {
			break
		}
	}
	if len(entrypoint) >= 2 && strings.HasPrefix(entrypoint, `"`) && strings.HasSuffix(entrypoint, `"`) {
		entrypoint = entrypoint[1 : len(entrypoint)-1]
	}

	port, _ := strconv.Atoi(m[2])
	return &DeploymentMarker{
		Name:       strings.TrimSpace(m[1]),
		Port:       port,
		Entrypoint: entrypoint,
	}
}
