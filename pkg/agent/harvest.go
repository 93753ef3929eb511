package agent

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/openclaw/openclaw/pkg/types"
)

const (
	// ResultStart and ResultEnd delimit the JSON envelope the in-container
	// wrapper prints to stdout
	ResultStart = "===OPENCLAW_RESULT_JSON_START==="
	ResultEnd   = "===OPENCLAW_RESULT_JSON_END==="

	// MaxLogBytes caps the container logs attached to an envelope
	MaxLogBytes = 50000

	errorTailLines = 10
	maxErrorBytes  = 500
)

// HarvestResult extracts the iteration envelope from container output,
// falling back to result.json in the workspace, then to an error-tail
// scan. It never returns nil.
func HarvestResult(containerOutput, workspaceDir string) *types.AgentResult {
	if result := parseMarkerBlock(containerOutput); result != nil {
		return result
	}

	if workspaceDir != "" {
		if result := parseResultFile(filepath.Join(workspaceDir, "result.json")); result != nil {
			return result
		}
	}

	return syntheticFailure(containerOutput)
}

func parseMarkerBlock(output string) *types.AgentResult {
	start := strings.Index(output, ResultStart)
	if start < 0 {
		return nil
	}
	start += len(ResultStart)
	end := strings.Index(output[start:], ResultEnd)
	if end < 0 {
		return nil
	}

	var result types.AgentResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(output[start:start+end])), &result); err != nil {
		return nil
	}
	return &result
}

func parseResultFile(path string) *types.AgentResult {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var result types.AgentResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return &result
}

// syntheticFailure builds a parse_error envelope when the container left
// no structured result. The tail scan surfaces the first error or raise
// line plus following context.
func syntheticFailure(output string) *types.AgentResult {
	errMsg := "No result from agent (no markers, no file)"

	if strings.Contains(output, "ERROR:") || strings.Contains(output, "Traceback") {
		lines := strings.Split(output, "\n")
		for i, line := range lines {
			if strings.Contains(line, "ERROR:") || strings.Contains(line, "raise") {
				end := i + errorTailLines
				if end > len(lines) {
					end = len(lines)
				}
				errMsg = Truncate(strings.Join(lines[i:end], "\n"), maxErrorBytes)
				break
			}
		}
	}

	capped := Truncate(output, MaxLogBytes)
	return &types.AgentResult{
		ParseError: true,
		Output:     capped,
		AgentLogs:  capped,
		Error:      errMsg,
	}
}

// Truncate caps s at n bytes
func Truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
