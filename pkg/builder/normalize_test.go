package builder

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openclaw/openclaw/pkg/types"
)

func TestNormalizeSplitsCommaSeparatedNames(t *testing.T) {
	caps := NormalizeCapabilities([]types.Capability{
		{Kind: "pip_package", Name: "flask, requests , numpy"},
	})

	assert.Len(t, caps, 3)
	assert.Equal(t, "flask", caps[0].Name)
	assert.Equal(t, "requests", caps[1].Name)
	assert.Equal(t, "numpy", caps[2].Name)
	for _, cap := range caps {
		assert.Equal(t, "pip_package", cap.Kind)
	}
}

func TestNormalizeReclassifiesKnownSystemPackages(t *testing.T) {
	caps := NormalizeCapabilities([]types.Capability{
		{Kind: "pip_package", Name: "redis-server"},
		{Kind: "pip_package", Name: "ffmpeg"},
		{Kind: "tool", Name: "graphviz"},
	})

	assert.Equal(t, "apt_package", caps[0].Kind)
	assert.Equal(t, "apt_package", caps[1].Kind)
	// Reclassification applies regardless of the requested kind
	assert.Equal(t, "apt_package", caps[2].Kind)
}

func TestNormalizeReclassifiesLibPrefix(t *testing.T) {
	caps := NormalizeCapabilities([]types.Capability{
		{Kind: "pip_package", Name: "libxml2-utils"},
		{Kind: "npm_package", Name: "libnotreclassified"},
	})

	assert.Equal(t, "apt_package", caps[0].Kind)
	// lib prefix only reroutes pip requests
	assert.Equal(t, "npm_package", caps[1].Kind)
}

func TestNormalizeDropsEmptyNames(t *testing.T) {
	caps := NormalizeCapabilities([]types.Capability{
		{Kind: "pip_package", Name: "flask,, ,requests"},
	})
	assert.Len(t, caps, 2)
}

func TestPartitionVersionPinning(t *testing.T) {
	apt, pip, npm, tools := partition([]types.Capability{
		{Kind: "apt_package", Name: "ffmpeg", Version: "7:4.3"},
		{Kind: "pip_package", Name: "flask", Version: "3.0.0"},
		{Kind: "npm_package", Name: "typescript", Version: "5.4.2"},
		{Kind: "tool", Name: "mytool"},
	})

	assert.Equal(t, []string{"ffmpeg=7:4.3"}, apt)
	assert.Equal(t, []string{"flask==3.0.0"}, pip)
	assert.Equal(t, []string{"typescript@5.4.2"}, npm)
	assert.Equal(t, []string{"mytool"}, tools)
}
