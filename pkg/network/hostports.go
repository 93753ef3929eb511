package network

import (
	"context"
	"fmt"

	"github.com/openclaw/openclaw/pkg/types"
)

const (
	// DeploymentPortMin is the first host port handed to deployments
	DeploymentPortMin = 9100

	// DeploymentPortMax is the last host port handed to deployments
	DeploymentPortMax = 9120
)

// PortScanner reports host ports currently bound on the container engine
type PortScanner interface {
	UsedHostPorts(ctx context.Context) (map[int]bool, error)
}

// PortAllocator picks host ports for deployment containers out of a fixed
// range. It reads the engine's current in-use set on every allocation; a
// two-writer race is benign because the losing run fails with a bind error
// and the caller retries.
type PortAllocator struct {
	scanner PortScanner
	min     int
	max     int
}

// NewPortAllocator creates an allocator over the default deployment range
func NewPortAllocator(scanner PortScanner) *PortAllocator {
	return &PortAllocator{
		scanner: scanner,
		min:     DeploymentPortMin,
		max:     DeploymentPortMax,
	}
}

// Allocate returns the lowest free host port in the range
func (a *PortAllocator) Allocate(ctx context.Context) (int, error) {
	used, err := a.scanner.UsedHostPorts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to scan host ports: %w", err)
	}

	for port := a.min; port <= a.max; port++ {
		if !used[port] {
			return port, nil
		}
	}
	return 0, fmt.Errorf("ports %d-%d all in use: %w", a.min, a.max, types.ErrNoFreePort)
}
