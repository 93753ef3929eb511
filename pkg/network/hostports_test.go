package network

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/openclaw/pkg/types"
)

type staticScanner map[int]bool

func (s staticScanner) UsedHostPorts(ctx context.Context) (map[int]bool, error) {
	return s, nil
}

func TestAllocatePicksLowestFree(t *testing.T) {
	alloc := NewPortAllocator(staticScanner{9100: true, 9101: true})

	port, err := alloc.Allocate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9102, port)
}

func TestAllocateIgnoresPortsOutsideRange(t *testing.T) {
	alloc := NewPortAllocator(staticScanner{8080: true, 5432: true})

	port, err := alloc.Allocate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9100, port)
}

func TestAllocateSingleFreePort(t *testing.T) {
	used := staticScanner{}
	for port := DeploymentPortMin; port <= DeploymentPortMax; port++ {
		if port != 9117 {
			used[port] = true
		}
	}
	alloc := NewPortAllocator(used)

	port, err := alloc.Allocate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9117, port)
}

func TestAllocateExhaustedRange(t *testing.T) {
	used := staticScanner{}
	for port := DeploymentPortMin; port <= DeploymentPortMax; port++ {
		used[port] = true
	}
	alloc := NewPortAllocator(used)

	_, err := alloc.Allocate(context.Background())
	assert.ErrorIs(t, err, types.ErrNoFreePort)
}
