package framework

import (
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openclaw/openclaw/pkg/api"
	"github.com/openclaw/openclaw/pkg/events"
	"github.com/openclaw/openclaw/pkg/gateway"
	"github.com/openclaw/openclaw/pkg/manager"
	"github.com/openclaw/openclaw/pkg/reconciler"
	"github.com/openclaw/openclaw/pkg/storage"
)

// Harness wires a complete in-process control plane: real store, broker,
// manager, gateway, and HTTP surface, with the workflow engine and the
// container engine replaced by fakes. Scenarios drive it through the
// same REST API the dashboard and the activities use.
type Harness struct {
	Store      storage.Store
	Manager    *manager.Manager
	Gateway    *gateway.Gateway
	Runtime    *FakeRuntime
	Starter    *RecordingStarter
	Reconciler *reconciler.Reconciler
	Server     *httptest.Server
}

// New stands up the harness and registers teardown on t
func New(t *testing.T) *Harness {
	t.Helper()
	dir := t.TempDir()

	store, err := storage.NewBoltStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	starter := &RecordingStarter{}
	mgr := manager.NewManager(manager.Config{
		Store:          store,
		Broker:         broker,
		Starter:        starter,
		AgentImagesDir: filepath.Join(dir, "agent-images"),
	})

	rt := NewFakeRuntime()
	gw := gateway.New(store, nil)

	server := httptest.NewServer(api.NewServer(mgr, gw).Handler())
	t.Cleanup(server.Close)

	return &Harness{
		Store:      store,
		Manager:    mgr,
		Gateway:    gw,
		Runtime:    rt,
		Starter:    starter,
		Reconciler: reconciler.NewReconciler(mgr, rt),
		Server:     server,
	}
}

// Client returns a REST client bound to the harness server
func (h *Harness) Client(t *testing.T) *Client {
	return NewClient(t, h.Server.URL)
}
