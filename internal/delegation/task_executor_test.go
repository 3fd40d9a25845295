package delegation

import (
	"testing"

	"github.com/agentrt/agentrt/internal/mesh"
	"github.com/agentrt/agentrt/internal/session"
	"github.com/agentrt/agentrt/internal/storage"
)

func TestNewTaskExecutor(t *testing.T) {
	store, err := storage.New(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}
	reg := session.NewRegistry(session.NewService(store), mesh.NewRegistry())

	e := NewTaskExecutor(reg, store)
	if e.registry != reg {
		t.Error("NewTaskExecutor did not store the given registry")
	}
	if e.storage != store {
		t.Error("NewTaskExecutor did not store the given storage")
	}
}
