package identity

import (
	"errors"
	"fmt"
	"os"

	"github.com/benmeehan/grid-agent/pkg/file"
	"github.com/google/uuid"
)

// Identity holds the agent's unique identifier as known to the control plane.
type Identity struct {
	ID   string `json:"agent_id,omitempty"`
	Name string `json:"agent_name,omitempty"`
}

// AgentInfoInterface defines methods for managing the agent identity.
type AgentInfoInterface interface {
	LoadOrCreate() error
	GetAgentID() string
	GetAgentName() string
}

// AgentInfo manages the agent identity and its backing file.
type AgentInfo struct {
	IdentityFile string
	Identity     Identity
	fileOps      file.FileOperations
	newID        func() string
}

// NewAgentInfo initializes a new AgentInfo instance.
func NewAgentInfo(filePath string, fileOps file.FileOperations) *AgentInfo {
	return &AgentInfo{
		IdentityFile: filePath,
		fileOps:      fileOps,
		newID:        uuid.NewString,
	}
}

// LoadOrCreate reads the identity file. When the file is missing or holds no
// id, a fresh id is generated and persisted.
func (a *AgentInfo) LoadOrCreate() error {
	err := a.fileOps.ReadJsonFile(a.IdentityFile, &a.Identity)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read identity file %s: %w", a.IdentityFile, err)
	}
	if a.Identity.ID != "" {
		return nil
	}

	a.Identity.ID = a.newID()
	if a.Identity.Name == "" {
		if host, err := os.Hostname(); err == nil {
			a.Identity.Name = host
		}
	}
	if err := a.fileOps.WriteJsonFile(a.IdentityFile, a.Identity); err != nil {
		return fmt.Errorf("write identity file %s: %w", a.IdentityFile, err)
	}
	return nil
}

// GetAgentID returns the current agent ID.
func (a *AgentInfo) GetAgentID() string {
	return a.Identity.ID
}

// GetAgentName returns the human readable agent name.
func (a *AgentInfo) GetAgentName() string {
	return a.Identity.Name
}
