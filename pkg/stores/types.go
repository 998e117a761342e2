package stores

import (
	"context"
	"time"

	"github.com/openhoist/openhoist/pkg/assets"
	"github.com/openhoist/openhoist/pkg/engine"
)

// DeploymentStatus represents the status of a deployment run.
type DeploymentStatus string

const (
	DeploymentStatusRunning   DeploymentStatus = "running"
	DeploymentStatusSucceeded DeploymentStatus = "succeeded"
	DeploymentStatusFailed    DeploymentStatus = "failed"
)

// Deployment represents one preview or apply run of a stack.
type Deployment struct {
	ID          string           `json:"id"`
	Stack       string           `json:"stack"`
	Mode        engine.Mode      `json:"mode"`
	Status      DeploymentStatus `json:"status"`
	Error       *string          `json:"error,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// Store defines the persistence contract for deployment state.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error

	// Deployment runs
	CreateDeployment(ctx context.Context, d *Deployment) error
	CompleteDeployment(ctx context.Context, id string, status DeploymentStatus, errMsg *string) error
	GetDeployment(ctx context.Context, id string) (*Deployment, error)
	ListDeployments(ctx context.Context, stack string, limit int) ([]*Deployment, error)

	// Exports of a successful apply
	SaveExports(ctx context.Context, deploymentID string, exports []engine.Export) error
	LatestExports(ctx context.Context, stack string) ([]engine.Export, error)

	// Published objects
	RecordPublishedObjects(ctx context.Context, deploymentID string, objects []assets.PublishedObject) error

	// Access rule state, consumed by the rule synthesizer
	AppliedRuleIDs(ctx context.Context, scope string) ([]string, error)
	RecordRules(ctx context.Context, scope string, rules []engine.AddressRule) error
}
