package types

import (
	"time"
)

// State classifies a compose project or an individual service.
// Values mirror what the docker compose CLI reports, collapsed into a
// closed set so the rest of the engine never matches on free text.
type State string

const (
	StateNotStarted State = "not_started" // compose file on disk, nothing in Docker
	StateRunning    State = "running"     // all services running
	StateDegraded   State = "degraded"    // some services running, some not
	StateStopped    State = "stopped"     // containers exist, none running
	StateExited     State = "exited"
	StateDown       State = "down" // project known but containers removed
	StateCreated    State = "created"
	StateRestarting State = "restarting"
	StateUnknown    State = "unknown"
)

// Action is a compose verb the dashboard can run against a project.
type Action string

const (
	ActionUp       Action = "up"
	ActionDown     Action = "down"
	ActionStart    Action = "start"
	ActionStop     Action = "stop"
	ActionRestart  Action = "restart"
	ActionPull     Action = "pull"
	ActionBuild    Action = "build"
	ActionRecreate Action = "recreate"
	ActionLogs     Action = "logs"
	ActionPS       Action = "ps"
)

// ComposeFileActions are the verbs that need a compose file on disk.
// They can never be offered for a project discovered only through Docker.
var ComposeFileActions = []Action{ActionUp, ActionBuild, ActionRecreate, ActionPull}

// NameOnlyActions operate purely on the compose project name (-p flag) and
// are available whenever Docker currently reports the project.
var NameOnlyActions = []Action{ActionStart, ActionStop, ActionRestart, ActionDown, ActionLogs, ActionPS}

// Project is a point-in-time snapshot of one compose project. Snapshots are
// assembled fresh on every discovery refresh and never mutated in place; a
// newer snapshot supersedes the whole object.
type Project struct {
	Name             string          `json:"name"`
	State            State           `json:"state"`
	Status           string          `json:"status"` // raw status string from docker compose ls
	Services         []*Service      `json:"services"`
	ComposeFilePath  string          `json:"composeFilePath,omitempty"`
	HasComposeFile   bool            `json:"hasComposeFile"`
	AvailableActions map[Action]bool `json:"availableActions"`
	LastUpdated      time.Time       `json:"lastUpdated"`
}

// Service is one logical component of a project. Owned exclusively by its
// parent Project snapshot.
type Service struct {
	ID     string `json:"id"` // container ID, or the service name if not yet created
	Name   string `json:"name"`
	Image  string `json:"image,omitempty"`
	State  State  `json:"state"`
	Status string `json:"status"` // free-text Docker status, e.g. "Up 2 hours (healthy)"
	Ports  string `json:"ports,omitempty"`
	Health string `json:"health,omitempty"`
}

// OperationStatus tracks the lifecycle of a mutating compose command.
type OperationStatus string

const (
	OperationPending   OperationStatus = "pending"
	OperationRunning   OperationStatus = "running"
	OperationCompleted OperationStatus = "completed"
	OperationFailed    OperationStatus = "failed"
)

// OperationRecord describes one invocation of a mutating verb. Terminal once
// the subprocess exits; never retried automatically.
type OperationRecord struct {
	ID          string          `json:"id"`
	Type        Action          `json:"type"`
	ProjectName string          `json:"projectName"`
	Status      OperationStatus `json:"status"`
	Output      string          `json:"output,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   time.Time       `json:"startedAt"`
	FinishedAt  time.Time       `json:"finishedAt,omitzero"`
}

// OperationResult is what the Operation Service hands back to callers.
// Message is always human-readable and independent of Docker's stderr format.
type OperationResult struct {
	OperationID string `json:"operationId"`
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	Output      string `json:"output,omitempty"`
	Error       string `json:"error,omitempty"`
}

// PermissionFilter narrows a project snapshot to what one caller may see.
// Applied after assembly so the cache stays permission-agnostic.
type PermissionFilter func(projects []*Project) []*Project

// AllowAll is the pass-through permission filter.
func AllowAll(projects []*Project) []*Project { return projects }
