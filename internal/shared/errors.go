package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrAgentNotFound indicates the agent directory has no such agent.
	ErrAgentNotFound = errors.New("agent not found")
)
