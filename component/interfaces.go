package component

import "context"

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
	StatusDegraded  HealthStatus = "degraded"
)

// Health holds health information for a component.
type Health struct {
	Name    string            `json:"name"`
	Status  HealthStatus      `json:"status"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// Component is a lifecycle-managed part of a host process, such as the
// resilience orchestrator with its background sweeper.
type Component interface {
	// Name returns the unique name of the component.
	Name() string

	// Start starts background work. Calling it twice is a no-op.
	Start(ctx context.Context) error

	// Stop shuts down background work and releases resources.
	Stop(ctx context.Context) error

	// Health returns the current health status of the component.
	Health(ctx context.Context) Health
}

// Description holds summary information a host can print at startup.
type Description struct {
	// Name is the human-readable display name. If empty, Name() is used.
	Name string
	// Type categorizes the component, e.g. "resilience".
	Type string
	// Details is a one-liner such as "budget=35ms cache=1000/5m0s".
	Details string
}

// Describable is optionally implemented by Components to describe how they
// are configured.
type Describable interface {
	Describe() Description
}
