// Package component defines the lifecycle interfaces a host process uses to
// start, stop and health-check long-lived fixturekit parts.
//
//   - Component: Start/Stop/Health
//   - Describable: configuration summary for startup output
package component
