// Package hub composes the hubflow runtime: a Hub wires the workflow engine,
// component lifecycle management, history persistence, metrics, and telemetry
// from one configuration, and a Manager supervises multiple named hubs.
package hub
