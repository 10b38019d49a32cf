// Package lifecycle provides the component lifecycle state machine and the
// Manager that drives long-lived components through it.
//
// A component passes through Created -> Initializing -> Ready ->
// ShuttingDown -> Terminated; Error is reachable from Initializing, Ready,
// and ShuttingDown. Terminated and Error are absorbing. The Manager owns
// every registered participant's state record, initializes components in
// registration order, and tears them down in strict reverse order.
package lifecycle
