// Package types defines the shared error model used across hubflow.
//
// All failures in the lifecycle and workflow subsystems are represented as
// *types.Error values carrying a stable ErrorCode, so callers can branch on
// error class without string matching. No error in this module is fatal to
// the process.
package types
