// Package services provides the shared error taxonomy and context plumbing
// used across the artifact lifecycle components. Sentinel errors tag failures
// for classification; Wrap attaches component context while preserving the
// sentinel for errors.Is checks.
package services
