// Package workflow orchestrates artifact generation end to end: claiming
// catalog state, submitting render jobs to the engine, polling them to a
// terminal state, and settling the results.
package workflow
