// Package artifact defines the shared state machine for derived artifacts.
// Every machine-produced output (synthesized audio, part-book PDF) moves
// through none -> processing -> {complete, error}; complete is final while
// error permits a retry trigger.
package artifact
