// Package broker manages external MQTT broker records and their live
// sessions.
//
// The package splits into four pieces:
//
//   - Repository: relational persistence for broker rows, including the
//     connected flag that mirrors live session state.
//   - Registry: the process-wide map from broker id to live session handle.
//     It is the single authority on whether a broker has a session.
//   - Orchestrator: opens sessions, runs one supervising goroutine per
//     session, and drives reconnection when a link drops.
//   - Synchronizer: the only writer of a broker's connected flag after
//     creation, with an idempotent verify-before-write mode.
//
// Administrative updates to broker rows never touch the connected flag;
// that column belongs to the orchestrator alone.
package broker
