// Package event fans task lifecycle changes out to many observers.
//
// The orchestrator accepts a single Broadcaster. Bus implements that
// interface and republishes every snapshot as an Event on a topic derived
// from the task status, so the terminal monitor, the stdio bridge and the
// log can each subscribe independently.
//
// # Architecture
//
//	┌──────────────┐  Broadcast(task)  ┌─────────────────────────────┐
//	│ Orchestrator │ ────────────────► │            Bus              │
//	└──────────────┘                   │  - topic matching           │
//	                                   │  - sync / async delivery    │
//	                                   │  - panic isolation          │
//	                                   └─────────────────────────────┘
//	                                          │          │
//	                                 sync     ▼          ▼   async (own queue)
//	                                   ┌──────────┐ ┌──────────┐
//	                                   │  bridge  │ │ monitor  │
//	                                   └──────────┘ └──────────┘
//
// # Topics
//
// Task events are published on "task.<status>":
//
//	task.pending
//	task.running
//	task.completed
//	task.failed
//	task.cancelled
//	task.timeout
//
// # Wildcard Patterns
//
//	task.*     - every task event (single segment)
//	**         - everything
//	*.failed   - failures of any kind
//
// # Delivery Modes
//
// Sync handlers run in the publisher's goroutine, in subscription order.
// For task events that is the orchestrator's broadcast path, so sync
// handlers observe transitions in exactly the order they happened and
// must return quickly.
//
// Async handlers have a private bounded queue drained by one goroutine,
// which preserves per-subscription ordering. When the queue is full the
// event is dropped and counted.
package event
