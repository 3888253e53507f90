// Package engine serializes presence deliveries onto a single ping contract.
//
// ARCHITECTURE:
//
// Single-Writer Loop:
// A contract replica has exactly one logical owner. Deliveries from peers
// arrive on arbitrary goroutines (MQTT handlers, HTTP handlers, tests) and are
// enqueued; Engine.Run applies them one at a time in the calling goroutine.
// Because merge is commutative and idempotent, the engine does not order,
// deduplicate or retry deliveries.
//
// Processing Flow:
//  1. Enqueue / Touch add work to a FIFO queue (safe from any goroutine)
//  2. Run dequeues one item at a time
//  3. Deliveries are merged via ping.Contract.Apply; presence stamps via
//     ping.Contract.RecordPresence
//  4. With a heartbeat configured, Run also stamps the owner's own name every
//     Options.Frequency
//
// Failures while recording lifecycle events are logged and processing
// continues.
package engine
