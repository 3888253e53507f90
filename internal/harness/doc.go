// Package harness runs presence merge scenarios against real ping contract
// replicas.
//
// Each scenario drives one or more replicas through the engine, records
// their lifecycle events in an in-memory journal and evaluates assertions
// on the resulting presence state, merge deltas and event trace.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	start: 2024-03-01T12:00:00Z   # optional
//	options:                      # ping contract options
//	  ttl: 5s
//	  tag: lobby
//	  code_key: 7Xk2hQ9dmP4vYqL3
//	replicas: [a, b]
//	steps:
//	  - touch: { replica: a, name: alice }
//	  - advance: 2s
//	  - deliver:
//	      to: a
//	      from: remote
//	      state: { carol: -4s }
//	  - publish: { from: a, to: b }
//	assertions:
//	  - type: state
//	    replica: b
//	    state: { alice: 0s, carol: -4s }
//
// Timestamps are RFC 3339 values or signed offsets from start.
//
// # Steps
//
//   - touch: stamps a presence name on a replica at the current time
//   - advance: moves the shared clock forward
//   - deliver: applies an arbitrary presence state to a replica
//   - publish: sends one replica's state to another as a completed update
//     (request, success, broadcast) that the target receives
//
// # Assertion Types
//
//   - state: the final state of a replica equals the given entries
//   - contains: a replica holds the names and lacks the absent names
//   - delta: the merge of a step changed exactly the given names
//   - converged: all listed replicas hold identical state
//   - event_count: the journal holds N events of a variant
//   - transaction_status: the reconstructed status of a transaction, and
//     optionally its broadcast target and receiver counts
//
// # Deterministic Testing
//
// Replicas share a testutil.ManualClock and derive transactions from
// testutil.SequentialGenerator, so a scenario produces the same trace on
// every run and can be compared against golden files.
package harness
