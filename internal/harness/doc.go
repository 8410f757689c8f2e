// Package harness runs multi-device sync scenarios.
//
// A scenario declares devices (each bound to a user seed), optional
// groups, and a list of steps. Every device opens its instances through a
// worker registry; devices only exchange data through an in-memory relay,
// so a scenario exercises the same push, confirm and merge cycle a real
// client runs against the storage swarm.
//
// # Scenario Format
//
//	name: contacts-approved
//	description: Two devices converge on an approved contact.
//	devices:
//	  - {name: phone, user: 1}
//	  - {name: laptop, user: 1}
//	steps:
//	  - device: phone
//	    target: contacts
//	    do: contacts.set
//	    args: {id: $bob, approved: true}
//	  - sync: contacts
//	assertions:
//	  - type: converged
//	    target: contacts
//
// Targets are profile, contacts, user_groups, convo, or group:<name>.
// Inside args, a string "$<device>" becomes that device's session id.
// Steps are one of:
//   - do: run a command and check its outcome (ok, invalid_input, misuse)
//   - sync: every holder of the target pushes, then every holder merges
//   - send: encrypt a group message and check who can read it
//
// Files are checked against the embedded CUE schema before decoding.
//
// # Traces
//
// Each step appends deterministic events (outcomes, seqnos, merge counts,
// readers) to the trace. Hashes and ciphertexts are left out, so traces
// can be pinned with golden files.
package harness
