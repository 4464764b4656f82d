// Package audit defines the append-only security event model and the
// asynchronous dispatcher that forwards events to a caller-supplied sink.
//
// Events are emitted by the engine on every security-relevant transition
// (logins, lockouts, token issuance and redemption, resets). The core
// never reads an event back except through the anomaly detector's own
// derived state; durability beyond the process is the sink's concern.
package audit
