package types

// Event is a structured state-change notification emitted by the ledger.
// Attribute values are strings so consumers can decode them without sharing
// Go types with the engine.
type Event struct {
	// Sequence is assigned by the event log at emission time and increases
	// monotonically. Replaying events in sequence order reconstructs the full
	// ledger state.
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
