package events

// Event is the flattened wire form shared by the RPC stream, the gateway and
// the history indexer. Attribute values are decimal strings and bech32
// addresses so consumers never parse machine-width integers.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Typed is implemented by the structured events the ledger produces. Event
// renders the structured form into its wire shape.
type Typed interface {
	EventType() string
	Event() *Event
}

// Emitter receives typed events as ledger operations commit.
type Emitter interface {
	Emit(evt Typed)
}

// NoopEmitter drops every event. Useful for tools that drive the ledger
// without serving subscribers.
type NoopEmitter struct{}

// Emit implements Emitter.
func (NoopEmitter) Emit(Typed) {}
