package types

// Event represents a typed event emitted during state transitions.
type Event struct {
	Type       string            `json:"type"`
	Height     uint64            `json:"height"`
	Attributes map[string]string `json:"attributes"`
}

// Receipt summarises an applied call.
type Receipt struct {
	CallHash string  `json:"hash"`
	Caller   string  `json:"caller"`
	Height   uint64  `json:"height"`
	Events   []Event `json:"events"`
}
