package websockets

// MessageType defines the type of a WebSocket message.
type MessageType string

const (
	// MessageTypeSettlementProgress is sent after each invoice of a run is settled.
	MessageTypeSettlementProgress MessageType = "settlementProgress"
	// MessageTypeSettlementCompleted carries the end-of-run outcome.
	MessageTypeSettlementCompleted MessageType = "settlementCompleted"
)

// Message represents a generic WebSocket message.
type Message struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

// SettlementProgressPayload is the payload for a settlementProgress message.
type SettlementProgressPayload struct {
	RunID        string  `json:"run_id"`
	CustomerID   string  `json:"customer_id"`
	AppliedSoFar string  `json:"applied_so_far"`
	ClosedCount  int     `json:"closed_count"`
	Processed    int     `json:"processed"`
	Total        int     `json:"total"`
	Fraction     float64 `json:"fraction"`
}
