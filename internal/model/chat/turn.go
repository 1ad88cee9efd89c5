package chat

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Status tracks a turn through its streaming lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusStreaming Status = "streaming"
	StatusComplete  Status = "complete"
	StatusFailed    Status = "failed"
)

// Turn is one message within a conversation. Text accumulates while the
// turn is streaming and is frozen once the status is complete or failed.
type Turn struct {
	ID     string `json:"id"`
	Role   Role   `json:"role"`
	Text   string `json:"text"`
	Status Status `json:"status"`
}

// Final reports whether the turn can no longer change.
func (t Turn) Final() bool {
	return t.Status == StatusComplete || t.Status == StatusFailed
}
