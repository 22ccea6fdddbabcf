package models

import "time"

// Chat is a whole transcript owned by one user. Saving replaces the record.
type Chat struct {
	ID          string       `json:"id"`
	UserID      string       `json:"userId"`
	CreatedAt   time.Time    `json:"createdAt"`
	Messages    []Message    `json:"messages"`
	ToolCalls   []ToolCall   `json:"toolCalls,omitempty"`
	ToolResults []ToolResult `json:"toolResults,omitempty"`
}
