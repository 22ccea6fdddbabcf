package models

import (
	"encoding/json"
	"time"
)

// Reservation carries an opaque booking payload. HasCompletedPayment starts
// false and only flips through an explicit update.
type Reservation struct {
	ID                  string          `json:"id"`
	UserID              string          `json:"userId"`
	CreatedAt           time.Time       `json:"createdAt"`
	Details             json.RawMessage `json:"details"`
	HasCompletedPayment bool            `json:"hasCompletedPayment"`
}
