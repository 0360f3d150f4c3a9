package eventing

import "github.com/google/uuid"

// NewRecordID generates a random storage record identifier.
func NewRecordID() string {
	return uuid.NewString()
}
