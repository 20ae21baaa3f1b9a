package utils

import (
	uuid "github.com/satori/go.uuid"
)

// NewRequestID returns a random identifier for requests and attempt reports.
func NewRequestID() string {
	return uuid.NewV4().String()
}
