// internal/service/events.go
package service

import (
	"errors"

	"fprint-service/internal/model"
)

// Errors of the service layer. Device and print errors come from the fprint
// package unchanged.
var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrDeviceNotFound      = errors.New("device not found")
	ErrUnknownScanner      = errors.New("unknown scanner")
	ErrRetryBudgetExceeded = errors.New("enrollment retry budget exceeded")
)

// EventPublisher receives the events of enroll and verify runs
type EventPublisher interface {
	Publish(event model.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(model.Event) {}

func publisherOrNop(p EventPublisher) EventPublisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}
