// Package sla computes service-level deadlines and breach state for tickets.
package sla

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// Clock abstracts the current time so breach evaluation is deterministic in
// tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Evaluator derives SLA deadlines and breach state.
type Evaluator struct {
	clock      Clock
	resolution time.Duration
}

// NewEvaluator builds an evaluator with the given clock and resolution
// window. A non-positive window falls back to 24 hours.
func NewEvaluator(clock Clock, resolution time.Duration) *Evaluator {
	if clock == nil {
		clock = SystemClock{}
	}
	if resolution <= 0 {
		resolution = 24 * time.Hour
	}
	return &Evaluator{clock: clock, resolution: resolution}
}

// Now exposes the evaluator's clock.
func (e *Evaluator) Now() time.Time {
	return e.clock.Now()
}

// Deadline computes the SLA deadline for a ticket created at the given time.
func (e *Evaluator) Deadline(createdAt time.Time) time.Time {
	return createdAt.Add(e.resolution)
}

// Resolution returns the configured resolution window.
func (e *Evaluator) Resolution() time.Duration {
	return e.resolution
}

// Refresh recomputes the breach flag for an unresolved ticket. Once a ticket
// is resolved its breach state is frozen at whatever the resolving write
// computed, so resolved tickets are left untouched. The deadline boundary is
// strict: a ticket evaluated exactly at its deadline is not breached.
func (e *Evaluator) Refresh(ticket *domain.Ticket) {
	if ticket.Status == domain.TicketStatusResolved {
		return
	}
	if e.clock.Now().After(ticket.SLADeadline) {
		ticket.SLABreached = true
	}
}

// Breached reports breach state for the given snapshot without mutating it.
func Breached(status domain.TicketStatus, deadline, now time.Time) bool {
	return status != domain.TicketStatusResolved && now.After(deadline)
}
