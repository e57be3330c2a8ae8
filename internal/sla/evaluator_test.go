package sla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.now
}

func TestDeadlineIsCreationPlusResolution(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	eval := NewEvaluator(&fixedClock{now: created}, 24*time.Hour)

	assert.Equal(t, created.Add(24*time.Hour), eval.Deadline(created))
}

func TestRefresh(t *testing.T) {
	deadline := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		status       domain.TicketStatus
		now          time.Time
		already      bool
		wantBreached bool
	}{
		{
			name:         "before deadline stays clean",
			status:       domain.TicketStatusOpen,
			now:          deadline.Add(-time.Minute),
			wantBreached: false,
		},
		{
			name:         "exactly at deadline is not breached",
			status:       domain.TicketStatusInProgress,
			now:          deadline,
			wantBreached: false,
		},
		{
			name:         "past deadline breaches",
			status:       domain.TicketStatusOpen,
			now:          deadline.Add(time.Second),
			wantBreached: true,
		},
		{
			name:         "resolved ticket is never re-evaluated",
			status:       domain.TicketStatusResolved,
			now:          deadline.Add(48 * time.Hour),
			wantBreached: false,
		},
		{
			name:         "resolved ticket keeps a breach recorded before resolution",
			status:       domain.TicketStatusResolved,
			now:          deadline.Add(48 * time.Hour),
			already:      true,
			wantBreached: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fixedClock{now: tt.now}
			eval := NewEvaluator(clock, 24*time.Hour)
			ticket := &domain.Ticket{
				Status:      tt.status,
				SLADeadline: deadline,
				SLABreached: tt.already,
			}
			eval.Refresh(ticket)
			assert.Equal(t, tt.wantBreached, ticket.SLABreached)
		})
	}
}

func TestRefreshFreezeIsIdempotent(t *testing.T) {
	deadline := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)
	clock := &fixedClock{now: deadline.Add(-time.Hour)}
	eval := NewEvaluator(clock, 24*time.Hour)

	ticket := &domain.Ticket{Status: domain.TicketStatusInProgress, SLADeadline: deadline}

	// Resolved an hour before the deadline.
	ticket.Status = domain.TicketStatusResolved
	eval.Refresh(ticket)
	assert.False(t, ticket.SLABreached)

	// Time passing after resolution must not flip the flag.
	clock.now = deadline.Add(72 * time.Hour)
	eval.Refresh(ticket)
	assert.False(t, ticket.SLABreached)
}

func TestBreachedSnapshot(t *testing.T) {
	deadline := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)

	assert.False(t, Breached(domain.TicketStatusOpen, deadline, deadline))
	assert.True(t, Breached(domain.TicketStatusOpen, deadline, deadline.Add(time.Nanosecond)))
	assert.False(t, Breached(domain.TicketStatusResolved, deadline, deadline.Add(time.Hour)))
}
