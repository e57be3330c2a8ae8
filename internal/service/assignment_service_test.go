package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

func TestPickAssigneeNoActiveAgents(t *testing.T) {
	tickets := newFakeTicketRepo()
	users := newFakeUserRepo()
	users.addUser("Retired Agent", domain.RoleAgent, false)
	users.addUser("Plain User", domain.RoleUser, true)

	svc := NewAssignmentService(tickets, users, zap.NewNop())

	assignee, err := svc.PickAssignee(context.Background())
	require.NoError(t, err)
	assert.Nil(t, assignee)
}

func TestPickAssigneeTieGoesToFirstSeen(t *testing.T) {
	tickets := newFakeTicketRepo()
	users := newFakeUserRepo()
	requester := users.addUser("Requester", domain.RoleUser, true)
	first := users.addUser("First Agent", domain.RoleAgent, true)
	second := users.addUser("Second Agent", domain.RoleAgent, true)

	// both carry one open ticket
	for _, agent := range []*domain.User{first, second} {
		id := agent.ID
		_ = tickets.Create(context.Background(), &domain.Ticket{
			Title:       "seed",
			Description: "seed",
			CreatedBy:   requester.ID,
			AssignedTo:  &id,
			Status:      domain.TicketStatusOpen,
			Priority:    domain.TicketPriorityMedium,
			Version:     1,
		})
	}

	svc := NewAssignmentService(tickets, users, zap.NewNop())

	assignee, err := svc.PickAssignee(context.Background())
	require.NoError(t, err)
	require.NotNil(t, assignee)
	assert.Equal(t, first.ID, *assignee)
}

func TestPickAssigneeIgnoresResolvedLoad(t *testing.T) {
	tickets := newFakeTicketRepo()
	users := newFakeUserRepo()
	requester := users.addUser("Requester", domain.RoleUser, true)
	busy := users.addUser("Busy Agent", domain.RoleAgent, true)
	veteran := users.addUser("Veteran Agent", domain.RoleAgent, true)

	busyID := busy.ID
	_ = tickets.Create(context.Background(), &domain.Ticket{
		Title: "open work", Description: "open work", CreatedBy: requester.ID,
		AssignedTo: &busyID, Status: domain.TicketStatusOpen,
		Priority: domain.TicketPriorityMedium, Version: 1,
	})

	// a long history of resolved tickets does not count against the veteran
	veteranID := veteran.ID
	for i := 0; i < 5; i++ {
		_ = tickets.Create(context.Background(), &domain.Ticket{
			Title: "done", Description: "done", CreatedBy: requester.ID,
			AssignedTo: &veteranID, Status: domain.TicketStatusResolved,
			Priority: domain.TicketPriorityMedium, Version: 1,
		})
	}

	svc := NewAssignmentService(tickets, users, zap.NewNop())

	assignee, err := svc.PickAssignee(context.Background())
	require.NoError(t, err)
	require.NotNil(t, assignee)
	assert.Equal(t, veteran.ID, *assignee)
}
