package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/sla"
	"github.com/spec-kit/helpdesk-service/pkg/apperrors"
)

type ticketFixture struct {
	service  *TicketService
	tickets  *fakeTicketRepo
	comments *fakeCommentRepo
	users    *fakeUserRepo
	clock    *fakeClock
}

func newTicketFixture() *ticketFixture {
	tickets := newFakeTicketRepo()
	comments := newFakeCommentRepo()
	users := newFakeUserRepo()
	clock := &fakeClock{now: testBase}
	evaluator := sla.NewEvaluator(clock, 24*time.Hour)

	svc := NewTicketService(TicketDependencies{
		TicketRepo:  tickets,
		CommentRepo: comments,
		UserRepo:    users,
		Assigner:    NewAssignmentService(tickets, users, zap.NewNop()),
		SLA:         evaluator,
		Dispatcher:  events.NewInMemoryDispatcher(),
		Logger:      zap.NewNop(),
	})

	return &ticketFixture{
		service:  svc,
		tickets:  tickets,
		comments: comments,
		users:    users,
		clock:    clock,
	}
}

func (f *ticketFixture) seedTicket(creator *domain.User, assignee *string, status domain.TicketStatus, title string) *domain.Ticket {
	ticket := &domain.Ticket{
		Title:       title,
		Description: "seeded description for " + title,
		CreatedBy:   creator.ID,
		AssignedTo:  assignee,
		Status:      status,
		Priority:    domain.TicketPriorityMedium,
		SLADeadline: testBase.Add(24 * time.Hour),
		Version:     1,
	}
	_ = f.tickets.Create(context.Background(), ticket)
	return ticket
}

func domainErrCode(t *testing.T, err error) string {
	t.Helper()
	var domainErr *apperrors.DomainError
	require.True(t, errors.As(err, &domainErr), "expected DomainError, got %v", err)
	return domainErr.Code
}

func TestCreateTicketAssignsLeastLoadedAgent(t *testing.T) {
	f := newTicketFixture()
	requester := f.users.addUser("Rita Requester", domain.RoleUser, true)
	agentA := f.users.addUser("Agent A", domain.RoleAgent, true)
	agentB := f.users.addUser("Agent B", domain.RoleAgent, true)
	agentC := f.users.addUser("Agent C", domain.RoleAgent, true)

	// loads: A=2, B=0, C=1
	f.seedTicket(requester, &agentA.ID, domain.TicketStatusOpen, "existing one")
	f.seedTicket(requester, &agentA.ID, domain.TicketStatusInProgress, "existing two")
	f.seedTicket(requester, &agentC.ID, domain.TicketStatusOpen, "existing three")

	detail, err := f.service.CreateTicket(context.Background(), requester, TicketCreateInput{
		Title:       "Printer is jammed again",
		Description: "Paper jam on the third floor printer.",
	})
	require.NoError(t, err)

	require.NotNil(t, detail.AssignedTo)
	assert.Equal(t, agentB.ID, *detail.AssignedTo)
	assert.Equal(t, domain.TicketStatusOpen, detail.Status)
	assert.Equal(t, domain.TicketPriorityMedium, detail.Priority)
	assert.Equal(t, 1, detail.Version)
	assert.Equal(t, testBase.Add(24*time.Hour), detail.SLADeadline)
	assert.False(t, detail.SLABreached)
	require.NotNil(t, detail.Assignee)
	assert.Equal(t, agentB.Name, detail.Assignee.Name)
}

func TestCreateTicketWithoutAgentsStaysUnassigned(t *testing.T) {
	f := newTicketFixture()
	requester := f.users.addUser("Rita Requester", domain.RoleUser, true)
	f.users.addUser("Inactive Agent", domain.RoleAgent, false)

	detail, err := f.service.CreateTicket(context.Background(), requester, TicketCreateInput{
		Title:       "VPN keeps dropping",
		Description: "Connection resets every few minutes.",
		Priority:    domain.TicketPriorityHigh,
	})
	require.NoError(t, err)

	assert.Nil(t, detail.AssignedTo)
	assert.Nil(t, detail.Assignee)
	assert.Equal(t, domain.TicketPriorityHigh, detail.Priority)
}

func TestGetTicketOutsideScopeLooksMissing(t *testing.T) {
	f := newTicketFixture()
	owner := f.users.addUser("Owner", domain.RoleUser, true)
	other := f.users.addUser("Other", domain.RoleUser, true)
	ticket := f.seedTicket(owner, nil, domain.TicketStatusOpen, "private ticket")

	_, err := f.service.GetTicket(context.Background(), other, ticket.ID)
	assert.Equal(t, "NOT_FOUND", domainErrCode(t, err))

	detail, err := f.service.GetTicket(context.Background(), owner, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, detail.ID)
}

func TestGetTicketAgentScopedToAssignments(t *testing.T) {
	f := newTicketFixture()
	owner := f.users.addUser("Owner", domain.RoleUser, true)
	agent := f.users.addUser("Agent", domain.RoleAgent, true)
	admin := f.users.addUser("Admin", domain.RoleAdmin, true)

	assigned := f.seedTicket(owner, &agent.ID, domain.TicketStatusOpen, "assigned ticket")
	unassigned := f.seedTicket(owner, nil, domain.TicketStatusOpen, "unassigned ticket")

	_, err := f.service.GetTicket(context.Background(), agent, assigned.ID)
	require.NoError(t, err)

	_, err = f.service.GetTicket(context.Background(), agent, unassigned.ID)
	assert.Equal(t, "NOT_FOUND", domainErrCode(t, err))

	_, err = f.service.GetTicket(context.Background(), admin, unassigned.ID)
	require.NoError(t, err)
}

func TestUpdateTicketDropsFieldsOutsideRoleAllowList(t *testing.T) {
	f := newTicketFixture()
	owner := f.users.addUser("Owner", domain.RoleUser, true)
	agent := f.users.addUser("Agent", domain.RoleAgent, true)
	ticket := f.seedTicket(owner, nil, domain.TicketStatusOpen, "original title")

	newTitle := "renamed by owner"
	resolved := domain.TicketStatusResolved
	detail, err := f.service.UpdateTicket(context.Background(), owner, ticket.ID, TicketUpdateInput{
		Title:      &newTitle,
		Status:     &resolved,
		AssignedTo: &agent.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, newTitle, detail.Title)
	assert.Equal(t, domain.TicketStatusOpen, detail.Status, "status change from a user role must be dropped")
	assert.Nil(t, detail.AssignedTo, "assignment change from a user role must be dropped")
	assert.Equal(t, 2, detail.Version)
}

func TestUpdateTicketAgentMayChangeStatusAndAssignment(t *testing.T) {
	f := newTicketFixture()
	owner := f.users.addUser("Owner", domain.RoleUser, true)
	agent := f.users.addUser("Agent", domain.RoleAgent, true)
	ticket := f.seedTicket(owner, &agent.ID, domain.TicketStatusOpen, "escalation ticket")

	inProgress := domain.TicketStatusInProgress
	detail, err := f.service.UpdateTicket(context.Background(), agent, ticket.ID, TicketUpdateInput{
		Status: &inProgress,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, detail.Status)
	assert.Equal(t, 2, detail.Version)
}

func TestUpdateTicketStaleVersionConflicts(t *testing.T) {
	f := newTicketFixture()
	owner := f.users.addUser("Owner", domain.RoleUser, true)
	ticket := f.seedTicket(owner, nil, domain.TicketStatusOpen, "contended ticket")

	title := "first writer wins"
	_, err := f.service.UpdateTicket(context.Background(), owner, ticket.ID, TicketUpdateInput{Title: &title})
	require.NoError(t, err)

	stale := 1
	title = "second writer loses"
	_, err = f.service.UpdateTicket(context.Background(), owner, ticket.ID, TicketUpdateInput{
		Title:   &title,
		Version: &stale,
	})
	assert.Equal(t, "CONFLICT", domainErrCode(t, err))
}

func TestUpdateTicketConcurrentWriteConflicts(t *testing.T) {
	f := newTicketFixture()
	owner := f.users.addUser("Owner", domain.RoleUser, true)
	ticket := f.seedTicket(owner, nil, domain.TicketStatusOpen, "raced ticket")

	f.tickets.forceVersionMiss = true
	title := "lost the race"
	_, err := f.service.UpdateTicket(context.Background(), owner, ticket.ID, TicketUpdateInput{Title: &title})
	assert.Equal(t, "CONFLICT", domainErrCode(t, err))
}

func TestUpdateTicketFlagsBreachPastDeadline(t *testing.T) {
	f := newTicketFixture()
	owner := f.users.addUser("Owner", domain.RoleUser, true)
	ticket := f.seedTicket(owner, nil, domain.TicketStatusOpen, "slow ticket")

	f.clock.now = testBase.Add(25 * time.Hour)
	title := "still not fixed"
	detail, err := f.service.UpdateTicket(context.Background(), owner, ticket.ID, TicketUpdateInput{Title: &title})
	require.NoError(t, err)
	assert.True(t, detail.SLABreached)
}

func TestUpdateTicketResolutionFreezesBreachState(t *testing.T) {
	f := newTicketFixture()
	owner := f.users.addUser("Owner", domain.RoleUser, true)
	agent := f.users.addUser("Agent", domain.RoleAgent, true)
	ticket := f.seedTicket(owner, &agent.ID, domain.TicketStatusOpen, "resolved before deadline")

	resolved := domain.TicketStatusResolved
	_, err := f.service.UpdateTicket(context.Background(), agent, ticket.ID, TicketUpdateInput{Status: &resolved})
	require.NoError(t, err)

	// well past the deadline now, but the resolved ticket keeps its state
	f.clock.now = testBase.Add(48 * time.Hour)
	detail, err := f.service.GetTicket(context.Background(), agent, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, detail.Status)
	assert.False(t, detail.SLABreached)
}

func TestListTicketsPagination(t *testing.T) {
	f := newTicketFixture()
	owner := f.users.addUser("Owner", domain.RoleUser, true)
	for i := 0; i < 25; i++ {
		f.seedTicket(owner, nil, domain.TicketStatusOpen, "bulk ticket")
	}

	page, err := f.service.ListTickets(context.Background(), owner, TicketListInput{Limit: 10, Offset: 0})
	require.NoError(t, err)
	assert.Len(t, page.Items, 10)
	assert.Equal(t, 25, page.Total)
	require.NotNil(t, page.NextOffset)
	assert.Equal(t, 10, *page.NextOffset)

	page, err = f.service.ListTickets(context.Background(), owner, TicketListInput{Limit: 10, Offset: 20})
	require.NoError(t, err)
	assert.Len(t, page.Items, 5)
	assert.Equal(t, 25, page.Total)
	assert.Nil(t, page.NextOffset)
}

func TestListTicketsDefaultLimit(t *testing.T) {
	f := newTicketFixture()
	owner := f.users.addUser("Owner", domain.RoleUser, true)
	for i := 0; i < 12; i++ {
		f.seedTicket(owner, nil, domain.TicketStatusOpen, "bulk ticket")
	}

	page, err := f.service.ListTickets(context.Background(), owner, TicketListInput{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 10)
	assert.Equal(t, 10, page.Limit)
}

func TestListTicketsScopesByRole(t *testing.T) {
	f := newTicketFixture()
	owner := f.users.addUser("Owner", domain.RoleUser, true)
	other := f.users.addUser("Other", domain.RoleUser, true)
	agent := f.users.addUser("Agent", domain.RoleAgent, true)
	admin := f.users.addUser("Admin", domain.RoleAdmin, true)

	f.seedTicket(owner, &agent.ID, domain.TicketStatusOpen, "owner ticket")
	f.seedTicket(other, nil, domain.TicketStatusOpen, "other ticket")

	page, err := f.service.ListTickets(context.Background(), owner, TicketListInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	page, err = f.service.ListTickets(context.Background(), agent, TicketListInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	page, err = f.service.ListTickets(context.Background(), admin, TicketListInput{})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
}

func TestListTicketsSearchMatchesDescriptionCaseInsensitive(t *testing.T) {
	f := newTicketFixture()
	owner := f.users.addUser("Owner", domain.RoleUser, true)

	f.seedTicket(owner, nil, domain.TicketStatusOpen, "Email outage")
	keyboard := &domain.Ticket{
		Title:       "Hardware request",
		Description: "Need a replacement KEYBOARD for desk 12",
		CreatedBy:   owner.ID,
		Status:      domain.TicketStatusOpen,
		Priority:    domain.TicketPriorityLow,
		SLADeadline: testBase.Add(24 * time.Hour),
		Version:     1,
	}
	require.NoError(t, f.tickets.Create(context.Background(), keyboard))

	term := "keyboard"
	page, err := f.service.ListTickets(context.Background(), owner, TicketListInput{SearchTerm: &term})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, keyboard.ID, page.Items[0].ID)
}

func TestGetTicketCommentThreadOldestFirst(t *testing.T) {
	f := newTicketFixture()
	owner := f.users.addUser("Owner", domain.RoleUser, true)
	ticket := f.seedTicket(owner, nil, domain.TicketStatusOpen, "chatty ticket")

	first, err := f.service.AddComment(context.Background(), owner, ticket.ID, CommentCreateInput{Content: "first"})
	require.NoError(t, err)
	second, err := f.service.AddComment(context.Background(), owner, ticket.ID, CommentCreateInput{Content: "second"})
	require.NoError(t, err)

	detail, err := f.service.GetTicket(context.Background(), owner, ticket.ID)
	require.NoError(t, err)
	require.Len(t, detail.Comments, 2)
	assert.Equal(t, first.ID, detail.Comments[0].ID)
	assert.Equal(t, second.ID, detail.Comments[1].ID)
	require.NotNil(t, detail.Comments[0].Author)
	assert.Equal(t, owner.Name, detail.Comments[0].Author.Name)
}

func TestGetTicketCommentFailureDegradesToEmptyThread(t *testing.T) {
	f := newTicketFixture()
	owner := f.users.addUser("Owner", domain.RoleUser, true)
	ticket := f.seedTicket(owner, nil, domain.TicketStatusOpen, "broken thread")

	_, err := f.service.AddComment(context.Background(), owner, ticket.ID, CommentCreateInput{Content: "lost comment"})
	require.NoError(t, err)

	f.comments.listErr = errors.New("connection reset")
	detail, err := f.service.GetTicket(context.Background(), owner, ticket.ID)
	require.NoError(t, err)
	assert.Empty(t, detail.Comments)
}

func TestAddCommentOutsideScopeLooksMissing(t *testing.T) {
	f := newTicketFixture()
	owner := f.users.addUser("Owner", domain.RoleUser, true)
	other := f.users.addUser("Other", domain.RoleUser, true)
	ticket := f.seedTicket(owner, nil, domain.TicketStatusOpen, "private ticket")

	_, err := f.service.AddComment(context.Background(), other, ticket.ID, CommentCreateInput{Content: "sneaky"})
	assert.Equal(t, "NOT_FOUND", domainErrCode(t, err))
}
