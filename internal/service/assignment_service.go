package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/repository"
)

// AssignmentService picks an agent for newly created tickets.
type AssignmentService struct {
	tickets repository.TicketRepository
	users   repository.UserRepository
	logger  *zap.Logger
}

// NewAssignmentService creates the service.
func NewAssignmentService(tickets repository.TicketRepository, users repository.UserRepository, logger *zap.Logger) *AssignmentService {
	return &AssignmentService{tickets: tickets, users: users, logger: logger}
}

// PickAssignee returns the id of the active agent carrying the fewest open or
// in-progress tickets, or nil when no active agent exists. Ties go to the
// first agent seen. The load counts are a point-in-time snapshot: two
// concurrent creations may both observe the same least-loaded agent and both
// assign to them, which this system accepts.
func (s *AssignmentService) PickAssignee(ctx context.Context) (*string, error) {
	agents, err := s.users.ListActiveAgents(ctx)
	if err != nil {
		return nil, err
	}
	if len(agents) == 0 {
		return nil, nil
	}

	var bestID string
	bestCount := -1
	for i := range agents {
		count, err := s.tickets.CountOpenByAssignee(ctx, agents[i].ID)
		if err != nil {
			return nil, err
		}
		if bestCount < 0 || count < bestCount {
			bestID = agents[i].ID
			bestCount = count
		}
	}

	s.logger.Debug("assignee selected",
		zap.String("agent_id", bestID),
		zap.Int("open_tickets", bestCount),
		zap.Int("candidates", len(agents)),
	)
	return &bestID, nil
}
