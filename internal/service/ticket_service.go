package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/sla"
	"github.com/spec-kit/helpdesk-service/pkg/apperrors"
)

// TicketService orchestrates the ticket lifecycle: creation with automatic
// assignment, role-scoped reads, optimistic-locked updates and comment
// threading.
type TicketService struct {
	tickets    repository.TicketRepository
	comments   repository.CommentRepository
	users      repository.UserRepository
	assigner   *AssignmentService
	sla        *sla.Evaluator
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	CommentRepo repository.CommentRepository
	UserRepo    repository.UserRepository
	Assigner    *AssignmentService
	SLA         *sla.Evaluator
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		comments:   deps.CommentRepo,
		users:      deps.UserRepo,
		assigner:   deps.Assigner,
		sla:        deps.SLA,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
	}
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Priority    domain.TicketPriority
}

// TicketUpdateInput is a partial patch. Nil fields were not supplied.
type TicketUpdateInput struct {
	Title       *string
	Description *string
	Priority    *domain.TicketPriority
	Status      *domain.TicketStatus
	AssignedTo  *string
	Version     *int
}

// TicketListInput captures listing filters. Filters combine conjunctively on
// top of the caller's role scope.
type TicketListInput struct {
	Limit        int
	Offset       int
	SearchTerm   *string
	Status       *domain.TicketStatus
	Priority     *domain.TicketPriority
	AssignedTo   *string
	BreachedOnly bool
}

// CommentCreateInput describes a new comment.
type CommentCreateInput struct {
	Content    string
	IsInternal bool
}

// CommentDetail is a comment with its author identity attached.
type CommentDetail struct {
	domain.Comment
	Author *domain.IdentitySummary
}

// TicketDetail is a ticket enriched with identity summaries and, for read
// paths, its comment thread.
type TicketDetail struct {
	domain.Ticket
	Creator  *domain.IdentitySummary
	Assignee *domain.IdentitySummary
	Comments []CommentDetail
}

// TicketPage is the paginated listing envelope.
type TicketPage struct {
	Items      []TicketDetail
	Total      int
	Limit      int
	Offset     int
	NextOffset *int
}

// mutableFieldsByRole is the per-role allow-list applied before merging an
// update patch. Fields outside the list are dropped silently, not rejected.
var mutableFieldsByRole = map[domain.Role]map[string]bool{
	domain.RoleUser: {
		"title":       true,
		"description": true,
		"priority":    true,
	},
	domain.RoleAgent: {
		"title":       true,
		"description": true,
		"priority":    true,
		"status":      true,
		"assigned_to": true,
	},
	domain.RoleAdmin: {
		"title":       true,
		"description": true,
		"priority":    true,
		"status":      true,
		"assigned_to": true,
	},
}

// CreateTicket creates a ticket for the principal, stamping the SLA deadline
// and auto-assigning the least-loaded active agent when one exists.
func (s *TicketService) CreateTicket(ctx context.Context, principal *domain.User, input TicketCreateInput) (*TicketDetail, error) {
	now := s.sla.Now()

	assignee, err := s.assigner.PickAssignee(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	ticket := &domain.Ticket{
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		CreatedBy:   principal.ID,
		AssignedTo:  assignee,
		Status:      domain.TicketStatusOpen,
		Priority:    input.Priority,
		SLADeadline: s.sla.Deadline(now),
		SLABreached: false,
		Version:     1,
	}
	if ticket.Priority == "" {
		ticket.Priority = domain.TicketPriorityMedium
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	if s.metrics != nil {
		s.metrics.TicketsCreated.Inc()
		if assignee != nil {
			s.metrics.TicketsAssigned.Inc()
		}
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    actorFor(principal),
		Payload: events.TicketCreatedPayload{
			Title:       ticket.Title,
			Priority:    ticket.Priority,
			AssignedTo:  ticket.AssignedTo,
			SLADeadline: ticket.SLADeadline,
		},
	})
	if assignee != nil {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketAssigned,
			TicketID: ticket.ID,
			Actor:    actorFor(principal),
			Payload:  events.TicketAssignedPayload{AssigneeID: assignee},
		})
	}

	return s.enrichTicket(ctx, ticket, nil)
}

// GetTicket fetches one ticket within the principal's scope, with its comment
// thread ordered oldest first. A ticket outside the scope is indistinguishable
// from a missing one.
func (s *TicketService) GetTicket(ctx context.Context, principal *domain.User, ticketID string) (*TicketDetail, error) {
	scope := repository.ScopeForPrincipal(principal)
	ticket, err := s.tickets.GetScoped(ctx, ticketID, scope)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", nil)
		}
		return nil, apperrors.MapError(err)
	}

	comments := s.loadCommentThread(ctx, ticket.ID, repository.CommentOrderAsc)
	return s.enrichTicket(ctx, ticket, comments)
}

// ListTickets returns a page of tickets visible to the principal. Each item
// carries identity summaries and its comment thread newest first; a thread
// that fails to load degrades to empty rather than failing the page.
func (s *TicketService) ListTickets(ctx context.Context, principal *domain.User, input TicketListInput) (*TicketPage, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}
	offset := input.Offset
	if offset < 0 {
		offset = 0
	}

	filter := repository.TicketFilter{
		Scope:        repository.ScopeForPrincipal(principal),
		Status:       input.Status,
		Priority:     input.Priority,
		AssignedTo:   input.AssignedTo,
		BreachedOnly: input.BreachedOnly,
		SearchTerm:   input.SearchTerm,
		Limit:        limit,
		Offset:       offset,
	}

	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	total, err := s.tickets.CountWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	items := make([]TicketDetail, 0, len(tickets))
	for i := range tickets {
		comments := s.loadCommentThread(ctx, tickets[i].ID, repository.CommentOrderDesc)
		detail, err := s.enrichTicket(ctx, &tickets[i], comments)
		if err != nil {
			return nil, err
		}
		items = append(items, *detail)
	}

	page := &TicketPage{
		Items:  items,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}
	if offset+limit < total {
		next := offset + limit
		page.NextOffset = &next
	}
	return page, nil
}

// UpdateTicket applies a partial update under optimistic locking. Fields the
// principal's role may not write are dropped before the merge; a stale
// version in the patch rejects the whole write with a conflict.
func (s *TicketService) UpdateTicket(ctx context.Context, principal *domain.User, ticketID string, input TicketUpdateInput) (*TicketDetail, error) {
	scope := repository.ScopeForPrincipal(principal)
	ticket, err := s.tickets.GetScoped(ctx, ticketID, scope)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", nil)
		}
		return nil, apperrors.MapError(err)
	}

	if input.Version != nil && *input.Version != ticket.Version {
		return nil, apperrors.NewConflict("ticket has been modified by another user", nil)
	}

	allowed := mutableFieldsByRole[principal.Role]
	applyPatch(ticket, input, allowed)

	expected := ticket.Version
	ticket.Version = expected + 1
	s.sla.Refresh(ticket)

	ok, err := s.tickets.UpdateVersioned(ctx, ticket, expected)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !ok {
		return nil, apperrors.NewConflict("ticket has been modified by another user", nil)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketUpdated,
		TicketID: ticket.ID,
		Actor:    actorFor(principal),
		Payload: events.TicketUpdatedPayload{
			Version:     ticket.Version,
			Status:      ticket.Status,
			Priority:    ticket.Priority,
			SLABreached: ticket.SLABreached,
		},
	})

	return s.enrichTicket(ctx, ticket, nil)
}

// AddComment appends a comment to a ticket the principal can see.
func (s *TicketService) AddComment(ctx context.Context, principal *domain.User, ticketID string, input CommentCreateInput) (*CommentDetail, error) {
	scope := repository.ScopeForPrincipal(principal)
	ticket, err := s.tickets.GetScoped(ctx, ticketID, scope)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", nil)
		}
		return nil, apperrors.MapError(err)
	}

	comment := &domain.Comment{
		TicketID:   ticket.ID,
		AuthorID:   principal.ID,
		Content:    strings.TrimSpace(input.Content),
		IsInternal: input.IsInternal,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventCommentAdded,
		TicketID: ticket.ID,
		Actor:    actorFor(principal),
		Payload: events.CommentAddedPayload{
			CommentID:      comment.ID,
			IsInternal:     comment.IsInternal,
			ContentPreview: stringPreview(comment.Content, 120),
		},
	})

	author := principal.Summary()
	return &CommentDetail{Comment: *comment, Author: &author}, nil
}

func applyPatch(ticket *domain.Ticket, input TicketUpdateInput, allowed map[string]bool) {
	if input.Title != nil && allowed["title"] {
		ticket.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil && allowed["description"] {
		ticket.Description = strings.TrimSpace(*input.Description)
	}
	if input.Priority != nil && allowed["priority"] {
		ticket.Priority = *input.Priority
	}
	if input.Status != nil && allowed["status"] {
		ticket.Status = *input.Status
	}
	if input.AssignedTo != nil && allowed["assigned_to"] {
		assignee := *input.AssignedTo
		ticket.AssignedTo = &assignee
	}
}

// loadCommentThread fetches a ticket's comments with author identities. Any
// failure degrades to an empty thread so one broken thread cannot take down a
// whole read or listing.
func (s *TicketService) loadCommentThread(ctx context.Context, ticketID string, order repository.CommentOrder) []CommentDetail {
	comments, err := s.comments.ListByTicket(ctx, ticketID, order)
	if err != nil {
		s.logger.Warn("comment load failed; returning empty thread",
			zap.String("ticket_id", ticketID), zap.Error(err))
		return []CommentDetail{}
	}

	authorIDs := make([]string, 0, len(comments))
	seen := map[string]bool{}
	for i := range comments {
		if !seen[comments[i].AuthorID] {
			seen[comments[i].AuthorID] = true
			authorIDs = append(authorIDs, comments[i].AuthorID)
		}
	}
	authors, err := s.users.GetSummaries(ctx, authorIDs)
	if err != nil {
		s.logger.Warn("comment author load failed; returning empty thread",
			zap.String("ticket_id", ticketID), zap.Error(err))
		return []CommentDetail{}
	}

	details := make([]CommentDetail, 0, len(comments))
	for i := range comments {
		detail := CommentDetail{Comment: comments[i]}
		if summary, ok := authors[comments[i].AuthorID]; ok {
			detail.Author = &summary
		}
		details = append(details, detail)
	}
	return details
}

func (s *TicketService) enrichTicket(ctx context.Context, ticket *domain.Ticket, comments []CommentDetail) (*TicketDetail, error) {
	ids := []string{ticket.CreatedBy}
	if ticket.AssignedTo != nil {
		ids = append(ids, *ticket.AssignedTo)
	}
	summaries, err := s.users.GetSummaries(ctx, ids)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	if comments == nil {
		comments = []CommentDetail{}
	}
	detail := &TicketDetail{Ticket: *ticket, Comments: comments}
	if summary, ok := summaries[ticket.CreatedBy]; ok {
		detail.Creator = &summary
	}
	if ticket.AssignedTo != nil {
		if summary, ok := summaries[*ticket.AssignedTo]; ok {
			detail.Assignee = &summary
		}
	}
	return detail, nil
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func actorFor(principal *domain.User) events.Actor {
	return events.Actor{UserID: principal.ID, Role: principal.Role}
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	if max <= 3 {
		return body[:max]
	}
	return body[:max-3] + "..."
}
