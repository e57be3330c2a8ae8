package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

var testBase = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type fakeTicketRepo struct {
	tickets []*domain.Ticket
	seq     int

	forceVersionMiss bool
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{}
}

func (r *fakeTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.seq++
	ticket.ID = fmt.Sprintf("ticket-%03d", r.seq)
	ticket.CreatedAt = testBase.Add(time.Duration(r.seq) * time.Minute)
	ticket.UpdatedAt = ticket.CreatedAt
	stored := *ticket
	r.tickets = append(r.tickets, &stored)
	return nil
}

func (r *fakeTicketRepo) GetScoped(_ context.Context, id string, scope repository.TicketScope) (*domain.Ticket, error) {
	for _, t := range r.tickets {
		if t.ID != id {
			continue
		}
		if scope.CreatedBy != nil && t.CreatedBy != *scope.CreatedBy {
			return nil, pgx.ErrNoRows
		}
		if scope.AssignedTo != nil && (t.AssignedTo == nil || *t.AssignedTo != *scope.AssignedTo) {
			return nil, pgx.ErrNoRows
		}
		copied := *t
		return &copied, nil
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeTicketRepo) UpdateVersioned(_ context.Context, ticket *domain.Ticket, expectedVersion int) (bool, error) {
	if r.forceVersionMiss {
		return false, nil
	}
	for _, t := range r.tickets {
		if t.ID != ticket.ID {
			continue
		}
		if t.Version != expectedVersion {
			return false, nil
		}
		updated := *ticket
		updated.UpdatedAt = t.UpdatedAt.Add(time.Second)
		*t = updated
		ticket.UpdatedAt = updated.UpdatedAt
		return true, nil
	}
	return false, nil
}

func (r *fakeTicketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	matched := r.filtered(filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}

	page := make([]domain.Ticket, 0, end-offset)
	for _, t := range matched[offset:end] {
		page = append(page, *t)
	}
	return page, nil
}

func (r *fakeTicketRepo) CountWithFilter(_ context.Context, filter repository.TicketFilter) (int, error) {
	return len(r.filtered(filter)), nil
}

func (r *fakeTicketRepo) CountOpenByAssignee(_ context.Context, assigneeID string) (int, error) {
	count := 0
	for _, t := range r.tickets {
		if t.AssignedTo != nil && *t.AssignedTo == assigneeID && t.Status != domain.TicketStatusResolved {
			count++
		}
	}
	return count, nil
}

func (r *fakeTicketRepo) ListBreached(_ context.Context) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for _, t := range r.tickets {
		if t.SLABreached {
			result = append(result, *t)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].SLADeadline.Before(result[j].SLADeadline)
	})
	return result, nil
}

func (r *fakeTicketRepo) ListAll(_ context.Context) ([]domain.Ticket, error) {
	result := make([]domain.Ticket, 0, len(r.tickets))
	for _, t := range r.tickets {
		result = append(result, *t)
	}
	return result, nil
}

func (r *fakeTicketRepo) CountByStatusOpenOrInProgress(_ context.Context) (int, error) {
	count := 0
	for _, t := range r.tickets {
		if t.Status != domain.TicketStatusResolved {
			count++
		}
	}
	return count, nil
}

func (r *fakeTicketRepo) CountBreachedUnresolved(_ context.Context) (int, error) {
	count := 0
	for _, t := range r.tickets {
		if t.Status != domain.TicketStatusResolved && t.SLABreached {
			count++
		}
	}
	return count, nil
}

func (r *fakeTicketRepo) filtered(filter repository.TicketFilter) []*domain.Ticket {
	var matched []*domain.Ticket
	for _, t := range r.tickets {
		if filter.Scope.CreatedBy != nil && t.CreatedBy != *filter.Scope.CreatedBy {
			continue
		}
		if filter.Scope.AssignedTo != nil && (t.AssignedTo == nil || *t.AssignedTo != *filter.Scope.AssignedTo) {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		if filter.Priority != nil && t.Priority != *filter.Priority {
			continue
		}
		if filter.AssignedTo != nil && (t.AssignedTo == nil || *t.AssignedTo != *filter.AssignedTo) {
			continue
		}
		if filter.BreachedOnly && !t.SLABreached {
			continue
		}
		if filter.SearchTerm != nil {
			term := strings.ToLower(strings.TrimSpace(*filter.SearchTerm))
			if term != "" &&
				!strings.Contains(strings.ToLower(t.Title), term) &&
				!strings.Contains(strings.ToLower(t.Description), term) {
				continue
			}
		}
		matched = append(matched, t)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return matched
}

type fakeUserRepo struct {
	users []*domain.User
	seq   int

	summariesErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{}
}

func (r *fakeUserRepo) addUser(name string, role domain.Role, active bool) *domain.User {
	r.seq++
	user := &domain.User{
		ID:        fmt.Sprintf("user-%03d", r.seq),
		Name:      name,
		Email:     fmt.Sprintf("%s@example.com", strings.ToLower(strings.ReplaceAll(name, " ", "."))),
		Role:      role,
		IsActive:  active,
		CreatedAt: testBase.Add(time.Duration(r.seq) * time.Second),
	}
	r.users = append(r.users, user)
	return user
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	r.seq++
	user.ID = fmt.Sprintf("user-%03d", r.seq)
	user.CreatedAt = testBase.Add(time.Duration(r.seq) * time.Second)
	user.UpdatedAt = user.CreatedAt
	stored := *user
	r.users = append(r.users, &stored)
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	for _, u := range r.users {
		if u.ID == id {
			copied := *u
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeUserRepo) ListActiveAgents(_ context.Context) ([]domain.User, error) {
	var result []domain.User
	for _, u := range r.users {
		if u.Role == domain.RoleAgent && u.IsActive {
			result = append(result, *u)
		}
	}
	return result, nil
}

func (r *fakeUserRepo) GetSummaries(_ context.Context, ids []string) (map[string]domain.IdentitySummary, error) {
	if r.summariesErr != nil {
		return nil, r.summariesErr
	}
	result := make(map[string]domain.IdentitySummary, len(ids))
	for _, id := range ids {
		for _, u := range r.users {
			if u.ID == id {
				result[id] = u.Summary()
			}
		}
	}
	return result, nil
}

func (r *fakeUserRepo) ListAll(_ context.Context) ([]domain.User, error) {
	result := make([]domain.User, 0, len(r.users))
	for _, u := range r.users {
		result = append(result, *u)
	}
	return result, nil
}

type fakeCommentRepo struct {
	comments []*domain.Comment
	seq      int

	listErr error
}

func newFakeCommentRepo() *fakeCommentRepo {
	return &fakeCommentRepo{}
}

func (r *fakeCommentRepo) Create(_ context.Context, comment *domain.Comment) error {
	r.seq++
	comment.ID = fmt.Sprintf("comment-%03d", r.seq)
	comment.CreatedAt = testBase.Add(time.Duration(r.seq) * time.Second)
	stored := *comment
	r.comments = append(r.comments, &stored)
	return nil
}

func (r *fakeCommentRepo) ListByTicket(_ context.Context, ticketID string, order repository.CommentOrder) ([]domain.Comment, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	var result []domain.Comment
	for _, c := range r.comments {
		if c.TicketID == ticketID {
			result = append(result, *c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if order == repository.CommentOrderDesc {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}
