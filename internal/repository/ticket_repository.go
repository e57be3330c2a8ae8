package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// TicketScope restricts which tickets an operation may see. A nil field means
// no restriction on that dimension; admins use the zero value.
type TicketScope struct {
	CreatedBy  *string
	AssignedTo *string
}

// ScopeForPrincipal maps a caller's role onto the visibility scope: users see
// what they created, agents see what they are assigned, admins see all.
func ScopeForPrincipal(principal *domain.User) TicketScope {
	scope := TicketScope{}
	switch principal.Role {
	case domain.RoleUser:
		id := principal.ID
		scope.CreatedBy = &id
	case domain.RoleAgent:
		id := principal.ID
		scope.AssignedTo = &id
	}
	return scope
}

// TicketFilter captures listing parameters. All filters are conjunctive.
type TicketFilter struct {
	Scope        TicketScope
	Status       *domain.TicketStatus
	Priority     *domain.TicketPriority
	AssignedTo   *string
	BreachedOnly bool
	SearchTerm   *string
	Limit        int
	Offset       int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	// GetScoped returns the ticket only when it exists and the scope admits
	// it; both failures surface as pgx.ErrNoRows so callers cannot
	// distinguish them.
	GetScoped(ctx context.Context, id string, scope TicketScope) (*domain.Ticket, error)
	// UpdateVersioned persists the ticket with a conditional write keyed on
	// expectedVersion. It returns false when the stored version moved, in
	// which case nothing was written.
	UpdateVersioned(ctx context.Context, ticket *domain.Ticket, expectedVersion int) (bool, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	CountWithFilter(ctx context.Context, filter TicketFilter) (int, error)
	CountOpenByAssignee(ctx context.Context, assigneeID string) (int, error)
	ListBreached(ctx context.Context) ([]domain.Ticket, error)
	ListAll(ctx context.Context) ([]domain.Ticket, error)
	CountByStatusOpenOrInProgress(ctx context.Context) (int, error)
	CountBreachedUnresolved(ctx context.Context) (int, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, title, description, created_by, assigned_to, status, priority,
               sla_deadline, is_sla_breached, version, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (title, description, created_by, assigned_to, status, priority, sla_deadline, is_sla_breached, version)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.CreatedBy,
		ticket.AssignedTo,
		ticket.Status,
		ticket.Priority,
		ticket.SLADeadline,
		ticket.SLABreached,
		ticket.Version,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetScoped(ctx context.Context, id string, scope TicketScope) (*domain.Ticket, error) {
	clauses := []string{"id=$1"}
	args := []any{id}
	if scope.CreatedBy != nil {
		args = append(args, *scope.CreatedBy)
		clauses = append(clauses, fmt.Sprintf("created_by=$%d", len(args)))
	}
	if scope.AssignedTo != nil {
		args = append(args, *scope.AssignedTo)
		clauses = append(clauses, fmt.Sprintf("assigned_to=$%d", len(args)))
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s`, ticketColumns, strings.Join(clauses, " AND "))

	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, args...).Scan(ticketFields(&ticket)...); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) UpdateVersioned(ctx context.Context, ticket *domain.Ticket, expectedVersion int) (bool, error) {
	const query = `
        UPDATE tickets SET title=$1, description=$2, assigned_to=$3, status=$4, priority=$5,
            is_sla_breached=$6, version=$7, updated_at=NOW()
        WHERE id=$8 AND version=$9
        RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.AssignedTo,
		ticket.Status,
		ticket.Priority,
		ticket.SLABreached,
		ticket.Version,
		ticket.ID,
		expectedVersion,
	).Scan(&ticket.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	where, args := buildTicketWhere(filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, where, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) CountWithFilter(ctx context.Context, filter TicketFilter) (int, error) {
	where, args := buildTicketWhere(filter)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM tickets WHERE %s`, where)

	var count int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ticketRepository) CountOpenByAssignee(ctx context.Context, assigneeID string) (int, error) {
	const query = `SELECT COUNT(*) FROM tickets WHERE assigned_to=$1 AND status IN ('open','in_progress')`
	var count int
	if err := r.pool.QueryRow(ctx, query, assigneeID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ticketRepository) ListBreached(ctx context.Context) ([]domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE is_sla_breached=TRUE ORDER BY sla_deadline ASC`, ticketColumns)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListAll(ctx context.Context) ([]domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets ORDER BY created_at DESC`, ticketColumns)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) CountByStatusOpenOrInProgress(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM tickets WHERE status IN ('open','in_progress')`
	var count int
	if err := r.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ticketRepository) CountBreachedUnresolved(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM tickets WHERE status != 'resolved' AND sla_deadline < NOW()`
	var count int
	if err := r.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// buildTicketWhere assembles the conjunctive WHERE clause for list and count
// so both always agree on what matches.
func buildTicketWhere(filter TicketFilter) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Scope.CreatedBy != nil {
		args = append(args, *filter.Scope.CreatedBy)
		clauses = append(clauses, fmt.Sprintf("created_by=$%d", len(args)))
	}
	if filter.Scope.AssignedTo != nil {
		args = append(args, *filter.Scope.AssignedTo)
		clauses = append(clauses, fmt.Sprintf("assigned_to=$%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.Priority != nil {
		args = append(args, *filter.Priority)
		clauses = append(clauses, fmt.Sprintf("priority=$%d", len(args)))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		clauses = append(clauses, fmt.Sprintf("assigned_to=$%d", len(args)))
	}
	if filter.BreachedOnly {
		clauses = append(clauses, "is_sla_breached=TRUE")
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(title) LIKE %s OR LOWER(description) LIKE %s)", placeholder, placeholder))
	}

	return strings.Join(clauses, " AND "), args
}

func ticketFields(ticket *domain.Ticket) []any {
	return []any{
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.CreatedBy,
		&ticket.AssignedTo,
		&ticket.Status,
		&ticket.Priority,
		&ticket.SLADeadline,
		&ticket.SLABreached,
		&ticket.Version,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	}
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(ticketFields(&ticket)...); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
