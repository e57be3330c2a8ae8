package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Priority    domain.TicketPriority `json:"priority"`
}

// UpdateTicketRequest is a partial patch; absent fields stay untouched.
// Version, when supplied, must match the stored ticket for the write to be
// accepted.
type UpdateTicketRequest struct {
	Title       *string                `json:"title"`
	Description *string                `json:"description"`
	Priority    *domain.TicketPriority `json:"priority"`
	Status      *domain.TicketStatus   `json:"status"`
	AssignedTo  *string                `json:"assigned_to"`
	Version     *int                   `json:"version"`
}

// CreateCommentRequest payload.
type CreateCommentRequest struct {
	Content    string `json:"content"`
	IsInternal bool   `json:"is_internal"`
}

// CommentResponse represents a thread entry.
type CommentResponse struct {
	ID         string                  `json:"id"`
	TicketID   string                  `json:"ticket_id"`
	Author     *domain.IdentitySummary `json:"author"`
	Content    string                  `json:"content"`
	IsInternal bool                    `json:"is_internal"`
	CreatedAt  time.Time               `json:"created_at"`
}

// TicketResponse provides full ticket info with identity summaries.
type TicketResponse struct {
	ID          string                  `json:"id"`
	Title       string                  `json:"title"`
	Description string                  `json:"description"`
	CreatedBy   *domain.IdentitySummary `json:"created_by"`
	AssignedTo  *domain.IdentitySummary `json:"assigned_to"`
	Status      domain.TicketStatus     `json:"status"`
	Priority    domain.TicketPriority   `json:"priority"`
	SLADeadline time.Time               `json:"sla_deadline"`
	SLABreached bool                    `json:"is_sla_breached"`
	Version     int                     `json:"version"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
	Comments    []CommentResponse       `json:"comments"`
}

// TicketListResponse is the paginated listing envelope.
type TicketListResponse struct {
	Items      []TicketResponse `json:"items"`
	Total      int              `json:"total"`
	Limit      int              `json:"limit"`
	Offset     int              `json:"offset"`
	NextOffset *int             `json:"next_offset"`
}

// BreachedTicketsResponse wraps the admin breach report.
type BreachedTicketsResponse struct {
	Tickets []TicketResponse `json:"tickets"`
	Count   int              `json:"count"`
}
