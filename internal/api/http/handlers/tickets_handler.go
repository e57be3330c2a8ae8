package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
	"github.com/spec-kit/helpdesk-service/pkg/apperrors"
)

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /api/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := validateTitle(req.Title); err != nil {
		return err
	}
	if err := validateDescription(req.Description); err != nil {
		return err
	}
	if req.Priority != "" && !domain.ValidTicketPriority(req.Priority) {
		return apperrors.NewValidationError("priority must be low, medium, high, or urgent", fieldDetail("priority"))
	}

	ticket, err := h.service.CreateTicket(c.UserContext(), principal, service.TicketCreateInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message": "Ticket created successfully",
		"ticket":  ticketResponse(ticket),
	})
}

// ListTickets GET /api/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	input, err := parseTicketListQuery(c)
	if err != nil {
		return err
	}

	page, err := h.service.ListTickets(c.UserContext(), principal, input)
	if err != nil {
		return err
	}

	items := make([]dto.TicketResponse, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, ticketResponse(&page.Items[i]))
	}
	return c.JSON(dto.TicketListResponse{
		Items:      items,
		Total:      page.Total,
		Limit:      page.Limit,
		Offset:     page.Offset,
		NextOffset: page.NextOffset,
	})
}

// GetTicket GET /api/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	ticket, err := h.service.GetTicket(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	resp := ticketResponse(ticket)
	return c.JSON(fiber.Map{
		"ticket":   resp,
		"comments": resp.Comments,
	})
}

// UpdateTicket PATCH /api/tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Title != nil {
		if err := validateTitle(*req.Title); err != nil {
			return err
		}
	}
	if req.Description != nil {
		if err := validateDescription(*req.Description); err != nil {
			return err
		}
	}
	if req.Priority != nil && !domain.ValidTicketPriority(*req.Priority) {
		return apperrors.NewValidationError("priority must be low, medium, high, or urgent", fieldDetail("priority"))
	}
	if req.Status != nil && !domain.ValidTicketStatus(*req.Status) {
		return apperrors.NewValidationError("status must be open, in_progress, or resolved", fieldDetail("status"))
	}

	ticket, err := h.service.UpdateTicket(c.UserContext(), principal, c.Params("id"), service.TicketUpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Status:      req.Status,
		AssignedTo:  req.AssignedTo,
		Version:     req.Version,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message": "Ticket updated successfully",
		"ticket":  ticketResponse(ticket),
	})
}

// AddComment POST /api/tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CreateCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	content := strings.TrimSpace(req.Content)
	if utf8.RuneCountInString(content) < 1 || utf8.RuneCountInString(content) > 1000 {
		return apperrors.NewValidationError("comment must be between 1 and 1000 characters", fieldDetail("content"))
	}

	comment, err := h.service.AddComment(c.UserContext(), principal, c.Params("id"), service.CommentCreateInput{
		Content:    content,
		IsInternal: req.IsInternal,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message": "Comment added successfully",
		"comment": commentResponse(comment),
	})
}

func parseTicketListQuery(c *fiber.Ctx) (service.TicketListInput, error) {
	input := service.TicketListInput{
		Limit:  10,
		Offset: 0,
	}
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return input, apperrors.NewValidationError("limit must be a non-negative integer", fieldDetail("limit"))
		}
		input.Limit = parsed
	}
	if raw := c.Query("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return input, apperrors.NewValidationError("offset must be a non-negative integer", fieldDetail("offset"))
		}
		input.Offset = parsed
	}
	if q := c.Query("q"); q != "" {
		input.SearchTerm = &q
	}
	if raw := c.Query("status"); raw != "" {
		status := domain.TicketStatus(raw)
		if !domain.ValidTicketStatus(status) {
			return input, apperrors.NewValidationError("status must be open, in_progress, or resolved", fieldDetail("status"))
		}
		input.Status = &status
	}
	if raw := c.Query("priority"); raw != "" {
		priority := domain.TicketPriority(raw)
		if !domain.ValidTicketPriority(priority) {
			return input, apperrors.NewValidationError("priority must be low, medium, high, or urgent", fieldDetail("priority"))
		}
		input.Priority = &priority
	}
	if assigned := c.Query("assigned"); assigned != "" {
		input.AssignedTo = &assigned
	}
	input.BreachedOnly = c.Query("breached") == "true"
	return input, nil
}

func validateTitle(title string) error {
	length := utf8.RuneCountInString(strings.TrimSpace(title))
	if length < 5 || length > 200 {
		return apperrors.NewValidationError("title must be between 5 and 200 characters", fieldDetail("title"))
	}
	return nil
}

func validateDescription(description string) error {
	length := utf8.RuneCountInString(strings.TrimSpace(description))
	if length < 10 || length > 2000 {
		return apperrors.NewValidationError("description must be between 10 and 2000 characters", fieldDetail("description"))
	}
	return nil
}

func fieldDetail(field string) map[string]any {
	return map[string]any{"field": field}
}

func ticketResponse(detail *service.TicketDetail) dto.TicketResponse {
	comments := make([]dto.CommentResponse, 0, len(detail.Comments))
	for i := range detail.Comments {
		comments = append(comments, commentResponse(&detail.Comments[i]))
	}
	return dto.TicketResponse{
		ID:          detail.ID,
		Title:       detail.Title,
		Description: detail.Description,
		CreatedBy:   detail.Creator,
		AssignedTo:  detail.Assignee,
		Status:      detail.Status,
		Priority:    detail.Priority,
		SLADeadline: detail.SLADeadline,
		SLABreached: detail.SLABreached,
		Version:     detail.Version,
		CreatedAt:   detail.CreatedAt,
		UpdatedAt:   detail.UpdatedAt,
		Comments:    comments,
	}
}

func commentResponse(comment *service.CommentDetail) dto.CommentResponse {
	return dto.CommentResponse{
		ID:         comment.ID,
		TicketID:   comment.TicketID,
		Author:     comment.Author,
		Content:    comment.Content,
		IsInternal: comment.IsInternal,
		CreatedAt:  comment.CreatedAt,
	}
}
