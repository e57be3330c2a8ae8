package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// ReportsHandler serves admin-only SLA and export endpoints.
type ReportsHandler struct {
	service *service.ReportService
}

// NewReportsHandler constructs handler.
func NewReportsHandler(reportService *service.ReportService) *ReportsHandler {
	return &ReportsHandler{service: reportService}
}

// Breached GET /api/tickets/admin/breached.
func (h *ReportsHandler) Breached(c *fiber.Ctx) error {
	tickets, err := h.service.BreachedTickets(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i]))
	}
	return c.JSON(dto.BreachedTicketsResponse{
		Tickets: items,
		Count:   len(items),
	})
}

// ExportTickets GET /api/tickets/admin/export/tickets.
func (h *ReportsHandler) ExportTickets(c *fiber.Ctx) error {
	data, err := h.service.TicketReportPDF(c.UserContext())
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="ticket-report.pdf"`)
	return c.Send(data)
}

// ExportUsers GET /api/tickets/admin/export/users.
func (h *ReportsHandler) ExportUsers(c *fiber.Ctx) error {
	data, err := h.service.UserReportCSV(c.UserContext())
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="user-report.csv"`)
	return c.Send(data)
}

// ExportPerformance GET /api/tickets/admin/export/performance.
func (h *ReportsHandler) ExportPerformance(c *fiber.Ctx) error {
	data, err := h.service.PerformanceReportCSV(c.UserContext())
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="performance-report.csv"`)
	return c.Send(data)
}

// ExportSLA GET /api/tickets/admin/export/sla.
func (h *ReportsHandler) ExportSLA(c *fiber.Ctx) error {
	data, err := h.service.SLAReportCSV(c.UserContext())
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="sla-report.csv"`)
	return c.Send(data)
}
