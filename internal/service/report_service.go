package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/sla"
	"github.com/spec-kit/helpdesk-service/pkg/apperrors"
)

// ReportService produces admin-facing SLA and workload reports.
type ReportService struct {
	tickets repository.TicketRepository
	users   repository.UserRepository
	sla     *sla.Evaluator
}

// NewReportService constructs the service.
func NewReportService(tickets repository.TicketRepository, users repository.UserRepository, evaluator *sla.Evaluator) *ReportService {
	return &ReportService{tickets: tickets, users: users, sla: evaluator}
}

// BreachedTickets lists all SLA-breached tickets ordered by deadline, oldest
// breach first, with identity summaries attached.
func (s *ReportService) BreachedTickets(ctx context.Context) ([]TicketDetail, error) {
	tickets, err := s.tickets.ListBreached(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	summaries, err := s.summariesFor(ctx, tickets)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	details := make([]TicketDetail, 0, len(tickets))
	for i := range tickets {
		details = append(details, attachIdentities(tickets[i], summaries))
	}
	return details, nil
}

// TicketReportPDF renders the full ticket inventory as a PDF table.
func (s *ReportService) TicketReportPDF(ctx context.Context) ([]byte, error) {
	tickets, err := s.tickets.ListAll(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	names, err := s.userNames(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	doc := fpdf.New("L", "mm", "A4", "")
	doc.SetAutoPageBreak(true, 15)
	doc.AddPage()

	doc.SetFont("Helvetica", "B", 18)
	doc.CellFormat(0, 10, "Ticket Report", "", 1, "C", false, 0, "")
	doc.SetFont("Helvetica", "", 9)
	doc.CellFormat(0, 6, "Generated on: "+s.sla.Now().Format("2006-01-02"), "", 1, "R", false, 0, "")
	doc.CellFormat(0, 6, fmt.Sprintf("Total Tickets: %d", len(tickets)), "", 1, "L", false, 0, "")
	doc.Ln(4)

	headers := []string{"ID", "Title", "Status", "Priority", "Created By", "Assigned To", "Created", "SLA Breached"}
	widths := []float64{40, 60, 25, 25, 35, 35, 25, 25}

	doc.SetFont("Helvetica", "B", 9)
	for i, header := range headers {
		doc.CellFormat(widths[i], 7, header, "1", 0, "L", false, 0, "")
	}
	doc.Ln(-1)

	doc.SetFont("Helvetica", "", 8)
	for i := range tickets {
		ticket := &tickets[i]
		row := []string{
			truncate(ticket.ID, 12),
			truncate(ticket.Title, 32),
			string(ticket.Status),
			string(ticket.Priority),
			nameOrFallback(names, ticket.CreatedBy, "Unknown"),
			assigneeName(names, ticket.AssignedTo),
			ticket.CreatedAt.Format("2006-01-02"),
			yesNo(ticket.SLABreached),
		}
		for j, cell := range row {
			doc.CellFormat(widths[j], 6, cell, "1", 0, "L", false, 0, "")
		}
		doc.Ln(-1)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, apperrors.MapError(err)
	}
	return buf.Bytes(), nil
}

// UserReportCSV renders the user directory as CSV.
func (s *ReportService) UserReportCSV(ctx context.Context) ([]byte, error) {
	users, err := s.users.ListAll(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"ID", "Name", "Email", "Role", "Status", "Created Date"})
	for i := range users {
		user := &users[i]
		status := "Inactive"
		if user.IsActive {
			status = "Active"
		}
		_ = w.Write([]string{
			user.ID,
			user.Name,
			user.Email,
			string(user.Role),
			status,
			user.CreatedAt.Format("2006-01-02"),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, apperrors.MapError(err)
	}
	return buf.Bytes(), nil
}

// PerformanceReportCSV renders per-agent resolution metrics: how many tickets
// each active agent carries, how many they resolved, the average resolution
// time and the share resolved within the SLA window.
func (s *ReportService) PerformanceReportCSV(ctx context.Context) ([]byte, error) {
	tickets, err := s.tickets.ListAll(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	agents, err := s.users.ListActiveAgents(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"Agent Name", "Total Tickets", "Resolved Tickets", "Avg Resolution Time (hours)", "SLA Compliance (%)"})

	window := s.sla.Resolution()
	for i := range agents {
		agent := &agents[i]

		var total, resolved, compliant int
		var resolutionSum time.Duration
		for j := range tickets {
			ticket := &tickets[j]
			if ticket.AssignedTo == nil || *ticket.AssignedTo != agent.ID {
				continue
			}
			total++
			if ticket.Status != domain.TicketStatusResolved {
				continue
			}
			resolved++
			resolutionTime := ticket.UpdatedAt.Sub(ticket.CreatedAt)
			resolutionSum += resolutionTime
			if resolutionTime <= window {
				compliant++
			}
		}

		avgHours := 0
		compliance := 0
		if resolved > 0 {
			avgHours = int(math.Round(resolutionSum.Hours() / float64(resolved)))
			compliance = int(math.Round(float64(compliant) / float64(resolved) * 100))
		}

		_ = w.Write([]string{
			agent.Name,
			strconv.Itoa(total),
			strconv.Itoa(resolved),
			strconv.Itoa(avgHours),
			strconv.Itoa(compliance),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, apperrors.MapError(err)
	}
	return buf.Bytes(), nil
}

// SLAReportCSV renders resolution timing for every resolved ticket.
func (s *ReportService) SLAReportCSV(ctx context.Context) ([]byte, error) {
	tickets, err := s.tickets.ListAll(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	names, err := s.userNames(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"ID", "Title", "Created By", "Assigned To", "Created Date", "Resolved Date", "Resolution Time (hours)", "SLA Deadline", "SLA Breached"})
	for i := range tickets {
		ticket := &tickets[i]
		if ticket.Status != domain.TicketStatusResolved {
			continue
		}
		resolutionHours := int(math.Round(ticket.UpdatedAt.Sub(ticket.CreatedAt).Hours()))
		_ = w.Write([]string{
			ticket.ID,
			ticket.Title,
			nameOrFallback(names, ticket.CreatedBy, "Unknown"),
			assigneeName(names, ticket.AssignedTo),
			ticket.CreatedAt.Format("2006-01-02"),
			ticket.UpdatedAt.Format("2006-01-02"),
			strconv.Itoa(resolutionHours),
			ticket.SLADeadline.Format("2006-01-02"),
			yesNo(ticket.SLABreached),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, apperrors.MapError(err)
	}
	return buf.Bytes(), nil
}

func (s *ReportService) summariesFor(ctx context.Context, tickets []domain.Ticket) (map[string]domain.IdentitySummary, error) {
	ids := make([]string, 0, len(tickets)*2)
	seen := map[string]bool{}
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for i := range tickets {
		add(tickets[i].CreatedBy)
		if tickets[i].AssignedTo != nil {
			add(*tickets[i].AssignedTo)
		}
	}
	return s.users.GetSummaries(ctx, ids)
}

func (s *ReportService) userNames(ctx context.Context) (map[string]string, error) {
	users, err := s.users.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(users))
	for i := range users {
		names[users[i].ID] = users[i].Name
	}
	return names, nil
}

func attachIdentities(ticket domain.Ticket, summaries map[string]domain.IdentitySummary) TicketDetail {
	detail := TicketDetail{Ticket: ticket, Comments: []CommentDetail{}}
	if summary, ok := summaries[ticket.CreatedBy]; ok {
		detail.Creator = &summary
	}
	if ticket.AssignedTo != nil {
		if summary, ok := summaries[*ticket.AssignedTo]; ok {
			detail.Assignee = &summary
		}
	}
	return detail
}

func nameOrFallback(names map[string]string, id, fallback string) string {
	if name, ok := names[id]; ok {
		return name
	}
	return fallback
}

func assigneeName(names map[string]string, id *string) string {
	if id == nil {
		return "Unassigned"
	}
	return nameOrFallback(names, *id, "Unassigned")
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
