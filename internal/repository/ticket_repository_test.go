package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestBuildTicketWhere(t *testing.T) {
	status := domain.TicketStatusOpen
	priority := domain.TicketPriorityHigh

	tests := []struct {
		name     string
		filter   TicketFilter
		want     string
		wantArgs []any
	}{
		{
			name:     "no filters",
			filter:   TicketFilter{},
			want:     "1=1",
			wantArgs: []any{},
		},
		{
			name:     "user scope",
			filter:   TicketFilter{Scope: TicketScope{CreatedBy: strPtr("u1")}},
			want:     "1=1 AND created_by=$1",
			wantArgs: []any{"u1"},
		},
		{
			name:     "agent scope with status and priority",
			filter:   TicketFilter{Scope: TicketScope{AssignedTo: strPtr("a1")}, Status: &status, Priority: &priority},
			want:     "1=1 AND assigned_to=$1 AND status=$2 AND priority=$3",
			wantArgs: []any{"a1", status, priority},
		},
		{
			name:     "breached only",
			filter:   TicketFilter{BreachedOnly: true},
			want:     "1=1 AND is_sla_breached=TRUE",
			wantArgs: []any{},
		},
		{
			name:     "search is lowercased and wildcarded",
			filter:   TicketFilter{SearchTerm: strPtr("  Printer ")},
			want:     "1=1 AND (LOWER(title) LIKE $1 OR LOWER(description) LIKE $1)",
			wantArgs: []any{"%printer%"},
		},
		{
			name:     "blank search is ignored",
			filter:   TicketFilter{SearchTerm: strPtr("   ")},
			want:     "1=1",
			wantArgs: []any{},
		},
		{
			name:     "explicit assignee filter",
			filter:   TicketFilter{AssignedTo: strPtr("a2")},
			want:     "1=1 AND assigned_to=$1",
			wantArgs: []any{"a2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := buildTicketWhere(tt.filter)
			assert.Equal(t, tt.want, where)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestScopeForPrincipal(t *testing.T) {
	user := &domain.User{ID: "u1", Role: domain.RoleUser}
	agent := &domain.User{ID: "a1", Role: domain.RoleAgent}
	admin := &domain.User{ID: "x1", Role: domain.RoleAdmin}

	userScope := ScopeForPrincipal(user)
	assert.Equal(t, "u1", *userScope.CreatedBy)
	assert.Nil(t, userScope.AssignedTo)

	agentScope := ScopeForPrincipal(agent)
	assert.Nil(t, agentScope.CreatedBy)
	assert.Equal(t, "a1", *agentScope.AssignedTo)

	adminScope := ScopeForPrincipal(admin)
	assert.Nil(t, adminScope.CreatedBy)
	assert.Nil(t, adminScope.AssignedTo)
}
