package domain

import "time"

// Comment is a thread entry on a ticket. Comments are append-only: never
// mutated or deleted.
type Comment struct {
	ID         string
	TicketID   string
	AuthorID   string
	Content    string
	IsInternal bool
	CreatedAt  time.Time
}
