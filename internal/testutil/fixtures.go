package testutil

import "github.com/roach88/rowmap/internal/meta"

// UserEntity maps the users table.
//
//	user_id    int     autoincrement
//	first_name string
//	last_name  string
//	email      string  nullable
//	active     bool
//	balance    float
func UserEntity() *meta.Entity {
	return meta.MustNew(meta.Definition{
		Name:  "User",
		Table: "users",
		Fields: []meta.FieldDef{
			{Name: "userId", Column: "user_id", Type: meta.Int, Autoincrement: true},
			{Name: "firstName", Column: "first_name", Type: meta.String},
			{Name: "lastName", Column: "last_name", Type: meta.String},
			{Name: "email", Column: "email", Type: meta.String, Nullable: true},
			{Name: "active", Column: "active", Type: meta.Bool},
			{Name: "balance", Column: "balance", Type: meta.Float},
		},
	})
}

// TicketEntity maps the support.tickets table.
//
//	ticket_id int
//	user_id   int
//	title     string
//	priority  int     nullable
//	open      bool
//	payload   blob    nullable
func TicketEntity() *meta.Entity {
	return meta.MustNew(meta.Definition{
		Name:  "Ticket",
		Table: "support.tickets",
		Fields: []meta.FieldDef{
			{Name: "ticketId", Column: "ticket_id", Type: meta.Int},
			{Name: "userId", Column: "user_id", Type: meta.Int},
			{Name: "title", Column: "title", Type: meta.String},
			{Name: "priority", Column: "priority", Type: meta.Int, Nullable: true},
			{Name: "open", Column: "open", Type: meta.Bool},
			{Name: "payload", Column: "payload", Type: meta.Blob, Nullable: true},
		},
	})
}

// CounterEntity maps a table without autoincrement column.
func CounterEntity() *meta.Entity {
	return meta.MustNew(meta.Definition{
		Name:  "Counter",
		Table: "counters",
		Fields: []meta.FieldDef{
			{Name: "name", Column: "name", Type: meta.String},
			{Name: "count", Column: "count", Type: meta.Int},
		},
	})
}
