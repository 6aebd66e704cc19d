package domain

// User owns a set of topics and receives summaries collected for them.
type User struct {
	ID     int64
	Name   string
	Active bool
}

// Topic belongs to exactly one user; Query is the structured catalog query.
// Read-only from the pipeline's perspective.
type Topic struct {
	ID      int64
	UserID  int64
	Name    string
	Query   string
	Enabled bool
}
