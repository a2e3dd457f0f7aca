package driver

import "testing"

func TestPostgresPlaceholderRewrite(t *testing.T) {
	d := NewPostgres()

	tests := []struct {
		in, want string
	}{
		{
			"UPDATE tasks SET title = ?, status = ? WHERE id = ?",
			"UPDATE tasks SET title = $1, status = $2 WHERE id = $3",
		},
		{
			"SELECT * FROM tasks WHERE title = 'what?' AND id = ?",
			"SELECT * FROM tasks WHERE title = 'what?' AND id = $1",
		},
		{
			"SELECT id FROM ai_agents WHERE status = 'active'",
			"SELECT id FROM ai_agents WHERE status = 'active'",
		},
		{
			"INSERT INTO t (a, b, c) VALUES (?, ?, ?)",
			"INSERT INTO t (a, b, c) VALUES ($1, $2, $3)",
		},
	}
	for _, tt := range tests {
		if got := d.rewrite(tt.in); got != tt.want {
			t.Errorf("rewrite(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPlaceholderPerDialect(t *testing.T) {
	if got := NewSQLite().Placeholder(3); got != "?" {
		t.Errorf("sqlite placeholder = %q, want ?", got)
	}
	if got := NewPostgres().Placeholder(3); got != "$3" {
		t.Errorf("postgres placeholder = %q, want $3", got)
	}
}
