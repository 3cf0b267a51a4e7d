package sqlscan

import (
	"reflect"
	"testing"
)

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name  string
		batch string
		want  []string
	}{
		{
			name:  "single statement",
			batch: "SELECT 1",
			want:  []string{"SELECT 1"},
		},
		{
			name:  "two statements",
			batch: "INSERT INTO t (a) VALUES (1); UPDATE t SET a = 2",
			want:  []string{"INSERT INTO t (a) VALUES (1)", "UPDATE t SET a = 2"},
		},
		{
			name:  "semicolon inside string literal",
			batch: "INSERT INTO t (a) VALUES ('x; y'); SELECT 1",
			want:  []string{"INSERT INTO t (a) VALUES ('x; y')", "SELECT 1"},
		},
		{
			name:  "semicolon inside line comment",
			batch: "SELECT 1 -- trailing; not a separator\n; SELECT 2",
			want:  []string{"SELECT 1 -- trailing; not a separator", "SELECT 2"},
		},
		{
			name:  "semicolon inside block comment",
			batch: "SELECT 1 /* a; b */; SELECT 2",
			want:  []string{"SELECT 1 /* a; b */", "SELECT 2"},
		},
		{
			name:  "escaped quote",
			batch: "INSERT INTO t (a) VALUES ('it''s; fine'); SELECT 1",
			want:  []string{"INSERT INTO t (a) VALUES ('it''s; fine')", "SELECT 1"},
		},
		{
			name:  "trailing separator and blanks",
			batch: "SELECT 1; ; ;",
			want:  []string{"SELECT 1"},
		},
		{
			name:  "empty batch",
			batch: "   ",
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SplitStatements(tt.batch); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitStatements() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestFirstKeyword(t *testing.T) {
	tests := []struct {
		stmt string
		want string
	}{
		{"SELECT * FROM t", "select"},
		{"  \n\tUpdate t SET a = 1", "update"},
		{"-- comment\nDELETE FROM t", "delete"},
		{"/* leading */ INSERT INTO t VALUES (1)", "insert"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := FirstKeyword(tt.stmt); got != tt.want {
			t.Errorf("FirstKeyword(%q) = %q, want %q", tt.stmt, got, tt.want)
		}
	}
}

func TestTargetIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		stmt    string
		want    string
		wantErr bool
	}{
		{"plain insert", "INSERT INTO tasks (a) VALUES (1)", "tasks", false},
		{"insert or replace", "INSERT OR REPLACE INTO tasks (a) VALUES (1)", "tasks", false},
		{"replace", "REPLACE INTO tasks (a) VALUES (1)", "tasks", false},
		{"update", "UPDATE tasks SET a = 1", "tasks", false},
		{"update or ignore", "UPDATE OR IGNORE tasks SET a = 1", "tasks", false},
		{"delete", "DELETE FROM tasks WHERE a = 1", "tasks", false},
		{"quoted identifier", `UPDATE "open tasks" SET a = 1`, "open tasks", false},
		{"backtick identifier", "UPDATE `tasks` SET a = 1", "tasks", false},
		{"bracketed identifier", "UPDATE [tasks] SET a = 1", "tasks", false},
		{"schema qualified", "UPDATE main.tasks SET a = 1", "tasks", false},
		{"select has no target", "SELECT * FROM tasks", "", true},
		{"bare keyword", "DELETE", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TargetIdentifier(tt.stmt)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("TargetIdentifier(%q) = %q, want error", tt.stmt, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("TargetIdentifier(%q) error = %v", tt.stmt, err)
			}
			if got != tt.want {
				t.Errorf("TargetIdentifier(%q) = %q, want %q", tt.stmt, got, tt.want)
			}
		})
	}
}

func TestHasReturning(t *testing.T) {
	tests := []struct {
		name string
		stmt string
		want bool
	}{
		{"present", "DELETE FROM t RETURNING *", true},
		{"absent", "DELETE FROM t", false},
		{"inside string", "INSERT INTO t (a) VALUES ('no RETURNING here')", false},
		{"inside comment", "DELETE FROM t -- fake RETURNING\n", false},
		{"case insensitive", "delete from t returning id", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasReturning(tt.stmt); got != tt.want {
				t.Errorf("HasReturning(%q) = %v, want %v", tt.stmt, got, tt.want)
			}
		})
	}
}

func TestAppendReturning(t *testing.T) {
	tests := []struct {
		name string
		stmt string
		cols []string
		want string
	}{
		{
			name: "plain",
			stmt: "DELETE FROM t",
			cols: []string{"*"},
			want: "DELETE FROM t RETURNING *",
		},
		{
			name: "strips trailing semicolon",
			stmt: "DELETE FROM t ;",
			cols: []string{"rowid AS vq_rowid", "*"},
			want: "DELETE FROM t RETURNING rowid AS vq_rowid, *",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AppendReturning(tt.stmt, tt.cols...); got != tt.want {
				t.Errorf("AppendReturning() = %q, want %q", got, tt.want)
			}
		})
	}
}
