package repository

import "testing"

func TestParseDialect(t *testing.T) {
	tests := []struct {
		in      string
		want    Dialect
		wantErr bool
	}{
		{in: "postgres", want: DialectPostgres},
		{in: " MySQL ", want: DialectMySQL},
		{in: "sqlite", want: DialectSQLite},
		{in: "oracle", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseDialect(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseDialect(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseDialect(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRebind(t *testing.T) {
	q := `UPDATE t SET a = ?, b = ? WHERE id = ?`

	if got := DialectPostgres.rebind(q); got != `UPDATE t SET a = $1, b = $2 WHERE id = $3` {
		t.Errorf("postgres rebind = %q", got)
	}
	if got := DialectMySQL.rebind(q); got != q {
		t.Errorf("mysql rebind = %q, want unchanged", got)
	}
	if got := DialectSQLite.rebind(q); got != q {
		t.Errorf("sqlite rebind = %q, want unchanged", got)
	}
}

func TestDriverAndGooseNames(t *testing.T) {
	tests := []struct {
		d         Dialect
		driver    string
		gooseName string
	}{
		{DialectPostgres, "pgx", "postgres"},
		{DialectMySQL, "mysql", "mysql"},
		{DialectSQLite, "sqlite", "sqlite3"},
	}
	for _, tt := range tests {
		if got := tt.d.driverName(); got != tt.driver {
			t.Errorf("%s driverName = %q, want %q", tt.d, got, tt.driver)
		}
		if got := tt.d.gooseDialect(); got != tt.gooseName {
			t.Errorf("%s gooseDialect = %q, want %q", tt.d, got, tt.gooseName)
		}
	}
}
