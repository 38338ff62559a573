package db

import "testing"

func TestDialectPlaceholders(t *testing.T) {
	if got := DialectPostgres.List(2, 3); got != "$2, $3, $4" {
		t.Fatalf("postgres list = %q", got)
	}
	if got := DialectSQLite.List(2, 3); got != "?, ?, ?" {
		t.Fatalf("sqlite list = %q", got)
	}
	if Dialect("oracle").Valid() {
		t.Fatal("unknown dialect reported valid")
	}
}
