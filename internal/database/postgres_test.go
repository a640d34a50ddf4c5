package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestContainsPattern(t *testing.T) {
	tests := []struct {
		term string
		want string
	}{
		{"ana", `%ana%`},
		{"_", `%\_%`},
		{"100%", `%100\%%`},
		{`a\b`, `%a\\b%`},
		{"", `%%`},
	}
	for _, tt := range tests {
		if got := ContainsPattern(tt.term); got != tt.want {
			t.Errorf("ContainsPattern(%q) = %q, want %q", tt.term, got, tt.want)
		}
	}
}

func TestErrorClassification(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "patients_dni_key"})
	fk := &pgconn.PgError{Code: "23503"}

	if !IsUniqueViolation(unique) || IsForeignKeyViolation(unique) {
		t.Error("unique violation misclassified")
	}
	if !IsForeignKeyViolation(fk) || IsUniqueViolation(fk) {
		t.Error("foreign key violation misclassified")
	}
	if got := ConstraintName(unique); got != "patients_dni_key" {
		t.Errorf("ConstraintName() = %q", got)
	}
	plain := errors.New("boom")
	if IsUniqueViolation(plain) || ConstraintName(plain) != "" {
		t.Error("plain error classified as a PostgreSQL error")
	}
}
