// Package seed loads the reference data every installation needs: the three
// roles and the catalogue of medical specialties.
package seed

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gopkg.in/yaml.v3"

	"github.com/mesikahq/clinic-records/internal/doctor"
)

//go:embed seed.yaml
var defaultData []byte

type Role struct {
	Code string `yaml:"codigo"`
	Name string `yaml:"nombre"`
}

type Data struct {
	Roles       []Role             `yaml:"roles"`
	Specialties []doctor.Specialty `yaml:"especialidades"`
}

// Result counts the rows that did not exist before Apply.
type Result struct {
	RolesCreated       int
	SpecialtiesCreated int
}

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func Default() (*Data, error) {
	return Parse(defaultData)
}

func Parse(b []byte) (*Data, error) {
	var d Data
	if err := yaml.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("parse seed data: %w", err)
	}

	codes := make(map[string]bool, len(d.Roles))
	for i, r := range d.Roles {
		r.Code = strings.TrimSpace(r.Code)
		r.Name = strings.TrimSpace(r.Name)
		if r.Code == "" || r.Name == "" {
			return nil, fmt.Errorf("role %d: codigo and nombre are required", i)
		}
		if codes[r.Code] {
			return nil, fmt.Errorf("duplicate role %q", r.Code)
		}
		codes[r.Code] = true
		d.Roles[i] = r
	}

	names := make(map[string]bool, len(d.Specialties))
	for i := range d.Specialties {
		s := &d.Specialties[i]
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("specialty %d: %w", i, err)
		}
		if names[s.Name] {
			return nil, fmt.Errorf("duplicate specialty %q", s.Name)
		}
		names[s.Name] = true
	}
	return &d, nil
}

// Apply inserts missing rows and leaves existing ones untouched, so it can
// be rerun on every deploy.
func Apply(ctx context.Context, db Execer, d *Data) (Result, error) {
	var res Result
	for _, r := range d.Roles {
		tag, err := db.Exec(ctx,
			`INSERT INTO roles (code, name) VALUES ($1, $2) ON CONFLICT (code) DO NOTHING`,
			r.Code, r.Name)
		if err != nil {
			return res, fmt.Errorf("insert role %s: %w", r.Code, err)
		}
		res.RolesCreated += int(tag.RowsAffected())
	}
	for _, s := range d.Specialties {
		tag, err := db.Exec(ctx,
			`INSERT INTO specialties (name, description) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
			s.Name, s.Description)
		if err != nil {
			return res, fmt.Errorf("insert specialty %s: %w", s.Name, err)
		}
		res.SpecialtiesCreated += int(tag.RowsAffected())
	}
	return res, nil
}
