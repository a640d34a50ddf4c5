// Package clinic keeps the profile of the practice shown on reports and
// headers. Exactly one profile is active at a time.
package clinic

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mesikahq/clinic-records/internal/apperr"
	"github.com/mesikahq/clinic-records/internal/audit"
	"github.com/mesikahq/clinic-records/internal/database"
	"github.com/mesikahq/clinic-records/internal/directory"
)

const defaultName = "Nuevo Consultorio"

var (
	ErrNoActiveProfile = apperr.NotFound("no clinic profile is configured")
	ErrDuplicateRIF    = apperr.Conflict("a clinic with this rif already exists")
	ErrAdminOnly       = apperr.Forbidden("only administrators can change the clinic profile")
)

type Profile struct {
	ID        int64     `json:"id"`
	Name      string    `json:"nombre"`
	RIF       string    `json:"rif"`
	Address   string    `json:"direccion"`
	Email     string    `json:"correo"`
	Phone     string    `json:"telefono"`
	Logo      string    `json:"logo"`
	Active    bool      `json:"activo"`
	CreatedAt time.Time `json:"fecha_creacion"`
}

// Patch holds the submitted fields; nil keeps the stored value.
type Patch struct {
	Name    *string `json:"nombre"`
	RIF     *string `json:"rif"`
	Address *string `json:"direccion"`
	Email   *string `json:"correo"`
	Phone   *string `json:"telefono"`
	Logo    *string `json:"logo"`
}

func (p Patch) apply(dst *Profile) {
	set := func(field *string, v *string) {
		if v != nil {
			*field = strings.TrimSpace(*v)
		}
	}
	set(&dst.Name, p.Name)
	set(&dst.RIF, p.RIF)
	set(&dst.Address, p.Address)
	set(&dst.Email, p.Email)
	set(&dst.Phone, p.Phone)
	set(&dst.Logo, p.Logo)
}

func (p *Profile) Validate() error {
	if p.Name == "" {
		return apperr.InvalidInput("nombre cannot be empty")
	}
	if len(p.RIF) > 20 {
		return apperr.InvalidInput("rif must be at most 20 characters")
	}
	if p.Email != "" {
		if _, err := mail.ParseAddress(p.Email); err != nil {
			return apperr.InvalidInput("correo is not a valid email address")
		}
	}
	return nil
}

type Store interface {
	Active(ctx context.Context) (*Profile, error)
	// Save writes the active profile and deactivates every other one in a
	// single transaction. mutate receives the current active profile, or a
	// fresh one when none exists.
	Save(ctx context.Context, mutate func(*Profile) error) (*Profile, error)
}

type Service interface {
	Active(ctx context.Context) (*Profile, error)
	Save(ctx context.Context, req directory.Requester, p Patch) (*Profile, error)
}

type service struct {
	store Store
	audit audit.Service
}

func NewService(store Store, audit audit.Service) Service {
	return &service{store: store, audit: audit}
}

func (s *service) Active(ctx context.Context) (*Profile, error) {
	return s.store.Active(ctx)
}

func (s *service) Save(ctx context.Context, req directory.Requester, patch Patch) (*Profile, error) {
	if !req.IsAdmin() {
		return nil, ErrAdminOnly
	}
	saved, err := s.store.Save(ctx, func(p *Profile) error {
		patch.apply(p)
		return p.Validate()
	})
	if err != nil {
		return nil, err
	}
	s.audit.LogEvent(ctx, &audit.Event{
		EventType: audit.EventModify,
		Action:    "SAVE",
		Resource:  "clinic_profile",
	})
	return saved, nil
}

type pgStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) Store {
	return &pgStore{db: db}
}

const selectProfile = `SELECT id, name, COALESCE(rif, ''), address, email, phone, logo, active, created_at FROM clinic_profiles`

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.Name, &p.RIF, &p.Address, &p.Email, &p.Phone, &p.Logo, &p.Active, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *pgStore) Active(ctx context.Context) (*Profile, error) {
	p, err := scanProfile(s.db.QueryRow(ctx, selectProfile+` WHERE active ORDER BY id LIMIT 1`))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveProfile
		}
		return nil, apperr.Internal(err, "failed to load clinic profile")
	}
	return p, nil
}

func (s *pgStore) Save(ctx context.Context, mutate func(*Profile) error) (*Profile, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, apperr.Internal(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	p, err := scanProfile(tx.QueryRow(ctx, selectProfile+` WHERE active ORDER BY id LIMIT 1 FOR UPDATE`))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		p = &Profile{Name: defaultName}
	case err != nil:
		return nil, apperr.Internal(err, "failed to load clinic profile")
	}

	if err := mutate(p); err != nil {
		return nil, err
	}
	p.Active = true

	if p.ID == 0 {
		err = tx.QueryRow(ctx,
			`INSERT INTO clinic_profiles (name, rif, address, email, phone, logo, active, created_at)
			 VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, TRUE, NOW()) RETURNING id, created_at`,
			p.Name, p.RIF, p.Address, p.Email, p.Phone, p.Logo,
		).Scan(&p.ID, &p.CreatedAt)
	} else {
		_, err = tx.Exec(ctx,
			`UPDATE clinic_profiles
			 SET name = $1, rif = NULLIF($2, ''), address = $3, email = $4, phone = $5, logo = $6, active = TRUE
			 WHERE id = $7`,
			p.Name, p.RIF, p.Address, p.Email, p.Phone, p.Logo, p.ID,
		)
	}
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrDuplicateRIF
		}
		return nil, apperr.Internal(err, "failed to save clinic profile")
	}

	if _, err := tx.Exec(ctx, `UPDATE clinic_profiles SET active = FALSE WHERE id <> $1 AND active`, p.ID); err != nil {
		return nil, apperr.Internal(err, "failed to deactivate other clinic profiles")
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Internal(err, "failed to commit clinic profile")
	}
	return p, nil
}
