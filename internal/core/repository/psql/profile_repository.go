package psql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/campus-portal/internal/core/domain"
	"github.com/duynhne/campus-portal/middleware"
)

// DBTX is the subset of *pgxpool.Pool used by the repository.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	selectProfileQuery = `SELECT data, updated_at FROM profiles WHERE uid = $1`

	// Top-level keys of the incoming document replace existing ones; other keys survive.
	mergeProfileQuery = `INSERT INTO profiles (uid, data, updated_at) VALUES ($1, $2::jsonb, now())
ON CONFLICT (uid) DO UPDATE SET data = profiles.data || EXCLUDED.data, updated_at = now()`
)

// ProfileRepository implements domain.ProfileStore on a PostgreSQL JSONB table.
type ProfileRepository struct {
	db DBTX
}

// NewProfileRepository creates a new PostgreSQL profile repository
func NewProfileRepository(db DBTX) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Get retrieves the profile record for uid. Returns nil if not found.
func (r *ProfileRepository) Get(ctx context.Context, uid string) (*domain.Profile, error) {
	ctx, span := middleware.StartSpan(ctx, "store.get", trace.WithAttributes(
		attribute.String("layer", "store"),
		attribute.String("user.uid", uid),
	))
	defer span.End()

	if r.db == nil {
		return nil, domain.ErrStoreUnavailable
	}

	var (
		raw       []byte
		updatedAt time.Time
	)
	err := r.db.QueryRow(ctx, selectProfileQuery, uid).Scan(&raw, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetAttributes(attribute.Bool("profile.found", false))
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("query profile %q: %w", uid, err)
	}

	var profile domain.Profile
	if err := json.Unmarshal(raw, &profile); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("decode profile %q: %w", uid, err)
	}
	profile.UID = uid
	profile.UpdatedAt = updatedAt

	span.SetAttributes(attribute.Bool("profile.found", true))
	return &profile, nil
}

// Merge upserts fields into the record for uid. The update timestamp is set by the server.
func (r *ProfileRepository) Merge(ctx context.Context, uid string, fields domain.ProfileFields) error {
	ctx, span := middleware.StartSpan(ctx, "store.merge", trace.WithAttributes(
		attribute.String("layer", "store"),
		attribute.String("user.uid", uid),
		attribute.Int("fields", len(fields)),
	))
	defer span.End()

	if r.db == nil {
		return domain.ErrStoreUnavailable
	}

	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode profile fields: %w", err)
	}

	if _, err := r.db.Exec(ctx, mergeProfileQuery, uid, string(payload)); err != nil {
		span.RecordError(err)
		return fmt.Errorf("merge profile %q: %w", uid, err)
	}
	return nil
}
