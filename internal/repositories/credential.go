package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/desertthunder/subfeed/internal/models"
)

var credentialColumns = []string{"profile", "access_token", "refresh_token", "expires_at", "created_at", "updated_at"}

// CredentialRepository implements [models.Repository] for [models.StoredCredential] persistence.
//
// One row per profile. Saving an existing profile replaces its tokens and keeps created_at.
type CredentialRepository struct {
	db *sql.DB
}

// NewCredentialRepository creates a new [CredentialRepository] with the given database connection
func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Save upserts the credential for its profile.
func (r *CredentialRepository) Save(ctx context.Context, c *models.StoredCredential) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	query, args, err := build(sq.Insert("credentials").
		Columns(credentialColumns...).
		Values(c.Profile, c.Credential.AccessToken, c.Credential.RefreshToken, nullTime(c.Credential.ExpiresAt), c.CreatedAt, c.UpdatedAt).
		Suffix(`ON CONFLICT(profile) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`))
	if err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// Get retrieves the credential stored for profile.
func (r *CredentialRepository) Get(ctx context.Context, profile string) (*models.StoredCredential, error) {
	query, args, err := build(sq.Select(credentialColumns...).From("credentials").Where(sq.Eq{"profile": profile}))
	if err != nil {
		return nil, err
	}

	c, err := r.scanOne(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, notFound(err, "credential", profile)
	}
	return c, nil
}

// Delete removes the credential stored for profile along with its feed runs.
func (r *CredentialRepository) Delete(ctx context.Context, profile string) error {
	query, args, err := build(sq.Delete("credentials").Where(sq.Eq{"profile": profile}))
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return requireAffected(result, "credential", profile)
}

// List retrieves every stored credential ordered by profile.
func (r *CredentialRepository) List(ctx context.Context) ([]*models.StoredCredential, error) {
	query, args, err := build(sq.Select(credentialColumns...).From("credentials").OrderBy("profile ASC"))
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query credentials: %w", err)
	}
	defer rows.Close()

	var creds []*models.StoredCredential
	for rows.Next() {
		c, err := r.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		creds = append(creds, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return creds, nil
}

func (r *CredentialRepository) scanOne(row rowScanner) (*models.StoredCredential, error) {
	var (
		c         models.StoredCredential
		expiresAt sql.NullTime
	)

	err := row.Scan(&c.Profile, &c.Credential.AccessToken, &c.Credential.RefreshToken, &expiresAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		c.Credential.ExpiresAt = expiresAt.Time
	}
	return &c, nil
}

var _ models.Repository[*models.StoredCredential] = (*CredentialRepository)(nil)
