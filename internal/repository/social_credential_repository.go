package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/leaderflow/delivery/internal/models"
)

type SocialCredentialRepository interface {
	Upsert(ctx context.Context, c *models.SocialCredential) (int64, error)
	GetByBrandPlatform(ctx context.Context, brandID, platform string) (*models.SocialCredential, error)
	ListByBrandID(ctx context.Context, brandID string) ([]*models.SocialCredential, error)
	SetToken(ctx context.Context, id int64, accessToken, tokenSecret string, expiresAt time.Time) error
	Remove(ctx context.Context, brandID, platform string) error
}

type socialCredentialRepository struct {
	db *sql.DB
}

func NewSocialCredentialRepository(db *sql.DB) SocialCredentialRepository {
	return &socialCredentialRepository{db: db}
}

func (r *socialCredentialRepository) Upsert(ctx context.Context, c *models.SocialCredential) (int64, error) {
	query := `
		INSERT INTO social_credentials (brand_id, platform, account_id, access_token, token_secret, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (brand_id, platform) DO UPDATE
		SET account_id = EXCLUDED.account_id,
			access_token = EXCLUDED.access_token,
			token_secret = EXCLUDED.token_secret,
			expires_at = EXCLUDED.expires_at,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, query,
		c.BrandID, c.Platform, c.AccountID, c.AccessToken, c.TokenSecret, nullTime(c.ExpiresAt),
	).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *socialCredentialRepository) GetByBrandPlatform(ctx context.Context, brandID, platform string) (*models.SocialCredential, error) {
	query := `
		SELECT id, brand_id, platform, account_id, access_token, token_secret, expires_at, created_at, updated_at
		FROM social_credentials
		WHERE brand_id = $1 AND platform = $2
	`
	row := r.db.QueryRowContext(ctx, query, brandID, platform)

	var c models.SocialCredential
	var expiresAt sql.NullTime
	err := row.Scan(&c.ID, &c.BrandID, &c.Platform, &c.AccountID,
		&c.AccessToken, &c.TokenSecret, &expiresAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	if expiresAt.Valid {
		c.ExpiresAt = expiresAt.Time
	}
	return &c, nil
}

func (r *socialCredentialRepository) ListByBrandID(ctx context.Context, brandID string) ([]*models.SocialCredential, error) {
	query := `
		SELECT id, brand_id, platform, account_id, access_token, token_secret, expires_at, created_at, updated_at
		FROM social_credentials
		WHERE brand_id = $1
	`
	rows, err := r.db.QueryContext(ctx, query, brandID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var credentials []*models.SocialCredential
	for rows.Next() {
		var c models.SocialCredential
		var expiresAt sql.NullTime
		err := rows.Scan(&c.ID, &c.BrandID, &c.Platform, &c.AccountID,
			&c.AccessToken, &c.TokenSecret, &expiresAt, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		if expiresAt.Valid {
			c.ExpiresAt = expiresAt.Time
		}
		credentials = append(credentials, &c)
	}
	return credentials, rows.Err()
}

// SetToken swaps in refreshed token material. Serializable isolation keeps two
// concurrent refreshes of the same credential from writing stale data on top of
// a newer token.
func (r *socialCredentialRepository) SetToken(ctx context.Context, id int64, accessToken, tokenSecret string, expiresAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer tx.Rollback()

	query := `
		UPDATE social_credentials
		SET access_token = $2,
			token_secret = COALESCE(NULLIF($3, ''), token_secret),
			expires_at = $4,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	result, err := tx.ExecContext(ctx, query, id, accessToken, tokenSecret, nullTime(expiresAt))
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected != 1 {
		err = errors.New("credential no longer exists")
		slog.Info(err.Error())
		return err
	}

	return tx.Commit()
}

func (r *socialCredentialRepository) Remove(ctx context.Context, brandID, platform string) error {
	query := `DELETE FROM social_credentials WHERE brand_id = $1 AND platform = $2`
	_, err := r.db.ExecContext(ctx, query, brandID, platform)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
