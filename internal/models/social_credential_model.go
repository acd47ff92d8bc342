package models

import "time"

// SocialCredential links one brand to one platform account. At most one row
// exists per (brand_id, platform). Tokens are stored AES-GCM encrypted.
type SocialCredential struct {
	ID          int64     `db:"id" json:"id"`
	BrandID     string    `db:"brand_id" json:"brand_id"`
	Platform    string    `db:"platform" json:"platform"`
	AccountID   string    `db:"account_id" json:"account_id"`
	AccessToken string    `db:"access_token" json:"-"`
	// TokenSecret doubles as the OAuth1 secret (twitter app-auth), OAuth2
	// refresh token, or a stable platform account identifier, depending on
	// the platform.
	TokenSecret string    `db:"token_secret" json:"-"`
	ExpiresAt   time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

const (
	PlatformTwitter   = "twitter"
	PlatformLinkedin  = "linkedin"
	PlatformInstagram = "instagram"
	PlatformFacebook  = "facebook"
)

// Expiring reports whether the credential has a known expiry.
func (c *SocialCredential) Expiring() bool {
	return !c.ExpiresAt.IsZero()
}
