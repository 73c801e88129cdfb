package models

import "time"

// Target is an external page/account a post can be published to. Tokens are
// stored AES-GCM encrypted (pkg/utils).
type Target struct {
	ID             int64     `db:"id" json:"id"`
	UserID         int64     `db:"user_id" json:"user_id"`
	Platform       string    `db:"platform" json:"platform"`
	AccountID      string    `db:"account_id" json:"account_id"`
	AccountName    string    `db:"account_name" json:"account_name"`
	AccessToken    string    `db:"access_token" json:"-"`
	RefreshToken   string    `db:"refresh_token" json:"-"`
	TokenExpiresAt time.Time `db:"token_expires_at" json:"token_expires_at"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
