package login

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DataKeyLanguage is the data bag key holding the language preference
const DataKeyLanguage = "language"

// User is the persisted account record
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID      `bun:"id,pk,type:uuid" json:"id,omitempty"`
	Username       string         `bun:"username,notnull,unique" json:"username,omitempty"`
	Email          string         `bun:"email" json:"email,omitempty"`
	PasswordHash   string         `bun:"password_hash" json:"-"`
	LastActivityAt *time.Time     `bun:"last_activity_at,nullzero" json:"last_activity_at,omitempty"`
	Data           map[string]any `bun:"data" json:"data,omitempty"`
	CreatedAt      *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// SetData will add a value to the data bag
func (u *User) SetData(key string, val any) *User {
	if u.Data == nil {
		u.Data = make(map[string]any)
	}
	u.Data[key] = val
	return u
}

// HasPassword reports whether a password hash is stored
func (u *User) HasPassword() bool {
	return u != nil && u.PasswordHash != ""
}

func (u *User) clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Data != nil {
		c.Data = make(map[string]any, len(u.Data))
		for k, v := range u.Data {
			c.Data[k] = v
		}
	}
	return &c
}
