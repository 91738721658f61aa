package users

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Site partitions accounts. Every request is resolved to one site.
type Site struct {
	bun.BaseModel `bun:"table:sites,alias:site"`
	ID            int64  `bun:"id,pk,autoincrement" json:"id"`
	Domain        string `bun:"domain,notnull,unique" json:"domain"`
	Name          string `bun:"name,notnull" json:"name"`
}

// User is the account model
type User struct {
	bun.BaseModel      `bun:"table:users,alias:usr"`
	ID                 uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Email              string     `bun:"email,notnull" json:"email"`
	SiteID             int64      `bun:"site_id,notnull" json:"-"`
	PasswordHash       string     `bun:"password_hash,notnull" json:"-"`
	IsActive           bool       `bun:"is_active,notnull" json:"-"`
	IsStaff            bool       `bun:"is_staff,notnull" json:"-"`
	IsSuperuser        bool       `bun:"is_superuser,notnull" json:"-"`
	IsOnline           bool       `bun:"is_online,notnull" json:"is_online"`
	LoginAttempts      int        `bun:"login_attempts,notnull" json:"-"`
	LoginAttemptAt     *time.Time `bun:"login_attempt_at" json:"-"`
	LastPasswordChange *time.Time `bun:"last_password_change" json:"last_password_change"`
	LastLogin          *time.Time `bun:"last_login" json:"last_login"`
	DeactivatedAt      *time.Time `bun:"deactivated_at" json:"deactivated_at"`
	DateJoined         time.Time  `bun:"date_joined,notnull" json:"date_joined"`

	Profile *Profile `bun:"rel:has-one,join:id=user_id" json:"-"`
}

// Image is an uploaded avatar
type Image struct {
	bun.BaseModel `bun:"table:images,alias:img"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	File          string    `bun:"file,notnull" json:"-"`
	URL           string    `bun:"url,notnull" json:"url"`
	Width         int       `bun:"width,notnull" json:"width"`
	Height        int       `bun:"height,notnull" json:"height"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// Profile extends a user one to one
type Profile struct {
	bun.BaseModel `bun:"table:profiles,alias:prf"`
	UserID        uuid.UUID  `bun:"user_id,pk,type:uuid" json:"user"`
	AvatarID      *uuid.UUID `bun:"avatar_id,type:uuid" json:"-"`
	Name          *string    `bun:"name" json:"name"`
	Nickname      *string    `bun:"nickname" json:"nickname"`
	Phone         *string    `bun:"phone" json:"phone"`
	MobileCarrier *string    `bun:"mobile_carrier" json:"mobile_carrier"`
	Address       *string    `bun:"address" json:"address"`
	BirthDate     *time.Time `bun:"birth_date" json:"-"`
	GenderCode    *int       `bun:"gender_code" json:"gender_code"`

	Avatar *Image `bun:"rel:belongs-to,join:avatar_id=id" json:"-"`
}

// ExpiringToken is the single bearer key a user holds
type ExpiringToken struct {
	bun.BaseModel `bun:"table:expiring_tokens,alias:tok"`
	Key           string    `bun:"key,pk" json:"key"`
	UserID        uuid.UUID `bun:"user_id,notnull,unique,type:uuid" json:"-"`
	Created       time.Time `bun:"created,notnull" json:"created"`
	Updated       time.Time `bun:"updated,notnull" json:"updated"`

	User *User `bun:"rel:belongs-to,join:user_id=id" json:"-"`
}

// Expired applies the lifespan rule. Staff and inactive users never expire
// and a zero lifespan disables expiry.
func (t *ExpiringToken) Expired(user *User, now time.Time, lifespan time.Duration) bool {
	if t == nil || user == nil {
		return false
	}
	if !user.IsActive || user.IsStaff || lifespan <= 0 {
		return false
	}
	return now.Sub(t.Updated) > lifespan
}

// ExpiryFor is the lifespan in seconds reported to clients, nil for staff.
func ExpiryFor(user *User, lifespan time.Duration) *int64 {
	if user == nil || user.IsStaff || lifespan <= 0 {
		return nil
	}
	secs := int64(lifespan / time.Second)
	return &secs
}

const (
	GenderMale   = "male"
	GenderFemale = "female"
)

// Gender maps a gender code to male (odd) or female (even).
func (p *Profile) Gender() *string {
	if p == nil || p.GenderCode == nil {
		return nil
	}
	g := GenderFemale
	if *p.GenderCode%2 == 1 {
		g = GenderMale
	}
	return &g
}

const (
	DefaultAvatarBaseURL = "https://cdn.backend.co/ums/media/avatars"
	DefaultAvatarSize    = 360
)

// AvatarInfo is the avatar shape returned to clients
type AvatarInfo struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// AvatarFor returns the uploaded image or the default avatar for the user.
func (p *Profile) AvatarFor(baseURL string) AvatarInfo {
	if p != nil && p.Avatar != nil {
		return AvatarInfo{URL: p.Avatar.URL, Width: p.Avatar.Width, Height: p.Avatar.Height}
	}
	var id uuid.UUID
	if p != nil {
		id = p.UserID
	}
	return DefaultAvatar(baseURL, id)
}

// DefaultAvatar picks one of five stock avatars from the user id.
func DefaultAvatar(baseURL string, id uuid.UUID) AvatarInfo {
	if baseURL == "" {
		baseURL = DefaultAvatarBaseURL
	}
	return AvatarInfo{
		URL:    fmt.Sprintf("%s/profile_%d.png", baseURL, AvatarDigit(id)),
		Width:  DefaultAvatarSize,
		Height: DefaultAvatarSize,
	}
}

// hashModulus is 2^61-1, the modulus integer hashing reduces ids by.
var hashModulus = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 61), big.NewInt(1))

// AvatarDigit returns a value in [1, 5] derived from the id.
func AvatarDigit(id uuid.UUID) int {
	n := new(big.Int).SetBytes(id[:])
	n.Mod(n, hashModulus)
	n.Mod(n, big.NewInt(5))
	return int(n.Int64()) + 1
}
