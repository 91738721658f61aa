package users

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Users interface {
	repository.Repository[*User]

	FindByEmail(ctx context.Context, siteID int64, email string, active bool) ([]*User, error)
	FindByEmailTx(ctx context.Context, tx bun.IDB, siteID int64, email string, active bool) ([]*User, error)
	GetInSite(ctx context.Context, siteID int64, id uuid.UUID) (*User, error)
	GetInSiteTx(ctx context.Context, tx bun.IDB, siteID int64, id uuid.UUID) (*User, error)

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	UpdateColumnsTx(ctx context.Context, tx bun.IDB, user *User, columns ...string) error
	RemoveAccountTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error

	TrackAttemptedLogin(ctx context.Context, user *User) error
	TrackSuccessfulLogin(ctx context.Context, user *User) error
	ResetLockout(ctx context.Context, siteID int64, email string) error
	ResetLockoutTx(ctx context.Context, tx bun.IDB, siteID int64, email string) error
	SetOnline(ctx context.Context, id uuid.UUID, online bool) error
}

type users struct {
	repository.Repository[*User]
	db    *bun.DB
	clock Clock
}

var (
	_ Users                        = (*users)(nil)
	_ UserStore                    = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

type UsersOption func(*users)

// WithUsersClock overrides the clock used for login tracking timestamps
func WithUsersClock(c Clock) UsersOption {
	return func(u *users) {
		u.clock = c
	}
}

func NewUsersRepository(db *bun.DB, opts ...UsersOption) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	repoUsers := &users{
		Repository: repo,
		db:         db,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repoUsers)
		}
	}

	return repoUsers
}

// NormalizeEmail trims and lower cases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (a *users) FindByEmail(ctx context.Context, siteID int64, email string, active bool) ([]*User, error) {
	return a.FindByEmailTx(ctx, a.db, siteID, email, active)
}

// FindByEmailTx returns at most two matches, enough to detect duplicates.
func (a *users) FindByEmailTx(ctx context.Context, tx bun.IDB, siteID int64, email string, active bool) ([]*User, error) {
	var records []*User
	err := tx.NewSelect().
		Model(&records).
		Where("?TableAlias.site_id = ?", siteID).
		Where("?TableAlias.email = ?", NormalizeEmail(email)).
		Where("?TableAlias.is_active = ?", active).
		OrderExpr("?TableAlias.date_joined ASC").
		Limit(2).
		Scan(ctx)
	if err != nil && !repository.IsRecordNotFound(err) {
		return nil, err
	}
	return records, nil
}

func (a *users) GetInSite(ctx context.Context, siteID int64, id uuid.UUID) (*User, error) {
	return a.GetInSiteTx(ctx, a.db, siteID, id)
}

// GetInSiteTx loads the user with its profile and avatar.
func (a *users) GetInSiteTx(ctx context.Context, tx bun.IDB, siteID int64, id uuid.UUID) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Relation("Profile").
		Relation("Profile.Avatar").
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.site_id = ?", siteID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	prepareUserDefaults(user, a.clock.now())
	if _, err := tx.NewInsert().Model(user).Exec(ctx); err != nil {
		return nil, err
	}
	return user, nil
}

func (a *users) UpdateColumnsTx(ctx context.Context, tx bun.IDB, user *User, columns ...string) error {
	q := tx.NewUpdate().Model(user).WherePK()
	if len(columns) > 0 {
		q = q.Column(columns...)
	}
	_, err := q.Exec(ctx)
	return err
}

// RemoveAccountTx deletes the user and every row hanging off it.
func (a *users) RemoveAccountTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	for _, model := range []any{(*ExpiringToken)(nil), (*Profile)(nil)} {
		if _, err := tx.NewDelete().Model(model).Where("user_id = ?", id).Exec(ctx); err != nil {
			return err
		}
	}
	for _, table := range []string{"assets", "sumups"} {
		if _, err := tx.NewDelete().Table(table).Where("user_id = ?", id).Exec(ctx); err != nil {
			return err
		}
	}
	res, err := tx.NewDelete().Model((*User)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (a *users) TrackSuccessfulLogin(ctx context.Context, user *User) error {
	return a.TrackSuccessfulLoginTx(ctx, a.db, user)
}

func (a *users) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) error {
	now := a.clock.now()
	_, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("last_login = ?", now).
		Set("is_online = ?", true).
		Set("login_attempts = 0").
		Set("login_attempt_at = NULL").
		Where("id = ?", user.ID).
		Exec(ctx)
	if err != nil {
		return err
	}

	user.LastLogin = &now
	user.IsOnline = true
	user.LoginAttempts = 0
	user.LoginAttemptAt = nil
	return nil
}

func (a *users) TrackAttemptedLogin(ctx context.Context, user *User) error {
	return a.TrackAttemptedLoginTx(ctx, a.db, user)
}

func (a *users) TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, user *User) error {
	now := a.clock.now()
	attempts := user.LoginAttempts + 1
	_, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("login_attempts = ?", attempts).
		Set("login_attempt_at = ?", now).
		Where("id = ?", user.ID).
		Exec(ctx)
	if err != nil {
		return err
	}

	user.LoginAttempts = attempts
	user.LoginAttemptAt = &now
	return nil
}

func (a *users) ResetLockout(ctx context.Context, siteID int64, email string) error {
	return a.ResetLockoutTx(ctx, a.db, siteID, email)
}

func (a *users) ResetLockoutTx(ctx context.Context, tx bun.IDB, siteID int64, email string) error {
	_, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("login_attempts = 0").
		Set("login_attempt_at = NULL").
		Where("site_id = ?", siteID).
		Where("email = ?", NormalizeEmail(email)).
		Exec(ctx)
	return err
}

func (a *users) SetOnline(ctx context.Context, id uuid.UUID, online bool) error {
	_, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("is_online = ?", online).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func prepareUserDefaults(user *User, now time.Time) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.Email = NormalizeEmail(user.Email)
	if user.DateJoined.IsZero() {
		user.DateJoined = now
	}
	if user.PasswordHash == "" {
		user.PasswordHash = RandomPasswordHash()
	}
}
