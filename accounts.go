package users

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"path"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// MaxAvatarSize is the largest avatar upload accepted, in bytes
var MaxAvatarSize int64 = 5 << 20

// BlobStore persists uploaded files
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// UpdateAccountRequest is a partial account update
type UpdateAccountRequest struct {
	Email    *string       `json:"email"`
	Password *string       `json:"password"`
	Profile  *ProfileInput `json:"profile"`
}

// Validate checks the payload shape. Password policy is applied in
// Accounts.Update against the resulting email.
func (r UpdateAccountRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.NilOrNotEmpty, is.Email),
		validation.Field(&r.Password, validation.NilOrNotEmpty),
		validation.Field(&r.Profile),
	)
}

// Accounts implements account, profile and token refresh operations
type Accounts struct {
	repo        RepositoryManager
	issuer      *TokenIssuer
	register    *RegisterUserHandler
	blobs       BlobStore
	logger      Logger
	activity    ActivitySink
	clock       Clock
	phoneRegion string
	hashids     bool
	hashidOpts  []hashid.Option
}

type AccountsOption func(*Accounts)

func WithAccountsLogger(l Logger) AccountsOption {
	return func(a *Accounts) {
		a.logger = normalizeLogger(l)
	}
}

func WithAccountsActivitySink(s ActivitySink) AccountsOption {
	return func(a *Accounts) {
		a.activity = normalizeActivitySink(s)
	}
}

func WithAccountsClock(c Clock) AccountsOption {
	return func(a *Accounts) {
		a.clock = c
	}
}

func WithBlobStore(b BlobStore) AccountsOption {
	return func(a *Accounts) {
		a.blobs = b
	}
}

func WithPhoneRegion(region string) AccountsOption {
	return func(a *Accounts) {
		if region != "" {
			a.phoneRegion = region
		}
	}
}

// WithDeterministicIDs derives new user ids from the site and email.
// opts tune the hashid derivation, e.g. an HMAC key.
func WithDeterministicIDs(on bool, opts ...hashid.Option) AccountsOption {
	return func(a *Accounts) {
		a.hashids = on
		a.hashidOpts = opts
	}
}

func NewAccounts(repo RepositoryManager, issuer *TokenIssuer, opts ...AccountsOption) *Accounts {
	a := &Accounts{
		repo:        repo,
		issuer:      issuer,
		logger:      defLogger{},
		activity:    noopActivitySink{},
		phoneRegion: DefaultPhoneRegion,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	a.register = NewRegisterUserHandler(repo, a.phoneRegion, a.clock).
		WithHashidOptions(a.hashidOpts...)
	return a
}

// Register creates an account on site
func (a *Accounts) Register(ctx context.Context, site *Site, msg RegisterUserMessage) (*User, error) {
	msg.SiteID = site.ID
	msg.Email = NormalizeEmail(msg.Email)
	msg.UseHashid = msg.UseHashid || a.hashids
	user, err := a.register.Execute(ctx, msg)
	if err != nil {
		return nil, err
	}

	a.emit(ctx, ActivityEventUserRegistered, user, user, nil)
	return user, nil
}

// Resolve returns the account an actor targets. An empty id means the
// actor itself; only staff may target other users of the same site.
func (a *Accounts) Resolve(ctx context.Context, actor *User, id string) (*User, error) {
	target := actor.ID
	if id = strings.TrimSpace(id); id != "" {
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, NewBadInput("id must be a valid uuid")
		}
		target = parsed
	}

	if target != actor.ID && !actor.IsStaff {
		return nil, ErrPermissionDenied
	}

	user, err := a.repo.Users().GetInSite(ctx, actor.SiteID, target)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load user")
	}
	return user, nil
}

// Update applies a partial update to target
func (a *Accounts) Update(ctx context.Context, actor, target *User, req UpdateAccountRequest) (*User, error) {
	if err := req.Validate(); err != nil {
		return nil, NewValidationError(err)
	}

	passwordChanged := false
	err := a.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var columns []string

		if req.Email != nil && NormalizeEmail(*req.Email) != target.Email {
			existing, err := a.repo.Users().FindByEmailTx(ctx, tx, target.SiteID, *req.Email, true)
			if err != nil {
				return err
			}
			if len(existing) > 0 {
				return ErrDuplicateEmail
			}
			target.Email = NormalizeEmail(*req.Email)
			columns = append(columns, "email")
		}

		if req.Password != nil {
			if err := ValidatePassword(*req.Password, target.Email); err != nil {
				return err
			}
			hash, err := HashPassword(*req.Password)
			if err != nil {
				return err
			}
			now := a.clock.now()
			target.PasswordHash = hash
			target.LastPasswordChange = &now
			columns = append(columns, "password_hash", "last_password_change")
			passwordChanged = true
		}

		if len(columns) > 0 {
			if err := a.repo.Users().UpdateColumnsTx(ctx, tx, target, columns...); err != nil {
				if IsUniqueViolation(err) {
					return ErrDuplicateEmail
				}
				return err
			}
		}

		if req.Profile != nil {
			profile, err := a.ensureProfileTx(ctx, tx, target)
			if err != nil {
				return err
			}
			cols, err := req.Profile.Apply(profile, a.phoneRegion)
			if err != nil {
				return err
			}
			if err := a.repo.Profiles().UpdateColumnsTx(ctx, tx, profile, cols...); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, asRichError(err, "failed to update account")
	}

	a.emit(ctx, ActivityEventUserUpdated, actor, target, nil)
	if passwordChanged {
		a.emit(ctx, ActivityEventPasswordChanged, actor, target, nil)
	}

	return a.reload(ctx, target)
}

// Delete removes target and everything it owns
func (a *Accounts) Delete(ctx context.Context, actor, target *User) error {
	err := a.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return a.repo.Users().RemoveAccountTx(ctx, tx, target.ID)
	})
	if err != nil {
		return asRichError(err, "failed to delete account")
	}

	a.emit(ctx, ActivityEventUserDeleted, actor, target, nil)
	return nil
}

// UpdateProfile applies a partial profile update to user
func (a *Accounts) UpdateProfile(ctx context.Context, user *User, input ProfileInput) (*User, error) {
	return a.Update(ctx, user, user, UpdateAccountRequest{Profile: &input})
}

// UploadAvatar stores an image and links it to the user's profile
func (a *Accounts) UploadAvatar(ctx context.Context, user *User, filename, contentType string, r io.Reader) (*User, error) {
	if a.blobs == nil {
		return nil, goerrors.New("avatar storage is not configured", goerrors.CategoryInternal).
			WithCode(goerrors.CodeInternal).
			WithTextCode(TextCodeInternal)
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxAvatarSize+1))
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to read upload")
	}
	if int64(len(data)) > MaxAvatarSize {
		return nil, NewValidationError(validation.Errors{"file": fmt.Errorf("file exceeds %d bytes", MaxAvatarSize)})
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, NewValidationError(validation.Errors{"file": errors.New("upload a valid image")})
	}

	ext := strings.ToLower(path.Ext(filename))
	if ext == "" {
		ext = "." + format
	}
	if contentType == "" {
		contentType = "image/" + format
	}

	key := fmt.Sprintf("avatars/%s/%s%s", user.ID, uuid.NewString(), ext)
	url, err := a.blobs.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store avatar")
	}

	err = a.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		img, err := a.repo.Profiles().CreateImageTx(ctx, tx, &Image{
			File:   key,
			URL:    url,
			Width:  cfg.Width,
			Height: cfg.Height,
		})
		if err != nil {
			return err
		}

		profile, err := a.ensureProfileTx(ctx, tx, user)
		if err != nil {
			return err
		}
		profile.AvatarID = &img.ID
		return a.repo.Profiles().UpdateColumnsTx(ctx, tx, profile, "avatar_id")
	})
	if err != nil {
		a.logger.Error("failed to link avatar", "user_id", user.ID.String(), "key", key, "error", err)
		if derr := a.blobs.Delete(ctx, key); derr != nil {
			a.logger.Warn("failed to remove orphaned avatar", "key", key, "error", derr)
		}
		return nil, asRichError(err, "failed to save avatar")
	}

	a.emit(ctx, ActivityEventAvatarChanged, user, user, map[string]any{"key": key})
	return a.reload(ctx, user)
}

// RefreshToken rotates the token with key when its user belongs to site
func (a *Accounts) RefreshToken(ctx context.Context, site *Site, key string) (*ExpiringToken, error) {
	if strings.TrimSpace(key) == "" {
		return nil, NewValidationError(validation.Errors{"key": errors.New("cannot be blank")})
	}

	token, err := a.repo.Tokens().GetByKey(ctx, key)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrTokenNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load token")
	}
	if token.User == nil || token.User.SiteID != site.ID {
		return nil, ErrTokenNotFound
	}

	return a.issuer.Rotate(ctx, token.User)
}

// HealthCheck extends the lifetime of the presented token
func (a *Accounts) HealthCheck(ctx context.Context, token *ExpiringToken) error {
	return a.issuer.Touch(ctx, token)
}

// Get reloads user with its profile
func (a *Accounts) Get(ctx context.Context, user *User) (*User, error) {
	return a.reload(ctx, user)
}

func (a *Accounts) reload(ctx context.Context, user *User) (*User, error) {
	fresh, err := a.repo.Users().GetInSite(ctx, user.SiteID, user.ID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load user")
	}
	return fresh, nil
}

func (a *Accounts) ensureProfileTx(ctx context.Context, tx bun.IDB, user *User) (*Profile, error) {
	profile, err := a.repo.Profiles().GetByUserTx(ctx, tx, user.ID)
	if err == nil {
		return profile, nil
	}
	if !repository.IsRecordNotFound(err) {
		return nil, err
	}
	return a.repo.Profiles().CreateTx(ctx, tx, &Profile{UserID: user.ID})
}

func (a *Accounts) emit(ctx context.Context, eventType ActivityEventType, actor, user *User, md map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      actorFor(actor),
		UserID:     user.ID.String(),
		SiteID:     user.SiteID,
		Metadata:   md,
		OccurredAt: a.clock.now(),
	}
	if err := a.activity.Record(ctx, event); err != nil {
		a.logger.Warn("activity sink failed", "event", eventType, "error", err)
	}
}

func asRichError(err error, message string) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, message)
}
