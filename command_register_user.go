package users

import (
	"context"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	SiteID    int64         `json:"-"`
	Email     string        `json:"email"`
	Password  string        `json:"password"`
	Profile   *ProfileInput `json:"profile"`
	IsStaff   bool          `json:"-"`
	UseHashid bool          `json:"-"`
}

func (e RegisterUserMessage) Type() string { return "user.register" }

func (e RegisterUserMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email, validation.Length(0, 254)),
		validation.Field(&e.Password, PasswordRules(e.Email)...),
		validation.Field(&e.Profile),
	)
}

// RegisterUserHandler creates a user and its profile in one transaction
type RegisterUserHandler struct {
	repo        RepositoryManager
	phoneRegion string
	clock       Clock
	idOpts      []hashid.Option
}

func NewRegisterUserHandler(repo RepositoryManager, phoneRegion string, clock Clock) *RegisterUserHandler {
	return &RegisterUserHandler{repo: repo, phoneRegion: phoneRegion, clock: clock}
}

// WithHashidOptions configures deterministic id derivation
func (h *RegisterUserHandler) WithHashidOptions(opts ...hashid.Option) *RegisterUserHandler {
	h.idOpts = opts
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) (*User, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) (*User, error) {
	if err := event.Validate(); err != nil {
		return nil, NewValidationError(err)
	}

	profileInput := ProfileInput{}
	if event.Profile != nil {
		profileInput = *event.Profile
	}

	user := &User{}
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := h.repo.Users().FindByEmailTx(ctx, tx, event.SiteID, event.Email, true)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up email")
		}
		if len(existing) > 0 {
			return withMetadata(ErrDuplicateEmail, map[string]any{"email": NormalizeEmail(event.Email)})
		}

		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		now := h.clock.now()
		user.PasswordHash = hash
		user.Email = event.Email
		user.SiteID = event.SiteID
		user.IsActive = true
		user.IsStaff = event.IsStaff
		user.IsSuperuser = event.IsStaff
		user.DateJoined = now
		user.LastPasswordChange = &now
		if event.UseHashid {
			// scoped by site, the same email may register on several sites
			id, err := hashid.NewUUID(fmt.Sprintf("%d:%s", event.SiteID, NormalizeEmail(event.Email)), h.idOpts...)
			if err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "could not derive user id").
					WithTextCode(TextCodeInternal)
			}
			user.ID = id
		}

		if user, err = h.repo.Users().RegisterTx(ctx, tx, user); err != nil {
			if IsUniqueViolation(err) {
				return withMetadata(ErrDuplicateEmail, map[string]any{"email": NormalizeEmail(event.Email)})
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not create user")
		}

		if err := h.repo.Users().ResetLockoutTx(ctx, tx, event.SiteID, event.Email); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not reset lockout")
		}

		profile := &Profile{UserID: user.ID}
		if _, err := profileInput.Apply(profile, h.phoneRegion); err != nil {
			return err
		}
		if profile, err = h.repo.Profiles().CreateTx(ctx, tx, profile); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not create profile")
		}
		user.Profile = profile

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}

		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	return user, nil
}
