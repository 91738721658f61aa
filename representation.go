package users

import (
	"time"

	"github.com/google/uuid"
)

// Action names the account operation a representation is built for
type Action int

const (
	ActionRetrieve Action = iota
	ActionCreate
	ActionUpdate
	ActionLogin
	ActionProfile
)

const birthDateLayout = "2006-01-02"

// PublicUser is the user shape visible to clients
type PublicUser struct {
	ID                 uuid.UUID  `json:"id"`
	Email              string     `json:"email"`
	Name               *string    `json:"name"`
	IsOnline           bool       `json:"is_online"`
	DateJoined         time.Time  `json:"date_joined"`
	LastLogin          *time.Time `json:"last_login"`
	LastPasswordChange *time.Time `json:"last_password_change"`
	DeactivatedAt      *time.Time `json:"deactivated_at"`
}

// ProfileView is the profile shape, flattened with a few user fields
type ProfileView struct {
	User               uuid.UUID  `json:"user"`
	Email              string     `json:"email"`
	Name               *string    `json:"name"`
	Nickname           *string    `json:"nickname"`
	Phone              *string    `json:"phone"`
	MobileCarrier      *string    `json:"mobile_carrier"`
	Address            *string    `json:"address"`
	BirthDate          *string    `json:"birth_date"`
	GenderCode         *int       `json:"gender_code"`
	Gender             *string    `json:"gender"`
	Avatar             AvatarInfo `json:"avatar"`
	DateJoined         time.Time  `json:"date_joined"`
	LastLogin          *time.Time `json:"last_login"`
	LastPasswordChange *time.Time `json:"last_password_change"`
}

// CreatedUser is returned by signup
type CreatedUser struct {
	ID      uuid.UUID    `json:"id"`
	Email   string       `json:"email"`
	Profile *ProfileView `json:"profile"`
}

// AccountView is returned by account reads and updates
type AccountView struct {
	PublicUser
	Profile *ProfileView `json:"profile"`
}

// Representer builds client representations per action
type Representer struct {
	AvatarBaseURL string
}

// Represent returns the representation of user for action. The user
// should carry its profile relation.
func (r Representer) Represent(action Action, user *User) any {
	switch action {
	case ActionCreate:
		return CreatedUser{ID: user.ID, Email: user.Email, Profile: r.profileView(user)}
	case ActionProfile:
		return r.profileView(user)
	case ActionLogin:
		return r.publicUser(user)
	case ActionRetrieve, ActionUpdate:
		return AccountView{PublicUser: r.publicUser(user), Profile: r.profileView(user)}
	default:
		return r.publicUser(user)
	}
}

func (r Representer) publicUser(user *User) PublicUser {
	pu := PublicUser{
		ID:                 user.ID,
		Email:              user.Email,
		IsOnline:           user.IsOnline,
		DateJoined:         user.DateJoined,
		LastLogin:          user.LastLogin,
		LastPasswordChange: user.LastPasswordChange,
		DeactivatedAt:      user.DeactivatedAt,
	}
	if user.Profile != nil {
		pu.Name = user.Profile.Name
	}
	return pu
}

func (r Representer) profileView(user *User) *ProfileView {
	profile := user.Profile
	if profile == nil {
		profile = &Profile{UserID: user.ID}
	}

	view := &ProfileView{
		User:               user.ID,
		Email:              user.Email,
		Name:               profile.Name,
		Nickname:           profile.Nickname,
		Phone:              profile.Phone,
		MobileCarrier:      profile.MobileCarrier,
		Address:            profile.Address,
		GenderCode:         profile.GenderCode,
		Gender:             profile.Gender(),
		Avatar:             profile.AvatarFor(r.AvatarBaseURL),
		DateJoined:         user.DateJoined,
		LastLogin:          user.LastLogin,
		LastPasswordChange: user.LastPasswordChange,
	}
	if profile.BirthDate != nil {
		d := profile.BirthDate.Format(birthDateLayout)
		view.BirthDate = &d
	}
	return view
}
