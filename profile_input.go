package users

import (
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is used to parse numbers given without a country code
const DefaultPhoneRegion = "KR"

// MobileCarriers are the accepted mobile carrier codes
var MobileCarriers = []interface{}{"01", "02", "03", "04", "05", "06"}

// ProfileInput is a partial profile update. Nil fields are left untouched.
type ProfileInput struct {
	Name          *string `json:"name"`
	Nickname      *string `json:"nickname"`
	Phone         *string `json:"phone"`
	MobileCarrier *string `json:"mobile_carrier"`
	Address       *string `json:"address"`
	BirthDate     *string `json:"birth_date"`
	GenderCode    *int    `json:"gender_code"`
}

func (p ProfileInput) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.Length(0, 30)),
		validation.Field(&p.Nickname, validation.Length(0, 30)),
		validation.Field(&p.Phone, validation.Length(0, 20)),
		validation.Field(&p.MobileCarrier, validation.In(MobileCarriers...)),
		validation.Field(&p.Address, validation.Length(0, 120)),
		validation.Field(&p.BirthDate, validation.By(isBirthDate)),
		validation.Field(&p.GenderCode, validation.Min(1), validation.Max(4)),
	)
}

func isBirthDate(value interface{}) error {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case *string:
		if v != nil {
			s = *v
		}
	}
	if s == "" {
		return nil
	}
	if _, err := time.Parse(birthDateLayout, s); err != nil {
		return errors.New("must be a date formatted as YYYY-MM-DD")
	}
	return nil
}

// Apply copies the set fields onto profile and returns the changed columns.
func (p ProfileInput) Apply(profile *Profile, region string) ([]string, error) {
	var columns []string

	if p.Name != nil {
		profile.Name = emptyAsNil(*p.Name)
		columns = append(columns, "name")
	}
	if p.Nickname != nil {
		profile.Nickname = emptyAsNil(*p.Nickname)
		columns = append(columns, "nickname")
	}
	if p.Phone != nil {
		phone, err := NormalizePhone(*p.Phone, region)
		if err != nil {
			return nil, NewValidationError(validation.Errors{"phone": err})
		}
		profile.Phone = emptyAsNil(phone)
		columns = append(columns, "phone")
	}
	if p.MobileCarrier != nil {
		profile.MobileCarrier = emptyAsNil(*p.MobileCarrier)
		columns = append(columns, "mobile_carrier")
	}
	if p.Address != nil {
		profile.Address = emptyAsNil(*p.Address)
		columns = append(columns, "address")
	}
	if p.BirthDate != nil {
		profile.BirthDate = nil
		if *p.BirthDate != "" {
			d, err := time.Parse(birthDateLayout, *p.BirthDate)
			if err != nil {
				return nil, NewValidationError(validation.Errors{"birth_date": err})
			}
			profile.BirthDate = &d
		}
		columns = append(columns, "birth_date")
	}
	if p.GenderCode != nil {
		code := *p.GenderCode
		profile.GenderCode = &code
		columns = append(columns, "gender_code")
	}

	return columns, nil
}

// NormalizePhone parses a phone number and formats it as E.164. An empty
// input stays empty.
func NormalizePhone(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	if region == "" {
		region = DefaultPhoneRegion
	}

	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", errors.New("enter a valid phone number")
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", errors.New("enter a valid phone number")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func emptyAsNil(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
