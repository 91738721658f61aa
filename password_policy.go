package users

import (
	"errors"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
)

// MinPasswordLength is the shortest password accepted
var MinPasswordLength = 8

// MaxPasswordSimilarity is the ratio above which a password is considered
// too close to the account email.
var MaxPasswordSimilarity = 0.7

var commonPasswords = map[string]struct{}{}

func init() {
	for _, p := range strings.Fields(`
		password password1 password12 password123 passw0rd 12345678 123456789
		1234567890 11111111 00000000 87654321 qwerty123 qwertyuiop 1q2w3e4r
		1q2w3e4r5t iloveyou sunshine princess football baseball welcome
		welcome1 admin123 administrator letmein1 trustno1 dragon123 monkey123
		superman abc12345 abcd1234 zaq12wsx qazwsxedc asdfghjkl starwars
		whatever computer michelle jennifer charlie1 liverpool chocolate
		1qaz2wsx changeme mustang1 shadow12 master12 secret123 internet
		sample123 test1234 testtest aaaaaaaa asdf1234 qwer1234`) {
		commonPasswords[p] = struct{}{}
	}
}

// PasswordRules returns the validation rules applied to new passwords. The
// email feeds the similarity check.
func PasswordRules(email string) []validation.Rule {
	return []validation.Rule{
		validation.Required,
		validation.Length(MinPasswordLength, 0).Error("this password is too short, it must contain at least 8 characters"),
		validation.By(notNumeric),
		validation.By(notCommon),
		validation.By(notSimilarTo(email)),
	}
}

// ValidatePassword checks password against PasswordRules and returns a
// validation error keyed by "password".
func ValidatePassword(password, email string) error {
	if err := validation.Validate(password, PasswordRules(email)...); err != nil {
		return NewValidationError(validation.Errors{"password": err})
	}
	return nil
}

func notNumeric(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return nil
		}
	}
	return errors.New("this password is entirely numeric")
}

func notCommon(value interface{}) error {
	s, _ := value.(string)
	if _, ok := commonPasswords[strings.ToLower(strings.TrimSpace(s))]; ok {
		return errors.New("this password is too common")
	}
	return nil
}

func notSimilarTo(email string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s == "" || email == "" {
			return nil
		}
		password := strings.ToLower(s)
		candidates := []string{strings.ToLower(email)}
		if at := strings.Index(email, "@"); at > 0 {
			candidates = append(candidates, strings.ToLower(email[:at]))
		}
		for _, c := range candidates {
			if similarity(password, c) >= MaxPasswordSimilarity {
				return errors.New("the password is too similar to the email")
			}
		}
		return nil
	}
}

// similarity is 2*M/T where M is the longest common subsequence length
// and T the combined length of both strings.
func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 0
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			switch {
			case ra[i-1] == rb[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return 2 * float64(prev[len(rb)]) / float64(total)
}
