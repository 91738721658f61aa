package users

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
)

// UsersControllerRoutes holds the paths mounted under the users group
type UsersControllerRoutes struct {
	Account      string
	Login        string
	Logout       string
	HealthCheck  string
	Profile      string
	Avatar       string
	RefreshToken string
}

// UsersController exposes account, session and profile endpoints
type UsersController struct {
	Debug       bool
	Logger      Logger
	Accounts    *Accounts
	Auther      *Auther
	Issuer      *TokenIssuer
	Representer Representer
	Routes      *UsersControllerRoutes
}

type UsersControllerOption func(*UsersController) *UsersController

func WithControllerLogger(l Logger) UsersControllerOption {
	return func(c *UsersController) *UsersController {
		c.Logger = normalizeLogger(l)
		return c
	}
}

func WithControllerDebug(debug bool) UsersControllerOption {
	return func(c *UsersController) *UsersController {
		c.Debug = debug
		return c
	}
}

func WithRepresenter(r Representer) UsersControllerOption {
	return func(c *UsersController) *UsersController {
		c.Representer = r
		return c
	}
}

func NewUsersController(accounts *Accounts, auther *Auther, issuer *TokenIssuer, opts ...UsersControllerOption) *UsersController {
	c := &UsersController{
		Logger:      defLogger{},
		Accounts:    accounts,
		Auther:      auther,
		Issuer:      issuer,
		Representer: Representer{AvatarBaseURL: DefaultAvatarBaseURL},
		Routes: &UsersControllerRoutes{
			Account:      "/",
			Login:        "/login",
			Logout:       "/logout",
			HealthCheck:  "/health_check",
			Profile:      "/profile",
			Avatar:       "/profile/avatar",
			RefreshToken: "/refresh_token",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Accounts == nil {
		panic("Missing Accounts in users controller...")
	}

	if c.Auther == nil {
		panic("Missing Authenticator in users controller...")
	}

	return c
}

// RegisterRoutes mounts the users endpoints on router. protected must
// authenticate the request key.
func (uc *UsersController) RegisterRoutes(router fiber.Router, protected fiber.Handler) {
	router.Post(uc.Routes.Account, uc.Create).Name("users.create")
	router.Get(uc.Routes.Account, protected, uc.Retrieve).Name("users.get")
	router.Put(uc.Routes.Account, protected, uc.Update).Name("users.update")
	router.Delete(uc.Routes.Account, protected, uc.Delete).Name("users.delete")

	router.Post(uc.Routes.Login, uc.Login).Name("users.login")
	router.Get(uc.Routes.Logout, protected, uc.Logout).Name("users.logout")
	router.Get(uc.Routes.HealthCheck, protected, uc.HealthCheck).Name("users.health_check")

	router.Get(uc.Routes.Profile, protected, uc.ProfileShow).Name("users.profile.get")
	router.Put(uc.Routes.Profile, protected, uc.ProfileUpdate).Name("users.profile.update")
	router.Post(uc.Routes.Avatar, protected, uc.AvatarUpload).Name("users.profile.avatar")

	router.Post(uc.Routes.RefreshToken, uc.RefreshToken).Name("users.refresh_token")
}

// LoginPayload is the login response payload
type LoginPayload struct {
	Token  string `json:"token"`
	Expiry *int64 `json:"expiry"`
}

// LoginResponse is returned by a successful login
type LoginResponse struct {
	User    any          `json:"user"`
	Payload LoginPayload `json:"payload"`
}

// RefreshTokenRequest names the key to rotate
type RefreshTokenRequest struct {
	Key string `json:"key"`
}

// RefreshTokenResponse carries the rotated key
type RefreshTokenResponse struct {
	Key    string `json:"key"`
	Expiry *int64 `json:"expiry"`
}

func (uc *UsersController) Create(c *fiber.Ctx) error {
	site, err := requestSite(c)
	if err != nil {
		return err
	}

	msg := RegisterUserMessage{}
	if err := bindJSON(c, &msg); err != nil {
		return err
	}

	user, err := uc.Accounts.Register(c.UserContext(), site, msg)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(uc.Representer.Represent(ActionCreate, user))
}

func (uc *UsersController) Retrieve(c *fiber.Ctx) error {
	target, err := uc.target(c)
	if err != nil {
		return err
	}
	return c.JSON(uc.Representer.Represent(ActionRetrieve, target))
}

func (uc *UsersController) Update(c *fiber.Ctx) error {
	actor, err := requestUser(c)
	if err != nil {
		return err
	}

	target, err := uc.target(c)
	if err != nil {
		return err
	}

	req := UpdateAccountRequest{}
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	user, err := uc.Accounts.Update(c.UserContext(), actor, target, req)
	if err != nil {
		return err
	}

	return c.JSON(uc.Representer.Represent(ActionUpdate, user))
}

func (uc *UsersController) Delete(c *fiber.Ctx) error {
	actor, err := requestUser(c)
	if err != nil {
		return err
	}

	target, err := uc.target(c)
	if err != nil {
		return err
	}

	if err := uc.Accounts.Delete(c.UserContext(), actor, target); err != nil {
		return err
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (uc *UsersController) Login(c *fiber.Ctx) error {
	site, err := requestSite(c)
	if err != nil {
		return err
	}

	req := LoginRequest{}
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	if uc.Debug {
		fmt.Println("======= USERS LOGIN ======")
		fmt.Println(print.MaybePrettyJSON(map[string]any{
			"email":       req.Email,
			"force_login": req.ForceLogin,
			"site":        site.Domain,
		}))
		fmt.Println("==========================")
	}

	session, err := uc.Auther.Login(c.UserContext(), site, req)
	if err != nil {
		return err
	}

	return c.JSON(LoginResponse{
		User: uc.Representer.Represent(ActionLogin, session.User),
		Payload: LoginPayload{
			Token:  session.Token.Key,
			Expiry: session.Expiry,
		},
	})
}

func (uc *UsersController) Logout(c *fiber.Ctx) error {
	user, err := requestUser(c)
	if err != nil {
		return err
	}

	uc.Auther.Logout(c.UserContext(), user)
	return c.JSON(fiber.Map{"detail": "logged out"})
}

func (uc *UsersController) HealthCheck(c *fiber.Ctx) error {
	token, ok := TokenFromContext(c.UserContext())
	if !ok {
		return ErrMissingToken
	}

	if err := uc.Accounts.HealthCheck(c.UserContext(), token); err != nil {
		return err
	}

	return c.JSON(fiber.Map{"status": "ok"})
}

func (uc *UsersController) ProfileShow(c *fiber.Ctx) error {
	user, err := requestUser(c)
	if err != nil {
		return err
	}

	fresh, err := uc.Accounts.Get(c.UserContext(), user)
	if err != nil {
		return err
	}

	return c.JSON(uc.Representer.Represent(ActionProfile, fresh))
}

func (uc *UsersController) ProfileUpdate(c *fiber.Ctx) error {
	user, err := requestUser(c)
	if err != nil {
		return err
	}

	input := ProfileInput{}
	if err := bindJSON(c, &input); err != nil {
		return err
	}

	fresh, err := uc.Accounts.UpdateProfile(c.UserContext(), user, input)
	if err != nil {
		return err
	}

	return c.JSON(uc.Representer.Represent(ActionProfile, fresh))
}

func (uc *UsersController) AvatarUpload(c *fiber.Ctx) error {
	user, err := requestUser(c)
	if err != nil {
		return err
	}

	header, err := c.FormFile("file")
	if err != nil {
		return NewBadInput("a multipart file field named file is required")
	}
	if header.Size > MaxAvatarSize {
		return NewBadInput(fmt.Sprintf("file exceeds %d bytes", MaxAvatarSize))
	}

	file, err := header.Open()
	if err != nil {
		return NewBadInput("failed to open uploaded file")
	}
	defer file.Close()

	fresh, err := uc.Accounts.UploadAvatar(
		c.UserContext(),
		user,
		header.Filename,
		header.Header.Get(fiber.HeaderContentType),
		file,
	)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(uc.Representer.Represent(ActionProfile, fresh))
}

func (uc *UsersController) RefreshToken(c *fiber.Ctx) error {
	site, err := requestSite(c)
	if err != nil {
		return err
	}

	req := RefreshTokenRequest{}
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	token, err := uc.Accounts.RefreshToken(c.UserContext(), site, req.Key)
	if err != nil {
		return err
	}

	return c.JSON(RefreshTokenResponse{
		Key:    token.Key,
		Expiry: uc.Issuer.Expiry(token.User),
	})
}

func (uc *UsersController) target(c *fiber.Ctx) (*User, error) {
	actor, err := requestUser(c)
	if err != nil {
		return nil, err
	}
	return uc.Accounts.Resolve(c.UserContext(), actor, c.Query("id"))
}

func requestSite(c *fiber.Ctx) (*Site, error) {
	site, ok := SiteFromContext(c.UserContext())
	if !ok {
		return nil, ErrUnregisteredSite
	}
	return site, nil
}

func requestUser(c *fiber.Ctx) (*User, error) {
	user, ok := FromContext(c.UserContext())
	if !ok {
		return nil, ErrMissingToken
	}
	return user, nil
}

func bindJSON(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.App().Config().JSONDecoder(c.Body(), out); err != nil {
		return NewBadInput("malformed JSON body")
	}
	return nil
}
