package auth

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/goliatone/go-chassis-auth/middleware/jwtware"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// RegisterAuthRoutes mounts the auth, user, role and version routes on
// router. The router is expected to already run the auth filter.
func RegisterAuthRoutes(router fiber.Router, opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(opts...)
	routes := controller.Routes

	router.Post(routes.Register, controller.Register).Name("auth.register")
	router.Put(routes.Verify, controller.Verify).Name("auth.verify")
	router.Post(routes.Login, controller.Login).Name("auth.login")
	router.Post(routes.Refresh, controller.Refresh).Name("auth.refresh")
	router.Post(routes.Logout, controller.Logout).Name("auth.logout")
	router.Post(routes.Check, controller.Check).Name("auth.check")

	authenticated := controller.HTTP.RequireAuthenticated()
	admin := controller.HTTP.RequireAuthority(controller.AdminAuthority)

	users := router.Group(routes.Users, authenticated)
	users.Get("/", controller.ListUsers).Name("users.list")
	users.Get("/:username", controller.GetUser).Name("users.get")
	users.Put("/:username/enable", admin, controller.EnableUser).Name("users.enable")
	users.Put("/:username/disable", admin, controller.DisableUser).Name("users.disable")
	users.Put("/:username/ban", admin, controller.BanUser).Name("users.ban")
	users.Put("/:username/unban", admin, controller.UnbanUser).Name("users.unban")
	users.Put("/:username/roles", admin, controller.AssignRoles).Name("users.roles")
	users.Delete("/:username", admin, controller.DeleteUser).Name("users.delete")

	roles := router.Group(routes.Roles, authenticated)
	roles.Get("/", controller.ListRoles).Name("roles.list")
	roles.Get("/:code", controller.GetRole).Name("roles.get")

	router.Get(routes.Version, controller.Version).Name("version")

	return controller
}

type AuthControllerRoutes struct {
	Register string
	Verify   string
	Login    string
	Refresh  string
	Logout   string
	Check    string
	Users    string
	Roles    string
	Version  string
}

type AuthController struct {
	Logger         Logger
	Auther         *Auther
	HTTP           *RouteAuthenticator
	Routes         *AuthControllerRoutes
	App            AppConfig
	AdminAuthority string
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerAuther(auther *Auther) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auther = auther
		return c
	}
}

func WithRouteAuthenticator(ra *RouteAuthenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.HTTP = ra
		return c
	}
}

// WithAppInfo sets the values reported by the version endpoint
func WithAppInfo(app AppConfig) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.App = app
		return c
	}
}

// WithAdminAuthority sets the role code required by the admin routes
func WithAdminAuthority(code string) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if code != "" {
			c.AdminAuthority = code
		}
		return c
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:         defLogger{},
		AdminAuthority: RoleCodeAdmin,
		Routes: &AuthControllerRoutes{
			Register: "/auth/register",
			Verify:   "/auth/verify",
			Login:    "/auth/login",
			Refresh:  "/auth/refresh",
			Logout:   "/auth/logout",
			Check:    "/auth/check",
			Users:    "/users",
			Roles:    "/roles",
			Version:  "/version",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Auther == nil {
		panic("Missing Auther in auth controller...")
	}

	if c.HTTP == nil {
		panic("Missing RouteAuthenticator in auth controller...")
	}

	return c
}

func (a *AuthController) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}

	token, err := a.Auther.Register(c.UserContext(), req)
	if err != nil {
		return err
	}

	return c.Status(http.StatusOK).JSON(Envelope{
		Status:    http.StatusOK,
		Timestamp: a.now(),
		Message:   a.HTTP.Localizer(c).Message("USER_REGISTERED"),
		Content:   token,
	})
}

func (a *AuthController) Verify(c *fiber.Ctx) error {
	if err := a.Auther.Verify(c.UserContext(), c.Query("t")); err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"message": a.HTTP.Localizer(c).Message("VERIFICATION_SUCCESS"),
	})
}

func (a *AuthController) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}

	req.CurrentSessionID = a.HTTP.CurrentSessionID(c)
	req.BearerToken = a.HTTP.Bearer(c)

	tokens, err := a.Auther.Login(c.UserContext(), req)
	if err != nil {
		return err
	}

	return a.respondTokens(c, tokens)
}

func (a *AuthController) Refresh(c *fiber.Ctx) error {
	tokens, err := a.Auther.Refresh(c.UserContext(), a.HTTP.Bearer(c))
	if err != nil {
		return err
	}

	return a.respondTokens(c, tokens)
}

func (a *AuthController) Logout(c *fiber.Ctx) error {
	if err := a.Auther.Logout(c.UserContext(), a.HTTP.Bearer(c), a.HTTP.CurrentSessionID(c)); err != nil {
		return err
	}

	a.HTTP.cookieDel(c, CookieName)
	return c.SendStatus(http.StatusNoContent)
}

// Check returns the token bundle stored in the client cookie, anything
// unreadable is reported as unauthorized.
func (a *AuthController) Check(c *fiber.Ctx) error {
	tokens, err := a.Auther.Check(c.Cookies(CookieName))
	if err != nil {
		a.Logger.Debug("auth cookie rejected: %v", err)
		return ErrUnauthorized
	}
	return c.JSON(tokens)
}

func (a *AuthController) ListUsers(c *fiber.Ctx) error {
	limit := clamp(c.QueryInt("limit", defaultPageSize), 1, maxPageSize)
	offset := max(c.QueryInt("offset", 0), 0)

	users, total, err := a.Auther.ListUsers(c.UserContext(), limit, offset)
	if err != nil {
		return err
	}

	c.Set("X-Total-Count", strconv.Itoa(total))
	return c.JSON(users)
}

func (a *AuthController) GetUser(c *fiber.Ctx) error {
	user, err := a.Auther.GetUser(c.UserContext(), c.Params("username"))
	if err != nil {
		return err
	}
	return c.JSON(user)
}

func (a *AuthController) EnableUser(c *fiber.Ctx) error {
	return a.respondUser(c)(a.Auther.EnableUser(c.UserContext(), a.actor(c), c.Params("username")))
}

func (a *AuthController) DisableUser(c *fiber.Ctx) error {
	return a.respondUser(c)(a.Auther.DisableUser(c.UserContext(), a.actor(c), c.Params("username")))
}

func (a *AuthController) BanUser(c *fiber.Ctx) error {
	var req BanRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.ErrBadRequest
		}
	}

	if err := req.Validate(); err != nil {
		return err
	}

	return a.respondUser(c)(a.Auther.BanUser(c.UserContext(), a.actor(c), c.Params("username"), req.Reason))
}

func (a *AuthController) UnbanUser(c *fiber.Ctx) error {
	return a.respondUser(c)(a.Auther.UnbanUser(c.UserContext(), a.actor(c), c.Params("username")))
}

func (a *AuthController) AssignRoles(c *fiber.Ctx) error {
	var req RolesRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}

	if err := req.Validate(); err != nil {
		return err
	}

	return a.respondUser(c)(a.Auther.AssignRoles(c.UserContext(), a.actor(c), c.Params("username"), req.Roles))
}

func (a *AuthController) DeleteUser(c *fiber.Ctx) error {
	if err := a.Auther.DeleteUser(c.UserContext(), a.actor(c), c.Params("username")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func (a *AuthController) ListRoles(c *fiber.Ctx) error {
	roles, err := a.Auther.ListRoles(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(roles)
}

func (a *AuthController) GetRole(c *fiber.Ctx) error {
	role, err := a.Auther.GetRole(c.UserContext(), c.Params("code"))
	if err != nil {
		return err
	}
	return c.JSON(role)
}

func (a *AuthController) Version(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"name":        a.App.Name,
		"version":     a.App.Version,
		"build":       a.App.Build,
		"environment": a.App.Environment,
	})
}

func (a *AuthController) respondTokens(c *fiber.Ctx, tokens *Tokens) error {
	if err := a.HTTP.setCookieToken(c, tokens); err != nil {
		return err
	}
	c.Set(HeaderSessionID, tokens.SessionID)
	return c.JSON(tokens)
}

func (a *AuthController) respondUser(c *fiber.Ctx) func(UserView, error) error {
	return func(user UserView, err error) error {
		if err != nil {
			return err
		}
		return c.JSON(Envelope{
			Status:    http.StatusOK,
			Timestamp: a.now(),
			Message:   a.HTTP.Localizer(c).Message("USER_UPDATED"),
			Content:   user,
		})
	}
}

func (a *AuthController) actor(c *fiber.Ctx) string {
	if auth, ok := jwtware.FromLocals(c); ok {
		return auth.Subject
	}
	return ""
}

func (a *AuthController) now() time.Time {
	return a.Auther.now().In(a.Auther.Location())
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
