package auth

import (
	"strings"
	"time"

	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	// RoleCodeUser is granted to every registered user
	RoleCodeUser = "US"
	// RoleCodeAdmin grants the account administration endpoints
	RoleCodeAdmin = "AD"
)

// MaxLoginAttempts bans the account when reached
const MaxLoginAttempts = 10

// ViewDateLayout renders dates as dd/MM/yyyy HH:mm:ss
const ViewDateLayout = "02/01/2006 15:04:05"

// User is the user model
type User struct {
	bun.BaseModel     `bun:"table:users,alias:usr"`
	ID                uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Username          string     `bun:"username,notnull,unique" json:"username"`
	Name              string     `bun:"name" json:"name,omitempty"`
	Surname1          string     `bun:"surname1" json:"surname1,omitempty"`
	Surname2          string     `bun:"surname2" json:"surname2,omitempty"`
	Email             string     `bun:"email,notnull,unique" json:"email"`
	Phone             string     `bun:"phone" json:"phone,omitempty"`
	Password          string     `bun:"password,notnull" json:"-"`
	RegistrationDate  time.Time  `bun:"registration_date,notnull" json:"registration_date"`
	VerificationToken *string    `bun:"verification_token,unique" json:"-"`
	Enabled           bool       `bun:"enabled,notnull" json:"enabled"`
	LoginDate         *time.Time `bun:"login_date" json:"login_date,omitempty"`
	LoginAttempts     int        `bun:"login_attempts,notnull" json:"login_attempts"`
	Banned            bool       `bun:"banned,notnull" json:"banned"`
	BanDate           *time.Time `bun:"ban_date" json:"ban_date,omitempty"`
	BanReason         string     `bun:"ban_reason" json:"ban_reason,omitempty"`

	Roles []*Role `bun:"-" json:"roles,omitempty"`
}

// RoleCodes returns the codes of the user's roles
func (u *User) RoleCodes() []string {
	codes := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		codes = append(codes, r.Code)
	}
	return codes
}

// ModuleCodes returns the distinct module codes reachable through roles
func (u *User) ModuleCodes() []string {
	seen := map[string]struct{}{}
	codes := []string{}
	for _, r := range u.Roles {
		for _, m := range r.Modules {
			if _, ok := seen[m.Code]; ok {
				continue
			}
			seen[m.Code] = struct{}{}
			codes = append(codes, m.Code)
		}
	}
	return codes
}

// Role groups modules under a short code
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:role"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"-"`
	Code          string    `bun:"code,notnull,unique" json:"code"`
	Name          string    `bun:"name,notnull" json:"name"`
	Modules       []*Module `bun:"m2m:role_modules,join:Role=Module" json:"modules,omitempty"`
}

// Module is static reference data
type Module struct {
	bun.BaseModel `bun:"table:modules,alias:mod"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"-"`
	Code          string    `bun:"code,notnull,unique" json:"code"`
	Name          string    `bun:"name,notnull" json:"name"`
}

// UserRoleLink is the users to roles join table
type UserRoleLink struct {
	bun.BaseModel `bun:"table:user_roles"`
	UserID        uuid.UUID `bun:"user_id,pk,type:uuid"`
	RoleID        uuid.UUID `bun:"role_id,pk,type:uuid"`
}

// RoleModule is the roles to modules join table
type RoleModule struct {
	bun.BaseModel `bun:"table:role_modules"`
	RoleID        uuid.UUID `bun:"role_id,pk,type:uuid"`
	Role          *Role     `bun:"rel:belongs-to,join:role_id=id"`
	ModuleID      uuid.UUID `bun:"module_id,pk,type:uuid"`
	Module        *Module   `bun:"rel:belongs-to,join:module_id=id"`
}

// ReferenceID derives a stable id from a reference data code so seeds
// are idempotent across environments.
func ReferenceID(kind, code string) uuid.UUID {
	if id, err := hashid.NewUUID(kind + ":" + strings.ToUpper(code)); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(kind+":"+strings.ToUpper(code)))
}

// NewRole builds a role with its derived id
func NewRole(code, name string, modules ...*Module) *Role {
	return &Role{
		ID:      ReferenceID("role", code),
		Code:    code,
		Name:    name,
		Modules: modules,
	}
}

// NewModule builds a module with its derived id
func NewModule(code, name string) *Module {
	return &Module{
		ID:   ReferenceID("module", code),
		Code: code,
		Name: name,
	}
}

// UserView is the public representation returned by the API
type UserView struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	Name          string     `json:"name,omitempty"`
	Enabled       bool       `json:"enabled"`
	Banned        bool       `json:"banned"`
	BanDate       string     `json:"banDate,omitempty"`
	LoginDate     string     `json:"loginDate,omitempty"`
	LoginAttempts int        `json:"loginAttempts"`
	Roles         []RoleView `json:"roles,omitempty"`
}

type RoleView struct {
	Code    string       `json:"code"`
	Name    string       `json:"name"`
	Modules []ModuleView `json:"modules,omitempty"`
}

type ModuleView struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// NewUserView renders u with dates in loc
func NewUserView(u *User, loc *time.Location) UserView {
	if u == nil {
		return UserView{}
	}
	if loc == nil {
		loc = time.UTC
	}

	view := UserView{
		ID:            u.ID.String(),
		Username:      u.Username,
		Email:         u.Email,
		Name:          u.Name,
		Enabled:       u.Enabled,
		Banned:        u.Banned,
		LoginAttempts: u.LoginAttempts,
		BanDate:       formatViewDate(u.BanDate, loc),
		LoginDate:     formatViewDate(u.LoginDate, loc),
	}

	for _, r := range u.Roles {
		view.Roles = append(view.Roles, NewRoleView(r))
	}

	return view
}

func NewRoleView(r *Role) RoleView {
	view := RoleView{Code: r.Code, Name: r.Name}
	for _, m := range r.Modules {
		view.Modules = append(view.Modules, ModuleView{Code: m.Code, Name: m.Name})
	}
	return view
}

func formatViewDate(t *time.Time, loc *time.Location) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.In(loc).Format(ViewDateLayout)
}
