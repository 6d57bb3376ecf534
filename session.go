package auth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
)

// Session attribute names
const (
	AttrPrincipalNameIndex = "principal_name_index"
	AttrSecurityContext    = "security_context"
)

// DefaultMaxInactive applies when a registry is built without an explicit idle timeout
const DefaultMaxInactive = 30 * time.Minute

const sessionIDBytes = 32

// Session is a live server side session. A session without a principal
// name is anonymous and does not count toward the per user cap.
type Session struct {
	ID             string         `json:"id"`
	PrincipalName  string         `json:"principal_name,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	LastAccessedAt time.Time      `json:"last_accessed_at"`
	MaxInactive    time.Duration  `json:"max_inactive"`
	Attributes     map[string]any `json:"attributes,omitempty"`
}

// SecuritySnapshot is the authentication state stored in a session
type SecuritySnapshot struct {
	Username        string    `json:"username"`
	Authorities     []string  `json:"authorities"`
	Modules         []string  `json:"modules,omitempty"`
	AuthenticatedAt time.Time `json:"authenticated_at"`
}

// NewSession builds a session with a fresh id
func NewSession(attributes map[string]any, now time.Time, maxInactive time.Duration) (*Session, error) {
	id, err := NewSessionID()
	if err != nil {
		return nil, err
	}

	attrs := make(map[string]any, len(attributes))
	for k, v := range attributes {
		attrs[k] = v
	}

	return &Session{
		ID:             id,
		CreatedAt:      now,
		LastAccessedAt: now,
		MaxInactive:    maxInactive,
		Attributes:     attrs,
	}, nil
}

// NewSessionID returns 32 random bytes encoded as unpadded base64url
func NewSessionID() (string, error) {
	buf := make([]byte, sessionIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", wrapInternal(err, "failed to generate session id")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// PrincipalIndexKey normalizes a username for the secondary index
func PrincipalIndexKey(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// IsAnonymous reports whether no principal is bound to the session
func (s *Session) IsAnonymous() bool {
	if s == nil {
		return true
	}
	_, indexed := s.Attributes[AttrPrincipalNameIndex]
	return !indexed || s.PrincipalName == ""
}

// IsExpired reports whether the session idled past its max inactive interval
func (s *Session) IsExpired(now time.Time) bool {
	if s == nil {
		return true
	}
	if s.MaxInactive <= 0 {
		return false
	}
	return now.Sub(s.LastAccessedAt) >= s.MaxInactive
}

// ExpiresAt is the instant the session becomes idle expired
func (s *Session) ExpiresAt() time.Time {
	if s.MaxInactive <= 0 {
		return time.Time{}
	}
	return s.LastAccessedAt.Add(s.MaxInactive)
}

// Bind attaches the principal and security snapshot
func (s *Session) Bind(username string, snapshot SecuritySnapshot) {
	if s.Attributes == nil {
		s.Attributes = map[string]any{}
	}
	s.PrincipalName = username
	s.Attributes[AttrPrincipalNameIndex] = username
	s.Attributes[AttrSecurityContext] = snapshot
}

// Clone returns a copy safe to hand out of a registry
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Attributes = make(map[string]any, len(s.Attributes))
	for k, v := range s.Attributes {
		out.Attributes[k] = v
	}
	return &out
}

// Snapshot returns the security snapshot bound to the session
func (s *Session) Snapshot() (SecuritySnapshot, bool) {
	if s == nil {
		return SecuritySnapshot{}, false
	}
	snapshot, ok := s.Attributes[AttrSecurityContext].(SecuritySnapshot)
	return snapshot, ok
}

// MarshalAttributes encodes session attributes for external stores
func MarshalAttributes(attributes map[string]any) ([]byte, error) {
	if attributes == nil {
		attributes = map[string]any{}
	}
	return json.Marshal(attributes)
}

// UnmarshalAttributes decodes attributes written by MarshalAttributes,
// restoring the security snapshot to its concrete type.
func UnmarshalAttributes(raw []byte) (map[string]any, error) {
	attrs := map[string]any{}
	if len(raw) == 0 {
		return attrs, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}

	for k, v := range fields {
		if k == AttrSecurityContext {
			var snapshot SecuritySnapshot
			if err := json.Unmarshal(v, &snapshot); err != nil {
				return nil, err
			}
			attrs[k] = snapshot
			continue
		}

		var value any
		if err := json.Unmarshal(v, &value); err != nil {
			return nil, err
		}
		attrs[k] = value
	}
	return attrs, nil
}

// RegistryOption configures session registry implementations
type RegistryOption func(*RegistryOptions)

// RegistryOptions is shared by every registry implementation
type RegistryOptions struct {
	Now         Clock
	MaxInactive time.Duration
	Logger      Logger
}

func WithRegistryClock(clock Clock) RegistryOption {
	return func(o *RegistryOptions) {
		if clock != nil {
			o.Now = clock
		}
	}
}

func WithRegistryMaxInactive(d time.Duration) RegistryOption {
	return func(o *RegistryOptions) {
		o.MaxInactive = d
	}
}

func WithRegistryLogger(logger Logger) RegistryOption {
	return func(o *RegistryOptions) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// NewRegistryOptions applies opts over the defaults
func NewRegistryOptions(opts ...RegistryOption) RegistryOptions {
	o := RegistryOptions{
		Now:         time.Now,
		MaxInactive: DefaultMaxInactive,
		Logger:      defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
