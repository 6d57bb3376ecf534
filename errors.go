package auth

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes double as message bundle keys
const (
	TextCodeUserNotFound           = "ERROR_USER_NOT_FOUND"
	TextCodeBadCredentials         = "ERROR_BAD_CREDENTIALS"
	TextCodeUserBanned             = "ERROR_USER_BANNED"
	TextCodeUserNotEnabled         = "ERROR_USER_NOT_ENABLED"
	TextCodeUserAlreadyEnabled     = "ERROR_USER_ALREADY_ENABLED"
	TextCodeDeactivateHimself      = "ERROR_USER_DEACTIVATE_HIMSELF"
	TextCodeUserNameExists         = "ERROR_USER_NAME_ALREADY_EXISTS"
	TextCodeUserEmailExists        = "ERROR_USER_EMAIL_ALREADY_EXISTS"
	TextCodeMaxSessions            = "ERROR_MAX_SESSIONS_CONCURRENT_USER"
	TextCodeTokenMissing           = "ERROR_TOKEN_NOT_PRESENT"
	TextCodeTokenInvalid           = "ERROR_TOKEN_INVALID"
	TextCodeTokenExpired           = "ERROR_TOKEN_EXPIRED"
	TextCodeVerificationNotFound   = "ERROR_VERIFICATION_TOKEN_NOT_FOUND"
	TextCodeEmptyCookie            = "ERROR_EMPTY_COOKIE"
	TextCodeUnauthorized           = "ERROR_UNAUTHORIZED"
	TextCodeForbidden              = "ERROR_FORBIDDEN"
	TextCodeSessionNotFound        = "ERROR_SESSION_NOT_FOUND"
	TextCodeRoleNotFound           = "ERROR_ROLE_NOT_FOUND"
	TextCodeInvalidTransition      = "ERROR_INVALID_USER_STATE_TRANSITION"
	TextCodeParamsValidation       = "ERROR_PARAMS_VALIDATION"
	TextCodeInternalServer         = "ERROR_INTERNAL_SERVER"
	TextCodeInvalidPhone           = "ERROR_INVALID_PHONE"
	TextCodeUnsupportedPasswordAlg = "ERROR_UNSUPPORTED_PASSWORD_ENCODER"
	TextCodeInvalidHeader          = "ERROR_INVALID_HEADER"
)

// Title keys, one per error kind
const (
	TitleBadRequest   = "BAD_REQUEST"
	TitleUnauthorized = "UNAUTHORIZED"
	TitleForbidden    = "FORBIDDEN"
	TitleNotFound     = "NOT_FOUND"
	TitleInternal     = "INTERNAL_SERVER_ERROR"
)

const metadataArgsKey = "args"

// Kind is the abstract error class shared by the orchestrator and the HTTP layer
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
)

var (
	ErrUserNotFound           = newKindError(KindNotFound, TextCodeUserNotFound, "user not found")
	ErrInvalidCredentials     = newKindError(KindUnauthorized, TextCodeBadCredentials, "invalid credentials")
	ErrAlreadyEnabled         = newKindError(KindBadRequest, TextCodeUserAlreadyEnabled, "user already enabled")
	ErrCannotDeactivateSelf   = newKindError(KindBadRequest, TextCodeDeactivateHimself, "users cannot deactivate themselves")
	ErrTokenMissing           = newKindError(KindBadRequest, TextCodeTokenMissing, "bearer token not present")
	ErrTokenInvalid           = newKindError(KindBadRequest, TextCodeTokenInvalid, "token is invalid")
	ErrTokenExpired           = newKindError(KindUnauthorized, TextCodeTokenExpired, "token is expired")
	ErrVerificationNotFound   = newKindError(KindNotFound, TextCodeVerificationNotFound, "verification token not found")
	ErrEmptyCookie            = newKindError(KindBadRequest, TextCodeEmptyCookie, "auth cookie is empty")
	ErrUnauthorized           = newKindError(KindUnauthorized, TextCodeUnauthorized, "No autorizado")
	ErrForbidden              = newKindError(KindForbidden, TextCodeForbidden, "access denied")
	ErrSessionNotFound        = newKindError(KindNotFound, TextCodeSessionNotFound, "session not found")
	ErrRoleNotFound           = newKindError(KindNotFound, TextCodeRoleNotFound, "role not found")
	ErrInvalidTransition      = newKindError(KindBadRequest, TextCodeInvalidTransition, "invalid user state transition")
	ErrUnsupportedPasswordAlg = newKindError(KindInternal, TextCodeUnsupportedPasswordAlg, "unsupported password encoder")
	ErrInvalidAppHeader       = newKindError(KindBadRequest, TextCodeInvalidHeader, "invalid application header")
)

// NewUserBannedError reports a login attempt by a banned user
func NewUserBannedError(username string, banDate any) error {
	return newKindError(KindBadRequest, TextCodeUserBanned, "user is banned", username, banDate)
}

// NewUserNotEnabledError reports a login attempt by a pending or disabled user
func NewUserNotEnabledError(username string) error {
	return newKindError(KindBadRequest, TextCodeUserNotEnabled, "user is not enabled", username)
}

func NewUserNameExistsError(username string) error {
	return newKindError(KindConflict, TextCodeUserNameExists, "username already exists", username)
}

func NewUserEmailExistsError(email string) error {
	return newKindError(KindConflict, TextCodeUserEmailExists, "email already exists", email)
}

// NewMaxSessionsError reports that the principal reached the concurrent session cap
func NewMaxSessionsError(username string, limit int) error {
	return newKindError(KindBadRequest, TextCodeMaxSessions, "maximum concurrent sessions reached", username, limit)
}

func NewInvalidPhoneError(phone string) error {
	return newKindError(KindBadRequest, TextCodeInvalidPhone, "invalid phone number", phone)
}

// NewInvalidTransitionError carries the offending states
func NewInvalidTransitionError(from, to AccountStatus) error {
	return ErrInvalidTransition.Clone(from, to)
}

func newKindError(kind Kind, textCode, message string, args ...any) *kindError {
	err := goerrors.New(message, kind.category()).
		WithTextCode(textCode).
		WithCode(kind.status())
	if len(args) > 0 {
		err = err.WithMetadata(map[string]any{metadataArgsKey: args})
	}
	return &kindError{rich: err, kind: kind}
}

// kindError keeps the abstract kind next to the rich error so conflict
// and bad request can share a status while staying distinguishable.
type kindError struct {
	rich *goerrors.Error
	kind Kind
}

func (e *kindError) Error() string {
	return e.rich.Message
}

func (e *kindError) Unwrap() error {
	return e.rich
}

// Clone returns a fresh copy with new args, sentinels are never mutated
func (e *kindError) Clone(args ...any) *kindError {
	return newKindError(e.kind, e.rich.TextCode, e.rich.Message, args...)
}

// withCause returns a copy of e wrapping cause
func (e *kindError) withCause(cause error) *kindError {
	rich := goerrors.Wrap(cause, e.kind.category(), e.rich.Message).
		WithTextCode(e.rich.TextCode).
		WithCode(e.kind.status())
	return &kindError{rich: rich, kind: e.kind}
}

// Is matches any error with the same text code
func (e *kindError) Is(target error) bool {
	other, ok := target.(*kindError)
	if !ok {
		return false
	}
	return other.rich.TextCode == e.rich.TextCode
}

func (k Kind) category() goerrors.Category {
	switch k {
	case KindBadRequest:
		return goerrors.CategoryBadInput
	case KindUnauthorized:
		return goerrors.CategoryAuth
	case KindForbidden:
		return goerrors.CategoryAuthz
	case KindNotFound:
		return goerrors.CategoryNotFound
	case KindConflict:
		return goerrors.CategoryConflict
	default:
		return goerrors.CategoryInternal
	}
}

func (k Kind) status() int {
	switch k {
	case KindBadRequest, KindConflict:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Title returns the bundle key used as problem title
func (k Kind) Title() string {
	switch k {
	case KindBadRequest, KindConflict:
		return TitleBadRequest
	case KindUnauthorized:
		return TitleUnauthorized
	case KindForbidden:
		return TitleForbidden
	case KindNotFound:
		return TitleNotFound
	default:
		return TitleInternal
	}
}

// ErrorKind classifies any error, falling back to the go-errors category
func ErrorKind(err error) Kind {
	if err == nil {
		return KindInternal
	}

	var ke *kindError
	if goerrors.As(err, &ke) {
		return ke.kind
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		switch richErr.Category {
		case goerrors.CategoryBadInput, goerrors.CategoryValidation:
			return KindBadRequest
		case goerrors.CategoryAuth:
			return KindUnauthorized
		case goerrors.CategoryAuthz:
			return KindForbidden
		case goerrors.CategoryNotFound:
			return KindNotFound
		case goerrors.CategoryConflict:
			return KindConflict
		}
	}
	return KindInternal
}

// HTTPStatus maps an error to its response status
func HTTPStatus(err error) int {
	var ke *kindError
	if goerrors.As(err, &ke) {
		return ke.kind.status()
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Code != 0 {
		return richErr.Code
	}
	return ErrorKind(err).status()
}

// TextCode returns the text code of a rich error or an empty string
func TextCode(err error) string {
	var ke *kindError
	if goerrors.As(err, &ke) {
		return ke.rich.TextCode
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode
	}
	return ""
}

// HasTextCode reports whether err carries the given text code
func HasTextCode(err error, code string) bool {
	return err != nil && TextCode(err) == code
}

// MessageArgs returns the interpolation args attached to err
func MessageArgs(err error) []any {
	var ke *kindError
	if !goerrors.As(err, &ke) {
		return nil
	}
	if ke.rich.Metadata == nil {
		return nil
	}
	if args, ok := ke.rich.Metadata[metadataArgsKey].([]any); ok {
		return args
	}
	return nil
}

// wrapInternal wraps infrastructure failures keeping typed errors untouched
func wrapInternal(err error, message string) error {
	if err == nil {
		return nil
	}

	var ke *kindError
	if goerrors.As(err, &ke) {
		return err
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Category != goerrors.CategoryInternal {
		return err
	}

	return goerrors.Wrap(err, goerrors.CategoryInternal, message).
		WithTextCode(TextCodeInternalServer).
		WithCode(goerrors.CodeInternal)
}
