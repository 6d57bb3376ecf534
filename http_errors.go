package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"

	"github.com/goliatone/go-chassis-auth/i18n"
)

// TextCodeRouteNotFound is used for unmatched routes
const TextCodeRouteNotFound = "ERROR_ROUTE_NOT_FOUND"

const problemType = "about:blank"

// ProblemDetail is the error body returned by every endpoint
type ProblemDetail struct {
	Type     string           `json:"type"`
	Title    string           `json:"title"`
	Status   int              `json:"status"`
	Detail   string           `json:"detail"`
	Instance string           `json:"instance"`
	Errors   []FieldViolation `json:"errors,omitempty"`
}

// FieldViolation is a single failing request field
type FieldViolation struct {
	Field         string `json:"field"`
	RejectedValue any    `json:"rejectedValue"`
	Message       string `json:"message"`
}

// Envelope wraps successful responses
type Envelope struct {
	Status    int       `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message,omitempty"`
	Content   any       `json:"content,omitempty"`
}

// NewProblemDetail resolves err against the localizer. Internal errors
// never expose their message.
func NewProblemDetail(err error, instance string, l *i18n.Localizer) ProblemDetail {
	var fiberErr *fiber.Error
	if goerrors.As(err, &fiberErr) {
		return problemFromStatus(fiberErr.Code, instance, l)
	}

	kind := ErrorKind(err)
	status := HTTPStatus(err)

	code := TextCode(err)
	if kind == KindInternal || code == "" {
		code = TextCodeInternalServer
		if kind != KindInternal {
			code = statusTextCode(status)
		}
	}

	problem := ProblemDetail{
		Type:     problemType,
		Title:    l.Message(kind.Title()),
		Status:   status,
		Detail:   l.Error(code, localizeArgs(MessageArgs(err), l)...),
		Instance: instance,
	}

	if verrs, ok := goerrors.GetValidationErrors(err); ok {
		problem.Errors = make([]FieldViolation, 0, len(verrs))
		for _, fe := range verrs {
			problem.Errors = append(problem.Errors, FieldViolation{
				Field:         fe.Field,
				RejectedValue: fe.Value,
				Message:       fe.Message,
			})
		}
	}

	return problem
}

func problemFromStatus(status int, instance string, l *i18n.Localizer) ProblemDetail {
	title := TitleInternal
	switch {
	case status == http.StatusUnauthorized:
		title = TitleUnauthorized
	case status == http.StatusForbidden:
		title = TitleForbidden
	case status == http.StatusNotFound:
		title = TitleNotFound
	case status >= 400 && status < 500:
		title = TitleBadRequest
	}

	return ProblemDetail{
		Type:     problemType,
		Title:    l.Message(title),
		Status:   status,
		Detail:   l.Error(statusTextCode(status), instance),
		Instance: instance,
	}
}

func statusTextCode(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return TextCodeUnauthorized
	case http.StatusForbidden:
		return TextCodeForbidden
	case http.StatusNotFound:
		return TextCodeRouteNotFound
	case http.StatusInternalServerError:
		return TextCodeInternalServer
	default:
		return TextCodeParamsValidation
	}
}

// localizeArgs resolves status args so they render in the request language
func localizeArgs(args []any, l *i18n.Localizer) []any {
	out := make([]any, len(args))
	for i, arg := range args {
		if status, ok := arg.(AccountStatus); ok {
			out[i] = l.Message("STATUS_" + strings.ToUpper(string(status)))
			continue
		}
		out[i] = arg
	}
	return out
}

// NewErrorHandler returns the fiber error handler rendering problem details
func NewErrorHandler(bundle *i18n.Bundle, logger Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = defLogger{}
	}

	return func(c *fiber.Ctx, err error) error {
		problem := NewProblemDetail(err, c.Path(), bundle.Localizer(c.Get(fiber.HeaderAcceptLanguage)))

		if problem.Status >= http.StatusInternalServerError {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				logger.Error("request %s %s failed: %s %s", c.Method(), c.Path(), richErr.Error(),
					print.MaybePrettyJSON(richErr.Metadata))
			} else {
				logger.Error("request %s %s failed: %v", c.Method(), c.Path(), err)
			}
		}

		return c.Status(problem.Status).JSON(problem)
	}
}
