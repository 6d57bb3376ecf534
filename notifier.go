package auth

import (
	"bytes"
	"context"
	"io/fs"
	"net/http"
	"net/url"
	"strings"

	"github.com/gofiber/template/django/v3"
	goerrors "github.com/goliatone/go-errors"
)

const verificationTemplate = "verification"

// VerificationMessage is the rendered verification email
type VerificationMessage struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers rendered messages, the transport lives outside this module
type Mailer interface {
	Send(ctx context.Context, msg VerificationMessage) error
}

// MailerFunc adapts a function to the Mailer interface
type MailerFunc func(ctx context.Context, msg VerificationMessage) error

func (f MailerFunc) Send(ctx context.Context, msg VerificationMessage) error {
	return f(ctx, msg)
}

// TemplateNotifier renders the verification email with the django
// engine and hands it to a Mailer.
type TemplateNotifier struct {
	engine    *django.Engine
	mailer    Mailer
	verifyURL string
	appName   string
	subject   string
}

// NewTemplateNotifier builds a notifier, verifyURL is the client page
// that receives the token as its t query parameter.
func NewTemplateNotifier(mailer Mailer, appName, verifyURL string) (*TemplateNotifier, error) {
	sub, err := fs.Sub(GetTemplatesFS(), "templates")
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open mail templates")
	}

	engine := django.NewFileSystem(http.FS(sub), ".django")
	if err := engine.Load(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load mail templates")
	}

	return &TemplateNotifier{
		engine:    engine,
		mailer:    mailer,
		verifyURL: verifyURL,
		appName:   appName,
		subject:   appName + ": verify your account",
	}, nil
}

func (n *TemplateNotifier) SendVerification(ctx context.Context, user *User, token string) error {
	msg, err := n.Render(user, token)
	if err != nil {
		return err
	}
	return n.mailer.Send(ctx, msg)
}

// Render builds the message without sending it
func (n *TemplateNotifier) Render(user *User, token string) (VerificationMessage, error) {
	link := n.verifyURL
	if link != "" {
		sep := "?"
		if strings.Contains(link, "?") {
			sep = "&"
		}
		link += sep + "t=" + url.QueryEscape(token)
	}

	name := user.Name
	if name == "" {
		name = user.Username
	}

	buf := &bytes.Buffer{}
	err := n.engine.Render(buf, verificationTemplate, map[string]any{
		"app_name": n.appName,
		"name":     name,
		"username": user.Username,
		"token":    token,
		"link":     link,
	})
	if err != nil {
		return VerificationMessage{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render verification email").
			WithMetadata(map[string]any{"template": verificationTemplate})
	}

	return VerificationMessage{
		To:      user.Email,
		Subject: n.subject,
		Body:    buf.String(),
	}, nil
}

// LogMailer writes messages to the logger instead of sending them
type LogMailer struct {
	Logger Logger
}

func (m LogMailer) Send(_ context.Context, msg VerificationMessage) error {
	logger := m.Logger
	if logger == nil {
		logger = defLogger{}
	}
	logger.Info("verification email to %s: %s\n%s", msg.To, msg.Subject, msg.Body)
	return nil
}

type noopNotifier struct{}

func (noopNotifier) SendVerification(context.Context, *User, string) error {
	return nil
}
