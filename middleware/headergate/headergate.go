package headergate

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// MessageInvalidHeader is written when the gate rejects a request
const MessageInvalidHeader = "Cabecera de aplicacion no valida"

type Config struct {
	// Enabled turns the gate on, a disabled gate is a pass through
	Enabled bool
	// HeaderName is the header that must carry SelfName
	HeaderName string
	SelfName   string
	// PublicMarkers bypass the gate when contained in the path
	PublicMarkers []string
	// ErrorHandler overrides the default 400 response
	ErrorHandler func(c *fiber.Ctx) error
}

// DefaultPublicMarkers are the path fragments that always bypass the gate
var DefaultPublicMarkers = []string{"/public/", "/error"}

// New rejects intra fleet requests whose app header does not match the
// configured self name.
func New(config ...Config) fiber.Handler {
	var cfg Config
	if len(config) > 0 {
		cfg = config[0]
	}

	if !cfg.Enabled {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	if cfg.HeaderName == "" || cfg.SelfName == "" {
		panic("AUTH: header gate configuration: HeaderName and SelfName are required.")
	}

	if cfg.PublicMarkers == nil {
		cfg.PublicMarkers = DefaultPublicMarkers
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c *fiber.Ctx) error {
			return c.Status(http.StatusBadRequest).SendString(MessageInvalidHeader)
		}
	}

	return func(c *fiber.Ctx) error {
		if isPublic(c.Path(), cfg.PublicMarkers) {
			return c.Next()
		}

		value := c.Get(cfg.HeaderName)
		if value == "" || value != cfg.SelfName {
			return cfg.ErrorHandler(c)
		}

		return c.Next()
	}
}

func isPublic(path string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(path, m) {
			return true
		}
	}
	return false
}
