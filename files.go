package auth

import (
	"embed"
)

//go:embed templates/*.django
var templatesFS embed.FS

// GetTemplatesFS returns the email templates shipped with this package
func GetTemplatesFS() embed.FS {
	return templatesFS
}
