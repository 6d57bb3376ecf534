package i18n_test

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-chassis-auth/i18n"
)

func TestLocalizerNegotiation(t *testing.T) {
	bundle, err := i18n.New("es")
	require.NoError(t, err)
	assert.Equal(t, "es", bundle.Languages()[0])

	tests := []struct {
		name   string
		accept string
		lang   string
		title  string
	}{
		{name: "no header uses default", accept: "", lang: "es", title: "No autorizado"},
		{name: "english", accept: "en-US,en;q=0.9", lang: "en", title: "Unauthorized"},
		{name: "weighted spanish", accept: "fr;q=0.9,es;q=0.8", lang: "es", title: "No autorizado"},
		{name: "unsupported falls back", accept: "ja", lang: "es", title: "No autorizado"},
		{name: "garbage header", accept: ";;;", lang: "es", title: "No autorizado"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := bundle.Localizer(tt.accept)
			assert.Equal(t, tt.lang, l.Language()[:2])
			assert.Equal(t, tt.title, l.Message("UNAUTHORIZED"))
		})
	}
}

func TestErrorInterpolation(t *testing.T) {
	bundle, err := i18n.New("es")
	require.NoError(t, err)

	l := bundle.Localizer("es")
	assert.Equal(t,
		"El usuario ana ha alcanzado el máximo de 2 sesiones concurrentes",
		l.Error("ERROR_MAX_SESSIONS_CONCURRENT_USER", "ana", 2),
	)
	assert.Equal(t, "Verification finalizado con éxito", l.Message("VERIFICATION_SUCCESS"))
	assert.Equal(t, "UNKNOWN_KEY", l.Error("UNKNOWN_KEY"))
}

func TestFormat(t *testing.T) {
	tests := []struct {
		tmpl string
		args []any
		want string
	}{
		{"plain", nil, "plain"},
		{"{0} and {1}", []any{"a", 1}, "a and 1"},
		{"{1}{0}", []any{"x", "y"}, "yx"},
		{"missing {2}", []any{"a"}, "missing {2}"},
		{"not {a} index", []any{"a"}, "not {a} index"},
		{"open {0", []any{"a"}, "open {0"},
	}

	for _, tt := range tests {
		t.Run(tt.tmpl, func(t *testing.T) {
			assert.Equal(t, tt.want, i18n.Format(tt.tmpl, tt.args...))
		})
	}
}

func TestLoadFallsBackToDefaultCatalog(t *testing.T) {
	fsys := fstest.MapFS{
		"loc/en.yaml": {Data: []byte("messages:\n  HELLO: Hello\n  ONLY_EN: English only\n")},
		"loc/de.yaml": {Data: []byte("messages:\n  HELLO: Hallo\n")},
	}

	bundle, err := i18n.Load(fsys, "loc", "en")
	require.NoError(t, err)

	l := bundle.Localizer("de")
	assert.Equal(t, "Hallo", l.Message("HELLO"))
	assert.Equal(t, "English only", l.Message("ONLY_EN"))
}

func TestLoadWithoutLocales(t *testing.T) {
	_, err := i18n.Load(fstest.MapFS{"loc/readme.txt": {Data: []byte("x")}}, "loc", "en")
	assert.Error(t, err)
}
