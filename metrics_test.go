package auth_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-chassis-auth"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := auth.NewMetrics(reg)
	require.NoError(t, err)

	ctx := context.Background()
	for _, e := range []auth.ActivityEventType{
		auth.ActivityEventLoginSuccess,
		auth.ActivityEventLoginFailure,
		auth.ActivityEventLoginFailure,
		auth.ActivityEventSessionLimitReached,
		auth.ActivityEventLogout,
	} {
		require.NoError(t, metrics.Record(ctx, auth.ActivityEvent{EventType: e}))
	}

	metrics.ObserveFilter(auth.FilterOutcomeAuthenticated)
	metrics.ObserveFilter(auth.FilterOutcomeExpired)
	metrics.ObservePurge(7)

	count, err := testutil.GatherAndCount(reg, "chassis_auth_logins_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = testutil.GatherAndCount(reg, "chassis_auth_events_total")
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	count, err = testutil.GatherAndCount(reg, "chassis_auth_filter_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "chassis_auth_sessions_purged_last" {
			assert.Equal(t, 7.0, mf.GetMetric()[0].GetGauge().GetValue())
		}
	}
}

func TestMetricsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := auth.NewMetrics(reg)
	require.NoError(t, err)

	_, err = auth.NewMetrics(reg)
	assert.Error(t, err)
}

func TestMetricsCountFilterOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := auth.NewMetrics(reg)
	require.NoError(t, err)

	env := newTestEnv(t)
	env.registerActive("ivy", "ivy@example.com", "Password1!")
	tokens, _ := env.mustLogin("ivy", "Password1!")

	app := auth.NewApp(auth.AppOptions{
		Config:   env.cfg,
		Auther:   env.auther,
		Bundle:   mustBundle(t),
		Metrics:  metrics,
		Gatherer: reg,
	})
	env.app = app

	resp := env.do("GET", "/users", nil, withBearer(tokens.JWT))
	require.Equal(t, 200, resp.StatusCode)
	resp.Body.Close()

	resp = env.do("GET", "/users", nil, withBearer("garbage"))
	require.Equal(t, 401, resp.StatusCode)
	assert.Equal(t, "Error al verificar el Token", readBody(t, resp))

	count, err := testutil.GatherAndCount(reg, "chassis_auth_filter_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
