package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	active := testutil.ToFloat64(sessionsActive)
	SessionStarted()
	assert.Equal(t, active+1, testutil.ToFloat64(sessionsActive))
	SessionStopped()
	assert.Equal(t, active, testutil.ToFloat64(sessionsActive))

	completed := testutil.ToFloat64(sessionTransitions.WithLabelValues("completed"))
	RecordTransition("completed")
	assert.Equal(t, completed+1, testutil.ToFloat64(sessionTransitions.WithLabelValues("completed")))

	unmatched := testutil.ToFloat64(httpRequests.WithLabelValues("unmatched", "404"))
	RecordRequest("", http.StatusNotFound)
	assert.Equal(t, unmatched+1, testutil.ToFloat64(httpRequests.WithLabelValues("unmatched", "404")))

	bytes := testutil.ToFloat64(payloadBytes)
	RecordPayloadBytes(1024)
	RecordPayloadBytes(-1)
	assert.Equal(t, bytes+1024, testutil.ToFloat64(payloadBytes))

	success := testutil.ToFloat64(provisionRuns.WithLabelValues("success"))
	fallback := testutil.ToFloat64(provisionRuns.WithLabelValues("fallback"))
	RecordProvision(nil)
	RecordProvision(errors.New("offline"))
	assert.Equal(t, success+1, testutil.ToFloat64(provisionRuns.WithLabelValues("success")))
	assert.Equal(t, fallback+1, testutil.ToFloat64(provisionRuns.WithLabelValues("fallback")))
}

func TestHandler(t *testing.T) {
	RecordTransition("ready")

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	res, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), `otad_session_transitions_total{state="ready"}`)
}
