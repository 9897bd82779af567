// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	stored := 3.0
	m := New("secretd", func() float64 { return stored })

	m.Connections.Inc()
	m.Requests.WithLabelValues("get", OutcomeOk).Inc()
	m.Requests.WithLabelValues("get", OutcomeOk).Inc()
	m.Requests.WithLabelValues("set", OutcomeUnauthorized).Inc()
	m.Dropped.WithLabelValues(DropMalformed).Inc()
	m.Reaped.Add(4)

	require.InDelta(t, 1, testutil.ToFloat64(m.Connections), 0)
	require.InDelta(t, 2, testutil.ToFloat64(m.Requests.WithLabelValues("get", OutcomeOk)), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.Requests.WithLabelValues("set", OutcomeUnauthorized)), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.Dropped.WithLabelValues(DropMalformed)), 0)
	require.InDelta(t, 4, testutil.ToFloat64(m.Reaped), 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "secretd_stored_secrets 3")
	require.Contains(t, string(body), `secretd_requests_total{kind="get",outcome="ok"} 2`)
}
