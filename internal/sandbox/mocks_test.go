package sandbox

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/opd-ai/meshcall/config"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func newTestSandbox(t *testing.T) *Sandbox {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	sb := New(config.Default(), mock)
	t.Cleanup(func() { _ = sb.Close() })
	return sb
}

func newTestRouter(t *testing.T) (*Sandbox, http.Handler) {
	t.Helper()
	sb := newTestSandbox(t)
	return sb, NewHandler(sb).NewRouter()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) Status {
	t.Helper()
	var st Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	return st
}

func status(t *testing.T, h http.Handler, identity string) Status {
	t.Helper()
	rec := do(t, h, http.MethodGet, "/nodes/"+identity, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeStatus(t, rec)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
