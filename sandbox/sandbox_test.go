package sandbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerExecutePostsRequestAndDecodesResult(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/execute", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"output":    "42\n",
			"logs":      "",
			"exit_code": 0,
		})
	}))
	defer srv.Close()

	runner := NewRunner(srv.URL, WithRuntime("python"))
	result, err := runner.Execute(context.Background(), "exec-1", "session-1", "print(42)", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "42\n", result.Output)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "python", gotBody["runtime"])
	assert.Equal(t, "session-1", gotBody["session_id"])
}

func TestRunnerExecutePropagatesNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("code is required"))
	}))
	defer srv.Close()

	runner := NewRunner(srv.URL)
	_, err := runner.Execute(context.Background(), "exec-1", "session-1", "", time.Second)
	assert.Error(t, err)
}

func TestRunnerExecuteDefaultsTimeoutWhenNonPositive(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{"output": "", "exit_code": 0})
	}))
	defer srv.Close()

	runner := NewRunner(srv.URL)
	_, err := runner.Execute(context.Background(), "exec-1", "session-1", "pass", 0)
	require.NoError(t, err)
	assert.Equal(t, float64(DefaultTimeout.Seconds()), gotBody["timeout"])
}
