package messaging

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(Config{
		BaseURL:      srv.URL,
		Instance:     "inst-1",
		Token:        "tok-1",
		AccountToken: "acct-token",
	}, discardLogger(), WithHTTPClient(srv.Client()))
}

func TestSendText(t *testing.T) {
	var gotPath, gotToken string
	var gotBody sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("client-token")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := newTestClient(srv).SendText(context.Background(), "+55 (11) 98877-6655", "Oi!")
	require.NoError(t, err)

	assert.Equal(t, "/instances/inst-1/token/tok-1/send-messages", gotPath)
	assert.Equal(t, "acct-token", gotToken)
	assert.Equal(t, "5511988776655", gotBody.Phone)
	assert.Equal(t, "Oi!", gotBody.Message)
}

func TestSendTextRetriesTransientFailures(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := newTestClient(srv).SendText(context.Background(), "5511988776655", "Oi!")
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestSendTextDoesNotRetryClientErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := newTestClient(srv).SendText(context.Background(), "5511988776655", "Oi!")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=400")
	assert.Equal(t, 1, calls)
}

func TestSendTextGivesUpAfterMaxAttempts(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := newTestClient(srv).SendText(context.Background(), "5511988776655", "Oi!")
	require.Error(t, err)
	assert.Equal(t, sendAttempts, calls)
}

func TestSendTextRejectsBadInput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("gateway must not be called")
	}))
	defer srv.Close()
	c := newTestClient(srv)

	assert.Error(t, c.SendText(context.Background(), "not-a-phone", "Oi!"))
	assert.Error(t, c.SendText(context.Background(), "5511988776655", "   "))
}
