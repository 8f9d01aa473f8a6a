package session

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, zap.NewNop())
}

func TestClientStartRecording(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/start-record/dev_abc", r.URL.Path)
		fmt.Fprint(w, `{"sessionId":"sess-42"}`)
	}))

	id, err := c.StartRecording(context.Background(), "dev_abc")
	require.NoError(t, err)
	assert.Equal(t, "sess-42", id)
}

func TestClientStartRecordingEmptySessionID(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))

	_, err := c.StartRecording(context.Background(), "dev_abc")
	assert.Error(t, err)
}

func TestClientStopRecording(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/stop-record/dev_abc/sess-42", r.URL.Path)
		fmt.Fprint(w, `{"durationSeconds":500}`)
	}))

	dur, err := c.StopRecording(context.Background(), "dev_abc", "sess-42")
	require.NoError(t, err)
	assert.Equal(t, 500, dur)
}

func TestClientFinalizeAndURLs(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/finalize/dev_abc/sess-42":
			assert.Equal(t, http.MethodPost, r.Method)
			fmt.Fprint(w, `{"urls":["u1","u2","u3"]}`)
		case "/get-recording-urls/dev_abc/sess-42":
			assert.Equal(t, http.MethodGet, r.Method)
			fmt.Fprint(w, `{"urls":[]}`)
		default:
			http.NotFound(w, r)
		}
	}))

	urls, err := c.Finalize(context.Background(), "dev_abc", "sess-42")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2", "u3"}, urls)

	urls, err = c.RecordingURLs(context.Background(), "dev_abc", "sess-42")
	require.NoError(t, err)
	assert.Empty(t, urls, "not-ready comes back as an empty list, not an error")
}

func TestClientDeleteRecording(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/delete-record/dev_abc/sess-42", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))

	assert.NoError(t, c.DeleteRecording(context.Background(), "dev_abc", "sess-42"))
}

func TestClientListenerCount(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/listener-count", r.URL.Path)
		fmt.Fprint(w, `{"count":17}`)
	}))

	n, err := c.ListenerCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 17, n)
}

func TestClientErrorStatus(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "recording not found", http.StatusNotFound)
	}))

	err := c.DeleteRecording(context.Background(), "dev_abc", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestClientNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // connection refused from here on
	c := NewClient(srv.URL, zap.NewNop())

	_, err := c.StartRecording(context.Background(), "dev_abc")
	assert.Error(t, err)
}
