package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/duelr/internal/history"
)

func TestOpenSearchSink_Send(t *testing.T) {
	var (
		method, path, ctype string
		body                []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path, ctype = r.Method, r.URL.Path, r.Header.Get("Content-Type")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	defer server.Close()

	sink := New(server.URL+"/", "duelr-games")
	err := sink.Send(context.Background(), history.Event{
		Type:        history.EventGame,
		OccurredAt:  time.Now().UTC(),
		RunID:       "os-run",
		Game:        7,
		Reason:      "TIME_FORFEIT",
		Result:      "white",
		Winner:      "alpha",
		Engine1:     "alpha",
		Engine2:     "beta",
		Engine1Wins: 4,
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/duelr-games/_doc/os-run-game-7", path)
	assert.Equal(t, "application/json", ctype)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(body, &doc))
	assert.Equal(t, "game", doc["type"])
	assert.Equal(t, "os-run", doc["run_id"])
	assert.Equal(t, float64(7), doc["game"])
	assert.Equal(t, "alpha", doc["winner"])
	assert.Equal(t, float64(4), doc["engine1_wins"])
}

func TestOpenSearchSink_ResendOverwritesSameDocument(t *testing.T) {
	var mu sync.Mutex
	docs := map[string]int{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		docs[r.URL.Path]++
		n := docs[r.URL.Path]
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusCreated)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := New(server.URL, "duelr")
	game := history.Event{Type: history.EventGame, RunID: "r1", Game: 2}
	require.NoError(t, sink.Send(context.Background(), game))
	require.NoError(t, sink.Send(context.Background(), game))
	require.NoError(t, sink.Send(context.Background(), history.Event{Type: history.EventSeries, RunID: "r1"}))

	assert.Equal(t, map[string]int{
		"/duelr/_doc/r1-game-2": 2,
		"/duelr/_doc/r1-series": 1,
	}, docs)
}

func TestDocID(t *testing.T) {
	assert.Equal(t, "abc-game-3", DocID(history.Event{Type: history.EventGame, RunID: "abc", Game: 3}))
	assert.Equal(t, "abc-series", DocID(history.Event{Type: history.EventSeries, RunID: "abc", Game: 3}))
}

func TestOpenSearchSink_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"mapper_parsing_exception","reason":"failed to parse field [game]"},"status":400}`))
	}))
	defer server.Close()

	err := New(server.URL, "idx").Send(context.Background(), history.Event{Type: history.EventSeries, RunID: "r9"})
	assert.EqualError(t, err, "index r9-series into idx: HTTP 400: mapper_parsing_exception: failed to parse field [game]")
}

func TestOpenSearchSink_ErrorWithoutBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	err := New(server.URL, "idx").Send(context.Background(), history.Event{Type: history.EventGame, RunID: "r9", Game: 1})
	assert.EqualError(t, err, "index r9-game-1 into idx: HTTP 503: Service Unavailable")
}

func TestOpenSearchSink_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	err := New(url, "idx").Send(context.Background(), history.Event{})
	assert.Error(t, err)
}
