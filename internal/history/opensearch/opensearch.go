package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/loykin/duelr/internal/history"
)

// Sink indexes result events as OpenSearch documents. Every event gets a
// stable id (see DocID) and is written with PUT {index}/_doc/{id}, so a
// re-sent game overwrites its earlier copy instead of duplicating it.
type Sink struct {
	client  *http.Client
	baseURL string
	index   string
}

func New(baseURL, index string) *Sink {
	return &Sink{
		client:  &http.Client{Timeout: 5 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		index:   index,
	}
}

// DocID is the document id of e: "<run>-game-<n>" for games and
// "<run>-series" for the series summary.
func DocID(e history.Event) string {
	if e.Type == history.EventSeries {
		return e.RunID + "-series"
	}
	return e.RunID + "-game-" + strconv.Itoa(e.Game)
}

// apiError is the error envelope OpenSearch returns on failed requests.
type apiError struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	id := DocID(e)
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode %s: %w", id, err)
	}
	u := s.baseURL + "/" + url.PathEscape(s.index) + "/_doc/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("index %s: %w", id, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("index %s: %w", id, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil
	}

	msg := http.StatusText(resp.StatusCode)
	var ae apiError
	if body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); json.Unmarshal(body, &ae) == nil && ae.Error.Reason != "" {
		msg = ae.Error.Type + ": " + ae.Error.Reason
	}
	return fmt.Errorf("index %s into %s: HTTP %d: %s", id, s.index, resp.StatusCode, msg)
}
