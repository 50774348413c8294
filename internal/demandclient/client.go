package demandclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// EndpointSpec is the minimal per-callout information the client needs out
// of a catalog.Endpoint; decoupled from the catalog package to avoid an
// import cycle (catalog does not need to know about HTTP transports).
type EndpointSpec struct {
	URL       string
	Transport Transport
	Encoding  Encoding
	Gzip      bool
}

// Client fans callouts out over the shared transport pool.
type Client struct {
	pool *Pool
}

func NewClient() *Client {
	return &Client{pool: NewPool()}
}

// Call issues one bidder callout and returns its classified Result. It
// never returns a non-nil error itself — every failure mode is encoded in
// the returned Result's State, per the response-classification contract
// the auction pipeline's callout stage depends on.
func (c *Client) Call(ctx context.Context, ep EndpointSpec, payload []byte, contentType string) Result {
	body := payload
	encoding := "identity"
	if ep.Gzip {
		compressed, err := compressGzip(payload)
		if err != nil {
			return Result{State: StateError, Err: err, Message: err.Error()}
		}
		body = compressed
		encoding = "gzip"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return Result{State: StateError, Err: err, Message: err.Error()}
	}
	req.Header.Set("Content-Type", contentType)
	if encoding == "gzip" {
		req.Header.Set("Content-Encoding", "gzip")
	}
	req.Header.Set("Accept-Encoding", "gzip, deflate")

	httpClient := c.pool.client(ep.Transport)
	resp, err := httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{State: StateTimeout}
		}
		return Result{State: StateError, Err: err, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return Result{State: StateNoBid, HTTPStatus: resp.StatusCode}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{State: StateError, HTTPStatus: resp.StatusCode, Err: err, Message: err.Error()}
	}
	raw, err = decompressBody(raw, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return Result{State: StateError, HTTPStatus: resp.StatusCode, Err: err, Message: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		return Result{State: StateUnknown, HTTPStatus: resp.StatusCode}
	}

	if len(raw) == 0 {
		return Result{State: stateEmpty200, HTTPStatus: resp.StatusCode}
	}

	decoded, err := DecodeResponse(raw, ep.Encoding)
	if err != nil {
		return Result{State: StateError, HTTPStatus: resp.StatusCode, Err: err, Message: err.Error()}
	}
	result := classifyBody(decoded)
	result.HTTPStatus = resp.StatusCode
	return result
}

// Deadline clamps an auction's tmax into the callout fan-out's wall-clock
// budget, per spec §4.4/§5: clamp(tmax, 50, 700) ms.
func Deadline(tmaxMs int) time.Duration {
	const minMs, maxMs = 50, 700
	if tmaxMs < minMs {
		tmaxMs = minMs
	}
	if tmaxMs > maxMs {
		tmaxMs = maxMs
	}
	return time.Duration(tmaxMs) * time.Millisecond
}

func (s State) String() string {
	switch s {
	case StateBid:
		return "bid"
	case StateNoBid:
		return "nobid"
	case StateTimeout:
		return "timeout"
	case StateError:
		return "error"
	case StateUnknown:
		return "unknown"
	case stateEmpty200:
		return "empty"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
