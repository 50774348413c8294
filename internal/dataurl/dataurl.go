// Package dataurl builds and parses the typed query-parameter URLs used to
// round-trip billing notifications through the demand-facing event domain:
// assembled once (mutable), finalized (immutable), rendered to a string, and
// later reparsed back into typed fields on the receiving side.
package dataurl

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DataUrl is a builder while mutable and a parser once Finalize has run.
// add_* calls are only valid before finalization; URL() is only valid after.
type DataUrl struct {
	base      string
	values    url.Values
	finalized bool
}

// New starts a builder pointed at base (scheme+host+path, no query string).
func New(base string) *DataUrl {
	return &DataUrl{base: strings.TrimSuffix(base, "?"), values: url.Values{}}
}

// Parse reconstructs a DataUrl from a previously rendered URL string. The
// result is already finalized — the fields it carries were fixed when it
// was first built, and the query-param round trip recovers them exactly.
func Parse(raw string) (*DataUrl, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("dataurl: parse: %w", err)
	}
	base := u.Scheme + "://" + u.Host + u.Path
	return &DataUrl{base: base, values: u.Query(), finalized: true}, nil
}

func (d *DataUrl) addString(key, value string) error {
	if d.finalized {
		return fmt.Errorf("dataurl: add_%s: already finalized", key)
	}
	d.values.Set(key, value)
	return nil
}

// AddString adds a string-valued field.
func (d *DataUrl) AddString(key, value string) error { return d.addString(key, value) }

// AddInt adds an integer-valued field.
func (d *DataUrl) AddInt(key string, value int64) error {
	return d.addString(key, strconv.FormatInt(value, 10))
}

// AddFloat adds a float-valued field, rendered with full precision so the
// round trip is exact.
func (d *DataUrl) AddFloat(key string, value float64) error {
	return d.addString(key, strconv.FormatFloat(value, 'f', -1, 64))
}

// Finalize transitions the builder to immutable. Idempotent.
func (d *DataUrl) Finalize() {
	d.finalized = true
}

// Finalized reports whether add_* is now rejected and URL is now permitted.
func (d *DataUrl) Finalized() bool { return d.finalized }

// URL renders the finalized DataUrl. secure selects https vs http when base
// has no explicit scheme; if base already carries a scheme it is kept as-is.
func (d *DataUrl) URL(secure bool) (string, error) {
	if !d.finalized {
		return "", fmt.Errorf("dataurl: url: not finalized")
	}
	base := d.base
	if !strings.Contains(base, "://") {
		scheme := "http"
		if secure {
			scheme = "https"
		}
		base = scheme + "://" + base
	}
	return base + "?" + d.values.Encode(), nil
}

// GetRequiredString returns a required field, erroring by name if absent.
func (d *DataUrl) GetRequiredString(key string) (string, error) {
	v := d.values.Get(key)
	if v == "" {
		return "", fmt.Errorf("dataurl: missing required field %q", key)
	}
	return v, nil
}

// GetString returns an optional field, "" if absent.
func (d *DataUrl) GetString(key string) string {
	return d.values.Get(key)
}

// GetRequiredInt parses a required integer field.
func (d *DataUrl) GetRequiredInt(key string) (int64, error) {
	raw, err := d.GetRequiredString(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("dataurl: field %q is not an integer: %w", key, err)
	}
	return n, nil
}

// GetRequiredFloat parses a required float field.
func (d *DataUrl) GetRequiredFloat(key string) (float64, error) {
	raw, err := d.GetRequiredString(key)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("dataurl: field %q is not a float: %w", key, err)
	}
	return f, nil
}
