// Package httpcache is a caching http.RoundTripper backed by a local sqlite
// database. Upstream responses for historical dates never change, so re-runs
// of a backfill can replay them without hammering the API.
package httpcache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Transport implements http.RoundTripper. Only successful GET responses are
// cached; everything else goes straight through.
type Transport struct {
	// Underlying is used on a cache miss; nil means http.DefaultTransport.
	Underlying http.RoundTripper

	db *sql.DB
}

// New opens (or creates) the cache database at the given sqlite DSN.
func New(ctx context.Context, db *sql.DB, underlying http.RoundTripper) (*Transport, error) {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS Response(
			Key       TEXT NOT NULL PRIMARY KEY,
			URL       TEXT NOT NULL,
			Status    INT NOT NULL,
			Body      BLOB NOT NULL,
			FetchedAt DATETIME NOT NULL
		);
		`); err != nil {
		return nil, fmt.Errorf("failed to create Response table: %v", err)
	}
	return &Transport{Underlying: underlying, db: db}, nil
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	rt := t.Underlying
	if rt == nil {
		rt = http.DefaultTransport
	}
	if req.Method != http.MethodGet {
		return rt.RoundTrip(req)
	}

	key := cacheKey(req.Method, req.URL.String())
	if rsp, ok := t.load(req, key); ok {
		return rsp, nil
	}

	rsp, err := rt.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if rsp.StatusCode != http.StatusOK {
		return rsp, nil
	}

	body, err := io.ReadAll(rsp.Body)
	rsp.Body.Close()
	if err != nil {
		return nil, err
	}
	if err := t.store(req.Context(), key, req.URL.String(), rsp.StatusCode, body); err != nil {
		return nil, err
	}

	rsp.Body = io.NopCloser(bytes.NewReader(body))
	rsp.ContentLength = int64(len(body))
	return rsp, nil
}

func (t *Transport) load(req *http.Request, key string) (*http.Response, bool) {
	row := t.db.QueryRowContext(req.Context(), `SELECT Status, Body FROM Response WHERE Key = ?`, key)
	var status int
	var body []byte
	if err := row.Scan(&status, &body); err != nil {
		return nil, false
	}
	return &http.Response{
		Status:        http.StatusText(status),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		Header:        http.Header{},
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}, true
}

func (t *Transport) store(ctx context.Context, key, url string, status int, body []byte) error {
	_, err := t.db.ExecContext(ctx, `INSERT OR REPLACE INTO Response VALUES(?, ?, ?, ?, ?)`, key, url, status, body, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert/update Response: %v", err)
	}
	return nil
}

func cacheKey(method, url string) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte(url))
	return hex.EncodeToString(h.Sum(nil))
}
