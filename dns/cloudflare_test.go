package dns

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/cloudflare/cloudflare-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecord struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
	Proxied *bool  `json:"proxied,omitempty"`
}

// fakeZone is an in-memory stand-in for the Cloudflare DNS records API.
type fakeZone struct {
	mu      sync.Mutex
	zone    string
	records []fakeRecord
	creates int
	updates int
	fail    bool
}

func (z *fakeZone) reply(w http.ResponseWriter, status int, result any, extra map[string]any) {
	body := map[string]any{
		"success":  status < 300,
		"errors":   []any{},
		"messages": []any{},
		"result":   result,
	}
	if status >= 300 {
		body["errors"] = []any{map[string]any{"code": 9109, "message": "Invalid access token"}}
	}
	for k, v := range extra {
		body[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (z *fakeZone) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	prefix := "/zones/" + z.zone + "/dns_records"

	mux.HandleFunc(prefix, func(w http.ResponseWriter, r *http.Request) {
		z.mu.Lock()
		defer z.mu.Unlock()
		if z.fail {
			z.reply(w, http.StatusBadRequest, nil, nil)
			return
		}
		switch r.Method {
		case http.MethodGet:
			var out []fakeRecord
			for _, rec := range z.records {
				if rec.Type == r.URL.Query().Get("type") && rec.Name == r.URL.Query().Get("name") {
					out = append(out, rec)
				}
			}
			z.reply(w, http.StatusOK, out, map[string]any{"result_info": map[string]any{
				"page": 1, "per_page": 100, "count": len(out), "total_count": len(out), "total_pages": 1,
			}})
		case http.MethodPost:
			var rec fakeRecord
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&rec))
			rec.ID = fmt.Sprintf("rec%d", len(z.records)+1)
			z.records = append(z.records, rec)
			z.creates++
			z.reply(w, http.StatusOK, rec, nil)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc(prefix+"/", func(w http.ResponseWriter, r *http.Request) {
		z.mu.Lock()
		defer z.mu.Unlock()
		id := r.URL.Path[len(prefix)+1:]
		for i := range z.records {
			if z.records[i].ID != id {
				continue
			}
			var upd fakeRecord
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&upd))
			upd.ID = id
			z.records[i] = upd
			z.updates++
			z.reply(w, http.StatusOK, upd, nil)
			return
		}
		z.reply(w, http.StatusNotFound, nil, nil)
	})
	return mux
}

func newTestProvider(t *testing.T, z *fakeZone) *Cloudflare {
	t.Helper()
	srv := httptest.NewServer(z.handler(t))
	t.Cleanup(srv.Close)

	p, err := NewCloudflare("token", z.zone, 1, false, cloudflare.BaseURL(srv.URL))
	require.NoError(t, err)
	return p
}

func TestUpsertCreates(t *testing.T) {
	z := &fakeZone{zone: "zone1"}
	p := newTestProvider(t, z)

	changed, err := p.Upsert(context.Background(), "AAAA", "home.example.com", "2001:db8::1")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 1, z.creates)

	require.Len(t, z.records, 1)
	rec := z.records[0]
	assert.Equal(t, "AAAA", rec.Type)
	assert.Equal(t, "home.example.com", rec.Name)
	assert.Equal(t, "2001:db8::1", rec.Content)
	assert.Equal(t, 1, rec.TTL)
	require.NotNil(t, rec.Proxied)
	assert.False(t, *rec.Proxied)
}

func TestUpsertUpdates(t *testing.T) {
	z := &fakeZone{zone: "zone1", records: []fakeRecord{
		{ID: "rec1", Type: "AAAA", Name: "home.example.com", Content: "2001:db8::1", TTL: 1},
	}}
	p := newTestProvider(t, z)

	changed, err := p.Upsert(context.Background(), "AAAA", "home.example.com", "2001:db8::2")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 0, z.creates)
	assert.Equal(t, 1, z.updates)
	assert.Equal(t, "2001:db8::2", z.records[0].Content)
}

func TestUpsertUnchanged(t *testing.T) {
	z := &fakeZone{zone: "zone1", records: []fakeRecord{
		{ID: "rec1", Type: "A", Name: "home.example.com", Content: "203.0.113.7", TTL: 1},
	}}
	p := newTestProvider(t, z)

	changed, err := p.Upsert(context.Background(), "A", "home.example.com", "203.0.113.7")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 0, z.creates+z.updates)
}

func TestUpsertListError(t *testing.T) {
	z := &fakeZone{zone: "zone1", fail: true}
	p := newTestProvider(t, z)

	changed, err := p.Upsert(context.Background(), "AAAA", "home.example.com", "2001:db8::1")
	assert.Error(t, err)
	assert.False(t, changed)
}
