package rules

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/spells", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.Write([]byte(`{"count":1,"results":[{"index":"fireball","name":"Fireball","url":"/api/spells/fireball"}]}`))
	})
	mux.HandleFunc("/api/spells/fireball", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.Write([]byte(`{
			"name": "Fireball",
			"level": 3,
			"range": "150 feet",
			"casting_time": "1 action",
			"duration": "Instantaneous",
			"desc": ["A bright streak flashes from your pointing finger."]
		}`))
	})
	mux.HandleFunc("/api/monsters/goblin", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.Write([]byte(`{
			"name": "Goblin",
			"type": "humanoid",
			"armor_class": [{"type": "armor", "value": 15}],
			"hit_points": 7,
			"challenge_rating": 0.25,
			"speed": {"walk": "30 ft."}
		}`))
	})
	mux.HandleFunc("/api/monsters", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		switch r.URL.Query().Get("challenge_rating") {
		case "0.25", "0.125,0.25,0.5":
			w.Write([]byte(`{"count":1,"results":[{"index":"goblin","name":"Goblin","url":"/api/monsters/goblin"}]}`))
		default:
			w.Write([]byte(`{"count":0,"results":[]}`))
		}
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestSearch(t *testing.T) {
	var hits int32
	server := newTestServer(t, &hits)
	client := NewClient(zerolog.Nop(), WithBaseURL(server.URL))

	t.Run("should list matching references", func(t *testing.T) {
		refs, err := client.Search(context.Background(), "spells", "fire")
		require.NoError(t, err)
		require.Len(t, refs, 1)
		assert.Equal(t, "Fireball", refs[0].Name)
	})

	t.Run("should reject unknown categories", func(t *testing.T) {
		_, err := client.Search(context.Background(), "vehicles", "cart")
		assert.Error(t, err)
	})
}

func TestLookup(t *testing.T) {
	var hits int32
	server := newTestServer(t, &hits)
	client := NewClient(zerolog.Nop(), WithBaseURL(server.URL))

	t.Run("should format a spell", func(t *testing.T) {
		out, err := client.Lookup(context.Background(), "spells", "Fireball")
		require.NoError(t, err)

		assert.Contains(t, out, "**Fireball**")
		assert.Contains(t, out, "Level: 3")
		assert.Contains(t, out, "Range: 150 feet")
		assert.Contains(t, out, "bright streak")
	})

	t.Run("should format a monster stat block", func(t *testing.T) {
		out, err := client.Lookup(context.Background(), "monsters", "goblin")
		require.NoError(t, err)

		assert.Contains(t, out, "**Goblin**")
		assert.Contains(t, out, "AC: 15")
		assert.Contains(t, out, "HP: 7")
		assert.Contains(t, out, "CR: 0.25")
		assert.Contains(t, out, "walk 30 ft.")
	})

	t.Run("should report missing entries", func(t *testing.T) {
		_, err := client.Lookup(context.Background(), "spells", "made-up-spell")
		assert.Error(t, err)
	})
}

func TestCache(t *testing.T) {
	var hits int32
	server := newTestServer(t, &hits)

	t.Run("should serve repeats from cache", func(t *testing.T) {
		client := NewClient(zerolog.Nop(), WithBaseURL(server.URL))
		_, err := client.Lookup(context.Background(), "spells", "fireball")
		require.NoError(t, err)
		_, err = client.Lookup(context.Background(), "spells", "fireball")
		require.NoError(t, err)

		assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	})

	t.Run("should refetch after expiry", func(t *testing.T) {
		atomic.StoreInt32(&hits, 0)
		client := NewClient(zerolog.Nop(), WithBaseURL(server.URL), WithCacheTTL(time.Nanosecond))

		_, err := client.Lookup(context.Background(), "spells", "fireball")
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
		_, err = client.Lookup(context.Background(), "spells", "fireball")
		require.NoError(t, err)

		assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	})
}

func TestMonstersByCR(t *testing.T) {
	var hits int32
	server := newTestServer(t, &hits)
	client := NewClient(zerolog.Nop(), WithBaseURL(server.URL))

	t.Run("should filter a single rating", func(t *testing.T) {
		refs, err := client.MonstersByCR(context.Background(), 0.25, 0.25)
		require.NoError(t, err)
		require.Len(t, refs, 1)
		assert.Equal(t, "Goblin", refs[0].Name)
	})

	t.Run("should expand a range to the discrete CR steps", func(t *testing.T) {
		refs, err := client.MonstersByCR(context.Background(), 0.125, 0.5)
		require.NoError(t, err)
		require.Len(t, refs, 1)
	})

	t.Run("should accept swapped bounds", func(t *testing.T) {
		refs, err := client.MonstersByCR(context.Background(), 0.5, 0.125)
		require.NoError(t, err)
		require.Len(t, refs, 1)
	})
}
