package unsplash

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestFindImage(t *testing.T) {
	var tracked atomic.Int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Client-ID key", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/search/photos":
			require.Equal(t, "go programming", r.URL.Query().Get("query"))
			_, _ = w.Write([]byte(`{"results":[{"id":"p1","color":"#0c0c0c","alt_description":"laptop","urls":{"regular":"https://img/r.jpg","small":"https://img/s.jpg"},"links":{"download_location":"` + srv.URL + `/photos/p1/download"},"user":{"name":"Ann","links":{"html":"https://unsplash.com/@ann"}}}]}`))
		case "/photos/p1/download":
			tracked.Add(1)
			_, _ = w.Write([]byte(`{}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	img, err := NewClient("key", srv.URL, zerolog.Nop()).FindImage(context.Background(), "go")
	require.NoError(t, err)
	require.NotNil(t, img)
	require.Equal(t, "https://img/r.jpg", img.URL)
	require.Equal(t, "Ann", img.AuthorName)
	require.Equal(t, "https://unsplash.com/@ann"+utmSuffix, img.AuthorURL)
	require.Equal(t, "p1", img.ProviderID)
	require.Eventually(t, func() bool { return tracked.Load() == 1 }, time.Second, 10*time.Millisecond)
}

func TestFindImageEmptyAndErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("query") == "rust programming" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte("Rate Limit Exceeded"))
			return
		}
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()
	client := NewClient("key", srv.URL, zerolog.Nop())

	img, err := client.FindImage(context.Background(), "go")
	require.NoError(t, err)
	require.Nil(t, img)

	_, err = client.FindImage(context.Background(), "rust")
	require.ErrorContains(t, err, "403")

	img, err = NewClient("", srv.URL, zerolog.Nop()).FindImage(context.Background(), "go")
	require.NoError(t, err)
	require.Nil(t, img)
}
