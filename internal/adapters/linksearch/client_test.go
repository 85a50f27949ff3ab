package linksearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindLinkSkipsBlockedHosts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "key", r.URL.Query().Get("key"))
		require.Equal(t, "cx1", r.URL.Query().Get("cx"))
		require.Equal(t, "Use errgroup go", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`{"items":[
			{"title":"pin","link":"https://www.pinterest.com/x","displayLink":"pinterest.com"},
			{"title":" errgroup ","link":"https://pkg.go.dev/golang.org/x/sync/errgroup","snippet":"Package errgroup","displayLink":"pkg.go.dev"}
		]}`))
	}))
	defer srv.Close()

	link, err := NewClient("key", "cx1", srv.URL).FindLink(context.Background(), "Use errgroup", "go")
	require.NoError(t, err)
	require.NotNil(t, link)
	require.Equal(t, "https://pkg.go.dev/golang.org/x/sync/errgroup", link.URL)
	require.Equal(t, "errgroup", link.Title)
	require.Equal(t, "pkg.go.dev", link.Source)
}

func TestFindLinkNoResultsAndErrors(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()
	client := NewClient("key", "cx", srv.URL)

	link, err := client.FindLink(context.Background(), "x", "go")
	require.NoError(t, err)
	require.Nil(t, link)

	status = http.StatusTooManyRequests
	_, err = client.FindLink(context.Background(), "x", "go")
	require.ErrorContains(t, err, "429")

	link, err = NewClient("", "", srv.URL).FindLink(context.Background(), "x", "go")
	require.NoError(t, err)
	require.Nil(t, link)
}
