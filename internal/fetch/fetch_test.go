package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestFetcher(t *testing.T) *Fetcher {
	return New(zaptest.NewLogger(t))
}

func TestFetch_JSONTier(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/r/golang/comments/1/post.json", r.URL.Path)
		var comments []string
		for i := 0; i < 7; i++ {
			comments = append(comments, fmt.Sprintf(`{"kind":"t1","data":{"body":"comment %d"}}`, i))
		}
		fmt.Fprintf(w, `[
			{"data":{"children":[{"data":{"title":"Generics","selftext":"Body text"}}]}},
			{"data":{"children":[%s,{"kind":"more","data":{"count":10}}]}}
		]`, strings.Join(comments, ","))
	}))
	defer ts.Close()

	got := newTestFetcher(t).Fetch(context.Background(), ts.URL+"/r/golang/comments/1/post/")

	want := "Title: Generics\n\nPost Body:\nBody text\n\nTop Comments:\n" +
		"comment 0\n---\ncomment 1\n---\ncomment 2\n---\ncomment 3\n---\ncomment 4"
	assert.Equal(t, want, got)
}

func TestFetch_MoreEntriesAreNotComments(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"data":{"children":[{"data":{"title":"T","selftext":""}}]}},
			{"data":{"children":[{"kind":"more","data":{"count":3}},{"data":{"body":"only"}}]}}
		]`)
	}))
	defer ts.Close()

	got := newTestFetcher(t).Fetch(context.Background(), ts.URL+"/thread")
	assert.True(t, strings.HasSuffix(got, "Top Comments:\nonly"), got)
}

// htmlServer answers .json requests with 403 so the HTML tier runs.
func htmlServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".json") {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		assert.Contains(t, r.UserAgent(), "Safari")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
}

func TestFetch_HTMLShreddit(t *testing.T) {
	ts := htmlServer(t, http.StatusOK, `<html><head>
		<meta property="og:description" content="og snippet">
		</head><body><shreddit-post post-title="New layout title"></shreddit-post></body></html>`)
	defer ts.Close()

	got := newTestFetcher(t).Fetch(context.Background(), ts.URL+"/thread")
	assert.Equal(t, "Title: New layout title\n\nDescription/Snippet:\nog snippet", got)
}

func TestFetch_HTMLParagraphs(t *testing.T) {
	long := strings.Repeat("a", 60)
	ts := htmlServer(t, http.StatusOK, `<html><head><title> Old Reddit </title>
		<meta name="description" content="meta desc"></head>
		<body><p>short</p><p>`+long+`</p><p>  `+long+`b  </p></body></html>`)
	defer ts.Close()

	got := newTestFetcher(t).Fetch(context.Background(), ts.URL+"/thread")
	want := "Title: Old Reddit\n\nDescription:\nmeta desc\n\nExtracted Text:\n" + long + "\n" + long + "b"
	assert.Equal(t, want, got)
}

func TestFetch_HTMLTextCapped(t *testing.T) {
	para := "<p>" + strings.Repeat("x", 999) + "</p>"
	ts := htmlServer(t, http.StatusOK, "<html><head><title>t</title></head><body>"+strings.Repeat(para, 10)+"</body></html>")
	defer ts.Close()

	got := newTestFetcher(t).Fetch(context.Background(), ts.URL+"/thread")
	_, text, ok := strings.Cut(got, "Extracted Text:\n")
	require.True(t, ok)
	assert.Len(t, text, maxExtracted)
}

func TestFetch_HTMLNon200(t *testing.T) {
	ts := htmlServer(t, http.StatusNotFound, "gone")
	defer ts.Close()

	got := newTestFetcher(t).Fetch(context.Background(), ts.URL+"/thread")
	assert.Equal(t, "Error: Failed to fetch content (Status: 404)", got)
}

func TestFetch_Unreachable(t *testing.T) {
	got := newTestFetcher(t).Fetch(context.Background(), "http://127.0.0.1:1/thread")
	assert.True(t, strings.HasPrefix(got, "Error fetching content:"), got)
}
