package arxiv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"PaperDigest/internal/ratelimit"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/2508.01234v2</id>
    <title>Sparse  Attention
      for Long Documents</title>
    <summary>We propose a sparse attention mechanism.</summary>
    <published>2026-08-28T17:59:02Z</published>
    <author><name>Ada Lovelace</name></author>
    <author><name>Alan Turing</name></author>
    <category term="cs.LG"/>
    <category term="cs.CL"/>
    <link href="http://arxiv.org/abs/2508.01234v2" rel="alternate" type="text/html"/>
    <link href="http://arxiv.org/pdf/2508.01234v2" rel="related" title="pdf" type="application/pdf"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2508.01234v1</id>
    <title>Sparse Attention for Long Documents</title>
    <summary>Earlier revision of the same paper.</summary>
    <published>2026-08-20T09:00:00Z</published>
    <author><name>Ada Lovelace</name></author>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2508.09999v1</id>
    <title>Paper Without Abstract</title>
    <summary>  </summary>
    <published>2026-08-28T12:00:00Z</published>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2508.07777v1</id>
    <title>Second Valid Paper</title>
    <summary>Another abstract.</summary>
    <published>2026-08-27T08:30:00Z</published>
    <category term="cs.AI"/>
  </entry>
</feed>`

func newTestClient(serverURL string) *Client {
	return New(serverURL, nil, ratelimit.New(0, 0, 0), nil)
}

func TestBuildQueryURL(t *testing.T) {
	t.Parallel()

	u, err := buildQueryURL("http://export.arxiv.org/api/query",
		`all:"transformer models"`, 25, 50, "submittedDate", "descending")
	if err != nil {
		t.Fatalf("buildQueryURL returned error: %v", err)
	}

	parsed, err := url.Parse(u)
	if err != nil {
		t.Fatalf("parse result: %v", err)
	}

	q := parsed.Query()
	if q.Get("search_query") != `all:"transformer models"` {
		t.Fatalf("unexpected search_query: %s", q.Get("search_query"))
	}
	if q.Get("max_results") != "25" {
		t.Fatalf("expected max_results=25, got %s", q.Get("max_results"))
	}
	if q.Get("start") != "50" {
		t.Fatalf("expected start=50, got %s", q.Get("start"))
	}
	if q.Get("sortBy") != "submittedDate" || q.Get("sortOrder") != "descending" {
		t.Fatalf("unexpected sort params: %s/%s", q.Get("sortBy"), q.Get("sortOrder"))
	}
}

func TestNormalizeID(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"http://arxiv.org/abs/2508.01234v2": "2508.01234",
		"http://arxiv.org/abs/2508.01234":   "2508.01234",
		"2508.01234v11":                     "2508.01234",
		"  2508.01234v1 ":                   "2508.01234",
	}

	for in, want := range cases {
		if got := NormalizeID(in); got != want {
			t.Fatalf("NormalizeID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSearchParsesAndDeduplicates(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("search_query") == "" {
			t.Errorf("missing search_query parameter")
		}
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer server.Close()

	papers := newTestClient(server.URL).Search(context.Background(),
		"cat:cs.LG", 25, 0, "submittedDate", "descending")

	// Two revisions collapse to one natural key; the abstract-less entry
	// drops; two papers remain.
	if len(papers) != 2 {
		t.Fatalf("expected 2 papers, got %d", len(papers))
	}

	first := papers[0]
	if first.NaturalKey != "2508.01234" {
		t.Fatalf("unexpected natural key: %s", first.NaturalKey)
	}
	if first.Title != "Sparse Attention for Long Documents" {
		t.Fatalf("whitespace not collapsed in title: %q", first.Title)
	}
	if first.Abstract != "We propose a sparse attention mechanism." {
		t.Fatalf("unexpected abstract: %q", first.Abstract)
	}
	if len(first.Authors) != 2 || first.Authors[0] != "Ada Lovelace" {
		t.Fatalf("unexpected authors: %v", first.Authors)
	}
	if len(first.Categories) != 2 || first.Categories[0] != "cs.LG" {
		t.Fatalf("unexpected categories: %v", first.Categories)
	}
	if first.PDFURL != "http://arxiv.org/pdf/2508.01234v2" {
		t.Fatalf("unexpected pdf url: %s", first.PDFURL)
	}

	want := time.Date(2026, time.August, 28, 17, 59, 2, 0, time.UTC)
	if !first.PublishedAt.Equal(want) {
		t.Fatalf("unexpected published time: %v", first.PublishedAt)
	}

	if papers[1].NaturalKey != "2508.07777" {
		t.Fatalf("unexpected second key: %s", papers[1].NaturalKey)
	}
}

func TestSearchDegradesToEmptyOnServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	papers := newTestClient(server.URL).Search(context.Background(), "cat:cs.LG", 25, 0, "", "")
	if len(papers) != 0 {
		t.Fatalf("expected empty result on server error, got %d papers", len(papers))
	}
}

func TestSearchDegradesToEmptyOnUnreachableHost(t *testing.T) {
	t.Parallel()

	papers := newTestClient("http://127.0.0.1:1").Search(context.Background(), "cat:cs.LG", 25, 0, "", "")
	if len(papers) != 0 {
		t.Fatalf("expected empty result on transport failure, got %d papers", len(papers))
	}
}

func TestSearchDegradesToEmptyOnMalformedFeed(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<feed><entry>"))
	}))
	defer server.Close()

	papers := newTestClient(server.URL).Search(context.Background(), "cat:cs.LG", 25, 0, "", "")
	if len(papers) != 0 {
		t.Fatalf("expected empty result on malformed feed, got %d papers", len(papers))
	}
}
