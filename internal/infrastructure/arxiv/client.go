package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/ports"
	"PaperDigest/internal/ratelimit"
)

var revisionSuffix = regexp.MustCompile(`v\d+$`)

// Client queries the arXiv API and parses its Atom feed into papers.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *ratelimit.Limiter
	logger  *slog.Logger
}

var _ ports.DiscoveryClient = (*Client)(nil)

// New wires an HTTP client and the discovery rate limiter.
func New(baseURL string, client *http.Client, limiter *ratelimit.Limiter, log *slog.Logger) *Client {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Client{baseURL: baseURL, http: client, limiter: limiter, logger: log}
}

// Search issues one catalog query and returns parsed, deduplicated papers.
// Transport failures and non-200 responses degrade to an empty slice so that
// one broken topic never aborts a user's other topics.
func (c *Client) Search(ctx context.Context, query string, maxResults, start int, sortBy, sortOrder string) []domain.Paper {
	if c.limiter != nil {
		if err := c.limiter.AwaitSlot(ctx); err != nil {
			return nil
		}
	}

	feed, err := c.fetchFeed(ctx, query, maxResults, start, sortBy, sortOrder)
	if err != nil {
		c.warn("arxiv search failed", "query", query, "error", err)
		return nil
	}

	papers := make([]domain.Paper, 0, len(feed.Entries))
	seen := map[string]struct{}{}
	for _, entry := range feed.Entries {
		paper, ok := entry.toPaper()
		if !ok {
			continue
		}
		if _, dup := seen[paper.NaturalKey]; dup {
			continue
		}
		seen[paper.NaturalKey] = struct{}{}
		papers = append(papers, paper)
	}

	return papers
}

func (c *Client) fetchFeed(ctx context.Context, query string, maxResults, start int, sortBy, sortOrder string) (*atomFeed, error) {
	reqURL, err := buildQueryURL(c.baseURL, query, maxResults, start, sortBy, sortOrder)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "PaperDigest/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv returned %s", resp.Status)
	}

	var feed atomFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	return &feed, nil
}

func buildQueryURL(base, query string, maxResults, start int, sortBy, sortOrder string) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base url %s: %w", base, err)
	}

	q := parsed.Query()
	q.Set("search_query", query)
	q.Set("max_results", strconv.Itoa(maxResults))
	q.Set("start", strconv.Itoa(start))
	if sortBy != "" {
		q.Set("sortBy", sortBy)
	}
	if sortOrder != "" {
		q.Set("sortOrder", sortOrder)
	}
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Categories []struct {
		Term string `xml:"term,attr"`
	} `xml:"category"`
	Links []struct {
		Href  string `xml:"href,attr"`
		Title string `xml:"title,attr"`
		Type  string `xml:"type,attr"`
	} `xml:"link"`
}

// toPaper converts an Atom entry; entries missing id, title, or abstract are
// dropped individually rather than failing the whole page.
func (e atomEntry) toPaper() (domain.Paper, bool) {
	key := NormalizeID(e.ID)
	title := strings.TrimSpace(collapseWhitespace(e.Title))
	abstract := strings.TrimSpace(collapseWhitespace(e.Summary))
	if key == "" || title == "" || abstract == "" {
		return domain.Paper{}, false
	}

	paper := domain.Paper{
		NaturalKey: key,
		Title:      title,
		Abstract:   abstract,
	}

	for _, a := range e.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			paper.Authors = append(paper.Authors, name)
		}
	}
	for _, c := range e.Categories {
		if c.Term != "" {
			paper.Categories = append(paper.Categories, c.Term)
		}
	}
	for _, l := range e.Links {
		if l.Title == "pdf" || l.Type == "application/pdf" {
			paper.PDFURL = l.Href
			break
		}
	}
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(e.Published)); err == nil {
		paper.PublishedAt = t.UTC()
	}

	return paper, true
}

// NormalizeID reduces an Atom entry id to the natural key: the last path
// segment with any trailing revision marker (v1, v2, ...) stripped, so
// revisions of the same paper collapse to one record.
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	if idx := strings.LastIndex(id, "/"); idx >= 0 {
		id = id[idx+1:]
	}
	return revisionSuffix.ReplaceAllString(id, "")
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (c *Client) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
