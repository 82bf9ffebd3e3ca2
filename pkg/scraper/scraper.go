// Package scraper harvests meeting documents from a municipal agenda site.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/xhad/minutemate/internal/models"
	"github.com/xhad/minutemate/pkg/logger"
)

var ErrTooLarge = errors.New("document exceeds size limit")

type ScraperConfig struct {
	BaseURL           string
	MaxDepth          int
	RateLimit         float64 // requests per second
	IgnorePatterns    []string
	AllowedExtensions []string // page extensions worth following; "" is an extensionless path
	Timeout           time.Duration
	MaxBytes          int64
	OnProgress        func(url string)
}

type Scraper struct {
	config   ScraperConfig
	client   *http.Client
	visited  map[string]bool
	found    map[string]bool
	limiter  *rate.Limiter
	baseHost string
	log      *logger.Logger
}

func NewWithConfig(config ScraperConfig, log *logger.Logger) (*Scraper, error) {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxDepth < 0 {
		config.MaxDepth = 0
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if config.MaxBytes == 0 {
		config.MaxBytes = 100 << 20
	}
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = []string{".html", ".htm", ".aspx", ".php", ""}
	}
	if log == nil {
		log = logger.Nop()
	}

	parsedURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, err
	}
	if parsedURL.Host == "" {
		return nil, fmt.Errorf("base url %q has no host", config.BaseURL)
	}

	return &Scraper{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		visited:  make(map[string]bool),
		found:    make(map[string]bool),
		limiter:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		baseHost: parsedURL.Host,
		log:      log.With("component", "scraper"),
	}, nil
}

// Scrape crawls from the base URL and returns every meeting document link
// found, in discovery order. Only the start page must load; failures on
// deeper pages are logged and skipped.
func (s *Scraper) Scrape(ctx context.Context) ([]models.Document, error) {
	var documents []models.Document
	if err := s.scrapeRecursive(ctx, s.config.BaseURL, 0, &documents); err != nil {
		return nil, err
	}
	return documents, nil
}

// Fetch downloads a document's bytes.
func (s *Scraper) Fetch(ctx context.Context, doc models.Document) ([]byte, error) {
	resp, err := s.get(ctx, doc.URL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.config.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", doc.URL, err)
	}
	if int64(len(data)) > s.config.MaxBytes {
		return nil, fmt.Errorf("%s: %w", doc.URL, ErrTooLarge)
	}
	return data, nil
}

func (s *Scraper) get(ctx context.Context, urlStr string) (*http.Response, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, urlStr)
	}
	return resp, nil
}

func (s *Scraper) sameHost(u *url.URL) bool {
	return u.Host == s.baseHost
}

func (s *Scraper) ignored(urlStr string) bool {
	for _, pattern := range s.config.IgnorePatterns {
		if strings.Contains(urlStr, pattern) {
			return true
		}
	}
	return false
}

func (s *Scraper) shouldProcessURL(urlStr string) bool {
	parsedURL, err := url.Parse(urlStr)
	if err != nil || !s.sameHost(parsedURL) || s.ignored(urlStr) {
		return false
	}
	if isDocumentURL(parsedURL) {
		return false
	}
	ext := strings.ToLower(path.Ext(path.Base(parsedURL.Path)))
	if strings.HasSuffix(parsedURL.Path, "/") {
		ext = ""
	}
	for _, allowed := range s.config.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// isDocumentURL matches direct PDF links and agenda-center file viewers.
func isDocumentURL(u *url.URL) bool {
	p := strings.ToLower(u.Path)
	return strings.HasSuffix(p, ".pdf") || strings.Contains(p, "/viewfile/")
}

func (s *Scraper) scrapeRecursive(ctx context.Context, urlStr string, depth int, documents *[]models.Document) error {
	if depth > s.config.MaxDepth || s.visited[urlStr] {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.shouldProcessURL(urlStr) {
		return nil
	}

	s.visited[urlStr] = true
	if s.config.OnProgress != nil {
		s.config.OnProgress(urlStr)
	}

	resp, err := s.get(ctx, urlStr)
	if err != nil {
		return err
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	resp.Body.Close()
	if err != nil {
		return err
	}

	base, err := url.Parse(urlStr)
	if err != nil {
		return err
	}

	var pages []string
	doc.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
		href, _ := selection.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			s.log.Debug("skipping unparsable link", "href", href, "error", err)
			return
		}
		absoluteURL := base.ResolveReference(ref)
		absoluteURL.Fragment, absoluteURL.RawFragment = "", ""
		link := absoluteURL.String()

		if !isDocumentURL(absoluteURL) {
			pages = append(pages, link)
			return
		}
		if !s.sameHost(absoluteURL) || s.ignored(link) || s.found[link] {
			return
		}
		s.found[link] = true
		*documents = append(*documents, s.describe(link, selection, depth))
	})

	for _, page := range pages {
		if err := s.scrapeRecursive(ctx, page, depth+1, documents); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn("error scraping page", "url", page, "error", err)
		}
	}
	return nil
}

// describe builds a document from a link, inferring its date and type
// from the anchor text, then the surrounding row, then the URL itself.
func (s *Scraper) describe(link string, selection *goquery.Selection, depth int) models.Document {
	title := cleanText(selection.Text())
	if title == "" {
		title, _ = selection.Attr("title")
		title = cleanText(title)
	}
	row := rowText(selection.Closest("tr, li"))
	unescaped, _ := url.PathUnescape(link)

	candidates := []string{title, row, unescaped}
	doc := models.Document{
		URL:   link,
		Title: title,
		Metadata: map[string]interface{}{
			"depth": depth,
			"time":  time.Now(),
		},
	}
	for _, c := range candidates {
		if d, ok := InferDate(c); ok {
			doc.MeetingDate = d
			break
		}
	}
	for _, c := range candidates {
		if ft, ok := InferFileType(c); ok {
			doc.FileType = ft
			break
		}
	}
	return doc
}

// rowText joins the row's cells with spaces so adjacent cells do not run
// together.
func rowText(row *goquery.Selection) string {
	return cleanText(strings.Join(row.Contents().Map(func(_ int, c *goquery.Selection) string {
		return c.Text()
	}), " "))
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
