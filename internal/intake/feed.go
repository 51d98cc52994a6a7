package intake

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"

	"github.com/rcliao/meridian/internal/logger"
	"github.com/rcliao/meridian/internal/model"
	"github.com/rcliao/meridian/internal/textutil"
)

// Feed is one RSS/Atom source.
type Feed struct {
	Source string `json:"source" yaml:"source"`
	URL    string `json:"url" yaml:"url"`
}

// DefaultFeeds are polled when no feeds are configured.
var DefaultFeeds = []Feed{
	{"reuters", "https://news.google.com/rss/search?q=when:24h+allinurl:reuters.com&ceid=US:en&hl=en-US&gl=US"},
	{"ap", "https://news.google.com/rss/search?q=when:24h+allinurl:apnews.com&ceid=US:en&hl=en-US&gl=US"},
	{"bloomberg", "https://news.google.com/rss/search?q=when:24h+allinurl:bloomberg.com&ceid=US:en&hl=en-US&gl=US"},
	{"central_banks", "https://news.google.com/rss/search?q=federal+reserve+OR+FOMC+OR+ECB+OR+central+bank+interest+rate&hl=en-US&gl=US&ceid=US:en"},
	{"commodities", "https://news.google.com/rss/search?q=gold+price+OR+silver+price+OR+copper+price+commodities+metals&hl=en-US&gl=US&ceid=US:en"},
	{"geopolitical", "https://news.google.com/rss/search?q=sanctions+OR+tariffs+OR+trade+war+geopolitical+conflict&hl=en-US&gl=US&ceid=US:en"},
	{"inflation", "https://news.google.com/rss/search?q=inflation+CPI+OR+PPI+economic+data&hl=en-US&gl=US&ceid=US:en"},
}

// FetchOptions configures a FeedFetcher.
type FetchOptions struct {
	Timeout      time.Duration // per feed and per article
	FetchBody    bool          // fill short bodies from the article page
	MinBodyChars int           // bodies shorter than this are filled when FetchBody is set
	PerSecond    float64       // feed request rate, 0 means one per second
}

// FeedFetcher reads RSS/Atom feeds and yields intake payloads.
type FeedFetcher struct {
	parser  *gofeed.Parser
	limiter *rate.Limiter
	opts    FetchOptions
	extract func(url string, timeout time.Duration) (string, error)
}

// NewFeedFetcher creates a fetcher.
func NewFeedFetcher(opts FetchOptions) *FeedFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.PerSecond <= 0 {
		opts.PerSecond = 1
	}
	parser := gofeed.NewParser()
	parser.UserAgent = "MeridianBot/0.1"
	parser.Client = &http.Client{Timeout: opts.Timeout}
	return &FeedFetcher{
		parser:  parser,
		limiter: rate.NewLimiter(rate.Limit(opts.PerSecond), 1),
		opts:    opts,
		extract: extractArticle,
	}
}

// Fetch downloads and parses one feed.
func (f *FeedFetcher) Fetch(ctx context.Context, feed Feed) ([]Payload, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	parsed, err := f.parser.ParseURLWithContext(feed.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", feed.Source, err)
	}
	return f.payloads(parsed, feed.Source), nil
}

// Parse reads a feed document from r.
func (f *FeedFetcher) Parse(r io.Reader, source string) ([]Payload, error) {
	parsed, err := f.parser.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", source, err)
	}
	return f.payloads(parsed, source), nil
}

// FetchAll fetches every feed. An unreachable feed is logged, counted as
// failed and skipped.
func (f *FeedFetcher) FetchAll(ctx context.Context, feeds []Feed) ([]Payload, model.RunReport) {
	var all []Payload
	var report model.RunReport
	for _, feed := range feeds {
		items, err := f.Fetch(ctx, feed)
		if err != nil {
			report.Failed++
			logger.Log.WithField("source", feed.Source).Warnf("feed skipped: %v", err)
			continue
		}
		report.Processed++
		logger.Log.WithField("source", feed.Source).Infof("fetched %d items", len(items))
		all = append(all, items...)
	}
	return all, report
}

func (f *FeedFetcher) payloads(feed *gofeed.Feed, source string) []Payload {
	out := make([]Payload, 0, len(feed.Items))
	for _, item := range feed.Items {
		p := Payload{
			Source:   source,
			Headline: item.Title,
			URL:      strings.TrimSpace(item.Link),
			Body:     StripHTML(longest(item.Content, item.Description)),
		}
		switch {
		case item.PublishedParsed != nil:
			t := item.PublishedParsed.UTC()
			p.PublishedAt = &t
		case item.UpdatedParsed != nil:
			t := item.UpdatedParsed.UTC()
			p.PublishedAt = &t
		}
		if f.opts.FetchBody && p.URL != "" && len(p.Body) < f.opts.MinBodyChars {
			if text, err := f.extract(p.URL, f.opts.Timeout); err != nil {
				logger.Log.WithField("url", p.URL).Debugf("article extraction failed, keeping summary: %v", err)
			} else if text = textutil.CleanBody(text); len(text) > len(p.Body) {
				p.Body = text
			}
		}
		out = append(out, p)
	}
	return out
}

// StripHTML returns the visible text of an HTML fragment, one paragraph
// per block element.
func StripHTML(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return textutil.CleanBody(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return textutil.CleanBody(fragment)
	}
	doc.Find("script, style").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li, blockquote, h1, h2, h3, h4, h5, h6").AppendHtml("\n\n")
	return textutil.CleanBody(doc.Text())
}

func extractArticle(url string, timeout time.Duration) (string, error) {
	article, err := readability.FromURL(url, timeout)
	if err != nil {
		return "", err
	}
	return article.TextContent, nil
}

func longest(a, b string) string {
	if len(b) > len(a) {
		return b
	}
	return a
}
