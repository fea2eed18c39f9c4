// Package web provides the web_content_fetcher tool
package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/net/html"

	"github.com/AltairaLabs/mcp-gateway/internal/coordinator/config"
	"github.com/AltairaLabs/mcp-gateway/internal/protocol"
	"github.com/AltairaLabs/mcp-gateway/internal/tools"
)

const userAgent = "mcp-gateway/web_content_fetcher"

// Fetcher implements the web_content_fetcher tool
type Fetcher struct {
	client       *http.Client
	maxBytes     int64
	allowedHosts []string
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithHTTPClient replaces the default client
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithAllowedHosts restricts fetches to the given hosts. An empty list
// allows any host.
func WithAllowedHosts(hosts ...string) Option {
	return func(f *Fetcher) {
		f.allowedHosts = make([]string, 0, len(hosts))
		for _, h := range hosts {
			f.allowedHosts = append(f.allowedHosts, strings.ToLower(h))
		}
	}
}

// WithMaxBytes caps the body size read per fetch
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// NewFetcher creates a web_content_fetcher
func NewFetcher(timeout time.Duration, opts ...Option) *Fetcher {
	if timeout <= 0 {
		timeout = config.DefaultFetchTimeout
	}
	f := &Fetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: config.DefaultMaxFetchBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Definition implements tools.Tool
func (f *Fetcher) Definition() mcp.Tool {
	return mcp.NewTool(config.ToolWebContentFetcher,
		mcp.WithDescription("Fetch a web page and return its readable text"),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("http or https URL to fetch"),
		),
		mcp.WithBoolean("raw",
			mcp.Description("Return the body unmodified instead of extracted text"),
		),
	)
}

// Pool implements tools.Pooled
func (f *Fetcher) Pool() tools.Pool {
	return tools.PoolSearch
}

// Execute implements tools.Tool
func (f *Fetcher) Execute(ctx context.Context, request mcp.CallToolRequest) (*tools.Result, error) {
	raw, err := request.RequireString("url")
	if err != nil {
		return nil, tools.InvalidArgument("%v", err)
	}
	target, err := f.checkURL(raw)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, tools.InvalidArgument("invalid url: %v", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, tools.Failure("fetching %s timed out", target.Host)
		}
		return nil, tools.Failure("fetching %s: %v", target.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &tools.Error{
			Code:    protocol.CodeToolExecution,
			Message: fmt.Sprintf("upstream returned %d", resp.StatusCode),
			Data:    map[string]any{"status": resp.StatusCode, "url": target.String()},
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, tools.Failure("reading body from %s: %v", target.Host, err)
	}
	truncated := int64(len(body)) > f.maxBytes
	if truncated {
		body = body[:f.maxBytes]
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	result := tools.NewResult()
	switch {
	case request.GetBool("raw", false):
		result.Content = append(result.Content, protocol.TextContent(string(body)))
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		title, text, err := ExtractText(bytes.NewReader(body))
		if err != nil {
			return nil, tools.Failure("parsing html from %s: %v", target.Host, err)
		}
		if title != "" {
			result.Content = append(result.Content, protocol.TextContent("# "+title))
		}
		result.Content = append(result.Content, protocol.TextContent(text))
	case mediaType == "application/json":
		result.Content = append(result.Content, protocol.CodeContent(string(body), "json"))
	case strings.HasPrefix(mediaType, "image/"):
		result.Content = append(result.Content, protocol.ImageContent(target.String(), mediaType))
	default:
		result.Content = append(result.Content, protocol.TextContent(string(body)))
	}
	if truncated {
		result.Content = append(result.Content,
			protocol.TextContent(fmt.Sprintf("[truncated to %d bytes]", f.maxBytes)))
	}
	return result, nil
}

func (f *Fetcher) checkURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, tools.InvalidArgument("invalid url: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, tools.InvalidArgument("unsupported url scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, tools.InvalidArgument("url has no host")
	}
	if len(f.allowedHosts) > 0 && !slices.Contains(f.allowedHosts, strings.ToLower(u.Hostname())) {
		return nil, tools.InvalidArgument("host %s is not allowed", u.Hostname())
	}
	return u, nil
}

var skipElements = map[string]bool{"script": true, "style": true, "noscript": true, "template": true}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "pre": true, "blockquote": true,
}

// ExtractText returns the document title and its visible text, one block
// per line
func ExtractText(r io.Reader) (string, string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", "", err
	}

	var (
		title string
		lines []string
		cur   strings.Builder
	)
	flush := func() {
		if s := strings.Join(strings.Fields(cur.String()), " "); s != "" {
			lines = append(lines, s)
		}
		cur.Reset()
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skipElements[n.Data] {
				return
			}
			if n.Data == "title" {
				if n.FirstChild != nil && title == "" {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			}
		}
		if n.Type == html.TextNode {
			cur.WriteString(n.Data)
			cur.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			flush()
		}
	}
	walk(doc)
	flush()
	return title, strings.Join(lines, "\n"), nil
}
