// Package freehost talks to a freeimghost-style public image host. The
// host has no API proper: uploads need an auth token scraped from the
// upload page, and listing means scraping the HTML search results. That is
// the whole point of the exercise; the host never learns it is a database.
package freehost

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/net/html"

	"pixelchat/imagehost"
)

const (
	// DefaultBaseURL is the public image host used by default.
	DefaultBaseURL = "https://freeimghost.net"
	// DefaultTimeout bounds every HTTP call against the host.
	DefaultTimeout = 30 * time.Second
)

// authTokenPattern matches the upload auth token embedded in the host's
// upload page scripts.
var authTokenPattern = regexp.MustCompile(`PF\.obj\.config\.auth_token\s*=\s*"([a-fA-F0-9]{40})";`)

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default timeout-bounded HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// Client implements imagehost.Host against a freeimghost-style service.
type Client struct {
	baseURL    string
	tag        string
	httpClient *http.Client
}

// New returns a Client for the host at baseURL, searching and naming
// assets with the given tag.
func New(baseURL, tag string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tag:        tag,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// fetchAuthToken scrapes the upload credential from the host's upload
// page. The token rotates per session, so it is fetched before every
// upload rather than cached.
func (c *Client) fetchAuthToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/upload", nil)
	if err != nil {
		return "", fmt.Errorf("build upload page request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch upload page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch upload page: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read upload page: %w", err)
	}

	match := authTokenPattern.FindSubmatch(body)
	if match == nil {
		return "", fmt.Errorf("auth token not found in upload page")
	}

	return string(match[1]), nil
}

// Upload posts PNG bytes to the host under the given filename. The host
// requires an xxh64 checksum of the content alongside the upload form.
func (c *Client) Upload(ctx context.Context, filename string, imageBytes []byte) error {
	authToken, err := c.fetchAuthToken(ctx)
	if err != nil {
		return err
	}

	checksum := strconv.FormatUint(xxhash.Sum64(imageBytes), 16)

	var form bytes.Buffer
	writer := multipart.NewWriter(&form)

	filePart, err := writer.CreateFormFile("source", filename)
	if err != nil {
		return fmt.Errorf("build upload form: %w", err)
	}
	if _, err := filePart.Write(imageBytes); err != nil {
		return fmt.Errorf("build upload form: %w", err)
	}

	fields := map[string]string{
		"type":       "file",
		"action":     "upload",
		"timestamp":  strconv.FormatInt(time.Now().UTC().Unix(), 10),
		"auth_token": authToken,
		"nsfw":       "0",
		"mimetype":   "image/png",
		"checksum":   checksum,
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return fmt.Errorf("build upload form: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("build upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/json", &form)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upload image: unexpected status %d", resp.StatusCode)
	}

	return nil
}

// List scrapes the host's search results for assets matching the tag.
func (c *Client) List(ctx context.Context) ([]imagehost.Asset, error) {
	searchURL := c.baseURL + "/search/images/?q=" + url.QueryEscape(c.tag)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search images: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search images: unexpected status %d", resp.StatusCode)
	}

	links, err := extractImageLinks(resp.Body, c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse search results: %w", err)
	}

	assets := make([]imagehost.Asset, 0, len(links))
	for _, link := range links {
		assets = append(assets, imagehost.Asset{
			Ref:       link,
			Timestamp: imagehost.ExtractTimestamp(link),
		})
	}

	return assets, nil
}

// Fetch downloads one asset's content.
func (c *Client) Fetch(ctx context.Context, asset imagehost.Asset) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.Ref, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch asset: unexpected status %d", resp.StatusCode)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read asset content: %w", err)
	}

	return content, nil
}

// extractImageLinks walks the search results page and collects the src of
// every <img> hosted on the service itself.
func extractImageLinks(body io.Reader, baseURL string) ([]string, error) {
	doc, err := html.Parse(body)
	if err != nil {
		return nil, err
	}

	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "img" {
			for _, attr := range n.Attr {
				if attr.Key == "src" && strings.Contains(attr.Val, baseURL) {
					links = append(links, attr.Val)
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	return links, nil
}
