package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// DefaultTranscriberBaseURL is the public OCR service endpoint.
const DefaultTranscriberBaseURL = "https://freeocr.ai"

// ErrTranscriberResponse reports an OCR response the client cannot parse.
var ErrTranscriberResponse = errors.New("unexpected transcriber response")

// The OCR frontend exposes its server action ID inside the page script
// as a 42 character hex string.
var nextActionPattern = regexp.MustCompile(`[a-f0-9]{42}`)

const routerStateTree = "%5B%22%22%2C%7B%22children%22%3A%5B%5B%22locale%22%2C%22de%22%2" +
	"C%22d%22%5D%2C%7B%22children%22%3A%5B%22__PAGE__%22%2C%7B%7D%2C" +
	"%22%2Fde%22%2C%22refresh%22%5D%7D%2Cnull%2Cnull%2Ctrue%5D%7D%5D"

// OCRTranscriber extracts text from images through a scraped web OCR
// frontend. The action token is fetched fresh for every request since
// the hosting service rotates it between deployments.
type OCRTranscriber struct {
	baseURL    string
	httpClient *http.Client
}

// TranscriberOption customizes an OCRTranscriber.
type TranscriberOption func(*OCRTranscriber)

// WithTranscriberHTTPClient replaces the default HTTP client.
func WithTranscriberHTTPClient(client *http.Client) TranscriberOption {
	return func(t *OCRTranscriber) {
		t.httpClient = client
	}
}

// NewOCRTranscriber returns a transcriber for the given base URL. An
// empty base URL selects the public service.
func NewOCRTranscriber(baseURL string, opts ...TranscriberOption) *OCRTranscriber {
	if baseURL == "" {
		baseURL = DefaultTranscriberBaseURL
	}

	transcriber := &OCRTranscriber{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(transcriber)
	}

	return transcriber
}

// ExtractText uploads the base64 image to the OCR service and returns
// the recognized text.
func (t *OCRTranscriber) ExtractText(ctx context.Context, imageBase64 string) (string, error) {
	action, err := t.fetchNextAction(ctx)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal([]string{"data:image/jpeg;base64," + imageBase64})
	if err != nil {
		return "", fmt.Errorf("marshal ocr payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build ocr request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Next-Action", action)
	req.Header.Set("Next-Router-State-Tree", routerStateTree)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("post ocr request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrTranscriberResponse, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read ocr response: %w", err)
	}

	return parseActionResponse(raw)
}

// fetchNextAction scrapes the landing page for its page script and pulls
// the current server action ID out of it.
func (t *OCRTranscriber) fetchNextAction(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/", nil)
	if err != nil {
		return "", fmt.Errorf("build ocr page request: %w", err)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch ocr page: %w", err)
	}
	defer resp.Body.Close()

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse ocr page: %w", err)
	}

	scriptPath := findPageScript(doc)
	if scriptPath == "" {
		return "", fmt.Errorf("%w: page script not found", ErrTranscriberResponse)
	}

	scriptReq, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+scriptPath, nil)
	if err != nil {
		return "", fmt.Errorf("build ocr script request: %w", err)
	}

	scriptResp, err := t.httpClient.Do(scriptReq)
	if err != nil {
		return "", fmt.Errorf("fetch ocr script: %w", err)
	}
	defer scriptResp.Body.Close()

	script, err := io.ReadAll(scriptResp.Body)
	if err != nil {
		return "", fmt.Errorf("read ocr script: %w", err)
	}

	action := nextActionPattern.Find(script)
	if action == nil {
		return "", fmt.Errorf("%w: action token not found", ErrTranscriberResponse)
	}

	return string(action), nil
}

// findPageScript walks the document for a script src containing "page-".
func findPageScript(node *html.Node) string {
	if node.Type == html.ElementNode && node.Data == "script" {
		for _, attr := range node.Attr {
			if attr.Key == "src" && strings.Contains(attr.Val, "page-") {
				return attr.Val
			}
		}
	}

	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if found := findPageScript(child); found != "" {
			return found
		}
	}

	return ""
}

// parseActionResponse extracts the quoted text from the second line of
// the action stream, for example `1:"recognized text"`.
func parseActionResponse(raw []byte) (string, error) {
	lines := strings.Split(string(raw), "\n")
	if len(lines) < 2 {
		return "", fmt.Errorf("%w: truncated body", ErrTranscriberResponse)
	}

	line := lines[1]
	start := strings.Index(line, `"`)
	end := strings.LastIndex(line, `"`)
	if start < 0 || end <= start {
		return "", fmt.Errorf("%w: missing text payload", ErrTranscriberResponse)
	}

	return line[start+1 : end], nil
}
