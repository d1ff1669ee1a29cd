package data

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"github.com/trihan96/FunPayServer/internal/biz/domain"
)

const funpayBaseURL = "https://funpay.com"

var appDataRegexp = regexp.MustCompile(`data-app-data="([^"]+)"`)

// funpayAppData is the bootstrap payload embedded in the landing page
type funpayAppData struct {
	UserID    int64  `json:"userId"`
	CSRFToken string `json:"csrf-token"`
}

// runnerObject is one entry of the runner poll response
type runnerObject struct {
	Type string `json:"type"`
	Data struct {
		HTML string `json:"html"`
	} `json:"data"`
}

// FunPayClient talks to the FunPay runner API. It implements repo.ChatRepo.
type FunPayClient struct {
	http            *resty.Client
	goldenKey       string
	watermark       string
	manualWatermark string
	log             zerolog.Logger

	mu        sync.Mutex
	userID    int64
	csrfToken string
	sessID    string
}

// NewFunPayClient creates the transport. Call Setup before polling; the
// retry policy covers transient marketplace hiccups.
func NewFunPayClient(goldenKey, userAgent, watermark, manualWatermark string, log zerolog.Logger) *FunPayClient {
	httpClient := resty.New().
		SetBaseURL(funpayBaseURL).
		SetHeader("User-Agent", userAgent).
		SetRetryCount(3).
		SetRetryWaitTime(2 * time.Second)

	return &FunPayClient{
		http:            httpClient,
		goldenKey:       goldenKey,
		watermark:       watermark,
		manualWatermark: manualWatermark,
		log:             log.With().Str("component", "funpay").Logger(),
	}
}

// Setup fetches the landing page to recover the account id, csrf token and
// session cookie the runner API wants on every request
func (c *FunPayClient) Setup(ctx context.Context) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Cookie", "golden_key="+c.goldenKey).
		Get("/")
	if err != nil {
		return fmt.Errorf("failed to fetch landing page: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("landing page returned status %d", resp.StatusCode())
	}

	match := appDataRegexp.FindStringSubmatch(resp.String())
	if match == nil {
		return fmt.Errorf("app data not found, check GOLDEN_KEY")
	}

	var appData funpayAppData
	if err := json.Unmarshal([]byte(htmlUnescape(match[1])), &appData); err != nil {
		return fmt.Errorf("failed to parse app data: %w", err)
	}
	if appData.UserID == 0 {
		return fmt.Errorf("not logged in, check GOLDEN_KEY")
	}

	sessID := ""
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "PHPSESSID" {
			sessID = cookie.Value
		}
	}

	c.mu.Lock()
	c.userID = appData.UserID
	c.csrfToken = appData.CSRFToken
	c.sessID = sessID
	c.mu.Unlock()

	c.log.Info().Int64("user_id", appData.UserID).Msg("funpay session established")
	return nil
}

// PollConversations fetches the chat bookmark list and parses it into
// snapshots
func (c *FunPayClient) PollConversations(ctx context.Context) ([]domain.ChatSnapshot, error) {
	c.mu.Lock()
	userID := c.userID
	csrfToken := c.csrfToken
	c.mu.Unlock()

	bookmarks := []map[string]any{{
		"type": "chat_bookmarks",
		"id":   fmt.Sprintf("%d", userID),
		"tag":  requestTag(),
		"data": false,
	}}
	objects, err := json.Marshal(bookmarks)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal poll request: %w", err)
	}

	resp, err := c.runnerRequest(ctx, url.Values{
		"objects":    {string(objects)},
		"request":    {"false"},
		"csrf_token": {csrfToken},
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Objects []runnerObject `json:"objects"`
	}
	if err := json.Unmarshal(resp, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse poll response: %w", err)
	}

	for _, obj := range payload.Objects {
		if obj.Type == "chat_bookmarks" {
			return parseBookmarks(obj.Data.HTML)
		}
	}
	return nil, nil
}

// Send delivers a chat message, prepending the selected watermark. It
// returns false on any transport failure.
func (c *FunPayClient) Send(ctx context.Context, node, text string, kind domain.WatermarkKind) bool {
	if node == "" || text == "" {
		return false
	}

	message := text
	switch kind {
	case domain.WatermarkAuto:
		if c.watermark != "" {
			message = c.watermark + "\n" + text
		}
	case domain.WatermarkManual:
		if c.manualWatermark != "" {
			message = c.manualWatermark + "\n" + text
		}
	}

	c.mu.Lock()
	csrfToken := c.csrfToken
	c.mu.Unlock()

	request := map[string]any{
		"action": "chat_message",
		"data": map[string]any{
			"node":         node,
			"last_message": -1,
			"content":      message,
		},
	}
	body, err := json.Marshal(request)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to marshal send request")
		return false
	}

	resp, err := c.runnerRequest(ctx, url.Values{
		"objects":    {""},
		"request":    {string(body)},
		"csrf_token": {csrfToken},
	})
	if err != nil {
		c.log.Warn().Err(err).Str("node", node).Msg("send request failed")
		return false
	}

	var payload struct {
		Response json.RawMessage `json:"response"`
	}
	if err := json.Unmarshal(resp, &payload); err != nil {
		c.log.Warn().Err(err).Str("node", node).Msg("failed to parse send response")
		return false
	}

	var result struct {
		Error any `json:"error"`
	}
	if err := json.Unmarshal(payload.Response, &result); err != nil || result.Error != nil {
		c.log.Warn().Str("node", node).Interface("error", result.Error).Msg("send rejected")
		return false
	}

	c.log.Debug().Str("node", node).Msg("message sent")
	return true
}

// runnerRequest posts a form to the runner endpoint with session cookies
func (c *FunPayClient) runnerRequest(ctx context.Context, form url.Values) ([]byte, error) {
	c.mu.Lock()
	cookie := "golden_key=" + c.goldenKey
	if c.sessID != "" {
		cookie += "; PHPSESSID=" + c.sessID
	}
	c.mu.Unlock()

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "*/*").
		SetHeader("Cookie", cookie).
		SetHeader("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8").
		SetHeader("X-Requested-With", "XMLHttpRequest").
		SetBody(form.Encode()).
		Post("/runner/")
	if err != nil {
		return nil, fmt.Errorf("runner request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("runner returned status %d", resp.StatusCode())
	}
	return resp.Body(), nil
}

// parseBookmarks extracts conversation snapshots from the chat list HTML
func parseBookmarks(fragment string) ([]domain.ChatSnapshot, error) {
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return nil, fmt.Errorf("failed to parse chat list: %w", err)
	}

	var chats []domain.ChatSnapshot
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && hasClass(n, "contact-item") {
			chats = append(chats, domain.ChatSnapshot{
				UserName: textOfClass(n, "media-user-name"),
				Message:  textOfClass(n, "contact-item-message"),
				Time:     textOfClass(n, "contact-item-time"),
				Node:     attrValue(n, "data-id"),
				IsUnread: strings.Contains(attrValue(n, "class"), "unread"),
			})
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return chats, nil
}

func hasClass(n *html.Node, class string) bool {
	for _, field := range strings.Fields(attrValue(n, "class")) {
		if field == class {
			return true
		}
	}
	return false
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// textOfClass returns the trimmed text content of the first descendant with
// the given class
func textOfClass(n *html.Node, class string) string {
	var found *html.Node
	var locate func(n *html.Node)
	locate = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && hasClass(n, class) {
			found = n
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			locate(child)
		}
	}
	locate(n)
	if found == nil {
		return ""
	}

	var sb strings.Builder
	var collect func(n *html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			collect(child)
		}
	}
	collect(found)
	return strings.TrimSpace(sb.String())
}

// requestTag mimics the short random tag the web client attaches to runner
// polls
func requestTag() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// htmlUnescape covers the entities FunPay uses inside the app data attribute
func htmlUnescape(s string) string {
	replacer := strings.NewReplacer("&quot;", `"`, "&amp;", "&", "&lt;", "<", "&gt;", ">", "&#39;", "'")
	return replacer.Replace(s)
}
