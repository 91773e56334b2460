package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/taomfnbd/chamalloW/pkg/attachments"
	"github.com/taomfnbd/chamalloW/pkg/chat"
)

// Client dispatches generation requests to the per-platform webhook
// endpoints. It performs exactly one transport-level fallback through the
// CORS relay and no business-level retries; anything else is surfaced to
// the caller as failure.
type Client struct {
	httpClient *http.Client
	endpoints  map[chat.Platform]string
	relayURL   string
	sessionID  string
}

var _ chat.Generator = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRelayURL sets the relay prefix used for the one-shot transport
// fallback. The target URL is query-escaped and appended. Empty disables
// the fallback.
func WithRelayURL(relayURL string) Option {
	return func(c *Client) {
		c.relayURL = relayURL
	}
}

func WithSessionID(sessionID string) Option {
	return func(c *Client) {
		c.sessionID = sessionID
	}
}

func NewClient(endpoints map[chat.Platform]string, options ...Option) *Client {
	ret := &Client{
		httpClient: &http.Client{},
		endpoints:  endpoints,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// RequestError is a non-success response status, hard failure for that call.
type RequestError struct {
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Body)
}

const errorBodyLimit = 100

// Generate sends one request for the given platform and returns the raw,
// non-normalized result. A success body that is not parseable JSON degrades
// into a plain-text result with the default score.
func (c *Client) Generate(ctx context.Context, req chat.GenerationRequest) (*chat.GenerationResult, error) {
	endpoint, ok := c.endpoints[req.Platform]
	if !ok || endpoint == "" {
		return nil, errors.Errorf("no webhook configured for platform %q", req.Platform)
	}

	var body []byte
	var contentType string
	var err error
	if len(req.Attachments) > 0 {
		body, contentType, err = encodeMultipart(req, c.sessionID)
	} else {
		body, contentType, err = encodeJSON(req, c.sessionID)
	}
	if err != nil {
		return nil, err
	}

	respBody, err := c.post(ctx, endpoint, contentType, body)
	if err != nil {
		return nil, err
	}

	if req.Platform == chat.PlatformImages {
		return interpretImageBody(respBody), nil
	}
	return interpretTextBody(respBody), nil
}

// post issues the request, falling back once through the relay on a
// transport-level failure.
func (c *Client) post(ctx context.Context, target string, contentType string, body []byte) ([]byte, error) {
	respBody, err := c.doPost(ctx, target, contentType, body)
	if err == nil {
		return respBody, nil
	}

	var reqErr *RequestError
	if errors.As(err, &reqErr) || c.relayURL == "" {
		// non-success status is a hard failure, no retry
		return nil, err
	}

	log.Warn().Err(err).Str("url", target).Msg("direct request failed, trying relay")
	relayed := c.relayURL + url.QueryEscape(target)
	respBody, relayErr := c.doPost(ctx, relayed, contentType, body)
	if relayErr != nil {
		return nil, errors.Wrap(relayErr, "request failed even through relay")
	}
	return respBody, nil
}

func (c *Client) doPost(ctx context.Context, target string, contentType string, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}
	defer func(body io.ReadCloser) {
		_ = body.Close()
	}(resp.Body)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RequestError{
			StatusCode: resp.StatusCode,
			Body:       truncate(string(respBody), errorBodyLimit),
		}
	}

	return respBody, nil
}

type jsonPayload struct {
	Platform       string `json:"platform"`
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
	SessionID      string `json:"sessionId,omitempty"`
}

func encodeJSON(req chat.GenerationRequest, sessionID string) ([]byte, string, error) {
	b, err := json.Marshal(jsonPayload{
		Platform:       string(req.Platform),
		Message:        req.Message,
		ConversationID: req.ConversationID.String(),
		SessionID:      sessionID,
	})
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to marshal payload")
	}
	return b, "application/json", nil
}

// encodeMultipart appends each attachment either as a real file part (when
// its bytes could be resolved) or as a uri/name/type field triple when only
// the locator is available.
func encodeMultipart(req chat.GenerationRequest, sessionID string) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fields := map[string]string{
		"platform":       string(req.Platform),
		"message":        req.Message,
		"conversationId": req.ConversationID.String(),
	}
	if sessionID != "" {
		fields["sessionId"] = sessionID
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, "", errors.Wrap(err, "failed to write form field")
		}
	}

	for _, att := range req.Attachments {
		if err := writeAttachment(writer, att); err != nil {
			return nil, "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", errors.Wrap(err, "failed to finalize form")
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

func writeAttachment(writer *multipart.Writer, att attachments.Encoded) error {
	if len(att.Data) > 0 {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, att.Name))
		header.Set("Content-Type", att.MimeType)
		part, err := writer.CreatePart(header)
		if err != nil {
			return errors.Wrap(err, "failed to create file part")
		}
		if _, err := part.Write(att.Data); err != nil {
			return errors.Wrap(err, "failed to write file part")
		}
		return nil
	}

	// locator-only fallback, reduced fidelity
	for name, value := range map[string]string{
		"file_uri":  att.URI,
		"file_name": att.Name,
		"file_type": att.MimeType,
	} {
		if err := writer.WriteField(name, value); err != nil {
			return errors.Wrap(err, "failed to write file field")
		}
	}
	return nil
}

// interpretTextBody decodes the body into the raw payload handed to the
// normalizer, extracting the service's score when present.
func interpretTextBody(body []byte) *chat.GenerationResult {
	var payload interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Warn().Str("body", truncate(string(body), errorBodyLimit)).Msg("response is not JSON, using raw text")
		return &chat.GenerationResult{
			Payload: string(body),
			Score:   chat.DefaultScore,
		}
	}

	ret := &chat.GenerationResult{Payload: payload}
	if m, ok := payload.(map[string]interface{}); ok {
		if score, ok := m["score"].(float64); ok {
			ret.Score = int(score)
		}
	}
	return ret
}

// interpretImageBody reads the image-platform {type, content, text} shape.
// Content is an image URL when type is "image"; everything else is a
// text-only reply.
func interpretImageBody(body []byte) *chat.GenerationResult {
	var payload interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return &chat.GenerationResult{Image: &chat.ImageReply{Text: string(body)}}
	}

	if items, ok := payload.([]interface{}); ok && len(items) > 0 {
		payload = items[0]
	}

	m, ok := payload.(map[string]interface{})
	if !ok {
		return &chat.GenerationResult{Image: &chat.ImageReply{Text: chat.NormalizeResponse(payload)}}
	}

	replyType, _ := m["type"].(string)
	content, _ := m["content"].(string)
	text, _ := m["text"].(string)

	if replyType == "image" && content != "" {
		return &chat.GenerationResult{Image: &chat.ImageReply{URL: content, Text: text}}
	}
	return &chat.GenerationResult{Image: &chat.ImageReply{Text: text}}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
