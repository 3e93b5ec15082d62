package whatsapp

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/mamadbah2/blockfarm/internal/config"
)

// maxTextLength is the Cloud API limit for a text message body.
const maxTextLength = 4096

// Chunks of one digest go to the same recipient; keep them ordered and paced.
const (
	sendRate  = rate.Limit(1)
	sendBurst = 2
)

// Notifier delivers plain text digests to one recipient through the Meta
// WhatsApp Cloud API.
type Notifier struct {
	httpClient    *resty.Client
	limiter       *rate.Limiter
	phoneNumberID string
	recipient     string
}

// NewNotifier builds a notifier from the WhatsApp settings.
func NewNotifier(cfg config.WhatsAppConfig) *Notifier {
	base := strings.TrimSuffix(cfg.BaseURL, "/")

	restyClient := resty.New()
	restyClient.
		SetBaseURL(fmt.Sprintf("%s/%s", base, cfg.APIVersion)).
		SetAuthToken(cfg.AccessToken).
		SetHeader("Content-Type", "application/json").
		SetTimeout(15 * time.Second)

	return &Notifier{
		httpClient:    restyClient,
		limiter:       rate.NewLimiter(sendRate, sendBurst),
		phoneNumberID: cfg.PhoneNumberID,
		recipient:     cfg.DigestRecipient,
	}
}

type textPayload struct {
	MessagingProduct string     `json:"messaging_product"`
	To               string     `json:"to"`
	Type             string     `json:"type"`
	Text             textObject `json:"text"`
}

type textObject struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type apiError struct {
	Error struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error"`
}

// Notify sends body, split on line boundaries when it exceeds the API limit.
// It returns the message ids in send order.
func (n *Notifier) Notify(ctx context.Context, body string) ([]string, error) {
	var ids []string
	for _, chunk := range SplitMessage(body, maxTextLength) {
		if err := n.limiter.Wait(ctx); err != nil {
			return ids, fmt.Errorf("rate limiter: %w", err)
		}
		id, err := n.send(ctx, chunk)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (n *Notifier) send(ctx context.Context, body string) (string, error) {
	payload := textPayload{
		MessagingProduct: "whatsapp",
		To:               n.recipient,
		Type:             "text",
		Text:             textObject{Body: body},
	}

	result := new(sendResponse)
	apiErr := new(apiError)

	resp, err := n.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(result).
		SetError(apiErr).
		Post(fmt.Sprintf("%s/messages", n.phoneNumberID))
	if err != nil {
		return "", fmt.Errorf("send whatsapp message: %w", err)
	}

	if resp.StatusCode() >= http.StatusBadRequest {
		code := resp.StatusCode()
		if apiErr.Error.Code != 0 {
			code = apiErr.Error.Code
		}
		return "", fmt.Errorf("whatsapp api error: code=%d, message=%s", code, apiErr.Error.Message)
	}

	if len(result.Messages) == 0 {
		return "", nil
	}
	return result.Messages[0].ID, nil
}

// SplitMessage breaks text into chunks of at most limit bytes, preferring
// line breaks. A single line longer than limit is cut hard on a rune boundary.
func SplitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var (
		chunks  []string
		current strings.Builder
	)
	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimRight(current.String(), "\n"))
			current.Reset()
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > limit {
			flush()
			cut := limit
			for cut > 0 && !isRuneStart(line[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		if current.Len()+len(line) > limit {
			flush()
		}
		current.WriteString(line)
	}
	flush()
	return chunks
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
