// Package line talks to the LINE Messaging API: webhook verification,
// envelope decoding, replies and message content retrieval.
package line

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/memohai/linebot/internal/collab"
	"github.com/memohai/linebot/internal/config"
	"github.com/memohai/linebot/internal/media"
)

const serviceName = "line"

// Content is the binary payload of an image or file message.
type Content struct {
	Data        []byte
	ContentType string
}

// Client replies to events and downloads message content.
type Client struct {
	logger *slog.Logger
	api    *messaging_api.MessagingApiAPI
	blob   *messaging_api.MessagingApiBlobAPI
}

// NewClient builds a Messaging API client from the channel settings.
func NewClient(log *slog.Logger, cfg config.LineConfig, httpClient *http.Client) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	token := strings.TrimSpace(cfg.ChannelAccessToken)
	if token == "" {
		return nil, fmt.Errorf("%w: LINE_CHANNEL_ACCESS_TOKEN", config.ErrConfiguration)
	}
	opts := []messaging_api.MessagingApiAPIOption{}
	if httpClient != nil {
		opts = append(opts, messaging_api.WithHTTPClient(httpClient))
	}
	if endpoint := strings.TrimSpace(cfg.APIEndpoint); endpoint != "" {
		opts = append(opts, messaging_api.WithEndpoint(endpoint))
	}
	api, err := messaging_api.NewMessagingApiAPI(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create messaging api client: %w", err)
	}
	blobOpts := []messaging_api.MessagingApiBlobAPIOption{}
	if httpClient != nil {
		blobOpts = append(blobOpts, messaging_api.WithBlobHTTPClient(httpClient))
	}
	if endpoint := strings.TrimSpace(cfg.DataEndpoint); endpoint != "" {
		blobOpts = append(blobOpts, messaging_api.WithBlobEndpoint(endpoint))
	}
	blob, err := messaging_api.NewMessagingApiBlobAPI(token, blobOpts...)
	if err != nil {
		return nil, fmt.Errorf("create messaging blob client: %w", err)
	}
	return &Client{
		logger: log.With(slog.String("client", "line")),
		api:    api,
		blob:   blob,
	}, nil
}

// Reply sends text as the single reply allowed for replyToken.
func (c *Client) Reply(ctx context.Context, replyToken, text string) error {
	if strings.TrimSpace(replyToken) == "" {
		return &collab.Error{Service: serviceName, Op: "reply", Err: errors.New("reply token is empty")}
	}
	_, err := c.api.WithContext(ctx).ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages: []messaging_api.MessageInterface{
			&messaging_api.TextMessage{Text: text},
		},
	})
	if err != nil {
		return &collab.Error{Service: serviceName, Op: "reply", Err: err}
	}
	c.logger.Debug("reply sent", slog.Int("length", len([]rune(text))))
	return nil
}

// FetchContent downloads the binary content of messageID, rejecting payloads
// larger than maxBytes.
func (c *Client) FetchContent(ctx context.Context, messageID string, maxBytes int64) (Content, error) {
	resp, err := c.blob.WithContext(ctx).GetMessageContent(messageID)
	if err != nil {
		return Content{}, &collab.Error{Service: serviceName, Op: "fetch content", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Content{}, &collab.Error{Service: serviceName, Op: "fetch content", StatusCode: resp.StatusCode}
	}
	data, err := media.ReadLimited(resp.Body, maxBytes)
	if err != nil {
		return Content{}, fmt.Errorf("read message content: %w", err)
	}
	return Content{Data: data, ContentType: resp.Header.Get("Content-Type")}, nil
}
