package line

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/quick"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/linebot/internal/collab"
	"github.com/memohai/linebot/internal/config"
)

func TestVerifySignatureRoundTrip(t *testing.T) {
	t.Parallel()

	prop := func(body []byte, secret string) bool {
		return VerifySignature(secret, body, Sign(secret, body))
	}
	if err := quick.Check(prop, nil); err != nil {
		t.Fatal(err)
	}
}

func TestVerifySignatureRejectsOtherBody(t *testing.T) {
	t.Parallel()

	prop := func(body, other []byte, secret string) bool {
		if string(body) == string(other) {
			return true
		}
		return !VerifySignature(secret, body, Sign(secret, other))
	}
	if err := quick.Check(prop, nil); err != nil {
		t.Fatal(err)
	}
}

func TestVerifySignatureEdgeCases(t *testing.T) {
	t.Parallel()

	body := []byte(`{"events":[]}`)
	assert.False(t, VerifySignature("secret", body, ""))
	assert.False(t, VerifySignature("secret", body, "not base64!"))
	assert.False(t, VerifySignature("other", body, Sign("secret", body)))
	assert.True(t, VerifySignature("secret", body, Sign("secret", body)))
}

func TestParseEnvelopeClassifiesEvents(t *testing.T) {
	t.Parallel()

	body := `{"destination":"Ubot","events":[
		{"type":"message","replyToken":"r1","timestamp":1700000000000,"source":{"type":"user","userId":"U1"},"message":{"id":"m1","type":"text","text":"hi"}},
		{"type":"message","replyToken":"r2","source":{"type":"user","userId":"U1"},"message":{"id":"m2","type":"image"}},
		{"type":"message","replyToken":"r3","source":{"type":"user","userId":"U2"},"message":{"id":"m3","type":"file","fileName":"a.pdf","fileSize":42}},
		{"type":"message","replyToken":"r4","source":{"type":"user","userId":"U2"},"message":{"id":"m4","type":"sticker"}},
		{"type":"follow","replyToken":"r5","source":{"type":"user","userId":"U3"}}
	]}`

	env, err := ParseEnvelope([]byte(body))
	require.NoError(t, err)
	require.Len(t, env.Events, 5)
	assert.Equal(t, "Ubot", env.Destination)

	text, ok := env.Events[0].(TextEvent)
	require.True(t, ok)
	assert.Equal(t, "hi", text.Text)
	assert.Equal(t, "U1", text.UserID)
	assert.Equal(t, "r1", text.ReplyToken)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), text.Timestamp)

	image, ok := env.Events[1].(ImageEvent)
	require.True(t, ok)
	assert.Equal(t, "m2", image.MessageID)

	file, ok := env.Events[2].(FileEvent)
	require.True(t, ok)
	assert.Equal(t, "a.pdf", file.FileName)
	assert.Equal(t, int64(42), file.FileSize)

	sticker, ok := env.Events[3].(OtherEvent)
	require.True(t, ok)
	assert.Equal(t, "sticker", sticker.MessageType)

	follow, ok := env.Events[4].(OtherEvent)
	require.True(t, ok)
	assert.Equal(t, "follow", follow.Type)
	assert.Equal(t, KindOther, follow.Kind())
	assert.Equal(t, "U3", follow.Origin().UserID)
}

func TestParseEnvelopeRejectsMalformed(t *testing.T) {
	t.Parallel()

	for _, body := range []string{`{"events":`, `[]`, `{"events":{}}`, `not json`} {
		_, err := ParseEnvelope([]byte(body))
		assert.Error(t, err, "body %q", body)
	}
}

func TestParseEnvelopeEmpty(t *testing.T) {
	t.Parallel()

	env, err := ParseEnvelope([]byte(`{"destination":"U","events":[]}`))
	require.NoError(t, err)
	assert.Empty(t, env.Events)
}

func TestClientReply(t *testing.T) {
	t.Parallel()

	var got struct {
		ReplyToken string `json:"replyToken"`
		Messages   []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"messages"`
	}
	var authHeader, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		authHeader = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sentMessages":[{"id":"1","quoteToken":"q"}]}`))
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(nil, config.LineConfig{ChannelAccessToken: "tok", APIEndpoint: srv.URL}, srv.Client())
	require.NoError(t, err)

	require.NoError(t, c.Reply(context.Background(), "reply-1", "こんにちは"))
	assert.Equal(t, "/v2/bot/message/reply", path)
	assert.Equal(t, "Bearer tok", authHeader)
	assert.Equal(t, "reply-1", got.ReplyToken)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "text", got.Messages[0].Type)
	assert.Equal(t, "こんにちは", got.Messages[0].Text)
}

func TestClientReplyRejectsEmptyToken(t *testing.T) {
	t.Parallel()

	c, err := NewClient(nil, config.LineConfig{ChannelAccessToken: "tok", APIEndpoint: "http://127.0.0.1:1"}, nil)
	require.NoError(t, err)

	err = c.Reply(context.Background(), "", "text")
	require.Error(t, err)
	assert.True(t, collab.IsCollaborator(err))
}

func TestNewClientRequiresToken(t *testing.T) {
	t.Parallel()

	_, err := NewClient(nil, config.LineConfig{}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrConfiguration))
}

func TestClientFetchContent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/bot/message/m1/content" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(nil, config.LineConfig{ChannelAccessToken: "tok", APIEndpoint: srv.URL, DataEndpoint: srv.URL}, srv.Client())
	require.NoError(t, err)

	got, err := c.FetchContent(context.Background(), "m1", 1024)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(got.Data))
	assert.Equal(t, "image/jpeg", got.ContentType)

	_, err = c.FetchContent(context.Background(), "m1", 4)
	require.Error(t, err)
}
