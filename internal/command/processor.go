// Package command maps user text to canned bot replies.
package command

import (
	"log/slog"
	"strings"

	"github.com/samber/lo"
)

const (
	GreetingReply = "こんにちは！ファイルやレシート画像を送信してください。"
	HelpReply     = "【使用方法】\n" +
		"📁 ファイルアップロード: ファイルを送信\n" +
		"📸 レシート読取: レシート画像を送信\n" +
		"💰 売上確認: 'ステータス'と送信\n" +
		"❓ ヘルプ: 'ヘルプ'と送信\n\n" +
		"何かご不明な点がございましたら、管理者にお問い合わせください。"
	StatusReply   = "システムは正常に動作しています。"
	FallbackReply = "申し訳ございませんが、コマンドが認識できませんでした。'ヘルプ'と送信してください。"

	ImageReceivedReply = "画像を受信しました。処理中です..."
	ErrorReply         = "申し訳ございません。処理中にエラーが発生しました。しばらく後に再度お試しください。"
)

// FileReceivedReply acknowledges a file message by name.
func FileReceivedReply(name string) string {
	return "ファイル '" + name + "' を受信しました。処理中です..."
}

type rule struct {
	name     string
	keywords []string
	reply    string
}

// rules is ordered; the first rule whose keywords contain the input wins.
var rules = []rule{
	{name: "greeting", keywords: []string{"hello", "hi", "こんにちは"}, reply: GreetingReply},
	{name: "help", keywords: []string{"help", "ヘルプ"}, reply: HelpReply},
	{name: "status", keywords: []string{"status", "ステータス"}, reply: StatusReply},
}

// Normalize trims surrounding whitespace and case-folds text.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Match returns the rule name and reply for text. Unmatched text yields the
// fallback reply with an empty rule name.
func Match(text string) (string, string) {
	normalized := Normalize(text)
	r, ok := lo.Find(rules, func(r rule) bool {
		return lo.Contains(r.keywords, normalized)
	})
	if !ok {
		return "", FallbackReply
	}
	return r.name, r.reply
}

// Processor answers text messages.
type Processor struct {
	logger *slog.Logger
}

func NewProcessor(log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{logger: log.With(slog.String("service", "command"))}
}

// Process returns the reply for a text message. Text always gets a reply, so
// the boolean is true for every input.
func (p *Processor) Process(userID, text string) (string, bool) {
	name, reply := Match(text)
	p.logger.Debug("text command processed",
		slog.String("user_id", userID),
		slog.String("rule", lo.CoalesceOrEmpty(name, "fallback")),
	)
	return reply, true
}
