package command

import (
	"strings"
	"testing"
	"testing/quick"
)

func TestProcessGreetingIsCaseAndSpaceInsensitive(t *testing.T) {
	t.Parallel()

	p := NewProcessor(nil)
	for _, in := range []string{"Hello", "hi", " HELLO ", "\tHi\n", "こんにちは", "  こんにちは  "} {
		got, ok := p.Process("U1", in)
		if !ok {
			t.Fatalf("%q: expected a reply", in)
		}
		if got != GreetingReply {
			t.Fatalf("%q: expected greeting, got %q", in, got)
		}
	}
}

func TestProcessRoutingTable(t *testing.T) {
	t.Parallel()

	p := NewProcessor(nil)
	tests := []struct {
		in   string
		want string
	}{
		{in: "help", want: HelpReply},
		{in: "HELP", want: HelpReply},
		{in: "ヘルプ", want: HelpReply},
		{in: "status", want: StatusReply},
		{in: " Status ", want: StatusReply},
		{in: "ステータス", want: StatusReply},
		{in: "hello there", want: FallbackReply},
		{in: "helpme", want: FallbackReply},
		{in: "", want: FallbackReply},
		{in: "   ", want: FallbackReply},
		{in: "🙂", want: FallbackReply},
	}
	for _, tt := range tests {
		got, ok := p.Process("U1", tt.in)
		if !ok || got != tt.want {
			t.Errorf("Process(%q) = %q, %v; want %q", tt.in, got, ok, tt.want)
		}
	}
}

func TestProcessIsTotal(t *testing.T) {
	t.Parallel()

	p := NewProcessor(nil)
	prop := func(userID, text string) bool {
		got, ok := p.Process(userID, text)
		return ok && got != ""
	}
	if err := quick.Check(prop, nil); err != nil {
		t.Fatal(err)
	}
}

func TestMatchNames(t *testing.T) {
	t.Parallel()

	if name, _ := Match("HI"); name != "greeting" {
		t.Fatalf("expected greeting, got %q", name)
	}
	if name, reply := Match("unknown"); name != "" || reply != FallbackReply {
		t.Fatalf("expected fallback, got %q %q", name, reply)
	}
}

func TestHelpReplyListsActions(t *testing.T) {
	t.Parallel()

	for _, want := range []string{"ファイルアップロード", "レシート読取", "売上確認", "ヘルプ"} {
		if !strings.Contains(HelpReply, want) {
			t.Fatalf("help text missing %q", want)
		}
	}
	if got := FileReceivedReply("a.pdf"); got != "ファイル 'a.pdf' を受信しました。処理中です..." {
		t.Fatalf("unexpected file reply: %q", got)
	}
}
