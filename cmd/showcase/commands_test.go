package main

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/lox/showcase/internal/assistant"
	"github.com/lox/showcase/internal/models"
)

type echoCompleter struct {
	calls int
}

func (e *echoCompleter) Complete(_ context.Context, _ string, history []assistant.Turn) (string, error) {
	e.calls++
	return "echo: " + history[len(history)-1].Text, nil
}

func TestChatLoop_SendsLinesVerbatim(t *testing.T) {
	ec := &echoCompleter{}
	sess := assistant.NewSession(ec, "persona", assistant.WithGreeting("custom hello"))
	var out bytes.Buffer

	err := chatLoop(context.Background(), sess, strings.NewReader("  spaced out  \n   \nsecond\n"), &out)
	if err != nil {
		t.Fatalf("chatLoop: %v", err)
	}

	if ec.calls != 2 {
		t.Errorf("completer calls = %d, want 2 (blank line skipped)", ec.calls)
	}
	msgs := sess.Messages()
	if len(msgs) != 5 {
		t.Fatalf("len(msgs) = %d, want 5", len(msgs))
	}
	if msgs[1].Role != models.RoleUser || msgs[1].Text != "  spaced out  " {
		t.Errorf("user message = %+v, want untrimmed text", msgs[1])
	}

	got := out.String()
	if !strings.HasPrefix(got, "custom hello\n") {
		t.Errorf("output should start with the session greeting, got %q", got)
	}
	if strings.Contains(got, assistant.Greeting) {
		t.Error("default greeting printed instead of the session's")
	}
	if !strings.Contains(got, "echo:   spaced out  \n") || !strings.Contains(got, "echo: second\n") {
		t.Errorf("replies missing from output: %q", got)
	}
}

func TestParser_Defaults(t *testing.T) {
	t.Setenv("OPENAI_MODEL", "")
	os.Unsetenv("OPENAI_MODEL")

	var cli CLI
	parser, err := newParser(&cli)
	if err != nil {
		t.Fatalf("newParser: %v", err)
	}
	ctx, err := parser.Parse([]string{"serve"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ctx.Command() != "serve" {
		t.Errorf("command = %q, want serve", ctx.Command())
	}
	if cli.Model != assistant.DefaultModel {
		t.Errorf("model = %q, want %q", cli.Model, assistant.DefaultModel)
	}
	if cli.Serve.DB != ":memory:" || cli.Serve.LookupRetention != 24*time.Hour {
		t.Errorf("serve defaults = %+v", cli.Serve)
	}
}
