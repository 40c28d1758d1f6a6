package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/upb/llm-fallback-router/config"
)

func newParser(t *testing.T, cli *CLI) *kong.Kong {
	t.Helper()
	parser, err := kong.New(cli,
		kong.Name("fallback-router"),
		kong.Vars{"version": version},
		kong.Exit(func(int) { t.Fatal("unexpected exit") }),
	)
	require.NoError(t, err)
	return parser
}

func TestCLI_Parse(t *testing.T) {
	t.Run("serve is the default command", func(t *testing.T) {
		var cli CLI
		kctx, err := newParser(t, &cli).Parse([]string{})
		require.NoError(t, err)
		assert.Equal(t, "serve", kctx.Command())
	})

	t.Run("ask with flags", func(t *testing.T) {
		var cli CLI
		kctx, err := newParser(t, &cli).Parse([]string{"ask", "--system", "be brief", "--temperature", "0.2", "--max-tokens", "50", "hello", "world"})
		require.NoError(t, err)
		assert.Equal(t, "ask <prompt>", kctx.Command())
		assert.Equal(t, "be brief", cli.Ask.System)
		require.NotNil(t, cli.Ask.Temperature)
		assert.InDelta(t, 0.2, *cli.Ask.Temperature, 1e-9)
		require.NotNil(t, cli.Ask.MaxTokens)
		assert.Equal(t, 50, *cli.Ask.MaxTokens)
		assert.Equal(t, []string{"hello", "world"}, cli.Ask.Prompt)
	})

	t.Run("ask requires a prompt", func(t *testing.T) {
		var cli CLI
		_, err := newParser(t, &cli).Parse([]string{"ask"})
		assert.Error(t, err)
	})
}

func testRuntime(t *testing.T, upstream http.HandlerFunc) (*runtime, *bytes.Buffer) {
	t.Helper()

	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		Router: config.RouterConfig{
			Timeout:            2 * time.Second,
			MaxErrorBodyBytes:  512,
			ProviderOrder:      []string{config.ProviderGroq},
			DefaultTemperature: 0.7,
			DefaultMaxTokens:   800,
		},
		Providers: config.ProvidersConfig{
			Groq: config.ProviderConfig{APIKey: "gsk-test-key", BaseURL: srv.URL, Models: []string{"m1"}},
		},
	}

	var out bytes.Buffer
	return &runtime{ctx: context.Background(), cfg: cfg, logger: zaptest.NewLogger(t), stdout: &out}, &out
}

func TestAskCmd_Run(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		var gotBody map[string]interface{}
		rt, out := testRuntime(t, func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"four"}}]}`))
		})

		maxTokens := 20
		cmd := &AskCmd{System: "answer in one word", MaxTokens: &maxTokens, Prompt: []string{"two", "plus", "two?"}}
		require.NoError(t, cmd.Run(rt))

		var result askOutput
		require.NoError(t, json.Unmarshal(out.Bytes(), &result))
		assert.Equal(t, "four", result.Content)
		assert.Equal(t, "groq", result.Provider)
		assert.NotEmpty(t, result.RunID)
		require.Len(t, result.Attempts, 1)
		assert.Equal(t, "success", result.Attempts[0].Outcome)

		assert.EqualValues(t, 20, gotBody["max_tokens"])
		messages, ok := gotBody["messages"].([]interface{})
		require.True(t, ok)
		assert.Len(t, messages, 2)
	})

	t.Run("exhausted chain prints attempts", func(t *testing.T) {
		rt, out := testRuntime(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		cmd := &AskCmd{Prompt: []string{"hello"}}
		require.Error(t, cmd.Run(rt))

		var result askOutput
		require.NoError(t, json.Unmarshal(out.Bytes(), &result))
		assert.NotEmpty(t, result.Error)
		assert.NotEmpty(t, result.RunID)
		require.Len(t, result.Attempts, 1)
		assert.Equal(t, http.StatusServiceUnavailable, result.Attempts[0].Status)
	})

	t.Run("invalid temperature", func(t *testing.T) {
		rt, _ := testRuntime(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("upstream must not be called")
		})

		temp := 3.5
		cmd := &AskCmd{Temperature: &temp, Prompt: []string{"hello"}}
		assert.Error(t, cmd.Run(rt))
	})

	t.Run("blank prompt", func(t *testing.T) {
		rt, _ := testRuntime(t, func(w http.ResponseWriter, r *http.Request) {})
		assert.Error(t, (&AskCmd{Prompt: []string{"  "}}).Run(rt))
	})
}

func TestProvidersCmd_Run(t *testing.T) {
	rt, out := testRuntime(t, func(w http.ResponseWriter, r *http.Request) {})

	require.NoError(t, (&ProvidersCmd{}).Run(rt))
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "PROVIDER")
	assert.Contains(t, lines[1], "chat_messages")
	assert.Equal(t, strings.Index(lines[0], "PROVIDER"), strings.Index(lines[1], "groq"))
	assert.Equal(t, strings.Index(lines[0], "SCHEMA"), strings.Index(lines[1], "chat_messages"))

	out.Reset()
	rt.cfg.Providers.Groq.APIKey = ""
	require.NoError(t, (&ProvidersCmd{}).Run(rt))
	assert.Contains(t, out.String(), "no providers configured")
}
