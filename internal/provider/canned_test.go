package provider

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dusk-indust/lessonforge/internal/config"
)

func TestCanned_StreamTextReplaysInChunks(t *testing.T) {
	c := &Canned{Text: "abcdefghij", ChunkSize: 4}
	var chunks []string
	err := c.StreamText(context.Background(), "p", func(s string) error {
		chunks = append(chunks, s)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"abcd", "efgh", "ij"}, chunks)
	assert.Equal(t, 1, c.TextCalls())
	assert.Equal(t, 0, c.StructuredCalls())
}

func TestCanned_StreamTextFailsAfterFirstChunk(t *testing.T) {
	boom := errors.New("upstream 500")
	c := &Canned{Text: "abcdefgh", ChunkSize: 2, TextErr: boom}
	var chunks []string
	err := c.StreamText(context.Background(), "p", func(s string) error {
		chunks = append(chunks, s)
		return nil
	})
	assert.ErrorIs(t, err, ErrGeneration)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"ab"}, chunks)
}

func TestCanned_StreamStructuredLastSnapshotIsFullDocument(t *testing.T) {
	doc := `{"questions":[{"type":"MCQ","question":"Q1","options":["a","b"],"answer":"a"},{"type":"SHORT_ANSWER","question":"Q2","answer":"x"}]}`
	c := &Canned{Structured: json.RawMessage(doc), ChunkSize: 7}

	var snaps []json.RawMessage
	err := c.StreamStructured(context.Background(), "p", Schema{Name: "questions"}, func(raw json.RawMessage) error {
		snaps = append(snaps, raw)
		return nil
	})
	require.NoError(t, err)
	require.Greater(t, len(snaps), 1)
	assert.JSONEq(t, doc, string(snaps[len(snaps)-1]))
	for _, s := range snaps {
		assert.True(t, json.Valid(s))
	}
}

func TestCanned_StreamStructuredMalformedFinal(t *testing.T) {
	c := &Canned{Structured: json.RawMessage(`{"questions":[`)}
	err := c.StreamStructured(context.Background(), "p", Schema{}, func(json.RawMessage) error { return nil })
	assert.ErrorIs(t, err, ErrGeneration)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestCanned_CallbackErrorAborts(t *testing.T) {
	stop := errors.New("stop")
	c := &Canned{Text: "abcdef", ChunkSize: 1}
	calls := 0
	err := c.StreamText(context.Background(), "p", func(string) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestDemo_ChoosesTextByPrompt(t *testing.T) {
	d := Demo()
	d.Delay = 0
	var b strings.Builder
	require.NoError(t, d.StreamText(context.Background(), "Build a Table of Specification", func(s string) error {
		b.WriteString(s)
		return nil
	}))
	assert.Equal(t, demoToS, b.String())
}

func TestNew_SelectsBackend(t *testing.T) {
	logger := zap.NewNop()

	p, err := New(config.ProviderConfig{Kind: "canned"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &Canned{}, p)

	p, err = New(config.ProviderConfig{Kind: "openai", BaseURL: "http://localhost:1/v1", Model: "m"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &OpenAI{}, p)

	p, err = New(config.ProviderConfig{Kind: "ollama", BaseURL: "http://localhost:11434/v1", Model: "m"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &Ollama{}, p)

	_, err = New(config.ProviderConfig{Kind: "carrier-pigeon"}, logger)
	assert.Error(t, err)
}
