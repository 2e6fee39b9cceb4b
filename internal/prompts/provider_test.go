package prompts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"agentctl/internal/capability"
	"agentctl/internal/config"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate(t *testing.T) {
	arguments := []capability.PromptArgument{
		{Name: "language", Required: true},
		{Name: "style"},
	}

	rendered, err := renderTemplate("Review this {{language}} code in {{style}} style.", arguments,
		map[string]string{"language": "Go", "style": "terse"})
	require.NoError(t, err)
	assert.Equal(t, "Review this Go code in terse style.", rendered)

	// Optional arguments may be omitted; their placeholders stay literal.
	rendered, err = renderTemplate("Review {{language}} / {{style}}", arguments,
		map[string]string{"language": "Go"})
	require.NoError(t, err)
	assert.Equal(t, "Review Go / {{style}}", rendered)

	_, err = renderTemplate("Review {{language}}", arguments, map[string]string{"style": "terse"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "language")
}

func TestConfigProvider(t *testing.T) {
	p := NewConfigProvider([]config.PromptDefinition{
		{Name: "review", Description: "Code review", Template: "Review {{target}}.",
			Arguments: []capability.PromptArgument{{Name: "target", Required: true}}},
		{Name: "summarize", Template: "Summarize."},
	})
	assert.Equal(t, "config", p.Name())

	ctx := context.Background()
	infos, err := p.ListPrompts(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "review", infos[0].Name)
	assert.Equal(t, "config", infos[0].ServerName)

	result, err := p.GetPrompt(ctx, "review", map[string]string{"target": "main.go"})
	require.NoError(t, err)
	require.Len(t, result.Messages, 1)
	text, ok := result.Messages[0].Content.(mcp.TextContent)
	require.True(t, ok)
	assert.Equal(t, "Review main.go.", text.Text)

	_, err = p.GetPrompt(ctx, "missing", nil)
	assert.ErrorIs(t, err, capability.ErrCapabilityNotFound)
}

func TestFileProvider_FrontMatterAndDefaults(t *testing.T) {
	dir := t.TempDir()
	withMeta := `---
name: code-review
title: Code Review
description: Reviews code
arguments:
  - name: language
    required: true
---
Review this {{language}} code.`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "review.md"), []byte(withMeta), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plain.md"), []byte("Just a plain template."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("not a prompt"), 0o644))

	p := NewFileProvider(dir)
	ctx := context.Background()

	infos, err := p.ListPrompts(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)

	byName := make(map[string]capability.PromptInfo)
	for _, info := range infos {
		byName[info.Name] = info
	}
	require.Contains(t, byName, "code-review")
	assert.Equal(t, "Code Review", byName["code-review"].Title)
	require.Len(t, byName["code-review"].Arguments, 1)
	assert.True(t, byName["code-review"].Arguments[0].Required)
	// No front matter: the file stem is the prompt name.
	assert.Contains(t, byName, "plain")

	result, err := p.GetPrompt(ctx, "code-review", map[string]string{"language": "Go"})
	require.NoError(t, err)
	text := result.Messages[0].Content.(mcp.TextContent)
	assert.Equal(t, "Review this Go code.", text.Text)

	result, err = p.GetPrompt(ctx, "plain", nil)
	require.NoError(t, err)
	text = result.Messages[0].Content.(mcp.TextContent)
	assert.Equal(t, "Just a plain template.", text.Text)
}

func TestFileProvider_DuplicateNamesSkipped(t *testing.T) {
	dir := t.TempDir()
	// Both files claim the same name; scan order is lexical, first wins.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("---\nname: dup\n---\nfirst"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("---\nname: dup\n---\nsecond"), 0o644))

	p := NewFileProvider(dir)
	infos, err := p.ListPrompts(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)

	result, err := p.GetPrompt(context.Background(), "dup", nil)
	require.NoError(t, err)
	text := result.Messages[0].Content.(mcp.TextContent)
	assert.Equal(t, "first", text.Text)
}

func TestFileProvider_MissingDirIsEmpty(t *testing.T) {
	p := NewFileProvider(filepath.Join(t.TempDir(), "does-not-exist"))
	infos, err := p.ListPrompts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestFileProvider_InvalidateRescans(t *testing.T) {
	dir := t.TempDir()
	p := NewFileProvider(dir)

	infos, err := p.ListPrompts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, infos)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.md"), []byte("Hello."), 0o644))

	// Cached scan still empty until invalidated.
	infos, err = p.ListPrompts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, infos)

	p.Invalidate()
	infos, err = p.ListPrompts(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "new", infos[0].Name)
}

func TestUserProvider_CreateAndDelete(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "user-prompts")
	p := NewUserProvider(dir)

	invalidations := 0
	p.OnInvalidate(func() { invalidations++ })

	require.NoError(t, p.Create(config.PromptDefinition{
		Name:     "scratch",
		Template: "Note: {{text}}",
		Arguments: []capability.PromptArgument{
			{Name: "text", Required: true},
		},
	}))
	assert.Equal(t, 1, invalidations)

	infos, err := p.ListPrompts(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "scratch", infos[0].Name)
	assert.Equal(t, "user", infos[0].ServerName)

	result, err := p.GetPrompt(context.Background(), "scratch", map[string]string{"text": "hello"})
	require.NoError(t, err)
	text := result.Messages[0].Content.(mcp.TextContent)
	assert.Equal(t, "Note: hello", text.Text)

	// Duplicate creation is an explicit conflict, not an overwrite.
	err = p.Create(config.PromptDefinition{Name: "scratch", Template: "other"})
	assert.ErrorIs(t, err, capability.ErrDuplicateIdentifier)

	require.NoError(t, p.Delete("scratch"))
	assert.Equal(t, 2, invalidations)

	infos, err = p.ListPrompts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, infos)

	err = p.Delete("scratch")
	assert.ErrorIs(t, err, capability.ErrCapabilityNotFound)
}

func TestUserProvider_CreateValidation(t *testing.T) {
	p := NewUserProvider(t.TempDir())
	assert.ErrorIs(t, p.Create(config.PromptDefinition{Template: "t"}), capability.ErrInvalidConfiguration)
	assert.ErrorIs(t, p.Create(config.PromptDefinition{Name: "x"}), capability.ErrInvalidConfiguration)
}
