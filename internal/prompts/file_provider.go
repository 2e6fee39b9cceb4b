package prompts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"agentctl/internal/capability"
	"agentctl/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
	"gopkg.in/yaml.v3"
)

// promptFrontMatter is the YAML header of a file-based prompt.
type promptFrontMatter struct {
	Name        string                      `yaml:"name,omitempty"`
	Title       string                      `yaml:"title,omitempty"`
	Description string                      `yaml:"description,omitempty"`
	Arguments   []capability.PromptArgument `yaml:"arguments,omitempty"`
}

type filePrompt struct {
	info     capability.PromptInfo
	template string
}

// FileProvider serves prompt templates from markdown files in a directory.
// A file is a YAML front-matter block between "---" lines followed by the
// template body; the file name (without extension) is the default prompt
// name.
type FileProvider struct {
	dir string

	mu      sync.Mutex
	loaded  bool
	prompts map[string]filePrompt
	order   []string
}

// NewFileProvider creates a provider over dir. The directory is scanned
// lazily on first use and re-scanned after Invalidate.
func NewFileProvider(dir string) *FileProvider {
	return &FileProvider{dir: dir}
}

// Name implements Provider.
func (p *FileProvider) Name() string { return "files" }

// Invalidate drops the scanned state so the next read re-scans the
// directory.
func (p *FileProvider) Invalidate() {
	p.mu.Lock()
	p.loaded = false
	p.mu.Unlock()
}

func (p *FileProvider) ensureLoaded() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.loaded {
		return nil
	}

	p.prompts = make(map[string]filePrompt)
	p.order = nil

	entries, err := os.ReadDir(p.dir)
	if err != nil {
		if os.IsNotExist(err) {
			p.loaded = true
			return nil
		}
		return fmt.Errorf("failed to scan prompt directory %s: %w", p.dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, fileName := range names {
		prompt, err := p.parseFile(filepath.Join(p.dir, fileName))
		if err != nil {
			logging.Warn("Prompts", "Skipping prompt file %s: %v", fileName, err)
			continue
		}
		if _, exists := p.prompts[prompt.info.Name]; exists {
			logging.Warn("Prompts", "Skipping prompt file %s: duplicate name %s", fileName, prompt.info.Name)
			continue
		}
		p.prompts[prompt.info.Name] = prompt
		p.order = append(p.order, prompt.info.Name)
	}

	p.loaded = true
	return nil
}

func (p *FileProvider) parseFile(path string) (filePrompt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return filePrompt{}, err
	}

	var meta promptFrontMatter
	body := string(data)

	if strings.HasPrefix(body, "---\n") {
		rest := body[len("---\n"):]
		end := strings.Index(rest, "\n---")
		if end < 0 {
			return filePrompt{}, fmt.Errorf("unterminated front matter")
		}
		if err := yaml.Unmarshal([]byte(rest[:end]), &meta); err != nil {
			return filePrompt{}, fmt.Errorf("invalid front matter: %w", err)
		}
		body = strings.TrimPrefix(rest[end+len("\n---"):], "\n")
	}

	name := meta.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), ".md")
	}

	return filePrompt{
		info: capability.PromptInfo{
			Name:        name,
			Title:       meta.Title,
			Description: meta.Description,
			Arguments:   meta.Arguments,
			ServerName:  p.Name(),
		},
		template: strings.TrimSpace(body),
	}, nil
}

// ListPrompts implements Provider.
func (p *FileProvider) ListPrompts(_ context.Context) ([]capability.PromptInfo, error) {
	if err := p.ensureLoaded(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	result := make([]capability.PromptInfo, 0, len(p.order))
	for _, name := range p.order {
		result = append(result, p.prompts[name].info)
	}
	return result, nil
}

// GetPrompt implements Provider.
func (p *FileProvider) GetPrompt(_ context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	if err := p.ensureLoaded(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	prompt, exists := p.prompts[name]
	p.mu.Unlock()
	if !exists {
		return nil, fmt.Errorf("%w: prompt %s", capability.ErrCapabilityNotFound, name)
	}

	rendered, err := renderTemplate(prompt.template, prompt.info.Arguments, args)
	if err != nil {
		return nil, fmt.Errorf("prompt %s: %w", name, err)
	}
	return textPromptResult(prompt.info.Description, rendered), nil
}
