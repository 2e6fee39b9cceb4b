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
	"agentctl/internal/config"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"gopkg.in/yaml.v3"
)

// userPromptFile is the on-disk form of a user-created prompt.
type userPromptFile struct {
	ID          string                      `yaml:"id"`
	Name        string                      `yaml:"name"`
	Title       string                      `yaml:"title,omitempty"`
	Description string                      `yaml:"description,omitempty"`
	Arguments   []capability.PromptArgument `yaml:"arguments,omitempty"`
	Template    string                      `yaml:"template"`
}

// UserProvider serves prompts the user created at runtime, persisted as YAML
// files in a directory. Create and Delete notify the prompt registry through
// the invalidate callback so the merged view rebuilds.
type UserProvider struct {
	dir        string
	invalidate func()

	mu sync.Mutex
}

// NewUserProvider creates a provider persisting to dir. invalidate may be
// nil; set it with OnInvalidate once the prompt registry exists.
func NewUserProvider(dir string) *UserProvider {
	return &UserProvider{dir: dir}
}

// OnInvalidate registers the callback fired after Create or Delete.
func (p *UserProvider) OnInvalidate(fn func()) {
	p.mu.Lock()
	p.invalidate = fn
	p.mu.Unlock()
}

// Name implements Provider.
func (p *UserProvider) Name() string { return "user" }

func (p *UserProvider) load() (map[string]userPromptFile, []string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]userPromptFile{}, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to scan user prompt directory %s: %w", p.dir, err)
	}

	prompts := make(map[string]userPromptFile)
	var order []string

	fileNames := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		fileNames = append(fileNames, entry.Name())
	}
	sort.Strings(fileNames)

	for _, fileName := range fileNames {
		data, err := os.ReadFile(filepath.Join(p.dir, fileName))
		if err != nil {
			return nil, nil, err
		}
		var prompt userPromptFile
		if err := yaml.Unmarshal(data, &prompt); err != nil {
			return nil, nil, fmt.Errorf("invalid user prompt %s: %w", fileName, err)
		}
		if _, exists := prompts[prompt.Name]; exists {
			continue
		}
		prompts[prompt.Name] = prompt
		order = append(order, prompt.Name)
	}
	return prompts, order, nil
}

// ListPrompts implements Provider.
func (p *UserProvider) ListPrompts(_ context.Context) ([]capability.PromptInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	prompts, order, err := p.load()
	if err != nil {
		return nil, err
	}

	result := make([]capability.PromptInfo, 0, len(order))
	for _, name := range order {
		prompt := prompts[name]
		result = append(result, capability.PromptInfo{
			Name:        prompt.Name,
			Title:       prompt.Title,
			Description: prompt.Description,
			Arguments:   prompt.Arguments,
			ServerName:  p.Name(),
		})
	}
	return result, nil
}

// GetPrompt implements Provider.
func (p *UserProvider) GetPrompt(_ context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	p.mu.Lock()
	prompts, _, err := p.load()
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	prompt, exists := prompts[name]
	if !exists {
		return nil, fmt.Errorf("%w: prompt %s", capability.ErrCapabilityNotFound, name)
	}

	rendered, err := renderTemplate(prompt.Template, prompt.Arguments, args)
	if err != nil {
		return nil, fmt.Errorf("prompt %s: %w", name, err)
	}
	return textPromptResult(prompt.Description, rendered), nil
}

// Create persists a new user prompt. Creating a prompt with a name that
// already exists in this provider is a duplicate-identifier error, never a
// silent overwrite.
func (p *UserProvider) Create(def config.PromptDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("%w: prompt with empty name", capability.ErrInvalidConfiguration)
	}
	if def.Template == "" {
		return fmt.Errorf("%w: prompt %q has no template", capability.ErrInvalidConfiguration, def.Name)
	}

	p.mu.Lock()
	prompts, _, err := p.load()
	if err != nil {
		p.mu.Unlock()
		return err
	}
	if _, exists := prompts[def.Name]; exists {
		p.mu.Unlock()
		return fmt.Errorf("%w: prompt %q already exists", capability.ErrDuplicateIdentifier, def.Name)
	}

	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("failed to create user prompt directory: %w", err)
	}

	prompt := userPromptFile{
		ID:          uuid.NewString(),
		Name:        def.Name,
		Title:       def.Title,
		Description: def.Description,
		Arguments:   def.Arguments,
		Template:    def.Template,
	}
	data, err := yaml.Marshal(prompt)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	path := filepath.Join(p.dir, prompt.ID+".yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("failed to write user prompt: %w", err)
	}
	p.mu.Unlock()

	p.notifyInvalidate()
	return nil
}

// Delete removes a user prompt by name.
func (p *UserProvider) Delete(name string) error {
	p.mu.Lock()
	prompts, _, err := p.load()
	if err != nil {
		p.mu.Unlock()
		return err
	}
	prompt, exists := prompts[name]
	if !exists {
		p.mu.Unlock()
		return fmt.Errorf("%w: prompt %s", capability.ErrCapabilityNotFound, name)
	}
	err = os.Remove(filepath.Join(p.dir, prompt.ID+".yaml"))
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to delete user prompt %s: %w", name, err)
	}

	p.notifyInvalidate()
	return nil
}

func (p *UserProvider) notifyInvalidate() {
	p.mu.Lock()
	fn := p.invalidate
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}
