package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// For mocking in tests.
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd

const (
	userConfigDir    = ".config/agentctl"
	projectConfigDir = ".agentctl"
	configFileName   = "config.yaml"
)

// LoadConfig loads the agentctl configuration by layering default, user, and
// project settings. Missing files are not an error; malformed ones are.
func LoadConfig() (Config, error) {
	config := GetDefaultConfig()

	userConfigPath, err := getUserConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not determine user config path: %v\n", err)
	} else {
		if _, err := os.Stat(userConfigPath); !os.IsNotExist(err) {
			userConfig, err := loadConfigFromFile(userConfigPath)
			if err != nil {
				return Config{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
			}
			config = mergeConfigs(config, userConfig)
		}
	}

	projectConfigPath, err := getProjectConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not determine project config path: %v\n", err)
	} else {
		if _, err := os.Stat(projectConfigPath); !os.IsNotExist(err) {
			projectConfig, err := loadConfigFromFile(projectConfigPath)
			if err != nil {
				return Config{}, fmt.Errorf("error loading project config from %s: %w", projectConfigPath, err)
			}
			config = mergeConfigs(config, projectConfig)
		}
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

// LoadConfigFromFile loads and validates a single configuration file,
// bypassing the layered lookup. Used by --config.
func LoadConfigFromFile(path string) (Config, error) {
	overlay, err := loadConfigFromFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("error loading config from %s: %w", path, err)
	}
	config := mergeConfigs(GetDefaultConfig(), overlay)
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

func loadConfigFromFile(filePath string) (Config, error) {
	var config Config
	data, err := os.ReadFile(filePath)
	if err != nil {
		return Config{}, err
	}
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return Config{}, err
	}
	return config, nil
}

// mergeConfigs merges 'overlay' into 'base'. Servers and prompts replace by
// name; scalar settings override when set.
func mergeConfigs(base, overlay Config) Config {
	merged := base

	if len(overlay.Servers) > 0 {
		serverMap := make(map[string]int, len(merged.Servers))
		for i, srv := range merged.Servers {
			serverMap[srv.Name] = i
		}
		for _, srv := range overlay.Servers {
			if i, exists := serverMap[srv.Name]; exists {
				merged.Servers[i] = srv
			} else {
				serverMap[srv.Name] = len(merged.Servers)
				merged.Servers = append(merged.Servers, srv)
			}
		}
	}

	if len(overlay.Prompts) > 0 {
		promptMap := make(map[string]int, len(merged.Prompts))
		for i, p := range merged.Prompts {
			promptMap[p.Name] = i
		}
		for _, p := range overlay.Prompts {
			if i, exists := promptMap[p.Name]; exists {
				merged.Prompts[i] = p
			} else {
				promptMap[p.Name] = len(merged.Prompts)
				merged.Prompts = append(merged.Prompts, p)
			}
		}
	}

	if overlay.PromptsDir != "" {
		merged.PromptsDir = overlay.PromptsDir
	}
	if overlay.UserPromptsDir != "" {
		merged.UserPromptsDir = overlay.UserPromptsDir
	}
	if overlay.Gateway.Host != "" {
		merged.Gateway.Host = overlay.Gateway.Host
	}
	if overlay.Gateway.Port != 0 {
		merged.Gateway.Port = overlay.Gateway.Port
	}

	return merged
}

// GetUserConfigDir returns the user configuration directory path.
func GetUserConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir), nil
}
