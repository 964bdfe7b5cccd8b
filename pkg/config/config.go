package config

import (
	"fmt"
	"os"
	"os/user"
	"path"

	"gopkg.in/yaml.v2"
)

const (
	configDir  string = ".rproc"
	configFile string = "config.yml"
)

// Config defines all configuration options available to be set through
// the config file.
type Config struct {
	// Demangle controls whether symbol names are demangled by default.
	Demangle *bool `yaml:"demangle,omitempty"`
	// MaxStackDepth is the maximum number of frames printed per thread.
	MaxStackDepth *int `yaml:"max-stack-depth,omitempty"`
	// Log is the default list of logging layers to enable.
	Log string `yaml:"log,omitempty"`
}

// LoadConfig attempts to populate a Config object from the config.yml
// file. Failures fall back to an empty config; the config file is a
// convenience, never a requirement.
func LoadConfig() *Config {
	err := createConfigPath()
	if err != nil {
		fmt.Printf("Could not create config directory: %v.\n", err)
		return &Config{}
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		fmt.Printf("Unable to get config file path: %v.\n", err)
		return &Config{}
	}

	data, err := os.ReadFile(fullConfigFile)
	if err != nil {
		return &Config{}
	}

	var c Config
	err = yaml.Unmarshal(data, &c)
	if err != nil {
		fmt.Printf("Unable to decode config file: %v.\n", err)
		return &Config{}
	}
	return &c
}

// SaveConfig writes the config back to the config file.
func SaveConfig(conf *Config) error {
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(*conf)
	if err != nil {
		return err
	}

	return os.WriteFile(fullConfigFile, out, 0644)
}

func createConfigPath() error {
	path, err := GetConfigFilePath("")
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0700)
}

// GetConfigFilePath gets the full path to the given config file name.
func GetConfigFilePath(file string) (string, error) {
	usr, err := user.Current()
	if err != nil {
		return "", err
	}
	return path.Join(usr.HomeDir, configDir, file), nil
}
