// Package config loads and validates the credhub.yaml configuration.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	credErrors "github.com/systmms/credhub/internal/errors"
	"github.com/systmms/credhub/internal/fingerprint"
	"github.com/systmms/credhub/internal/logging"
)

// CipherConfig selects the master key source.
type CipherConfig struct {
	// KeySource is "file", "keyring" or "static".
	KeySource string `yaml:"keySource" json:"keySource"`
	// KeyFile is the key path for the file source.
	KeyFile string `yaml:"keyFile,omitempty" json:"keyFile,omitempty"`
	// KeyMaterial is the base64 key for the static source. Static keys
	// are for tests and throwaway environments only.
	KeyMaterial string `yaml:"keyMaterial,omitempty" json:"keyMaterial,omitempty"`
}

// FingerprintConfig controls usage tracking.
type FingerprintConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Hash    string `yaml:"hash,omitempty" json:"hash,omitempty"`
}

// AWSConfig configures the optional Secrets Manager provider.
type AWSConfig struct {
	Enabled         bool   `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Region          string `yaml:"region,omitempty" json:"region,omitempty"`
	Endpoint        string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Prefix          string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	AccessKeyID     string `yaml:"accessKeyId,omitempty" json:"accessKeyId,omitempty"`
	SecretAccessKey string `yaml:"secretAccessKey,omitempty" json:"secretAccessKey,omitempty"`
}

// ProvidersConfig holds the provider filter policy.
type ProvidersConfig struct {
	// Allowed, when non-empty, is an allow-list: only the named
	// providers run.
	Allowed []string `yaml:"allowed,omitempty" json:"allowed,omitempty"`
	// Disabled switches providers off installation-wide, in either
	// filter mode.
	Disabled []string `yaml:"disabled,omitempty" json:"disabled,omitempty"`
	// TypeRestrictions limits which credential types a provider may
	// surface. Providers absent from the map are unrestricted.
	TypeRestrictions map[string][]string `yaml:"typeRestrictions,omitempty" json:"typeRestrictions,omitempty"`
	// TypeDenials bars (provider, type) pairs outright; a denial wins
	// over a typeRestrictions entry.
	TypeDenials map[string][]string `yaml:"typeDenials,omitempty" json:"typeDenials,omitempty"`
	AWS         AWSConfig           `yaml:"aws,omitempty" json:"aws,omitempty"`
}

// Config is the loaded credhub.yaml.
type Config struct {
	// StoresDir is where the file stores live.
	StoresDir string       `yaml:"storesDir,omitempty" json:"storesDir,omitempty"`
	Cipher    CipherConfig `yaml:"cipher,omitempty" json:"cipher,omitempty"`

	// UseOwnImpliesAdminister requires administrator rights for the
	// UseOwn permission, for installations that treat personal
	// credentials as an administrative feature.
	UseOwnImpliesAdminister bool `yaml:"useOwnImpliesAdminister,omitempty" json:"useOwnImpliesAdminister,omitempty"`

	// FIPSAlgorithms tightens credential validation (minimum password
	// length 14) and should pair with a sha256 fingerprint hash.
	FIPSAlgorithms bool `yaml:"fipsAlgorithms,omitempty" json:"fipsAlgorithms,omitempty"`

	Fingerprint FingerprintConfig `yaml:"fingerprint,omitempty" json:"fingerprint,omitempty"`
	Providers   ProvidersConfig   `yaml:"providers,omitempty" json:"providers,omitempty"`

	Logger *logging.Logger `yaml:"-" json:"-"`
}

// schema is the JSON schema credhub.yaml must satisfy.
const schema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "storesDir": {"type": "string"},
    "cipher": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "keySource": {"type": "string", "enum": ["file", "keyring", "static"]},
        "keyFile": {"type": "string"},
        "keyMaterial": {"type": "string"}
      }
    },
    "useOwnImpliesAdminister": {"type": "boolean"},
    "fipsAlgorithms": {"type": "boolean"},
    "fingerprint": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "enabled": {"type": "boolean"},
        "hash": {"type": "string", "enum": ["md5", "sha256"]}
      }
    },
    "providers": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "allowed": {"type": "array", "items": {"type": "string"}},
        "disabled": {"type": "array", "items": {"type": "string"}},
        "typeRestrictions": {
          "type": "object",
          "additionalProperties": {"type": "array", "items": {"type": "string"}}
        },
        "typeDenials": {
          "type": "object",
          "additionalProperties": {"type": "array", "items": {"type": "string"}}
        },
        "aws": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "enabled": {"type": "boolean"},
            "region": {"type": "string"},
            "endpoint": {"type": "string"},
            "prefix": {"type": "string"},
            "accessKeyId": {"type": "string"},
            "secretAccessKey": {"type": "string"}
          }
        }
      }
    }
  }
}`

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		StoresDir: defaultStoresDir(),
		Cipher:    CipherConfig{KeySource: "file"},
	}
}

func defaultStoresDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "credhub-stores"
	}
	return filepath.Join(home, ".credhub", "stores")
}

// Load reads, validates and decodes path. A missing file yields the
// defaults; a present file must pass schema validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, credErrors.Wrap(credErrors.IO, err, "reading config %s", path)
	}
	return Parse(data, path)
}

// Parse validates and decodes raw configuration bytes.
func Parse(data []byte, origin string) (*Config, error) {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, credErrors.Wrap(credErrors.InvalidArgument, err, "parsing config %s", origin)
	}
	if err := validate(doc, origin); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, credErrors.Wrap(credErrors.InvalidArgument, err, "decoding config %s", origin)
	}
	if cfg.StoresDir == "" {
		cfg.StoresDir = defaultStoresDir()
	}
	if cfg.Cipher.KeySource == "" {
		cfg.Cipher.KeySource = "file"
	}
	return cfg, nil
}

func validate(doc map[string]interface{}, origin string) error {
	jsonData, err := json.Marshal(doc)
	if err != nil {
		return credErrors.Wrap(credErrors.InvalidArgument, err, "converting config %s", origin)
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewBytesLoader(jsonData),
	)
	if err != nil {
		return credErrors.Wrap(credErrors.InvalidArgument, err, "validating config %s", origin)
	}
	if !result.Valid() {
		var messages []string
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}
		return credErrors.Invalidf("config %s is invalid:\n  - %s", origin, strings.Join(messages, "\n  - "))
	}
	return nil
}

// FingerprintEnabled resolves the tracking toggle, default on.
func (c *Config) FingerprintEnabled() bool {
	if c.Fingerprint.Enabled == nil {
		return true
	}
	return *c.Fingerprint.Enabled
}

// FingerprintAlgorithm resolves the hash knob, default MD5.
func (c *Config) FingerprintAlgorithm() fingerprint.Algorithm {
	if c.Fingerprint.Hash == string(fingerprint.SHA256) {
		return fingerprint.SHA256
	}
	return fingerprint.MD5
}

// KeyFile resolves the file key path, defaulting next to the stores.
func (c *Config) KeyFile() string {
	if c.Cipher.KeyFile != "" {
		return c.Cipher.KeyFile
	}
	return filepath.Join(c.StoresDir, "master.key")
}
