package veille

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	fetchpkg "github.com/hazyhaar/pdfveille/veille/internal/fetch"
	"github.com/hazyhaar/pdfveille/veille/internal/search"
)

// Config configures the veille service.
type Config struct {
	// FeedURL is the feed ingested by IngestURL when no URL is given.
	FeedURL string `yaml:"feed_url" validate:"omitempty,http_url"`

	// ContextWidth is the number of characters kept on each side of a match.
	// Zero selects the default of 50.
	ContextWidth int `yaml:"context_width" validate:"gte=1,lte=1000"`

	// Workers bounds the number of publications extracted in parallel.
	Workers int `yaml:"workers" validate:"gte=1,lte=64"`

	// Prefetch extracts every publication in the background after ingestion.
	Prefetch bool `yaml:"prefetch"`

	// Fetch settings for documents and the feed itself.
	Fetch fetchpkg.Config `yaml:"fetch"`

	// MaxDocumentBytes caps the size of a PDF handed to the extractor.
	MaxDocumentBytes int64 `yaml:"max_document_bytes" validate:"gte=0"`

	// EventsDB is the SQLite file for document availability events.
	EventsDB string `yaml:"events_db"`

	// EventsRetention is how long document events are kept. Default: 30 days.
	EventsRetention time.Duration `yaml:"events_retention" validate:"gte=0"`
}

func (c *Config) defaults() {
	if c.ContextWidth <= 0 {
		c.ContextWidth = search.DefaultWidth
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = 10 * time.Second
	}
	if c.Fetch.MaxBytes <= 0 {
		c.Fetch.MaxBytes = 50 * 1024 * 1024
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "pdfveille/1.0"
	}
	if c.MaxDocumentBytes <= 0 {
		c.MaxDocumentBytes = c.Fetch.MaxBytes
	}
	if c.EventsDB == "" {
		c.EventsDB = ":memory:"
	}
	if c.EventsRetention <= 0 {
		c.EventsRetention = 30 * 24 * time.Hour
	}
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.defaults()
	return cfg
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: config: %w", ErrInvalidInput, err)
	}
	return nil
}

// LoadConfigFile reads a YAML config file, applies defaults and validates it.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
