// Package config holds all docxmerge configuration: account credentials,
// the view and field names the pipeline reads and writes, and render
// settings. Field names configured here are validated against live view
// schemas before the pipeline touches any record.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all docxmerge configuration.
type Config struct {
	// Record store account
	Account AccountConfig `yaml:"account"`

	// Source tables holding records to merge
	Source SourceConfig `yaml:"source"`

	// Template table
	Templates TemplatesConfig `yaml:"templates"`

	// Destination table for merged documents
	Destination DestinationConfig `yaml:"destination"`

	// Document rendering
	Render RenderConfig `yaml:"render"`
}

// AccountConfig configures record-store access.
type AccountConfig struct {
	APIKey      string `yaml:"api_key"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	Environment string `yaml:"environment"` // record store base URL
}

// SourceConfig configures the tables whose records get merged.
type SourceConfig struct {
	// TableViews maps a triggering table id to the view the pipeline reads.
	TableViews map[int]int `yaml:"table_views"`

	// TemplateLinkField is the record field linking a record to its template.
	TemplateLinkField string `yaml:"template_link_field"`

	// RecordIDField names the user-visible record identifier used in the
	// merged-document notes.
	RecordIDField string `yaml:"record_id_field"`

	// LastUserField names the last-editing-user relationship, when tracked.
	LastUserField string `yaml:"last_user_field"`

	// ImageFields lists the image fields to inline before rendering. Empty
	// means auto-detect from the view schema.
	ImageFields []string `yaml:"image_fields"`
}

// TemplatesConfig configures where template binaries live.
type TemplatesConfig struct {
	ViewID        int    `yaml:"view_id"`
	DocumentField string `yaml:"document_field"`
}

// DestinationConfig configures where merged documents are filed. Fields other
// than DocumentField are optional; empty means the bookkeeping they drive is
// skipped.
type DestinationConfig struct {
	ViewID            int    `yaml:"view_id"`
	DocumentField     string `yaml:"document_field"`
	DetailsField      string `yaml:"details_field"`
	TemplateLinkField string `yaml:"template_link_field"`
	MergeUserField    string `yaml:"merge_user_field"`
}

// RenderConfig configures document generation.
type RenderConfig struct {
	// ImageWidth and ImageHeight force inserted image dimensions; zero means
	// resolve from the image itself.
	ImageWidth  int `yaml:"image_width"`
	ImageHeight int `yaml:"image_height"`

	// StagingDir holds the disposable on-disk copy of each generated
	// document. Empty means the system temp directory.
	StagingDir string `yaml:"staging_dir"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Account: AccountConfig{
			Environment: "https://go.trackvia.com",
		},
		Source: SourceConfig{
			TableViews:        map[int]int{},
			TemplateLinkField: "Template",
			RecordIDField:     "Record ID",
			LastUserField:     "Last User",
		},
		Templates: TemplatesConfig{
			DocumentField: "Template File",
		},
		Destination: DestinationConfig{
			DocumentField: "Merged Document",
			DetailsField:  "Details",
		},
	}
}

// Load loads configuration from a YAML file, applying defaults and
// environment overrides. A missing file is not an error; defaults plus
// environment carry a fully env-configured deployment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("TRACKVIA_API_KEY"); key != "" {
		c.Account.APIKey = key
	}
	if user := os.Getenv("TRACKVIA_USERNAME"); user != "" {
		c.Account.Username = user
	}
	if pass := os.Getenv("TRACKVIA_PASSWORD"); pass != "" {
		c.Account.Password = pass
	}
	if host := os.Getenv("TRACKVIA_HOST"); host != "" {
		c.Account.Environment = host
	}
}

// ViewForTable resolves the view the pipeline reads for a triggering table.
func (c *Config) ViewForTable(tableID int) (int, error) {
	viewID, ok := c.Source.TableViews[tableID]
	if !ok {
		return 0, fmt.Errorf("no view configured for table %d", tableID)
	}
	return viewID, nil
}

// Validate rejects configurations the pipeline can't run with at all.
// Schema-level field checks happen later against live view structure.
func (c *Config) Validate() error {
	if c.Account.APIKey == "" {
		return fmt.Errorf("account.api_key is required")
	}
	if c.Account.Username == "" || c.Account.Password == "" {
		return fmt.Errorf("account.username and account.password are required")
	}
	if c.Templates.ViewID <= 0 {
		return fmt.Errorf("templates.view_id must be numeric and greater than 0")
	}
	if c.Destination.ViewID <= 0 {
		return fmt.Errorf("destination.view_id must be numeric and greater than 0")
	}
	if c.Source.TemplateLinkField == "" {
		return fmt.Errorf("source.template_link_field is required")
	}
	if c.Destination.DocumentField == "" {
		return fmt.Errorf("destination.document_field is required")
	}
	return nil
}
