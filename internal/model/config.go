package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// LoggingConfig holds the logger settings.
type LoggingConfig struct {
	Level     string `mapstructure:"level" yaml:"level"`
	Format    string `mapstructure:"format" yaml:"format"`
	Output    string `mapstructure:"output" yaml:"output"`
	AddSource bool   `mapstructure:"add_source" yaml:"add_source"`
}

// AliasConfig controls the persistent alias store. When Enabled is false
// every backend falls back to native identifiers.
type AliasConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	DBPath  string `mapstructure:"db_path" yaml:"db_path"`
}

// OAuth2Config holds the settings needed to refresh an access token.
// The refresh token is read from the keyring when empty.
type OAuth2Config struct {
	ClientID     string   `mapstructure:"client_id" yaml:"client_id" validate:"required"`
	ClientSecret string   `mapstructure:"client_secret" yaml:"client_secret"`
	AuthURL      string   `mapstructure:"auth_url" yaml:"auth_url" validate:"omitempty,url"`
	TokenURL     string   `mapstructure:"token_url" yaml:"token_url" validate:"required,url"`
	Scopes       []string `mapstructure:"scopes" yaml:"scopes"`
	RefreshToken string   `mapstructure:"refresh_token" yaml:"refresh_token"`
}

// AuthConfig selects how a remote backend authenticates.
type AuthConfig struct {
	// Type is "password" (default) or "oauth2".
	Type string `mapstructure:"type" yaml:"type" validate:"omitempty,oneof=password oauth2"`

	// Password is used as is when set; otherwise it is read from the keyring.
	Password string `mapstructure:"password" yaml:"password"`

	OAuth2 *OAuth2Config `mapstructure:"oauth2" yaml:"oauth2" validate:"required_if=Type oauth2"`
}

// IMAPConfig holds the connection settings of the IMAP backend.
type IMAPConfig struct {
	Host       string     `mapstructure:"host" yaml:"host" validate:"required,hostname|ip"`
	Port       int        `mapstructure:"port" yaml:"port" validate:"required,min=1,max=65535"`
	Encryption string     `mapstructure:"encryption" yaml:"encryption" validate:"omitempty,oneof=tls starttls none"`
	Login      string     `mapstructure:"login" yaml:"login" validate:"required"`
	Auth       AuthConfig `mapstructure:"auth" yaml:"auth"`
}

// MaildirConfig holds the settings of the maildir backend.
type MaildirConfig struct {
	RootDir string `mapstructure:"root_dir" yaml:"root_dir" validate:"required"`
}

// IndexConfig holds the settings of the local search index backend.
type IndexConfig struct {
	// RootDir is the maildir tree being indexed.
	RootDir string `mapstructure:"root_dir" yaml:"root_dir" validate:"required"`

	// DBPath defaults to <root_dir>/.mailctl-index.db.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
}

// SMTPConfig holds the connection settings of the SMTP backend.
type SMTPConfig struct {
	Host       string     `mapstructure:"host" yaml:"host" validate:"required,hostname|ip"`
	Port       int        `mapstructure:"port" yaml:"port" validate:"required,min=1,max=65535"`
	Encryption string     `mapstructure:"encryption" yaml:"encryption" validate:"omitempty,oneof=tls starttls none"`
	Login      string     `mapstructure:"login" yaml:"login" validate:"required"`
	Auth       AuthConfig `mapstructure:"auth" yaml:"auth"`
}

// SendmailConfig holds the settings of the command-based sending backend.
type SendmailConfig struct {
	Cmd string `mapstructure:"cmd" yaml:"cmd"`
}

// BackendConfig is the read backend selection of an account.
type BackendConfig struct {
	// Type is one of "none", "imap", "maildir" or "index".
	Type    string         `mapstructure:"type" yaml:"type"`
	IMAP    *IMAPConfig    `mapstructure:"imap" yaml:"imap"`
	Maildir *MaildirConfig `mapstructure:"maildir" yaml:"maildir"`
	Index   *IndexConfig   `mapstructure:"index" yaml:"index"`
}

// SendingConfig is the sending backend selection of an account.
type SendingConfig struct {
	// Type is one of "none", "smtp" or "sendmail".
	Type     string          `mapstructure:"type" yaml:"type"`
	SMTP     *SMTPConfig     `mapstructure:"smtp" yaml:"smtp"`
	Sendmail *SendmailConfig `mapstructure:"sendmail" yaml:"sendmail"`
}

// FolderConfig maps well-known folder names to backend folder names.
type FolderConfig struct {
	Aliases map[string]string `mapstructure:"aliases" yaml:"aliases"`
}

// EnvelopeConfig controls envelope listings.
type EnvelopeConfig struct {
	PageSize        int    `mapstructure:"page_size" yaml:"page_size"`
	DatetimeFmt     string `mapstructure:"datetime_fmt" yaml:"datetime_fmt"`
	DatetimeLocalTZ bool   `mapstructure:"datetime_local_tz" yaml:"datetime_local_tz"`
}

// SendMessageConfig controls message sending.
type SendMessageConfig struct {
	// SaveCopy adds every sent message to the sent folder. Defaults to true.
	SaveCopy *bool `mapstructure:"save_copy" yaml:"save_copy"`
}

// MessageConfig groups message related settings.
type MessageConfig struct {
	Send SendMessageConfig `mapstructure:"send" yaml:"send"`
}

// AccountConfig is the configuration of a single account.
type AccountConfig struct {
	// Name is filled from the accounts map key.
	Name string `mapstructure:"-" yaml:"-"`

	Default     bool           `mapstructure:"default" yaml:"default"`
	Email       string         `mapstructure:"email" yaml:"email"`
	DisplayName string         `mapstructure:"display_name" yaml:"display_name"`
	Backend     BackendConfig  `mapstructure:"backend" yaml:"backend"`
	Sending     SendingConfig  `mapstructure:"sending" yaml:"sending"`
	Folder      FolderConfig   `mapstructure:"folder" yaml:"folder"`
	Envelope    EnvelopeConfig `mapstructure:"envelope" yaml:"envelope"`
	Message     MessageConfig  `mapstructure:"message" yaml:"message"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	DisplayName  string                   `mapstructure:"display_name" yaml:"display_name"`
	DownloadsDir string                   `mapstructure:"downloads_dir" yaml:"downloads_dir"`
	Logging      LoggingConfig            `mapstructure:"logging" yaml:"logging"`
	Alias        AliasConfig              `mapstructure:"alias" yaml:"alias"`
	Accounts     map[string]AccountConfig `mapstructure:"accounts" yaml:"accounts"`
}

// Well-known folder names.
const (
	FolderInbox  = "inbox"
	FolderSent   = "sent"
	FolderDrafts = "drafts"
	FolderTrash  = "trash"
)

const (
	defaultPageSize    = 10
	defaultDatetimeFmt = "2006-01-02 15:04"
)

var defaultFolderAliases = map[string]string{
	FolderInbox:  "INBOX",
	FolderSent:   "Sent",
	FolderDrafts: "Drafts",
	FolderTrash:  "Trash",
}

// FolderAlias resolves a folder name through the account alias table.
// Unknown names are returned unchanged.
func (a AccountConfig) FolderAlias(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if folder, ok := a.Folder.Aliases[key]; ok && folder != "" {
		return folder
	}
	if folder, ok := defaultFolderAliases[key]; ok {
		return folder
	}
	return name
}

// PageSize returns the envelope page size.
func (a AccountConfig) PageSize() int {
	if a.Envelope.PageSize > 0 {
		return a.Envelope.PageSize
	}
	return defaultPageSize
}

// DatetimeFmt returns the Go time layout used for envelope dates.
func (a AccountConfig) DatetimeFmt() string {
	if a.Envelope.DatetimeFmt != "" {
		return a.Envelope.DatetimeFmt
	}
	return defaultDatetimeFmt
}

// SaveCopy reports whether sent messages are added to the sent folder.
func (a AccountConfig) SaveCopy() bool {
	if a.Message.Send.SaveCopy == nil {
		return true
	}
	return *a.Message.Send.SaveCopy
}

// Account returns the named account, or the default account when name is
// empty or "default".
func (c *AppConfig) Account(name string) (AccountConfig, error) {
	if name == "" || name == "default" {
		for _, n := range c.AccountNames() {
			if c.Accounts[n].Default {
				return c.Accounts[n], nil
			}
		}
		if len(c.Accounts) == 1 {
			for _, acc := range c.Accounts {
				return acc, nil
			}
		}
		return AccountConfig{}, errors.New("cannot find default account configuration")
	}

	acc, ok := c.Accounts[strings.ToLower(name)]
	if !ok {
		return AccountConfig{}, fmt.Errorf("cannot find configuration for account %s", name)
	}
	return acc, nil
}

// AccountNames returns the configured account names sorted.
func (c *AppConfig) AccountNames() []string {
	names := make([]string, 0, len(c.Accounts))
	for name := range c.Accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every account and reports all problems at once.
func (c *AppConfig) Validate() error {
	var errs []error

	defaults := 0
	for _, name := range c.AccountNames() {
		acc := c.Accounts[name]
		if acc.Default {
			defaults++
		}
		if err := acc.validate(); err != nil {
			errs = append(errs, fmt.Errorf("accounts.%s: %w", name, err))
		}
	}
	if defaults > 1 {
		errs = append(errs, errors.New("only one account can be marked as default"))
	}

	return errors.Join(errs...)
}

func (a AccountConfig) validate() error {
	var errs []error

	switch strings.ToLower(a.Backend.Type) {
	case "", "none":
	case "imap":
		errs = append(errs, validateSection("backend.imap", a.Backend.IMAP))
	case "maildir":
		errs = append(errs, validateSection("backend.maildir", a.Backend.Maildir))
	case "index":
		errs = append(errs, validateSection("backend.index", a.Backend.Index))
	default:
		errs = append(errs, fmt.Errorf("backend.type: unknown backend %q", a.Backend.Type))
	}

	switch strings.ToLower(a.Sending.Type) {
	case "", "none", "sendmail":
	case "smtp":
		errs = append(errs, validateSection("sending.smtp", a.Sending.SMTP))
	default:
		errs = append(errs, fmt.Errorf("sending.type: unknown sending backend %q", a.Sending.Type))
	}

	return errors.Join(errs...)
}

// validateSection validates a variant section, which must be present.
func validateSection[T any](name string, section *T) error {
	if section == nil {
		return fmt.Errorf("%s: section is required", name)
	}
	if err := validate.Struct(section); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailctl/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailctl", "config.yaml")
}

// DefaultAliasDBPath returns the default location of the alias database.
func DefaultAliasDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "aliases.db")
	}
	return filepath.Join(home, ".local", "share", "mailctl", "aliases.db")
}

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
			Output: "stderr",
		},
		Alias: AliasConfig{
			Enabled: true,
			DBPath:  DefaultAliasDBPath(),
		},
		Accounts: map[string]AccountConfig{},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Environment variables prefixed with MAILCTL_ override file values. If the
// file does not exist, the default configuration is returned.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("alias.enabled", true)
	v.SetDefault("alias.db_path", DefaultAliasDBPath())

	v.SetEnvPrefix("MAILCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.Alias.DBPath = ExpandPath(cfg.Alias.DBPath)
	cfg.DownloadsDir = ExpandPath(cfg.DownloadsDir)

	for name, acc := range cfg.Accounts {
		acc.Name = name
		if acc.Backend.Maildir != nil {
			acc.Backend.Maildir.RootDir = ExpandPath(acc.Backend.Maildir.RootDir)
		}
		if acc.Backend.Index != nil {
			acc.Backend.Index.RootDir = ExpandPath(acc.Backend.Index.RootDir)
			acc.Backend.Index.DBPath = ExpandPath(acc.Backend.Index.DBPath)
		}
		cfg.Accounts[name] = acc
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}
