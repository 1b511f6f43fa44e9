// Package config loads the adapter configuration from a TOML file and
// resolves per-account policy defaults.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath   = "config.toml"
	DefaultHTTPAddr     = ":8090"
	DefaultStoragePath  = "data/feishubot.db"
	DefaultMediaMaxSize = int64(30 << 20)

	RegionFeishu = "feishu"
	RegionLark   = "lark"

	InboundModeWebsocket = "websocket"
	InboundModeWebhook   = "webhook"
)

// DMPolicy controls who may talk to the bot in a direct chat.
type DMPolicy string

const (
	DMPolicyPairing   DMPolicy = "pairing"
	DMPolicyAllowlist DMPolicy = "allowlist"
	DMPolicyOpen      DMPolicy = "open"
	DMPolicyDisabled  DMPolicy = "disabled"
)

// GroupPolicy controls which group chats the bot participates in.
type GroupPolicy string

const (
	GroupPolicyAllowlist GroupPolicy = "allowlist"
	GroupPolicyOpen      GroupPolicy = "open"
	GroupPolicyDisabled  GroupPolicy = "disabled"
)

// TableMode selects how markdown tables are rendered for the platform.
type TableMode string

const (
	TableModeCode     TableMode = "code"
	TableModeBullets  TableMode = "bullets"
	TableModeMarkdown TableMode = "markdown"
)

type Config struct {
	Log      LogConfig     `toml:"log"`
	Server   ServerConfig  `toml:"server"`
	Storage  StorageConfig `toml:"storage"`
	Gateway  GatewayConfig `toml:"gateway"`
	Accounts []Account     `toml:"accounts"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig configures the HTTP listener used by webhook inbound mode.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

type StorageConfig struct {
	Path string `toml:"path"`
}

// GatewayConfig points at the agent gateway that generates replies.
type GatewayConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// GroupOverride holds per-group settings. Nil fields mean "not set" and fall
// back to the account-level default.
type GroupOverride struct {
	Enabled        *bool `toml:"enabled"`
	RequireMention *bool `toml:"require_mention"`
}

// Account is a resolved bot identity. One Account maps to exactly one
// long-lived event connection and is immutable for its lifetime.
type Account struct {
	ID                string                   `toml:"id"`
	AppID             string                   `toml:"app_id"`
	AppSecret         string                   `toml:"app_secret"`
	AppSecretFile     string                   `toml:"app_secret_file"`
	EncryptKey        string                   `toml:"encrypt_key"`
	VerificationToken string                   `toml:"verification_token"`
	Region            string                   `toml:"region"`
	InboundMode       string                   `toml:"inbound_mode"`
	DMPolicy          DMPolicy                 `toml:"dm_policy"`
	AllowFrom         []string                 `toml:"allow_from"`
	GroupPolicy       GroupPolicy              `toml:"group_policy"`
	GroupAllowFrom    []string                 `toml:"group_allow_from"`
	Groups            map[string]GroupOverride `toml:"groups"`
	MediaMaxBytes     int64                    `toml:"media_max_bytes"`
	TableMode         TableMode                `toml:"table_mode"`
}

// GroupOverrideFor returns the override for the given chat id, if any.
func (a Account) GroupOverrideFor(chatID string) (GroupOverride, bool) {
	if a.Groups == nil {
		return GroupOverride{}, false
	}
	ov, ok := a.Groups[strings.TrimSpace(chatID)]
	return ov, ok
}

// Load reads the config file at path (DefaultConfigPath when empty), applies
// defaults, and validates every account. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Config{
		Log:     LogConfig{Level: "info", Format: "text"},
		Server:  ServerConfig{Addr: DefaultHTTPAddr},
		Storage: StorageConfig{Path: DefaultStoragePath},
		Gateway: GatewayConfig{BaseURL: "http://127.0.0.1:8081", TimeoutSeconds: 120},
	}
	if path == "" {
		path = DefaultConfigPath
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}
	for i := range cfg.Accounts {
		acct, err := normalizeAccount(cfg.Accounts[i])
		if err != nil {
			return cfg, fmt.Errorf("account %d: %w", i, err)
		}
		cfg.Accounts[i] = acct
	}
	return cfg, nil
}

func normalizeAccount(a Account) (Account, error) {
	a.AppID = strings.TrimSpace(a.AppID)
	a.AppSecret = strings.TrimSpace(a.AppSecret)
	a.AppSecretFile = strings.TrimSpace(a.AppSecretFile)
	if a.AppID == "" {
		return a, fmt.Errorf("app_id is required")
	}
	if a.AppSecret == "" && a.AppSecretFile != "" {
		data, err := os.ReadFile(a.AppSecretFile)
		if err != nil {
			return a, fmt.Errorf("read app_secret_file: %w", err)
		}
		a.AppSecret = strings.TrimSpace(string(data))
	}
	if a.AppSecret == "" {
		return a, fmt.Errorf("app_secret or app_secret_file is required")
	}
	if strings.TrimSpace(a.ID) == "" {
		a.ID = a.AppID
	}
	region, err := normalizeRegion(a.Region)
	if err != nil {
		return a, err
	}
	a.Region = region
	mode, err := normalizeInboundMode(a.InboundMode)
	if err != nil {
		return a, err
	}
	a.InboundMode = mode
	switch a.DMPolicy {
	case "":
		a.DMPolicy = DMPolicyPairing
	case DMPolicyPairing, DMPolicyAllowlist, DMPolicyOpen, DMPolicyDisabled:
	default:
		return a, fmt.Errorf("dm_policy must be one of pairing, allowlist, open, disabled")
	}
	switch a.GroupPolicy {
	case "":
		a.GroupPolicy = GroupPolicyAllowlist
	case GroupPolicyAllowlist, GroupPolicyOpen, GroupPolicyDisabled:
	default:
		return a, fmt.Errorf("group_policy must be one of allowlist, open, disabled")
	}
	switch a.TableMode {
	case "":
		a.TableMode = TableModeCode
	case TableModeCode, TableModeBullets, TableModeMarkdown:
	default:
		return a, fmt.Errorf("table_mode must be one of code, bullets, markdown")
	}
	if a.MediaMaxBytes <= 0 {
		a.MediaMaxBytes = DefaultMediaMaxSize
	}
	return a, nil
}

func normalizeRegion(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", RegionFeishu, "cn", "china":
		return RegionFeishu, nil
	case RegionLark, "global", "intl", "international":
		return RegionLark, nil
	default:
		return "", fmt.Errorf("region must be feishu or lark")
	}
}

func normalizeInboundMode(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", InboundModeWebsocket:
		return InboundModeWebsocket, nil
	case InboundModeWebhook:
		return InboundModeWebhook, nil
	default:
		return "", fmt.Errorf("inbound_mode must be websocket or webhook")
	}
}
