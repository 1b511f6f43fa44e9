package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != DefaultHTTPAddr {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Storage.Path != DefaultStoragePath {
		t.Fatalf("storage = %q", cfg.Storage.Path)
	}
	if cfg.Gateway.BaseURL == "" || cfg.Gateway.TimeoutSeconds != 120 {
		t.Fatalf("gateway defaults: %+v", cfg.Gateway)
	}
	if len(cfg.Accounts) != 0 {
		t.Fatalf("accounts = %d", len(cfg.Accounts))
	}
}

func TestLoadAccountDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[[accounts]]
app_id = "cli_abc"
app_secret = "s3cret"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Accounts) != 1 {
		t.Fatalf("accounts = %d", len(cfg.Accounts))
	}
	acct := cfg.Accounts[0]
	if acct.ID != "cli_abc" {
		t.Fatalf("id should default to app_id, got %q", acct.ID)
	}
	if acct.DMPolicy != DMPolicyPairing || acct.GroupPolicy != GroupPolicyAllowlist {
		t.Fatalf("policy defaults: %s %s", acct.DMPolicy, acct.GroupPolicy)
	}
	if acct.Region != RegionFeishu || acct.InboundMode != InboundModeWebsocket {
		t.Fatalf("region/mode defaults: %s %s", acct.Region, acct.InboundMode)
	}
	if acct.TableMode != TableModeCode || acct.MediaMaxBytes != DefaultMediaMaxSize {
		t.Fatalf("table/media defaults: %s %d", acct.TableMode, acct.MediaMaxBytes)
	}
}

func TestLoadFullAccount(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[log]
level = "debug"
format = "json"

[[accounts]]
id = "main"
app_id = "cli_abc"
app_secret = "s3cret"
region = "lark"
inbound_mode = "webhook"
dm_policy = "allowlist"
allow_from = ["ou_admin", "*"]
group_policy = "open"
table_mode = "bullets"
media_max_bytes = 1048576

[accounts.groups.oc_team]
enabled = true
require_mention = false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	acct := cfg.Accounts[0]
	if acct.Region != RegionLark || acct.InboundMode != InboundModeWebhook {
		t.Fatalf("region/mode: %s %s", acct.Region, acct.InboundMode)
	}
	if acct.DMPolicy != DMPolicyAllowlist || acct.GroupPolicy != GroupPolicyOpen {
		t.Fatalf("policies: %s %s", acct.DMPolicy, acct.GroupPolicy)
	}
	override, ok := acct.GroupOverrideFor("oc_team")
	if !ok {
		t.Fatal("missing group override")
	}
	if override.Enabled == nil || !*override.Enabled {
		t.Fatal("enabled override not parsed")
	}
	if override.RequireMention == nil || *override.RequireMention {
		t.Fatal("require_mention override not parsed")
	}
	if _, ok := acct.GroupOverrideFor("oc_other"); ok {
		t.Fatal("unexpected override for unknown chat")
	}
}

func TestLoadSecretFile(t *testing.T) {
	t.Parallel()

	secretPath := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(secretPath, []byte("  from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	path := writeConfig(t, `
[[accounts]]
app_id = "cli_abc"
app_secret_file = "`+secretPath+`"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Accounts[0].AppSecret; got != "from-file" {
		t.Fatalf("secret = %q", got)
	}
}

func TestLoadRejectsInvalidAccounts(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"missing app_id": `
[[accounts]]
app_secret = "x"
`,
		"missing secret": `
[[accounts]]
app_id = "cli_abc"
`,
		"bad region": `
[[accounts]]
app_id = "cli_abc"
app_secret = "x"
region = "mars"
`,
		"bad dm policy": `
[[accounts]]
app_id = "cli_abc"
app_secret = "x"
dm_policy = "vip"
`,
		"bad inbound mode": `
[[accounts]]
app_id = "cli_abc"
app_secret = "x"
inbound_mode = "carrier-pigeon"
`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, content)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
