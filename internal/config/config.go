package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid configuration")

const (
	ProviderIMAP  = "imap"
	ProviderGmail = "gmail"
)

// MailAccount is one mailbox the watcher polls.
type MailAccount struct {
	Name     string `yaml:"name"`
	Provider string `yaml:"provider"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	IMAPHost string `yaml:"imap_host"`
	IMAPPort int    `yaml:"imap_port"`
}

type Config struct {
	StateDBPath string
	ExportDir   string

	LogLevel  string
	LogPretty bool

	Accounts         []MailAccount
	AccountsFile     string
	IMAPTimeoutSec   int
	MaxEmailsPerRun  int
	MaxAgeDays       int
	CheckIntervalSec int

	QQEmailAddress   string
	QQEmailPassword  string
	PKUEmailAddress  string
	PKUEmailPassword string

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string

	KimiAPIKey     string
	KimiAPIURL     string
	KimiModel      string
	KimiTimeoutSec int

	Stage1BatchSize   int
	Stage2BodyLimit   int
	Stage2Concurrency int

	NotionToken         string
	NotionParentPageID  string
	NotionAPIURL        string
	NotionVersion       string
	NotionRateLimitRPS  int
	NotionTimeoutSec    int
	NotionRetryAttempts int
	NotionRetryBackoff  int

	IMessageEnabled     bool
	IMessageRecipient   string
	IMessageSender      string
	IMessageNotifyLevel string
	IMessageQuietHours  string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		StateDBPath: getEnv("STATE_DB_PATH", filepath.Join(cwd, "data", "state.db")),
		ExportDir:   getEnv("EXPORT_DIR", filepath.Join(cwd, "out")),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvBool("LOG_PRETTY", false),

		AccountsFile:     getEnv("MAIL_ACCOUNTS_FILE", ""),
		IMAPTimeoutSec:   getEnvInt("IMAP_TIMEOUT", 60),
		MaxEmailsPerRun:  getEnvInt("MAX_EMAILS_PER_BATCH", 100),
		MaxAgeDays:       getEnvInt("MAX_AGE_DAYS", 0),
		CheckIntervalSec: getEnvInt("CHECK_INTERVAL", 600),

		QQEmailAddress:   getEnv("QQ_EMAIL_ADDRESS", ""),
		QQEmailPassword:  getEnv("QQ_EMAIL_PASSWORD", ""),
		PKUEmailAddress:  getEnv("PKU_EMAIL_ADDRESS", ""),
		PKUEmailPassword: getEnv("PKU_EMAIL_PASSWORD", ""),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),

		KimiAPIKey:     getEnv("KIMI_API_KEY", ""),
		KimiAPIURL:     normalizeLLMURL(getEnv("KIMI_API_URL", "https://api.moonshot.cn/v1")),
		KimiModel:      getEnv("KIMI_MODEL", "kimi-k2.5"),
		KimiTimeoutSec: getEnvInt("KIMI_TIMEOUT", 120),

		Stage1BatchSize:   getEnvInt("STAGE1_BATCH_SIZE", 10),
		Stage2BodyLimit:   getEnvInt("STAGE2_BODY_LIMIT", 800),
		Stage2Concurrency: getEnvInt("STAGE2_CONCURRENCY", 1),

		NotionToken:         getEnv("NOTION_TOKEN", ""),
		NotionParentPageID:  getEnv("NOTION_PARENT_PAGE_ID", ""),
		NotionAPIURL:        getEnv("NOTION_API_URL", "https://api.notion.com/v1"),
		NotionVersion:       getEnv("NOTION_VERSION", "2022-06-28"),
		NotionRateLimitRPS:  getEnvInt("NOTION_RATE_LIMIT_RPS", 3),
		NotionTimeoutSec:    getEnvInt("NOTION_TIMEOUT", 30),
		NotionRetryAttempts: getEnvInt("NOTION_RETRY_ATTEMPTS", 3),
		NotionRetryBackoff:  getEnvInt("NOTION_RETRY_BACKOFF_MS", 2000),

		IMessageEnabled:     getEnvBool("IMESSAGE_ENABLED", false),
		IMessageRecipient:   getEnv("IMESSAGE_RECIPIENT", ""),
		IMessageSender:      getEnv("IMESSAGE_SENDER", ""),
		IMessageNotifyLevel: strings.ToLower(getEnv("IMESSAGE_NOTIFY_LEVEL", "summary")),
		IMessageQuietHours:  getEnv("IMESSAGE_QUIET_HOURS", "23:00-07:00"),
	}

	cfg.Accounts = cfg.envAccounts()
	if cfg.AccountsFile != "" {
		extra, err := LoadAccountsFile(cfg.AccountsFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Accounts = append(cfg.Accounts, extra...)
	}

	return cfg, nil
}

// envAccounts builds the fixed QQ/PKU/Gmail accounts from env. Half
// configured pairs are left out here and reported by Validate.
func (c Config) envAccounts() []MailAccount {
	var out []MailAccount
	if c.QQEmailAddress != "" && c.QQEmailPassword != "" {
		out = append(out, MailAccount{
			Name:     "QQ邮箱",
			Provider: ProviderIMAP,
			Address:  c.QQEmailAddress,
			Password: c.QQEmailPassword,
			IMAPHost: "imap.qq.com",
			IMAPPort: 993,
		})
	}
	if c.PKUEmailAddress != "" && c.PKUEmailPassword != "" {
		out = append(out, MailAccount{
			Name:     "PKU邮箱",
			Provider: ProviderIMAP,
			Address:  c.PKUEmailAddress,
			Password: c.PKUEmailPassword,
			IMAPHost: "mail.pku.edu.cn",
			IMAPPort: 993,
		})
	}
	if c.HasGmail() {
		out = append(out, MailAccount{Name: "Gmail", Provider: ProviderGmail})
	}
	return out
}

func (c Config) HasGmail() bool {
	return c.GmailClientID != "" && c.GmailClientSecret != "" && c.GmailRefreshToken != ""
}

type accountsFile struct {
	Accounts []MailAccount `yaml:"accounts"`
}

// LoadAccountsFile reads extra IMAP accounts from a YAML file.
func LoadAccountsFile(path string) ([]MailAccount, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read accounts file: %w", err)
	}
	var parsed accountsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse accounts file: %w", err)
	}
	out := make([]MailAccount, 0, len(parsed.Accounts))
	for i, acc := range parsed.Accounts {
		if acc.Provider == "" {
			acc.Provider = ProviderIMAP
		}
		if acc.IMAPPort == 0 {
			acc.IMAPPort = 993
		}
		if acc.Name == "" {
			acc.Name = acc.Address
		}
		if acc.Provider == ProviderIMAP && acc.IMAPHost == "" {
			return nil, fmt.Errorf("%w: account %d (%s) has no imap_host", ErrInvalid, i+1, acc.Name)
		}
		out = append(out, acc)
	}
	return out, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func normalizeLLMURL(raw string) string {
	u := strings.TrimRight(strings.TrimSpace(raw), "/")
	return strings.TrimSuffix(u, "/chat/completions")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
