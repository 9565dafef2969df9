// Package config loads the daemon's JSON configuration file via viper,
// applying the normalization rules from spec.md §6, and drives the
// interactive first-run setup when no config file is present.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/spf13/viper"
)

// Config is the fully normalized daemon configuration.
type Config struct {
	LogLevel      int  `mapstructure:"logLevel"`
	LogAnsiColors bool `mapstructure:"logAnsiColors"`

	DiscordBotToken string `mapstructure:"discordBotToken"`
	OsuClientID     string `mapstructure:"osuClientID"`
	OsuClientSecret string `mapstructure:"osuClientSecret"`

	ScrapeRankingsRunHour int `mapstructure:"scrapeRankingsRunHour"`
	TopPlaysRunHour       int `mapstructure:"topPlaysRunHour"`
	ThreadCount           int `mapstructure:"threadCount"`

	RankingsDbFilePath  string `mapstructure:"rankingsDbFilePath"`
	TopPlaysDbFilePath  string `mapstructure:"topPlaysDbFilePath"`
	BotConfigDbFilePath string `mapstructure:"botConfigDbFilePath"`

	NotifyNatsURL     string `mapstructure:"notifyNatsURL"`
	NotifySubjectBase string `mapstructure:"notifySubjectBase"`
	AdminListenAddr   string `mapstructure:"adminListenAddr"`

	DiscordBotStrings map[string]string `mapstructure:"discordBotStrings"`
}

const (
	defaultLogLevel = 1
	minLogLevel     = 0
	maxLogLevel     = 3
)

// Load reads the JSON config at path. If the file does not exist, it drives
// the interactive first-run setup (spec.md §6's CLI clause) and returns
// ErrFirstRunSetupComplete so the caller can exit after writing defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := runFirstRunSetup(path); err != nil {
			return nil, fmt.Errorf("config: first-run setup: %w", err)
		}
		return nil, ErrFirstRunSetupComplete
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.SetDefault("logLevel", defaultLogLevel)
	v.SetDefault("logAnsiColors", true)
	v.SetDefault("scrapeRankingsRunHour", 3)
	v.SetDefault("topPlaysRunHour", 4)
	v.SetDefault("threadCount", detectedCPUCount())
	v.SetDefault("rankingsDbFilePath", "rankings.db")
	v.SetDefault("topPlaysDbFilePath", "topplays.db")
	v.SetDefault("botConfigDbFilePath", "botconfig.db")
	v.SetDefault("notifySubjectBase", "dailydosu")
	v.SetDefault("adminListenAddr", ":8081")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	c.normalize()
	return &c, nil
}

// ErrFirstRunSetupComplete is returned by Load when no config file existed
// and interactive setup just wrote a fresh one; the CLI exits after this.
var ErrFirstRunSetupComplete = fmt.Errorf("config: first-run setup complete, restart to continue")

// normalize applies spec.md §6's clamping rules: out-of-range hours wrap
// modulo 24, out-of-range log levels default to 1, thread counts below 1
// default to detected hardware concurrency.
func (c *Config) normalize() {
	c.ScrapeRankingsRunHour = normalizeHour(c.ScrapeRankingsRunHour)
	c.TopPlaysRunHour = normalizeHour(c.TopPlaysRunHour)

	if c.LogLevel < minLogLevel || c.LogLevel > maxLogLevel {
		c.LogLevel = defaultLogLevel
	}
	if c.ThreadCount < 1 {
		c.ThreadCount = detectedCPUCount()
	}
}

// normalizeHour folds any integer hour into [0,23] via true modulo (Go's %
// keeps the sign of the dividend, so negative hours need an extra +24).
func normalizeHour(h int) int {
	h %= 24
	if h < 0 {
		h += 24
	}
	return h
}

// detectedCPUCount resolves hardware concurrency via gopsutil rather than
// runtime.NumCPU(), matching original_source's
// std::thread::hardware_concurrency() call.
func detectedCPUCount() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// runFirstRunSetup prompts for the three secrets the spec requires
// (bot token, OAuth client ID, OAuth client secret) and writes a default
// config file. There is no ecosystem prompt library in the retrieved
// example pack, so this uses bufio.Scanner directly; see DESIGN.md.
func runFirstRunSetup(path string) error {
	scanner := bufio.NewScanner(os.Stdin)

	prompt := func(label string) string {
		fmt.Printf("%s: ", label)
		scanner.Scan()
		return strings.TrimSpace(scanner.Text())
	}

	botToken := prompt("Discord bot token")
	clientID := prompt("osu! OAuth client ID")
	clientSecret := prompt("osu! OAuth client secret")

	v := viper.New()
	v.SetConfigType("json")
	v.Set("logLevel", defaultLogLevel)
	v.Set("logAnsiColors", true)
	v.Set("discordBotToken", botToken)
	v.Set("osuClientID", clientID)
	v.Set("osuClientSecret", clientSecret)
	v.Set("scrapeRankingsRunHour", 3)
	v.Set("topPlaysRunHour", 4)
	v.Set("threadCount", detectedCPUCount())
	v.Set("rankingsDbFilePath", "rankings.db")
	v.Set("topPlaysDbFilePath", "topplays.db")
	v.Set("botConfigDbFilePath", "botconfig.db")
	v.Set("notifySubjectBase", "dailydosu")
	v.Set("adminListenAddr", ":8081")
	v.Set("discordBotStrings", map[string]string{})

	return v.WriteConfigAs(path)
}
