package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
	"moff.io/moff-wallet/pkg/errors"
)

// ProjectIDEnv overrides Configuration.ProjectID when set.
const ProjectIDEnv = "PROJECT_ID"

// DBCredential struct
type DBCredential struct {
	Address  string `yaml:"address"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Port     string `yaml:"port"`
	Database string `yaml:"database"`
}

// GetRedisAddress prints redis credential info.
func (c *DBCredential) GetRedisAddress() string {
	return fmt.Sprintf("%v:%v", c.Address, c.Port)
}

// Configuration struct
type Configuration struct {
	ProjectID        string        `yaml:"project_id"`
	LogLevel         int           `yaml:"log_level"`
	SentryDSN        string        `yaml:"sentry_dsn"`
	LarkAlarmWebhook string        `yaml:"lark_alarm_webhook"`
	KafkaServer      string        `yaml:"kafka-server"`
	RedisCredential  DBCredential  `yaml:"redis"`
	Aws              Aws           `yaml:"aws"`
	HTTP             HTTP          `yaml:"http"`
	WalletConnect    WalletConnect `yaml:"wallet_connect"`
	Wallet           Wallet        `yaml:"wallet"`
}

type Aws struct {
	Region             string `yaml:"region"`
	ProjectIDParameter string `yaml:"project_id_parameter"`
}

type HTTP struct {
	Address        string        `yaml:"address"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type WalletConnect struct {
	RelayURL       string        `yaml:"relay_url"`
	UserAgent      string        `yaml:"user_agent"`
	PublishRate    int           `yaml:"publish_rate"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Metadata       Metadata      `yaml:"metadata"`
	// SessionStore is either "memory" or "redis".
	SessionStore string `yaml:"session_store"`
}

type Metadata struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	URL         string   `yaml:"url"`
	Icons       []string `yaml:"icons"`
}

type Wallet struct {
	ChainID       int    `yaml:"chain_id"`
	PendingPolicy string `yaml:"pending_policy"`
	SigningMode   string `yaml:"signing_mode"`
}

func (c *Configuration) applyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.HTTP.RequestTimeout <= 0 {
		c.HTTP.RequestTimeout = 60 * time.Second
	}
	if c.WalletConnect.SessionStore == "" {
		c.WalletConnect.SessionStore = "memory"
	}
	if c.WalletConnect.Metadata.Name == "" {
		c.WalletConnect.Metadata = Metadata{
			Name:        "Moff Wallet",
			Description: "Moff demo wallet",
			URL:         "https://moff.io",
			Icons:       []string{"https://moff.io/favicon.ico"},
		}
	}
	if c.Wallet.ChainID == 0 {
		c.Wallet.ChainID = 1
	}
}

// Load decodes the yaml file at path, applies defaults and the
// environment override of the project id.
func Load(path string) (*Configuration, error) {
	dat, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Errorf("file %s does not exist", path)
		}
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	t := Configuration{}
	if err := yaml.Unmarshal(dat, &t); err != nil {
		return nil, errors.Wrap(err, "fail to decode config")
	}
	if v := strings.TrimSpace(os.Getenv(ProjectIDEnv)); v != "" {
		t.ProjectID = v
	}
	t.applyDefaults()
	return &t, nil
}

var Global *Configuration

// Read reads configuration information from yml.
func Read() {
	configFilePath := flag.String("config-path", "internal/config/config.yml", "The path to the configuration file")
	flag.Parse()
	logrus.Infof("Loading configuration file from %s", *configFilePath)
	globalConfig, err := Load(*configFilePath)
	if err != nil {
		logrus.Fatal(err)
	}
	Global = globalConfig
}
