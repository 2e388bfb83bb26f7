package config

import (
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
	"moff.io/moff-wallet/pkg/errors"
)

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

func (c *DBCredential) Dsn() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s",
		c.Address, c.Port, c.User, c.Password, c.Database)
}

// Configuration struct
type Configuration struct {
	TargetChain      TargetChain   `yaml:"target_chain"`
	Injected         Injected      `yaml:"injected"`
	WalletConnect    WalletConnect `yaml:"wallet_connect"`
	Reconnect        Reconnect     `yaml:"reconnect"`
	RedisCredential  DBCredential  `yaml:"redis"`
	Postgres         DBCredential  `yaml:"postgres"`
	Kafka            Kafka         `yaml:"kafka"`
	AWS              AWS           `yaml:"aws"`
	HTTP             HTTP          `yaml:"http"`
	SentryDSN        string        `yaml:"sentry_dsn"`
	LarkAlarmWebhook string        `yaml:"lark_alarm_webhook"`
	LogLevel         string        `yaml:"log_level"`
}

// TargetChain is the chain the application works on. Name, Symbol and
// Decimals are only needed when the wallet has to add the chain.
type TargetChain struct {
	ID         int64  `yaml:"id"`
	RPCAddress string `yaml:"rpc_address"`
	Name       string `yaml:"name"`
	Symbol     string `yaml:"symbol"`
	Decimals   int    `yaml:"decimals"`
	// RPCRateLimit caps balance reads per second, 0 means unlimited.
	RPCRateLimit int `yaml:"rpc_rate_limit"`
}

type Injected struct {
	// URL of the local wallet JSON-RPC endpoint, empty disables the injected backend.
	URL            string `yaml:"url"`
	ExpectedClient string `yaml:"expected_client"`
}

type WalletConnect struct {
	BridgeURL         string     `yaml:"bridge_url"`
	LivenessTimeoutMs int        `yaml:"liveness_timeout_ms"`
	QRCodePath        string     `yaml:"qr_code_path"`
	ClientMeta        ClientMeta `yaml:"client_meta"`
}

type ClientMeta struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	URL         string   `yaml:"url"`
	Icons       []string `yaml:"icons"`
}

type Reconnect struct {
	SettleDelayMs int `yaml:"settle_delay_ms"`
}

type HTTP struct {
	Addr           string `yaml:"addr"`
	RequestTimeout int    `yaml:"request_timeout_sec"`
	// RateLimitPerMinute caps wallet actions per client ip, 0 disables it.
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
}

// Kafka receives wallet connection events when Hosts is set.
type Kafka struct {
	Hosts string `yaml:"hosts"`
	Topic string `yaml:"topic"`
	Node  int64  `yaml:"node"`
}

type AWS struct {
	Region string `yaml:"region"`
	// Bucket receives pairing QR codes when set.
	Bucket string `yaml:"bucket"`
	SSM    SSM    `yaml:"ssm"`
}

// SSM names parameters whose values replace the matching secrets.
type SSM struct {
	SentryDSN        string `yaml:"sentry_dsn"`
	LarkAlarmWebhook string `yaml:"lark_alarm_webhook"`
	RedisPassword    string `yaml:"redis_password"`
	PostgresPassword string `yaml:"postgres_password"`
}

func (in WalletConnect) LivenessTimeout() time.Duration {
	return time.Duration(in.LivenessTimeoutMs) * time.Millisecond
}

func (in Reconnect) SettleDelay() time.Duration {
	return time.Duration(in.SettleDelayMs) * time.Millisecond
}

func (in *Configuration) applyDefaults() {
	if in.WalletConnect.LivenessTimeoutMs <= 0 {
		in.WalletConnect.LivenessTimeoutMs = 3000
	}
	if in.WalletConnect.ClientMeta.Name == "" {
		in.WalletConnect.ClientMeta.Name = "Moff Wallet"
	}
	if in.Reconnect.SettleDelayMs <= 0 {
		in.Reconnect.SettleDelayMs = 250
	}
	if in.HTTP.Addr == "" {
		in.HTTP.Addr = ":8080"
	}
	if in.HTTP.RequestTimeout <= 0 {
		in.HTTP.RequestTimeout = 60
	}
	if in.Kafka.Topic == "" {
		in.Kafka.Topic = "moff-wallet-events"
	}
	if in.LogLevel == "" {
		in.LogLevel = "info"
	}
}

func (in *Configuration) validate() error {
	if in.TargetChain.ID <= 0 {
		return errors.New("target_chain.id must be set")
	}
	if in.TargetChain.RPCAddress == "" {
		return errors.New("target_chain.rpc_address must be set")
	}
	return nil
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Configuration, error) {
	dat, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Errorf("file %s does not exist", path)
		}
		return nil, errors.Wrap(err, "read config file")
	}
	t := Configuration{}
	if err := yaml.Unmarshal(dat, &t); err != nil {
		return nil, errors.Wrap(err, "fail to decode config")
	}
	t.applyDefaults()
	if err := t.validate(); err != nil {
		return nil, err
	}
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
