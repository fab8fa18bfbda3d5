package config

import (
	"encoding/hex"
	"encoding/json"
	"net/url"
	"os"

	"github.com/pkg/errors"
)

type CLI struct {
	File string `arg:"--config,env:CONFIG_FILE" help:"Path to the JSON configuration file"`
}

type Config struct {
	Listen   string    `json:"listen" arg:"--listen,env:LISTEN_ADDR" help:"Listen on this address"`
	LogLevel string    `json:"log_level" arg:"--log-level,env:LOG_LEVEL" help:"One of debug, info, warn, error, dpanic, panic, fatal"`
	LogMode  string    `json:"log_mode" arg:"--log-mode,env:LOG_MODE" help:"development or production"`
	Key      string    `json:"key" arg:"--key,env:HLS_KEY" help:"Decryption key served to players, hex encoded"`
	Upstream *Upstream `json:"upstream"`
}

type Upstream struct {
	BaseUrl  string `json:"base_url"`
	LoginUrl string `json:"login_url"`
	Username string `json:"username"`
	Password string `json:"password"`
	Region   string `json:"region"`
}

func LoadBytes(input []byte) (*Config, error) {
	config := &Config{}
	return config, json.Unmarshal(input, config)
}

func LoadFile(path string) (*Config, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, errors.WithMessagef(err, "while opening file %s", path)
	}
	defer fd.Close()

	config := &Config{}
	dec := json.NewDecoder(fd)
	if err := dec.Decode(&config); err != nil {
		return nil, errors.WithMessagef(err, "while decoding file %s", path)
	}
	return config, nil
}

func (c *Config) Prepare() error {
	if c.Listen == "" {
		c.Listen = ":8888"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMode == "" {
		c.LogMode = "production"
	}

	if c.Key == "" {
		return errors.New("no key given")
	}
	if _, err := hex.DecodeString(c.Key); err != nil {
		return errors.WithMessage(err, "decoding key")
	}

	if c.Upstream == nil {
		return errors.New("no upstream given")
	}
	if c.Upstream.Region == "" {
		c.Upstream.Region = "US"
	}
	c.Upstream.Username = os.ExpandEnv(c.Upstream.Username)
	c.Upstream.Password = os.ExpandEnv(c.Upstream.Password)

	for _, raw := range []string{c.Upstream.BaseUrl, c.Upstream.LoginUrl} {
		if raw == "" {
			return errors.New("upstream base_url and login_url are required")
		}
		if _, err := url.Parse(raw); err != nil {
			return errors.WithMessagef(err, "parsing upstream url %q", raw)
		}
	}

	return nil
}

// KeyBytes returns the decoded decryption key. Prepare must have passed.
func (c *Config) KeyBytes() []byte {
	key, err := hex.DecodeString(c.Key)
	if err != nil {
		panic(err)
	}
	return key
}
