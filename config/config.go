// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package config provides the onionsim configuration shared by the
// registry, relay, user and launcher commands.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/net/idna"

	"github.com/katzenpost/onionsim/core/pki"
	"github.com/katzenpost/onionsim/core/retry"
)

const (
	defaultHost                 = "127.0.0.1"
	defaultRegistryPort         = 8080
	defaultBaseRelayPort        = 4000
	defaultBaseUserPort         = 3000
	defaultLogLevel             = "NOTICE"
	defaultRegistrationAttempts = 10
	defaultRegistrationBackoff  = 500   // 500 ms.
	defaultForwardTimeout       = 10000 // 10 sec.
	defaultSendTimeout          = 10000 // 10 sec.
	defaultRegistryTimeout      = 10000 // 10 sec.

	maxPort = 65535
)

var defaultLogging = Logging{
	Disable: false,
	File:    "",
	Level:   defaultLogLevel,
}

// Network is the addressing scheme shared by every process.
type Network struct {
	// Host is the host every process binds to and dials.
	Host string

	// RegistryPort is the registry's TCP port.
	RegistryPort int

	// BaseRelayPort is the port of relay 0, relay N listens on
	// BaseRelayPort+N.
	BaseRelayPort int

	// BaseUserPort is the port of user 0, user N listens on
	// BaseUserPort+N.
	BaseUserPort int
}

func (nCfg *Network) applyDefaults() {
	if nCfg.Host == "" {
		nCfg.Host = defaultHost
	}
	if nCfg.RegistryPort == 0 {
		nCfg.RegistryPort = defaultRegistryPort
	}
	if nCfg.BaseRelayPort == 0 {
		nCfg.BaseRelayPort = defaultBaseRelayPort
	}
	if nCfg.BaseUserPort == 0 {
		nCfg.BaseUserPort = defaultBaseUserPort
	}
}

func (nCfg *Network) validate() error {
	for _, p := range []struct {
		name string
		port int
	}{
		{"RegistryPort", nCfg.RegistryPort},
		{"BaseRelayPort", nCfg.BaseRelayPort},
		{"BaseUserPort", nCfg.BaseUserPort},
	} {
		if p.port < 1 || p.port > maxPort {
			return fmt.Errorf("config: Network: %v '%v' is invalid", p.name, p.port)
		}
	}
	if nCfg.BaseRelayPort == nCfg.BaseUserPort {
		return errors.New("config: Network: BaseRelayPort and BaseUserPort collide")
	}
	if nCfg.RegistryPort == nCfg.BaseRelayPort || nCfg.RegistryPort == nCfg.BaseUserPort {
		return errors.New("config: Network: RegistryPort collides with a base port")
	}

	host, err := idna.Lookup.ToASCII(nCfg.Host)
	if err != nil {
		return fmt.Errorf("config: Network: failed to normalize Host: %v", err)
	}
	nCfg.Host = host
	return nil
}

// Logging is the logging configuration.
type Logging struct {
	// Disable disables logging entirely.
	Disable bool

	// File specifies the log file, if omitted stdout will be used.
	File string

	// Level specifies the log level.
	Level string
}

func (lCfg *Logging) validate() error {
	lvl := strings.ToUpper(lCfg.Level)
	switch lvl {
	case "ERROR", "WARNING", "NOTICE", "INFO", "DEBUG":
	case "":
		lvl = defaultLogLevel
	default:
		return fmt.Errorf("config: Logging: Level '%v' is invalid", lCfg.Level)
	}
	lCfg.Level = lvl // Force uppercase.
	return nil
}

// Registry is the registry configuration.
type Registry struct {
	// DataDir is the absolute path to the registry's state files.  If
	// omitted the registry is memory only.
	DataDir string
}

func (rCfg *Registry) validate() error {
	if rCfg.DataDir != "" && !filepath.IsAbs(rCfg.DataDir) {
		return fmt.Errorf("config: Registry: DataDir '%v' is not an absolute path", rCfg.DataDir)
	}
	return nil
}

// Relay is the relay configuration.
type Relay struct {
	// RegistrationAttempts is the number of attempts a relay makes to
	// register with the registry before giving up.
	RegistrationAttempts int

	// RegistrationBackoff is the base retry delay in milliseconds.
	RegistrationBackoff int

	// ForwardTimeout bounds each outbound forward or delivery in
	// milliseconds.
	ForwardTimeout int
}

func (rCfg *Relay) applyDefaults() {
	if rCfg.RegistrationAttempts <= 0 {
		rCfg.RegistrationAttempts = defaultRegistrationAttempts
	}
	if rCfg.RegistrationBackoff <= 0 {
		rCfg.RegistrationBackoff = defaultRegistrationBackoff
	}
	if rCfg.ForwardTimeout <= 0 {
		rCfg.ForwardTimeout = defaultForwardTimeout
	}
}

// RetryPolicy returns the registration retry policy, a fixed backoff of
// RegistrationBackoff between attempts.
func (rCfg *Relay) RetryPolicy() retry.Policy {
	backoff := time.Duration(rCfg.RegistrationBackoff) * time.Millisecond
	return retry.Policy{
		MaxAttempts: rCfg.RegistrationAttempts,
		BaseDelay:   backoff,
		MaxDelay:    backoff,
	}
}

// User is the user configuration.
type User struct {
	// SendTimeout bounds the hand off to the first hop in milliseconds.
	SendTimeout int

	// RegistryTimeout bounds the registry fetch in milliseconds.
	RegistryTimeout int
}

func (uCfg *User) applyDefaults() {
	if uCfg.SendTimeout <= 0 {
		uCfg.SendTimeout = defaultSendTimeout
	}
	if uCfg.RegistryTimeout <= 0 {
		uCfg.RegistryTimeout = defaultRegistryTimeout
	}
}

// Metrics is the prometheus configuration.
type Metrics struct {
	// Address is the address the metrics endpoint listens on.  If omitted
	// no endpoint is served.
	Address string
}

// Config is the top level onionsim configuration.
type Config struct {
	Network  *Network
	Logging  *Logging
	Registry *Registry
	Relay    *Relay
	User     *User
	Metrics  *Metrics
}

// Topology returns the addressing scheme described by the Network section.
func (cfg *Config) Topology() *pki.Topology {
	return &pki.Topology{
		Host:          cfg.Network.Host,
		RegistryPort:  cfg.Network.RegistryPort,
		BaseRelayPort: cfg.Network.BaseRelayPort,
		BaseUserPort:  cfg.Network.BaseUserPort,
	}
}

// FixupAndValidate applies defaults to config entries and validates the
// supplied configuration.  Most people should call one of the Load variants
// instead.
func (cfg *Config) FixupAndValidate() error {
	// Every section is optional.
	if cfg.Network == nil {
		cfg.Network = &Network{}
	}
	if cfg.Logging == nil {
		l := defaultLogging
		cfg.Logging = &l
	}
	if cfg.Registry == nil {
		cfg.Registry = &Registry{}
	}
	if cfg.Relay == nil {
		cfg.Relay = &Relay{}
	}
	if cfg.User == nil {
		cfg.User = &User{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &Metrics{}
	}
	cfg.Network.applyDefaults()
	cfg.Relay.applyDefaults()
	cfg.User.applyDefaults()

	if err := cfg.Network.validate(); err != nil {
		return err
	}
	if err := cfg.Logging.validate(); err != nil {
		return err
	}
	return cfg.Registry.validate()
}

// Default returns a fully defaulted configuration.
func Default() *Config {
	cfg := new(Config)
	if err := cfg.FixupAndValidate(); err != nil {
		panic("BUG: config: defaults fail validation: " + err.Error())
	}
	return cfg
}

// Store writes cfg to fileName as TOML.
func Store(cfg *Config, fileName string) error {
	buf := new(bytes.Buffer)
	if err := toml.NewEncoder(buf).Encode(cfg); err != nil {
		return err
	}
	return os.WriteFile(fileName, buf.Bytes(), 0600)
}

// Load parses and validates the provided buffer b as a config file body and
// returns the Config.
func Load(b []byte) (*Config, error) {
	if b == nil {
		return nil, errors.New("config: no nil buffer as config file")
	}

	cfg := new(Config)
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: undecoded keys in config file: %v", undecoded)
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads, parses and validates the provided file and returns the
// Config.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}
