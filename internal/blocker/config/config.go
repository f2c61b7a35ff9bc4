package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix = "BLOCK_"
	// ConfigFileEnv names an optional YAML file loaded between the defaults
	// and the environment.
	ConfigFileEnv = "BLOCK_CONFIG_FILE"
)

// AppConfig holds the daemon configuration.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// APIAddr is where the message API and the interstitial page listen.
	APIAddr string `koanf:"api_addr" validate:"required,host_port"`

	// BaseURL is the externally visible prefix of the API. Empty derives it
	// from APIAddr.
	BaseURL string `koanf:"base_url" validate:"omitempty,http_url"`

	ProxyEnabled bool   `koanf:"proxy_enabled"`
	ProxyAddr    string `koanf:"proxy_addr" validate:"required_if=ProxyEnabled true,omitempty,host_port"`

	DNSEnabled  bool     `koanf:"dns_enabled"`
	DNSAddr     string   `koanf:"dns_addr" validate:"required_if=DNSEnabled true,omitempty,host_port"`
	DNSUpstream []string `koanf:"dns_upstream" validate:"required_if=DNSEnabled true,dive,dns_server"`
	DNSSinkhole []string `koanf:"dns_sinkhole" validate:"dive,ip"`
	// DNSParallel races all upstreams instead of trying them in order.
	DNSParallel bool `koanf:"dns_parallel"`
	// DNSTTL is the TTL, in seconds, of sinkholed answers.
	DNSTTL uint `koanf:"dns_ttl" validate:"gte=1,lte=86400"`

	// StoreBackend is one of "bolt", "redis" or "memory".
	StoreBackend  string `koanf:"store_backend" validate:"required,store_backend"`
	StorePath     string `koanf:"store_path" validate:"required_if=StoreBackend bolt"`
	RedisAddr     string `koanf:"redis_addr" validate:"required_if=StoreBackend redis,omitempty,host_port"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db" validate:"gte=0,lte=15"`
	RedisPrefix   string `koanf:"redis_prefix" validate:"required"`

	// CacheSize bounds each snapshot's decision cache; 0 disables it.
	CacheSize   uint    `koanf:"cache_size"`
	BloomFPRate float64 `koanf:"bloom_fp_rate" validate:"gt=0,lt=1"`
}

// DEFAULT_APP_CONFIG is the configuration used when nothing overrides it.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:          "prod",
	LogLevel:     "info",
	APIAddr:      "127.0.0.1:8480",
	ProxyEnabled: false,
	ProxyAddr:    "127.0.0.1:8481",
	DNSEnabled:   false,
	DNSAddr:      "127.0.0.1:5353",
	DNSUpstream:  []string{"1.1.1.1:53", "1.0.0.1:53"},
	DNSSinkhole:  []string{"127.0.0.1", "::1"},
	DNSTTL:       60,
	StoreBackend: "bolt",
	StorePath:    "/var/lib/distraction-block/settings.db",
	RedisAddr:    "127.0.0.1:6379",
	RedisDB:      0,
	RedisPrefix:  "distraction-block",
	CacheSize:    1024,
	BloomFPRate:  0.01,
}

// listKeys are split on spaces and commas when they come from the environment.
var listKeys = map[string]bool{
	"dns_upstream": true,
	"dns_sinkhole": true,
}

var storeBackends = map[string]bool{"bolt": true, "redis": true, "memory": true}

// SelfPrefix is the URL prefix of the blocker's own pages, always ending in "/".
func (c *AppConfig) SelfPrefix() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/") + "/"
	}
	host, port, err := net.SplitHostPort(c.APIAddr)
	if err != nil {
		return "http://127.0.0.1:8480/"
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + "/"
}

// SinkholeIPs parses DNSSinkhole; entries were validated on load.
func (c *AppConfig) SinkholeIPs() []net.IP {
	out := make([]net.IP, 0, len(c.DNSSinkhole))
	for _, s := range c.DNSSinkhole {
		if ip := net.ParseIP(s); ip != nil {
			out = append(out, ip)
		}
	}
	return out
}

// validHostPort accepts "host:port" where host may be empty, an IP or a
// hostname, and port is 1..65535.
func validHostPort(fl validator.FieldLevel) bool {
	host, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil || port == "" {
		return false
	}
	if strings.ContainsAny(host, " /") {
		return false
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	return err == nil && portNum > 0
}

// validDNSServer accepts a bare IP or IP:port.
func validDNSServer(fl validator.FieldLevel) bool {
	addr := fl.Field().String()
	if net.ParseIP(addr) != nil {
		return true
	}
	ip, port, err := net.SplitHostPort(addr)
	if err != nil || net.ParseIP(ip) == nil {
		return false
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	return err == nil && portNum > 0
}

func validStoreBackend(fl validator.FieldLevel) bool {
	return storeBackends[fl.Field().String()]
}

// envLoader loads BLOCK_* variables. Keys are lowercased without the prefix;
// list keys are split on spaces and commas.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
			value = strings.TrimSpace(value)

			if value == "" || !listKeys[key] {
				return key, value
			}
			return key, strings.FieldsFunc(value, func(r rune) bool {
				return r == ' ' || r == ','
			})
		},
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG through the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// fileLoader loads a YAML config file.
var fileLoader = func(k *koanf.Koanf, path string) error {
	return k.Load(file.Provider(path), YAML())
}

// registerValidation registers the custom tags used by AppConfig.
var registerValidation = func(v *validator.Validate) error {
	if err := v.RegisterValidation("host_port", validHostPort); err != nil {
		return err
	}
	if err := v.RegisterValidation("dns_server", validDNSServer); err != nil {
		return err
	}
	return v.RegisterValidation("store_backend", validStoreBackend)
}

// Load layers defaults, the optional file named by BLOCK_CONFIG_FILE and
// the environment, then validates the result.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if path := strings.TrimSpace(os.Getenv(ConfigFileEnv)); path != "" {
		if err := fileLoader(k, path); err != nil {
			return nil, fmt.Errorf("error loading config file %s: %w", path, err)
		}
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
