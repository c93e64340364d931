package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	GRPC        GRPCConfig        `mapstructure:"grpc"`
	Store       StoreConfig       `mapstructure:"store"`
	MongoDB     MongoDBConfig     `mapstructure:"mongodb"`
	MySQL       MySQLConfig       `mapstructure:"mysql"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Etcd        EtcdConfig        `mapstructure:"etcd"`
	Mirror      MirrorConfig      `mapstructure:"mirror"`
	Collections CollectionsConfig `mapstructure:"collections"`
	Orders      OrdersConfig      `mapstructure:"orders"`
	Search      SearchConfig      `mapstructure:"search"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Name string `mapstructure:"name"`
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

// Addr is the listen address of the HTTP server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type GRPCConfig struct {
	Port           int           `mapstructure:"port"`
	HealthInterval time.Duration `mapstructure:"health_interval"`
}

// StoreConfig selects the persistent collection store backend.
type StoreConfig struct {
	Backend string `mapstructure:"backend"` // mongo, sql, memory
}

type MongoDBConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Addr       string        `mapstructure:"addr"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	PoolSize   int           `mapstructure:"pool_size"`
	CatalogTTL time.Duration `mapstructure:"catalog_ttl"`
}

type EtcdConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Prefix      string        `mapstructure:"prefix"`
	LeaseTTL    int64         `mapstructure:"lease_ttl"`
}

type MirrorConfig struct {
	Dir            string        `mapstructure:"dir"`
	AllCollections bool          `mapstructure:"all_collections"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type CollectionsConfig struct {
	// Allowed restricts which collection names resolve. Empty allows any well-formed name.
	Allowed []string `mapstructure:"allowed"`
}

type OrdersConfig struct {
	InventoryMode        string `mapstructure:"inventory_mode"` // per_unit, transactional
	DecrementConcurrency int    `mapstructure:"decrement_concurrency"`
}

type SearchConfig struct {
	IncludeNumeric bool `mapstructure:"include_numeric"`
}

type LogConfig struct {
	Level       string   `mapstructure:"level"`
	Encoding    string   `mapstructure:"encoding"`
	OutputPaths []string `mapstructure:"output_paths"`
}

const envPrefix = "STOREFRONT"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "storefront")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("grpc.port", 0)
	v.SetDefault("grpc.health_interval", 15*time.Second)
	v.SetDefault("store.backend", "mongo")
	v.SetDefault("mongodb.uri", "mongodb://localhost:27017")
	v.SetDefault("mongodb.database", "storefront")
	v.SetDefault("mongodb.connect_timeout", 10*time.Second)
	v.SetDefault("mysql.host", "localhost")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.database", "storefront")
	v.SetDefault("mysql.max_idle_conns", 5)
	v.SetDefault("mysql.max_open_conns", 20)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.catalog_ttl", 5*time.Minute)
	v.SetDefault("etcd.dial_timeout", 5*time.Second)
	v.SetDefault("etcd.prefix", "/services/")
	v.SetDefault("etcd.lease_ttl", 30)
	v.SetDefault("mirror.dir", "./data")
	v.SetDefault("mirror.all_collections", false)
	v.SetDefault("mirror.timeout", 10*time.Second)
	v.SetDefault("orders.inventory_mode", "per_unit")
	v.SetDefault("orders.decrement_concurrency", 8)
	v.SetDefault("search.include_numeric", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("log.output_paths", []string{"stdout"})
}

// Load reads the YAML file at configPath on top of the built-in defaults.
// A missing file is not an error; STOREFRONT_* environment variables
// override individual keys either way.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case "mongo", "sql", "memory":
	default:
		return fmt.Errorf("unknown store backend %q (supported: mongo, sql, memory)", c.Store.Backend)
	}
	switch c.Orders.InventoryMode {
	case "per_unit", "transactional":
	default:
		return fmt.Errorf("unknown inventory mode %q (supported: per_unit, transactional)", c.Orders.InventoryMode)
	}
	return nil
}

func (c *MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.Username, c.Password, c.Host, c.Port, c.Database)
}
