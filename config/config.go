package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Log         LogConfig                   `mapstructure:"log"`
	Server      ServerConfig                `mapstructure:"server"`
	Database    DatabaseConfig              `mapstructure:"database"`
	Arena       ArenaConfig                 `mapstructure:"arena"`
	Tournaments map[string]TournamentConfig `mapstructure:"tournaments"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type ServerConfig struct {
	HTTPAddress    string `mapstructure:"http_address"`
	RPCAddress     string `mapstructure:"rpc_address"`
	MetricsAddress string `mapstructure:"metrics_address"`
	// 客户端心跳间隔, 两个间隔内无消息则断开
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN 返回 lib/pq 连接字符串
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// ArenaConfig tunes duel negotiation, sweeping and tournament retention.
type ArenaConfig struct {
	RequestWindow   time.Duration `mapstructure:"request_window"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	RetentionWindow time.Duration `mapstructure:"retention_window"`
	EventBuffer     int           `mapstructure:"event_buffer"`
}

type TournamentConfig struct {
	PrizePool         int64     `mapstructure:"prize_pool"`
	PrizeDistribution []float64 `mapstructure:"prize_distribution"`
	MaxParticipants   int       `mapstructure:"max_participants"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":9090")
	v.SetDefault("server.metrics_address", ":2112")
	v.SetDefault("server.heartbeat_interval", "30s")

	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.dbname", "duelarena")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("arena.request_window", 30*time.Second)
	v.SetDefault("arena.sweep_interval", time.Second)
	v.SetDefault("arena.retention_window", 60*time.Second)
	v.SetDefault("arena.event_buffer", 256)
}

// LoadConfig reads config.yaml from path. A missing file falls back to
// defaults; environment variables such as ARENA_REQUEST_WINDOW override both.
func LoadConfig(path string) (*Config, error) {
	// .env 文件可选，不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	if c.Arena.RequestWindow <= 0 {
		return fmt.Errorf("arena.request_window must be positive, got %s", c.Arena.RequestWindow)
	}
	if c.Arena.SweepInterval <= 0 || c.Arena.SweepInterval > c.Arena.RequestWindow {
		return fmt.Errorf("arena.sweep_interval must be in (0, %s], got %s", c.Arena.RequestWindow, c.Arena.SweepInterval)
	}
	for name, t := range c.Tournaments {
		if t.PrizePool < 0 {
			return fmt.Errorf("tournaments.%s.prize_pool is negative", name)
		}
		sum := 0.0
		for _, f := range t.PrizeDistribution {
			sum += f
		}
		if sum > 1+1e-9 {
			return fmt.Errorf("tournaments.%s.prize_distribution sums to %g", name, sum)
		}
	}
	return nil
}
