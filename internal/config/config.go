package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Kafka          KafkaConfig          `mapstructure:"kafka"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Recommendation RecommendationConfig `mapstructure:"recommendation"`
	Tracking       TrackingConfig       `mapstructure:"tracking"`
	Security       SecurityConfig       `mapstructure:"security"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	BlacklistFile  string        `mapstructure:"blacklist_file"`
}

type RedisConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topics  struct {
		ActivityEvents string `mapstructure:"activity_events"`
	} `mapstructure:"topics"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RecommendationConfig carries every tunable of the ranking core.
type RecommendationConfig struct {
	FeedSize          int          `mapstructure:"feed_size"`
	TopK              int          `mapstructure:"top_k"`
	CreatorWindow     int          `mapstructure:"creator_window"`
	NewContentDays    float64      `mapstructure:"new_content_days"`
	MaxSkillsPerVideo int          `mapstructure:"max_skills_per_video"`
	MaxTagsPerVideo   int          `mapstructure:"max_tags_per_video"`
	ProfileSampleSize int          `mapstructure:"profile_sample_size"`
	Bandit            BanditConfig `mapstructure:"bandit"`
}

// BanditConfig holds the LinUCB hyperparameters per pool.
type BanditConfig struct {
	Features int              `mapstructure:"features"`
	Lambda   float64          `mapstructure:"lambda"`
	Ridge    float64          `mapstructure:"ridge"`
	VMP      BanditPoolConfig `mapstructure:"vmp"`
	AU       BanditPoolConfig `mapstructure:"au"`
	NU       BanditPoolConfig `mapstructure:"nu"`
}

type BanditPoolConfig struct {
	Alpha float64 `mapstructure:"alpha"`
	Beta  float64 `mapstructure:"beta"`
}

type TrackingConfig struct {
	ActivityTTL    time.Duration `mapstructure:"activity_ttl"`
	SessionTTL     time.Duration `mapstructure:"session_ttl"`
	FlushInterval  time.Duration `mapstructure:"flush_interval"`
	FlushThreshold int           `mapstructure:"flush_threshold"`
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", "5005")
	viper.SetDefault("server.mode", "development")

	// Database defaults
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.max_idle_time", "15m")
	viper.SetDefault("database.max_lifetime", "1h")
	viper.SetDefault("database.connect_timeout", "10s")
	viper.SetDefault("database.blacklist_file", "./data/blacklist.csv")

	// Redis defaults
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.timeout", "5s")

	// Kafka defaults
	viper.SetDefault("kafka.enabled", false)
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.topics.activity_events", "activity-events")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Ranking core defaults
	viper.SetDefault("recommendation.feed_size", 24)
	viper.SetDefault("recommendation.top_k", 50)
	viper.SetDefault("recommendation.creator_window", 12)
	viper.SetDefault("recommendation.new_content_days", 45.0)
	viper.SetDefault("recommendation.max_skills_per_video", 5)
	viper.SetDefault("recommendation.max_tags_per_video", 3)
	viper.SetDefault("recommendation.profile_sample_size", 80)

	// Bandit defaults
	viper.SetDefault("recommendation.bandit.features", 18)
	viper.SetDefault("recommendation.bandit.lambda", 1.0)
	viper.SetDefault("recommendation.bandit.ridge", 0.001)
	viper.SetDefault("recommendation.bandit.vmp.alpha", 1.5)
	viper.SetDefault("recommendation.bandit.vmp.beta", 0.8)
	viper.SetDefault("recommendation.bandit.au.alpha", 1.3)
	viper.SetDefault("recommendation.bandit.au.beta", 0.7)
	viper.SetDefault("recommendation.bandit.nu.alpha", 1.8)
	viper.SetDefault("recommendation.bandit.nu.beta", 0.9)

	// Tracking defaults
	viper.SetDefault("tracking.activity_ttl", "24h")
	viper.SetDefault("tracking.session_ttl", "2h")
	viper.SetDefault("tracking.flush_interval", "15m")
	viper.SetDefault("tracking.flush_threshold", 50)

	// Security defaults
	viper.SetDefault("security.cors.allowed_origins", []string{"*"})
	viper.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	viper.SetDefault("security.cors.allowed_headers", []string{"*"})
}
