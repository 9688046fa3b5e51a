package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/trogers1052/stock-signal-engine/internal/breaker"
	"github.com/trogers1052/stock-signal-engine/internal/database"
	"github.com/trogers1052/stock-signal-engine/internal/dedup"
	"github.com/trogers1052/stock-signal-engine/internal/indicators"
	"github.com/trogers1052/stock-signal-engine/internal/logger"
	"github.com/trogers1052/stock-signal-engine/internal/markethours"
	"github.com/trogers1052/stock-signal-engine/internal/models"
	"github.com/trogers1052/stock-signal-engine/internal/pipeline"
	"github.com/trogers1052/stock-signal-engine/internal/publish"
	"github.com/trogers1052/stock-signal-engine/internal/scheduler"
	"github.com/trogers1052/stock-signal-engine/internal/scoring"
	"github.com/trogers1052/stock-signal-engine/internal/sufficiency"
)

var validate = validator.New()

// Config holds all application configuration
type Config struct {
	Symbols        []string             `yaml:"symbols" default:"[\"SPY\",\"QQQ\",\"XLK\",\"XLF\",\"XLE\",\"XLV\",\"XLI\",\"XLY\",\"XLP\",\"XLU\",\"XLB\",\"XLRE\"]" validate:"min=1,dive,required"`
	Server         ServerConfig         `yaml:"server"`
	Database       DatabaseConfig       `yaml:"database"`
	Redis          RedisConfig          `yaml:"redis"`
	Kafka          KafkaConfig          `yaml:"kafka"`
	Logger         logger.Config        `yaml:"logger"`
	Indicators     IndicatorsConfig     `yaml:"indicators"`
	ZScore         ZScoreConfig         `yaml:"zScore"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
	Weights        WeightsConfig        `yaml:"weights"`
	Regime         RegimeConfig         `yaml:"regime"`
	Dedup          DedupConfig          `yaml:"dedup"`
	Pipeline       PipelineConfig       `yaml:"pipeline"`
	Schedule       ScheduleConfig       `yaml:"schedule"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `yaml:"port" default:"8080" validate:"required,numeric"`
	Host string `yaml:"host" default:"0.0.0.0"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host" default:"localhost" validate:"required"`
	Port            string        `yaml:"port" default:"5432" validate:"required,numeric"`
	User            string        `yaml:"user" default:"postgres" validate:"required"`
	Password        string        `yaml:"password" default:"postgres"`
	DBName          string        `yaml:"dbname" default:"stockservice" validate:"required"`
	SSLMode         string        `yaml:"sslmode" default:"disable" validate:"oneof=disable require verify-ca verify-full"`
	MaxOpenConns    int           `yaml:"maxOpenConns" default:"10" validate:"gte=1"`
	MaxIdleConns    int           `yaml:"maxIdleConns" default:"5" validate:"gte=0"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime" default:"30m"`
	ConnectTimeout  time.Duration `yaml:"connectTimeout" default:"30s"`
}

// RedisConfig holds the published-batch cache settings
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled" default:"true"`
	Addr     string        `yaml:"addr" default:"localhost:6379" validate:"required_if=Enabled true"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db" validate:"gte=0"`
	Prefix   string        `yaml:"prefix" default:"signals:"`
	TTL      time.Duration `yaml:"ttl" default:"72h"`
	LockTTL  time.Duration `yaml:"lockTTL" default:"15m"`
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Enabled    bool     `yaml:"enabled" default:"true"`
	Brokers    []string `yaml:"brokers" default:"[\"localhost:9092\"]" validate:"required_if=Enabled true"`
	EventTopic string   `yaml:"eventTopic" default:"signal-batches"`
	BarTopic   string   `yaml:"barTopic" default:"price-bars"`
	GroupID    string   `yaml:"groupId" default:"stock-signal-engine"`
}

// IndicatorsConfig sets indicator periods
type IndicatorsConfig struct {
	RSIPeriod           int     `yaml:"rsiPeriod" default:"14" validate:"gte=2"`
	MACDFast            int     `yaml:"macdFast" default:"12" validate:"gte=1"`
	MACDSlow            int     `yaml:"macdSlow" default:"26" validate:"gte=2"`
	MACDSignal          int     `yaml:"macdSignal" default:"9" validate:"gte=1"`
	BollingerPeriod     int     `yaml:"bollingerPeriod" default:"20" validate:"gte=2"`
	BollingerMultiplier float64 `yaml:"bollingerMultiplier" default:"2" validate:"gt=0"`
	ATRPeriod           int     `yaml:"atrPeriod" default:"14" validate:"gte=1"`
	MomentumLookback    int     `yaml:"momentumLookback" default:"5" validate:"gte=1"`
}

// ZScoreConfig sets signal thresholds and history bounds
type ZScoreConfig struct {
	BuyThreshold    float64 `yaml:"buyThreshold" default:"0.75"`
	SellThreshold   float64 `yaml:"sellThreshold" default:"-0.75"`
	StrongThreshold float64 `yaml:"strongThreshold" default:"1.5"`
	MinDataPoints   int     `yaml:"minDataPoints" default:"180" validate:"gte=2"`
	MaxDataPoints   int     `yaml:"maxDataPoints" default:"252" validate:"gte=2"`
}

// CircuitBreakerConfig sets breaker sensitivity
type CircuitBreakerConfig struct {
	FailureThreshold int `yaml:"failureThreshold" default:"5" validate:"gte=1"`
	ResetTimeoutMs   int `yaml:"resetTimeoutMs" default:"300000" validate:"gte=1"`
}

// WeightsConfig sets composite component weights
type WeightsConfig struct {
	MACD      float64 `yaml:"macd" default:"0.35" validate:"gte=0"`
	RSI       float64 `yaml:"rsi" default:"0.25" validate:"gte=0"`
	MATrend   float64 `yaml:"maTrend" default:"0.20" validate:"gte=0"`
	Bollinger float64 `yaml:"bollinger" default:"0.15" validate:"gte=0"`
	Momentum  float64 `yaml:"momentum" default:"0.05" validate:"gte=0"`
}

// RegimeConfig sets volatility regime bands
type RegimeConfig struct {
	LowATRPct        float64 `yaml:"lowAtrPct" default:"0.01" validate:"gt=0"`
	CrisisATRPct     float64 `yaml:"crisisAtrPct" default:"0.03" validate:"gtfield=LowATRPct"`
	LowMultiplier    float64 `yaml:"lowMultiplier" default:"0.8" validate:"gt=0"`
	NormalMultiplier float64 `yaml:"normalMultiplier" default:"1.0" validate:"gt=0"`
	CrisisMultiplier float64 `yaml:"crisisMultiplier" default:"1.6" validate:"gt=0"`
}

// DedupConfig sets the write window
type DedupConfig struct {
	WindowStart   string        `yaml:"windowStart" default:"09:30" validate:"required"`
	WindowEnd     string        `yaml:"windowEnd" default:"20:00" validate:"required"`
	CommitTimeout time.Duration `yaml:"commitTimeout" default:"10s"`
}

// PipelineConfig sets batch execution
type PipelineConfig struct {
	Workers           int           `yaml:"workers" default:"4" validate:"gte=1,lte=64"`
	BarLimit          int           `yaml:"barLimit" default:"300" validate:"gte=1"`
	RequireCurrentBar bool          `yaml:"requireCurrentBar" default:"true"`
	StaleAfter        time.Duration `yaml:"staleAfter" default:"26h"`
	BarRateLimit      float64       `yaml:"barRateLimit" default:"20" validate:"gt=0"`
	BarBurst          int           `yaml:"barBurst" default:"5" validate:"gte=1"`
}

// ScheduleConfig sets job cadences
type ScheduleConfig struct {
	Recompute        time.Duration `yaml:"recompute" default:"15m"`
	RecomputeTimeout time.Duration `yaml:"recomputeTimeout" default:"10m"`
	Cleanup          time.Duration `yaml:"cleanup" default:"24h"`
	CleanupTimeout   time.Duration `yaml:"cleanupTimeout" default:"30m"`
}

// Load reads configuration from path (optional), applies defaults and
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	var c Config
	// defaults first so explicit zero values in the file survive
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("%w: defaults: %v", models.ErrConfiguration, err)
	}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read config: %v", models.ErrConfiguration, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: parse config: %v", models.ErrConfiguration, err)
		}
	}

	if err := c.applyEnv(); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyEnv() error {
	c.Server.Port = getEnv("SERVER_PORT", c.Server.Port)
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnv("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.DBName = getEnv("DB_NAME", c.Database.DBName)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Kafka.EventTopic = getEnv("KAFKA_EVENT_TOPIC", c.Kafka.EventTopic)
	c.Kafka.BarTopic = getEnv("KAFKA_BAR_TOPIC", c.Kafka.BarTopic)
	c.Logger.Level = getEnv("LOG_LEVEL", c.Logger.Level)
	c.Logger.Format = getEnv("LOG_FORMAT", c.Logger.Format)

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Symbols = splitList(v)
	}
	if v := os.Getenv("REDIS_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: REDIS_ENABLED: %v", models.ErrConfiguration, err)
		}
		c.Redis.Enabled = b
	}
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: KAFKA_ENABLED: %v", models.ErrConfiguration, err)
		}
		c.Kafka.Enabled = b
	}
	for i, s := range c.Symbols {
		c.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	return nil
}

// Validate runs tag validation and the cross-field rules tags cannot express
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", models.ErrConfiguration, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", models.ErrConfiguration, err)
	}

	var problems []string
	if c.Indicators.MACDFast >= c.Indicators.MACDSlow {
		problems = append(problems, "indicators.macdFast must be less than indicators.macdSlow")
	}
	z := c.ZScore
	if !(z.SellThreshold < 0 && 0 < z.BuyThreshold && z.BuyThreshold < z.StrongThreshold) {
		problems = append(problems, "zScore thresholds must satisfy sell < 0 < buy < strong")
	}
	if z.MinDataPoints > z.MaxDataPoints {
		problems = append(problems, "zScore.minDataPoints must not exceed zScore.maxDataPoints")
	}
	if sum := c.Weights.sum(); math.Abs(sum-1) > 1e-6 {
		problems = append(problems, fmt.Sprintf("weights must sum to 1, got %.4f", sum))
	}
	if _, err := markethours.ParseWindow(c.Dedup.WindowStart, c.Dedup.WindowEnd); err != nil {
		problems = append(problems, fmt.Sprintf("dedup window: %v", err))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", models.ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

// Options returns the pool settings
func (d *DatabaseConfig) Options() database.Options {
	return database.Options{
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
		ConnectTimeout:  d.ConnectTimeout,
	}
}

// Client returns the connection settings for publish.NewRedisClient
func (r *RedisConfig) Client() publish.RedisConfig {
	return publish.RedisConfig{
		Addr:     r.Addr,
		Password: r.Password,
		DB:       r.DB,
		Prefix:   r.Prefix,
		TTL:      r.TTL,
	}
}

// Params converts to indicator periods
func (i IndicatorsConfig) Params() indicators.Params {
	return indicators.Params{
		RSIPeriod:           i.RSIPeriod,
		MACDFast:            i.MACDFast,
		MACDSlow:            i.MACDSlow,
		MACDSignal:          i.MACDSignal,
		BollingerPeriod:     i.BollingerPeriod,
		BollingerMultiplier: i.BollingerMultiplier,
		ATRPeriod:           i.ATRPeriod,
		MomentumLookback:    i.MomentumLookback,
	}
}

// Breaker converts to breaker settings
func (b CircuitBreakerConfig) Breaker() breaker.Config {
	return breaker.Config{
		FailureThreshold: b.FailureThreshold,
		ResetTimeout:     time.Duration(b.ResetTimeoutMs) * time.Millisecond,
	}
}

func (w WeightsConfig) sum() float64 {
	return w.MACD + w.RSI + w.MATrend + w.Bollinger + w.Momentum
}

// Scoring assembles the composite scorer configuration
func (c *Config) Scoring() scoring.Config {
	cfg := scoring.DefaultConfig()
	cfg.Weights = scoring.Weights{
		MACD:      c.Weights.MACD,
		RSI:       c.Weights.RSI,
		MATrend:   c.Weights.MATrend,
		Bollinger: c.Weights.Bollinger,
		Momentum:  c.Weights.Momentum,
	}
	cfg.Thresholds = scoring.Thresholds{
		Buy:    c.ZScore.BuyThreshold,
		Sell:   c.ZScore.SellThreshold,
		Strong: c.ZScore.StrongThreshold,
	}
	cfg.Regime = scoring.RegimeConfig{
		LowATRPct:        c.Regime.LowATRPct,
		CrisisATRPct:     c.Regime.CrisisATRPct,
		LowMultiplier:    c.Regime.LowMultiplier,
		NormalMultiplier: c.Regime.NormalMultiplier,
		CrisisMultiplier: c.Regime.CrisisMultiplier,
	}
	return cfg
}

// Sufficiency returns the data sufficiency gate configuration
func (c *Config) Sufficiency() sufficiency.Config {
	return sufficiency.Config{RequiredDataPoints: c.ZScore.MinDataPoints}
}

// DedupStore returns the dedup store configuration
func (c *Config) DedupStore() dedup.Config {
	w, _ := markethours.ParseWindow(c.Dedup.WindowStart, c.Dedup.WindowEnd)
	return dedup.Config{Window: w, CommitTimeout: c.Dedup.CommitTimeout}
}

// PipelineOptions returns the batch pipeline configuration
func (c *Config) PipelineOptions() pipeline.Config {
	return pipeline.Config{
		Workers:           c.Pipeline.Workers,
		BarLimit:          c.Pipeline.BarLimit,
		MinDataPoints:     c.ZScore.MinDataPoints,
		MaxDataPoints:     c.ZScore.MaxDataPoints,
		RequireCurrentBar: c.Pipeline.RequireCurrentBar,
		StaleAfter:        c.Pipeline.StaleAfter,
	}
}

// Intervals returns the scheduler cadence settings
func (c *Config) Intervals() scheduler.Intervals {
	return scheduler.Intervals{
		Recompute:        c.Schedule.Recompute,
		RecomputeTimeout: c.Schedule.RecomputeTimeout,
		Cleanup:          c.Schedule.Cleanup,
		CleanupTimeout:   c.Schedule.CleanupTimeout,
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
