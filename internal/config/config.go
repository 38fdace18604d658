package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/pricing-api/internal/discount"
	"github.com/noah-isme/pricing-api/internal/rounding"
	"github.com/noah-isme/pricing-api/internal/tax"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	LogLevel           string
	LogFormat          string
	RedisURL           string
	CORSAllowedOrigins []string

	CurrencyCode     string
	CurrencyDecimals int32
	RoundingPolicy   rounding.Policy
	Midpoint         rounding.Midpoint

	TaxDisplayMode tax.DisplayMode
	TaxRates       map[string]decimal.Decimal
	DefaultTaxRate decimal.Decimal
	TaxCacheTTL    time.Duration

	DiscountMode discount.Mode

	ShippingTaxable     bool
	ShippingTaxCategory string
	BaseShippingRate    decimal.Decimal

	PointsExchangeRate decimal.Decimal
	MinimumPointsToUse int64

	RateLimitPerMinute int
	MetricsBucketsMS   string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	policy, err := rounding.ParsePolicy(valueOrDefault(k.String("ROUNDING_POLICY"), "NEAREST"))
	if err != nil {
		return nil, fmt.Errorf("ROUNDING_POLICY: %w", err)
	}
	midpoint, err := rounding.ParseMidpoint(valueOrDefault(k.String("MIDPOINT_MODE"), "HALF_UP"))
	if err != nil {
		return nil, fmt.Errorf("MIDPOINT_MODE: %w", err)
	}
	displayMode, err := tax.ParseDisplayMode(valueOrDefault(k.String("TAX_DISPLAY_MODE"), "EXCLUDING_TAX"))
	if err != nil {
		return nil, fmt.Errorf("TAX_DISPLAY_MODE: %w", err)
	}
	discountMode, err := discount.ParseMode(valueOrDefault(k.String("DISCOUNT_MODE"), "COMBINE_ALL"))
	if err != nil {
		return nil, fmt.Errorf("DISCOUNT_MODE: %w", err)
	}
	rates, err := tax.ParseRateTable(k.String("TAX_RATES"))
	if err != nil {
		return nil, fmt.Errorf("TAX_RATES: %w", err)
	}

	defaultRate, err := parseDecimal(k.String("DEFAULT_TAX_RATE"), "0")
	if err != nil {
		return nil, fmt.Errorf("DEFAULT_TAX_RATE: %w", err)
	}
	baseShipping, err := parseDecimal(k.String("BASE_SHIPPING_RATE"), "0")
	if err != nil {
		return nil, fmt.Errorf("BASE_SHIPPING_RATE: %w", err)
	}
	exchangeRate, err := parseDecimal(k.String("POINTS_EXCHANGE_RATE"), "1")
	if err != nil {
		return nil, fmt.Errorf("POINTS_EXCHANGE_RATE: %w", err)
	}
	minPoints := k.Int64("MIN_POINTS_TO_USE")
	if minPoints < 0 {
		return nil, fmt.Errorf("MIN_POINTS_TO_USE must not be negative, got %d", minPoints)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		LogLevel:           valueOrDefault(k.String("LOG_LEVEL"), "info"),
		LogFormat:          valueOrDefault(k.String("LOG_FORMAT"), "json"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		CurrencyCode:     valueOrDefault(k.String("CURRENCY_CODE"), "USD"),
		CurrencyDecimals: int32(k.Int("CURRENCY_DECIMALS")),
		RoundingPolicy:   policy,
		Midpoint:         midpoint,

		TaxDisplayMode: displayMode,
		TaxRates:       rates,
		DefaultTaxRate: defaultRate,
		TaxCacheTTL:    parseDuration(k.String("TAX_CACHE_TTL"), "5m"),

		DiscountMode: discountMode,

		ShippingTaxable:     parseBool(k.String("SHIPPING_TAXABLE")),
		ShippingTaxCategory: valueOrDefault(k.String("SHIPPING_TAX_CATEGORY"), "shipping"),
		BaseShippingRate:    baseShipping,

		PointsExchangeRate: exchangeRate,
		MinimumPointsToUse: minPoints,

		RateLimitPerMinute: k.Int("RATE_LIMIT_PER_MINUTE"),
		MetricsBucketsMS:   k.String("METRICS_BUCKETS_MS"),
	}

	if cfg.CurrencyDecimals == 0 && strings.TrimSpace(k.String("CURRENCY_DECIMALS")) == "" {
		cfg.CurrencyDecimals = 2
	}
	if cfg.CurrencyDecimals < 0 {
		return nil, fmt.Errorf("CURRENCY_DECIMALS must not be negative, got %d", cfg.CurrencyDecimals)
	}
	if cfg.BaseShippingRate.IsNegative() {
		return nil, fmt.Errorf("BASE_SHIPPING_RATE must not be negative, got %s", cfg.BaseShippingRate)
	}
	if !cfg.PointsExchangeRate.IsPositive() {
		return nil, fmt.Errorf("POINTS_EXCHANGE_RATE must be positive, got %s", cfg.PointsExchangeRate)
	}
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 120
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseDecimal(value, fallback string) (decimal.Decimal, error) {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	return decimal.NewFromString(base)
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
