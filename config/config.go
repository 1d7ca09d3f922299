package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	Owner string `mapstructure:"owner" json:"owner,omitempty" validate:"required"`
	Hook  string `mapstructure:"hook" json:"hook,omitempty" validate:"required"`
	Vault string `mapstructure:"vault" json:"vault,omitempty" validate:"required"`

	Protocol struct {
		TreasuryFeeBps uint16 `mapstructure:"treasury_fee_bps" json:"treasury_fee_bps,omitempty" validate:"lte=1000"`
		RoundingUnit   string `mapstructure:"rounding_unit" json:"rounding_unit,omitempty"`
	} `mapstructure:"protocol" json:"protocol,omitempty"`

	Daily struct {
		BatchSize       int           `mapstructure:"batch_size" json:"batch_size,omitempty" validate:"gte=0"`
		InitialEstimate uint64        `mapstructure:"initial_estimate" json:"initial_estimate,omitempty"`
		Budget          uint64        `mapstructure:"budget" json:"budget,omitempty" validate:"gt=0"`
		CronExpression  string        `mapstructure:"cron_expression" json:"cron_expression,omitempty" validate:"required"`
		OrderTTL        time.Duration `mapstructure:"order_ttl" json:"order_ttl,omitempty"`
	} `mapstructure:"daily" json:"daily,omitempty"`

	Database struct {
		DSN string `mapstructure:"dsn" json:"dsn,omitempty" validate:"required"`
	} `mapstructure:"database" json:"database,omitempty"`

	Datadog struct {
		Host string `mapstructure:"host" json:"host,omitempty"`
		Port string `mapstructure:"port" json:"port,omitempty"`
	} `mapstructure:"datadog" json:"datadog"`
}

func GetConfigure() (*Config, error) {
	configName := os.Getenv("SE_CONFIG_NAME")
	if configName == "" {
		configName = "config"
	}

	return ReadConfig(configName)
}

func ReadConfig(configName string) (*Config, error) {
	viper.SetConfigName(configName)
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	viper.SetDefault("protocol.treasury_fee_bps", 80)
	viper.SetDefault("daily.batch_size", 5)
	viper.SetDefault("daily.initial_estimate", 1000)
	viper.SetDefault("daily.budget", 1000000)
	viper.SetDefault("daily.cron_expression", "0 0 * * *")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("fail to reading config file, %w", err)
	}
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := viper.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
