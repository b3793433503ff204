package main

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/forgeflow/forgeflow/internal/api/http"
	"github.com/forgeflow/forgeflow/internal/audit"
	"github.com/forgeflow/forgeflow/internal/auth"
	"github.com/forgeflow/forgeflow/internal/db"
	"github.com/forgeflow/forgeflow/internal/oauth"
)

type Config struct {
	Log       LogConfig
	Http      http.Config
	Db        db.Config
	Redis     RedisConfig
	Auth      auth.Config
	OAuth     oauth.Config      `mapstructure:"oauth"`
	Audit     audit.KafkaConfig `mapstructure:"audit"`
	Tickets   TicketConfig
	Providers ProvidersConfig
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

type TicketConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type ProvidersConfig struct {
	TemplateOwner  string `mapstructure:"template_owner"`
	TemplateRepo   string `mapstructure:"template_repo"`
	DatabaseAPIURL string `mapstructure:"database_api_url"`
	DatabaseRegion string `mapstructure:"database_region"`
	HostingAPIURL  string `mapstructure:"hosting_api_url"`
	TokenCipherKey string `mapstructure:"token_cipher_key"`
}

var config Config

func InitConfig() {
	var err error

	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/forgeflow-server")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindEnv("auth.secret", "AUTH_SECRET")
	_ = viper.BindEnv("oauth.state_secret", "OAUTH_STATE_SECRET")
	_ = viper.BindEnv("providers.token_cipher_key", "TOKEN_CIPHER_KEY")

	if err := viper.ReadInConfig(); err != nil {
		panic(err)
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		panic(err)
	}

	if config.Tickets.TTL == 0 {
		config.Tickets.TTL = time.Hour
	}

	// Initialize logger with configured log level
	initLogger(config.Log.Level)
}
