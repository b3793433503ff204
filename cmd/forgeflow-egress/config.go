package main

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/forgeflow/forgeflow/internal/audit"
	"github.com/forgeflow/forgeflow/internal/db"
	"github.com/forgeflow/forgeflow/internal/egress"
)

type Config struct {
	Log    LogConfig
	Egress egress.Config     `mapstructure:"egress"`
	Db     db.Config         `mapstructure:"db"`
	Audit  audit.KafkaConfig `mapstructure:"audit"`

	// TokenCipherKey decrypts tokens the server sealed into Postgres.
	TokenCipherKey string `mapstructure:"token_cipher_key"`
}

var config Config

func InitConfig() {
	var err error

	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/forgeflow-egress")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindEnv("token_cipher_key", "TOKEN_CIPHER_KEY")

	if err := viper.ReadInConfig(); err != nil {
		panic(err)
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		panic(err)
	}

	if config.Egress.SocketPath == "" {
		config.Egress.SocketPath = "/tmp/forgeflow-egress.sock"
	}

	// Initialize logger with configured log level
	initLogger(config.Log.Level)
}
