package config

import (
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env               string `yaml:"env" env-default:"local"`
	App               `yaml:"app"`
	Otp               `yaml:"otp"`
	Jwt               `yaml:"jwt"`
	EmailVerification `yaml:"email_verification"`
	Postgres          `yaml:"postgres"`
	Redis             `yaml:"redis"`
	RabbitMQ          `yaml:"rabbitmq"`
	HTTPServer        `yaml:"http_server"`

	// Toggles server-side session tracking. When false every token
	// operation trusts the signature alone.
	TokenValidationEnabled bool `yaml:"token_validation_enabled" env:"TOKEN_VALIDATION_ENABLED" env-default:"false"`
}

type App struct {
	Name    string `yaml:"name" env-default:"event-registration"`
	BaseURL string `yaml:"base_url" env-required:"true"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

type Postgres struct {
	Host     string `yaml:"host" env-default:"postgres"`
	Port     int    `yaml:"port" env-default:"5432"`
	User     string `yaml:"user" env-required:"true"`
	Password string `yaml:"password" env-required:"true"`
	DBName   string `yaml:"dbname" env-required:"true"`
	SSLMode  string `yaml:"sslmode" env-default:"disable"`
}

type Redis struct {
	Addr     string `yaml:"addr" env-default:"redis:6379"`
	Password string `yaml:"password" env-default:""`
	DB       int    `yaml:"db" env-default:"0"`
}

type Otp struct {
	TTL time.Duration `yaml:"ttl" env-default:"10m"`

	// Addresses that always receive WhitelistOtp instead of a random
	// code, so automated tests can log in without reading mail.
	WhitelistEmails []string `yaml:"whitelist_emails" env:"OTP_WHITELIST_EMAILS"`
	WhitelistOtp    string   `yaml:"whitelist_otp" env:"OTP_WHITELIST_OTP"`
}

type Jwt struct {
	Secret          string        `yaml:"secret" env:"JWT_SECRET" env-required:"true"`
	Issuer          string        `yaml:"issuer" env-required:"true"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env-required:"true"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env-required:"true"`
}

type EmailVerification struct {
	TTL       time.Duration `yaml:"ttl" env-default:"30m"`
	CipherKey string        `yaml:"cipher_key" env:"EMAIL_VERIFICATION_CIPHER_KEY" env-required:"true"`
	CipherIV  string        `yaml:"cipher_iv" env:"EMAIL_VERIFICATION_CIPHER_IV" env-required:"true"`
}

type RabbitMQ struct {
	URL       string `yaml:"url" env-required:"true"`
	QueueName string `yaml:"queue_name" env-required:"true"`
}

func MustLoad(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("Config file does not exist" + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("Failed to read config" + err.Error())
	}

	return &cfg
}
