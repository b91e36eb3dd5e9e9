package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address string `yaml:"address"`
	} `yaml:"server"`
	Database struct {
		Driver string `yaml:"driver"`
		URL    string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	JWT struct {
		SigningKey string `yaml:"signing_key"`
	} `yaml:"jwt"`
	Payments struct {
		ExpiryHours int `yaml:"expiry_hours"`
		Stripe      struct {
			SecretKey     string `yaml:"secret_key"`
			WebhookSecret string `yaml:"webhook_secret"`
			SuccessURL    string `yaml:"success_url"`
			CancelURL     string `yaml:"cancel_url"`
		} `yaml:"stripe"`
		Coinpay struct {
			APIKey      string `yaml:"api_key"`
			IPNSecret   string `yaml:"ipn_secret"`
			BaseURL     string `yaml:"base_url"`
			CallbackURL string `yaml:"callback_url"`
			SuccessURL  string `yaml:"success_url"`
			CancelURL   string `yaml:"cancel_url"`
		} `yaml:"coinpay"`
		Airbapay struct {
			BaseURL       string `yaml:"base_url"`
			User          string `yaml:"user"`
			Password      string `yaml:"password"`
			TerminalID    string `yaml:"terminal_id"`
			SignPublicKey string `yaml:"sign_public_key"`
			CallbackURL   string `yaml:"callback_url"`
			SuccessURL    string `yaml:"success_url"`
			FailureURL    string `yaml:"failure_url"`
		} `yaml:"airbapay"`
	} `yaml:"payments"`
	Firebase struct {
		CredentialsFile string `yaml:"credentials_file"`
	} `yaml:"firebase"`
}

func LoadConfig() Config {
	var cfg Config

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Failed to read config file: %v", err)
	}

	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		log.Fatalf("Failed to unmarshal config data: %v", err)
	}

	applyEnvOverrides(&cfg)
	return cfg
}

// Секреты из окружения перекрывают значения из файла.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("JWT_SIGNING_KEY"); v != "" {
		cfg.JWT.SigningKey = v
	}
	if v := os.Getenv("STRIPE_SECRET_KEY"); v != "" {
		cfg.Payments.Stripe.SecretKey = v
	}
	if v := os.Getenv("STRIPE_WEBHOOK_SECRET"); v != "" {
		cfg.Payments.Stripe.WebhookSecret = v
	}
	if v := os.Getenv("COINPAY_API_KEY"); v != "" {
		cfg.Payments.Coinpay.APIKey = v
	}
	if v := os.Getenv("COINPAY_IPN_SECRET"); v != "" {
		cfg.Payments.Coinpay.IPNSecret = v
	}
	if v := os.Getenv("AIRBAPAY_PASSWORD"); v != "" {
		cfg.Payments.Airbapay.Password = v
	}
}
