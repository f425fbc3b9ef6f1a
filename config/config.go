package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Debug              bool   `envconfig:"debug"`
	Env                string `envconfig:"env"`
	APIBaseURL         string `envconfig:"api_base_url" default:"http://127.0.0.1:8000"`
	GoogleMapsAPIKey   string `envconfig:"google_maps_api_key"`
	RequestTimeoutSecs int    `envconfig:"request_timeout_secs" default:"30"`
	StorePath          string `envconfig:"store_path" default:".roadcare/localstore.json"`
	UploadDir          string `envconfig:"upload_dir" default:"uploads"`
	JWTSecret          string `envconfig:"jwt_secret" default:"dev-secret-change-me"`
	MockPort           int    `envconfig:"mock_port" default:"8000"`
	MockDBPath         string `envconfig:"mock_db_path" default:".roadcare/mockapi.db"`
	MockUserEmail      string `envconfig:"mock_user_email" default:"citizen@example.com"`
	MockUserPassword   string `envconfig:"mock_user_password" default:"tarmac-and-rain"`
}

func Load() (*Config, error) {
	env := os.Getenv("ROADCARE_ENV")
	if env != "release" {
		if err := godotenv.Load("./.env"); err != nil {
			log.Printf("couldn't load env vars: %v", err)
		}
	}

	c := &Config{}
	err := envconfig.Process("roadcare", c)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// RequestTimeout returns the HTTP client timeout for calls to the report API.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}
