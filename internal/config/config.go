package config

import (
	"flag"
	"log"
	"os"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type (
	Config struct {
		App  `yaml:"app"`
		HTTP `yaml:"http"`
		Log  `yaml:"logger"`
		PG   `yaml:"postgres"`
		Sync `yaml:"sync"`

		Providers Providers `yaml:"providers"`
	}

	App struct {
		Env     string `yaml:"env"     env-default:"local"`
		Name    string `yaml:"name"    env-default:"calsync"`
		Version string `yaml:"version" env-required:"true" env:"APP_VERSION"`
	}

	HTTP struct {
		IP      string        `yaml:"ip"      env-default:"0.0.0.0"`
		Port    string        `yaml:"port"    env-default:"8080"`
		Timeout time.Duration `yaml:"timeout" env-default:"10s"`
		CORS    struct {
			AllowedMethods   []string `yaml:"allowed_methods"`
			AllowedOrigins   []string `yaml:"allowed_origins"`
			AllowCredentials bool     `yaml:"allow_credentials"`
			AllowedHeaders   []string `yaml:"allowed_headers"`
			ExposedHeaders   []string `yaml:"exposed_headers"`
			Debug            bool     `yaml:"debug"`
		} `yaml:"cors"`
	}

	Log struct {
		Level string `yaml:"log_level" env-required:"true" env:"LOG_LEVEL"`
	}

	PG struct {
		// Enabled selects the postgres-backed store; otherwise events live in
		// the in-memory store and vanish on restart.
		Enabled bool   `yaml:"enabled"  env-default:"false"`
		PoolMax int    `yaml:"pool_max" env-default:"2"`
		URL     string `env:"PG_URL"`
	}

	Sync struct {
		// Schedule is a cron expression for periodic runs; empty disables the
		// scheduler and leaves only the HTTP trigger.
		Schedule       string        `yaml:"schedule"`
		ConflictPolicy string        `yaml:"conflict_policy" env-default:"last_write_wins"`
		RangePast      time.Duration `yaml:"range_past"      env-default:"720h"`
		RangeFuture    time.Duration `yaml:"range_future"    env-default:"8760h"`
		MaxParallel    int           `yaml:"max_parallel"    env-default:"4"`
		PushRetries    int           `yaml:"push_retries"    env-default:"3"`
		RetryBackoff   time.Duration `yaml:"retry_backoff"   env-default:"2s"`
	}

	Providers struct {
		Rest   RestProvider   `yaml:"rest"`
		CalDAV CalDAVProvider `yaml:"caldav"`
	}

	RestProvider struct {
		Enabled  bool          `yaml:"enabled"  env-default:"false"`
		BaseURL  string        `yaml:"base_url"`
		Account  string        `yaml:"account"`
		Timezone string        `yaml:"timezone" env-default:"UTC"`
		PageSize int           `yaml:"page_size"`
		Timeout  time.Duration `yaml:"timeout"  env-default:"30s"`
		Token    string        `env:"REST_PROVIDER_TOKEN"`
	}

	CalDAVProvider struct {
		Enabled  bool          `yaml:"enabled"  env-default:"false"`
		BaseURL  string        `yaml:"base_url"`
		Account  string        `yaml:"account"`
		Timezone string        `yaml:"timezone" env-default:"UTC"`
		Timeout  time.Duration `yaml:"timeout"  env-default:"30s"`
		User     string        `yaml:"user"`
		Password string        `env:"CALDAV_PASSWORD"`
	}
)

const (
	EnvConfigPathName  = "CONFIG-PATH"
	FlagConfigPathName = "config"
)

var (
	configPath string
	instance   *Config
	once       sync.Once
)

// GetConfig returns app configs.
func GetConfig() *Config {
	once.Do(func() {
		flag.StringVar(
			&configPath,
			FlagConfigPathName,
			"./configs/config.yml",
			"this is app config file",
		)
		flag.Parse()

		log.Print("config init")

		if configPath == "" {
			configPath = os.Getenv(EnvConfigPathName)
		}

		if configPath == "" {
			log.Fatal("config path is required")
		}

		instance = &Config{}

		if err := cleanenv.ReadConfig(configPath, instance); err != nil {
			helpText := "CalSync - Calendar Synchronization Engine"
			help, _ := cleanenv.GetDescription(instance, &helpText)
			log.Print(help)
			log.Fatal(err)
		}
	})
	return instance
}
