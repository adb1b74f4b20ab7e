package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// FeedConfig describes a generic JSON news feed. The URL may contain a
// {ticker} placeholder.
type FeedConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// PageConfig describes an HTML page scraped with CSS selectors.
type PageConfig struct {
	Name                string `yaml:"name"`
	URL                 string `yaml:"url"`
	Source              string `yaml:"source"`
	ItemSelector        string `yaml:"item_selector" default:"article"`
	TitleSelector       string `yaml:"title_selector" default:"h2, h3"`
	DescriptionSelector string `yaml:"description_selector" default:"p"`
	TimeSelector        string `yaml:"time_selector" default:"time"`
	TimeAttr            string `yaml:"time_attr" default:"datetime"`
}

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		SlowThreshold   time.Duration `yaml:"slow_threshold" default:"5s"`
		CORS            bool          `yaml:"cors" default:"true"`
		AllowOrigins    []string      `yaml:"allow_origins" default:"[\"*\"]"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`

		// Collector aggregates error logs and ships them to Kafka.
		Collector struct {
			Enabled   bool          `yaml:"enabled"`
			Interval  time.Duration `yaml:"interval" default:"30s"`
			Threshold int           `yaml:"threshold" default:"100"`
		} `yaml:"collector"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name" default:"stockpulse"`
		SampleRatio float64 `yaml:"sample_ratio" default:"1"`
	} `yaml:"tracing"`
	RateLimit struct {
		Enabled bool    `yaml:"enabled" default:"true"`
		RPS     float64 `yaml:"rps" default:"5"`
		Burst   int     `yaml:"burst" default:"10"`
	} `yaml:"rate_limit"`
	Backend struct {
		Type         string        `yaml:"type" default:"none"`
		BatchSize    int           `yaml:"batch_size" default:"50"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"2s"`
	} `yaml:"backend"`
	Pipeline struct {
		Strategy         string        `yaml:"strategy" default:"return"`
		SourceTimeout    time.Duration `yaml:"source_timeout" default:"8s"`
		ForecastTimeout  time.Duration `yaml:"forecast_timeout" default:"15s"`
		ScoringWorkers   int           `yaml:"scoring_workers" default:"4"`
		BatchConcurrency int           `yaml:"batch_concurrency" default:"4"`
		CacheTTL         time.Duration `yaml:"cache_ttl" default:"5m"`

		// Result pipeline between the analysis service and the backend.
		MaxPerTicker time.Duration `yaml:"max_per_ticker" default:"1s"`
		BufferSize   int           `yaml:"buffer_size" default:"1000"`
		RetryMax     int           `yaml:"retry_max" default:"3"`
	} `yaml:"pipeline"`
	Simulation struct {
		Simulations int    `yaml:"simulations" default:"5000"`
		Days        int    `yaml:"days" default:"30"`
		Workers     int    `yaml:"workers" default:"4"`
		BatchSize   int    `yaml:"batch_size" default:"500"`
		Seed        uint64 `yaml:"seed"` // 0 seeds from entropy
	} `yaml:"simulation"`
	Weighting struct {
		DecayHours    float64            `yaml:"decay_hours" default:"48"`
		SourceWeights map[string]float64 `yaml:"source_weights"`
		Keywords      []string           `yaml:"keywords"`
	} `yaml:"weighting"`
	Sources struct {
		MaxArticles  int `yaml:"max_articles" default:"15"`
		AlphaVantage struct {
			Enabled bool   `yaml:"enabled"`
			APIKey  string `yaml:"api_key"`
			BaseURL string `yaml:"base_url" default:"https://www.alphavantage.co/query"`
		} `yaml:"alpha_vantage"`
		Finnhub struct {
			Enabled  bool          `yaml:"enabled"`
			APIKey   string        `yaml:"api_key"`
			BaseURL  string        `yaml:"base_url" default:"https://finnhub.io/api/v1"`
			Lookback time.Duration `yaml:"lookback" default:"168h"`
		} `yaml:"finnhub"`
		Guardian struct {
			Enabled bool   `yaml:"enabled"`
			APIKey  string `yaml:"api_key"`
			BaseURL string `yaml:"base_url" default:"https://content.guardianapis.com/search"`
		} `yaml:"guardian"`
		Feeds []FeedConfig `yaml:"feeds"`
		Pages []PageConfig `yaml:"pages"`
	} `yaml:"sources"`
	Models struct {
		// Scorer is one of finbert, lexicon, static; Forecaster one of lstm, static.
		Scorer           string        `yaml:"scorer" default:"lexicon"`
		Forecaster       string        `yaml:"forecaster" default:"lstm"`
		ServiceURL       string        `yaml:"service_url" default:"http://localhost:8000"`
		Timeout          time.Duration `yaml:"timeout" default:"10s"`
		RetryAttempts    int           `yaml:"retry_attempts" default:"3"`
		CircuitFailLimit int           `yaml:"circuit_fail_limit" default:"5"`
		CircuitCooldown  time.Duration `yaml:"circuit_cooldown" default:"30s"`
		MaxWords         int           `yaml:"max_words" default:"256"`
		Static           struct {
			Sentiment      float64 `yaml:"sentiment"`
			Price          float64 `yaml:"price" default:"100"`
			ExpectedReturn float64 `yaml:"expected_return"`
		} `yaml:"static"`
	} `yaml:"models"`
	Kafka struct {
		Brokers       []string `yaml:"brokers"`
		Topic         string   `yaml:"topic" default:"stockpulse.analysis.results"`
		RequestsTopic string   `yaml:"requests_topic" default:"stockpulse.analysis.requests"`
		LogsTopic     string   `yaml:"logs_topic" default:"stockpulse.logs"`
		RequiredAcks  int      `yaml:"required_acks" default:"-1"`
		Compression   string   `yaml:"compression" default:"snappy"`
		Producer      struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id" default:"stockpulse"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"stockpulse.analysis.requests.dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"stockpulse"`
		Table            string        `yaml:"table" default:"analysis_results"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled    bool   `yaml:"enabled"`
		Host       string `yaml:"host" default:"localhost"`
		Port       int    `yaml:"port" default:"6379"`
		Password   string `yaml:"password"`
		DB         int    `yaml:"db"`
		Prefix     string `yaml:"prefix" default:"stockpulse"`
		MemorySize int    `yaml:"memory_size" default:"1000"`

		PoolSize        int           `yaml:"pool_size" default:"10"`
		MinIdleConns    int           `yaml:"min_idle_conns" default:"5"`
		PoolTimeout     time.Duration `yaml:"pool_timeout" default:"30s"`
		CleanupInterval time.Duration `yaml:"cleanup_interval" default:"5m"`
	} `yaml:"redis"`
	Queue struct {
		Enabled       bool          `yaml:"enabled"`
		Mode          string        `yaml:"mode" default:"producer-consumer"`
		Prefix        string        `yaml:"prefix" default:"stockpulse:queue"`
		Workers       int           `yaml:"workers" default:"2"`
		RetryLimit    int           `yaml:"retry_limit" default:"3"`
		RetryDelay    time.Duration `yaml:"retry_delay" default:"10s"`
		MaxRetryDelay time.Duration `yaml:"max_retry_delay" default:"5m"`
		RetryInterval time.Duration `yaml:"retry_interval" default:"5s"`
	} `yaml:"queue"`
	Watchlist struct {
		Enabled  bool     `yaml:"enabled"`
		Schedule string   `yaml:"schedule" default:"@every 15m"`
		Tickers  []string `yaml:"tickers"`
	} `yaml:"watchlist"`
	WebSocket struct {
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		PingInterval time.Duration `yaml:"ping_interval" default:"30s"`
		SendBuffer   int           `yaml:"send_buffer" default:"16"`
	} `yaml:"websocket"`
}

// Default returns a configuration populated only from default tags.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Parse decodes YAML on top of the defaults without validating.
func Parse(b []byte) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// list elements are created by the decoder, after defaults ran
	for i := range c.Sources.Pages {
		if err := defaults.Set(&c.Sources.Pages[i]); err != nil {
			return nil, fmt.Errorf("apply defaults: %w", err)
		}
	}
	return c, nil
}

func read(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Load reads and parses a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}

	// Validate required fields
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := c.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides secrets and endpoints from the environment. getenv is
// injected so tests do not touch the process environment.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("ALPHA_VANTAGE_API_KEY"); v != "" {
		c.Sources.AlphaVantage.APIKey = v
		c.Sources.AlphaVantage.Enabled = true
	}
	if v := getenv("FINNHUB_API_KEY"); v != "" {
		c.Sources.Finnhub.APIKey = v
		c.Sources.Finnhub.Enabled = true
	}
	if v := getenv("GUARDIAN_API_KEY"); v != "" {
		c.Sources.Guardian.APIKey = v
		c.Sources.Guardian.Enabled = true
	}
	if v := getenv("MODEL_SERVICE_URL"); v != "" {
		c.Models.ServiceURL = strings.TrimRight(v, "/")
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		host, port, err := net.SplitHostPort(v)
		if err != nil {
			return fmt.Errorf("REDIS_ADDR: %w", err)
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("REDIS_ADDR port: %w", err)
		}
		c.Redis.Host, c.Redis.Port, c.Redis.Enabled = host, p, true
	}
	if v := getenv("WATCHLIST"); v != "" {
		c.Watchlist.Tickers = splitList(v)
		c.Watchlist.Enabled = true
	}
	if v := getenv("SIGNAL_STRATEGY"); v != "" {
		c.Pipeline.Strategy = v
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Backend.Type {
	case "kafka", "clickhouse", "none":
	default:
		return fmt.Errorf("backend.type must be 'kafka', 'clickhouse' or 'none', got '%s'", c.Backend.Type)
	}
	if (c.Backend.Type == "kafka" || c.Kafka.Consumer.Enabled) && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is in use")
	}
	switch c.Pipeline.Strategy {
	case "return", "sentiment":
	default:
		return fmt.Errorf("pipeline.strategy must be 'return' or 'sentiment', got '%s'", c.Pipeline.Strategy)
	}
	switch c.Models.Scorer {
	case "finbert", "lexicon", "static":
	default:
		return fmt.Errorf("models.scorer must be 'finbert', 'lexicon' or 'static', got '%s'", c.Models.Scorer)
	}
	switch c.Models.Forecaster {
	case "lstm", "static":
	default:
		return fmt.Errorf("models.forecaster must be 'lstm' or 'static', got '%s'", c.Models.Forecaster)
	}
	if (c.Models.Scorer == "finbert" || c.Models.Forecaster == "lstm") && c.Models.ServiceURL == "" {
		return fmt.Errorf("models.service_url is required for model-backed adapters")
	}
	if c.Models.Forecaster == "static" && c.Models.Static.Price <= 0 {
		return fmt.Errorf("models.static.price must be positive")
	}
	if c.Simulation.Simulations <= 0 || c.Simulation.Simulations > 100000 {
		return fmt.Errorf("simulation.simulations must be in (0, 100000], got %d", c.Simulation.Simulations)
	}
	if c.Simulation.Days <= 0 || c.Simulation.Days > 756 {
		return fmt.Errorf("simulation.days must be in (0, 756], got %d", c.Simulation.Days)
	}
	if c.Queue.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("queue.enabled requires redis.enabled")
	}
	switch c.Queue.Mode {
	case "producer-consumer", "producer-only", "consumer-only":
	default:
		return fmt.Errorf("queue.mode must be 'producer-consumer', 'producer-only' or 'consumer-only', got '%s'", c.Queue.Mode)
	}
	if c.Watchlist.Enabled && len(c.Watchlist.Tickers) == 0 {
		return fmt.Errorf("watchlist.tickers cannot be empty when the watchlist is enabled")
	}
	for i, p := range c.Sources.Pages {
		if p.URL == "" {
			return fmt.Errorf("sources.pages[%d].url is required", i)
		}
	}
	for i, f := range c.Sources.Feeds {
		if f.URL == "" {
			return fmt.Errorf("sources.feeds[%d].url is required", i)
		}
	}
	return nil
}
