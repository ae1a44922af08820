// Package config собирает конфигурацию бинарников Gather.
//
// Источники (в порядке приоритета):
//  1. переменные окружения
//  2. YAML-файл из GATHER_CONFIG (необязательный)
//  3. значения по умолчанию
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/Gather/internal/domain"
)

// Config — конфигурация всех бинарников.
type Config struct {
	LogLevel  string `yaml:"logLevel,omitempty"`
	LogFormat string `yaml:"logFormat,omitempty"`

	DatabaseURL   string `yaml:"databaseUrl,omitempty"`
	RabbitMQURL   string `yaml:"rabbitmqUrl,omitempty"`
	MongoURI      string `yaml:"mongoUri,omitempty"`
	MongoDatabase string `yaml:"mongoDatabase,omitempty"`
	RedisAddr     string `yaml:"redisAddr,omitempty"`
	RedisPassword string `yaml:"redisPassword,omitempty"`
	RedisDB       int    `yaml:"redisDb,omitempty"`

	// Workers — сконфигурированные воркеры (EXPECTED_WORKERS).
	Workers []string `yaml:"workers,omitempty"`

	// WorkerName — имя воркера, которым является процесс gather-worker.
	WorkerName string `yaml:"workerName,omitempty"`

	// WorkerQueues и WorkerBuckets переопределяют очередь и bucket воркера.
	WorkerQueues  map[string]string `yaml:"workerQueues,omitempty"`
	WorkerBuckets map[string]string `yaml:"workerBuckets,omitempty"`

	MergeQueue    string `yaml:"mergeQueue,omitempty"`
	BlobBucket    string `yaml:"blobBucket,omitempty"`
	MergedBucket  string `yaml:"mergedBucket,omitempty"`
	DeliveryLimit int    `yaml:"deliveryLimit,omitempty"`

	// WorkerEndpoint — адрес внешнего сервиса анализа. Пустой — локальная
	// нормализация с задержкой.
	WorkerEndpoint        string        `yaml:"workerEndpoint,omitempty"`
	WorkerEndpointTimeout time.Duration `yaml:"workerEndpointTimeout,omitempty"`

	WorkerDelayMin time.Duration `yaml:"workerDelayMin,omitempty"`
	WorkerDelayMax time.Duration `yaml:"workerDelayMax,omitempty"`
	BatchSize      int           `yaml:"batchSize,omitempty"`
	MergeBatchSize int           `yaml:"mergeBatchSize,omitempty"`
	PollWait       time.Duration `yaml:"pollWait,omitempty"`
	ErrorBackoff   time.Duration `yaml:"errorBackoff,omitempty"`
	MergeIdleSleep time.Duration `yaml:"mergeIdleSleep,omitempty"`

	StuckAfter time.Duration `yaml:"stuckAfter,omitempty"`
	SweepCron  string        `yaml:"sweepCron,omitempty"`

	IdempotencyTTL time.Duration `yaml:"idempotencyTtl,omitempty"`
	APIRateLimit   float64       `yaml:"apiRateLimit,omitempty"`
	APIRateBurst   int           `yaml:"apiRateBurst,omitempty"`

	APIPort     string `yaml:"apiPort,omitempty"`
	WorkerPort  string `yaml:"workerPort,omitempty"`
	MergerPort  string `yaml:"mergerPort,omitempty"`
	SweeperPort string `yaml:"sweeperPort,omitempty"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() *Config {
	return &Config{
		LogLevel:       "INFO",
		LogFormat:      "json",
		MongoDatabase:  "gather",
		RedisAddr:      "localhost:6379",
		MergeQueue:     "merge.trigger",
		BlobBucket:     "outputs",
		MergedBucket:   "merged",
		DeliveryLimit:  10,

		WorkerEndpointTimeout: 30 * time.Second,

		WorkerDelayMin: 180 * time.Second,
		WorkerDelayMax: 300 * time.Second,
		BatchSize:      10,
		MergeBatchSize: 5,
		PollWait:       20 * time.Second,
		ErrorBackoff:   5 * time.Second,
		MergeIdleSleep: 40 * time.Second,
		StuckAfter:     15 * time.Minute,
		SweepCron:      "*/1 * * * *",
		IdempotencyTTL: 24 * time.Hour,
		APIRateBurst:   20,
		APIPort:        "8080",
		WorkerPort:     "8081",
		MergerPort:     "8082",
		SweeperPort:    "8083",
	}
}

// Load читает YAML-файл из GATHER_CONFIG (если задан) и применяет
// переопределения из окружения.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("GATHER_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.Workers = domain.ParseWorkerNames(strings.Join(cfg.Workers, ","))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv применяет переменные окружения поверх текущих значений.
func (c *Config) applyEnv() error {
	envString("LOG_LEVEL", &c.LogLevel)
	envString("LOG_FORMAT", &c.LogFormat)
	envString("DB_URL", &c.DatabaseURL)
	envString("RABBITMQ_URL", &c.RabbitMQURL)
	envString("MONGODB_URI", &c.MongoURI)
	envString("MONGODB_DATABASE", &c.MongoDatabase)
	envString("REDIS_ADDR", &c.RedisAddr)
	envString("REDIS_PASSWORD", &c.RedisPassword)
	envString("WORKER_NAME", &c.WorkerName)
	envString("WORKER_ENDPOINT", &c.WorkerEndpoint)
	envString("MERGE_QUEUE", &c.MergeQueue)
	envString("BLOB_BUCKET", &c.BlobBucket)
	envString("MERGED_BUCKET", &c.MergedBucket)
	envString("SWEEP_CRON", &c.SweepCron)
	envString("API_PORT", &c.APIPort)
	envString("WORKER_PORT", &c.WorkerPort)
	envString("MERGER_PORT", &c.MergerPort)
	envString("SWEEPER_PORT", &c.SweeperPort)

	if raw, ok := os.LookupEnv("EXPECTED_WORKERS"); ok {
		c.Workers = domain.ParseWorkerNames(raw)
	}

	var errs []error
	errs = append(errs,
		envInt("REDIS_DB", &c.RedisDB),
		envInt("QUEUE_DELIVERY_LIMIT", &c.DeliveryLimit),
		envInt("WORKER_BATCH_SIZE", &c.BatchSize),
		envInt("MERGE_BATCH_SIZE", &c.MergeBatchSize),
		envInt("API_RATE_BURST", &c.APIRateBurst),
		envDuration("WORKER_ENDPOINT_TIMEOUT", &c.WorkerEndpointTimeout),
		envDuration("WORKER_DELAY_MIN", &c.WorkerDelayMin),
		envDuration("WORKER_DELAY_MAX", &c.WorkerDelayMax),
		envDuration("POLL_WAIT", &c.PollWait),
		envDuration("ERROR_BACKOFF", &c.ErrorBackoff),
		envDuration("MERGE_IDLE_SLEEP", &c.MergeIdleSleep),
		envDuration("STUCK_AFTER", &c.StuckAfter),
		envDuration("IDEMPOTENCY_TTL", &c.IdempotencyTTL),
		envFloat("API_RATE_LIMIT", &c.APIRateLimit),
	)

	// Переопределения для отдельных воркеров: WORKER_QUEUE_<NAME>, BLOB_BUCKET_<NAME>.
	for _, name := range c.Workers {
		if v := os.Getenv("WORKER_QUEUE_" + envSuffix(name)); v != "" {
			if c.WorkerQueues == nil {
				c.WorkerQueues = map[string]string{}
			}
			c.WorkerQueues[name] = v
		}
		if v := os.Getenv("BLOB_BUCKET_" + envSuffix(name)); v != "" {
			if c.WorkerBuckets == nil {
				c.WorkerBuckets = map[string]string{}
			}
			c.WorkerBuckets[name] = v
		}
	}

	return errors.Join(errs...)
}

// Validate проверяет согласованность значений.
func (c *Config) Validate() error {
	if c.WorkerDelayMin < 0 || c.WorkerDelayMax < c.WorkerDelayMin {
		return fmt.Errorf("invalid worker delay range [%s, %s]", c.WorkerDelayMin, c.WorkerDelayMax)
	}
	if c.MergeQueue == "" {
		return errors.New("merge queue name is empty")
	}
	for _, name := range c.Workers {
		if c.QueueFor(name) == c.MergeQueue {
			return fmt.Errorf("worker %q uses the merge queue %q", name, c.MergeQueue)
		}
	}
	return nil
}

// QueueFor возвращает входную очередь воркера.
func (c *Config) QueueFor(name string) string {
	if q := c.WorkerQueues[name]; q != "" {
		return q
	}
	return "work." + name
}

// BucketFor возвращает bucket результатов воркера.
func (c *Config) BucketFor(name string) string {
	if b := c.WorkerBuckets[name]; b != "" {
		return b
	}
	return c.BlobBucket
}

// WorkerSet строит реестр воркеров.
func (c *Config) WorkerSet() domain.WorkerSet {
	workers := make([]domain.Worker, 0, len(c.Workers))
	for _, name := range c.Workers {
		workers = append(workers, domain.Worker{
			Name:   name,
			Queue:  c.QueueFor(name),
			Bucket: c.BucketFor(name),
		})
	}
	return domain.NewWorkerSet(workers...)
}

// Queues возвращает все рабочие очереди (для объявления топологии).
func (c *Config) Queues() []string {
	queues := make([]string, 0, len(c.Workers)+1)
	for _, w := range c.WorkerSet().All() {
		queues = append(queues, w.Queue)
	}
	return append(queues, c.MergeQueue)
}

// --- Helpers ---

// envSuffix превращает имя воркера в суффикс переменной: "sca-go" → "SCA_GO".
func envSuffix(name string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

// envDuration принимает "15m", "20s" или целое число секунд.
func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(secs) * time.Second
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
