package conf

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

const (
	NotifyDriverSendgrid = "sendgrid"
	NotifyDriverConsole  = "console"

	defaultConfigPath = "handin.toml"
)

type Config struct {
	Env       string `toml:"env"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`

	AWS struct {
		Region      string `toml:"region"`
		MaxAttempts int    `toml:"max_attempts"`
	} `toml:"aws"`

	S3 struct {
		Bucket string `toml:"bucket"`
		// Endpoint points at an S3-compatible store such as MinIO.
		Endpoint string `toml:"endpoint"`
	} `toml:"s3"`

	DynamoDB struct {
		SubmissionsTable string `toml:"submissions_table"`
		CoursesTable     string `toml:"courses_table"`
		Endpoint         string `toml:"endpoint"`
	} `toml:"dynamodb"`

	SQS struct {
		ArchiveQueueURL   string `toml:"archive_queue_url"`
		WaitTimeSeconds   int32  `toml:"wait_time_seconds"`
		VisibilityTimeout int32  `toml:"visibility_timeout"`
	} `toml:"sqs"`

	Notify struct {
		Driver             string `toml:"driver"`
		SendgridAPIKey     string `toml:"sendgrid_api_key"`
		SendgridSecretName string `toml:"sendgrid_secret_name"`
		FromAddress        string `toml:"from_address"`
		FromName           string `toml:"from_name"`
		AppName            string `toml:"app_name"`
	} `toml:"notify"`

	HTTP struct {
		Address        string   `toml:"address"`
		PublicBaseURL  string   `toml:"public_base_url"`
		AllowedOrigins []string `toml:"allowed_origins"`
		JwtKey         string   `toml:"jwt_key"`
	} `toml:"http"`
}

func defaults() Config {
	var c Config
	c.Env = "dev"
	c.LogLevel = "info"
	c.LogFormat = "json"
	c.AWS.Region = "eu-central-1"
	c.AWS.MaxAttempts = 10
	c.DynamoDB.SubmissionsTable = "handin_submissions"
	c.DynamoDB.CoursesTable = "handin_courses"
	c.SQS.WaitTimeSeconds = 20
	c.SQS.VisibilityTimeout = 900
	c.Notify.Driver = NotifyDriverConsole
	c.Notify.FromName = "Handin"
	c.Notify.AppName = "Handin"
	c.HTTP.Address = ":8080"
	return c
}

// Load builds the configuration from, in increasing precedence: built-in
// defaults, a TOML file and environment variables. A .env file in the
// working directory is loaded into the environment first if present.
// The TOML file is $HANDIN_CONFIG, or handin.toml when that is unset;
// only an explicitly named file must exist.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	c := defaults()

	path, explicit := os.LookupEnv("HANDIN_CONFIG")
	if !explicit {
		path = defaultConfigPath
	}
	if err := c.loadFile(path, explicit); err != nil {
		return Config{}, err
	}

	if err := c.applyEnv(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) loadFile(path string, mustExist bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !mustExist {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := toml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v
		}
	}
	str("HANDIN_ENV", &c.Env)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("AWS_REGION", &c.AWS.Region)
	str("S3_BUCKET", &c.S3.Bucket)
	str("S3_ENDPOINT", &c.S3.Endpoint)
	str("SUBMISSIONS_TABLE", &c.DynamoDB.SubmissionsTable)
	str("COURSES_TABLE", &c.DynamoDB.CoursesTable)
	str("DYNAMODB_ENDPOINT", &c.DynamoDB.Endpoint)
	str("ARCHIVE_QUEUE_URL", &c.SQS.ArchiveQueueURL)
	str("NOTIFY_DRIVER", &c.Notify.Driver)
	str("SENDGRID_API_KEY", &c.Notify.SendgridAPIKey)
	str("SENDGRID_SECRET_NAME", &c.Notify.SendgridSecretName)
	str("EMAIL_FROM", &c.Notify.FromAddress)
	str("EMAIL_FROM_NAME", &c.Notify.FromName)
	str("HTTP_ADDRESS", &c.HTTP.Address)
	str("PUBLIC_BASE_URL", &c.HTTP.PublicBaseURL)
	str("JWT_KEY", &c.HTTP.JwtKey)

	if v, ok := os.LookupEnv("CORS_ORIGINS"); ok {
		c.HTTP.AllowedOrigins = splitList(v)
	}

	ints := []struct {
		name string
		dst  *int32
	}{
		{"SQS_WAIT_SECONDS", &c.SQS.WaitTimeSeconds},
		{"SQS_VISIBILITY_SECONDS", &c.SQS.VisibilityTimeout},
	}
	for _, e := range ints {
		v, ok := os.LookupEnv(e.name)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", e.name, err)
		}
		*e.dst = int32(n)
	}

	if v, ok := os.LookupEnv("AWS_MAX_ATTEMPTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid AWS_MAX_ATTEMPTS: %w", err)
		}
		c.AWS.MaxAttempts = n
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

// ValidateServer checks the settings the HTTP server cannot run without.
func (c Config) ValidateServer() error {
	var errs []error
	if c.HTTP.JwtKey == "" {
		errs = append(errs, errors.New("JWT_KEY is not set"))
	}
	if c.HTTP.PublicBaseURL == "" {
		errs = append(errs, errors.New("PUBLIC_BASE_URL is not set"))
	}
	if c.SQS.ArchiveQueueURL == "" {
		errs = append(errs, errors.New("ARCHIVE_QUEUE_URL is not set"))
	}
	return errors.Join(append(errs, c.validateCommon()...)...)
}

// ValidateWorker checks the settings archive workers cannot run without.
// queueURLRequired is false under Lambda, where the queue is the trigger.
func (c Config) ValidateWorker(queueURLRequired bool) error {
	var errs []error
	if queueURLRequired && c.SQS.ArchiveQueueURL == "" {
		errs = append(errs, errors.New("ARCHIVE_QUEUE_URL is not set"))
	}
	if c.SQS.WaitTimeSeconds < 0 || c.SQS.WaitTimeSeconds > 20 {
		errs = append(errs, errors.New("SQS wait time must be between 0 and 20 seconds"))
	}
	return errors.Join(append(errs, c.validateCommon()...)...)
}

func (c Config) validateCommon() []error {
	var errs []error
	if c.S3.Bucket == "" {
		errs = append(errs, errors.New("S3_BUCKET is not set"))
	}
	if c.DynamoDB.SubmissionsTable == "" {
		errs = append(errs, errors.New("SUBMISSIONS_TABLE is not set"))
	}
	switch c.Notify.Driver {
	case NotifyDriverConsole:
	case NotifyDriverSendgrid:
		if c.Notify.SendgridAPIKey == "" && c.Notify.SendgridSecretName == "" {
			errs = append(errs, errors.New("SENDGRID_API_KEY or SENDGRID_SECRET_NAME must be set"))
		}
		if c.Notify.FromAddress == "" {
			errs = append(errs, errors.New("EMAIL_FROM is not set"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown notify driver %q", c.Notify.Driver))
	}
	return errs
}

// AWSConfig loads shared AWS settings with the standard retryer.
func (c Config) AWSConfig(ctx context.Context) (aws.Config, error) {
	maxAttempts := c.AWS.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(c.AWS.Region),
		config.WithRetryer(func() aws.Retryer {
			return retry.AddWithMaxAttempts(retry.NewStandard(), maxAttempts)
		}),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return cfg, nil
}
