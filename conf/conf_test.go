package conf

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/require"
)

type secretGetterMock struct {
	getSecretValue func(ctx context.Context, in *secretsmanager.GetSecretValueInput) (*secretsmanager.GetSecretValueOutput, error)
}

func (m secretGetterMock) GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	return m.getSecretValue(ctx, in)
}

func secretReturning(value string) secretGetterMock {
	return secretGetterMock{getSecretValue: func(ctx context.Context, in *secretsmanager.GetSecretValueInput) (*secretsmanager.GetSecretValueOutput, error) {
		return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(value)}, nil
	}}
}

// inTempDir runs the test from an empty directory so that no stray .env
// or handin.toml is picked up.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
	return dir
}

func unsetEnv(t *testing.T, names ...string) {
	t.Helper()
	for _, n := range names {
		t.Setenv(n, "")
		os.Unsetenv(n)
	}
}

func TestLoadDefaults(t *testing.T) {
	inTempDir(t)
	unsetEnv(t, "HANDIN_CONFIG", "AWS_REGION", "SQS_WAIT_SECONDS", "HTTP_ADDRESS", "NOTIFY_DRIVER")

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, "eu-central-1", c.AWS.Region)
	require.Equal(t, NotifyDriverConsole, c.Notify.Driver)
	require.Equal(t, int32(20), c.SQS.WaitTimeSeconds)
	require.Equal(t, ":8080", c.HTTP.Address)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := inTempDir(t)
	unsetEnv(t, "HANDIN_ENV")
	path := filepath.Join(dir, "custom.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
env = "prod"

[s3]
bucket = "from-file"

[sqs]
archive_queue_url = "https://sqs.eu-central-1.amazonaws.com/1/archive"
visibility_timeout = 600

[http]
allowed_origins = ["https://a.example.edu"]
`), 0o600))

	t.Setenv("HANDIN_CONFIG", path)
	t.Setenv("S3_BUCKET", "from-env")
	t.Setenv("SQS_WAIT_SECONDS", "5")
	t.Setenv("CORS_ORIGINS", "https://b.example.edu, https://c.example.edu")

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, "prod", c.Env)
	require.Equal(t, "from-env", c.S3.Bucket)
	require.Equal(t, "https://sqs.eu-central-1.amazonaws.com/1/archive", c.SQS.ArchiveQueueURL)
	require.Equal(t, int32(600), c.SQS.VisibilityTimeout)
	require.Equal(t, int32(5), c.SQS.WaitTimeSeconds)
	require.Equal(t, []string{"https://b.example.edu", "https://c.example.edu"}, c.HTTP.AllowedOrigins)
}

func TestLoadErrors(t *testing.T) {
	dir := inTempDir(t)

	t.Setenv("HANDIN_CONFIG", filepath.Join(dir, "missing.toml"))
	_, err := Load()
	require.Error(t, err)

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[s3\nbucket="), 0o600))
	t.Setenv("HANDIN_CONFIG", bad)
	_, err = Load()
	require.Error(t, err)

	unsetEnv(t, "HANDIN_CONFIG")
	t.Setenv("SQS_WAIT_SECONDS", "soon")
	_, err = Load()
	require.ErrorContains(t, err, "SQS_WAIT_SECONDS")
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("JWT_KEY=from-dotenv\n"), 0o600))
	unsetEnv(t, "JWT_KEY", "HANDIN_CONFIG")

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, "from-dotenv", c.HTTP.JwtKey)
}

func TestValidate(t *testing.T) {
	c := defaults()
	err := c.ValidateServer()
	require.ErrorContains(t, err, "JWT_KEY")
	require.ErrorContains(t, err, "S3_BUCKET")

	c.S3.Bucket = "b"
	require.ErrorContains(t, c.ValidateWorker(true), "ARCHIVE_QUEUE_URL")
	require.NoError(t, c.ValidateWorker(false))

	c.Notify.Driver = NotifyDriverSendgrid
	require.ErrorContains(t, c.ValidateWorker(false), "SENDGRID")

	c.Notify.Driver = "pigeon"
	require.ErrorContains(t, c.ValidateWorker(false), "pigeon")
}

func TestSendgridAPIKey(t *testing.T) {
	c := defaults()

	c.Notify.SendgridAPIKey = "SG.literal"
	key, err := c.SendgridAPIKey(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, "SG.literal", key)

	c.Notify.SendgridAPIKey = ""
	c.Notify.SendgridSecretName = "handin/sendgrid"

	key, err = c.SendgridAPIKey(context.Background(), secretReturning("SG.plain\n"))
	require.NoError(t, err)
	require.Equal(t, "SG.plain", key)

	key, err = c.SendgridAPIKey(context.Background(), secretReturning(`{"apiKey":"SG.json"}`))
	require.NoError(t, err)
	require.Equal(t, "SG.json", key)

	_, err = c.SendgridAPIKey(context.Background(), secretReturning(`{"other":"x"}`))
	require.Error(t, err)

	cause := errors.New("access denied")
	_, err = c.SendgridAPIKey(context.Background(), secretGetterMock{
		getSecretValue: func(ctx context.Context, in *secretsmanager.GetSecretValueInput) (*secretsmanager.GetSecretValueOutput, error) {
			require.Equal(t, "handin/sendgrid", aws.ToString(in.SecretId))
			return nil, cause
		},
	})
	require.ErrorIs(t, err, cause)
}
