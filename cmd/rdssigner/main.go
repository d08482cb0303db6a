// Command rdssigner prints an RDS IAM authentication token for the endpoint
// described by the environment. It is handy for checking an IAM auth setup
// or feeding a token to command line clients:
//
//	PGPASSWORD=$(rdssigner) psql "host=$RDS_HOST user=$RDS_USER sslmode=require"
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/ilyakaznacheev/cleanenv"

	"github.com/errm/rdssigner"
)

type Config struct {
	Host      string        `env:"RDS_HOST"`
	Port      uint16        `env:"RDS_PORT" env-default:"5432"`
	User      string        `env:"RDS_USER"`
	Region    string        `env:"AWS_REGION"`
	ExpiresIn time.Duration `env:"RDS_TOKEN_TTL" env-default:"15m"`

	// Optional static credentials; when unset the default AWS credential
	// chain (environment, shared config, instance metadata) is used.
	AccessKeyID     string `env:"RDS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"RDS_SECRET_ACCESS_KEY"`
	SessionToken    string `env:"RDS_SESSION_TOKEN"`
}

func main() {
	var config Config
	if err := cleanenv.ReadEnv(&config); err != nil {
		slog.Error("reading environment", "err", err)
		os.Exit(1)
	}

	signer := rdssigner.New().
		Host(config.Host).
		Port(config.Port).
		User(config.User).
		Region(config.Region).
		ExpiresIn(config.ExpiresIn)
	if config.AccessKeyID != "" {
		signer.Credentials(credentials.NewStaticCredentialsProvider(
			config.AccessKeyID, config.SecretAccessKey, config.SessionToken))
	}

	token, err := signer.FetchToken(context.Background())
	if err != nil {
		slog.Error("fetching token", "err", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
