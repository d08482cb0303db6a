// Package rdssigner generates AWS IAM authentication tokens for RDS database
// connections, signed locally with the caller's IAM credentials.
//
//   - Tokens are presigned URLs (without the scheme) and are valid for 15
//     minutes by default.
//   - Token generation performs no network I/O of its own; only credential
//     and region resolution may touch the environment or instance metadata.
//   - A token is produced per call and never cached here. The mysql and
//     postgres subpackages provide caching providers for driver integration.
//
// Example usage:
//
//	signer := rdssigner.New().
//		Host("mydb.abcdefg.us-east-1.rds.amazonaws.com").
//		Port(5432).
//		User("dbuser").
//		Region("us-east-1")
//
//	token, err := signer.FetchToken(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	// use token as the database password
package rdssigner

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/errm/rdssigner/internal/sigv4"
)

// DefaultExpires is the token validity window used when ExpiresIn is not
// called. It matches the maximum lifetime RDS grants a token.
const DefaultExpires = 15 * time.Minute

// serviceName is the signing service for RDS IAM database authentication.
// This is not the "rds" control-plane service; tokens signed for the wrong
// service are rejected by the endpoint with no local error.
const serviceName = "rds-db"

// RegionResolver resolves the default AWS region when none is configured on
// the Signer. Implementations may read the environment, shared config files
// or instance metadata.
type RegionResolver interface {
	ResolveRegion(ctx context.Context) (string, error)
}

// RegionResolverFunc adapts a function to the RegionResolver interface.
type RegionResolverFunc func(ctx context.Context) (string, error)

// ResolveRegion calls f.
func (f RegionResolverFunc) ResolveRegion(ctx context.Context) (string, error) {
	return f(ctx)
}

// Signer holds the connection parameters for one RDS endpoint and produces
// authentication tokens for it.
//
// Configure it with the chainable setters, then call FetchToken. A Signer is
// not safe for concurrent mutation; configure it fully before sharing it
// between goroutines.
type Signer struct {
	host        string
	port        uint16
	user        string
	region      string
	expiresIn   time.Duration
	credentials aws.CredentialsProvider
	regions     RegionResolver
	now         func() time.Time
}

// New returns a Signer with the default expiry window. Host, Port and User
// must be set before FetchToken is called.
func New() *Signer {
	return &Signer{
		expiresIn: DefaultExpires,
		now:       time.Now,
	}
}

// Host sets the RDS endpoint hostname.
func (s *Signer) Host(host string) *Signer {
	s.host = host
	return s
}

// Port sets the port the database listens on, e.g. 5432 for PostgreSQL or
// 3306 for MySQL.
func (s *Signer) Port(port uint16) *Signer {
	s.port = port
	return s
}

// User sets the database user to authenticate as. The user must have IAM
// authentication enabled on the RDS instance.
func (s *Signer) User(user string) *Signer {
	s.user = user
	return s
}

// Region sets the AWS region of the RDS instance. If unset, the region is
// resolved from the AWS configuration at token time.
func (s *Signer) Region(region string) *Signer {
	s.region = region
	return s
}

// ExpiresIn sets the token validity window. RDS accepts at most 15 minutes.
func (s *Signer) ExpiresIn(expiresIn time.Duration) *Signer {
	s.expiresIn = expiresIn
	return s
}

// Credentials sets the credential provider used at token time. If unset,
// the default AWS credential chain is used.
func (s *Signer) Credentials(provider aws.CredentialsProvider) *Signer {
	s.credentials = provider
	return s
}

// RegionResolver sets the resolver consulted when no region is configured.
// If unset, the default AWS configuration chain is used.
func (s *Signer) RegionResolver(resolver RegionResolver) *Signer {
	s.regions = resolver
	return s
}

// FetchToken generates an authentication token for the configured endpoint.
//
// The token has the form "<host>:<port>/?Action=connect&..." and is used in
// place of a password when opening the database connection. Its expiry is
// baked into the signed query string; callers reconnecting after the window
// has passed must fetch a fresh token.
//
// FetchToken is idempotent and side-effect free; failed calls can simply be
// repeated. It returns a *ConfigError, *RegionError, *CredentialError or
// *EncodingError describing the first problem encountered.
func (s *Signer) FetchToken(ctx context.Context) (string, error) {
	if err := s.validate(); err != nil {
		return "", err
	}

	region, err := s.resolveRegion(ctx)
	if err != nil {
		return "", err
	}

	creds, err := s.resolveCredentials(ctx)
	if err != nil {
		return "", err
	}

	query, err := sigv4.Presign(sigv4.Request{
		Host:    fmt.Sprintf("%s:%d", s.host, s.port),
		Region:  region,
		Service: serviceName,
		Expires: s.expiresIn,
		Time:    s.now(),
		Params: map[string]string{
			"Action": "connect",
			"DBUser": s.user,
		},
	}, creds)
	if err != nil {
		return "", &EncodingError{Err: err}
	}

	return fmt.Sprintf("%s:%d/?%s", s.host, s.port, query), nil
}

func (s *Signer) validate() error {
	if s.host == "" {
		return &ConfigError{Field: "host", Reason: "is not set"}
	}
	if s.port == 0 {
		return &ConfigError{Field: "port", Reason: "is not set"}
	}
	if s.user == "" {
		return &ConfigError{Field: "user", Reason: "is not set"}
	}
	if s.expiresIn < 0 {
		return &ConfigError{Field: "expires_in", Reason: "must not be negative"}
	}
	return nil
}

func (s *Signer) resolveRegion(ctx context.Context) (string, error) {
	if s.region != "" {
		return s.region, nil
	}
	resolver := s.regions
	if resolver == nil {
		resolver = RegionResolverFunc(defaultRegion)
	}
	region, err := resolver.ResolveRegion(ctx)
	if err != nil {
		return "", &RegionError{Err: err}
	}
	if region == "" {
		return "", &RegionError{}
	}
	return region, nil
}

func (s *Signer) resolveCredentials(ctx context.Context) (aws.Credentials, error) {
	provider := s.credentials
	if provider == nil {
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return aws.Credentials{}, &CredentialError{Err: err}
		}
		provider = cfg.Credentials
	}
	if provider == nil {
		return aws.Credentials{}, &CredentialError{}
	}
	creds, err := provider.Retrieve(ctx)
	if err != nil {
		return aws.Credentials{}, &CredentialError{Err: err}
	}
	return creds, nil
}

// defaultRegion reads the region from the default AWS configuration chain:
// environment, shared config files, then instance metadata.
func defaultRegion(ctx context.Context) (string, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return "", err
	}
	return cfg.Region, nil
}
