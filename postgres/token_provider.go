// Package postgres integrates rdssigner with the jackc/pgx driver.
//
// The token provider is safe for concurrent use and caches tokens across
// connections, since RDS throttles connection setup but not token reuse.
//
// Example usage:
//
//	import (
//		"github.com/aws/aws-sdk-go-v2/config"
//		"github.com/jackc/pgx/v5/pgxpool"
//		rdspostgres "github.com/errm/rdssigner/postgres"
//	)
//
//	func main() {
//		cfg, _ := config.LoadDefaultConfig(context.TODO())
//
//		poolConfig, _ := pgxpool.ParseConfig("postgres://dbuser@db-instance.region.rds.amazonaws.com:5432/mydb")
//		poolConfig.BeforeConnect = rdspostgres.TokenProvider(cfg, time.Minute)
//
//		pool, _ := pgxpool.NewWithConfig(context.TODO(), poolConfig)
//		defer pool.Close()
//	}
package postgres

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5"

	"github.com/errm/rdssigner"
)

// cachedToken holds the authentication token and its expiration time.
// It includes a mutex to ensure safe concurrent access to the token state.
type cachedToken struct {
	token       string
	expires     time.Time
	gracePeriod time.Duration
	mutex       *sync.RWMutex
	awsConfig   aws.Config
}

// TokenProvider creates a new RDS authentication token provider function.
// The returned function can be used as a BeforeConnect hook on a
// pgxpool.Config, setting each connection's password to a token signed for
// the pool's host, port and user.
//
// Tokens are cached until they are within gracePeriod of expiring.
func TokenProvider(awsConfig aws.Config, gracePeriod time.Duration) func(ctx context.Context, c *pgx.ConnConfig) error {
	ct := &cachedToken{
		awsConfig:   awsConfig,
		mutex:       &sync.RWMutex{},
		gracePeriod: gracePeriod,
	}
	return ct.get
}

// get retrieves a valid authentication token, either from cache or by signing a new one,
// and sets it as the connection password.
func (ct *cachedToken) get(ctx context.Context, c *pgx.ConnConfig) error {
	ct.mutex.RLock()
	if !ct.stale() {
		defer ct.mutex.RUnlock()
		c.Password = ct.token
		return nil
	}
	ct.mutex.RUnlock()

	ct.mutex.Lock()
	defer ct.mutex.Unlock()

	// Check again in case another goroutine already updated the token
	if !ct.stale() {
		c.Password = ct.token
		return nil
	}

	return ct.updateToken(ctx, c)
}

// stale checks if the current token is expired or about to expire.
func (ct *cachedToken) stale() bool {
	return ct.token == "" || time.Now().After(ct.expires.Add(-ct.gracePeriod))
}

// updateToken signs a new authentication token and updates the cache.
// It should only be called while holding the cache's write lock.
func (ct *cachedToken) updateToken(ctx context.Context, c *pgx.ConnConfig) error {
	signer := rdssigner.New().
		Host(c.Host).
		Port(c.Port).
		User(c.User).
		Region(ct.awsConfig.Region).
		Credentials(ct.awsConfig.Credentials)

	token, err := signer.FetchToken(ctx)
	if err != nil {
		return err
	}
	ct.token = token
	c.Password = token
	ct.expires, err = rdssigner.Expiry(token)
	return err
}
