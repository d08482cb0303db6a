// Package mysql integrates rdssigner with the go-sql-driver/mysql driver.
//
//   - RDS IAM authentication tokens are valid for 15 minutes.
//   - IAM database authentication throttles connections at 200 new connections per second.
//   - Connections that use the same authentication token are not throttled. It is recommended that you reuse authentication tokens when possible.
//
// The token provider is safe for concurrent use.
//
// Example usage:
//
//	import (
//		"database/sql"
//		"github.com/aws/aws-sdk-go-v2/config"
//		"github.com/go-sql-driver/mysql"
//		rdsmysql "github.com/errm/rdssigner/mysql"
//	)
//
//	func main() {
//		// Load AWS configuration
//		cfg, _ := config.LoadDefaultConfig(context.TODO())
//
//		// Configure MySQL connection
//		mysqlConfig := mysql.NewConfig()
//		mysqlConfig.User = "dbuser"
//	        mysqlConfig.Addr = "db-instance.region.rds.amazonaws.com:3306"
//	        mysqlConfig.Net = "tcp"
//
//	        // Register the token provider
//	        mysqlConfig.Apply(mysql.BeforeConnect(rdsmysql.TokenProvider(cfg, time.Minute)))
//
//	        connector, _ := mysql.NewConnector(mysqlConfig)
//
//		// Open database connection
//		db, _ := sql.OpenDB(connector)
//		defer db.Close()
//		err := db.Ping()
//		if err != nil {
//			log.Fatal(err)
//		}
//	}
package mysql

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/go-sql-driver/mysql"

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
// The returned function can be used as a BeforeConnect Option for the MySQL driver.
//
// The token provider caches tokens until they are close to expiration (within the grace period),
// reducing the number of signing operations and keeping connections on the
// same token so they are not throttled.
//
// Parameters:
//   - awsConfig: AWS configuration containing credentials and region information
//   - gracePeriod: The duration before token expiration when a new token should be generated
func TokenProvider(awsConfig aws.Config, gracePeriod time.Duration) func(ctx context.Context, c *mysql.Config) error {
	ct := &cachedToken{
		awsConfig:   awsConfig,
		mutex:       &sync.RWMutex{},
		gracePeriod: gracePeriod,
	}
	return ct.get
}

// get retrieves a valid authentication token, either from cache or by signing a new one,
// and sets it as the connection password.
func (ct *cachedToken) get(ctx context.Context, c *mysql.Config) error {
	// First check with a read lock to see if we have a valid token
	ct.mutex.RLock()
	if !ct.stale() {
		defer ct.mutex.RUnlock()
		c.Passwd = ct.token
		return nil
	}
	ct.mutex.RUnlock()

	// If we get here, we need to update the token
	// Only one goroutine should be able to update the token at a time
	ct.mutex.Lock()
	defer ct.mutex.Unlock()

	// Check again in case another goroutine already updated the token
	if !ct.stale() {
		c.Passwd = ct.token
		return nil
	}

	// Update the token
	return ct.updateToken(ctx, c)
}

// stale checks if the current token is expired or about to expire.
// A token is considered stale if it's either empty or its expiration time
// is within the grace period.
func (ct *cachedToken) stale() bool {
	return ct.token == "" || time.Now().After(ct.expires.Add(-ct.gracePeriod))
}

// updateToken signs a new authentication token and updates the cache.
// It should only be called while holding the cache's write lock.
func (ct *cachedToken) updateToken(ctx context.Context, c *mysql.Config) error {
	host, portStr, err := net.SplitHostPort(c.Addr)
	if err != nil {
		return err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return err
	}

	signer := rdssigner.New().
		Host(host).
		Port(uint16(port)).
		User(c.User).
		Region(ct.awsConfig.Region).
		Credentials(ct.awsConfig.Credentials)

	if ct.token, err = signer.FetchToken(ctx); err != nil {
		return err
	}
	c.Passwd = ct.token
	ct.expires, err = rdssigner.Expiry(ct.token)
	return err
}
