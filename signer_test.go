package rdssigner

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var signingTime = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

type staticCredentials struct {
	AccessKey, SecretKey, Session string
}

func (s *staticCredentials) Retrieve(ctx context.Context) (aws.Credentials, error) {
	return aws.Credentials{
		AccessKeyID:     s.AccessKey,
		SecretAccessKey: s.SecretKey,
		SessionToken:    s.Session,
	}, nil
}

type failingCredentials struct{ err error }

func (f *failingCredentials) Retrieve(ctx context.Context) (aws.Credentials, error) {
	return aws.Credentials{}, f.err
}

func testSigner() *Signer {
	s := New().
		Host("mydb.abcdefg.us-east-1.rds.amazonaws.com").
		Port(5432).
		User("dbuser").
		Region("us-east-1").
		ExpiresIn(900 * time.Second).
		Credentials(&staticCredentials{AccessKey: "AKIAEXAMPLE", SecretKey: "wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY"})
	s.now = func() time.Time { return signingTime }
	return s
}

func TestFetchToken(t *testing.T) {
	token, err := testSigner().FetchToken(t.Context())
	require.NoError(t, err)

	prefix := "mydb.abcdefg.us-east-1.rds.amazonaws.com:5432/?" +
		"Action=connect" +
		"&DBUser=dbuser" +
		"&X-Amz-Algorithm=AWS4-HMAC-SHA256" +
		"&X-Amz-Credential=AKIAEXAMPLE%2F20240101%2Fus-east-1%2Frds-db%2Faws4_request" +
		"&X-Amz-Date=20240101T000000Z" +
		"&X-Amz-Expires=900" +
		"&X-Amz-SignedHeaders=host" +
		"&X-Amz-Signature="
	require.Regexp(t, regexp.MustCompile("^"+regexp.QuoteMeta(prefix)+"[0-9a-f]{64}$"), token)
}

func TestFetchTokenDeterministic(t *testing.T) {
	first, err := testSigner().FetchToken(t.Context())
	require.NoError(t, err)
	second, err := testSigner().FetchToken(t.Context())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFetchTokenExpiry(t *testing.T) {
	token, err := testSigner().FetchToken(t.Context())
	require.NoError(t, err)

	expiry, err := Expiry(token)
	require.NoError(t, err)
	assert.Equal(t, signingTime.Add(900*time.Second), expiry)
}

func TestSessionToken(t *testing.T) {
	signer := testSigner().Credentials(&staticCredentials{
		AccessKey: "AKIAEXAMPLE",
		SecretKey: "wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY",
		Session:   "anExampleSessionToken",
	})
	token, err := signer.FetchToken(t.Context())
	require.NoError(t, err)
	assert.Contains(t, token, "X-Amz-Security-Token=anExampleSessionToken")

	token, err = testSigner().FetchToken(t.Context())
	require.NoError(t, err)
	assert.NotContains(t, token, "X-Amz-Security-Token")
}

func TestMissingConfiguration(t *testing.T) {
	cases := []struct {
		field  string
		mutate func(*Signer)
	}{
		{"host", func(s *Signer) { s.host = "" }},
		{"port", func(s *Signer) { s.port = 0 }},
		{"user", func(s *Signer) { s.user = "" }},
		{"expires_in", func(s *Signer) { s.expiresIn = -time.Second }},
	}
	for _, tc := range cases {
		t.Run(tc.field, func(t *testing.T) {
			signer := testSigner()
			tc.mutate(signer)
			_, err := signer.FetchToken(t.Context())
			var configErr *ConfigError
			require.ErrorAs(t, err, &configErr)
			assert.Equal(t, tc.field, configErr.Field)
		})
	}
}

func TestRegionResolver(t *testing.T) {
	t.Run("explicit region wins", func(t *testing.T) {
		signer := testSigner().RegionResolver(RegionResolverFunc(func(ctx context.Context) (string, error) {
			t.Fatal("resolver should not be consulted when a region is configured")
			return "", nil
		}))
		_, err := signer.FetchToken(t.Context())
		require.NoError(t, err)
	})

	t.Run("resolver supplies default", func(t *testing.T) {
		signer := testSigner().Region("").RegionResolver(RegionResolverFunc(func(ctx context.Context) (string, error) {
			return "eu-west-2", nil
		}))
		token, err := signer.FetchToken(t.Context())
		require.NoError(t, err)
		assert.Contains(t, token, "%2Feu-west-2%2Frds-db%2F")
	})

	t.Run("resolver failure", func(t *testing.T) {
		cause := errors.New("no region in environment")
		signer := testSigner().Region("").RegionResolver(RegionResolverFunc(func(ctx context.Context) (string, error) {
			return "", cause
		}))
		_, err := signer.FetchToken(t.Context())
		var regionErr *RegionError
		require.ErrorAs(t, err, &regionErr)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("resolver yields nothing", func(t *testing.T) {
		signer := testSigner().Region("").RegionResolver(RegionResolverFunc(func(ctx context.Context) (string, error) {
			return "", nil
		}))
		_, err := signer.FetchToken(t.Context())
		var regionErr *RegionError
		require.ErrorAs(t, err, &regionErr)
	})
}

func TestCredentialFailure(t *testing.T) {
	cause := errors.New("no credentials in environment")
	signer := testSigner().Credentials(&failingCredentials{err: cause})
	_, err := signer.FetchToken(t.Context())
	var credErr *CredentialError
	require.ErrorAs(t, err, &credErr)
	assert.ErrorIs(t, err, cause)
}

func TestEncodingFailure(t *testing.T) {
	signer := testSigner().Host("my db.us-east-1.rds.amazonaws.com")
	_, err := signer.FetchToken(t.Context())
	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
}

func TestInputSensitivity(t *testing.T) {
	base, err := testSigner().FetchToken(t.Context())
	require.NoError(t, err)
	baseSig := base[len(base)-64:]

	mutations := map[string]func(*Signer){
		"host":    func(s *Signer) { s.Host("otherdb.abcdefg.us-east-1.rds.amazonaws.com") },
		"port":    func(s *Signer) { s.Port(3306) },
		"user":    func(s *Signer) { s.User("admin") },
		"region":  func(s *Signer) { s.Region("us-west-2") },
		"expires": func(s *Signer) { s.ExpiresIn(300 * time.Second) },
		"time":    func(s *Signer) { s.now = func() time.Time { return signingTime.Add(time.Minute) } },
		"credentials": func(s *Signer) {
			s.Credentials(&staticCredentials{AccessKey: "AKIAOTHER", SecretKey: "anotherSecret"})
		},
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			signer := testSigner()
			mutate(signer)
			token, err := signer.FetchToken(t.Context())
			require.NoError(t, err)
			assert.NotEqual(t, baseSig, token[len(token)-64:])
		})
	}
}
