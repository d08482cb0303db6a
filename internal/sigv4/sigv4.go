// Package sigv4 computes AWS Signature Version 4 presigned-URL signatures
// for RDS IAM database authentication requests.
//
// The signing request is always a GET for the connect action with an empty
// body, the only signed header is host, and the signature is carried in the
// query string. The RDS endpoint verifies the signature byte for byte, so
// canonicalization here follows the published SigV4 rules exactly.
package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
)

const (
	algorithm = "AWS4-HMAC-SHA256"

	// Hex encoded SHA-256 of an empty body; presigned connect requests carry no payload.
	emptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	timeFormat = "20060102T150405Z"
	dateFormat = "20060102"
)

// Request describes a single presigning operation. It is built fresh for
// every token and never reused.
type Request struct {
	// Host is the endpoint the signature is bound to, including the port,
	// e.g. "mydb.123456.us-east-1.rds.amazonaws.com:5432".
	Host string
	// Region and Service form the credential scope. For RDS IAM
	// authentication the service is "rds-db".
	Region  string
	Service string
	// Expires is the validity window encoded into X-Amz-Expires.
	Expires time.Duration
	// Time is the signing timestamp; the canonical form is always UTC.
	Time time.Time
	// Params are the unsigned query parameters of the request, such as
	// Action and DBUser. They are folded into the canonical query string
	// alongside the X-Amz-* signing parameters.
	Params map[string]string
}

// Presign computes the signed query string for req. The result is the full
// canonical query with X-Amz-Signature appended; the caller attaches it to
// the endpoint to form the token.
//
// Presign performs no I/O and is a pure function of its inputs: identical
// request, credentials and timestamp always produce an identical signature.
func Presign(req Request, creds aws.Credentials) (string, error) {
	if err := checkCanonicalizable("host", req.Host); err != nil {
		return "", err
	}
	if err := checkCanonicalizable("region", req.Region); err != nil {
		return "", err
	}
	if err := checkCanonicalizable("service", req.Service); err != nil {
		return "", err
	}

	amzDate := req.Time.UTC().Format(timeFormat)
	date := req.Time.UTC().Format(dateFormat)
	scope := strings.Join([]string{date, req.Region, req.Service, "aws4_request"}, "/")

	params := make([][2]string, 0, len(req.Params)+6)
	for name, value := range req.Params {
		params = append(params, [2]string{name, value})
	}
	params = append(params,
		[2]string{"X-Amz-Algorithm", algorithm},
		[2]string{"X-Amz-Credential", creds.AccessKeyID + "/" + scope},
		[2]string{"X-Amz-Date", amzDate},
		[2]string{"X-Amz-Expires", strconv.FormatInt(int64(req.Expires/time.Second), 10)},
		[2]string{"X-Amz-SignedHeaders", "host"},
	)
	if creds.SessionToken != "" {
		params = append(params, [2]string{"X-Amz-Security-Token", creds.SessionToken})
	}
	canonicalQuery := canonicalQueryString(params)

	canonicalRequest := strings.Join([]string{
		"GET",
		"/",
		canonicalQuery,
		"host:" + req.Host,
		"",
		"host",
		emptyPayloadHash,
	}, "\n")

	requestHash := sha256.Sum256([]byte(canonicalRequest))
	stringToSign := strings.Join([]string{
		algorithm,
		amzDate,
		scope,
		hex.EncodeToString(requestHash[:]),
	}, "\n")

	key := deriveKey(creds.SecretAccessKey, date, req.Region, req.Service)
	signature := hex.EncodeToString(hmacSHA256(key, stringToSign))

	return canonicalQuery + "&X-Amz-Signature=" + signature, nil
}

// canonicalQueryString percent-encodes each name and value and sorts the
// pairs by encoded name (then encoded value, though names here are unique).
func canonicalQueryString(params [][2]string) string {
	encoded := make([][2]string, len(params))
	for i, p := range params {
		encoded[i] = [2]string{uriEncode(p[0]), uriEncode(p[1])}
	}
	sort.Slice(encoded, func(i, j int) bool {
		if encoded[i][0] != encoded[j][0] {
			return encoded[i][0] < encoded[j][0]
		}
		return encoded[i][1] < encoded[j][1]
	})
	pairs := make([]string, len(encoded))
	for i, p := range encoded {
		pairs[i] = p[0] + "=" + p[1]
	}
	return strings.Join(pairs, "&")
}

// uriEncode percent-encodes everything outside the RFC 3986 unreserved set,
// one %XX escape per UTF-8 byte, uppercase hex. Unlike url.QueryEscape it
// encodes space as %20 and always encodes '/', as SigV4 requires for values.
func uriEncode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9',
			c == '-', c == '.', c == '_', c == '~':
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteString(strings.ToUpper(hex.EncodeToString([]byte{c})))
		}
	}
	return b.String()
}

// deriveKey runs the AWS4 HMAC chain over the credential scope components.
func deriveKey(secret, date, region, service string) []byte {
	key := hmacSHA256([]byte("AWS4"+secret), date)
	key = hmacSHA256(key, region)
	key = hmacSHA256(key, service)
	return hmacSHA256(key, "aws4_request")
}

func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}

// checkCanonicalizable rejects input that cannot appear verbatim in the
// canonical request. Host, region and service are structural: they are
// signed unencoded, so whitespace or separators would change the request
// the server reconstructs. Hitting this is a programmer error.
func checkCanonicalizable(name, value string) error {
	if value == "" {
		return fmt.Errorf("sigv4: %s is empty", name)
	}
	if strings.ContainsAny(value, " \t\r\n/?#&=%") {
		return fmt.Errorf("sigv4: %s %q contains characters that cannot be canonicalized", name, value)
	}
	return nil
}
