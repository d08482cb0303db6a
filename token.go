package rdssigner

import (
	"errors"
	"net/url"
	"strconv"
	"time"
)

// Expiry returns the time at which token stops being accepted by RDS,
// calculated from the X-Amz-Date and X-Amz-Expires parameters baked into its
// query string. It fails if the token is malformed or missing either
// parameter.
func Expiry(token string) (time.Time, error) {
	var t time.Time
	u, err := url.Parse(token)
	if err != nil {
		return t, err
	}
	q, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return t, err
	}
	date := q.Get("X-Amz-Date")
	if date == "" {
		return t, errors.New("X-Amz-Date not found in auth token")
	}
	t, err = time.Parse("20060102T150405Z", date)
	if err != nil {
		return t, err
	}
	exp := q.Get("X-Amz-Expires")
	if exp == "" {
		return t, errors.New("X-Amz-Expires not found in auth token")
	}
	seconds, err := strconv.Atoi(exp)
	if err != nil {
		return t, err
	}
	return t.Add(time.Duration(seconds) * time.Second), nil
}
