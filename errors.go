package rdssigner

// ConfigError reports a Signer field that is missing or invalid. The
// configuration must be fixed before retrying; the same call will always
// fail the same way.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return "rdssigner: " + e.Field + " " + e.Reason
}

// RegionError reports that no region was configured and none could be
// resolved from the environment. Supply a region explicitly or configure one
// in the AWS environment.
type RegionError struct {
	Err error
}

func (e *RegionError) Error() string {
	msg := "rdssigner: no AWS region configured and none resolvable"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RegionError) Unwrap() error { return e.Err }

// CredentialError reports that the credential provider could not produce a
// credential. This is usually a configuration or permissions problem rather
// than a transient one, so it is not retried here.
type CredentialError struct {
	Err error
}

func (e *CredentialError) Error() string {
	msg := "rdssigner: no AWS credentials available"
	if e.Err != nil {
		msg = "rdssigner: resolving AWS credentials: " + e.Err.Error()
	}
	return msg
}

func (e *CredentialError) Unwrap() error { return e.Err }

// EncodingError reports input that could not be canonicalized for signing,
// such as a host containing whitespace. It indicates a programming error in
// the caller, not a condition worth retrying.
type EncodingError struct {
	Err error
}

func (e *EncodingError) Error() string {
	return "rdssigner: " + e.Err.Error()
}

func (e *EncodingError) Unwrap() error { return e.Err }
