package config

import "fmt"

// Validate checks a loaded Snapshot for the invariants the rest of the
// proxy assumes hold: at least one credential, a usable TLS mode, and a
// signing secret for the auth verifier.
func Validate(snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("config: snapshot is nil")
	}
	if len(snap.Credentials) == 0 {
		return fmt.Errorf("config: at least one credential is required")
	}
	for i, cred := range snap.Credentials {
		if cred.ID == "" {
			return fmt.Errorf("config: credentials[%d]: id is required", i)
		}
		if cred.Key == "" {
			return fmt.Errorf("config: credentials[%d]: key is required", i)
		}
		if cred.Weight <= 0 {
			return fmt.Errorf("config: credentials[%d]: weight must be positive", i)
		}
		if cred.MaxRequestsPerMinute <= 0 {
			return fmt.Errorf("config: credentials[%d]: max_requests_per_minute must be positive", i)
		}
	}
	switch snap.TLS.Mode {
	case "static":
		if snap.TLS.CertFile == "" || snap.TLS.KeyFile == "" {
			return fmt.Errorf("config: tls.mode=static requires cert_file and key_file")
		}
	case "acme":
		if len(snap.TLS.ACMEDomains) == 0 {
			return fmt.Errorf("config: tls.mode=acme requires at least one acme_domain")
		}
		if snap.TLS.ACMEEmail == "" {
			return fmt.Errorf("config: tls.mode=acme requires acme_email")
		}
	default:
		return fmt.Errorf("config: tls.mode must be 'static' or 'acme', got %q", snap.TLS.Mode)
	}
	if snap.Auth.JWTSigningSecret == "" {
		return fmt.Errorf("config: auth.jwt_signing_secret is required")
	}
	if snap.Auth.DefaultClientRateLimit <= 0 {
		return fmt.Errorf("config: auth.default_client_rate_limit must be positive")
	}
	if snap.Upstream.Host == "" {
		return fmt.Errorf("config: upstream.host is required")
	}
	return nil
}
