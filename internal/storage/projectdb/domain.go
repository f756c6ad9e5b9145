package projectdb

import (
	"errors"
	"net/url"
	"path/filepath"
	"strings"

	"golang.org/x/net/idna"
)

var ErrMissingHost = errors.New("url has no host")

// ExtractDomain returns the project domain of a crawled URL: the lowercased
// host in punycode form, without port and without a leading "www.".
// Inputs without a scheme are treated as http.
func ExtractDomain(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &url.Error{Op: "parse", URL: raw, Err: ErrMissingHost}
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", &url.Error{Op: "parse", URL: raw, Err: ErrMissingHost}
	}
	if puny, err := idna.Lookup.ToASCII(host); err == nil {
		host = puny
	}
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return "", &url.Error{Op: "parse", URL: raw, Err: ErrMissingHost}
	}
	return host, nil
}

// SanitizeDomain turns a domain into a filesystem-safe directory name.
func SanitizeDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	var b strings.Builder
	for _, r := range domain {
		if (r >= 'a' && r <= 'z') ||
			(r >= '0' && r <= '9') ||
			r == '-' || r == '.' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), "._-")
	if out == "" {
		out = "unknown"
	}
	return out
}

// DomainDir returns the directory holding a domain's database under root.
func DomainDir(root, domain string) string {
	return filepath.Join(root, "projects", SanitizeDomain(domain))
}
