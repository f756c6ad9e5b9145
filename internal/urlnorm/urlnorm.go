// Package urlnorm turns the many spellings of a link into one stable form so
// that link rows and link cache keys line up across pages and crawls.
package urlnorm

import (
	"errors"
	"net"
	"net/url"
	"path"
	"sort"
	"strings"

	"golang.org/x/net/idna"
)

// Options controls optional canonicalization policies.
type Options struct {
	DropTrackingParams bool     // remove utm_*, gclid, fbclid and friends
	StripTrailingSlash bool     // "/a/" becomes "/a"; root stays "/"
	DefaultScheme      string   // assumed for schemeless input; empty requires a scheme
	KeepParams         []string // if non-empty, only these query params survive
}

var (
	ErrEmptyURL    = errors.New("urlnorm: empty url")
	ErrMissingHost = errors.New("urlnorm: missing host")
)

var trackingParams = map[string]struct{}{
	"utm_source": {}, "utm_medium": {}, "utm_campaign": {}, "utm_term": {}, "utm_content": {},
	"gclid": {}, "fbclid": {}, "msclkid": {}, "mc_cid": {}, "mc_eid": {},
}

// IsTrackingParam reports whether key is a known click or campaign tracker.
func IsTrackingParam(key string) bool {
	_, ok := trackingParams[strings.ToLower(key)]
	return ok
}

// Canonicalize parses raw and returns its canonical string.
func Canonicalize(raw string, opts Options) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmptyURL
	}
	if opts.DefaultScheme != "" && !strings.Contains(raw, "://") {
		raw = opts.DefaultScheme + "://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if err := Normalize(u, opts); err != nil {
		return "", err
	}
	return u.String(), nil
}

// Normalize canonicalizes u in place: lowercase scheme and host, punycode for
// IDN hosts, default ports and credentials dropped, cleaned path, no
// fragment and a sorted query.
func Normalize(u *url.URL, opts Options) error {
	if u.Host == "" {
		return ErrMissingHost
	}
	u.Scheme = strings.ToLower(u.Scheme)

	host := strings.ToLower(u.Hostname())
	if puny, err := idna.Lookup.ToASCII(host); err == nil {
		host = puny
	}
	port := u.Port()
	switch {
	case port == "",
		u.Scheme == "http" && port == "80",
		u.Scheme == "https" && port == "443":
		u.Host = host
	default:
		u.Host = net.JoinHostPort(host, port)
	}
	u.User = nil

	p := path.Clean(u.Path)
	if p == "." {
		p = "/"
	}
	if u.Path != "" && strings.HasSuffix(u.Path, "/") && p != "/" && !opts.StripTrailingSlash {
		p += "/"
	}
	u.Path = p
	u.RawPath = ""
	u.Fragment = ""
	u.RawFragment = ""
	u.RawQuery = normalizeQuery(u.Query(), opts)
	return nil
}

func normalizeQuery(q url.Values, opts Options) string {
	if len(q) == 0 {
		return ""
	}
	var keep map[string]struct{}
	if len(opts.KeepParams) > 0 {
		keep = make(map[string]struct{}, len(opts.KeepParams))
		for _, k := range opts.KeepParams {
			keep[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		if keep != nil {
			if _, ok := keep[k]; !ok {
				continue
			}
		} else if opts.DropTrackingParams && IsTrackingParam(k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		values := append([]string(nil), q[k]...)
		sort.Strings(values)
		for _, v := range values {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
