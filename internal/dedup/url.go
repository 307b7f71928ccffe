package dedup

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/troeske/spiritswise-web-crawler-sub002/internal/hash/sha256"
)

// DefaultTrackingParams are dropped from URLs before hashing. Entries ending
// in "*" match by prefix.
func DefaultTrackingParams() []string {
	return []string{
		"utm_*", "gclid", "fbclid", "msclkid", "mc_cid", "mc_eid",
		"ref", "ref_src", "_ga", "igshid",
	}
}

// Normalizer canonicalizes URLs.
type Normalizer struct {
	exact    map[string]struct{}
	prefixes []string
}

// NewNormalizer builds a Normalizer. Nil params use DefaultTrackingParams.
func NewNormalizer(trackingParams []string) *Normalizer {
	if trackingParams == nil {
		trackingParams = DefaultTrackingParams()
	}
	n := &Normalizer{exact: make(map[string]struct{})}
	for _, p := range trackingParams {
		p = strings.ToLower(strings.TrimSpace(p))
		switch {
		case p == "":
		case strings.HasSuffix(p, "*"):
			n.prefixes = append(n.prefixes, strings.TrimSuffix(p, "*"))
		default:
			n.exact[p] = struct{}{}
		}
	}
	return n
}

func (n *Normalizer) isTracking(param string) bool {
	param = strings.ToLower(param)
	if _, ok := n.exact[param]; ok {
		return true
	}
	for _, p := range n.prefixes {
		if strings.HasPrefix(param, p) {
			return true
		}
	}
	return false
}

// Normalize standardizes a URL to avoid duplicates.
// It lowercases the scheme and host, removes default ports and a leading
// "www.", drops the fragment, trailing slashes and tracking parameters, and
// sorts the remaining query parameters.
func (n *Normalizer) Normalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("parse url: missing host in %q", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	if u.Scheme == "http" {
		host = strings.TrimSuffix(host, ":80")
	}
	if u.Scheme == "https" {
		host = strings.TrimSuffix(host, ":443")
	}
	u.Host = strings.TrimPrefix(host, "www.")
	u.User = nil

	u.Fragment = ""
	u.RawFragment = ""

	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""

	q := u.Query()
	for key := range q {
		if n.isTracking(key) {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()
	u.ForceQuery = false

	return u.String(), nil
}

// Hash returns the SHA-256 hex digest of the normalized URL.
func (n *Normalizer) Hash(rawURL string) (string, error) {
	norm, err := n.Normalize(rawURL)
	if err != nil {
		return "", err
	}
	return sha256.Sum([]byte(norm)), nil
}

var defaultNormalizer = NewNormalizer(nil)

// NormalizeURL normalizes with the default tracking parameters.
func NormalizeURL(rawURL string) (string, error) {
	return defaultNormalizer.Normalize(rawURL)
}

// URLHash hashes with the default tracking parameters.
func URLHash(rawURL string) (string, error) {
	return defaultNormalizer.Hash(rawURL)
}
