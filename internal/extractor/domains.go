package extractor

import "strings"

// domainMatcher matches hosts against configured domains. A plain entry
// ("facebook.com") matches the domain and its subdomains; "*.example" and
// ".example" match subdomains of example and example itself.
type domainMatcher struct {
	exact    map[string]struct{}
	suffixes []string
}

func newDomainMatcher(patterns []string) *domainMatcher {
	matcher := &domainMatcher{
		exact: make(map[string]struct{}),
	}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		value = strings.TrimPrefix(strings.TrimPrefix(value, "*."), ".")
		value = strings.TrimPrefix(value, "www.")
		if value == "" {
			continue
		}
		if _, dup := matcher.exact[value]; dup {
			continue
		}
		matcher.exact[value] = struct{}{}
		matcher.suffixes = append(matcher.suffixes, value)
	}
	if len(matcher.exact) == 0 {
		return nil
	}
	return matcher
}

func (m *domainMatcher) Matches(host string) bool {
	if m == nil {
		return false
	}
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return false
	}
	if _, exact := m.exact[host]; exact {
		return true
	}
	for _, suffix := range m.suffixes {
		if strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}
