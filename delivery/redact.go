package delivery

import (
	"net/url"
	"strings"
)

var secretParams = []string{"internal", "secret", "token", "key"}

// RedactURL masks secret-looking query parameters so a URL is safe to log
// or store.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "[unparseable url]"
	}
	if u.RawQuery == "" {
		return u.String()
	}

	q := u.Query()
	for name := range q {
		lower := strings.ToLower(name)
		for _, s := range secretParams {
			if strings.Contains(lower, s) {
				q.Set(name, "[MASKED]")
				break
			}
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
