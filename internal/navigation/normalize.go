package navigation

import (
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	errs "github.com/vidyasagar/surfshell/internal/errors"
)

var hostnameRe = regexp.MustCompile(`^([A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?)(\.[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?)*\.?$`)

// Normalize turns user input into an absolute http(s) URL. Input without an
// http:// or https:// prefix (case-insensitive) gets https:// prepended.
// The result must have a syntactically valid host.
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", errs.NewMalformedInput("normalize", raw)
	}

	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", errs.NewMalformedInput("normalize", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errs.NewMalformedInput("normalize", raw)
	}
	if !validHost(u) {
		return "", errs.NewMalformedInput("normalize", raw)
	}
	return u.String(), nil
}

// HostOf returns the hostname of rawURL, or "" if it cannot be parsed.
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func validHost(u *url.URL) bool {
	host := u.Hostname()
	if host == "" {
		return false
	}
	if port := u.Port(); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 {
			return false
		}
	} else if strings.HasSuffix(u.Host, ":") {
		return false
	}
	if net.ParseIP(host) != nil {
		return true
	}
	return len(host) <= 253 && hostnameRe.MatchString(host)
}
