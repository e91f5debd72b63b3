package fetch

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

const (
	// confirmCookiePrefix prefixes the cookie Drive sets on its
	// "can't scan this file for viruses" interstitial.
	confirmCookiePrefix = "download_warning"

	// confirmParam is the query parameter that accepts the interstitial.
	confirmParam = "confirm"

	// quotaExceededMarker appears in the body Drive serves instead of the
	// file once the file's download quota is used up. This is a content
	// heuristic, there is no structured status for it.
	quotaExceededMarker = "Quota exceeded"
)

var (
	driveHostPattern      = regexp.MustCompile(`^(drive|docs)\.google\.com$`)
	quotedFilenamePattern = regexp.MustCompile(`filename="([^"]+)"`)
)

// IsDriveHost reports whether host (as returned by url.URL.Hostname) is one
// of the Google Drive download hosts.
func IsDriveHost(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	return driveHostPattern.MatchString(host)
}

// RouteOf parses locator and returns the strategy that must serve it.
// Parse errors are returned unmodified.
func RouteOf(locator string) (Route, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return RouteHTTP, err
	}
	if IsDriveHost(u.Hostname()) {
		return RouteDrive, nil
	}
	return RouteHTTP, nil
}

// ConfirmToken returns the value of the last download_warning* cookie, or
// "" when none is present.
func ConfirmToken(cookies []*http.Cookie) string {
	token := ""
	for _, c := range cookies {
		if strings.HasPrefix(c.Name, confirmCookiePrefix) {
			token = c.Value
		}
	}
	return token
}

// WithConfirmToken appends confirm=<token> to the query of locator, keeping
// the existing parameters in their original order.
func WithConfirmToken(locator, token string) (string, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return "", fmt.Errorf("rebuild locator with confirm token: %w", err)
	}
	param := confirmParam + "=" + url.QueryEscape(token)
	if u.RawQuery == "" {
		u.RawQuery = param
	} else {
		u.RawQuery += "&" + param
	}
	return u.String(), nil
}

// FilenameFromDisposition extracts the quoted filename attribute of a
// Content-Disposition header value.
func FilenameFromDisposition(disposition string) (string, bool) {
	m := quotedFilenamePattern.FindStringSubmatch(disposition)
	if m == nil || m[1] == "" {
		return "", false
	}
	return m[1], true
}

// IsQuotaExceeded reports whether body contains the Drive quota marker.
func IsQuotaExceeded(body []byte) bool {
	return bytes.Contains(body, []byte(quotaExceededMarker))
}
