package verifyurl

import (
	"net/url"
	"strings"
)

// VerifyPage is the page appended to the base URL.
const VerifyPage = "verify.html"

// DataParam carries the token in the verification link.
const DataParam = "data"

// TrimBaseURL removes a single trailing slash from baseURL
func TrimBaseURL(baseURL string) string {
	return strings.TrimSuffix(baseURL, "/")
}

// Build returns {baseURL}/verify.html?data={token}
func Build(baseURL, token string) string {
	return TrimBaseURL(baseURL) + "/" + VerifyPage + "?" + DataParam + "=" + url.QueryEscape(token)
}

// ExtractToken returns the data parameter of a verification link. Input
// that does not parse as a link with a data parameter is returned
// unchanged so that bare tokens pass through.
func ExtractToken(link string) string {
	trimmed := strings.TrimSpace(link)
	if !strings.Contains(trimmed, "?") {
		return link
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return link
	}
	if token := u.Query().Get(DataParam); token != "" {
		return token
	}
	return link
}
