package linkedin

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultBaseURL is the platform origin
	DefaultBaseURL = "https://www.linkedin.com"

	AuthenticatePath    = "/uas/authenticate"
	LoginPagePath       = "/uas/login"
	LoginSubmitPath     = "/checkpoint/lg/login-submit"
	ChallengeVerifyPath = "/checkpoint/challenge/verify"
	SearchClustersPath  = "/voyager/api/search/dash/clusters"
	UpdatesV2Path       = "/voyager/api/feed/updatesV2"

	SearchDecorationID = "com.linkedin.voyager.dash.deco.search.SearchClusterCollection-158"
	SearchOrigin       = "SWITCH_SEARCH_VERTICAL"

	// MaxSearchCount is the largest page the search endpoint serves
	MaxSearchCount = 49

	// NormalizedJSON is the Accept value for voyager API responses
	NormalizedJSON        = "application/vnd.linkedin.normalized+json+2.1"
	RestliProtocolVersion = "2.0.0"

	MobileUserAgent   = "LinkedIn/8.8.1 CFNetwork/711.3.18 Darwin/14.0.0"
	MobileLiUserAgent = "LIAuthLibrary:3.2.4 com.linkedin.LinkedIn:8.8.1 iPhone:8.3"

	updatesCommentsCount = 10
	updatesLikesCount    = 10
)

// SearchRequest is one page request against the search endpoint
type SearchRequest struct {
	Keywords string
	Start    int
	Count    int
}

// EncodeListItem percent-encodes s like encodeURIComponent and additionally
// escapes ! ' ( ) * which the list syntax uses as delimiters.
func EncodeListItem(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// ListParam renders items as List(a,b,...) with each item encoded
func ListParam(items []string) string {
	encoded := make([]string, len(items))
	for i, item := range items {
		encoded[i] = EncodeListItem(item)
	}
	return "List(" + strings.Join(encoded, ",") + ")"
}

// SearchQuery renders the structured query parameter. The structure stays
// literal and only the keywords are escaped.
func SearchQuery(keywords string) string {
	var b strings.Builder
	b.WriteString("(")
	if keywords != "" {
		b.WriteString("keywords:")
		b.WriteString(EncodeListItem(keywords))
		b.WriteString(",")
	}
	b.WriteString("flagshipSearchIntent:SEARCH_SRP,queryParameters:(resultType:List(CONTENT)),includeFiltersInResponse:true)")
	return b.String()
}

// SearchURL builds the search clusters URL for one page
func SearchURL(baseURL string, r SearchRequest) string {
	params := []string{
		"decorationId=" + EncodeListItem(SearchDecorationID),
		"origin=" + SearchOrigin,
		"q=all",
		"query=" + SearchQuery(r.Keywords),
		"start=" + strconv.Itoa(r.Start),
		"count=" + strconv.Itoa(r.Count),
	}
	return strings.TrimRight(baseURL, "/") + SearchClustersPath + "?" + strings.Join(params, "&")
}

// UpdatesV2URL builds the batch media lookup URL for a set of update URNs
func UpdatesV2URL(baseURL string, urns []string) string {
	return strings.TrimRight(baseURL, "/") + UpdatesV2Path +
		"?ids=" + ListParam(urns) +
		"&commentsCount=" + strconv.Itoa(updatesCommentsCount) +
		"&likesCount=" + strconv.Itoa(updatesLikesCount)
}

// URL joins a path onto the base URL
func URL(baseURL, path string) string {
	return strings.TrimRight(baseURL, "/") + path
}
