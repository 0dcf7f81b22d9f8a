package linkedin

import "encoding/json"

// SearchResponse is the normalized body of the search clusters endpoint
type SearchResponse struct {
	Data     SearchData        `json:"data"`
	Included []json.RawMessage `json:"included"`
}

// SearchData carries paging metadata
type SearchData struct {
	Paging Paging `json:"paging"`
}

// Paging reports the server's view of the result set. Total is nil when
// the server does not report it.
type Paging struct {
	Total *int `json:"total,omitempty"`
	Start int  `json:"start"`
	Count int  `json:"count"`
}

// UpdatesResponse is the normalized body of the updatesV2 batch endpoint
type UpdatesResponse struct {
	Included []json.RawMessage `json:"included"`
}

// LoginResult is the JSON body returned by a credential submission
type LoginResult struct {
	LoginResult    string `json:"login_result"`
	ChallengeURL   string `json:"challenge_url,omitempty"`
	FailureMessage string `json:"failure_message,omitempty"`
}

// Login results the platform reports
const (
	LoginPass        = "PASS"
	LoginChallenge   = "CHALLENGE"
	LoginBadPassword = "BAD_PASSWORD"
	LoginBadEmail    = "BAD_EMAIL"
)

type rawEntity struct {
	EntityURN string `json:"entityUrn"`
	Type      string `json:"$type"`

	// presence of the key is what matters, a null value still counts
	EntityEmbeddedObject json.RawMessage `json:"entityEmbeddedObject"`
	TargetUnion          *struct {
		UpdateV2URN string `json:"updateV2Urn"`
	} `json:"targetUnion"`
	NavigationURL string `json:"navigationUrl"`
	Title         *struct {
		Text string `json:"text"`
	} `json:"title"`

	Thumbnail          json.RawMessage     `json:"thumbnail"`
	Duration           float64             `json:"duration"`
	ProgressiveStreams []progressiveStream `json:"progressiveStreams"`
}

type progressiveStream struct {
	StreamingLocations []struct {
		URL string `json:"url"`
	} `json:"streamingLocations"`
	Size      int64  `json:"size"`
	BitRate   int    `json:"bitRate"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	MediaType string `json:"mediaType"`
}
