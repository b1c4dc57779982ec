package twitter

const (
	// TimelineEndpoint returns a user's posts, newest first
	TimelineEndpoint = "/1.1/statuses/user_timeline.json"

	// SearchEndpoint returns recent posts matching a query
	SearchEndpoint = "/1.1/search/tweets.json"

	// RateLimitStatusEndpoint reports the current windows per resource
	RateLimitStatusEndpoint = "/1.1/application/rate_limit_status.json"

	// MaxTimelineCount is the largest page the timeline endpoint serves
	MaxTimelineCount = 200

	// MaxSearchCount is the largest page the search endpoint serves
	MaxSearchCount = 100

	// rateLimitCode is the platform error code for an exhausted window
	rateLimitCode = 88
)

// Resource and API names used by the rate limit status endpoint
const (
	ResourceStatuses = "statuses"
	APIUserTimeline  = "/statuses/user_timeline"
	ResourceSearch   = "search"
	APISearchTweets  = "/search/tweets"
)

// TimelineQuery selects a page of a user timeline. Zero ids are omitted.
type TimelineQuery struct {
	UserID  int64
	SinceID int64
	MaxID   int64
	Count   int
}

// SearchQuery selects a page of search results. Zero ids and empty
// Lang/Geocode are omitted.
type SearchQuery struct {
	Query   string
	SinceID int64
	MaxID   int64
	Count   int
	Lang    string
	Geocode string
}

// Window is one API's rate limit window
type Window struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"`
}

// RateLimitStatus maps resource -> api -> window
type RateLimitStatus struct {
	Resources map[string]map[string]Window `json:"resources"`
}

// Reset returns the reset epoch for resource/api, ok false when absent
func (s RateLimitStatus) Reset(resource, api string) (int64, bool) {
	apis, ok := s.Resources[resource]
	if !ok {
		return 0, false
	}
	w, ok := apis[api]
	if !ok || w.Reset == 0 {
		return 0, false
	}
	return w.Reset, true
}

// clampCount keeps count within 1..max, defaulting to max
func clampCount(count, max int) int {
	if count <= 0 || count > max {
		return max
	}
	return count
}
