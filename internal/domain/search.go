package domain

// SearchContext is one retrieved reference used to ground an answer.
// Its position in a result list is its citation number minus one.
type SearchContext struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Snippet  string `json:"snippet"`
	SiteName string `json:"site_name,omitempty"`
	IconURL  string `json:"icon_url,omitempty"`
}

// RelatedQuestion is a suggested follow-up question
type RelatedQuestion struct {
	Question string `json:"question"`
}
