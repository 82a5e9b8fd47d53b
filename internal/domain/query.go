package domain

// QueryRequest is the request to answer a question within a session.
// The HTTP layer fills it from loosely typed parameters.
type QueryRequest struct {
	Query                    string
	SearchUUID               string
	GenerateRelatedQuestions bool
}

// SessionView is the admin representation of everything stored for a session
type SessionView struct {
	SearchUUID string         `json:"search_uuid"`
	Record     *SessionRecord `json:"record,omitempty"`
	History    []Turn         `json:"history"`
}
