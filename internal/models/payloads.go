package models

// ErrorResponse is the body of every failed API call.
// Code is a stable machine-readable kind, e.g. "not_found".
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// DocumentListResponse is returned by GET /api/documents.
type DocumentListResponse struct {
	Documents []string `json:"documents"`
}

// ActionRequest is the POST /api/actions payload.
type ActionRequest struct {
	Action string `json:"action"`
}

// ActionResponse echoes the applied action and the dashboard after it.
type ActionResponse struct {
	Action    string         `json:"action"`
	Dashboard map[string]any `json:"dashboard"`
}

// FeedingScheduleRequest is the POST /api/feeding/schedule payload.
// Numbers are pointers so a missing field can be told apart from zero.
type FeedingScheduleRequest struct {
	Weight     *float64 `json:"weight"`
	Meal1Time  string   `json:"meal1Time"`
	Meal2Time  string   `json:"meal2Time"`
	MealAmount *float64 `json:"mealAmount"`
}

// PushAckRequest is the POST /api/notifications/pushed payload.
// Times are the exact "time" values of the notifications that were pushed.
type PushAckRequest struct {
	Times []string `json:"times"`
}

// PushAckResponse reports how many notifications changed to pushed.
type PushAckResponse struct {
	Acknowledged int `json:"acknowledged"`
}
