package model

// Service is one entry in the service catalog.
type Service struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Urgent      bool   `json:"urgent"`
}
