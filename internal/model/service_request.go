package model

import "time"

type ServiceRequest struct {
	ID                  string       `json:"id,omitempty"`
	RequestType         string       `json:"requestType"`
	Description         string       `json:"description"`
	Address             string       `json:"address"`
	ContactNumber       string       `json:"contactNumber"`
	Status              string       `json:"status,omitempty"`
	CreatedAt           *time.Time   `json:"createdAt,omitempty"`
	LastUpdated         *time.Time   `json:"lastUpdated,omitempty"`
	EstimatedCompletion *time.Time   `json:"estimatedCompletion,omitempty"`
	Attachments         []Attachment `json:"-"`
}

// Attachment is an uploaded file held in memory until the request is submitted.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (a Attachment) Size() int {
	return len(a.Data)
}
