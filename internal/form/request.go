package form

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/dukerupert/gasportal/internal/model"
)

// Accept is the file input's accept attribute.
const Accept = "image/*,.pdf,.doc,.docx"

type RequestDraft struct {
	RequestType   string `validate:"required"`
	Description   string `validate:"required"`
	Address       string `validate:"required"`
	ContactNumber string `validate:"required"`
	Attachments   []model.Attachment
}

// SetAttachments replaces the attachment list with files. Earlier
// selections are never merged in.
func (d *RequestDraft) SetAttachments(files []model.Attachment) {
	d.Attachments = append([]model.Attachment(nil), files...)
}

// Reset clears every field back to empty.
func (d *RequestDraft) Reset() {
	*d = RequestDraft{Attachments: []model.Attachment{}}
}

func (d RequestDraft) Validate() error {
	return check(d)
}

// IsEmpty reports whether nothing has been entered.
func (d RequestDraft) IsEmpty() bool {
	return d.RequestType == "" && d.Description == "" && d.Address == "" &&
		d.ContactNumber == "" && len(d.Attachments) == 0
}

// ServiceRequest converts the draft to the model submitted to the backend.
func (d RequestDraft) ServiceRequest() model.ServiceRequest {
	return model.ServiceRequest{
		RequestType:   d.RequestType,
		Description:   d.Description,
		Address:       d.Address,
		ContactNumber: d.ContactNumber,
		Attachments:   append([]model.Attachment(nil), d.Attachments...),
	}
}

// ApplyRequest updates draft from a parsed multipart form. The scalar fields
// are always taken from the form. Attachments are replaced only when the
// file input carried at least one file; an untouched input keeps the
// files from an earlier attempt.
func ApplyRequest(draft *RequestDraft, r *http.Request) error {
	if r.MultipartForm == nil {
		return fmt.Errorf("multipart form not parsed")
	}
	draft.RequestType = r.PostFormValue("requestType")
	draft.Description = r.PostFormValue("description")
	draft.Address = r.PostFormValue("address")
	draft.ContactNumber = r.PostFormValue("contactNumber")

	files, err := ReadAttachments(r.MultipartForm.File["attachments"])
	if err != nil {
		return err
	}
	if len(files) > 0 {
		draft.SetAttachments(files)
	}
	return nil
}

// ReadAttachments loads uploaded files into memory. Parts without a filename
// are what browsers send for an empty file input and are skipped.
func ReadAttachments(headers []*multipart.FileHeader) ([]model.Attachment, error) {
	var out []model.Attachment
	for _, fh := range headers {
		if fh == nil || fh.Filename == "" {
			continue
		}
		a, err := readAttachment(fh)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func readAttachment(fh *multipart.FileHeader) (model.Attachment, error) {
	f, err := fh.Open()
	if err != nil {
		return model.Attachment{}, fmt.Errorf("open attachment %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return model.Attachment{}, fmt.Errorf("read attachment %s: %w", fh.Filename, err)
	}
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return model.Attachment{
		Filename:    fh.Filename,
		ContentType: contentType,
		Data:        data,
	}, nil
}
