// Package validation turns raw multipart task forms into sanitized,
// typed payloads. Each operation mode has its own constraint set; any
// violated constraint fails the whole form with per-field errors, so a
// payload is never partially applied.
package validation

import (
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrian-cabangis/taskboard/internal/domain"
)

// Op selects the constraint set to apply.
type Op int

const (
	// AdminCreate assigns a task to an arbitrary user.
	AdminCreate Op = iota
	// SelfCreate creates a task for the caller; user_id is not
	// client-supplied.
	SelfCreate
	// AdminUpdate may touch any field, including reassignment.
	AdminUpdate
	// SelfUpdate is the owner's restricted update; reassignment is
	// rejected.
	SelfUpdate
)

func (op Op) create() bool { return op == AdminCreate || op == SelfCreate }

// Errors maps a field name to its violation message.
type Errors map[string]string

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for field, msg := range e {
		parts = append(parts, field+": "+msg)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

const (
	maxTitleLen = 255

	// MaxAttachmentBytes is 5120 KB, the per-file upload cap.
	MaxAttachmentBytes = 5120 * 1024
)

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".pdf":  true,
	".docx": true,
}

// TaskInput is the sanitized payload. Pointer fields distinguish
// "absent" from "zero" so updates only touch what was sent.
type TaskInput struct {
	Title              *string
	Description        *string
	Deadline           *time.Time
	Priority           *domain.TaskPriority
	Status             *domain.TaskStatus
	UserID             *int64
	DeletedAttachments []int64
	Files              []*multipart.FileHeader
}

// Task validates form against the rules for op. It returns the sanitized
// input, or a non-nil error map and the zero input.
func Task(op Op, form *multipart.Form) (TaskInput, Errors) {
	errs := Errors{}
	var in TaskInput

	if title, ok := formValue(form, "title"); ok {
		title = strings.TrimSpace(title)
		switch {
		case title == "":
			errs["title"] = "is required"
		case len(title) > maxTitleLen:
			errs["title"] = fmt.Sprintf("must be at most %d characters", maxTitleLen)
		default:
			in.Title = &title
		}
	} else if op.create() {
		errs["title"] = "is required"
	}

	if desc, ok := formValue(form, "description"); ok {
		desc = strings.TrimSpace(desc)
		in.Description = &desc
	}

	if raw, ok := formValue(form, "deadline"); ok {
		t, err := parseDate(raw)
		if err != nil {
			errs["deadline"] = "must be a valid date"
		} else {
			in.Deadline = &t
		}
	} else if op.create() {
		errs["deadline"] = "is required"
	}

	if raw, ok := formValue(form, "priority"); ok {
		p := domain.TaskPriority(strings.ToLower(strings.TrimSpace(raw)))
		if !p.Valid() {
			errs["priority"] = "must be one of low, medium, high"
		} else {
			in.Priority = &p
		}
	} else if op.create() {
		errs["priority"] = "is required"
	}

	// Status is not settable at create; a stray value is dropped there.
	if raw, ok := formValue(form, "status"); ok && !op.create() {
		s := domain.TaskStatus(strings.ToLower(strings.TrimSpace(raw)))
		if !s.Valid() {
			errs["status"] = "must be one of pending, ongoing, completed, cancelled"
		} else {
			in.Status = &s
		}
	}

	validateUserID(op, form, &in, errs)
	validateFiles(form, &in, errs)
	validateDeletedAttachments(op, form, &in, errs)

	if len(errs) > 0 {
		return TaskInput{}, errs
	}
	return in, nil
}

func validateUserID(op Op, form *multipart.Form, in *TaskInput, errs Errors) {
	raw, ok := formValue(form, "user_id")
	switch op {
	case AdminCreate:
		if !ok {
			errs["user_id"] = "is required"
			return
		}
	case SelfCreate:
		// Forced to the caller's identity by the service; a supplied
		// value is ignored.
		return
	case SelfUpdate:
		if ok {
			errs["user_id"] = "cannot be changed"
		}
		return
	case AdminUpdate:
		if !ok {
			return
		}
	}
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		errs["user_id"] = "must be a valid user id"
		return
	}
	in.UserID = &id
}

func validateFiles(form *multipart.Form, in *TaskInput, errs Errors) {
	files := formFiles(form, "attachments")
	for i, fh := range files {
		field := fmt.Sprintf("attachments.%d", i)
		ext := strings.ToLower(filepath.Ext(fh.Filename))
		if !allowedExtensions[ext] {
			errs[field] = "must be a file of type: jpg, jpeg, png, pdf, docx"
			continue
		}
		if fh.Size > MaxAttachmentBytes {
			errs[field] = fmt.Sprintf("must not be greater than %d kilobytes", MaxAttachmentBytes/1024)
		}
	}
	in.Files = files
}

func validateDeletedAttachments(op Op, form *multipart.Form, in *TaskInput, errs Errors) {
	if op.create() {
		return
	}
	for i, raw := range formValues(form, "deleted_attachments") {
		id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil || id <= 0 {
			errs[fmt.Sprintf("deleted_attachments.%d", i)] = "must be a valid attachment id"
			continue
		}
		in.DeletedAttachments = append(in.DeletedAttachments, id)
	}
}

// parseDate accepts a date ("2006-01-02") or an RFC3339 datetime.
// Date-only is taken as start of that day in UTC.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	layouts := []string{
		"2006-01-02",
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
	}
	for _, layout := range layouts {
		parsed, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if layout == "2006-01-02" {
			parsed = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)
		}
		return parsed, nil
	}
	return time.Time{}, fmt.Errorf("deadline: use date (YYYY-MM-DD) or RFC3339 datetime")
}

func formValue(form *multipart.Form, key string) (string, bool) {
	if form == nil {
		return "", false
	}
	if vs, ok := form.Value[key]; ok && len(vs) > 0 {
		return vs[0], true
	}
	return "", false
}

// HTML forms may send repeated fields as either "name" or "name[]";
// accept both.
func formValues(form *multipart.Form, key string) []string {
	if form == nil {
		return nil
	}
	if vs, ok := form.Value[key]; ok && len(vs) > 0 {
		return vs
	}
	return form.Value[key+"[]"]
}

func formFiles(form *multipart.Form, key string) []*multipart.FileHeader {
	if form == nil {
		return nil
	}
	if fs, ok := form.File[key]; ok && len(fs) > 0 {
		return fs
	}
	return form.File[key+"[]"]
}
