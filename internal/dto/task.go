package dto

import "time"

// AttachmentResponse exposes an attachment with its resolved public
// URL. The stored path never leaves the server.
type AttachmentResponse struct {
	ID       int64  `json:"id"`
	Filename string `json:"filename"`
	Mimetype string `json:"mimetype"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
}

// TaskResponse is the full task shape returned by list and write
// endpoints.
type TaskResponse struct {
	ID          int64                `json:"id"`
	UserID      int64                `json:"user_id"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Deadline    time.Time            `json:"deadline"`
	Status      string               `json:"status"`
	Priority    string               `json:"priority"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
	User        *UserResponse        `json:"user,omitempty"`
	Attachments []AttachmentResponse `json:"attachments"`
}

// ListTasksResponse is the admin index payload; Users feeds the
// assignment form and is omitted on per-user listings.
type ListTasksResponse struct {
	Tasks []TaskResponse `json:"tasks"`
	Users []UserResponse `json:"users,omitempty"`
}

// TaskCreatedResponse carries the success message alongside the task.
type TaskCreatedResponse struct {
	Message string       `json:"message"`
	Task    TaskResponse `json:"task"`
}
