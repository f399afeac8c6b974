package domain

import "time"

// Attachment is a file hanging off a task. Filepath is the
// storage-relative location of the blob and is never handed to clients
// directly; the presentation layer resolves it to a public URL.
type Attachment struct {
	ID        int64
	TaskID    int64
	Filename  string
	Filepath  string
	Mimetype  string
	Size      int64
	CreatedAt time.Time
}
