package repo

import (
	"context"

	dom "github.com/adrian-cabangis/taskboard/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AttachmentRepo provides attachment persistence. Inserts and deletes
// always run inside the owning task's transaction.
type AttachmentRepo interface {
	ListByTask(ctx context.Context, taskID int64) ([]dom.Attachment, error)
	GetTx(ctx context.Context, tx pgx.Tx, id int64) (dom.Attachment, error)
	InsertTx(ctx context.Context, tx pgx.Tx, a dom.Attachment) (dom.Attachment, error)
	DeleteTx(ctx context.Context, tx pgx.Tx, id int64) error
}

// PGAttachmentRepo implements AttachmentRepo with Postgres.
type PGAttachmentRepo struct {
	db *pgxpool.Pool
}

// NewPGAttachmentRepo returns a new PGAttachmentRepo.
func NewPGAttachmentRepo(db *pgxpool.Pool) *PGAttachmentRepo {
	return &PGAttachmentRepo{db: db}
}

const attachmentColumns = `id, task_id, filename, filepath, mimetype, size, created_at`

func scanAttachment(row pgx.Row) (dom.Attachment, error) {
	var a dom.Attachment
	err := row.Scan(&a.ID, &a.TaskID, &a.Filename, &a.Filepath, &a.Mimetype, &a.Size, &a.CreatedAt)
	return a, err
}

func (r *PGAttachmentRepo) ListByTask(ctx context.Context, taskID int64) ([]dom.Attachment, error) {
	query := `SELECT ` + attachmentColumns + ` FROM attachments WHERE task_id = $1 ORDER BY id`
	rows, err := r.db.Query(ctx, query, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []dom.Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

func (r *PGAttachmentRepo) GetTx(ctx context.Context, tx pgx.Tx, id int64) (dom.Attachment, error) {
	query := `SELECT ` + attachmentColumns + ` FROM attachments WHERE id = $1`
	return scanAttachment(tx.QueryRow(ctx, query, id))
}

func (r *PGAttachmentRepo) InsertTx(ctx context.Context, tx pgx.Tx, a dom.Attachment) (dom.Attachment, error) {
	query := `
		INSERT INTO attachments (task_id, filename, filepath, mimetype, size)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + attachmentColumns
	return scanAttachment(tx.QueryRow(ctx, query, a.TaskID, a.Filename, a.Filepath, a.Mimetype, a.Size))
}

func (r *PGAttachmentRepo) DeleteTx(ctx context.Context, tx pgx.Tx, id int64) error {
	tag, err := tx.Exec(ctx, `DELETE FROM attachments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
