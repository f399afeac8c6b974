package repo

import (
	"context"

	dom "github.com/adrian-cabangis/taskboard/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxBeginner starts a database transaction. *pgxpool.Pool satisfies it;
// the service uses it to hold the task update and its attachment rows
// inside one boundary.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TaskRepo provides task persistence. List queries eagerly load the
// owner and the attachments in the same batch; detail queries load
// attachments only. Write methods take the surrounding transaction.
type TaskRepo interface {
	ListAll(ctx context.Context) ([]dom.Task, error)
	ListByUser(ctx context.Context, userID int64) ([]dom.Task, error)
	GetByID(ctx context.Context, id int64) (dom.Task, error)
	CreateTx(ctx context.Context, tx pgx.Tx, t dom.Task) (dom.Task, error)
	UpdateTx(ctx context.Context, tx pgx.Tx, t dom.Task) (dom.Task, error)
}

// PGTaskRepo implements TaskRepo with Postgres.
type PGTaskRepo struct {
	db *pgxpool.Pool
}

// NewPGTaskRepo returns a new PGTaskRepo.
func NewPGTaskRepo(db *pgxpool.Pool) *PGTaskRepo {
	return &PGTaskRepo{db: db}
}

const taskColumns = `t.id, t.user_id, t.title, t.description, t.deadline, t.status, t.priority, t.created_at, t.updated_at`

func scanTask(row pgx.Row) (dom.Task, error) {
	var t dom.Task
	err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Deadline,
		&t.Status, &t.Priority, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (r *PGTaskRepo) ListAll(ctx context.Context) ([]dom.Task, error) {
	query := `
		SELECT ` + taskColumns + `, u.id, u.name, u.email, u.role, u.created_at
		FROM tasks t
		JOIN users u ON u.id = t.user_id
		ORDER BY t.created_at DESC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []dom.Task
	for rows.Next() {
		var t dom.Task
		var u dom.User
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Deadline,
			&t.Status, &t.Priority, &t.CreatedAt, &t.UpdatedAt,
			&u.ID, &u.Name, &u.Email, &u.Role, &u.CreatedAt); err != nil {
			return nil, err
		}
		t.User = &u
		list = append(list, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return r.loadAttachments(ctx, list)
}

func (r *PGTaskRepo) ListByUser(ctx context.Context, userID int64) ([]dom.Task, error) {
	query := `
		SELECT ` + taskColumns + `, u.id, u.name, u.email, u.role, u.created_at
		FROM tasks t
		JOIN users u ON u.id = t.user_id
		WHERE t.user_id = $1
		ORDER BY t.created_at DESC`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []dom.Task
	for rows.Next() {
		var t dom.Task
		var u dom.User
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Deadline,
			&t.Status, &t.Priority, &t.CreatedAt, &t.UpdatedAt,
			&u.ID, &u.Name, &u.Email, &u.Role, &u.CreatedAt); err != nil {
			return nil, err
		}
		t.User = &u
		list = append(list, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return r.loadAttachments(ctx, list)
}

// loadAttachments fetches the attachments of every listed task in one
// query and distributes them, instead of a follow-up query per row.
func (r *PGTaskRepo) loadAttachments(ctx context.Context, tasks []dom.Task) ([]dom.Task, error) {
	if len(tasks) == 0 {
		return tasks, nil
	}
	ids := make([]int64, len(tasks))
	index := make(map[int64]int, len(tasks))
	for i := range tasks {
		ids[i] = tasks[i].ID
		index[tasks[i].ID] = i
	}
	query := `
		SELECT id, task_id, filename, filepath, mimetype, size, created_at
		FROM attachments WHERE task_id = ANY($1) ORDER BY id`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var a dom.Attachment
		if err := rows.Scan(&a.ID, &a.TaskID, &a.Filename, &a.Filepath,
			&a.Mimetype, &a.Size, &a.CreatedAt); err != nil {
			return nil, err
		}
		i := index[a.TaskID]
		tasks[i].Attachments = append(tasks[i].Attachments, a)
	}
	return tasks, rows.Err()
}

func (r *PGTaskRepo) GetByID(ctx context.Context, id int64) (dom.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks t WHERE t.id = $1`
	t, err := scanTask(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return dom.Task{}, err
	}
	list, err := r.loadAttachments(ctx, []dom.Task{t})
	if err != nil {
		return dom.Task{}, err
	}
	return list[0], nil
}

func (r *PGTaskRepo) CreateTx(ctx context.Context, tx pgx.Tx, t dom.Task) (dom.Task, error) {
	query := `
		INSERT INTO tasks (user_id, title, description, deadline, status, priority)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, user_id, title, description, deadline, status, priority, created_at, updated_at`
	return scanTask(tx.QueryRow(ctx, query,
		t.UserID, t.Title, t.Description, t.Deadline, t.Status, t.Priority))
}

func (r *PGTaskRepo) UpdateTx(ctx context.Context, tx pgx.Tx, t dom.Task) (dom.Task, error) {
	query := `
		UPDATE tasks
		SET user_id = $2, title = $3, description = $4, deadline = $5,
		    status = $6, priority = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING id, user_id, title, description, deadline, status, priority, created_at, updated_at`
	return scanTask(tx.QueryRow(ctx, query,
		t.ID, t.UserID, t.Title, t.Description, t.Deadline, t.Status, t.Priority))
}
