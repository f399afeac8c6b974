package service

import (
	"context"
	"errors"
	"mime/multipart"
	"strconv"

	"github.com/adrian-cabangis/taskboard/internal/authz"
	"github.com/adrian-cabangis/taskboard/internal/cache"
	dom "github.com/adrian-cabangis/taskboard/internal/domain"
	"github.com/adrian-cabangis/taskboard/internal/repo"
	"github.com/adrian-cabangis/taskboard/internal/storage"
	"github.com/adrian-cabangis/taskboard/internal/utils"
	"github.com/adrian-cabangis/taskboard/internal/validation"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// TaskService orchestrates task reads and writes: authorization first,
// then validation, then one database transaction holding the scalar
// update together with attachment row changes. Blob writes happen
// before the transaction commits; blob deletes after.
type TaskService struct {
	logger      zerolog.Logger
	db          repo.TxBeginner
	tasks       repo.TaskRepo
	attachments repo.AttachmentRepo
	users       repo.UserRepo
	store       storage.BlobStore
	cache       *cache.TaskCache
	sf          singleflight.Group
}

// NewTaskService creates a TaskService. If c is nil, caching is disabled.
func NewTaskService(
	logger zerolog.Logger,
	db repo.TxBeginner,
	tasks repo.TaskRepo,
	attachments repo.AttachmentRepo,
	users repo.UserRepo,
	store storage.BlobStore,
	c *cache.TaskCache,
) *TaskService {
	return &TaskService{
		logger:      logger,
		db:          db,
		tasks:       tasks,
		attachments: attachments,
		users:       users,
		store:       store,
		cache:       c,
	}
}

// ListAll returns every task with owner and attachments. Admin only.
func (s *TaskService) ListAll(ctx context.Context, ident authz.Identity) ([]dom.Task, error) {
	if err := authz.Can(ident, authz.TaskListAll, 0); err != nil {
		return nil, err
	}
	if s.cache != nil {
		v, err, _ := s.sf.Do("list:all", func() (interface{}, error) {
			if list, err := s.cache.GetAll(ctx); err == nil && list != nil {
				return list, nil
			}
			list, err := s.tasks.ListAll(ctx)
			if err != nil {
				return nil, err
			}
			_ = s.cache.SetAll(ctx, list)
			return list, nil
		})
		if err != nil {
			return nil, err
		}
		return v.([]dom.Task), nil
	}
	return s.tasks.ListAll(ctx)
}

// ListForUser returns the tasks owned by userID. The caller must be
// that user.
func (s *TaskService) ListForUser(ctx context.Context, ident authz.Identity, userID int64) ([]dom.Task, error) {
	if err := authz.Can(ident, authz.TaskListOwn, userID); err != nil {
		return nil, err
	}
	if s.cache != nil {
		key := "list:user:" + strconv.FormatInt(userID, 10)
		v, err, _ := s.sf.Do(key, func() (interface{}, error) {
			if list, err := s.cache.GetUser(ctx, userID); err == nil && list != nil {
				return list, nil
			}
			list, err := s.tasks.ListByUser(ctx, userID)
			if err != nil {
				return nil, err
			}
			_ = s.cache.SetUser(ctx, userID, list)
			return list, nil
		})
		if err != nil {
			return nil, err
		}
		return v.([]dom.Task), nil
	}
	return s.tasks.ListByUser(ctx, userID)
}

// Create validates the form, inserts the task and stores any uploaded
// files. The task row and its attachment rows commit together; blobs
// written for a failed transaction are removed again.
func (s *TaskService) Create(ctx context.Context, ident authz.Identity, asAdmin bool, form *multipart.Form) (dom.Task, error) {
	op := validation.SelfCreate
	authzOp := authz.TaskCreateOwn
	if asAdmin {
		op = validation.AdminCreate
		authzOp = authz.TaskCreateAny
	}
	if err := authz.Can(ident, authzOp, ident.UserID); err != nil {
		return dom.Task{}, err
	}

	in, verrs := validation.Task(op, form)
	if verrs != nil {
		return dom.Task{}, verrs
	}

	ownerID := ident.UserID
	if asAdmin {
		ownerID = *in.UserID
	}
	if err := s.checkUserExists(ctx, ownerID); err != nil {
		return dom.Task{}, err
	}

	t := dom.Task{
		UserID:   ownerID,
		Title:    *in.Title,
		Deadline: *in.Deadline,
		Status:   dom.StatusPending,
		Priority: *in.Priority,
	}
	if in.Description != nil {
		t.Description = *in.Description
	}

	blobs, err := s.putBlobs(in.Files)
	if err != nil {
		return dom.Task{}, err
	}

	created, err := s.insertTask(ctx, t, blobs)
	if err != nil {
		s.removeBlobs(blobs)
		if utils.IsPGForeignKeyViolation(err) {
			return dom.Task{}, validation.Errors{"user_id": "does not exist"}
		}
		s.logger.Error().Err(err).Int64("user_id", ownerID).Msg("failed to create task")
		return dom.Task{}, err
	}

	s.invalidate(ctx, ownerID)
	s.logger.Info().
		Int64("task_id", created.ID).
		Int64("user_id", ownerID).
		Int("attachments", len(created.Attachments)).
		Msg("created task")
	return created, nil
}

// Update applies scalar changes, detaches the listed attachments and
// stores newly uploaded ones, all in one transaction. Detached blobs
// are deleted only after commit; a failed blob delete is logged for
// manual reconciliation.
func (s *TaskService) Update(ctx context.Context, ident authz.Identity, taskID int64, asAdmin bool, form *multipart.Form) (dom.Task, error) {
	t, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dom.Task{}, ErrNotFound
		}
		return dom.Task{}, err
	}

	op := validation.SelfUpdate
	authzOp := authz.TaskUpdateOwn
	if asAdmin {
		op = validation.AdminUpdate
		authzOp = authz.TaskUpdateAny
	}
	if err := authz.Can(ident, authzOp, t.UserID); err != nil {
		return dom.Task{}, err
	}

	in, verrs := validation.Task(op, form)
	if verrs != nil {
		return dom.Task{}, verrs
	}

	oldOwner := t.UserID
	patch := t
	if in.Title != nil {
		patch.Title = *in.Title
	}
	if in.Description != nil {
		patch.Description = *in.Description
	}
	if in.Deadline != nil {
		patch.Deadline = *in.Deadline
	}
	if in.Status != nil {
		patch.Status = *in.Status
	}
	if in.Priority != nil {
		patch.Priority = *in.Priority
	}
	if in.UserID != nil {
		if err := s.checkUserExists(ctx, *in.UserID); err != nil {
			return dom.Task{}, err
		}
		patch.UserID = *in.UserID
	}

	detached, err := resolveDetached(t, in.DeletedAttachments)
	if err != nil {
		return dom.Task{}, err
	}

	blobs, err := s.putBlobs(in.Files)
	if err != nil {
		return dom.Task{}, err
	}

	if err := s.applyUpdate(ctx, patch, detached, blobs); err != nil {
		s.removeBlobs(blobs)
		if utils.IsPGForeignKeyViolation(err) {
			return dom.Task{}, validation.Errors{"user_id": "does not exist"}
		}
		s.logger.Error().Err(err).Int64("task_id", taskID).Msg("failed to update task")
		return dom.Task{}, err
	}

	// Row deletes are committed; blob orphans can only be reconciled by
	// hand, so log them instead of failing the request.
	for _, a := range detached {
		if err := s.store.Delete(a.Filepath); err != nil {
			s.logger.Error().
				Err(err).
				Int64("attachment_id", a.ID).
				Str("filepath", a.Filepath).
				Msg("failed to delete detached blob, reconcile manually")
		}
	}

	s.invalidate(ctx, oldOwner, patch.UserID)

	updated, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return dom.Task{}, err
	}
	s.logger.Info().
		Int64("task_id", taskID).
		Int("detached", len(detached)).
		Int("attached", len(blobs)).
		Msg("updated task")
	return updated, nil
}

// storedBlob pairs a written blob with the upload it came from, so the
// attachment row can be created later and the blob removed on rollback.
type storedBlob struct {
	path string
	file *multipart.FileHeader
}

func (s *TaskService) putBlobs(files []*multipart.FileHeader) ([]storedBlob, error) {
	blobs := make([]storedBlob, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			s.removeBlobs(blobs)
			return nil, &StorageError{Op: "open", Name: fh.Filename, Err: err}
		}
		path, err := s.store.Put(fh.Filename, f)
		f.Close()
		if err != nil {
			s.removeBlobs(blobs)
			return nil, &StorageError{Op: "put", Name: fh.Filename, Err: err}
		}
		blobs = append(blobs, storedBlob{path: path, file: fh})
	}
	return blobs, nil
}

func (s *TaskService) removeBlobs(blobs []storedBlob) {
	for _, b := range blobs {
		if err := s.store.Delete(b.path); err != nil {
			s.logger.Error().
				Err(err).
				Str("filepath", b.path).
				Msg("failed to remove blob after rollback, reconcile manually")
		}
	}
}

func (s *TaskService) insertTask(ctx context.Context, t dom.Task, blobs []storedBlob) (dom.Task, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return dom.Task{}, err
	}
	defer tx.Rollback(ctx)

	created, err := s.tasks.CreateTx(ctx, tx, t)
	if err != nil {
		return dom.Task{}, err
	}
	for _, b := range blobs {
		a, err := s.attachments.InsertTx(ctx, tx, dom.Attachment{
			TaskID:   created.ID,
			Filename: b.file.Filename,
			Filepath: b.path,
			Mimetype: b.file.Header.Get("Content-Type"),
			Size:     b.file.Size,
		})
		if err != nil {
			return dom.Task{}, err
		}
		created.Attachments = append(created.Attachments, a)
	}
	if err := tx.Commit(ctx); err != nil {
		return dom.Task{}, err
	}
	return created, nil
}

func (s *TaskService) applyUpdate(ctx context.Context, patch dom.Task, detached []dom.Attachment, blobs []storedBlob) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := s.tasks.UpdateTx(ctx, tx, patch); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	for _, a := range detached {
		if err := s.attachments.DeleteTx(ctx, tx, a.ID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
	}
	for _, b := range blobs {
		if _, err := s.attachments.InsertTx(ctx, tx, dom.Attachment{
			TaskID:   patch.ID,
			Filename: b.file.Filename,
			Filepath: b.path,
			Mimetype: b.file.Header.Get("Content-Type"),
			Size:     b.file.Size,
		}); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// resolveDetached maps deleted_attachments ids onto the task's own
// attachment rows. An id owned by another task, or already detached,
// rejects the whole request.
func resolveDetached(t dom.Task, ids []int64) ([]dom.Attachment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	byID := make(map[int64]dom.Attachment, len(t.Attachments))
	for _, a := range t.Attachments {
		byID[a.ID] = a
	}
	out := make([]dom.Attachment, 0, len(ids))
	for _, id := range ids {
		a, ok := byID[id]
		if !ok {
			return nil, ErrAttachmentNotOwned
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *TaskService) checkUserExists(ctx context.Context, id int64) error {
	ok, err := s.users.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return validation.Errors{"user_id": "does not exist"}
	}
	return nil
}

func (s *TaskService) invalidate(ctx context.Context, userIDs ...int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userIDs...); err != nil {
		s.logger.Error().Err(err).Msg("failed to invalidate task cache")
	}
}
