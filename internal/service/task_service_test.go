package service

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"mime/multipart"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/adrian-cabangis/taskboard/internal/authz"
	dom "github.com/adrian-cabangis/taskboard/internal/domain"
	"github.com/adrian-cabangis/taskboard/internal/storage"
	"github.com/adrian-cabangis/taskboard/internal/validation"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// memDB is an in-memory stand-in for the Postgres repos. Transactions
// are no-ops; the service's rollback behavior towards blobs is observed
// through the disk store instead.
type memDB struct {
	users map[int64]dom.User
	tasks map[int64]dom.Task
	atts  map[int64]dom.Attachment

	nextTaskID int64
	nextAttID  int64

	failAttachmentInsert bool
}

func newMemDB() *memDB {
	return &memDB{
		users: map[int64]dom.User{
			1: {ID: 1, Name: "Admin", Email: "admin@example.com", Role: dom.RoleAdmin},
			3: {ID: 3, Name: "Three", Email: "three@example.com", Role: dom.RoleUser},
			5: {ID: 5, Name: "Five", Email: "five@example.com", Role: dom.RoleUser},
			7: {ID: 7, Name: "Seven", Email: "seven@example.com", Role: dom.RoleUser},
		},
		tasks: map[int64]dom.Task{},
		atts:  map[int64]dom.Attachment{},
	}
}

type fakeTx struct{ pgx.Tx }

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

func (m *memDB) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

func (m *memDB) withRelations(t dom.Task) dom.Task {
	if u, ok := m.users[t.UserID]; ok {
		t.User = &u
	}
	t.Attachments = nil
	for id := int64(1); id <= m.nextAttID; id++ {
		if a, ok := m.atts[id]; ok && a.TaskID == t.ID {
			t.Attachments = append(t.Attachments, a)
		}
	}
	return t
}

func (m *memDB) ListAll(context.Context) ([]dom.Task, error) {
	var out []dom.Task
	for id := int64(1); id <= m.nextTaskID; id++ {
		if t, ok := m.tasks[id]; ok {
			out = append(out, m.withRelations(t))
		}
	}
	return out, nil
}

func (m *memDB) ListByUser(_ context.Context, userID int64) ([]dom.Task, error) {
	var out []dom.Task
	for id := int64(1); id <= m.nextTaskID; id++ {
		if t, ok := m.tasks[id]; ok && t.UserID == userID {
			out = append(out, m.withRelations(t))
		}
	}
	return out, nil
}

func (m *memDB) GetByID(_ context.Context, id int64) (dom.Task, error) {
	t, ok := m.tasks[id]
	if !ok {
		return dom.Task{}, pgx.ErrNoRows
	}
	return m.withRelations(t), nil
}

func (m *memDB) CreateTx(_ context.Context, _ pgx.Tx, t dom.Task) (dom.Task, error) {
	if _, ok := m.users[t.UserID]; !ok {
		return dom.Task{}, pgx.ErrNoRows
	}
	m.nextTaskID++
	t.ID = m.nextTaskID
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	m.tasks[t.ID] = t
	return t, nil
}

func (m *memDB) UpdateTx(_ context.Context, _ pgx.Tx, t dom.Task) (dom.Task, error) {
	old, ok := m.tasks[t.ID]
	if !ok {
		return dom.Task{}, pgx.ErrNoRows
	}
	t.CreatedAt = old.CreatedAt
	t.UpdatedAt = time.Now()
	t.User = nil
	t.Attachments = nil
	m.tasks[t.ID] = t
	return t, nil
}

func (m *memDB) ListByTask(_ context.Context, taskID int64) ([]dom.Attachment, error) {
	var out []dom.Attachment
	for id := int64(1); id <= m.nextAttID; id++ {
		if a, ok := m.atts[id]; ok && a.TaskID == taskID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memDB) GetTx(_ context.Context, _ pgx.Tx, id int64) (dom.Attachment, error) {
	a, ok := m.atts[id]
	if !ok {
		return dom.Attachment{}, pgx.ErrNoRows
	}
	return a, nil
}

func (m *memDB) InsertTx(_ context.Context, _ pgx.Tx, a dom.Attachment) (dom.Attachment, error) {
	if m.failAttachmentInsert {
		return dom.Attachment{}, errors.New("insert failed")
	}
	m.nextAttID++
	a.ID = m.nextAttID
	a.CreatedAt = time.Now()
	m.atts[a.ID] = a
	return a, nil
}

func (m *memDB) DeleteTx(_ context.Context, _ pgx.Tx, id int64) error {
	if _, ok := m.atts[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.atts, id)
	return nil
}

func (m *memDB) GetByEmail(_ context.Context, email string) (dom.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return dom.User{}, pgx.ErrNoRows
}

func (m *memDB) GetUserByID(_ context.Context, id int64) (dom.User, error) {
	u, ok := m.users[id]
	if !ok {
		return dom.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (m *memDB) Exists(_ context.Context, id int64) (bool, error) {
	_, ok := m.users[id]
	return ok, nil
}

func (m *memDB) List(context.Context) ([]dom.User, error) {
	var out []dom.User
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

// userRepoAdapter renames GetUserByID back to the interface method, so
// memDB can satisfy all three repos without a method clash.
type userRepoAdapter struct{ *memDB }

func (a userRepoAdapter) GetByID(ctx context.Context, id int64) (dom.User, error) {
	return a.memDB.GetUserByID(ctx, id)
}

var (
	adminIdent = authz.Identity{UserID: 1, Role: dom.RoleAdmin}
	userThree  = authz.Identity{UserID: 3, Role: dom.RoleUser}
	userFive   = authz.Identity{UserID: 5, Role: dom.RoleUser}
)

func newTestService(t *testing.T) (*TaskService, *memDB, *storage.DiskStore) {
	t.Helper()
	mem := newMemDB()
	store, err := storage.NewDiskStore(t.TempDir(), "/storage")
	if err != nil {
		t.Fatalf("disk store: %v", err)
	}
	svc := NewTaskService(zerolog.Nop(), mem, mem, mem, userRepoAdapter{mem}, store, nil)
	return svc, mem, store
}

// makeForm builds a parsed multipart form with openable file headers.
func makeForm(t *testing.T, values map[string][]string, files map[string][]byte) *multipart.Form {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for key, vs := range values {
		for _, v := range vs {
			if err := w.WriteField(key, v); err != nil {
				t.Fatal(err)
			}
		}
	}
	for name, content := range files {
		fw, err := w.CreateFormFile("attachments", name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(content); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(32 << 20)
	if err != nil {
		t.Fatal(err)
	}
	return form
}

func countBlobs(t *testing.T, store *storage.DiskStore) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(store.Root(), func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestCreateAsAdminDefaultsPending(t *testing.T) {
	svc, mem, _ := newTestService(t)
	form := makeForm(t, map[string][]string{
		"title":    {"Draft report"},
		"deadline": {"2025-12-01"},
		"priority": {"high"},
		"user_id":  {"7"},
	}, nil)

	task, err := svc.Create(context.Background(), adminIdent, true, form)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if task.Status != dom.StatusPending {
		t.Errorf("status = %q, want pending", task.Status)
	}
	if task.UserID != 7 {
		t.Errorf("user_id = %d, want 7", task.UserID)
	}
	if len(mem.tasks) != 1 {
		t.Errorf("tasks persisted = %d", len(mem.tasks))
	}
}

func TestCreateMissingFieldsNothingPersisted(t *testing.T) {
	svc, mem, _ := newTestService(t)
	form := makeForm(t, map[string][]string{"description": {"no title"}}, nil)

	_, err := svc.Create(context.Background(), adminIdent, true, form)
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected validation.Errors, got %v", err)
	}
	for _, f := range []string{"title", "deadline", "priority", "user_id"} {
		if verrs[f] == "" {
			t.Errorf("missing field error for %q: %v", f, verrs)
		}
	}
	if len(mem.tasks) != 0 {
		t.Errorf("task persisted despite validation failure")
	}
}

func TestCreateNonAdminDenied(t *testing.T) {
	svc, mem, _ := newTestService(t)
	form := makeForm(t, map[string][]string{
		"title": {"x"}, "deadline": {"2025-12-01"}, "priority": {"low"}, "user_id": {"7"},
	}, nil)

	_, err := svc.Create(context.Background(), userThree, true, form)
	if !errors.Is(err, authz.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if len(mem.tasks) != 0 {
		t.Errorf("task persisted despite denial")
	}
}

func TestCreateForSelfForcesOwner(t *testing.T) {
	svc, _, _ := newTestService(t)
	form := makeForm(t, map[string][]string{
		"title": {"mine"}, "deadline": {"2025-12-01"}, "priority": {"low"}, "user_id": {"999"},
	}, nil)

	task, err := svc.Create(context.Background(), userThree, false, form)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if task.UserID != 3 {
		t.Errorf("user_id = %d, want caller's 3", task.UserID)
	}
}

func TestCreateUnknownAssignee(t *testing.T) {
	svc, _, _ := newTestService(t)
	form := makeForm(t, map[string][]string{
		"title": {"x"}, "deadline": {"2025-12-01"}, "priority": {"low"}, "user_id": {"99"},
	}, nil)

	_, err := svc.Create(context.Background(), adminIdent, true, form)
	var verrs validation.Errors
	if !errors.As(err, &verrs) || verrs["user_id"] == "" {
		t.Fatalf("expected user_id error, got %v", err)
	}
}

func TestCreateWithAttachments(t *testing.T) {
	svc, mem, store := newTestService(t)
	form := makeForm(t, map[string][]string{
		"title": {"with files"}, "deadline": {"2025-12-01"}, "priority": {"medium"}, "user_id": {"5"},
	}, map[string][]byte{
		"spec.pdf": []byte("pdf content"),
		"shot.png": []byte("png content"),
	})

	task, err := svc.Create(context.Background(), adminIdent, true, form)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(task.Attachments) != 2 {
		t.Fatalf("attachments = %d, want 2", len(task.Attachments))
	}
	if len(mem.atts) != 2 {
		t.Errorf("attachment rows = %d, want 2", len(mem.atts))
	}
	if countBlobs(t, store) != 2 {
		t.Errorf("blobs on disk = %d, want 2", countBlobs(t, store))
	}
	for _, a := range task.Attachments {
		if a.Filepath == "" || a.Filename == "" || a.Size == 0 {
			t.Errorf("incomplete attachment row: %+v", a)
		}
	}
}

func TestCreateOversizedAttachmentRejected(t *testing.T) {
	svc, mem, store := newTestService(t)
	form := makeForm(t, map[string][]string{
		"title": {"big"}, "deadline": {"2025-12-01"}, "priority": {"low"}, "user_id": {"5"},
	}, map[string][]byte{
		"huge.png": bytes.Repeat([]byte("x"), 6*1024*1024),
	})

	_, err := svc.Create(context.Background(), adminIdent, true, form)
	var verrs validation.Errors
	if !errors.As(err, &verrs) || verrs["attachments.0"] == "" {
		t.Fatalf("expected attachments.0 error, got %v", err)
	}
	if len(mem.tasks) != 0 {
		t.Errorf("task persisted despite rejected file")
	}
	if countBlobs(t, store) != 0 {
		t.Errorf("blob written despite rejected file")
	}
}

func TestCreateAttachmentInsertFailureRemovesBlobs(t *testing.T) {
	svc, mem, store := newTestService(t)
	mem.failAttachmentInsert = true
	form := makeForm(t, map[string][]string{
		"title": {"x"}, "deadline": {"2025-12-01"}, "priority": {"low"}, "user_id": {"5"},
	}, map[string][]byte{"a.pdf": []byte("content")})

	if _, err := svc.Create(context.Background(), adminIdent, true, form); err == nil {
		t.Fatal("expected error")
	}
	if countBlobs(t, store) != 0 {
		t.Errorf("orphaned blob left after failed insert")
	}
}

func seedTaskFor(t *testing.T, svc *TaskService, owner int64, files map[string][]byte) dom.Task {
	t.Helper()
	form := makeForm(t, map[string][]string{
		"title":    {"seeded"},
		"deadline": {"2025-12-01"},
		"priority": {"low"},
		"user_id":  {intToString(owner)},
	}, files)
	task, err := svc.Create(context.Background(), adminIdent, true, form)
	if err != nil {
		t.Fatalf("seed task: %v", err)
	}
	return task
}

func intToString(v int64) string { return strconv.FormatInt(v, 10) }

func TestUpdateByNonOwnerDenied(t *testing.T) {
	svc, mem, _ := newTestService(t)
	task := seedTaskFor(t, svc, 5, nil)

	form := makeForm(t, map[string][]string{"title": {"hijacked"}}, nil)
	_, err := svc.Update(context.Background(), userThree, task.ID, false, form)
	if !errors.Is(err, authz.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if mem.tasks[task.ID].Title != "seeded" {
		t.Errorf("task mutated despite denial")
	}
}

func TestUpdateStatusToCancelled(t *testing.T) {
	svc, _, _ := newTestService(t)
	task := seedTaskFor(t, svc, 5, nil)

	form := makeForm(t, map[string][]string{"status": {"cancelled"}}, nil)
	updated, err := svc.Update(context.Background(), adminIdent, task.ID, true, form)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Status != dom.StatusCancelled {
		t.Errorf("status = %q, want cancelled", updated.Status)
	}
}

func TestUpdateOwnerRestrictedFields(t *testing.T) {
	svc, _, _ := newTestService(t)
	task := seedTaskFor(t, svc, 5, nil)

	form := makeForm(t, map[string][]string{"status": {"ongoing"}, "title": {"renamed"}}, nil)
	updated, err := svc.Update(context.Background(), userFive, task.ID, false, form)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Status != dom.StatusOngoing || updated.Title != "renamed" {
		t.Errorf("update not applied: %+v", updated)
	}
}

func TestUpdateOwnerCannotReassign(t *testing.T) {
	svc, _, _ := newTestService(t)
	task := seedTaskFor(t, svc, 5, nil)

	form := makeForm(t, map[string][]string{"user_id": {"3"}}, nil)
	_, err := svc.Update(context.Background(), userFive, task.ID, false, form)
	var verrs validation.Errors
	if !errors.As(err, &verrs) || verrs["user_id"] == "" {
		t.Fatalf("expected user_id rejection, got %v", err)
	}
}

func TestUpdateMissingTask(t *testing.T) {
	svc, _, _ := newTestService(t)
	form := makeForm(t, map[string][]string{"title": {"x"}}, nil)
	_, err := svc.Update(context.Background(), adminIdent, 42, true, form)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDetachAttachmentDeletesBlobOnce(t *testing.T) {
	svc, mem, store := newTestService(t)
	task := seedTaskFor(t, svc, 5, map[string][]byte{"doc.pdf": []byte("content")})
	if len(task.Attachments) != 1 {
		t.Fatalf("seed attachments = %d", len(task.Attachments))
	}
	attID := task.Attachments[0].ID

	form := makeForm(t, map[string][]string{"deleted_attachments": {intToString(attID)}}, nil)
	updated, err := svc.Update(context.Background(), adminIdent, task.ID, true, form)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(updated.Attachments) != 0 {
		t.Errorf("attachment still listed: %+v", updated.Attachments)
	}
	if _, ok := mem.atts[attID]; ok {
		t.Errorf("attachment row not deleted")
	}
	if countBlobs(t, store) != 0 {
		t.Errorf("blob not deleted")
	}

	// Second detach of the same id: the task no longer owns it.
	form = makeForm(t, map[string][]string{"deleted_attachments": {intToString(attID)}}, nil)
	_, err = svc.Update(context.Background(), adminIdent, task.ID, true, form)
	if !errors.Is(err, ErrAttachmentNotOwned) {
		t.Fatalf("expected ErrAttachmentNotOwned, got %v", err)
	}
}

func TestDetachForeignAttachmentRejected(t *testing.T) {
	svc, mem, store := newTestService(t)
	mine := seedTaskFor(t, svc, 5, nil)
	other := seedTaskFor(t, svc, 7, map[string][]byte{"theirs.pdf": []byte("content")})
	foreignID := other.Attachments[0].ID

	form := makeForm(t, map[string][]string{"deleted_attachments": {intToString(foreignID)}}, nil)
	_, err := svc.Update(context.Background(), adminIdent, mine.ID, true, form)
	if !errors.Is(err, ErrAttachmentNotOwned) {
		t.Fatalf("expected ErrAttachmentNotOwned, got %v", err)
	}
	if _, ok := mem.atts[foreignID]; !ok {
		t.Errorf("foreign attachment row deleted")
	}
	if countBlobs(t, store) != 1 {
		t.Errorf("foreign blob deleted")
	}
}

func TestUpdateAttachesNewFiles(t *testing.T) {
	svc, mem, store := newTestService(t)
	task := seedTaskFor(t, svc, 5, nil)

	form := makeForm(t, map[string][]string{}, map[string][]byte{"late.docx": []byte("content")})
	updated, err := svc.Update(context.Background(), userFive, task.ID, false, form)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(updated.Attachments) != 1 {
		t.Fatalf("attachments = %d, want 1", len(updated.Attachments))
	}
	if len(mem.atts) != 1 || countBlobs(t, store) != 1 {
		t.Errorf("attachment row/blob mismatch: rows=%d blobs=%d", len(mem.atts), countBlobs(t, store))
	}
}

func TestListsAreScoped(t *testing.T) {
	svc, _, _ := newTestService(t)
	seedTaskFor(t, svc, 5, nil)
	seedTaskFor(t, svc, 7, nil)

	all, err := svc.ListAll(context.Background(), adminIdent)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("ListAll = %d tasks", len(all))
	}
	if all[0].User == nil {
		t.Errorf("owner not eager-loaded")
	}

	if _, err := svc.ListAll(context.Background(), userFive); !errors.Is(err, authz.ErrPermissionDenied) {
		t.Errorf("ListAll as user: %v", err)
	}

	own, err := svc.ListForUser(context.Background(), userFive, 5)
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(own) != 1 || own[0].UserID != 5 {
		t.Errorf("ListForUser = %+v", own)
	}

	if _, err := svc.ListForUser(context.Background(), userThree, 5); !errors.Is(err, authz.ErrPermissionDenied) {
		t.Errorf("ListForUser foreign: %v", err)
	}
}
