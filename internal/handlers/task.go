package handlers

import (
	"net/http"
	"strconv"

	"github.com/adrian-cabangis/taskboard/internal/auth"
	dom "github.com/adrian-cabangis/taskboard/internal/domain"
	"github.com/adrian-cabangis/taskboard/internal/dto"
	"github.com/adrian-cabangis/taskboard/internal/service"
	"github.com/adrian-cabangis/taskboard/internal/storage"

	"github.com/gin-gonic/gin"
)

// TaskHandler exposes the task endpoints. The admin surface operates on
// any task; the user surface is limited to the caller's own tasks.
type TaskHandler struct {
	svc     *service.TaskService
	userSvc *service.UserService
	store   storage.BlobStore
}

// NewTaskHandler returns a new TaskHandler.
func NewTaskHandler(svc *service.TaskService, userSvc *service.UserService, store storage.BlobStore) *TaskHandler {
	return &TaskHandler{svc: svc, userSvc: userSvc, store: store}
}

// List godoc
// @Summary      List all tasks (admin)
// @Tags         tasks
// @Produce      json
// @Security     CookieAuth
// @Success      200  {object}  dto.ListTasksResponse
// @Failure      403  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /tasks [get]
func (h *TaskHandler) List(c *gin.Context) {
	ident := auth.IdentityFromContext(c)
	tasks, err := h.svc.ListAll(c.Request.Context(), ident)
	if err != nil {
		respondError(c, err)
		return
	}
	users, err := h.userSvc.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ListTasksResponse{
		Tasks: h.tasksToResponses(tasks),
		Users: usersToResponses(users),
	})
}

// UserList godoc
// @Summary      List own tasks
// @Tags         tasks
// @Produce      json
// @Security     CookieAuth
// @Param        user  path  int  true  "User ID (must be the caller)"
// @Success      200  {object}  dto.ListTasksResponse
// @Failure      403  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /tasks/{user} [get]
func (h *TaskHandler) UserList(c *gin.Context) {
	userID, ok := parseID(c, "user")
	if !ok {
		return
	}
	ident := auth.IdentityFromContext(c)
	tasks, err := h.svc.ListForUser(c.Request.Context(), ident, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ListTasksResponse{Tasks: h.tasksToResponses(tasks)})
}

// Create godoc
// @Summary      Create a task for any user (admin)
// @Tags         tasks
// @Accept       mpfd
// @Produce      json
// @Security     CookieAuth
// @Success      201  {object}  dto.TaskCreatedResponse
// @Failure      403  {object}  map[string]string
// @Failure      422  {object}  map[string]map[string]string
// @Router       /tasks [post]
func (h *TaskHandler) Create(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form expected"})
		return
	}
	ident := auth.IdentityFromContext(c)
	task, err := h.svc.Create(c.Request.Context(), ident, true, form)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.TaskCreatedResponse{
		Message: "Task assigned successfully.",
		Task:    h.taskToResponse(task),
	})
}

// UserCreate godoc
// @Summary      Create a task for oneself
// @Tags         tasks
// @Accept       mpfd
// @Produce      json
// @Security     CookieAuth
// @Param        user  path  int  true  "User ID (must be the caller)"
// @Success      201  {object}  dto.TaskCreatedResponse
// @Failure      403  {object}  map[string]string
// @Failure      422  {object}  map[string]map[string]string
// @Router       /tasks/{user} [post]
func (h *TaskHandler) UserCreate(c *gin.Context) {
	userID, ok := parseID(c, "user")
	if !ok {
		return
	}
	ident := auth.IdentityFromContext(c)
	if ident.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "permission denied"})
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form expected"})
		return
	}
	task, err := h.svc.Create(c.Request.Context(), ident, false, form)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.TaskCreatedResponse{
		Message: "Task created successfully.",
		Task:    h.taskToResponse(task),
	})
}

// AdminUpdate godoc
// @Summary      Update any field of any task (admin)
// @Tags         tasks
// @Accept       mpfd
// @Produce      json
// @Security     CookieAuth
// @Param        task  path  int  true  "Task ID"
// @Success      200  {object}  dto.TaskCreatedResponse
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      422  {object}  map[string]map[string]string
// @Router       /tasks/{task}/admin [put]
func (h *TaskHandler) AdminUpdate(c *gin.Context) {
	h.update(c, true)
}

// UserUpdate godoc
// @Summary      Update own task's restricted fields
// @Tags         tasks
// @Accept       mpfd
// @Produce      json
// @Security     CookieAuth
// @Param        task  path  int  true  "Task ID"
// @Success      200  {object}  dto.TaskCreatedResponse
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      422  {object}  map[string]map[string]string
// @Router       /tasks/{task} [put]
func (h *TaskHandler) UserUpdate(c *gin.Context) {
	h.update(c, false)
}

func (h *TaskHandler) update(c *gin.Context, asAdmin bool) {
	taskID, ok := parseID(c, "task")
	if !ok {
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form expected"})
		return
	}
	ident := auth.IdentityFromContext(c)
	task, err := h.svc.Update(c.Request.Context(), ident, taskID, asAdmin, form)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.TaskCreatedResponse{
		Message: "Task updated successfully.",
		Task:    h.taskToResponse(task),
	})
}

func parseID(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func (h *TaskHandler) taskToResponse(t dom.Task) dto.TaskResponse {
	resp := dto.TaskResponse{
		ID:          t.ID,
		UserID:      t.UserID,
		Title:       t.Title,
		Description: t.Description,
		Deadline:    t.Deadline,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		Attachments: make([]dto.AttachmentResponse, 0, len(t.Attachments)),
	}
	if t.User != nil {
		u := userToResponse(*t.User)
		resp.User = &u
	}
	for _, a := range t.Attachments {
		resp.Attachments = append(resp.Attachments, dto.AttachmentResponse{
			ID:       a.ID,
			Filename: a.Filename,
			Mimetype: a.Mimetype,
			Size:     a.Size,
			URL:      h.store.URL(a.Filepath),
		})
	}
	return resp
}

func (h *TaskHandler) tasksToResponses(list []dom.Task) []dto.TaskResponse {
	out := make([]dto.TaskResponse, len(list))
	for i := range list {
		out[i] = h.taskToResponse(list[i])
	}
	return out
}

func userToResponse(u dom.User) dto.UserResponse {
	return dto.UserResponse{ID: u.ID, Name: u.Name, Email: u.Email, Role: string(u.Role)}
}

func usersToResponses(list []dom.User) []dto.UserResponse {
	out := make([]dto.UserResponse, len(list))
	for i := range list {
		out[i] = userToResponse(list[i])
	}
	return out
}
