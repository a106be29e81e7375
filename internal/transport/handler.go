package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/you-humble/tasksync/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type TaskUsecase interface {
	Create(ctx context.Context, payload domain.Task) (domain.Task, error)
	Get(ctx context.Context, id string) (domain.Task, error)
	Update(ctx context.Context, id string, payload domain.Task) (domain.Task, error)
	Delete(ctx context.Context, id string) (domain.DeleteResult, error)
}

type ImageUsecase interface {
	UploadBinary(ctx context.Context, data []byte, contentType string) (domain.UploadResult, error)
	UploadBase64(ctx context.Context, dataURI string) (domain.UploadResult, error)
}

type uploadBase64Request struct {
	Data  string `json:"data" validate:"required"`
	Title string `json:"title"`
}

type handler struct {
	maxBodyBytes int64
	tasks        TaskUsecase
	images       ImageUsecase
	validate     *validator.Validate
}

func NewHandler(maxBodyMb int64, tasks TaskUsecase, images ImageUsecase) *handler {
	return &handler{
		maxBodyBytes: maxBodyMb << 20,
		tasks:        tasks,
		images:       images,
		validate:     validator.New(),
	}
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *handler) createTask(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "createTask")

	payload, err := h.decodeTask(w, r)
	if err != nil {
		logger.Warn("decode payload", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err.Error())
		return
	}

	task, err := h.tasks.Create(r.Context(), payload)
	if err != nil {
		logger.Error("Create usecase", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Failed to create task", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, task)
}

func (h *handler) getTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	task, err := h.tasks.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Not found", "")
			return
		}
		requestLogger(r, "getTask").Error("Get usecase",
			slog.String("task_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "Failed to get task", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, task)
}

func (h *handler) updateTask(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "updateTask")
	id := chi.URLParam(r, "id")

	payload, err := h.decodeTask(w, r)
	if err != nil {
		logger.Warn("decode payload", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err.Error())
		return
	}

	task, err := h.tasks.Update(r.Context(), id, payload)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Not found", "")
			return
		}
		logger.Error("Update usecase",
			slog.String("task_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "Failed to update task", "")
		return
	}

	writeJSON(w, http.StatusOK, task)
}

func (h *handler) deleteTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	res, err := h.tasks.Delete(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Not found", "")
			return
		}
		requestLogger(r, "deleteTask").Error("Delete usecase",
			slog.String("task_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "Failed to delete task", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *handler) upload(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "upload")

	defer r.Body.Close()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	if err := r.ParseMultipartForm(h.maxBodyBytes); err != nil {
		logger.Warn("ParseMultipartForm", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "Missing file", "")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		logger.Warn("missing file field")
		writeError(w, http.StatusBadRequest, "Missing file", "")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		logger.Error("read upload", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "Missing file", "")
		return
	}

	res, err := h.images.UploadBinary(r.Context(), data, header.Header.Get("Content-Type"))
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeError(w, http.StatusBadRequest, "Missing file", "")
			return
		}
		logger.Error("UploadBinary usecase",
			slog.String("file_name", header.Filename),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "Upload failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *handler) uploadBase64(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "uploadBase64")

	defer r.Body.Close()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	var req uploadBase64Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		logger.Warn("decode payload", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Missing base64 data", "")
		return
	}

	if req.Title != "" {
		logger = logger.With(slog.String("title", req.Title))
	}

	res, err := h.images.UploadBase64(r.Context(), req.Data)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeError(w, http.StatusBadRequest, "Invalid base64 data", err.Error())
			return
		}
		logger.Error("UploadBase64 usecase", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Upload failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// decodeTask reads a JSON object body. An empty body is an empty payload.
// Numbers are kept as json.Number so large ids survive unchanged.
func (h *handler) decodeTask(w http.ResponseWriter, r *http.Request) (domain.Task, error) {
	defer r.Body.Close()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var payload domain.Task
	if err := dec.Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.Task{}, nil
		}
		return nil, fmt.Errorf("decode task: %w", err)
	}
	if payload == nil {
		payload = domain.Task{}
	}

	return payload, nil
}

func requestLogger(r *http.Request, name string) *slog.Logger {
	return slog.With(
		slog.String("request_id", uuid.NewString()),
		slog.String("handler", name),
		slog.String("remote_addr", r.RemoteAddr),
	)
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, domain.ErrorResponse{
		Error:  message,
		Detail: detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writeJSON", slog.String("error", err.Error()))
	}
}
