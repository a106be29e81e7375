package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handler interface {
	health(w http.ResponseWriter, r *http.Request)
	createTask(w http.ResponseWriter, r *http.Request)
	getTask(w http.ResponseWriter, r *http.Request)
	updateTask(w http.ResponseWriter, r *http.Request)
	deleteTask(w http.ResponseWriter, r *http.Request)
	upload(w http.ResponseWriter, r *http.Request)
	uploadBase64(w http.ResponseWriter, r *http.Request)
}

type router struct {
	h Handler
}

func NewRouter(h Handler) *router {
	return &router{h: h}
}

func (rt *router) MountRoutes(r chi.Router) chi.Router {
	r.Use(LogMiddleware)

	r.Get("/health", rt.h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/tasks", rt.h.createTask)
	r.Get("/tasks/{id}", rt.h.getTask)
	r.Put("/tasks/{id}", rt.h.updateTask)
	r.Delete("/tasks/{id}", rt.h.deleteTask)

	r.Post("/upload", rt.h.upload)
	r.Post("/upload-base64", rt.h.uploadBase64)

	return r
}
