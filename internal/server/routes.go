package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - Tasks
	mux.HandleFunc("/api/tasks/submit", s.app.TaskHandler.SubmitHandler)  // POST
	mux.HandleFunc("/api/tasks/status/", s.app.TaskHandler.StatusHandler) // GET /{id}
	mux.HandleFunc("/api/tasks/cancel/", s.app.TaskHandler.CancelHandler) // POST /{id}
	mux.HandleFunc("/api/tasks", s.app.TaskHandler.ListHandler)           // GET

	// API routes - Synchronous outline extraction
	mux.HandleFunc("/api/structure", s.app.StructureHandler.ExtractHandler) // POST

	// API routes - Documents
	mux.HandleFunc("/api/documents", s.app.DocumentHandler.ListHandler) // GET
	mux.HandleFunc("/api/documents/", s.handleDocumentRoutes)           // GET /{id}

	// API routes - System
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)

	// Everything else is a JSON 404
	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleDocumentRoutes dispatches /api/documents/{id}
func (s *Server) handleDocumentRoutes(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/documents/")
	if id == "" || strings.Contains(id, "/") {
		s.app.APIHandler.NotFoundHandler(w, r)
		return
	}
	s.app.DocumentHandler.GetHandler(w, r)
}
