package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"support-chat-client/internal/dto"
	"support-chat-client/internal/model"
)

type apiFunc func(http.ResponseWriter, *http.Request) error

func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func badRequest(message string, cause error) *HTTPError {
	return &HTTPError{
		StatusCode: http.StatusBadRequest,
		Message:    message,
		ErrorLog:   cause,
	}
}

func notFound(message string, cause error) *HTTPError {
	return &HTTPError{
		StatusCode: http.StatusNotFound,
		Message:    message,
		ErrorLog:   cause,
	}
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /chat/start", s.MakeHTTPHandleFunc(s.handleStartChat))
	mux.HandleFunc("GET /chat/{id}", s.MakeHTTPHandleFunc(s.handleGetChat))
	mux.HandleFunc("POST /chat/{id}/close", s.MakeHTTPHandleFunc(s.handleCloseChat))

	mux.HandleFunc("POST /auth/login", s.MakeHTTPHandleFunc(s.handleLogin))
	mux.HandleFunc("GET /auth/me", s.MakeHTTPHandleFunc(s.handleMe))
	mux.HandleFunc("POST /auth/logout", s.MakeHTTPHandleFunc(s.handleLogout))

	admin := s.auth.RequireAdmin
	mux.HandleFunc("GET /admin/chats", s.MakeHTTPHandleFunc(s.handleListChats, admin))
	mux.HandleFunc("GET /admin/chats/{id}/messages", s.MakeHTTPHandleFunc(s.handleChatMessages, admin))
	mux.HandleFunc("POST /admin/chats/{id}/close", s.MakeHTTPHandleFunc(s.handleAdminCloseChat, admin))
	mux.HandleFunc("POST /admin/chats/{id}/reopen", s.MakeHTTPHandleFunc(s.handleReopenChat, admin))
	mux.HandleFunc("POST /admin/chats/{id}/notes", s.MakeHTTPHandleFunc(s.handleSaveNotes, admin))
	mux.HandleFunc("GET /admin/analytics", s.MakeHTTPHandleFunc(s.handleAnalytics, admin))
	mux.HandleFunc("GET /admin/users", s.MakeHTTPHandleFunc(s.handleListUsers, admin))
	mux.HandleFunc("PATCH /admin/users/{id}/status", s.MakeHTTPHandleFunc(s.handleUserStatus, admin))
	mux.HandleFunc("PATCH /admin/users/{id}/role", s.MakeHTTPHandleFunc(s.handleUserRole, admin))
	mux.HandleFunc("GET /admin/settings", s.MakeHTTPHandleFunc(s.handleGetSettings, admin))
	mux.HandleFunc("PATCH /admin/settings", s.MakeHTTPHandleFunc(s.handleUpdateSettings, admin))

	mux.Handle("/socket", s.socket)
	mux.Handle("/metrics", s.metrics.metricsHandler())
}

func (s *Server) handleStartChat(w http.ResponseWriter, r *http.Request) error {
	var req dto.StartChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badRequest("Invalid request payload", fmt.Errorf("decode start chat request: %w", err))
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return badRequest("Name is required", fmt.Errorf("empty name in start chat request"))
	}

	chat, _ := s.store.CreateChat(name)
	return WriteJSON(w, http.StatusCreated, dto.StartChatResponse{Chat: chat})
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) error {
	id := r.PathValue("id")
	chat, messages, err := s.store.GetChat(id)
	if err != nil {
		return notFound("Conversation not found", fmt.Errorf("get chat %s: %w", id, err))
	}

	return WriteJSON(w, http.StatusOK, dto.ChatHistoryResponse{Chat: chat, Messages: messages})
}

func (s *Server) handleCloseChat(w http.ResponseWriter, r *http.Request) error {
	id := r.PathValue("id")
	if err := s.store.CloseChat(id); err != nil {
		return notFound("Conversation not found", fmt.Errorf("close chat %s: %w", id, err))
	}

	s.socket.NotifyClosed(id, false)
	return WriteJSON(w, http.StatusOK, dto.ApiMessageResponse{Message: "Conversation closed"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) error {
	var req dto.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badRequest("Invalid request payload", fmt.Errorf("decode login request: %w", err))
	}

	user, ok := s.store.Authenticate(req.Email, req.Password)
	if !ok {
		return &HTTPError{
			StatusCode: http.StatusUnauthorized,
			Message:    "Invalid email or password",
			ErrorLog:   fmt.Errorf("failed login for %s", req.Email),
		}
	}

	token, err := s.auth.createToken(user)
	if err != nil {
		return fmt.Errorf("create session token: %w", err)
	}
	s.auth.setSessionCookie(w, token)

	return WriteJSON(w, http.StatusOK, dto.MeResponse{User: user})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) error {
	user, err := s.auth.userFromRequest(r)
	if err != nil {
		return &HTTPError{
			StatusCode: http.StatusUnauthorized,
			Message:    "Unauthorized",
			ErrorLog:   err,
		}
	}
	return WriteJSON(w, http.StatusOK, dto.MeResponse{User: user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) error {
	s.auth.clearSessionCookie(w)
	return WriteJSON(w, http.StatusOK, dto.ApiMessageResponse{Message: "Logged out"})
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) error {
	status := model.ChatStatus(r.URL.Query().Get("status"))
	return WriteJSON(w, http.StatusOK, s.store.ListChats(status))
}

func (s *Server) handleChatMessages(w http.ResponseWriter, r *http.Request) error {
	id := r.PathValue("id")
	_, messages, err := s.store.GetChat(id)
	if err != nil {
		return notFound("Conversation not found", fmt.Errorf("chat messages %s: %w", id, err))
	}
	return WriteJSON(w, http.StatusOK, messages)
}

func (s *Server) handleAdminCloseChat(w http.ResponseWriter, r *http.Request) error {
	id := r.PathValue("id")
	if err := s.store.CloseChat(id); err != nil {
		return notFound("Conversation not found", fmt.Errorf("admin close chat %s: %w", id, err))
	}

	s.socket.NotifyClosed(id, true)
	return WriteJSON(w, http.StatusOK, dto.ApiMessageResponse{Message: "Conversation closed"})
}

func (s *Server) handleReopenChat(w http.ResponseWriter, r *http.Request) error {
	id := r.PathValue("id")
	if err := s.store.ReopenChat(id); err != nil {
		return notFound("Conversation not found", fmt.Errorf("reopen chat %s: %w", id, err))
	}
	return WriteJSON(w, http.StatusOK, dto.ApiMessageResponse{Message: "Conversation reopened"})
}

func (s *Server) handleSaveNotes(w http.ResponseWriter, r *http.Request) error {
	id := r.PathValue("id")

	var req dto.NotesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badRequest("Invalid request payload", fmt.Errorf("decode notes request: %w", err))
	}

	if err := s.store.SetNotes(id, req.Notes); err != nil {
		return notFound("Conversation not found", fmt.Errorf("save notes %s: %w", id, err))
	}
	return WriteJSON(w, http.StatusOK, dto.ApiMessageResponse{Message: "Notes saved"})
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) error {
	return WriteJSON(w, http.StatusOK, s.store.Analytics())
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) error {
	role := r.URL.Query().Get("role")
	return WriteJSON(w, http.StatusOK, s.store.Users(role))
}

func (s *Server) handleUserStatus(w http.ResponseWriter, r *http.Request) error {
	id := r.PathValue("id")

	var req dto.UpdateUserStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badRequest("Invalid request payload", fmt.Errorf("decode user status request: %w", err))
	}

	if _, err := s.store.SetUserBanned(id, req.IsBanned); err != nil {
		return notFound("User not found", fmt.Errorf("set banned %s: %w", id, err))
	}
	return WriteJSON(w, http.StatusOK, dto.ApiMessageResponse{Message: "User updated"})
}

func (s *Server) handleUserRole(w http.ResponseWriter, r *http.Request) error {
	id := r.PathValue("id")

	var req dto.UpdateUserRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badRequest("Invalid request payload", fmt.Errorf("decode user role request: %w", err))
	}

	role := strings.ToUpper(strings.TrimSpace(req.Role))
	if role != model.RoleVisitor && role != model.RoleAdmin {
		return badRequest("Unknown role", fmt.Errorf("unknown role %q", req.Role))
	}

	if _, err := s.store.SetUserRole(id, role); err != nil {
		return notFound("User not found", fmt.Errorf("set role %s: %w", id, err))
	}
	return WriteJSON(w, http.StatusOK, dto.ApiMessageResponse{Message: "User updated"})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) error {
	return WriteJSON(w, http.StatusOK, dto.SettingsResponse{Settings: s.store.Settings()})
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) error {
	var req dto.UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badRequest("Invalid request payload", fmt.Errorf("decode settings patch: %w", err))
	}

	settings := s.store.UpdateSettings(req)
	return WriteJSON(w, http.StatusOK, dto.SettingsResponse{Settings: settings})
}
