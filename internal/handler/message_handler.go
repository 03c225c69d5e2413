package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/givers/message-service/internal/model"
	"github.com/givers/message-service/internal/service"
	"github.com/givers/message-service/pkg/auth"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// dateLayout renders timestamps with an explicit offset (+00:00 for UTC).
const dateLayout = "2006-01-02T15:04:05.000000-07:00"

// MessageHandler handles contact message submission and admin triage.
type MessageHandler struct {
	messageService service.MessageService
}

// NewMessageHandler creates a MessageHandler with the given service.
func NewMessageHandler(messageService service.MessageService) *MessageHandler {
	return &MessageHandler{messageService: messageService}
}

// messageResponse is the JSON shape of a message.
type messageResponse struct {
	MessageID   int64  `json:"messageId"`
	UserID      *int64 `json:"userId"`
	Email       string `json:"email"`
	Subject     string `json:"subject"`
	Message     string `json:"message"`
	DateCreated string `json:"dateCreated"`
	Status      string `json:"status"`
}

func toMessageResponse(m *model.Message) messageResponse {
	return messageResponse{
		MessageID:   m.ID,
		UserID:      m.UserID,
		Email:       m.Email,
		Subject:     m.Subject,
		Message:     m.Body,
		DateCreated: m.CreatedAt.UTC().Format(dateLayout),
		Status:      string(m.Status),
	}
}

// mutationResponse wraps the result of POST /messages and PUT /messages/{id}/status.
type mutationResponse struct {
	Message string          `json:"message"`
	Data    messageResponse `json:"data"`
}

// submitRequest is the expected JSON body for POST /messages.
type submitRequest struct {
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// Submit handles POST /messages (no auth). When the caller is identified,
// the message records their user id.
func (h *MessageHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	in := model.NewMessage{
		Email:   req.Email,
		Subject: req.Subject,
		Body:    req.Message,
	}
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		uid := claims.UserID
		in.UserID = &uid
	}

	msg, err := h.messageService.Submit(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	messagesSubmitted.Inc()

	writeJSON(w, http.StatusCreated, mutationResponse{
		Message: "Message sent successfully",
		Data:    toMessageResponse(msg),
	})
}

// listResponse is the JSON response for GET /messages.
type listResponse struct {
	Messages   []messageResponse `json:"messages"`
	Total      int               `json:"total"`
	Page       int               `json:"page"`
	PerPage    int               `json:"perPage"`
	TotalPages int               `json:"totalPages"`
}

// List handles GET /messages (admin only).
// Query params: page, perPage (alias per_page), status (open, closed or all).
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}

	q := r.URL.Query()
	opts := model.ListOptions{
		Page:    queryInt(q.Get("page")),
		PerPage: queryInt(q.Get("perPage")),
	}
	if opts.PerPage == 0 {
		opts.PerPage = queryInt(q.Get("per_page"))
	}
	if raw := q.Get("status"); raw != "" && raw != "all" {
		st := model.Status(raw)
		opts.Status = &st
	}

	page, err := h.messageService.ListAll(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	messages := make([]messageResponse, 0, len(page.Items))
	for _, m := range page.Items {
		messages = append(messages, toMessageResponse(m))
	}
	writeJSON(w, http.StatusOK, listResponse{
		Messages:   messages,
		Total:      page.Total,
		Page:       page.Page,
		PerPage:    page.PerPage,
		TotalPages: page.TotalPages(),
	})
}

// Get handles GET /messages/{id} (admin only).
func (h *MessageHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	id, ok := pathID(r)
	if !ok {
		writeServiceError(w, r, service.ErrNotFound)
		return
	}

	msg, err := h.messageService.GetOne(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]messageResponse{"message": toMessageResponse(msg)})
}

// statusRequest is the expected JSON body for PUT /messages/{id}/status.
type statusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus handles PUT /messages/{id}/status (admin only).
func (h *MessageHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	id, ok := pathID(r)
	if !ok {
		writeServiceError(w, r, service.ErrNotFound)
		return
	}

	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	st, _ := model.ParseStatus(req.Status)

	msg, err := h.messageService.SetStatus(r.Context(), id, st)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	statusChanges.WithLabelValues(string(msg.Status)).Inc()

	writeJSON(w, http.StatusOK, mutationResponse{
		Message: "Status updated successfully",
		Data:    toMessageResponse(msg),
	})
}

// requireAdmin applies RequireAuthenticated then RequireAdmin to the caller
// and writes the 401/403 response on failure.
func requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	claims, _ := auth.ClaimsFromContext(r.Context())
	if err := auth.RequireAuthenticated(claims); err != nil {
		writeServiceError(w, r, err)
		return false
	}
	if err := auth.RequireAdmin(claims); err != nil {
		writeServiceError(w, r, err)
		return false
	}
	return true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Request body must be a JSON object")
		return false
	}
	return true
}

// pathID parses the {id} path value. Non-positive or non-numeric ids cannot
// name a message.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// queryInt parses a positive integer query value; anything else is 0.
func queryInt(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
