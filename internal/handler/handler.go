// Package handler содержит HTTP-обработчики API сервиса библиотеки.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/bibliohispa-system/internal/badge"
	"github.com/mmeshcher/bibliohispa-system/internal/engine"
	"github.com/mmeshcher/bibliohispa-system/internal/model"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Checkout(userID, bookID string) (*engine.CheckoutResult, error)
	Return(bookID, userID string) (*engine.ReturnResult, error)
	Review(review model.Review) (*engine.ReviewResult, error)

	AdjustPoints(userID string, amount int, reason string) (int, error)
	RevertPointEntry(entryID string) error
	Leaderboard(limit int) ([]engine.LeaderboardEntry, error)

	CreateBook(ctx context.Context, book model.Book) (*model.Book, error)
	UpdateBook(book model.Book) error
	DeleteBook(id string) error
	CreateUser(user model.User) (*model.User, error)
	UpdateUser(user model.User) error
	DeleteUser(id string) error

	Snapshot() (*model.Document, error)
	Restore(doc *model.Document) error
	ReplaceUsers(users []model.User) error
	ReplaceBooks(books []model.Book) error
	ReplaceTransactions(txs []model.Transaction) error
	ReplaceReviews(reviews []model.Review) error
	ReplacePointHistory(history []model.PointEntry) error
	ReplaceSettings(settings model.Settings) error
}

// Handler реализует HTTP-обработчики API сервиса библиотеки.
type Handler struct {
	service Service
	logger  *zap.Logger
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: s,
		logger:  logger,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError отвечает телом {"error": ...}: этот формат разбирает фронтенд.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func badges(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

type actionRequest struct {
	UserID string `json:"userId"`
	BookID string `json:"bookId"`
}

// Checkout обрабатывает выдачу книги пользователю.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Petición inválida")
		return
	}

	if req.UserID == "" || req.BookID == "" {
		writeError(w, http.StatusBadRequest, "Faltan userId o bookId")
		return
	}

	res, err := h.service.Checkout(req.UserID, req.BookID)
	if err != nil {
		var limitErr *engine.LimitExceededError
		switch {
		case errors.Is(err, engine.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "Usuario no encontrado")
		case errors.Is(err, engine.ErrBookNotFound):
			writeError(w, http.StatusNotFound, "Libro no encontrado")
		case errors.Is(err, engine.ErrOutOfStock):
			writeError(w, http.StatusConflict, "No quedan ejemplares disponibles")
		case errors.As(err, &limitErr):
			writeError(w, http.StatusConflict,
				fmt.Sprintf("Has alcanzado el límite de %d libros prestados. Devuelve uno para sacar otro.", limitErr.Limit))
		default:
			h.logger.Error("checkout error", zap.Error(err), zap.String("userID", req.UserID), zap.String("bookID", req.BookID))
			writeError(w, http.StatusInternalServerError, "Error al procesar el préstamo")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"transaction": res.Transaction,
		"userPoints":  res.UserPoints,
		"newBadges":   badges(res.NewBadges),
	})
}

// Return обрабатывает возврат книги. userId необязателен, но без него выбор
// выдачи при нескольких экземплярах на руках неоднозначен.
func (h *Handler) Return(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Petición inválida")
		return
	}

	if req.BookID == "" {
		writeError(w, http.StatusBadRequest, "Falta bookId")
		return
	}

	res, err := h.service.Return(req.BookID, req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrNoActiveLoan):
			writeError(w, http.StatusNotFound, "No hay préstamo activo para este libro")
		case errors.Is(err, engine.ErrDataIntegrity):
			h.logger.Error("return integrity error", zap.Error(err), zap.String("bookID", req.BookID))
			writeError(w, http.StatusInternalServerError, "Error de integridad de datos")
		default:
			h.logger.Error("return error", zap.Error(err), zap.String("bookID", req.BookID))
			writeError(w, http.StatusInternalServerError, "Error al procesar la devolución")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"userPoints":  res.UserPoints,
		"newBadges":   badges(res.NewBadges),
		"earlyReturn": res.EarlyReturn,
	})
}

// Review сохраняет отзыв о книге.
func (h *Handler) Review(w http.ResponseWriter, r *http.Request) {
	var review model.Review
	if err := json.NewDecoder(r.Body).Decode(&review); err != nil {
		writeError(w, http.StatusBadRequest, "Petición inválida")
		return
	}

	if review.BookID == "" || review.Rating < 1 || review.Rating > 5 {
		writeError(w, http.StatusBadRequest, "Reseña inválida")
		return
	}

	res, err := h.service.Review(review)
	if err != nil {
		h.logger.Error("review error", zap.Error(err), zap.String("bookID", review.BookID))
		writeError(w, http.StatusInternalServerError, "Error al guardar la opinión")
		return
	}

	resp := map[string]any{"success": true}
	if res.UserKnown {
		resp["userPoints"] = res.UserPoints
		resp["newBadges"] = badges(res.NewBadges)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetDatabase возвращает полный документ библиотеки.
func (h *Handler) GetDatabase(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.Snapshot()
	if err != nil {
		h.logger.Error("get database error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error leyendo la base de datos")
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// RestoreBackup восстанавливает документ из резервной копии.
func (h *Handler) RestoreBackup(w http.ResponseWriter, r *http.Request) {
	var doc model.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, "Copia de seguridad inválida")
		return
	}

	if err := h.service.Restore(&doc); err != nil {
		h.logger.Error("restore error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error restaurando la base de datos")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Base de datos restaurada",
	})
}

// GetBadges возвращает каталог значков.
func (h *Handler) GetBadges(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, badge.Catalog)
}

// GetLeaderboard возвращает рейтинг учеников по баллам.
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "Parámetro limit inválido")
			return
		}
		limit = parsed
	}

	entries, err := h.service.Leaderboard(limit)
	if err != nil {
		h.logger.Error("leaderboard error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error leyendo el ranking")
		return
	}

	if entries == nil {
		entries = []engine.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type adjustPointsRequest struct {
	UserID string `json:"userId"`
	Amount int    `json:"amount"`
	Reason string `json:"reason"`
}

// AdjustPoints выполняет ручную корректировку баллов пользователя.
func (h *Handler) AdjustPoints(w http.ResponseWriter, r *http.Request) {
	var req adjustPointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Petición inválida")
		return
	}

	if req.UserID == "" || req.Reason == "" {
		writeError(w, http.StatusBadRequest, "Faltan userId o reason")
		return
	}

	points, err := h.service.AdjustPoints(req.UserID, req.Amount, req.Reason)
	if err != nil {
		if errors.Is(err, engine.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "Usuario no encontrado")
			return
		}
		h.logger.Error("adjust points error", zap.Error(err), zap.String("userID", req.UserID))
		writeError(w, http.StatusInternalServerError, "Error ajustando puntos")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"userPoints": points,
	})
}

// DeletePointEntry удаляет запись журнала баллов и откатывает её эффект.
func (h *Handler) DeletePointEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.RevertPointEntry(id); err != nil {
		if errors.Is(err, engine.ErrPointEntryNotFound) {
			writeError(w, http.StatusNotFound, "Registro de puntos no encontrado")
			return
		}
		h.logger.Error("delete point entry error", zap.Error(err), zap.String("entryID", id))
		writeError(w, http.StatusInternalServerError, "Error eliminando el registro")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// CreateBook добавляет книгу в каталог.
func (h *Handler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var book model.Book
	if err := json.NewDecoder(r.Body).Decode(&book); err != nil {
		writeError(w, http.StatusBadRequest, "Petición inválida")
		return
	}

	if book.Title == "" {
		writeError(w, http.StatusBadRequest, "Falta el título")
		return
	}

	created, err := h.service.CreateBook(r.Context(), book)
	if err != nil {
		h.logger.Error("create book error", zap.Error(err), zap.String("title", book.Title))
		writeError(w, http.StatusInternalServerError, "Error creando el libro")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// UpdateBook заменяет запись каталога.
func (h *Handler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	var book model.Book
	if err := json.NewDecoder(r.Body).Decode(&book); err != nil {
		writeError(w, http.StatusBadRequest, "Petición inválida")
		return
	}

	book.ID = chi.URLParam(r, "id")

	if err := h.service.UpdateBook(book); err != nil {
		if errors.Is(err, engine.ErrBookNotFound) {
			writeError(w, http.StatusNotFound, "Libro no encontrado")
			return
		}
		h.logger.Error("update book error", zap.Error(err), zap.String("bookID", book.ID))
		writeError(w, http.StatusInternalServerError, "Error actualizando el libro")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// DeleteBook удаляет книгу из каталога.
func (h *Handler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.DeleteBook(id); err != nil {
		if errors.Is(err, engine.ErrBookNotFound) {
			writeError(w, http.StatusNotFound, "Libro no encontrado")
			return
		}
		h.logger.Error("delete book error", zap.Error(err), zap.String("bookID", id))
		writeError(w, http.StatusInternalServerError, "Error eliminando el libro")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// CreateUser добавляет пользователя.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var user model.User
	if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
		writeError(w, http.StatusBadRequest, "Petición inválida")
		return
	}

	if user.FirstName == "" || user.LastName == "" {
		writeError(w, http.StatusBadRequest, "Faltan nombre o apellidos")
		return
	}

	created, err := h.service.CreateUser(user)
	if err != nil {
		h.logger.Error("create user error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error creando el usuario")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// UpdateUser заменяет запись пользователя.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var user model.User
	if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
		writeError(w, http.StatusBadRequest, "Petición inválida")
		return
	}

	user.ID = chi.URLParam(r, "id")

	if err := h.service.UpdateUser(user); err != nil {
		if errors.Is(err, engine.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "Usuario no encontrado")
			return
		}
		h.logger.Error("update user error", zap.Error(err), zap.String("userID", user.ID))
		writeError(w, http.StatusInternalServerError, "Error actualizando el usuario")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// DeleteUser удаляет пользователя.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.DeleteUser(id); err != nil {
		if errors.Is(err, engine.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "Usuario no encontrado")
			return
		}
		h.logger.Error("delete user error", zap.Error(err), zap.String("userID", id))
		writeError(w, http.StatusInternalServerError, "Error eliminando el usuario")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// saveCollection декодирует тело запроса и сохраняет коллекцию целиком.
func saveCollection[T any](h *Handler, w http.ResponseWriter, r *http.Request, save func(T) error) {
	var payload T
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "Petición inválida")
		return
	}

	if err := save(payload); err != nil {
		h.logger.Error("save collection error", zap.Error(err), zap.String("uri", r.RequestURI))
		writeError(w, http.StatusInternalServerError, "Error guardando los datos")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// SaveUsers заменяет коллекцию пользователей.
func (h *Handler) SaveUsers(w http.ResponseWriter, r *http.Request) {
	saveCollection(h, w, r, h.service.ReplaceUsers)
}

// SaveBooks заменяет коллекцию книг.
func (h *Handler) SaveBooks(w http.ResponseWriter, r *http.Request) {
	saveCollection(h, w, r, h.service.ReplaceBooks)
}

// SaveTransactions заменяет коллекцию выдач.
func (h *Handler) SaveTransactions(w http.ResponseWriter, r *http.Request) {
	saveCollection(h, w, r, h.service.ReplaceTransactions)
}

// SaveReviews заменяет коллекцию отзывов.
func (h *Handler) SaveReviews(w http.ResponseWriter, r *http.Request) {
	saveCollection(h, w, r, h.service.ReplaceReviews)
}

// SavePointHistory заменяет журнал баллов.
func (h *Handler) SavePointHistory(w http.ResponseWriter, r *http.Request) {
	saveCollection(h, w, r, h.service.ReplacePointHistory)
}

// SaveSettings заменяет настройки школы.
func (h *Handler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	saveCollection(h, w, r, h.service.ReplaceSettings)
}
