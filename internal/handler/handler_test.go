package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/mmeshcher/bibliohispa-system/internal/engine"
	"github.com/mmeshcher/bibliohispa-system/internal/model"
)

type stubService struct {
	checkoutRes *engine.CheckoutResult
	checkoutErr error

	returnRes *engine.ReturnResult
	returnErr error

	reviewRes *engine.ReviewResult
	reviewErr error

	adjustPoints int
	adjustErr    error

	revertErr error

	leaderboard []engine.LeaderboardEntry

	createdBook *model.Book
	createdUser *model.User

	snapshotDoc *model.Document

	savedUsers []model.User
	savedBooks []model.Book
}

func (s *stubService) Checkout(userID, bookID string) (*engine.CheckoutResult, error) {
	return s.checkoutRes, s.checkoutErr
}

func (s *stubService) Return(bookID, userID string) (*engine.ReturnResult, error) {
	return s.returnRes, s.returnErr
}

func (s *stubService) Review(review model.Review) (*engine.ReviewResult, error) {
	return s.reviewRes, s.reviewErr
}

func (s *stubService) AdjustPoints(userID string, amount int, reason string) (int, error) {
	return s.adjustPoints, s.adjustErr
}

func (s *stubService) RevertPointEntry(entryID string) error { return s.revertErr }

func (s *stubService) Leaderboard(limit int) ([]engine.LeaderboardEntry, error) {
	return s.leaderboard, nil
}

func (s *stubService) CreateBook(ctx context.Context, book model.Book) (*model.Book, error) {
	if s.createdBook != nil {
		return s.createdBook, nil
	}
	return &book, nil
}

func (s *stubService) UpdateBook(book model.Book) error { return nil }
func (s *stubService) DeleteBook(id string) error       { return nil }

func (s *stubService) CreateUser(user model.User) (*model.User, error) {
	if s.createdUser != nil {
		return s.createdUser, nil
	}
	return &user, nil
}

func (s *stubService) UpdateUser(user model.User) error { return nil }
func (s *stubService) DeleteUser(id string) error       { return nil }

func (s *stubService) Snapshot() (*model.Document, error) {
	if s.snapshotDoc != nil {
		return s.snapshotDoc, nil
	}
	return &model.Document{}, nil
}

func (s *stubService) Restore(doc *model.Document) error { return nil }

func (s *stubService) ReplaceUsers(users []model.User) error {
	s.savedUsers = users
	return nil
}

func (s *stubService) ReplaceBooks(books []model.Book) error {
	s.savedBooks = books
	return nil
}

func (s *stubService) ReplaceTransactions(txs []model.Transaction) error    { return nil }
func (s *stubService) ReplaceReviews(reviews []model.Review) error          { return nil }
func (s *stubService) ReplacePointHistory(history []model.PointEntry) error { return nil }
func (s *stubService) ReplaceSettings(settings model.Settings) error        { return nil }

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	return NewHandler(svc, logger)
}

func doRequest(t *testing.T, h *Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()

	h.SetupRouter().ServeHTTP(w, req)
	return w
}

func TestCheckout_Success(t *testing.T) {
	svc := &stubService{
		checkoutRes: &engine.CheckoutResult{
			Transaction: model.Transaction{ID: "t1", UserID: "u1", BookID: "b1", Active: true},
			UserPoints:  160,
			NewBadges:   []string{"streak-3"},
		},
	}
	h := newTestHandler(t, svc)

	w := doRequest(t, h, http.MethodPost, "/api/actions/checkout", map[string]string{
		"userId": "u1",
		"bookId": "b1",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Success     bool              `json:"success"`
		Transaction model.Transaction `json:"transaction"`
		UserPoints  int               `json:"userPoints"`
		NewBadges   []string          `json:"newBadges"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if !resp.Success || resp.Transaction.ID != "t1" || resp.UserPoints != 160 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(resp.NewBadges) != 1 || resp.NewBadges[0] != "streak-3" {
		t.Fatalf("newBadges = %v", resp.NewBadges)
	}
}

func TestCheckout_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantSubstr string
	}{
		{
			name:       "user not found",
			err:        engine.ErrUserNotFound,
			wantStatus: http.StatusNotFound,
			wantSubstr: "Usuario no encontrado",
		},
		{
			name:       "book not found",
			err:        engine.ErrBookNotFound,
			wantStatus: http.StatusNotFound,
			wantSubstr: "Libro no encontrado",
		},
		{
			name:       "out of stock",
			err:        engine.ErrOutOfStock,
			wantStatus: http.StatusConflict,
			wantSubstr: "ejemplares",
		},
		{
			name:       "limit exceeded carries limit",
			err:        &engine.LimitExceededError{Limit: 2},
			wantStatus: http.StatusConflict,
			wantSubstr: "límite de 2 libros",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, &stubService{checkoutErr: tt.err})

			w := doRequest(t, h, http.MethodPost, "/api/actions/checkout", map[string]string{
				"userId": "u1",
				"bookId": "b1",
			})

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}

			var resp map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if !strings.Contains(resp["error"], tt.wantSubstr) {
				t.Fatalf("error = %q, want substring %q", resp["error"], tt.wantSubstr)
			}
		})
	}
}

func TestCheckout_MissingFields(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	w := doRequest(t, h, http.MethodPost, "/api/actions/checkout", map[string]string{"userId": "u1"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestReturn_Success(t *testing.T) {
	svc := &stubService{
		returnRes: &engine.ReturnResult{UserPoints: 190, NewBadges: nil, EarlyReturn: true},
	}
	h := newTestHandler(t, svc)

	w := doRequest(t, h, http.MethodPost, "/api/actions/return", map[string]string{"bookId": "b1"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Success     bool     `json:"success"`
		UserPoints  int      `json:"userPoints"`
		NewBadges   []string `json:"newBadges"`
		EarlyReturn bool     `json:"earlyReturn"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.UserPoints != 190 || !resp.EarlyReturn {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.NewBadges == nil {
		t.Fatalf("newBadges must be an empty array, not null")
	}
}

func TestReturn_NoActiveLoan(t *testing.T) {
	h := newTestHandler(t, &stubService{returnErr: engine.ErrNoActiveLoan})

	w := doRequest(t, h, http.MethodPost, "/api/actions/return", map[string]string{"bookId": "b1"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestReturn_IntegrityError(t *testing.T) {
	h := newTestHandler(t, &stubService{returnErr: engine.ErrDataIntegrity})

	w := doRequest(t, h, http.MethodPost, "/api/actions/return", map[string]string{"bookId": "b1"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}

func TestReview_Success(t *testing.T) {
	svc := &stubService{
		reviewRes: &engine.ReviewResult{UserKnown: true, UserPoints: 25, NewBadges: []string{"reviews-1"}},
	}
	h := newTestHandler(t, svc)

	w := doRequest(t, h, http.MethodPost, "/api/actions/review", model.Review{
		BookID:  "b1",
		UserID:  "u1",
		Rating:  5,
		Comment: "Genial",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["success"] != true || resp["userPoints"] != float64(25) {
		t.Fatalf("unexpected response: %v", resp)
	}
}

func TestReview_UnknownUserOmitsPoints(t *testing.T) {
	h := newTestHandler(t, &stubService{reviewRes: &engine.ReviewResult{UserKnown: false}})

	w := doRequest(t, h, http.MethodPost, "/api/actions/review", model.Review{BookID: "b1", Rating: 3})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if _, ok := resp["userPoints"]; ok {
		t.Fatalf("userPoints must be omitted for unknown user: %v", resp)
	}
}

func TestReview_InvalidRating(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	w := doRequest(t, h, http.MethodPost, "/api/actions/review", model.Review{BookID: "b1", Rating: 6})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestGetBadges(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	w := doRequest(t, h, http.MethodGet, "/api/badges", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) == 0 {
		t.Fatalf("expected non-empty badge catalog")
	}
}

func TestAdjustPoints(t *testing.T) {
	h := newTestHandler(t, &stubService{adjustPoints: 42})

	w := doRequest(t, h, http.MethodPost, "/api/points/adjust", map[string]any{
		"userId": "u1",
		"amount": -5,
		"reason": "Sanción",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["userPoints"] != float64(42) {
		t.Fatalf("userPoints = %v, want 42", resp["userPoints"])
	}
}

func TestDeletePointEntry_NotFound(t *testing.T) {
	h := newTestHandler(t, &stubService{revertErr: engine.ErrPointEntryNotFound})

	w := doRequest(t, h, http.MethodDelete, "/api/points/ph-1", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestSaveUsers(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)

	w := doRequest(t, h, http.MethodPost, "/api/users", []model.User{
		{ID: "u1", Username: "juan.garcia"},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if len(svc.savedUsers) != 1 || svc.savedUsers[0].ID != "u1" {
		t.Fatalf("users not passed to service: %+v", svc.savedUsers)
	}
}

func TestGetDatabase(t *testing.T) {
	svc := &stubService{
		snapshotDoc: &model.Document{
			Books: []model.Book{{ID: "b1", Title: "El Principito"}},
		},
	}
	h := newTestHandler(t, svc)

	w := doRequest(t, h, http.MethodGet, "/api/db", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var doc model.Document
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(doc.Books) != 1 || doc.Books[0].Title != "El Principito" {
		t.Fatalf("unexpected document: %+v", doc)
	}
}

func TestCreateUser_Created(t *testing.T) {
	svc := &stubService{
		createdUser: &model.User{ID: "u9", Username: "maria.lopez", Role: model.RoleStudent},
	}
	h := newTestHandler(t, svc)

	w := doRequest(t, h, http.MethodPost, "/api/users/create", map[string]string{
		"firstName": "María",
		"lastName":  "López",
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}

	var user model.User
	if err := json.Unmarshal(w.Body.Bytes(), &user); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if user.Username != "maria.lopez" {
		t.Fatalf("username = %q", user.Username)
	}
}
