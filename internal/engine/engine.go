// Package engine реализует бизнес-логику выдачи книг и геймификации.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/bibliohispa-system/internal/badge"
	"github.com/mmeshcher/bibliohispa-system/internal/covers"
	"github.com/mmeshcher/bibliohispa-system/internal/model"
	"github.com/mmeshcher/bibliohispa-system/internal/policy"
)

// Баллы за действия пользователя.
const (
	PointsCheckout    = 10
	PointsReturn      = 20
	PointsReturnEarly = 10
	PointsReview      = 5
)

// earlyReturnWindow — срок, в пределах которого возврат считается досрочным.
const earlyReturnWindow = 7 * 24 * time.Hour

// Причины записей в журнале баллов. Текст показывается пользователю.
const (
	reasonCheckout    = "Préstamo de libro"
	reasonReturn      = "Devolución de libro"
	reasonReturnEarly = "Devolución anticipada de libro"
	reasonReview      = "Reseña publicada"
)

// ErrUserNotFound возвращается, если пользователь не найден.
var (
	ErrUserNotFound = errors.New("user not found")
	// ErrBookNotFound возвращается, если книга не найдена.
	ErrBookNotFound = errors.New("book not found")
	// ErrOutOfStock возвращается при попытке выдачи книги без свободных экземпляров.
	ErrOutOfStock = errors.New("book out of stock")
	// ErrNoActiveLoan возвращается, если для книги нет активной выдачи.
	ErrNoActiveLoan = errors.New("no active loan found")
	// ErrDataIntegrity возвращается, если выдача ссылается на удалённые данные.
	ErrDataIntegrity = errors.New("loan references missing user or book")
	// ErrPointEntryNotFound возвращается, если запись журнала баллов не найдена.
	ErrPointEntryNotFound = errors.New("point entry not found")
)

// LimitExceededError возвращается при превышении лимита одновременных выдач.
// Лимит сохраняется для сообщения пользователю.
type LimitExceededError struct {
	Limit int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("active loan limit of %d reached", e.Limit)
}

// Storage описывает контракт доступа к документу библиотеки, используемый движком.
type Storage interface {
	Close() error
	Snapshot() (*model.Document, error)
	Update(fn func(doc *model.Document) error) error
	Restore(doc *model.Document) error
	ReplaceUsers(users []model.User) error
	ReplaceBooks(books []model.Book) error
	ReplaceTransactions(txs []model.Transaction) error
	ReplaceReviews(reviews []model.Review) error
	ReplacePointHistory(history []model.PointEntry) error
	ReplaceSettings(settings model.Settings) error
	Backup(dir string) (string, error)
}

// Engine содержит бизнес-логику сервиса библиотеки. Движок не хранит
// состояние между вызовами: каждое действие заново читает документ и
// записывает его в одной критической секции хранилища.
type Engine struct {
	store          Storage
	coversClient   *covers.Client
	backupDir      string
	backupInterval time.Duration
}

// NewEngine создаёт движок поверх хранилища. coversClient может быть nil,
// тогда обложки не запрашиваются.
func NewEngine(store Storage, coversClient *covers.Client, backupDir string, backupInterval time.Duration) *Engine {
	return &Engine{
		store:          store,
		coversClient:   coversClient,
		backupDir:      backupDir,
		backupInterval: backupInterval,
	}
}

// Close закрывает ресурсы движка.
func (e *Engine) Close() error {
	if e.store != nil {
		return e.store.Close()
	}
	return nil
}

// CheckoutResult описывает итог успешной выдачи книги.
type CheckoutResult struct {
	Transaction model.Transaction
	UserPoints  int
	NewBadges   []string
}

// Checkout выдаёт книгу пользователю: проверяет наличие экземпляров и лимит
// по классу, создаёт активную выдачу, начисляет баллы и обновляет серию.
// При любой ошибке документ остаётся без изменений.
func (e *Engine) Checkout(userID, bookID string) (*CheckoutResult, error) {
	var res CheckoutResult

	err := e.store.Update(func(doc *model.Document) error {
		user := doc.UserByID(userID)
		if user == nil {
			return ErrUserNotFound
		}

		book := doc.BookByID(bookID)
		if book == nil {
			return ErrBookNotFound
		}

		if book.UnitsAvailable <= 0 {
			return ErrOutOfStock
		}

		pol := policy.ForClass(user.ClassName)

		active := 0
		for _, tx := range doc.Transactions {
			if tx.UserID == userID && tx.Active {
				active++
			}
		}
		if active >= pol.MaxActiveLoans {
			return &LimitExceededError{Limit: pol.MaxActiveLoans}
		}

		now := time.Now().UTC()

		book.UnitsAvailable--

		tx := model.Transaction{
			ID:           uuid.NewString(),
			UserID:       userID,
			BookID:       bookID,
			DateBorrowed: now.Format(time.RFC3339),
			DueDate:      now.Add(pol.LoanDuration).Format(time.RFC3339),
			Active:       true,
		}
		doc.Transactions = append(doc.Transactions, tx)

		appendPoints(doc, user, PointsCheckout, reasonCheckout, now)

		streak := advanceStreak(user, now)

		res.Transaction = tx
		res.NewBadges = grantBadges(user, badge.Context{StreakAchieved: streak})
		res.UserPoints = user.Points

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &res, nil
}

// ReturnResult описывает итог успешного возврата книги.
type ReturnResult struct {
	UserPoints  int
	NewBadges   []string
	EarlyReturn bool
}

// Return закрывает активную выдачу книги. Если userID пуст, берётся первая
// активная выдача этой книги: при нескольких экземплярах на руках выбор
// неоднозначен, поэтому вызывающей стороне стоит всегда передавать userID.
func (e *Engine) Return(bookID, userID string) (*ReturnResult, error) {
	var res ReturnResult

	err := e.store.Update(func(doc *model.Document) error {
		txIdx := -1
		for i := range doc.Transactions {
			tx := &doc.Transactions[i]
			if !tx.Active || tx.BookID != bookID {
				continue
			}
			if userID != "" && tx.UserID != userID {
				continue
			}
			txIdx = i
			break
		}
		if txIdx < 0 {
			return ErrNoActiveLoan
		}

		tx := &doc.Transactions[txIdx]

		user := doc.UserByID(tx.UserID)
		book := doc.BookByID(tx.BookID)
		if user == nil || book == nil {
			return fmt.Errorf("%w: transaction %s", ErrDataIntegrity, tx.ID)
		}

		now := time.Now().UTC()

		tx.Active = false
		tx.DateReturned = now.Format(time.RFC3339)

		book.UnitsAvailable++
		if book.UnitsAvailable > book.UnitsTotal {
			book.UnitsAvailable = book.UnitsTotal
		}
		book.ReadCount++

		early := false
		if borrowed, err := time.Parse(time.RFC3339, tx.DateBorrowed); err == nil {
			early = now.Sub(borrowed) < earlyReturnWindow
		}

		points := PointsReturn
		reason := reasonReturn
		if early {
			points += PointsReturnEarly
			reason = reasonReturnEarly
		}

		appendPoints(doc, user, points, reason, now)

		user.BooksRead++
		// Возврат считается активностью, но серию продлевает только выдача.
		user.LastActivityDate = now.Format(time.RFC3339)

		res.EarlyReturn = early
		res.NewBadges = grantBadges(user, badge.Context{
			BooksRead:   user.BooksRead,
			EarlyReturn: early,
		})
		res.UserPoints = user.Points

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &res, nil
}

// ReviewResult описывает итог сохранения отзыва.
type ReviewResult struct {
	UserKnown  bool
	UserPoints int
	NewBadges  []string
}

// Review сохраняет отзыв о книге. Отзыв записывается даже для неизвестного
// пользователя, но баллы и значки в этом случае не начисляются.
func (e *Engine) Review(review model.Review) (*ReviewResult, error) {
	var res ReviewResult

	err := e.store.Update(func(doc *model.Document) error {
		now := time.Now().UTC()

		if review.ID == "" {
			review.ID = uuid.NewString()
		}
		if review.Date == "" {
			review.Date = now.Format(time.RFC3339)
		}

		doc.Reviews = append(doc.Reviews, review)

		user := doc.UserByID(review.UserID)
		if user == nil {
			return nil
		}

		appendPoints(doc, user, PointsReview, reasonReview, now)

		count := 0
		for _, r := range doc.Reviews {
			if r.UserID == review.UserID {
				count++
			}
		}

		res.UserKnown = true
		res.NewBadges = grantBadges(user, badge.Context{ReviewCount: count})
		res.UserPoints = user.Points

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &res, nil
}

// AdjustPoints выполняет ручную корректировку баллов пользователя.
// Баллы не опускаются ниже нуля; значки при ручных корректировках не выдаются.
func (e *Engine) AdjustPoints(userID string, amount int, reason string) (int, error) {
	var points int

	err := e.store.Update(func(doc *model.Document) error {
		user := doc.UserByID(userID)
		if user == nil {
			return ErrUserNotFound
		}

		now := time.Now().UTC()
		appendPoints(doc, user, amount, reason, now)
		points = user.Points

		return nil
	})
	if err != nil {
		return 0, err
	}

	return points, nil
}

// RevertPointEntry удаляет запись журнала баллов и откатывает её эффект,
// применяя обратную дельту к балансу пользователя.
func (e *Engine) RevertPointEntry(entryID string) error {
	return e.store.Update(func(doc *model.Document) error {
		idx := -1
		for i := range doc.PointHistory {
			if doc.PointHistory[i].ID == entryID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return ErrPointEntryNotFound
		}

		entry := doc.PointHistory[idx]
		if user := doc.UserByID(entry.UserID); user != nil {
			user.Points -= entry.Amount
			if user.Points < 0 {
				user.Points = 0
			}
		}

		doc.PointHistory = append(doc.PointHistory[:idx], doc.PointHistory[idx+1:]...)
		return nil
	})
}

// appendPoints изменяет баланс пользователя и добавляет ровно одну запись
// в журнал. Баланс не опускается ниже нуля.
func appendPoints(doc *model.Document, user *model.User, amount int, reason string, now time.Time) {
	user.Points += amount
	if user.Points < 0 {
		user.Points = 0
	}

	doc.PointHistory = append(doc.PointHistory, model.PointEntry{
		ID:     uuid.NewString(),
		UserID: user.ID,
		Amount: amount,
		Reason: reason,
		Date:   now.Format(time.RFC3339),
	})
}

// advanceStreak обновляет серию дней пользователя по правилу: тот же день —
// без изменений, вчера — серия растёт, иначе серия начинается заново.
// Возвращает новое значение серии.
func advanceStreak(user *model.User, now time.Time) int {
	last, err := time.Parse(time.RFC3339, user.LastActivityDate)

	switch {
	case err != nil:
		user.CurrentStreak = 1
	case sameDay(last, now):
		if user.CurrentStreak == 0 {
			user.CurrentStreak = 1
		}
	case sameDay(last, now.AddDate(0, 0, -1)):
		user.CurrentStreak++
	default:
		user.CurrentStreak = 1
	}

	user.LastActivityDate = now.Format(time.RFC3339)
	return user.CurrentStreak
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// grantBadges вычисляет новые значки и добавляет их пользователю.
func grantBadges(user *model.User, ctx badge.Context) []string {
	awarded := badge.Evaluate(user, ctx)
	if len(awarded) > 0 {
		user.Badges = append(user.Badges, awarded...)
	}
	return awarded
}

// CreateBook добавляет книгу в каталог. Если указан ISBN и настроен клиент
// обложек, метаданные запрашиваются до критической секции: их отсутствие
// не мешает созданию книги.
func (e *Engine) CreateBook(ctx context.Context, book model.Book) (*model.Book, error) {
	if book.ID == "" {
		book.ID = uuid.NewString()
	}
	if book.UnitsTotal < 1 {
		book.UnitsTotal = 1
	}
	if book.UnitsAvailable <= 0 || book.UnitsAvailable > book.UnitsTotal {
		book.UnitsAvailable = book.UnitsTotal
	}

	if book.CoverURL == "" && book.ISBN != "" && e.coversClient != nil {
		if info, err := e.coversClient.Lookup(ctx, book.ISBN); err == nil && info != nil {
			book.CoverURL = info.CoverURL
			if book.PageCount == 0 {
				book.PageCount = info.PageCount
			}
			if book.Publisher == "" {
				book.Publisher = info.Publisher
			}
		}
	}

	err := e.store.Update(func(doc *model.Document) error {
		doc.Books = append(doc.Books, book)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &book, nil
}

// UpdateBook заменяет запись каталога с тем же идентификатором.
func (e *Engine) UpdateBook(book model.Book) error {
	return e.store.Update(func(doc *model.Document) error {
		existing := doc.BookByID(book.ID)
		if existing == nil {
			return ErrBookNotFound
		}

		if book.UnitsTotal < 1 {
			book.UnitsTotal = 1
		}
		if book.UnitsAvailable > book.UnitsTotal {
			book.UnitsAvailable = book.UnitsTotal
		}

		*existing = book
		return nil
	})
}

// DeleteBook удаляет книгу из каталога. История выдач сохраняется.
func (e *Engine) DeleteBook(id string) error {
	return e.store.Update(func(doc *model.Document) error {
		for i := range doc.Books {
			if doc.Books[i].ID == id {
				doc.Books = append(doc.Books[:i], doc.Books[i+1:]...)
				return nil
			}
		}
		return ErrBookNotFound
	})
}

// CreateUser добавляет пользователя. Логин генерируется из имени и фамилии;
// при совпадении к логину добавляется числовой суффикс.
func (e *Engine) CreateUser(user model.User) (*model.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = model.RoleStudent
	}

	err := e.store.Update(func(doc *model.Document) error {
		if user.Username == "" {
			user.Username = uniqueUsername(doc, model.BuildUsername(user.FirstName, user.LastName))
		}
		doc.Users = append(doc.Users, user)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func uniqueUsername(doc *model.Document, base string) string {
	taken := make(map[string]bool, len(doc.Users))
	for _, u := range doc.Users {
		taken[u.Username] = true
	}

	if !taken[base] {
		return base
	}
	for i := 2; ; i++ {
		candidate := base + strconv.Itoa(i)
		if !taken[candidate] {
			return candidate
		}
	}
}

// UpdateUser заменяет запись пользователя с тем же идентификатором.
func (e *Engine) UpdateUser(user model.User) error {
	return e.store.Update(func(doc *model.Document) error {
		existing := doc.UserByID(user.ID)
		if existing == nil {
			return ErrUserNotFound
		}

		if user.Points < 0 {
			user.Points = 0
		}

		*existing = user
		return nil
	})
}

// DeleteUser удаляет пользователя.
func (e *Engine) DeleteUser(id string) error {
	return e.store.Update(func(doc *model.Document) error {
		for i := range doc.Users {
			if doc.Users[i].ID == id {
				doc.Users = append(doc.Users[:i], doc.Users[i+1:]...)
				return nil
			}
		}
		return ErrUserNotFound
	})
}

// LeaderboardEntry описывает строку рейтинга учеников.
type LeaderboardEntry struct {
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	Points    int    `json:"points"`
	BooksRead int    `json:"booksRead"`
}

// Leaderboard возвращает учеников, отсортированных по баллам.
func (e *Engine) Leaderboard(limit int) ([]LeaderboardEntry, error) {
	doc, err := e.store.Snapshot()
	if err != nil {
		return nil, err
	}

	var entries []LeaderboardEntry
	for _, u := range doc.Users {
		if u.Role != model.RoleStudent {
			continue
		}
		entries = append(entries, LeaderboardEntry{
			UserID:    u.ID,
			Name:      u.FirstName + " " + u.LastName,
			Points:    u.Points,
			BooksRead: u.BooksRead,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Points > entries[j].Points
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	return entries, nil
}

// Snapshot возвращает полный документ без блокировки. Результат может
// устареть и не должен использоваться как основа для записи.
func (e *Engine) Snapshot() (*model.Document, error) {
	return e.store.Snapshot()
}

// Restore восстанавливает документ из резервной копии.
func (e *Engine) Restore(doc *model.Document) error {
	return e.store.Restore(doc)
}

// ReplaceUsers сохраняет коллекцию пользователей целиком.
func (e *Engine) ReplaceUsers(users []model.User) error { return e.store.ReplaceUsers(users) }

// ReplaceBooks сохраняет коллекцию книг целиком.
func (e *Engine) ReplaceBooks(books []model.Book) error { return e.store.ReplaceBooks(books) }

// ReplaceTransactions сохраняет коллекцию выдач целиком.
func (e *Engine) ReplaceTransactions(txs []model.Transaction) error {
	return e.store.ReplaceTransactions(txs)
}

// ReplaceReviews сохраняет коллекцию отзывов целиком.
func (e *Engine) ReplaceReviews(reviews []model.Review) error { return e.store.ReplaceReviews(reviews) }

// ReplacePointHistory сохраняет журнал баллов целиком.
func (e *Engine) ReplacePointHistory(history []model.PointEntry) error {
	return e.store.ReplacePointHistory(history)
}

// ReplaceSettings сохраняет настройки школы.
func (e *Engine) ReplaceSettings(settings model.Settings) error {
	return e.store.ReplaceSettings(settings)
}

// StartBackups запускает фоновый процесс создания резервных копий документа.
func (e *Engine) StartBackups(ctx context.Context) {
	if e.backupDir == "" || e.backupInterval <= 0 {
		return
	}

	go func() {
		// Первая копия создаётся сразу при запуске.
		_, _ = e.store.Backup(e.backupDir)

		ticker := time.NewTicker(e.backupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = e.store.Backup(e.backupDir)
			}
		}
	}()
}
