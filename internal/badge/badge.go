// Package badge содержит каталог значков и логику их присвоения.
package badge

import "github.com/mmeshcher/bibliohispa-system/internal/model"

// CriterionKind перечисляет типы условий получения значка.
type CriterionKind string

const (
	// CriterionStreak — серия дней с активностью не короче порога.
	CriterionStreak CriterionKind = "STREAK"
	// CriterionReviews — количество написанных отзывов не меньше порога.
	CriterionReviews CriterionKind = "REVIEWS"
	// CriterionBooksRead — количество прочитанных книг не меньше порога.
	CriterionBooksRead CriterionKind = "BOOKS_READ"
	// CriterionManual — значок выдаётся только явным событием, без порога.
	CriterionManual CriterionKind = "MANUAL"
)

// Badge — статическое описание значка.
type Badge struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Icon        string        `json:"icon"`
	Description string        `json:"description"`
	Kind        CriterionKind `json:"-"`
	Threshold   int           `json:"-"`
}

// EarlyBirdID — значок за первую досрочную сдачу книги.
const EarlyBirdID = "early-bird"

// Catalog — полный список значков. Порядок фиксирован для стабильного вывода.
var Catalog = []Badge{
	{ID: "streak-3", Name: "Constancia", Icon: "🔥", Description: "3 días seguidos leyendo", Kind: CriterionStreak, Threshold: 3},
	{ID: "streak-7", Name: "Semana de fuego", Icon: "🚀", Description: "7 días seguidos leyendo", Kind: CriterionStreak, Threshold: 7},
	{ID: "streak-30", Name: "Leyenda lectora", Icon: "👑", Description: "30 días seguidos leyendo", Kind: CriterionStreak, Threshold: 30},
	{ID: "books-5", Name: "Ratón de biblioteca", Icon: "📚", Description: "5 libros devueltos", Kind: CriterionBooksRead, Threshold: 5},
	{ID: "books-10", Name: "Gran lector", Icon: "🏅", Description: "10 libros devueltos", Kind: CriterionBooksRead, Threshold: 10},
	{ID: "books-25", Name: "Devorador de libros", Icon: "🏆", Description: "25 libros devueltos", Kind: CriterionBooksRead, Threshold: 25},
	{ID: "reviews-1", Name: "Primera opinión", Icon: "⭐", Description: "Primera reseña publicada", Kind: CriterionReviews, Threshold: 1},
	{ID: "reviews-5", Name: "Crítico junior", Icon: "✍️", Description: "5 reseñas publicadas", Kind: CriterionReviews, Threshold: 5},
	{ID: "reviews-10", Name: "Crítico experto", Icon: "🎯", Description: "10 reseñas publicadas", Kind: CriterionReviews, Threshold: 10},
	{ID: EarlyBirdID, Name: "Madrugador", Icon: "🐦", Description: "Devolvió un libro en menos de una semana", Kind: CriterionManual},
}

// ByID возвращает значок по идентификатору.
func ByID(id string) (Badge, bool) {
	for _, b := range Catalog {
		if b.ID == id {
			return b, true
		}
	}
	return Badge{}, false
}

// Context передаёт метрики пользователя, актуальные для выполненного действия.
// Нулевое значение метрики означает, что действие её не затрагивало.
type Context struct {
	StreakAchieved int
	ReviewCount    int
	BooksRead      int
	EarlyReturn    bool
}

// Evaluate возвращает идентификаторы значков, которые пользователь получает
// впервые по итогам действия. Уже имеющиеся значки никогда не выдаются повторно.
func Evaluate(user *model.User, ctx Context) []string {
	var awarded []string

	for _, b := range Catalog {
		if user.HasBadge(b.ID) {
			continue
		}

		qualified := false
		switch b.Kind {
		case CriterionStreak:
			qualified = ctx.StreakAchieved >= b.Threshold && b.Threshold > 0
		case CriterionReviews:
			qualified = ctx.ReviewCount >= b.Threshold && b.Threshold > 0
		case CriterionBooksRead:
			qualified = ctx.BooksRead >= b.Threshold && b.Threshold > 0
		case CriterionManual:
			qualified = b.ID == EarlyBirdID && ctx.EarlyReturn
		}

		if qualified {
			awarded = append(awarded, b.ID)
		}
	}

	return awarded
}
