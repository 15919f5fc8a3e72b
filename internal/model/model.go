// Package model содержит доменные сущности сервиса школьной библиотеки.
package model

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// UserRole описывает роль пользователя в системе.
type UserRole string

const (
	RoleStudent    UserRole = "STUDENT"
	RoleAdmin      UserRole = "ADMIN"
	RoleSuperAdmin UserRole = "SUPERADMIN"
)

// User представляет пользователя библиотеки: ученика или сотрудника.
type User struct {
	ID               string   `json:"id"`
	FirstName        string   `json:"firstName"`
	LastName         string   `json:"lastName"`
	Username         string   `json:"username"`
	Password         string   `json:"password,omitempty"`
	ClassName        string   `json:"className"`
	Role             UserRole `json:"role"`
	Points           int      `json:"points"`
	BooksRead        int      `json:"booksRead"`
	Badges           []string `json:"badges,omitempty"`
	CurrentStreak    int      `json:"currentStreak,omitempty"`
	LastActivityDate string   `json:"lastActivityDate,omitempty"`
}

// HasBadge сообщает, есть ли у пользователя значок с указанным идентификатором.
func (u *User) HasBadge(id string) bool {
	for _, b := range u.Badges {
		if b == id {
			return true
		}
	}
	return false
}

// Book описывает запись каталога с учётом экземпляров.
type Book struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Author         string `json:"author"`
	Genre          string `json:"genre"`
	UnitsTotal     int    `json:"unitsTotal"`
	UnitsAvailable int    `json:"unitsAvailable"`
	Shelf          string `json:"shelf"`
	CoverURL       string `json:"coverUrl,omitempty"`
	ReadCount      int    `json:"readCount"`
	RecommendedAge string `json:"recommendedAge,omitempty"`
	Description    string `json:"description,omitempty"`
	ISBN           string `json:"isbn,omitempty"`
	PageCount      int    `json:"pageCount,omitempty"`
	Publisher      string `json:"publisher,omitempty"`
}

// Transaction описывает один факт выдачи книги.
type Transaction struct {
	ID           string `json:"id"`
	UserID       string `json:"userId"`
	BookID       string `json:"bookId"`
	DateBorrowed string `json:"dateBorrowed"`
	DateReturned string `json:"dateReturned,omitempty"`
	DueDate      string `json:"dueDate,omitempty"`
	Active       bool   `json:"active"`
}

// Review описывает отзыв пользователя о книге. Отзывы не изменяются после создания.
type Review struct {
	ID         string `json:"id"`
	BookID     string `json:"bookId"`
	UserID     string `json:"userId"`
	AuthorName string `json:"authorName"`
	Rating     int    `json:"rating"`
	Comment    string `json:"comment"`
	Date       string `json:"date"`
}

// PointEntry — запись журнала начисления баллов. Журнал пополняется только добавлением.
type PointEntry struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Amount int    `json:"amount"`
	Reason string `json:"reason"`
	Date   string `json:"date"`
}

// Settings содержит настройки школы.
type Settings struct {
	SchoolName string `json:"schoolName"`
	LogoURL    string `json:"logoUrl"`
}

// Document — полный персистентный документ библиотеки. Все коллекции
// принадлежат хранилищу и читаются/записываются целиком.
type Document struct {
	Users        []User        `json:"users"`
	Books        []Book        `json:"books"`
	Transactions []Transaction `json:"transactions"`
	Reviews      []Review      `json:"reviews"`
	PointHistory []PointEntry  `json:"pointHistory"`
	Settings     Settings      `json:"settings"`
}

// UserByID возвращает указатель на пользователя внутри документа.
func (d *Document) UserByID(id string) *User {
	for i := range d.Users {
		if d.Users[i].ID == id {
			return &d.Users[i]
		}
	}
	return nil
}

// BookByID возвращает указатель на книгу внутри документа.
func (d *Document) BookByID(id string) *Book {
	for i := range d.Books {
		if d.Books[i].ID == id {
			return &d.Books[i]
		}
	}
	return nil
}

// NormalizeUsername приводит часть имени к виду для логина: нижний регистр,
// без диакритики, пробелы заменяются точками.
func NormalizeUsername(s string) string {
	decomposed := norm.NFD.String(strings.ToLower(strings.TrimSpace(s)))

	var b strings.Builder
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		if unicode.IsSpace(r) {
			b.WriteRune('.')
			continue
		}
		b.WriteRune(r)
	}

	out := b.String()
	for strings.Contains(out, "..") {
		out = strings.ReplaceAll(out, "..", ".")
	}
	return out
}

// BuildUsername формирует логин вида "имя.фамилия".
func BuildUsername(firstName, lastName string) string {
	return NormalizeUsername(firstName) + "." + NormalizeUsername(lastName)
}
