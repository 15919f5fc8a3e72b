// Package store содержит реализацию хранилища данных в одном JSON-документе.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mmeshcher/bibliohispa-system/internal/model"
)

// ErrNotInitialized возвращается при обращении к закрытому или не открытому хранилищу.
var ErrNotInitialized = errors.New("store not initialized")

// backupKeep — сколько последних резервных копий сохраняется при ротации.
const backupKeep = 30

// Store хранит документ библиотеки в одном JSON-файле. Все мутации
// сериализуются глобальным мьютексом: захват → чтение актуального документа →
// изменение в памяти → атомарная запись → освобождение.
type Store struct {
	mu   sync.Mutex
	path string
}

// seedDocument возвращает начальный документ для новой установки.
func seedDocument() *model.Document {
	return &model.Document{
		Users: []model.User{
			{
				ID:        "super-admin-1",
				FirstName: "Director",
				LastName:  "General",
				Username:  "superadmin",
				Password:  "admin123",
				ClassName: "DIRECCIÓN",
				Role:      model.RoleSuperAdmin,
			},
		},
		Books:        []model.Book{},
		Transactions: []model.Transaction{},
		Reviews:      []model.Review{},
		PointHistory: []model.PointEntry{},
		Settings: model.Settings{
			SchoolName: "BiblioHispa",
			LogoURL:    "https://cdn-icons-png.flaticon.com/512/3413/3413535.png",
		},
	}
}

// Open открывает хранилище по указанному пути. Если файл отсутствует,
// создаётся начальный документ.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	s := &Store{path: path}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := s.write(seedDocument()); err != nil {
			return nil, fmt.Errorf("seed database: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat database: %w", err)
	}

	// Проверяем, что существующий файл читается.
	if _, err := s.read(); err != nil {
		return nil, err
	}

	return s, nil
}

// Close освобождает ресурсы хранилища.
func (s *Store) Close() error {
	return nil
}

func (s *Store) read() (*model.Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read database: %w", err)
	}

	var doc model.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode database: %w", err)
	}

	return &doc, nil
}

// write сохраняет документ атомарно: сначала во временный файл, затем rename.
// Благодаря этому чтение без мьютекса никогда не видит частично записанный файл.
func (s *Store) write(doc *model.Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode database: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write database: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace database: %w", err)
	}

	return nil
}

// Snapshot возвращает полный документ без захвата мьютекса. Результат может
// устареть к моменту следующей мутации и не должен использоваться как основа
// для записи.
func (s *Store) Snapshot() (*model.Document, error) {
	if s == nil {
		return nil, ErrNotInitialized
	}
	return s.read()
}

// Update выполняет мутацию документа в одной критической секции:
// читает актуальное состояние, применяет fn и сохраняет результат.
// Если fn возвращает ошибку, документ не записывается, а мьютекс
// освобождается в любом случае.
func (s *Store) Update(fn func(doc *model.Document) error) error {
	if s == nil {
		return ErrNotInitialized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}

	if err := fn(doc); err != nil {
		return err
	}

	return s.write(doc)
}

// ReplaceUsers заменяет коллекцию пользователей, не трогая остальные коллекции.
func (s *Store) ReplaceUsers(users []model.User) error {
	return s.Update(func(doc *model.Document) error {
		doc.Users = users
		return nil
	})
}

// ReplaceBooks заменяет коллекцию книг.
func (s *Store) ReplaceBooks(books []model.Book) error {
	return s.Update(func(doc *model.Document) error {
		doc.Books = books
		return nil
	})
}

// ReplaceTransactions заменяет коллекцию выдач.
func (s *Store) ReplaceTransactions(txs []model.Transaction) error {
	return s.Update(func(doc *model.Document) error {
		doc.Transactions = txs
		return nil
	})
}

// ReplaceReviews заменяет коллекцию отзывов.
func (s *Store) ReplaceReviews(reviews []model.Review) error {
	return s.Update(func(doc *model.Document) error {
		doc.Reviews = reviews
		return nil
	})
}

// ReplacePointHistory заменяет журнал баллов.
func (s *Store) ReplacePointHistory(history []model.PointEntry) error {
	return s.Update(func(doc *model.Document) error {
		doc.PointHistory = history
		return nil
	})
}

// ReplaceSettings заменяет настройки школы.
func (s *Store) ReplaceSettings(settings model.Settings) error {
	return s.Update(func(doc *model.Document) error {
		doc.Settings = settings
		return nil
	})
}

// Restore накладывает документ из резервной копии поверх текущего состояния.
func (s *Store) Restore(restored *model.Document) error {
	return s.Update(func(doc *model.Document) error {
		*doc = *restored
		return nil
	})
}

// Backup создаёт резервную копию файла данных в указанном каталоге
// и удаляет устаревшие копии, оставляя последние backupKeep.
func (s *Store) Backup(dir string) (string, error) {
	if s == nil {
		return "", ErrNotInitialized
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	// Читаем под мьютексом, чтобы копия соответствовала завершённому действию.
	s.mu.Lock()
	data, err := os.ReadFile(s.path)
	s.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("read database: %w", err)
	}

	timestamp := strings.NewReplacer(":", "-", ".", "-").Replace(time.Now().UTC().Format(time.RFC3339Nano))
	name := filepath.Join(dir, "db-backup-"+timestamp+".json")

	if err := os.WriteFile(name, data, 0o644); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}

	if err := pruneBackups(dir); err != nil {
		return name, err
	}

	return name, nil
}

func pruneBackups(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("list backups: %w", err)
	}

	var backups []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "db-backup-") {
			backups = append(backups, e.Name())
		}
	}

	if len(backups) <= backupKeep {
		return nil
	}

	sort.Strings(backups)
	for _, name := range backups[:len(backups)-backupKeep] {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("remove old backup: %w", err)
		}
	}

	return nil
}
