// File: internal/repository/gorm_store.go
package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/iyunix/go-chatwidget/internal/domain"
	"github.com/iyunix/go-chatwidget/internal/repository/chat"
	"github.com/iyunix/go-chatwidget/internal/repository/company"
	"github.com/iyunix/go-chatwidget/internal/repository/message"
)

// Open connects to the configured SQL database. Supported drivers are
// "sqlite" (default) and "mysql".
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case "", "sqlite":
		if dsn == "" {
			dsn = "chatwidget.db"
		}
		dialector = sqlite.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}
	return db, nil
}

// Migrate creates the tables for local and test databases. Production
// schemas are managed outside this service.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&domain.Company{}, &domain.Chat{}, &domain.Message{})
}

// GormStore implements Store on top of the gorm repositories.
type GormStore struct {
	chats     chat.ChatRepository
	messages  message.MessageRepository
	companies company.CompanyRepository
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		chats:     chat.NewChatRepository(db),
		messages:  message.NewMessageRepository(db),
		companies: company.NewCompanyRepository(db),
	}
}

func (s *GormStore) GetChatByID(ctx context.Context, chatID string) (*domain.Chat, error) {
	return s.chats.FindByID(ctx, chatID)
}

func (s *GormStore) GetCompanyByID(ctx context.Context, companyID string) (*domain.Company, error) {
	return s.companies.FindByID(ctx, companyID)
}

func (s *GormStore) ListBySequenceAsc(ctx context.Context, chatID string) ([]domain.Message, error) {
	return s.messages.FindByChatIDAsc(ctx, chatID)
}

func (s *GormStore) LatestSequenceNumber(ctx context.Context, chatID string) (int64, error) {
	return s.messages.LatestSequenceNumber(ctx, chatID)
}

func (s *GormStore) InsertMessage(ctx context.Context, msg *domain.Message) error {
	if err := s.messages.Create(ctx, msg); err != nil {
		return err
	}
	// Bumping the chat is bookkeeping only.
	_ = s.chats.TouchUpdatedAt(ctx, msg.ChatID)
	return nil
}

func (s *GormStore) InsertChat(ctx context.Context, c *domain.Chat) error {
	return s.chats.Create(ctx, c)
}

func (s *GormStore) UpdateEmail(ctx context.Context, chatID, email string) (bool, error) {
	return s.chats.SetEmailIfUnset(ctx, chatID, email)
}

func (s *GormStore) CountAndPruneOldest(ctx context.Context, chatID string, keep int) (int64, error) {
	return s.messages.PruneOldest(ctx, chatID, keep)
}

// CreateCompany seeds a company row; used by tests and local setups.
func (s *GormStore) CreateCompany(ctx context.Context, c *domain.Company) error {
	return s.companies.Create(ctx, c)
}

var _ Store = (*GormStore)(nil)
