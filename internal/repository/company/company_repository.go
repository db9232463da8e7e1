package company

import (
    "context"
    "errors"
    "fmt"
    "strings"

    "gorm.io/gorm"

    "github.com/iyunix/go-chatwidget/internal/domain"
)

var ErrCompanyNotFound = errors.New("company not found")

// CompanyRepository reads widget configuration. Writes belong to the admin
// tooling, except Create which seeds tests and local setups.
type CompanyRepository interface {
    FindByID(ctx context.Context, companyID string) (*domain.Company, error)
    Create(ctx context.Context, company *domain.Company) error
}

type gormCompanyRepository struct {
    db *gorm.DB
}

func NewCompanyRepository(db *gorm.DB) CompanyRepository {
    return &gormCompanyRepository{db: db}
}

func (r *gormCompanyRepository) FindByID(ctx context.Context, companyID string) (*domain.Company, error) {
    if strings.TrimSpace(companyID) == "" {
        return nil, ErrCompanyNotFound
    }

    var company domain.Company
    err := r.db.WithContext(ctx).Where("id = ?", companyID).First(&company).Error
    if errors.Is(err, gorm.ErrRecordNotFound) {
        return nil, ErrCompanyNotFound
    }
    if err != nil {
        return nil, fmt.Errorf("finding company: %w", err)
    }
    return &company, nil
}

func (r *gormCompanyRepository) Create(ctx context.Context, company *domain.Company) error {
    if company == nil || strings.TrimSpace(company.ID) == "" {
        return errors.New("company ID is required")
    }
    if err := r.db.WithContext(ctx).Create(company).Error; err != nil {
        return fmt.Errorf("creating company: %w", err)
    }
    return nil
}
