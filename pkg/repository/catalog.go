package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/example/tableserve/pkg/config"
	"github.com/example/tableserve/pkg/errs"
	"github.com/example/tableserve/pkg/models"
)

// CatalogRepository is the read model over the menu/restaurant collaborator
// store. The core only reads it; catalog CRUD lives elsewhere.
type CatalogRepository struct {
	db *gorm.DB
}

type menuItemRow struct {
	ID           string  `gorm:"primaryKey;type:varchar(36)"`
	RestaurantID string  `gorm:"type:varchar(36);not null;index"`
	Name         string  `gorm:"type:varchar(200);not null"`
	BasePrice    float64 `gorm:"type:decimal(10,2)"`
	Variants     string  `gorm:"type:text"` // JSON list
	Addons       string  `gorm:"type:text"` // JSON list
	Available    bool    `gorm:"default:true"`
}

func (menuItemRow) TableName() string {
	return "menu_items"
}

type restaurantRow struct {
	ID       string `gorm:"primaryKey;type:varchar(36)"`
	Name     string `gorm:"type:varchar(200);not null"`
	Currency string `gorm:"type:varchar(3);default:'INR'"`
}

func (restaurantRow) TableName() string {
	return "restaurants"
}

func NewCatalogRepository(cfg *config.MySQLConfig) (*CatalogRepository, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}

	if err := db.AutoMigrate(&menuItemRow{}, &restaurantRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate catalog: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	return &CatalogRepository{db: db}, nil
}

func (c *CatalogRepository) GetMenuItem(ctx context.Context, id string) (*models.MenuItem, error) {
	var row menuItemRow
	if err := c.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.New(errs.KindNotFound, "menu item not found")
		}
		return nil, err
	}

	item := &models.MenuItem{
		ID:           row.ID,
		RestaurantID: row.RestaurantID,
		Name:         row.Name,
		BasePrice:    row.BasePrice,
		Available:    row.Available,
	}
	if row.Variants != "" {
		if err := json.Unmarshal([]byte(row.Variants), &item.Variants); err != nil {
			return nil, fmt.Errorf("failed to parse variants for item %s: %w", row.ID, err)
		}
	}
	if row.Addons != "" {
		if err := json.Unmarshal([]byte(row.Addons), &item.Addons); err != nil {
			return nil, fmt.Errorf("failed to parse addons for item %s: %w", row.ID, err)
		}
	}
	return item, nil
}

func (c *CatalogRepository) GetRestaurant(ctx context.Context, id string) (*models.Restaurant, error) {
	var row restaurantRow
	if err := c.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.New(errs.KindNotFound, "restaurant not found")
		}
		return nil, err
	}
	return &models.Restaurant{ID: row.ID, Name: row.Name, Currency: row.Currency}, nil
}
