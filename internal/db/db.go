package db

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/JAY4T/kaakazini/internal/models"
	"github.com/JAY4T/kaakazini/internal/utils"
)

const (
	maxAttempts = 10
	retryDelay  = 2 * time.Second
)

// Connect opens postgres, retrying while the database container starts up.
func Connect(dsn string, log *logrus.Logger) (*gorm.DB, error) {
	var (
		gdb *gorm.DB
		err error
	)
	for i := 1; i <= maxAttempts; i++ {
		gdb, err = gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
		if err == nil {
			log.WithField("attempt", i).Info("connected to database")
			return gdb, nil
		}
		log.WithError(err).WithField("attempt", i).Warn("database not ready")
		time.Sleep(retryDelay)
	}
	return nil, fmt.Errorf("connect db after %d attempts: %w", maxAttempts, err)
}

func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&models.User{},
		&models.CraftsmanProfile{},
		&models.GalleryImage{},
		&models.Service{},
		&models.Product{},
		&models.JobRequest{},
		&models.JobProofImage{},
		&models.PaymentAttempt{},
		&models.Review{},
		&models.ContactMessage{},
	)
}

// SeedAdmin creates the staff admin account once. Empty password skips it.
func SeedAdmin(gdb *gorm.DB, email, password string, log *logrus.Logger) error {
	if email == "" || password == "" {
		return nil
	}

	var existing models.User
	err := gdb.Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return err
	}
	admin := models.User{
		FullName: "Administrator",
		Email:    email,
		Password: hash,
		Role:     models.RoleAdmin,
		IsActive: true,
		IsStaff:  true,
	}
	if err := gdb.Create(&admin).Error; err != nil {
		return err
	}
	log.WithField("email", email).Info("created default admin")
	return nil
}
