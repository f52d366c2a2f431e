package db

import (
	"errors"
	"fmt"

	"github.com/yokoszn/CreatureGRC/internal/config"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrMissingDSN = errors.New("POSTGRES_DSN is required")

type Store struct {
	DB *gorm.DB
}

func NewStore(cfg config.Config) (*Store, error) {
	if cfg.PostgresDSN == "" {
		return nil, ErrMissingDSN
	}
	gdb, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{DB: gdb}, nil
}

func NewStoreFromDB(gdb *gorm.DB) *Store {
	return &Store{DB: gdb}
}

func (s *Store) Evidence() *EvidenceRepository      { return NewEvidenceRepository(s.DB) }
func (s *Store) Controls() *ControlRepository       { return NewControlRepository(s.DB) }
func (s *Store) TestResults() *TestResultRepository { return NewTestResultRepository(s.DB) }
func (s *Store) Findings() *FindingRepository       { return NewFindingRepository(s.DB) }
func (s *Store) Packages() *PackageRepository       { return NewPackageRepository(s.DB) }

func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
