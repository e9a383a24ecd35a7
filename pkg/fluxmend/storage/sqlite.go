package storage

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/himanishpuri/FluxMend/pkg/models"
)

const DefaultDBFile = "fluxmend.sqlite3"
const errDBClientNil = "db client is nil"

type DBClient struct {
	DB *gorm.DB
	db *sql.DB
}

// Sector is one recovered payload. The same payload stored twice for a
// coordinate is a single row.
type Sector struct {
	ID         string `gorm:"primaryKey;type:varchar(36)"`
	Media      string `gorm:"uniqueIndex:idx_sector_unique,priority:1;index:idx_sector_at,priority:1" json:"media"`
	Cylinder   int    `gorm:"uniqueIndex:idx_sector_unique,priority:2;index:idx_sector_at,priority:2" json:"cylinder"`
	Head       int    `gorm:"uniqueIndex:idx_sector_unique,priority:3;index:idx_sector_at,priority:3" json:"head"`
	Sector     int    `gorm:"uniqueIndex:idx_sector_unique,priority:4;index:idx_sector_at,priority:4" json:"sector"`
	Digest     string `gorm:"type:char(64);uniqueIndex:idx_sector_unique,priority:5" json:"digest"`
	Length     int    `json:"length"`
	Octets     []byte `json:"octets"`
	Provenance string `json:"provenance"`
	Source     string `json:"source"`
	CreatedAt  time.Time
}

func (s Sector) Coordinate() models.Coordinate {
	return models.Coordinate{Cylinder: s.Cylinder, Head: s.Head, Sector: s.Sector}
}

func NewDBClient() (*DBClient, error) {
	dbPath := os.Getenv("FLUXMEND_DB_PATH")
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	return NewDBClientWithPath(dbPath)
}

func NewDBClientWithPath(dbPath string) (*DBClient, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil && !os.IsExist(err) {
		if filepath.Dir(dbPath) != "." {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Sector{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB}, nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Digest is the hex SHA-256 of a payload.
func Digest(octets []byte) string {
	sum := sha256.Sum256(octets)
	return hex.EncodeToString(sum[:])
}

// AddSector stores a sector and returns its row ID. Storing a payload
// already held for the same coordinate returns the existing ID.
func (c *DBClient) AddSector(media string, sector models.DecodedSector, source string) (string, error) {
	if c == nil || c.DB == nil {
		return "", errors.New(errDBClientNil)
	}

	at := sector.Coordinate()
	digest := Digest(sector.Octets())
	where := "media = ? AND cylinder = ? AND head = ? AND sector = ? AND digest = ?"

	var row Sector
	err := c.DB.Where(where, media, at.Cylinder, at.Head, at.Sector, digest).First(&row).Error
	if err == nil {
		return row.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("querying existing sector: %w", err)
	}

	row = Sector{
		ID:         uuid.NewString(),
		Media:      media,
		Cylinder:   at.Cylinder,
		Head:       at.Head,
		Sector:     at.Sector,
		Digest:     digest,
		Length:     sector.Len(),
		Octets:     sector.Octets(),
		Provenance: sector.Provenance(),
		Source:     source,
	}
	err = c.DB.Create(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed") {
			if fetchErr := c.DB.Where(where, media, at.Cylinder, at.Head, at.Sector, digest).First(&row).Error; fetchErr != nil {
				return "", fmt.Errorf("fetching sector after constraint violation: %w", fetchErr)
			}
			return row.ID, nil
		}
		return "", fmt.Errorf("creating sector: %w", err)
	}

	return row.ID, nil
}

// ListSectors returns every stored sector of media in (c, h, s) order,
// oldest first within a coordinate.
func (c *DBClient) ListSectors(media string) ([]Sector, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var rows []Sector
	if err := c.DB.Where("media = ?", media).Order("cylinder, head, sector, rowid").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing sectors: %w", err)
	}
	return rows, nil
}

func (c *DBClient) SectorsAt(media string, at models.Coordinate) ([]Sector, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var rows []Sector
	err := c.DB.Where("media = ? AND cylinder = ? AND head = ? AND sector = ?", media, at.Cylinder, at.Head, at.Sector).
		Order("rowid").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("querying sectors at %s: %w", at, err)
	}
	return rows, nil
}

// WriteImage writes one payload per coordinate, in (c, h, s) order, to w.
// The earliest stored payload wins; coordinates holding others as well are
// listed as conflicts.
func (c *DBClient) WriteImage(media string, w io.Writer) (*models.ImageSummary, error) {
	rows, err := c.ListSectors(media)
	if err != nil {
		return nil, err
	}

	summary := &models.ImageSummary{}
	for i := 0; i < len(rows); {
		at := rows[i].Coordinate()
		n, err := w.Write(rows[i].Octets)
		if err != nil {
			return nil, fmt.Errorf("writing %s: %w", at, err)
		}
		summary.Sectors++
		summary.Bytes += int64(n)

		j := i + 1
		for j < len(rows) && rows[j].Coordinate() == at {
			j++
		}
		if j-i > 1 {
			summary.Conflicts = append(summary.Conflicts, at)
		}
		i = j
	}
	return summary, nil
}
