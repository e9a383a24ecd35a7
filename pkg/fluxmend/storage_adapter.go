package fluxmend

import (
	"io"

	"github.com/himanishpuri/FluxMend/pkg/fluxmend/storage"
	"github.com/himanishpuri/FluxMend/pkg/models"
)

// storageAdapter adapts storage.DBClient to the Storage interface.
type storageAdapter struct {
	db *storage.DBClient
}

// NewSQLiteStorage opens (or creates) a SQLite recovery store.
func NewSQLiteStorage(dbPath string) (Storage, error) {
	db, err := storage.NewDBClientWithPath(dbPath)
	if err != nil {
		return nil, err
	}
	return &storageAdapter{db: db}, nil
}

func (s *storageAdapter) AddSector(media string, sector models.DecodedSector, source string) (string, error) {
	return s.db.AddSector(media, sector, source)
}

func (s *storageAdapter) ListSectors(media string) ([]models.StoredSector, error) {
	rows, err := s.db.ListSectors(media)
	if err != nil {
		return nil, err
	}
	return toStored(rows), nil
}

func (s *storageAdapter) SectorsAt(media string, at models.Coordinate) ([]models.StoredSector, error) {
	rows, err := s.db.SectorsAt(media, at)
	if err != nil {
		return nil, err
	}
	return toStored(rows), nil
}

func (s *storageAdapter) WriteImage(media string, w io.Writer) (*models.ImageSummary, error) {
	return s.db.WriteImage(media, w)
}

func (s *storageAdapter) Close() error {
	return s.db.Close()
}

func toStored(rows []storage.Sector) []models.StoredSector {
	out := make([]models.StoredSector, len(rows))
	for i, r := range rows {
		out[i] = models.StoredSector{
			ID:         r.ID,
			Media:      r.Media,
			At:         r.Coordinate(),
			Octets:     r.Octets,
			Provenance: r.Provenance,
			Source:     r.Source,
			CreatedAt:  r.CreatedAt,
		}
	}
	return out
}
