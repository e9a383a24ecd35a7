package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/himanishpuri/FluxMend/pkg/models"
)

// Catalog finds capture files in a media directory. Files follow the
// KryoFlux naming scheme trackCC.H.raw, optionally with a revision suffix
// (trackCC.H.raw.2) for repeated captures; WAV captures use trackCC.H.wav.
type Catalog struct {
	Dir string
}

// TrackName is the base file name for a cylinder and head.
func TrackName(cylinder, head int) string {
	return fmt.Sprintf("track%02d.%d", cylinder, head)
}

// FilesFor lists every capture of the track holding the coordinate.
func (c Catalog) FilesFor(at models.Coordinate) ([]string, error) {
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		return nil, fmt.Errorf("reading capture dir: %w", err)
	}

	prefix := TrackName(at.Cylinder, at.Head) + "."
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rest := strings.TrimPrefix(name, prefix)
		if rest == "raw" || rest == "wav" || strings.HasPrefix(rest, "raw.") {
			out = append(out, filepath.Join(c.Dir, name))
		}
	}
	sort.Strings(out)
	return out, nil
}

// Tracks lists every capture file in the directory.
func (c Catalog) Tracks() ([]string, error) {
	var out []string
	for _, pat := range []string{"track*.raw", "track*.raw.*", "track*.wav"} {
		m, err := filepath.Glob(filepath.Join(c.Dir, pat))
		if err != nil {
			return nil, err
		}
		out = append(out, m...)
	}
	sort.Strings(out)
	return out, nil
}
