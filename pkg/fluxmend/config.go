package fluxmend

import (
	"runtime"

	"github.com/himanishpuri/FluxMend/pkg/fluxmend/format/fmsum"
)

const (
	DefaultMaxHoleWidth = 24
	DefaultReadingSlack = 8
)

type Config struct {
	DBPath     string
	CaptureDir string
	Media      string
	Formats    []Format
	Logger     Logger
	Storage    Storage
	Workers    int
	// ReadingSlack is how many bytes past the sector frame each reading
	// keeps, so that erasures do not push the checksum out of view.
	ReadingSlack int
	// AnchorLength enables interior anchoring in the consensus report.
	// Zero keeps the plain prefix/suffix reduction.
	AnchorLength int
	MaxHoleWidth int
}

type Option func(*Config)

func WithDBPath(path string) Option {
	return func(c *Config) {
		c.DBPath = path
	}
}

func WithCaptureDir(dir string) Option {
	return func(c *Config) {
		c.CaptureDir = dir
	}
}

func WithMedia(name string) Option {
	return func(c *Config) {
		c.Media = name
	}
}

func WithFormats(formats ...Format) Option {
	return func(c *Config) {
		c.Formats = formats
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func WithStorage(storage Storage) Option {
	return func(c *Config) {
		c.Storage = storage
	}
}

func WithWorkers(n int) Option {
	return func(c *Config) {
		c.Workers = n
	}
}

func WithReadingSlack(bytes int) Option {
	return func(c *Config) {
		c.ReadingSlack = bytes
	}
}

func WithAnchorLength(cells int) Option {
	return func(c *Config) {
		c.AnchorLength = cells
	}
}

func WithMaxHoleWidth(bits int) Option {
	return func(c *Config) {
		c.MaxHoleWidth = bits
	}
}

func defaultConfig() *Config {
	return &Config{
		DBPath:       "fluxmend.sqlite3",
		CaptureDir:   ".",
		Media:        "media",
		Formats:      []Format{fmsum.New()},
		Workers:      runtime.NumCPU(),
		ReadingSlack: DefaultReadingSlack,
		MaxHoleWidth: DefaultMaxHoleWidth,
	}
}
