//go:build !js && !wasm
// +build !js,!wasm

package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/himanishpuri/FluxMend/pkg/fluxmend"
)

var (
	port           int
	dbPath         string
	captureDir     string
	media          string
	tempDir        string
	allowedOrigins string
)

func init() {
	flag.IntVar(&port, "port", 8080, "HTTP server port")
	flag.StringVar(&dbPath, "db", getEnvOrDefault("FLUXMEND_DB_PATH", "fluxmend.sqlite3"), "Path to SQLite database")
	flag.StringVar(&captureDir, "captures", getEnvOrDefault("FLUXMEND_CAPTURE_DIR", "."), "Directory holding the track captures")
	flag.StringVar(&media, "media", getEnvOrDefault("FLUXMEND_MEDIA", "media"), "Name of the disk being recovered")
	flag.StringVar(&tempDir, "temp", getEnvOrDefault("FLUXMEND_TEMP_DIR", os.TempDir()), "Directory for uploaded captures")
	flag.StringVar(&allowedOrigins, "origins", "*", "Comma-separated list of allowed CORS origins (use * for all)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	flag.Parse()

	// Parse allowed origins
	var origins []string
	if allowedOrigins == "*" {
		origins = []string{"*"}
	} else {
		origins = strings.Split(allowedOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
	}

	service, err := fluxmend.NewService(
		fluxmend.WithDBPath(dbPath),
		fluxmend.WithCaptureDir(captureDir),
		fluxmend.WithMedia(media),
	)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	defer service.Close()

	config := &ServerConfig{
		Port:           port,
		DBPath:         dbPath,
		CaptureDir:     captureDir,
		Media:          media,
		TempDir:        tempDir,
		AllowedOrigins: origins,
	}

	server := NewServer(service, config)
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
