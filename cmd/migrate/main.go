// Command migrate applies the call_records schema. Commands are
// positional: up [n], down [n], force <version>, version, drop.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	dir := flag.String("dir", "migrations", "Path to migrations directory")
	databaseURL := flag.String("database", "", "Database URL (overrides DATABASE_URL env)")
	flag.Parse()

	url := *databaseURL
	if url == "" {
		_ = godotenv.Load()
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		log.Fatal().Msg("DATABASE_URL environment variable or -database flag is required")
	}

	command := flag.Arg(0)
	if command == "" {
		command = "up"
	}

	absDir, err := filepath.Abs(*dir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", *dir).Msg("Failed to resolve migrations directory")
	}

	m, err := migrate.New(fmt.Sprintf("file://%s", absDir), url)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create migrate instance")
	}
	defer m.Close()

	log.Info().Str("dir", absDir).Str("command", command).Msg("Running migration command")

	switch command {
	case "up":
		err = stepOrAll(m, argN(1), 1)
	case "down":
		err = stepOrAll(m, argN(1), -1)
	case "force":
		version := argN(1)
		if version == 0 {
			log.Fatal().Msg("force requires a version argument")
		}
		err = m.Force(version)
	case "version":
		reportVersion(m)
		return
	case "drop":
		err = m.Drop()
	default:
		log.Fatal().Str("command", command).Msg("Unknown command")
	}

	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info().Msg("Schema already up to date")
			return
		}
		log.Fatal().Err(err).Msg("Migration failed")
	}
	log.Info().Msg("Migration completed")
}

// stepOrAll runs n steps in the given direction, or the full distance
// when n is zero. For "down" all the way means Down(), not -0 steps.
func stepOrAll(m *migrate.Migrate, n, direction int) error {
	if n > 0 {
		return m.Steps(n * direction)
	}
	if direction < 0 {
		return m.Down()
	}
	return m.Up()
}

func reportVersion(m *migrate.Migrate) {
	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Info().Msg("No migrations applied yet")
			return
		}
		log.Fatal().Err(err).Msg("Failed to read migration version")
	}
	log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Current migration version")
}

// argN parses positional argument i as an integer, zero when absent
func argN(i int) int {
	arg := flag.Arg(i)
	if arg == "" {
		return 0
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		log.Fatal().Str("arg", arg).Msg("Expected a number")
	}
	return n
}
