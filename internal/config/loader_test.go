package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/halfline/overunder/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func clearConfigEnvVars() {
	for _, key := range []string{
		"OVERUNDER_CONFIG",
		"OVERUNDER_ADDR",
		"OVERUNDER_DB_PATH",
		"OVERUNDER_LOG_LEVEL",
		"OVERUNDER_SEASON",
		"OVERUNDER_REFRESH_INTERVAL_MIN",
		"OVERUNDER_LOCK_TTL_MIN",
	} {
		_ = os.Unsetenv(key)
	}
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.DBPath, convey.ShouldEqual, "overunder.db")
				convey.So(cfg.RefreshIntervalMin, convey.ShouldEqual, 15)
				convey.So(cfg.LockTTLMin, convey.ShouldEqual, 10)
				convey.So(cfg.Sources, convey.ShouldHaveLength, 2)
				convey.So(cfg.Rules.RegularWin, convey.ShouldEqual, 1)
				convey.So(cfg.Projection.MinGames, convey.ShouldEqual, 3)
				convey.So(cfg.Roster.CollegeTeams, convey.ShouldEqual, 6)
				convey.So(cfg.Roster.ProTeams, convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			clearConfigEnvVars()
			_ = os.Setenv("OVERUNDER_ADDR", ":8080")
			_ = os.Setenv("OVERUNDER_DB_PATH", "/tmp/league.db")
			_ = os.Setenv("OVERUNDER_LOG_LEVEL", "debug")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.DBPath, convey.ShouldEqual, "/tmp/league.db")
				convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			clearConfigEnvVars()
			path := filepath.Join(t.TempDir(), "config.yaml")
			yaml := `
addr: ":7070"
season: 2025
projection:
  min_games: 2
  ramp_games: 5
`
			convey.So(os.WriteFile(path, []byte(yaml), 0o600), convey.ShouldBeNil)
			_ = os.Setenv("OVERUNDER_CONFIG", path)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then file values layer over defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.Season, convey.ShouldEqual, 2025)
				convey.So(cfg.Projection.MinGames, convey.ShouldEqual, 2)
				convey.So(cfg.Projection.RampGames, convey.ShouldEqual, 5)
				// Untouched defaults survive.
				convey.So(cfg.DBPath, convey.ShouldEqual, "overunder.db")
			})
		})

		convey.Convey("When the config file does not exist", func() {
			clearConfigEnvVars()
			_ = os.Setenv("OVERUNDER_CONFIG", "/nonexistent/config.yaml")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then the load error sentinel is returned", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a value is invalid", func() {
			clearConfigEnvVars()
			_ = os.Setenv("OVERUNDER_ADDR", "")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then the invalid config sentinel is returned", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func TestValidation(t *testing.T) {
	convey.Convey("Given config loaded through a YAML file", t, func() {
		ctx := context.Background()

		load := func(yaml string) error {
			clearConfigEnvVars()
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
				return err
			}
			_ = os.Setenv("OVERUNDER_CONFIG", path)
			defer clearConfigEnvVars()
			_, err := config.Load(ctx)
			return err
		}

		convey.Convey("When a source has an unknown category", func() {
			err := load(`
sources:
  - name: "minor-league"
    category: "MINOR"
    sport_path: "minor"
`)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When the projection ramp is below the minimum games", func() {
			err := load(`
projection:
  min_games: 6
  ramp_games: 3
`)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When the actual weight is out of range", func() {
			err := load(`
projection:
  max_actual_weight: 1.5
`)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}
