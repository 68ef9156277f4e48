package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/awards/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.Backend, convey.ShouldEqual, config.BackendMemory)
				convey.So(cfg.VoteConfirmTimeoutMS, convey.ShouldEqual, 5000)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("AWARDS_ADDR", ":8080")
			_ = os.Setenv("AWARDS_MAILBOX_SIZE", "32")
			_ = os.Setenv("AWARDS_EVENT_PARTITION", "false")
			_ = os.Setenv("AWARDS_VOTE_CONFIRM_TIMEOUT_MS", "2500")
			_ = os.Setenv("AWARDS_FIXTURES_FILE", "/tmp/fixtures.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.MailboxSize, convey.ShouldEqual, 32)
				convey.So(cfg.EventPartition, convey.ShouldBeFalse)
				convey.So(cfg.VoteConfirmTimeoutMS, convey.ShouldEqual, 2500)
				convey.So(cfg.FixturesFile, convey.ShouldEqual, "/tmp/fixtures.yaml")
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
backend: firestore
project_id: awards-dev
auth_mode: firebase
functions_region: europe-west1
outbox_size: 16
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("AWARDS_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.Backend, convey.ShouldEqual, config.BackendFirestore)
				convey.So(cfg.ProjectID, convey.ShouldEqual, "awards-dev")
				convey.So(cfg.AuthMode, convey.ShouldEqual, config.AuthFirebase)
				convey.So(cfg.OutboxSize, convey.ShouldEqual, 16)
				convey.So(cfg.FunctionsURL(), convey.ShouldEqual, "https://europe-west1-awards-dev.cloudfunctions.net")
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
mailbox_size: 100
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("AWARDS_CONFIG", tmpFile)
			_ = os.Setenv("AWARDS_ADDR", ":8080")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")  // env
				convey.So(cfg.MailboxSize, convey.ShouldEqual, 100) // file
				convey.So(cfg.OutboxSize, convey.ShouldEqual, 64)   // default
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("AWARDS_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("AWARDS_CONFIG", "/non/existent/file.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("AWARDS_ADDR", "")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("AWARDS_MAILBOX_SIZE", "lots")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	for _, envVar := range []string{
		"AWARDS_CONFIG",
		"AWARDS_ADDR",
		"AWARDS_MAILBOX_SIZE",
		"AWARDS_EVENT_PARTITION",
		"AWARDS_VOTE_CONFIRM_TIMEOUT_MS",
		"AWARDS_FIXTURES_FILE",
	} {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "awards-config-*.yaml")
	if err != nil {
		panic(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	if err := tmpFile.Close(); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}
