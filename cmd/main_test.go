package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/awards/internal/adapters/http/api"
	"github.com/okian/awards/internal/adapters/store/memory"
	app "github.com/okian/awards/internal/app"
	"github.com/okian/awards/internal/config"
	"github.com/okian/awards/internal/identity"
	"github.com/okian/awards/pkg/logger"
)

const fixtures = `
documents:
  ceremonies/2025:
    name: 97th Academy Awards
    year: "2025"
    date: "2025-03-02T18:00:00Z"
  eventTypes/oscars:
    slug: oscars
    displayName: Academy Awards
`

func TestOpenBackend(t *testing.T) {
	convey.Convey("Given the memory backend configuration", t, func() {
		ctx := context.Background()
		cfg := config.New()

		convey.Convey("When a fixtures file is configured", func() {
			f, err := os.CreateTemp("", "awards-fixtures-*.yaml")
			convey.So(err, convey.ShouldBeNil)
			defer func() { _ = os.Remove(f.Name()) }()
			_, err = f.WriteString(fixtures)
			convey.So(err, convey.ShouldBeNil)
			convey.So(f.Close(), convey.ShouldBeNil)
			cfg.FixturesFile = f.Name()

			backend, fb, closeFn, err := openBackend(ctx, cfg, logger.Nop())

			convey.Convey("Then the store is seeded", func() {
				convey.So(err, convey.ShouldBeNil)
				defer closeFn()
				convey.So(fb, convey.ShouldBeNil)
				mem, ok := backend.(*memory.Store)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(mem.Len(), convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When the fixtures file is missing", func() {
			cfg.FixturesFile = "/non/existent/fixtures.yaml"
			_, _, _, err := openBackend(ctx, cfg, logger.Nop())

			convey.Convey("Then startup fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestNewVerifier(t *testing.T) {
	convey.Convey("Given an auth mode", t, func() {
		ctx := context.Background()
		cfg := config.New()

		convey.Convey("Insecure mode passes tokens through as user ids", func() {
			v, err := newVerifier(ctx, cfg, nil)
			convey.So(err, convey.ShouldBeNil)
			u, err := v.Verify(ctx, "u1")
			convey.So(err, convey.ShouldBeNil)
			convey.So(u.ID, convey.ShouldEqual, "u1")
		})

		convey.Convey("Firebase mode needs a firebase app", func() {
			cfg.AuthMode = config.AuthFirebase
			_, err := newVerifier(ctx, cfg, nil)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}

func TestRoutes(t *testing.T) {
	convey.Convey("Given the wired service and routes", t, func() {
		ctx := context.Background()
		backend, _, closeFn, err := openBackend(ctx, config.New(), logger.Nop())
		convey.So(err, convey.ShouldBeNil)
		defer closeFn()

		svc := app.New(backend, identity.ContextSource{})
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		mux := http.NewServeMux()
		api.NewServer(svc, identity.InsecureVerifier{}).Register(mux)

		convey.Convey("Health and stats respond", func() {
			for _, path := range []string{"/healthz", "/stats"} {
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			}
		})

		convey.Convey("Procedures without a client are unavailable", func() {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/competitions/leave", strings.NewReader(`{"competitionId":"c1"}`))
			req.Header.Set("Authorization", "Bearer u1")
			mux.ServeHTTP(w, req)
			convey.So(w.Code, convey.ShouldEqual, http.StatusServiceUnavailable)
		})

		convey.Convey("System metrics update without panicking", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
		})
	})
}
