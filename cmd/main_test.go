package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/okian/seatalloc/internal/adapters/repository"
	app "github.com/okian/seatalloc/internal/app"
	"github.com/okian/seatalloc/internal/config"
	"github.com/okian/seatalloc/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When testing configuration loading", func() {
			_ = os.Setenv("SEATALLOC_ADDR", ":8080")
			_ = os.Setenv("SEATALLOC_PASS_QUEUE_SIZE", "100")
			_ = os.Setenv("SEATALLOC_PASS_WORKER_COUNT", "4")
			defer func() {
				_ = os.Unsetenv("SEATALLOC_ADDR")
				_ = os.Unsetenv("SEATALLOC_PASS_QUEUE_SIZE")
				_ = os.Unsetenv("SEATALLOC_PASS_WORKER_COUNT")
			}()

			convey.Convey("Then configuration should be loadable", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.PassQueueSize, convey.ShouldEqual, 100)
				convey.So(cfg.PassWorkerCount, convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When opening the default store", func() {
			store, err := openStore(context.Background(), config.New())

			convey.Convey("Then it is the memory backend", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(store.Backend(), convey.ShouldEqual, "memory")
			})
		})

		convey.Convey("When an unknown store is configured", func() {
			cfg := config.New()
			cfg.Store = "cassandra"
			_, err := openStore(context.Background(), cfg)

			convey.Convey("Then it is rejected", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When an unknown merit metric is configured", func() {
			cfg := config.New()
			cfg.MeritMetric = "gpa"
			_, err := newService(cfg, repository.NewMemoryStore(), logger.Get())

			convey.Convey("Then the service is not built", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func TestMainApplicationIntegration(t *testing.T) {
	convey.Convey("Given a service built from the default configuration", t, func() {
		ctx := context.Background()
		cfg := config.New()
		svc, err := newService(cfg, repository.NewMemoryStore(), logger.Get())
		convey.So(err, convey.ShouldBeNil)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		mux := newMux(ctx, svc)

		convey.Convey("Then the API and its documentation are routed", func() {
			for _, path := range []string{"/healthz", "/stats", "/openapi.yaml", "/api/v1/elective/resources"} {
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			}
		})

		convey.Convey("Then sampled metrics refresh without panicking", func() {
			convey.So(func() { updateMetrics(svc) }, convey.ShouldNotPanic)

			tctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
			defer cancel()
			convey.So(func() { startMetricsUpdater(tctx, svc) }, convey.ShouldNotPanic)
		})
	})

	convey.Convey("Given a service that was never started", t, func() {
		svc := app.New()

		convey.Convey("Then GetStats still reports", func() {
			convey.So(svc.GetStats()["started"], convey.ShouldBeFalse)
		})
	})
}
