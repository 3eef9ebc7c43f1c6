package replay_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/phillpas/ktm/internal/adapters/http/api"
	"github.com/phillpas/ktm/internal/adapters/logfile"
	"github.com/phillpas/ktm/internal/adapters/report"
	service "github.com/phillpas/ktm/internal/app"
	"github.com/phillpas/ktm/internal/domain/model"
	"github.com/phillpas/ktm/internal/domain/template"
	"github.com/phillpas/ktm/internal/replay"
	"github.com/phillpas/ktm/pkg/logger"
)

func init() {
	if err := logger.Init(logger.WithOutput(&bytes.Buffer{})); err != nil {
		panic(err)
	}
}

// writeLog writes n straight paths of 11 points; path i moves 2*(i+1) per
// sample and its target is its endpoint.
func writeLog(t *testing.T, dir string, n int) string {
	t.Helper()
	file := filepath.Join(dir, "Log_2D.csv")
	f, err := os.Create(file)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	paths := make([]logfile.Path, n)
	for i := range paths {
		pts := make([]model.TimedPoint, 11)
		for j := range pts {
			pts[j] = model.TimedPoint{X: float64(j * 2 * (i + 1)), T: int64(j) * 50}
		}
		paths[i] = logfile.Path{ID: i, Target: model.Point{X: float64(20 * (i + 1))}, Points: pts}
	}
	if err := logfile.Write(f, paths); err != nil {
		t.Fatal(err)
	}
	return file
}

func startServer(t *testing.T, logPath string) *httptest.Server {
	t.Helper()
	svc := service.New(
		service.WithLibraryPath(logPath),
		service.WithTemplateConfig(template.Config{Hertz: 20, KernelStdDev: 2}),
	)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(svc.Stop)

	mux := http.NewServeMux()
	api.NewServer(svc).Register(context.Background(), mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRun(t *testing.T) {
	Convey("Given a service whose library is the replayed log", t, func() {
		dir := t.TempDir()
		logPath := writeLog(t, dir, 4)
		srv := startServer(t, logPath)
		tracePath := filepath.Join(dir, "trace.csv")

		config := &replay.Config{
			BaseURL:   srv.URL,
			LogPath:   logPath,
			TracePath: tracePath,
			Workers:   2,
			HitRadius: replay.DefaultHitRadius,
			Timeout:   5 * time.Second,
		}

		Convey("When replaying every path", func() {
			stats, err := replay.Run(context.Background(), config)

			Convey("Then every point is sent and predicted on", func() {
				So(err, ShouldBeNil)
				So(stats.Paths, ShouldEqual, 4)
				So(stats.Points, ShouldEqual, 44)
				So(stats.Rejected, ShouldEqual, 0)
				So(stats.Failed, ShouldEqual, 0)
				So(stats.Predictions, ShouldEqual, 40)
			})

			Convey("Then each path's last prediction hits its own endpoint", func() {
				So(stats.FinalHits, ShouldEqual, 4)
			})

			Convey("Then the trace holds one row per prediction", func() {
				f, err := os.Open(tracePath)
				So(err, ShouldBeNil)
				defer f.Close()
				recs, err := csv.NewReader(f).ReadAll()
				So(err, ShouldBeNil)
				So(recs[0], ShouldResemble, report.TraceHeader)
				So(len(recs), ShouldEqual, 41)
				So(recs[1][0], ShouldEqual, "2")
				So(recs[10][0], ShouldEqual, "11")
				So(recs[10][8], ShouldEqual, "20")
			})
		})

		Convey("When replaying with 1D predictions at high speed", func() {
			config.Mode = "1d"
			config.Speed = 1000
			config.TracePath = ""
			stats, err := replay.Run(context.Background(), config)

			Convey("Then it still completes", func() {
				So(err, ShouldBeNil)
				So(stats.Predictions, ShouldEqual, 40)
			})
		})

		Convey("When the mode is invalid", func() {
			config.Mode = "3d"
			stats, err := replay.Run(context.Background(), config)

			Convey("Then every path fails", func() {
				So(errors.Is(err, replay.ErrAllFailed), ShouldBeTrue)
				So(stats.Failed, ShouldEqual, 4)
			})
		})
	})

	Convey("Given an unhealthy service", t, func() {
		dir := t.TempDir()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := replay.Run(context.Background(), &replay.Config{
			BaseURL: srv.URL,
			LogPath: writeLog(t, dir, 1),
			Timeout: time.Second,
		})

		Convey("Then the run stops at the health check", func() {
			So(err, ShouldNotBeNil)
			var se *replay.StatusError
			So(errors.As(err, &se), ShouldBeTrue)
			So(se.Status, ShouldEqual, http.StatusServiceUnavailable)
		})
	})

	Convey("Given a missing log", t, func() {
		_, err := replay.Run(context.Background(), &replay.Config{
			BaseURL: "http://127.0.0.1:0",
			LogPath: filepath.Join(t.TempDir(), "missing.csv"),
		})

		Convey("Then it fails before contacting the service", func() {
			So(errors.Is(err, os.ErrNotExist), ShouldBeTrue)
		})
	})
}
