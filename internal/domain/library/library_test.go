package library_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/phillpas/ktm/internal/adapters/logfile"
	"github.com/phillpas/ktm/internal/domain/library"
	"github.com/phillpas/ktm/internal/domain/model"
	"github.com/phillpas/ktm/internal/domain/series"
	"github.com/phillpas/ktm/internal/domain/template"
)

var testConfig = template.Config{Hertz: 20, KernelStdDev: 2}

// straight returns n points along +x, dx apart, every 50 ms.
func straight(n int, dx float64) []model.TimedPoint {
	pts := make([]model.TimedPoint, n)
	for i := range pts {
		pts[i] = model.TimedPoint{X: float64(i) * dx, T: int64(i) * 50}
	}
	return pts
}

func mustTemplate(id int, pts []model.TimedPoint) *template.Template {
	t, err := template.New(id, pts, testConfig)
	if err != nil {
		panic(err)
	}
	return t
}

func writeLog(t *testing.T, paths []logfile.Path) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "Log_2D.csv")
	f, err := os.Create(file)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := logfile.Write(f, paths); err != nil {
		t.Fatal(err)
	}
	return file
}

func TestLoad(t *testing.T) {
	convey.Convey("Given a movement log with three paths", t, func() {
		ctx := context.Background()
		overshoot := append(straight(6, 10), model.TimedPoint{X: 40, T: 300}, model.TimedPoint{X: 45, T: 350})
		file := writeLog(t, []logfile.Path{
			{ID: 12, Points: straight(11, 10)},
			{ID: 4, Points: overshoot, Target: model.Point{X: 50}},
			{ID: 9, IsError: true, Points: straight(11, 20)},
		})

		convey.Convey("When loaded", func() {
			lib, err := library.Load(ctx, file, library.WithConfig(testConfig))

			convey.Convey("Then there is one template per path in first-appearance order", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(lib.Len(), convey.ShouldEqual, 3)
				convey.So(lib.At(0).ID(), convey.ShouldEqual, 12)
				convey.So(lib.At(1).ID(), convey.ShouldEqual, 4)
				convey.So(lib.At(2).ID(), convey.ShouldEqual, 9)
				convey.So(lib.At(0).NumPoints(), convey.ShouldEqual, 11)
				convey.So(lib.At(1).Target(), convey.ShouldResemble, model.Point{X: 50})
			})

			convey.Convey("Then the overshoot filter has run on every template", func() {
				convey.So(lib.At(1).IsOvershoot(), convey.ShouldBeTrue)
				convey.So(len(lib.At(1).FilteredTail()), convey.ShouldEqual, 2)
			})

			convey.Convey("Then the summary counts flags and averages distance", func() {
				s := lib.Summary()
				convey.So(s.Templates, convey.ShouldEqual, 3)
				convey.So(s.Overshoots, convey.ShouldEqual, 1)
				convey.So(s.Errors, convey.ShouldEqual, 1)
				convey.So(s.MeanDistance, convey.ShouldAlmostEqual, (100.0+45+200)/3, 1e-9)
				convey.So(s.Hertz, convey.ShouldEqual, 20)
				convey.So(s.Mode, convey.ShouldEqual, "2d")
			})
		})

		convey.Convey("When loaded with a target size and a seed", func() {
			a, errA := library.LoadSized(ctx, file, 2, library.WithConfig(testConfig), library.WithSeed(42))
			b, errB := library.LoadSized(ctx, file, 2, library.WithConfig(testConfig), library.WithSeed(42))
			all, errAll := library.LoadSized(ctx, file, 10, library.WithConfig(testConfig))

			convey.Convey("Then exactly that many remain, repeatably", func() {
				convey.So(errA, convey.ShouldBeNil)
				convey.So(errB, convey.ShouldBeNil)
				convey.So(errAll, convey.ShouldBeNil)
				convey.So(a.Len(), convey.ShouldEqual, 2)
				convey.So(a.At(0).ID(), convey.ShouldEqual, b.At(0).ID())
				convey.So(a.At(1).ID(), convey.ShouldEqual, b.At(1).ID())
				convey.So(all.Len(), convey.ShouldEqual, 3)
			})
		})
	})

	convey.Convey("Given logs that cannot become a library", t, func() {
		ctx := context.Background()

		convey.Convey("When a path collapses below two points after admission", func() {
			file := writeLog(t, []logfile.Path{
				{ID: 1, Points: straight(5, 10)},
				{ID: 2, Points: []model.TimedPoint{{X: 0, T: 0}, {X: 0.2, T: 10}}},
			})
			lib, err := library.Load(ctx, file)

			convey.Convey("Then the whole load fails", func() {
				convey.So(errors.Is(err, library.ErrMalformedLog), convey.ShouldBeTrue)
				convey.So(errors.Is(err, template.ErrInsufficientPoints), convey.ShouldBeTrue)
				convey.So(lib, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the file does not exist", func() {
			_, err := library.Load(ctx, filepath.Join(t.TempDir(), "missing.csv"))
			convey.So(errors.Is(err, os.ErrNotExist), convey.ShouldBeTrue)
		})
	})
}

func TestRoundTripAdmission(t *testing.T) {
	convey.Convey("Given a log path of N points with near-duplicates", t, func() {
		pts := straight(10, 10)
		dupes := append([]model.TimedPoint{}, pts[:5]...)
		dupes = append(dupes, model.TimedPoint{X: 40.5, T: 210}, model.TimedPoint{X: 45, T: 200})
		dupes = append(dupes, pts[5:]...)
		file := writeLog(t, []logfile.Path{{ID: 1, Points: dupes}})

		convey.Convey("Then the template keeps exactly the admitted points", func() {
			lib, err := library.Load(context.Background(), file, library.WithConfig(testConfig))
			convey.So(err, convey.ShouldBeNil)
			convey.So(lib.Len(), convey.ShouldEqual, 1)
			convey.So(lib.At(0).NumPoints(), convey.ShouldEqual, 10)
			convey.So(lib.At(0).RawPoints(), convey.ShouldResemble, model.AdmitAll(dupes))
		})
	})
}

func TestNearestNeighbor(t *testing.T) {
	convey.Convey("Given a library of slow, fast and a duplicate fast template", t, func() {
		slow := mustTemplate(1, straight(21, 5))
		fast := mustTemplate(2, straight(21, 20))
		fastAgain := mustTemplate(3, straight(21, 20))
		lib, err := library.New([]*template.Template{slow, fast, fastAgain})
		convey.So(err, convey.ShouldBeNil)

		query := series.Smooth(series.VelocityProfile(straight(8, 20), testConfig.Hertz), lib.Kernel())

		convey.Convey("Then the closest profile wins and ties go to the first index", func() {
			m, err := lib.NearestNeighbor(query)
			convey.So(err, convey.ShouldBeNil)
			convey.So(m.Index, convey.ShouldEqual, 1)
			convey.So(m.Template.ID(), convey.ShouldEqual, 2)
			convey.So(m.Score, convey.ShouldAlmostEqual, 0, 1e-12)
		})

		convey.Convey("Then repeated searches agree", func() {
			a, _ := lib.NearestNeighbor(query)
			b, _ := lib.NearestNeighbor(query)
			convey.So(a, convey.ShouldResemble, b)
		})

		convey.Convey("Then an empty query ties everywhere and picks index 0", func() {
			m, err := lib.NearestNeighbor(nil)
			convey.So(err, convey.ShouldBeNil)
			convey.So(m.Index, convey.ShouldEqual, 0)
		})
	})

	convey.Convey("Given an empty library", t, func() {
		lib, err := library.New(nil)
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("Then search fails explicitly", func() {
			_, err := lib.NearestNeighbor([]model.VelocitySample{{T: 0, V: 1}})
			convey.So(errors.Is(err, library.ErrEmptyLibrary), convey.ShouldBeTrue)
		})
	})

	convey.Convey("Given templates built with different configs", t, func() {
		a := mustTemplate(1, straight(5, 10))
		b, _ := template.New(2, straight(5, 10), template.Config{Hertz: 100, KernelStdDev: 2})

		convey.Convey("Then New refuses to mix them", func() {
			_, err := library.New([]*template.Template{a, b})
			convey.So(errors.Is(err, library.ErrConfigMismatch), convey.ShouldBeTrue)
		})
	})
}
