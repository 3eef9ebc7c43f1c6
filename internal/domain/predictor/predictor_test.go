package predictor_test

import (
	"errors"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/phillpas/ktm/internal/domain/library"
	"github.com/phillpas/ktm/internal/domain/model"
	"github.com/phillpas/ktm/internal/domain/predictor"
	"github.com/phillpas/ktm/internal/domain/template"
)

var cfg = template.Config{Hertz: 20, KernelStdDev: 3}

func singleTemplateLibrary() *library.Library {
	pts := make([]model.TimedPoint, 11)
	for i := range pts {
		pts[i] = model.TimedPoint{X: float64(i) * 10, T: int64(i) * 50}
	}
	t, err := template.New(5, pts, cfg)
	if err != nil {
		panic(err)
	}
	lib, err := library.New([]*template.Template{t})
	if err != nil {
		panic(err)
	}
	return lib
}

// feed adds n points from start, stepping (dx, dy) every 50 ms.
func feed(p *predictor.Predictor, start model.Point, dx, dy float64, n int) {
	for i := 0; i < n; i++ {
		p.AddPoint(model.TimedPoint{X: start.X + float64(i)*dx, Y: start.Y + float64(i)*dy, T: 1000 + int64(i)*50})
	}
}

func TestPredict(t *testing.T) {
	lib := singleTemplateLibrary()

	convey.Convey("Given a library with one 100-unit template along +x", t, func() {
		p := predictor.New(cfg)

		convey.Convey("When a movement heads toward +x", func() {
			start := model.Point{X: 200, Y: 300}
			feed(p, start, 10, 0, 5)

			convey.Convey("Then 1D predicts 100 units along +x from the start", func() {
				pr, err := p.Predict1D(lib)
				convey.So(err, convey.ShouldBeNil)
				convey.So(pr.Point.X, convey.ShouldAlmostEqual, 300, 1e-9)
				convey.So(pr.Point.Y, convey.ShouldEqual, 300)
				convey.So(pr.Distance, convey.ShouldEqual, 100)
				convey.So(pr.WinnerID, convey.ShouldEqual, 5)
				convey.So(pr.WinnerIndex, convey.ShouldEqual, 0)
				convey.So(pr.NumPoints, convey.ShouldEqual, 5)
				convey.So(pr.Time, convey.ShouldAlmostEqual, 150, 1e-9)
			})
		})

		convey.Convey("When a movement heads toward -x", func() {
			feed(p, model.Point{X: 500, Y: 100}, -10, 0, 4)

			convey.Convey("Then 1D flips the distance", func() {
				pr, err := p.Predict(lib, model.Mode1D)
				convey.So(err, convey.ShouldBeNil)
				convey.So(pr.Point.X, convey.ShouldAlmostEqual, 400, 1e-9)
				convey.So(pr.Distance, convey.ShouldEqual, -100)
			})
		})

		convey.Convey("When a movement heads along a 3-4-5 diagonal", func() {
			feed(p, model.Point{}, 6, 8, 5)

			convey.Convey("Then 2D projects along the observed chord", func() {
				pr, err := p.Predict2D(lib)
				convey.So(err, convey.ShouldBeNil)
				convey.So(pr.Point.X, convey.ShouldAlmostEqual, 60, 1e-9)
				convey.So(pr.Point.Y, convey.ShouldAlmostEqual, 80, 1e-9)
				convey.So(pr.Distance, convey.ShouldEqual, 100)
			})
		})

		convey.Convey("When only one point has arrived", func() {
			p.AddPoint(model.TimedPoint{X: 10, Y: 10, T: 0})

			convey.Convey("Then prediction fails instead of returning a zero point", func() {
				pr, err := p.Predict1D(lib)
				convey.So(errors.Is(err, predictor.ErrInsufficientData), convey.ShouldBeTrue)
				convey.So(pr, convey.ShouldResemble, predictor.Prediction{})
				_, err = p.Predict2D(lib)
				convey.So(errors.Is(err, predictor.ErrInsufficientData), convey.ShouldBeTrue)
				convey.So(p.Trace(), convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When the library resamples differently", func() {
			feed(p, model.Point{}, 10, 0, 3)
			other := predictor.New(template.Config{Hertz: 100, KernelStdDev: 3})
			feed(other, model.Point{}, 10, 0, 3)

			convey.Convey("Then prediction is refused", func() {
				_, err := other.Predict1D(lib)
				convey.So(errors.Is(err, predictor.ErrIncompatibleLibrary), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the library is empty", func() {
			empty, _ := library.New(nil, library.WithConfig(cfg))
			feed(p, model.Point{}, 10, 0, 3)

			convey.Convey("Then the library error surfaces", func() {
				_, err := p.Predict2D(empty)
				convey.So(errors.Is(err, library.ErrEmptyLibrary), convey.ShouldBeTrue)
			})
		})
	})
}

func TestAddPoint(t *testing.T) {
	convey.Convey("Given a predictor", t, func() {
		p := predictor.New(cfg)

		convey.Convey("When samples repeat or barely move", func() {
			convey.So(p.AddPoint(model.TimedPoint{X: 0, T: 0}), convey.ShouldBeTrue)
			convey.So(p.AddPoint(model.TimedPoint{X: 0.5, T: 16}), convey.ShouldBeFalse)
			convey.So(p.AddPoint(model.TimedPoint{X: 5, T: 0}), convey.ShouldBeFalse)
			convey.So(p.AddPoint(model.TimedPoint{X: 5, T: 16}), convey.ShouldBeTrue)

			convey.Convey("Then only admitted points are buffered", func() {
				convey.So(p.NumPoints(), convey.ShouldEqual, 2)
				convey.So(p.Distance(), convey.ShouldEqual, 5)
				convey.So(p.Points()[1], convey.ShouldResemble, model.TimedPoint{X: 5, T: 16})
			})
		})

		convey.Convey("When points keep arriving", func() {
			feed(p, model.Point{}, 10, 0, 9)

			convey.Convey("Then the profile is recomputed over the whole movement", func() {
				convey.So(len(p.Smoothed()), convey.ShouldEqual, 8)
				convey.So(p.Smoothed()[0].T, convey.ShouldEqual, 0)
			})
		})
	})
}

func TestTraceAndClear(t *testing.T) {
	lib := singleTemplateLibrary()

	convey.Convey("Given a predictor that has made predictions", t, func() {
		p := predictor.New(cfg)
		feed(p, model.Point{X: 100, Y: 100}, 10, 0, 3)
		_, _ = p.Predict1D(lib)
		p.AddPoint(model.TimedPoint{X: 130, Y: 100, T: 1150})
		_, _ = p.Predict1D(lib)

		convey.Convey("Then each prediction added a trace row", func() {
			tr := p.Trace()
			convey.So(len(tr), convey.ShouldEqual, 2)
			convey.So(tr[0].NumPoints, convey.ShouldEqual, 3)
			convey.So(tr[1].NumPoints, convey.ShouldEqual, 4)
			convey.So(tr[1].Raw, convey.ShouldResemble, model.Point{X: 130, Y: 100})
			convey.So(tr[1].Predicted, convey.ShouldResemble, model.Point{X: 200, Y: 100})
			convey.So(tr[1].WinnerID, convey.ShouldEqual, 5)
		})

		convey.Convey("When the trial completes", func() {
			rows := p.CompleteTrial(model.Point{X: 198, Y: 101}, model.Point{X: 200, Y: 100})

			convey.Convey("Then click and target are stamped on every row", func() {
				for _, r := range rows {
					convey.So(r.Actual, convey.ShouldResemble, model.Point{X: 198, Y: 101})
					convey.So(r.Target, convey.ShouldResemble, model.Point{X: 200, Y: 100})
					convey.So(r.Seq, convey.ShouldEqual, 0)
				}
			})
		})

		convey.Convey("When cleared", func() {
			p.Clear()

			convey.Convey("Then state resets and the sequence advances", func() {
				convey.So(p.NumPoints(), convey.ShouldEqual, 0)
				convey.So(p.Smoothed(), convey.ShouldBeEmpty)
				convey.So(p.Trace(), convey.ShouldBeEmpty)
				convey.So(p.Sequence(), convey.ShouldEqual, 1)
				_, err := p.Predict2D(lib)
				convey.So(errors.Is(err, predictor.ErrInsufficientData), convey.ShouldBeTrue)
			})
		})
	})
}
