package qrecover

import (
	"context"
	"errors"
	"testing"

	"github.com/davecgh/go-spew/spew"
	. "github.com/smartystreets/goconvey/convey"
)

func TestStateVector(t *testing.T) {
	Convey("Given a state-vector executor", t, func() {
		sv := NewStateVector(42)
		ctx := context.Background()

		Convey("A GHZ block only yields all-zero or all-one blocks", func() {
			qc, err := Compose(10, ghzBlock(), 3, true)
			So(err, ShouldBeNil)

			counts, err := sv.Execute(ctx, qc, 4000)
			So(err, ShouldBeNil)
			So(counts.Total(), ShouldEqual, 4000)
			So(len(counts), ShouldEqual, 2)

			zeros, ones := counts["0000000000"], counts["0000111000"]
			So(zeros+ones, ShouldEqual, 4000)
			So(zeros, ShouldBeBetween, 1800, 2200)
			if zeros < 1800 || zeros > 2200 {
				t.Log(spew.Sdump(counts))
			}
		})

		Convey("X on qubit 0 sets the rightmost bit", func() {
			block, err := NewGateBlock("x", 1, []Operation{{Name: "x", Qubits: []int{0}}})
			So(err, ShouldBeNil)

			qc, err := Compose(3, block, 0, true)
			So(err, ShouldBeNil)

			counts, err := sv.Execute(ctx, qc, 10)
			So(err, ShouldBeNil)
			So(counts, ShouldResemble, Distribution{"001": 10})
		})

		Convey("Swap moves an excitation between qubits", func() {
			block, err := NewGateBlock("swap", 3, []Operation{
				{Name: "x", Qubits: []int{0}},
				{Name: "swap", Qubits: []int{0, 2}},
			})
			So(err, ShouldBeNil)

			qc, err := Compose(3, block, 0, true)
			So(err, ShouldBeNil)

			counts, err := sv.Execute(ctx, qc, 5)
			So(err, ShouldBeNil)
			So(counts, ShouldResemble, Distribution{"100": 5})
		})

		Convey("Unmeasured circuits are refused", func() {
			qc, err := Compose(4, ghzBlock(), 0, false)
			So(err, ShouldBeNil)

			_, err = sv.Execute(ctx, qc, 10)
			So(errors.Is(err, ErrNotMeasured), ShouldBeTrue)
			So(errors.Is(err, ErrExecution), ShouldBeTrue)
		})

		Convey("Instructions outside the instruction set are incompatible", func() {
			qc, err := Compose(4, ghzBlock(), 0, false)
			So(err, ShouldBeNil)
			qc.Ops = append(qc.Ops, Operation{Name: "warp", Qubits: []int{3}})
			qc.MeasureAll()

			_, err = sv.Execute(ctx, qc, 10)

			var execErr *ExecutionError
			So(errors.As(err, &execErr), ShouldBeTrue)
			So(execErr.Backend, ShouldEqual, "statevector")
			So(errors.Is(err, ErrIncompatible), ShouldBeTrue)
		})

		Convey("Registers beyond MaxQubits are incompatible", func() {
			sv.MaxQubits = 4
			qc, err := Compose(5, ghzBlock(), 0, true)
			So(err, ShouldBeNil)

			_, err = sv.Execute(ctx, qc, 10)
			So(errors.Is(err, ErrIncompatible), ShouldBeTrue)
		})

		Convey("Non-positive shot counts are refused", func() {
			qc, err := Compose(3, ghzBlock(), 0, true)
			So(err, ShouldBeNil)

			_, err = sv.Execute(ctx, qc, 0)
			So(errors.Is(err, ErrInvalidShots), ShouldBeTrue)
		})
	})
}

func TestCatalogOnStateVector(t *testing.T) {
	Convey("Given every catalog block", t, func() {
		sv := NewStateVector(7)
		const shots = 20000

		for _, name := range CatalogNames() {
			entry, err := Lookup(name)
			So(err, ShouldBeNil)

			qc, err := Compose(entry.Block.Width(), entry.Block, 0, true)
			So(err, ShouldBeNil)

			counts, err := sv.Execute(context.Background(), qc, shots)
			So(err, ShouldBeNil)

			Convey("The "+name+" block samples its expected distribution", func() {
				tvd, err := TotalVariationDistance(counts, entry.ExpectedCounts(shots), shots)
				So(err, ShouldBeNil)
				So(tvd, ShouldBeLessThan, 0.03)
			})
		}
	})
}
