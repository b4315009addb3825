package qrecover

import (
	"errors"
	"math/rand/v2"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestRandomFiller(t *testing.T) {
	Convey("Given the default random filler", t, func() {
		filler, err := NewRandomFiller(2)
		So(err, ShouldBeNil)

		rng := rand.New(rand.NewPCG(1, 2))

		Convey("Every layer touches every qubit exactly once", func() {
			frag, err := filler.Generate(4, 3, rng)
			So(err, ShouldBeNil)
			So(frag.Qubits, ShouldEqual, 4)

			touched := 0
			for _, op := range frag.Ops {
				So(len(op.Qubits), ShouldBeBetweenOrEqual, 1, 2)
				So(checkOperation(op, 4), ShouldBeNil)
				touched += len(op.Qubits)
			}
			So(touched, ShouldEqual, 4*3)
		})

		Convey("The same seed gives the same fragment", func() {
			a, err := filler.Generate(3, 4, rand.New(rand.NewPCG(7, 7)))
			So(err, ShouldBeNil)
			b, err := filler.Generate(3, 4, rand.New(rand.NewPCG(7, 7)))
			So(err, ShouldBeNil)

			So(a, ShouldResemble, b)
		})

		Convey("A single qubit only gets one-qubit gates", func() {
			frag, err := filler.Generate(1, 5, rng)
			So(err, ShouldBeNil)
			So(len(frag.Ops), ShouldEqual, 5)
		})

		Convey("Bad dimensions are rejected", func() {
			_, err := filler.Generate(0, 4, rng)
			So(errors.Is(err, ErrInvalidWidth), ShouldBeTrue)

			_, err = filler.Generate(3, 0, rng)
			So(errors.Is(err, ErrInvalidDepth), ShouldBeTrue)
		})
	})

	Convey("Given a restricted gate library", t, func() {
		Convey("Gates above MaxOperands are left out", func() {
			filler, err := NewRandomFiller(1, "h", "cx")
			So(err, ShouldBeNil)

			frag, err := filler.Generate(3, 2, rand.New(rand.NewPCG(3, 4)))
			So(err, ShouldBeNil)
			for _, op := range frag.Ops {
				So(op.Name, ShouldEqual, "h")
			}
		})

		Convey("A library without one-qubit gates is rejected", func() {
			_, err := NewRandomFiller(2, "cx")
			So(errors.Is(err, ErrInvalidGate), ShouldBeTrue)
		})

		Convey("Measurements cannot be filler", func() {
			_, err := NewRandomFiller(2, "h", "measure")
			So(errors.Is(err, ErrInvalidGate), ShouldBeTrue)
		})
	})
}
