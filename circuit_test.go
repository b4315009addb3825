package qrecover

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func ghzBlock() *GateBlock {
	block, err := NewGateBlock("ghz", 3, []Operation{
		{Name: "h", Qubits: []int{0}},
		{Name: "cx", Qubits: []int{0, 1}},
		{Name: "cx", Qubits: []int{1, 2}},
	})
	if err != nil {
		panic(err)
	}
	return block
}

func TestCompose(t *testing.T) {
	Convey("Given a 3-qubit block", t, func() {
		block := ghzBlock()

		Convey("Placing it at offset 3 of 10 remaps its qubits", func() {
			qc, err := Compose(10, block, 3, false)

			So(err, ShouldBeNil)
			So(qc.Qubits, ShouldEqual, 10)
			So(qc.Clbits, ShouldEqual, 0)
			So(qc.Measured, ShouldBeFalse)
			So(qc.Ops[0].Qubits, ShouldResemble, []int{3})
			So(qc.Ops[1].Qubits, ShouldResemble, []int{3, 4})
			So(qc.Ops[2].Qubits, ShouldResemble, []int{4, 5})
		})

		Convey("Measuring allocates one classical bit per qubit as the last step", func() {
			qc, err := Compose(10, block, 0, true)

			So(err, ShouldBeNil)
			So(qc.Clbits, ShouldEqual, 10)
			So(qc.Measured, ShouldBeTrue)
			So(qc.Gates(), ShouldEqual, 3)
			So(len(qc.Ops), ShouldEqual, 13)
			So(qc.Ops[len(qc.Ops)-1], ShouldResemble, Operation{Name: "measure", Qubits: []int{9}})
		})

		Convey("The last valid offset is N-w", func() {
			_, err := Compose(10, block, 7, true)
			So(err, ShouldBeNil)
		})

		Convey("Offsets past N-w fail with a placement error", func() {
			_, err := Compose(10, block, 8, true)

			var placementErr *PlacementError
			So(errors.As(err, &placementErr), ShouldBeTrue)
			So(placementErr.Placement, ShouldResemble, Placement{Qubits: 10, Offset: 8, Width: 3})
			So(errors.Is(err, ErrInvalidPlacement), ShouldBeTrue)
		})

		Convey("Negative offsets fail", func() {
			_, err := Compose(10, block, -1, true)
			So(errors.Is(err, ErrInvalidPlacement), ShouldBeTrue)
		})

		Convey("The block is left untouched", func() {
			before := block.Operations()
			_, err := Compose(10, block, 5, true)

			So(err, ShouldBeNil)
			So(block.Operations(), ShouldResemble, before)
		})
	})
}

func TestPlacement(t *testing.T) {
	Convey("Given a block at offset 3 of 10", t, func() {
		p := Placement{Qubits: 10, Offset: 3, Width: 3}

		Convey("The filler ranges surround the window", func() {
			So(p.Before(), ShouldResemble, []int{0, 1, 2})
			So(p.After(), ShouldResemble, []int{6, 7, 8, 9})
		})

		Convey("Edge placements leave one side empty", func() {
			So(Placement{Qubits: 10, Offset: 0, Width: 3}.Before(), ShouldBeEmpty)
			So(Placement{Qubits: 10, Offset: 7, Width: 3}.After(), ShouldBeEmpty)
		})
	})
}

func TestComposeFragment(t *testing.T) {
	Convey("Given a composed, unmeasured circuit", t, func() {
		qc, err := Compose(5, ghzBlock(), 1, false)
		So(err, ShouldBeNil)

		frag := &Fragment{Qubits: 2, Ops: []Operation{{Name: "cx", Qubits: []int{1, 0}}}}

		Convey("A fragment maps onto the given qubits", func() {
			So(qc.ComposeFragment(frag, []int{0, 4}), ShouldBeNil)
			So(qc.Ops[len(qc.Ops)-1].Qubits, ShouldResemble, []int{4, 0})
		})

		Convey("A width mismatch is rejected", func() {
			err := qc.ComposeFragment(frag, []int{0})
			So(errors.Is(err, ErrInvalidWidth), ShouldBeTrue)
		})

		Convey("Nothing may follow the measurement", func() {
			qc.MeasureAll()
			err := qc.ComposeFragment(frag, []int{0, 4})
			So(errors.Is(err, ErrMeasured), ShouldBeTrue)
		})
	})
}

func TestDepth(t *testing.T) {
	Convey("Given a GHZ circuit", t, func() {
		qc, err := Compose(3, ghzBlock(), 0, false)
		So(err, ShouldBeNil)

		Convey("Its depth is the chain of dependent gates", func() {
			So(qc.Depth(), ShouldEqual, 3)
		})

		Convey("Measurement adds one layer", func() {
			qc.MeasureAll()
			So(qc.Depth(), ShouldEqual, 4)
		})
	})
}
