package qrecover

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLookup(t *testing.T) {
	Convey("Given the built-in catalog", t, func() {
		So(CatalogNames(), ShouldResemble, []string{"ghz", "grover", "qft", "wstate"})

		for _, name := range CatalogNames() {
			entry, err := Lookup(name)

			So(err, ShouldBeNil)
			So(entry.Block.Width(), ShouldEqual, 3)

			var total float64
			for key, p := range entry.Expected {
				So(len(key), ShouldEqual, 3)
				total += p
			}
			So(math.Abs(total-1), ShouldBeLessThan, 1e-9)
			So(entry.ExpectedCounts(5000).Total(), ShouldEqual, 5000)
		}

		Convey("Names are case insensitive", func() {
			entry, err := Lookup(" GHZ ")
			So(err, ShouldBeNil)
			So(entry.Name, ShouldEqual, "ghz")
		})

		Convey("Unknown names are rejected", func() {
			_, err := Lookup("teleport")
			So(errors.Is(err, ErrUnknownGate), ShouldBeTrue)
		})

		Convey("Entries do not share their expected tables", func() {
			a, err := Lookup("ghz")
			So(err, ShouldBeNil)
			a.Expected["000"] = 0

			b, err := Lookup("ghz")
			So(err, ShouldBeNil)
			So(b.Expected["000"], ShouldEqual, 0.5)
		})
	})
}

func TestParseExpected(t *testing.T) {
	Convey("Given expected distributions as text", t, func() {
		Convey("Pairs parse into probabilities", func() {
			probs, err := ParseExpected("00=0.5, 11=1/2", 2)

			So(err, ShouldBeNil)
			So(probs, ShouldResemble, map[string]float64{"00": 0.5, "11": 0.5})
		})

		Convey("Keys of the wrong width are rejected", func() {
			_, err := ParseExpected("000=1", 2)
			So(errors.Is(err, ErrKeyWidth), ShouldBeTrue)
		})

		Convey("Probabilities must sum to one", func() {
			_, err := ParseExpected("00=0.5", 2)
			So(err, ShouldNotBeNil)
		})

		Convey("Malformed pairs are rejected", func() {
			_, err := ParseExpected("00", 2)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestResolveGate(t *testing.T) {
	Convey("Given a circuit directory", t, func() {
		dir := t.TempDir()
		So(os.WriteFile(filepath.Join(dir, "bell.qasm"), []byte(bellQASM), 0o644), ShouldBeNil)
		So(os.WriteFile(filepath.Join(dir, "ghz.qasm"), []byte(bellQASM), 0o644), ShouldBeNil)

		Convey("Catalog names resolve without a directory", func() {
			entry, err := ResolveGate("wstate", "", "")

			So(err, ShouldBeNil)
			So(entry.Expected, ShouldContainKey, "001")
		})

		Convey("Files in the directory take an explicit expected distribution", func() {
			entry, err := ResolveGate("bell", dir, "00=0.5,11=0.5")

			So(err, ShouldBeNil)
			So(entry.Block.Width(), ShouldEqual, 2)
			So(entry.Expected["11"], ShouldEqual, 0.5)
		})

		Convey("Files without an expected distribution are rejected", func() {
			_, err := ResolveGate(filepath.Join(dir, "bell.qasm"), "", "")
			So(err, ShouldNotBeNil)
		})

		Convey("A file shadowing a catalog name of another width is rejected without one", func() {
			_, err := ResolveGate("ghz", dir, "")
			So(err, ShouldNotBeNil)
		})

		Convey("Missing files are not found", func() {
			_, err := ResolveGate(filepath.Join(dir, "gone.qasm"), "", "0=1")
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
		})
	})
}
