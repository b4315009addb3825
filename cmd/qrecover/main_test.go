package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestRun(t *testing.T) {
	Convey("Given the command", t, func() {
		var stdout, stderr bytes.Buffer

		Convey("--list prints the catalog", func() {
			So(run([]string{"--list"}, &stdout, &stderr), ShouldEqual, 0)
			So(stdout.String(), ShouldContainSubstring, "ghz")
			So(stdout.String(), ShouldContainSubstring, "wstate")
		})

		Convey("An unknown gate exits 1 with a hint", func() {
			So(run([]string{"teleport"}, &stdout, &stderr), ShouldEqual, 1)
			So(stderr.String(), ShouldContainSubstring, "qrecover --list")
		})

		Convey("An invalid setting names its flag", func() {
			So(run([]string{"--batch-size=0"}, &stdout, &stderr), ShouldEqual, 1)
			So(stderr.String(), ShouldContainSubstring, "hint: check --batch-size")
		})

		Convey("An unknown flag is a usage error", func() {
			So(run([]string{"--sideways"}, &stdout, &stderr), ShouldEqual, 2)
		})

		Convey("A small run reports every variant and writes its chart", func() {
			dir := t.TempDir()
			args := []string{
				"--qubits=4", "--shots=40", "--batch-size=10", "--canonical-offset=0",
				"--workers=2", "--seed=7", "--chart=" + filepath.Join(dir, "{gate}.svg"), "ghz",
			}

			So(run(args, &stdout, &stderr), ShouldEqual, 0)

			out := stdout.String()
			So(out, ShouldContainSubstring, "=== Baseline Counts ===")
			So(out, ShouldContainSubstring, "=== Static Obfuscation Recovered Counts ===")
			So(out, ShouldContainSubstring, "=== Dynamic Obfuscation Recovered Counts ===")
			So(out, ShouldContainSubstring, "Analysis Results: ghz")

			_, err := os.Stat(filepath.Join(dir, "ghz.svg"))
			So(err, ShouldBeNil)
		})
	})
}
