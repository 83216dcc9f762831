// Command netmon-merge performs a k-way merge of event files sorted by
// timestamp into a single output file (spec §6, "Merger": `in1 in2 [...
// inN] out`, N >= 2, out must not already exist).
package main

import (
	"fmt"
	"os"

	"github.com/guidoreina/netmon/eventfile"
)

func main() {
	if len(os.Args) < 4 {
		fail(fmt.Sprintf("usage: %s in1 in2 [... inN] out", os.Args[0]))
	}

	args := os.Args[1:]
	infiles := args[:len(args)-1]
	outfile := args[len(args)-1]

	if err := eventfile.Merge(infiles, outfile); err != nil {
		fail(err.Error())
	}
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, "netmon-merge:", msg)
	os.Exit(1)
}
