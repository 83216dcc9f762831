// Command netmon-sort reorders the tcp_end events in an event file by a
// chosen key (spec §6, "Sorter"). Both -in and -out are mandatory.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/guidoreina/netmon/eventfile"
)

func main() {
	var (
		in      = flag.String("in", "", "input event file (required)")
		out     = flag.String("out", "", "output event file (required)")
		compare = flag.String("compare", "duration", `sort key: "duration", "transferred-client", "transferred-server" or "transferred"`)
		order   = flag.String("order", "ascending", `"ascending" or "descending"`)
	)
	flag.Parse()

	if *in == "" || *out == "" {
		fail("-in and -out are both required")
	}

	key, err := parseKey(*compare)
	if err != nil {
		fail(err.Error())
	}

	ord, err := parseOrder(*order)
	if err != nil {
		fail(err.Error())
	}

	if err := eventfile.Sort(*in, *out, key, ord); err != nil {
		fail(err.Error())
	}
}

func parseKey(s string) (eventfile.SortKey, error) {
	switch s {
	case "duration":
		return eventfile.SortByDuration, nil
	case "transferred-client":
		return eventfile.SortByTransferredClient, nil
	case "transferred-server":
		return eventfile.SortByTransferredServer, nil
	case "transferred":
		return eventfile.SortByTransferred, nil
	default:
		return 0, fmt.Errorf("unknown -compare %q", s)
	}
}

func parseOrder(s string) (eventfile.SortOrder, error) {
	switch s {
	case "ascending":
		return eventfile.Ascending, nil
	case "descending":
		return eventfile.Descending, nil
	default:
		return 0, fmt.Errorf("unknown -order %q", s)
	}
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, "netmon-sort:", msg)
	os.Exit(1)
}
