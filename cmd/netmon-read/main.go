// Command netmon-read prints, and optionally filters, the events in one
// event file (spec §6, "Reader/printer"). The GUI, javascript and sqlite
// output registers from the original evreader are out of scope (SPEC_FULL.md
// "[SUPPLEMENT]" item 6 and the printer/db non-goal); this CLI sticks to
// the "thin wrapper" contract and supports header/human-readable/json/csv.
package main

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/guidoreina/netmon/event"
	"github.com/guidoreina/netmon/eventfile"
	"github.com/guidoreina/netmon/filter"
)

func main() {
	var (
		in          = flag.String("in", "", "input event file (required)")
		out         = flag.String("out", "", "output filename (default: stdout)")
		output      = flag.String("output", "human-readable", `output register: "header", "human-readable", "json" or "csv"`)
		format      = flag.String("format", "pretty-print", `human-readable layout: "pretty-print" or "compact"`)
		csvSep      = flag.String("csv-separator", ",", "CSV field separator")
		filterExpr  = flag.String("filter", "", "filter expression (spec §4.6 grammar); empty matches everything")
	)
	flag.Parse()

	if *in == "" {
		fail("-in is required")
	}

	var expr filter.Expr
	if *filterExpr != "" {
		e, err := filter.Parse(*filterExpr)
		if err != nil {
			fail(fmt.Sprintf("filter: %v", err))
		}
		expr = e
	}

	r, err := eventfile.Open(*in)
	if err != nil {
		fail(err.Error())
	}
	defer r.Close()

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			fail(err.Error())
		}
		defer f.Close()
		w = f
	}
	bw := bufio.NewWriter(w)
	defer bw.Flush()

	if *output == "header" {
		printHeader(bw, r.Header())
		return
	}

	var csvw *csv.Writer
	if *output == "csv" {
		csvw = csv.NewWriter(bw)
		csvw.Comma = runeOf(*csvSep)
		defer csvw.Flush()
		csvw.Write(csvHeader)
	}

	compact := *format == "compact"

	for {
		ev, err := r.Next()
		if err != nil {
			if err != io.EOF {
				fail(fmt.Sprintf("reading %s: %v", *in, err))
			}
			break
		}

		srcHost, dstHost := r.Hostnames(ev)

		if expr != nil && !expr.Evaluate(ev, srcHost, dstHost) {
			continue
		}

		switch *output {
		case "json":
			printJSON(bw, ev, srcHost, dstHost)
		case "csv":
			printCSV(csvw, ev, srcHost, dstHost)
		default:
			printHumanReadable(bw, ev, srcHost, dstHost, compact)
		}
	}
}

func runeOf(s string) rune {
	for _, r := range s {
		return r
	}
	return ','
}

func printHeader(w io.Writer, h eventfile.Header) {
	fmt.Fprintf(w, "first: %s\n", formatTimestamp(h.First))
	fmt.Fprintf(w, "last:  %s\n", formatTimestamp(h.Last))
}

func formatTimestamp(us uint64) string {
	t := time.UnixMicro(int64(us)).Local()
	return t.Format("2006/01/02 15:04:05.000000")
}

// hostSuffix formats a resolved hostname (learned from the reader's
// inverted DNS cache) as a parenthesized suffix, or "" if unresolved.
func hostSuffix(host string) string {
	if host == "" {
		return ""
	}
	return " (" + host + ")"
}

func printHumanReadable(w io.Writer, ev event.Event, srcHost, dstHost string, compact bool) {
	sep := "\n  "
	if compact {
		sep = " "
	}

	saddr, daddr := event.Addrs(ev)

	fmt.Fprintf(w, "%s:%s%s%s -> %s%s", ev.(kindOf).Kind(), sep, saddr, hostSuffix(srcHost), daddr, hostSuffix(dstHost))
	fmt.Fprintf(w, "%sdate: %s", sep, formatTimestamp(event.Timestamp(ev)))

	switch e := ev.(type) {
	case *event.ICMP:
		fmt.Fprintf(w, "%stype: %d%scode: %d%stransferred: %d", sep, e.Type, sep, e.Code, sep, e.Transferred)
	case *event.UDP:
		fmt.Fprintf(w, "%ssport: %d%sdport: %d%stransferred: %d", sep, e.Sport, sep, e.Dport, sep, e.Transferred)
	case *event.DNS:
		fmt.Fprintf(w, "%ssport: %d%sdport: %d%stransferred: %d%squery type: %d%sdomain: %s%sresponses: %d",
			sep, e.Sport, sep, e.Dport, sep, e.Transferred, sep, e.QType, sep, e.Domain, sep, len(e.Responses))
		for _, r := range e.Responses {
			fmt.Fprintf(w, "%s  %s", sep, r.Addr)
		}
	case *event.TCPBegin:
		fmt.Fprintf(w, "%ssport: %d%sdport: %d", sep, e.Sport, sep, e.Dport)
	case *event.TCPData:
		fmt.Fprintf(w, "%ssport: %d%sdport: %d%screation: %s%spayload: %d",
			sep, e.Sport, sep, e.Dport, sep, formatTimestamp(e.Creation), sep, e.Payload)
	case *event.TCPEnd:
		fmt.Fprintf(w, "%ssport: %d%sdport: %d%screation: %s%sduration: %dus%stransferred (client): %d%stransferred (server): %d",
			sep, e.Sport, sep, e.Dport, sep, formatTimestamp(e.Creation), sep, e.Timestamp-e.Creation, sep, e.TransferredClient, sep, e.TransferredServer)
	}

	fmt.Fprintln(w)
	if !compact {
		fmt.Fprintln(w)
	}
}

// kindOf is satisfied by every event.Event implementation; it exists only
// so printHumanReadable can call Kind() without a type switch up front.
type kindOf interface {
	Kind() event.Kind
}

func printJSON(w io.Writer, ev event.Event, srcHost, dstHost string) {
	saddr, daddr := event.Addrs(ev)
	m := map[string]any{
		"type":        ev.(kindOf).Kind().String(),
		"date":        event.Timestamp(ev),
		"source":      saddr.String(),
		"destination": daddr.String(),
	}
	if srcHost != "" {
		m["source_hostname"] = srcHost
	}
	if dstHost != "" {
		m["destination_hostname"] = dstHost
	}

	switch e := ev.(type) {
	case *event.ICMP:
		m["icmp_type"] = e.Type
		m["icmp_code"] = e.Code
		m["transferred"] = e.Transferred
	case *event.UDP:
		m["source_port"] = e.Sport
		m["destination_port"] = e.Dport
		m["transferred"] = e.Transferred
	case *event.DNS:
		m["source_port"] = e.Sport
		m["destination_port"] = e.Dport
		m["transferred"] = e.Transferred
		m["query_type"] = e.QType
		m["domain"] = e.Domain
		addrs := make([]string, len(e.Responses))
		for i, r := range e.Responses {
			addrs[i] = r.Addr.String()
		}
		m["responses"] = addrs
	case *event.TCPBegin:
		m["source_port"] = e.Sport
		m["destination_port"] = e.Dport
	case *event.TCPData:
		m["source_port"] = e.Sport
		m["destination_port"] = e.Dport
		m["creation"] = e.Creation
		m["payload"] = e.Payload
	case *event.TCPEnd:
		m["source_port"] = e.Sport
		m["destination_port"] = e.Dport
		m["creation"] = e.Creation
		m["duration_us"] = e.Timestamp - e.Creation
		m["transferred_client"] = e.TransferredClient
		m["transferred_server"] = e.TransferredServer
	}

	enc := json.NewEncoder(w)
	enc.Encode(m)
}

var csvHeader = []string{
	"type", "date", "source", "destination", "source_hostname", "destination_hostname",
	"source_port", "destination_port",
	"icmp_type", "icmp_code", "transferred", "query_type", "domain", "responses",
	"creation", "duration_us", "transferred_client", "transferred_server",
}

func printCSV(w *csv.Writer, ev event.Event, srcHost, dstHost string) {
	saddr, daddr := event.Addrs(ev)
	row := make([]string, len(csvHeader))
	row[0] = ev.(kindOf).Kind().String()
	row[1] = formatTimestamp(event.Timestamp(ev))
	row[2] = saddr.String()
	row[3] = daddr.String()
	row[4] = srcHost
	row[5] = dstHost

	switch e := ev.(type) {
	case *event.ICMP:
		row[8] = strconv.Itoa(int(e.Type))
		row[9] = strconv.Itoa(int(e.Code))
		row[10] = strconv.Itoa(int(e.Transferred))
	case *event.UDP:
		row[6] = strconv.Itoa(int(e.Sport))
		row[7] = strconv.Itoa(int(e.Dport))
		row[10] = strconv.Itoa(int(e.Transferred))
	case *event.DNS:
		row[6] = strconv.Itoa(int(e.Sport))
		row[7] = strconv.Itoa(int(e.Dport))
		row[10] = strconv.Itoa(int(e.Transferred))
		row[11] = strconv.Itoa(int(e.QType))
		row[12] = e.Domain
		addrs := ""
		for i, r := range e.Responses {
			if i > 0 {
				addrs += ";"
			}
			addrs += r.Addr.String()
		}
		row[13] = addrs
	case *event.TCPBegin:
		row[6] = strconv.Itoa(int(e.Sport))
		row[7] = strconv.Itoa(int(e.Dport))
	case *event.TCPData:
		row[6] = strconv.Itoa(int(e.Sport))
		row[7] = strconv.Itoa(int(e.Dport))
		row[14] = strconv.FormatUint(e.Creation, 10)
	case *event.TCPEnd:
		row[6] = strconv.Itoa(int(e.Sport))
		row[7] = strconv.Itoa(int(e.Dport))
		row[14] = strconv.FormatUint(e.Creation, 10)
		row[15] = strconv.FormatUint(e.Timestamp-e.Creation, 10)
		row[16] = strconv.FormatUint(e.TransferredClient, 10)
		row[17] = strconv.FormatUint(e.TransferredServer, 10)
	}

	w.Write(row)
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, "netmon-read:", msg)
	os.Exit(1)
}
