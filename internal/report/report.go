// Package report renders the mockup README, its timing summary and the
// console run summary.
package report

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/olekukonko/tablewriter"

	"redfish-mockup-creator/internal/stats"
)

// ReadmeName is the file written at the top of every mockup.
const ReadmeName = "README"

// Header is the provenance block at the top of the README.
type Header struct {
	Program     string
	Version     string
	Created     time.Time
	Host        string
	User        string
	Description string
	CommandLine string
}

// README renders the provenance block.
func README(h Header) []byte {
	var b bytes.Buffer
	b.WriteString("Redfish Service state stored in Redfish Mockup Format\n")
	fmt.Fprintf(&b, "Program: %s,  ver: %s\n", h.Program, h.Version)
	fmt.Fprintf(&b, "Created: %s\n", h.Created.Format(time.DateTime))
	fmt.Fprintf(&b, "rhost:  %s\n", h.Host)
	fmt.Fprintf(&b, "User:  %s\n", h.User)
	fmt.Fprintf(&b, "Description: %s\n", h.Description)
	fmt.Fprintf(&b, "Commandline: %s\n", h.CommandLine)
	return b.Bytes()
}

// SummaryLines renders the timing summary appended to the README.
func SummaryLines(s stats.Summary) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "minResponseTime: (%s, '%s')\n", seconds(s.Min.Elapsed.Seconds()), s.Min.URI)
	fmt.Fprintf(&b, "maxResponseTime: (%s, '%s')\n", seconds(s.Max.Elapsed.Seconds()), s.Max.URI)
	fmt.Fprintf(&b, "averageResponseTime: %s\n", seconds(s.Average))
	fmt.Fprintf(&b, "totalResponseTime: %s\n", seconds(s.Total))
	return b.Bytes()
}

// seconds prints a value rounded to milliseconds, always with a decimal point.
func seconds(v float64) string {
	out := strconv.FormatFloat(stats.Round3(v), 'f', -1, 64)
	if !strings.Contains(out, ".") {
		out += ".0"
	}
	return out
}

// Counts tallies materialization outcomes for a run.
type Counts struct {
	Written int
	Skipped int
	Failed  int
}

// WriteTable prints the console summary of a run.
func WriteTable(w io.Writer, c Counts, s stats.Summary, ok bool) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Value"})
	table.SetAutoWrapText(false)
	table.Append([]string{"Written", strconv.Itoa(c.Written)})
	table.Append([]string{"Skipped", strconv.Itoa(c.Skipped)})
	table.Append([]string{"Failed", strconv.Itoa(c.Failed)})
	if ok {
		table.Append([]string{"Fetched", strconv.Itoa(s.Count)})
		table.Append([]string{"Downloaded", units.HumanSize(float64(s.Bytes))})
		table.Append([]string{"Total time", seconds(s.Total) + "s"})
		table.Append([]string{"Average time", seconds(s.Average) + "s"})
		table.Append([]string{"Fastest", fmt.Sprintf("%ss %s", seconds(s.Min.Elapsed.Seconds()), s.Min.URI)})
		table.Append([]string{"Slowest", fmt.Sprintf("%ss %s", seconds(s.Max.Elapsed.Seconds()), s.Max.URI)})
	}
	table.Render()
}
