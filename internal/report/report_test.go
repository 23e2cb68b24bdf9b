package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redfish-mockup-creator/internal/stats"
)

func TestREADME(t *testing.T) {
	out := README(Header{
		Program:     "redfishMockupCreate",
		Version:     "1.2.0",
		Created:     time.Date(2024, 5, 1, 13, 4, 5, 999, time.Local),
		Host:        "10.0.0.1:443",
		User:        "root",
		Description: "lab bmc",
		CommandLine: "rfmockup -r 10.0.0.1:443 -u root",
	})
	want := "Redfish Service state stored in Redfish Mockup Format\n" +
		"Program: redfishMockupCreate,  ver: 1.2.0\n" +
		"Created: 2024-05-01 13:04:05\n" +
		"rhost:  10.0.0.1:443\n" +
		"User:  root\n" +
		"Description: lab bmc\n" +
		"Commandline: rfmockup -r 10.0.0.1:443 -u root\n"
	assert.Equal(t, want, string(out))
}

func TestSummaryLines(t *testing.T) {
	l := stats.NewLedger()
	l.Record("/redfish/v1", 100*time.Millisecond, 0)
	l.Record("/redfish/v1/Systems", 300*time.Millisecond, 0)
	l.Record("/redfish/v1/Systems/1", 200*time.Millisecond, 0)
	s, ok := l.Summary()
	require.True(t, ok)

	want := "minResponseTime: (0.1, '/redfish/v1')\n" +
		"maxResponseTime: (0.3, '/redfish/v1/Systems')\n" +
		"averageResponseTime: 0.2\n" +
		"totalResponseTime: 0.6\n"
	assert.Equal(t, want, string(SummaryLines(s)))
}

func TestSecondsKeepsDecimalPoint(t *testing.T) {
	assert.Equal(t, "1.0", seconds(1))
	assert.Equal(t, "1.235", seconds(1.23456))
	assert.Equal(t, "0.0", seconds(0))
}

func TestWriteTable(t *testing.T) {
	l := stats.NewLedger()
	l.Record("/redfish/v1", time.Second, 2048)
	s, ok := l.Summary()

	var buf bytes.Buffer
	WriteTable(&buf, Counts{Written: 1, Failed: 2}, s, ok)
	out := buf.String()
	assert.Contains(t, out, "Written")
	assert.Contains(t, out, "2.048kB")
	assert.Contains(t, out, "/redfish/v1")

	buf.Reset()
	WriteTable(&buf, Counts{}, stats.Summary{}, false)
	assert.NotContains(t, buf.String(), "Downloaded")
}
