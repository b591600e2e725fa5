// Command tracewell-query is the local presentation tool spec.md §4.3
// and §6 describe: it lowers a set of filter flags to SQL, sends it to a
// running tracewell-collector's query service, and renders the result in
// one of the registered output formats.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/tracewell/collector/internal/filterlower"
	"github.com/tracewell/collector/internal/queryservice"
	"github.com/tracewell/collector/internal/sqlengine"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "tracewell-query:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("tracewell-query", flag.ContinueOnError)

	addr := fs.String("addr", "http://localhost:4319", "tracewell-collector query address")
	table := fs.String("table", "", "table to query: traces, logs, or metrics (required unless --sql is set)")
	sql := fs.String("sql", "", "run a raw SQL statement instead of building one from flags")
	format := fs.String("format", "text", "output format: text, jsonl, csv")
	service := fs.String("service", "", "filter by service name")
	severity := fs.String("severity", "", "filter logs by minimum severity (e.g. ERROR)")
	traceID := fs.String("trace-id", "", "filter traces by trace id (hex)")
	metricName := fs.String("name", "", "filter metrics by metric name")
	since := fs.String("since", "", "filter by start of time range (RFC3339 or relative, e.g. 15m)")
	until := fs.String("until", "", "filter by end of time range")
	limit := fs.Int("limit", 0, "maximum rows to return (0 = unlimited)")
	attrFlags := fs.StringArray("attribute", nil, "filter by attribute K=V (repeatable)")
	follow := fs.Bool("follow", false, "stream results instead of a single snapshot")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *sql == "" {
		if *table == "" {
			return fmt.Errorf("either --table or --sql must be set")
		}

		attrs, err := parseAttributes(*attrFlags)
		if err != nil {
			return err
		}

		lowered, err := filterlower.Lower(sqlengine.Table(*table), filterlower.Flags{
			Service:    *service,
			Attributes: attrs,
			Severity:   *severity,
			TraceID:    *traceID,
			MetricName: *metricName,
			Since:      *since,
			Until:      *until,
			Limit:      *limit,
		})
		if err != nil {
			return err
		}
		*sql = lowered
	}

	formatter, ok := queryservice.Formatters[*format]
	if !ok {
		return fmt.Errorf("unknown format %q (want one of: text, jsonl, csv)", *format)
	}

	if *follow {
		return runFollow(*addr, *sql, out)
	}
	return runQuery(*addr, *sql, formatter, out)
}

func parseAttributes(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	attrs := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --attribute %q: want K=V", p)
		}
		attrs[k] = v
	}
	return attrs, nil
}

func runQuery(addr, sql string, formatter queryservice.Formatter, out io.Writer) error {
	u := addr + "/query?" + url.Values{"sql": {sql}}.Encode()

	resp, err := http.Get(u)
	if err != nil {
		return fmt.Errorf("contacting %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("query failed (%s): %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var res sqlengine.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return formatter.Format(out, &res)
}

func runFollow(addr, sql string, out io.Writer) error {
	u := addr + "/follow?" + url.Values{"sql": {sql}}.Encode()

	resp, err := http.Get(u)
	if err != nil {
		return fmt.Errorf("contacting %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("follow failed (%s): %s", resp.Status, strings.TrimSpace(string(body)))
	}

	return streamSSE(resp.Body, out)
}
