package commands

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/google/subcommands"

	"github.com/aristath/portfolio-advisor/internal/di"
	"github.com/aristath/portfolio-advisor/internal/domain"
)

type importRecommendationsCmd struct {
	env  *Env
	path string
	date string
}

func (*importRecommendationsCmd) Name() string { return "import-recommendations" }
func (*importRecommendationsCmd) Synopsis() string {
	return "ingest analyst recommendations from a JSON file"
}
func (*importRecommendationsCmd) Usage() string {
	return `advisor import-recommendations [-path <jsonpath>] [-date <YYYY-MM-DD>] <file.json>

  Reads the records selected by -path and stores one recommendation per
  (stock, date). Records without a date take the -date value.
`
}

func (c *importRecommendationsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.path, "path", "$[*]", "JSONPath selecting the array of records")
	f.StringVar(&c.date, "date", "", "Date for records that carry none")
}

func (c *importRecommendationsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "expected exactly one input file")
		return subcommands.ExitUsageError
	}

	var fallback time.Time
	if c.date != "" {
		d, err := domain.ParseDate(c.date)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitUsageError
		}
		fallback = d
	}

	data, err := os.ReadFile(f.Arg(0))
	if err != nil {
		return fail("Error reading %s: %v", f.Arg(0), err)
	}

	recs, err := ParseRecommendations(data, c.path, fallback)
	if err != nil {
		return fail("Error parsing %s: %v", f.Arg(0), err)
	}

	container, err := di.WireStores(ctx, c.env.Config, c.env.Log)
	if err != nil {
		return fail("Error opening stores: %v", err)
	}
	defer container.Close()

	n, err := container.Recommendations.SaveRecommendations(ctx, recs)
	if err != nil {
		return fail("Error saving recommendations: %v", err)
	}

	fmt.Fprintf(c.env.out(), "Imported %d recommendations\n", n)
	return subcommands.ExitSuccess
}

// ParseRecommendations selects the records at path in a JSON document and converts
// them. Numbers may be encoded as strings, the way DynamoDB exports write them.
func ParseRecommendations(data []byte, path string, fallback time.Time) ([]domain.Recommendation, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}

	selected, err := jsonpath.Get(path, doc)
	if err != nil {
		return nil, fmt.Errorf("error evaluating %q: %w", path, err)
	}
	items, ok := selected.([]any)
	if !ok {
		items = []any{selected}
	}

	recs := make([]domain.Recommendation, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("record %d is not an object", i)
		}
		rec, err := recommendationFrom(obj, fallback)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func recommendationFrom(obj map[string]any, fallback time.Time) (domain.Recommendation, error) {
	rec := domain.Recommendation{
		Ticker:      firstString(obj, "stock", "ticker", "symbol"),
		Name:        firstString(obj, "name"),
		Decision:    domain.Decision(firstString(obj, "investment_decision", "decision")),
		Explanation: firstString(obj, "explanation"),
		Industry:    firstString(obj, "industry"),
		News:        firstString(obj, "stock_news", "news"),
	}
	if rec.Ticker == "" {
		return rec, fmt.Errorf("missing stock")
	}

	if s := firstString(obj, "date"); s != "" {
		d, err := domain.ParseDate(s)
		if err != nil {
			return rec, err
		}
		rec.Date = d
	} else if fallback.IsZero() {
		return rec, fmt.Errorf("missing date for %s and no -date given", rec.Ticker)
	} else {
		rec.Date = fallback
	}

	var err error
	if rec.Close, err = number(obj["close"]); err != nil {
		return rec, fmt.Errorf("close of %s: %w", rec.Ticker, err)
	}
	rank, err := number(obj["rank"])
	if err != nil {
		return rec, fmt.Errorf("rank of %s: %w", rec.Ticker, err)
	}
	rec.Rank = int(rank)

	return rec.WithDefaults(), nil
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func number(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return n, nil
	case string:
		if strings.TrimSpace(n) == "" {
			return 0, nil
		}
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, fmt.Errorf("unexpected %T", v)
	}
}
