package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/seq-capital/dealflow-cli/internal/model"
)

// Artifact filenames written into the export directory by every run.
// latest.csv is overwritten each time so a spreadsheet can stay pointed
// at one path.
const (
	JSONArtifact = "deals.json"
	CSVArtifact  = "latest.csv"
)

// csvColumns is the fixed column order for latest.csv. One "f_"+name
// column per model.FeatureColumns entry follows.
var csvColumns = []string{
	"id", "title", "category", "source", "url",
	"asking_price_aud", "revenue_aud", "ebitda_aud",
	"location", "lat", "lon", "ownership",
	"days_on_market", "date_listed", "contact", "score",
}

// WriteArtifacts writes deals.json and latest.csv into dir, creating the
// directory if needed. Deals should already be ranked; rows keep their
// order.
func WriteArtifacts(dir string, deals []model.Deal) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrap(err, "export: create dir")
	}
	if err := WriteJSON(filepath.Join(dir, JSONArtifact), deals); err != nil {
		return err
	}
	return WriteCSV(filepath.Join(dir, CSVArtifact), deals)
}

// WriteJSON writes the full deal records as a two-space-indented JSON
// array. No deals still writes a valid empty array.
func WriteJSON(path string, deals []model.Deal) error {
	if deals == nil {
		deals = []model.Deal{}
	}
	data, err := json.MarshalIndent(deals, "", "  ")
	if err != nil {
		return eris.Wrap(err, "export: marshal deals")
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrap(err, "export: write json")
	}
	return nil
}

// WriteCSV writes the flat review sheet to a file. Unknown numerics
// render as empty cells rather than zeroes so a spreadsheet filter can
// tell "no EBITDA disclosed" from break-even.
func WriteCSV(path string, deals []model.Deal) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "export: create csv")
	}
	defer f.Close() //nolint:errcheck

	return WriteCSVTo(f, deals)
}

// WriteCSVTo writes the review sheet to w, for stdout output.
func WriteCSVTo(out io.Writer, deals []model.Deal) error {
	w := csv.NewWriter(out)

	header := make([]string, 0, len(csvColumns)+len(model.FeatureColumns))
	header = append(header, csvColumns...)
	for _, name := range model.FeatureColumns {
		header = append(header, "f_"+name)
	}
	if err := w.Write(header); err != nil {
		return eris.Wrap(err, "export: write header")
	}

	for _, d := range deals {
		if err := w.Write(csvRow(d)); err != nil {
			return eris.Wrap(err, "export: write row")
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "export: flush csv")
	}
	return nil
}

// csvRow flattens one deal in csvColumns order.
func csvRow(d model.Deal) []string {
	row := []string{
		d.ID,
		d.Title,
		d.Category,
		d.Source,
		d.URL,
		numStr(d.AskingPrice),
		numStr(d.Revenue),
		numStr(d.EBITDA),
		d.Location,
		numStr(d.Lat),
		numStr(d.Lon),
		d.Ownership,
		strconv.Itoa(d.DaysOnMarket),
		d.DateListed,
		strOr(d.Contact),
		scoreStr(d.Score),
	}
	if d.Features != nil {
		for _, v := range d.Features.Values() {
			row = append(row, scoreStr(v))
		}
	} else {
		for range model.FeatureColumns {
			row = append(row, "")
		}
	}
	return row
}

// numStr renders an optional number; unknown stays an empty cell.
func numStr(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}

func strOr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// scoreStr pins scores to three decimals so diffs between runs read
// cleanly.
func scoreStr(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
