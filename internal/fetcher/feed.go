package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/seq-capital/dealflow-cli/internal/model"
	"github.com/seq-capital/dealflow-cli/internal/normalize"
)

// Format identifies how a feed file is parsed.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatXML  Format = "xml"
	FormatJSON Format = "json"
	FormatZIP  Format = "zip"
)

// DetectFormat infers the feed format from the file extension of a local
// path or URL.
func DetectFormat(source string) (Format, error) {
	path := source
	if u, err := url.Parse(source); err == nil && u.Scheme != "" {
		path = u.Path
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".xml":
		return FormatXML, nil
	case ".json":
		return FormatJSON, nil
	case ".zip":
		return FormatZIP, nil
	default:
		return "", eris.Errorf("fetcher: cannot detect feed format of %q", source)
	}
}

// FeedOptions configures how a broker feed is fetched and parsed.
type FeedOptions struct {
	// Feed names the source; it becomes the Source field on imported deals.
	Feed string
	// Format overrides extension-based detection.
	Format Format
	// Delimiter overrides the CSV delimiter (default comma).
	Delimiter rune
	// SheetName selects an XLSX sheet by name (default first sheet).
	SheetName string
	// Element is the XML element wrapping one listing (default "listing").
	Element string
}

// columnAliases maps the header names brokers actually use onto canonical
// listing fields. Headers are matched after normalizeHeader.
var columnAliases = map[string]string{
	"title":         "title",
	"name":          "title",
	"business_name": "title",

	"url":         "url",
	"link":        "url",
	"listing_url": "url",

	"price":        "price",
	"asking_price": "price",

	"revenue":        "revenue",
	"turnover":       "revenue",
	"annual_revenue": "revenue",
	"sales":          "revenue",

	"ebitda":     "ebitda",
	"net_profit": "ebitda",
	"profit":     "ebitda",
	"earnings":   "ebitda",
	"cashflow":   "ebitda",

	"location": "location",
	"suburb":   "location",
	"region":   "location",
	"city":     "location",
	"address":  "location",

	"ownership": "ownership",
	"tenure":    "ownership",

	"category": "category",
	"industry": "category",
	"sector":   "category",

	"contact": "contact",
	"broker":  "contact",
	"agent":   "contact",
	"email":   "contact",

	"date_listed":  "listed",
	"listed":       "listed",
	"listing_date": "listed",

	"notes":       "notes",
	"description": "notes",
	"summary":     "notes",
}

func normalizeHeader(col string) string {
	s := strings.TrimSpace(col)
	// Excel exports often lead with a BOM.
	s = strings.TrimPrefix(s, "\uFEFF")
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return s
}

// headerIndex maps canonical listing fields to column positions for one
// feed's header row. Unrecognized columns are ignored; the first matching
// column wins when a feed repeats a field.
func headerIndex(header []string) map[string]int {
	idx := make(map[string]int)
	for i, col := range header {
		field, ok := columnAliases[normalizeHeader(col)]
		if !ok {
			continue
		}
		if _, seen := idx[field]; !seen {
			idx[field] = i
		}
	}
	return idx
}

// feedListing is one row of a broker feed after column mapping, before
// normalization into a Deal.
type feedListing struct {
	Title     string
	URL       string
	Price     string
	Revenue   string
	EBITDA    string
	Location  string
	Ownership string
	Category  string
	Contact   string
	Listed    string
	Notes     string
}

func listingFromRow(row []string, idx map[string]int) feedListing {
	get := func(field string) string {
		i, ok := idx[field]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	return feedListing{
		Title:     get("title"),
		URL:       get("url"),
		Price:     get("price"),
		Revenue:   get("revenue"),
		EBITDA:    get("ebitda"),
		Location:  get("location"),
		Ownership: get("ownership"),
		Category:  get("category"),
		Contact:   get("contact"),
		Listed:    get("listed"),
		Notes:     get("notes"),
	}
}

// feedDateLayouts covers the formats seen in broker exports. Slashed dates
// are day-first, the AU convention.
var feedDateLayouts = []string{
	model.DateLayout,
	"02/01/2006",
	"2/1/2006",
	time.RFC3339,
	"2006-01-02T15:04:05",
}

func parseFeedDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range feedDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// deal converts the listing to a Deal. Returns false when the row has no
// URL; without one the record can't be deduplicated or revisited.
func (l feedListing) deal(feed string, now time.Time) (model.Deal, bool) {
	if l.URL == "" {
		return model.Deal{}, false
	}
	src := model.Source{
		Name:      feed,
		Category:  l.Category,
		Region:    l.Location,
		Ownership: l.Ownership,
	}
	d := normalize.Hit(model.RawHit{Title: l.Title, Link: l.URL, Snippet: l.Notes}, src, now)

	// Explicit feed columns beat anything sniffed from free text.
	if p := normalize.ParsePrice(l.Price); p != nil {
		d.AskingPrice = p
	}
	if r := normalize.ParsePrice(l.Revenue); r != nil {
		d.Revenue = r
	}
	if e := normalize.ParsePrice(l.EBITDA); e != nil {
		d.EBITDA = e
	}
	if l.Contact != "" {
		contact := l.Contact
		d.Contact = &contact
	}
	if t, ok := parseFeedDate(l.Listed); ok {
		d.DateListed = t.Format(model.DateLayout)
		if days := int(now.Sub(t).Hours() / 24); days > 0 {
			d.DaysOnMarket = days
		}
	}
	return d, true
}

// xmlListing mirrors feedListing with the element names XML feeds use.
// Dual tags cover the two common vocabularies without configuration.
type xmlListing struct {
	Title       string `xml:"title"`
	Name        string `xml:"name"`
	URL         string `xml:"url"`
	Link        string `xml:"link"`
	Price       string `xml:"price"`
	AskingPrice string `xml:"asking_price"`
	Revenue     string `xml:"revenue"`
	Turnover    string `xml:"turnover"`
	EBITDA      string `xml:"ebitda"`
	Profit      string `xml:"profit"`
	Location    string `xml:"location"`
	Suburb      string `xml:"suburb"`
	Ownership   string `xml:"ownership"`
	Tenure      string `xml:"tenure"`
	Category    string `xml:"category"`
	Industry    string `xml:"industry"`
	Contact     string `xml:"contact"`
	Broker      string `xml:"broker"`
	Listed      string `xml:"listed"`
	DateListed  string `xml:"date_listed"`
	Notes       string `xml:"notes"`
	Description string `xml:"description"`
}

func (x xmlListing) listing() feedListing {
	return feedListing{
		Title:     coalesce(x.Title, x.Name),
		URL:       coalesce(x.URL, x.Link),
		Price:     coalesce(x.Price, x.AskingPrice),
		Revenue:   coalesce(x.Revenue, x.Turnover),
		EBITDA:    coalesce(x.EBITDA, x.Profit),
		Location:  coalesce(x.Location, x.Suburb),
		Ownership: coalesce(x.Ownership, x.Tenure),
		Category:  coalesce(x.Category, x.Industry),
		Contact:   coalesce(x.Contact, x.Broker),
		Listed:    coalesce(x.Listed, x.DateListed),
		Notes:     coalesce(x.Notes, x.Description),
	}
}

func coalesce(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// listingFromMap maps one JSON object through the column aliases. Numbers
// arrive as float64 from encoding/json; render them back to strings so the
// price parser sees one input shape.
func listingFromMap(obj map[string]any) feedListing {
	fields := make(map[string]string)
	for key, val := range obj {
		field, ok := columnAliases[normalizeHeader(key)]
		if !ok {
			continue
		}
		s := stringifyJSON(val)
		if s == "" {
			continue
		}
		if _, seen := fields[field]; !seen {
			fields[field] = s
		}
	}
	return feedListing{
		Title:     fields["title"],
		URL:       fields["url"],
		Price:     fields["price"],
		Revenue:   fields["revenue"],
		EBITDA:    fields["ebitda"],
		Location:  fields["location"],
		Ownership: fields["ownership"],
		Category:  fields["category"],
		Contact:   fields["contact"],
		Listed:    fields["listed"],
		Notes:     fields["notes"],
	}
}

func stringifyJSON(val any) string {
	switch v := val.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// ParseCSVFeed reads a CSV broker feed. The first row is the header; it
// decides which columns map to which listing fields.
func ParseCSVFeed(ctx context.Context, r io.Reader, opts FeedOptions, now time.Time) ([]model.Deal, error) {
	csvOpts := CSVOptions{TrimSpace: true, LazyQuotes: true}
	if opts.Delimiter != 0 {
		csvOpts.Delimiter = opts.Delimiter
	}
	rowCh, errCh := StreamCSV(ctx, r, csvOpts)
	return dealsFromRows(rowCh, errCh, opts.Feed, now)
}

// ParseXLSXFeed reads an XLSX broker feed from a file on disk.
func ParseXLSXFeed(ctx context.Context, path string, opts FeedOptions, now time.Time) ([]model.Deal, error) {
	rowCh, errCh := StreamXLSX(ctx, path, XLSXOptions{SheetName: opts.SheetName})
	return dealsFromRows(rowCh, errCh, opts.Feed, now)
}

// dealsFromRows consumes a row stream whose first row is the header.
func dealsFromRows(rowCh <-chan []string, errCh <-chan error, feed string, now time.Time) ([]model.Deal, error) {
	var (
		idx   map[string]int
		deals []model.Deal
	)
	for row := range rowCh {
		if idx == nil {
			idx = headerIndex(row)
			continue
		}
		if d, ok := listingFromRow(row, idx).deal(feed, now); ok {
			deals = append(deals, d)
		}
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	if idx == nil {
		return nil, eris.New("fetcher: feed has no header row")
	}
	return deals, nil
}

// ParseXMLFeed reads an XML broker feed. Element selects the per-listing
// element name, "listing" by default.
func ParseXMLFeed(ctx context.Context, r io.Reader, opts FeedOptions, now time.Time) ([]model.Deal, error) {
	element := opts.Element
	if element == "" {
		element = "listing"
	}
	itemCh, errCh := StreamXML[xmlListing](ctx, r, element)

	var deals []model.Deal
	for item := range itemCh {
		if d, ok := item.listing().deal(opts.Feed, now); ok {
			deals = append(deals, d)
		}
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return deals, nil
}

// ParseJSONFeed reads a JSON broker feed, either a naked listings array
// or an envelope object wrapping one. Object keys are matched with the
// same aliases as CSV headers.
func ParseJSONFeed(ctx context.Context, r io.Reader, opts FeedOptions, now time.Time) ([]model.Deal, error) {
	itemCh, errCh := DecodeJSONArray[map[string]any](ctx, r)

	var deals []model.Deal
	for item := range itemCh {
		if d, ok := listingFromMap(item).deal(opts.Feed, now); ok {
			deals = append(deals, d)
		}
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return deals, nil
}

// ImportFeed fetches a broker feed from a local path, HTTP URL or FTP URL
// and parses it into deals. Zipped feeds are extracted and the inner file
// parsed by its own extension.
func ImportFeed(ctx context.Context, source string, opts FeedOptions) ([]model.Deal, error) {
	format := opts.Format
	if format == "" {
		var err error
		format, err = DetectFormat(source)
		if err != nil {
			return nil, err
		}
	}
	now := time.Now()

	var (
		deals []model.Deal
		err   error
	)
	switch {
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		deals, err = importRemoteFeed(ctx, NewHTTPFetcher(HTTPOptions{}), source, format, opts, now)
	case strings.HasPrefix(source, "ftp://"):
		deals, err = importRemoteFeed(ctx, NewFTPFetcher(FTPOptions{}), source, format, opts, now)
	default:
		deals, err = parseLocalFeed(ctx, source, format, opts, now)
	}
	if err != nil {
		return nil, err
	}

	zap.L().Info("feed imported",
		zap.String("feed", opts.Feed),
		zap.String("source", source),
		zap.String("format", string(format)),
		zap.Int("deals", len(deals)))
	return deals, nil
}

// importRemoteFeed streams formats that allow it and materializes the rest;
// XLSX and ZIP need random access, so they land in a temp file first.
func importRemoteFeed(ctx context.Context, f Fetcher, rawURL string, format Format, opts FeedOptions, now time.Time) ([]model.Deal, error) {
	if format == FormatXLSX || format == FormatZIP {
		return importToTempFile(ctx, f, rawURL, format, opts, now)
	}
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck
	return parseFeedReader(ctx, body, format, opts, now)
}

func importToTempFile(ctx context.Context, f Fetcher, rawURL string, format Format, opts FeedOptions, now time.Time) ([]model.Deal, error) {
	dir, err := os.MkdirTemp("", "dealflow-feed-*")
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create temp dir")
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	path := filepath.Join(dir, "feed."+string(format))
	if _, err := f.DownloadToFile(ctx, rawURL, path); err != nil {
		return nil, err
	}
	return parseLocalFeed(ctx, path, format, opts, now)
}

func parseLocalFeed(ctx context.Context, path string, format Format, opts FeedOptions, now time.Time) ([]model.Deal, error) {
	switch format {
	case FormatXLSX:
		return ParseXLSXFeed(ctx, path, opts, now)
	case FormatZIP:
		return parseZIPFeed(ctx, path, opts, now)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open feed %s", path)
	}
	defer f.Close() //nolint:errcheck
	return parseFeedReader(ctx, f, format, opts, now)
}

func parseFeedReader(ctx context.Context, r io.Reader, format Format, opts FeedOptions, now time.Time) ([]model.Deal, error) {
	switch format {
	case FormatCSV:
		return ParseCSVFeed(ctx, r, opts, now)
	case FormatXML:
		return ParseXMLFeed(ctx, r, opts, now)
	case FormatJSON:
		return ParseJSONFeed(ctx, r, opts, now)
	default:
		return nil, eris.Errorf("fetcher: unsupported feed format %q", format)
	}
}

// parseZIPFeed extracts the single file inside the archive and parses it
// by its own extension.
func parseZIPFeed(ctx context.Context, zipPath string, opts FeedOptions, now time.Time) ([]model.Deal, error) {
	dir, err := os.MkdirTemp("", "dealflow-feed-*")
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create temp dir")
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	inner, err := ExtractZIPSingle(zipPath, dir)
	if err != nil {
		return nil, err
	}
	format, err := DetectFormat(inner)
	if err != nil {
		return nil, err
	}
	if format == FormatZIP {
		return nil, eris.New("fetcher: nested zip feeds not supported")
	}
	return parseLocalFeed(ctx, inner, format, opts, now)
}
