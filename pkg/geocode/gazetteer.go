package geocode

import "strings"

// gazetteer holds coordinates for the AU/NZ localities that dominate
// listing feeds. Keys are normalized locality names with state and country
// words already stripped. Coordinates are town centres; proximity scoring
// works at tens of kilometres so centre-of-town precision is plenty.
var gazetteer = map[string]coords{
	// Capitals.
	"brisbane":  {-27.47, 153.03},
	"sydney":    {-33.87, 151.21},
	"melbourne": {-37.81, 144.96},
	"perth":     {-31.95, 115.86},
	"adelaide":  {-34.93, 138.60},
	"hobart":    {-42.88, 147.33},
	"darwin":    {-12.46, 130.84},
	"canberra":  {-35.28, 149.13},

	// Queensland.
	"gold coast":     {-28.00, 153.43},
	"sunshine coast": {-26.65, 153.07},
	"townsville":     {-19.26, 146.82},
	"cairns":         {-16.92, 145.77},
	"toowoomba":      {-27.56, 151.95},
	"mackay":         {-21.14, 149.19},
	"rockhampton":    {-23.38, 150.51},
	"bundaberg":      {-24.87, 152.35},
	"hervey bay":     {-25.29, 152.84},
	"gladstone":      {-23.84, 151.26},
	"gympie":         {-26.19, 152.67},
	"ipswich":        {-27.61, 152.76},
	"logan":          {-27.64, 153.11},
	"redcliffe":      {-27.23, 153.11},
	"caboolture":     {-27.08, 152.95},
	"caloundra":      {-26.80, 153.13},
	"maroochydore":   {-26.66, 153.09},
	"noosa heads":    {-26.40, 153.09},
	"noosa":          {-26.40, 153.09},
	"mount isa":      {-20.73, 139.49},

	// New South Wales.
	"newcastle":      {-32.93, 151.78},
	"wollongong":     {-34.42, 150.89},
	"albury":         {-36.08, 146.92},
	"wagga wagga":    {-35.11, 147.37},
	"coffs harbour":  {-30.30, 153.12},
	"port macquarie": {-31.43, 152.91},
	"tamworth":       {-31.09, 150.93},
	"orange":         {-33.28, 149.10},
	"dubbo":          {-32.25, 148.60},
	"bathurst":       {-33.42, 149.58},
	"lismore":        {-28.81, 153.28},
	"byron bay":      {-28.64, 153.61},

	// Victoria.
	"geelong":     {-38.15, 144.36},
	"ballarat":    {-37.56, 143.85},
	"bendigo":     {-36.76, 144.28},
	"wodonga":     {-36.12, 146.89},
	"mildura":     {-34.19, 142.16},
	"shepparton":  {-36.38, 145.40},
	"warrnambool": {-38.38, 142.48},
	"traralgon":   {-38.20, 146.54},

	// Tasmania.
	"launceston": {-41.44, 147.14},
	"devonport":  {-41.18, 146.35},
	"burnie":     {-41.05, 145.91},

	// Western Australia.
	"broome":     {-17.96, 122.24},
	"geraldton":  {-28.77, 114.61},
	"kalgoorlie": {-30.75, 121.47},
	"bunbury":    {-33.33, 115.64},
	"mandurah":   {-32.53, 115.72},
	"albany":     {-35.02, 117.88},

	// South Australia and Northern Territory.
	"mount gambier": {-37.83, 140.78},
	"whyalla":       {-33.03, 137.57},
	"port lincoln":  {-34.72, 135.86},
	"alice springs": {-23.70, 133.88},

	// New Zealand.
	"auckland":         {-36.85, 174.76},
	"wellington":       {-41.29, 174.78},
	"christchurch":     {-43.53, 172.64},
	"hamilton":         {-37.79, 175.28},
	"tauranga":         {-37.69, 176.17},
	"dunedin":          {-45.87, 170.50},
	"napier":           {-39.49, 176.92},
	"palmerston north": {-40.35, 175.61},
	"nelson":           {-41.27, 173.28},
	"rotorua":          {-38.14, 176.25},
	"queenstown":       {-45.03, 168.66},
	"invercargill":     {-46.41, 168.35},
	"new plymouth":     {-39.06, 174.08},
	"whangarei":        {-35.73, 174.32},
}

type coords struct {
	lat float64
	lon float64
}

// regionSuffixes are trailing words normalizeLocation strips, longest
// first so "new south wales" goes before "wales" could be seen.
var regionSuffixes = []string{
	"australian capital territory",
	"new south wales",
	"western australia",
	"south australia",
	"northern territory",
	"new zealand",
	"queensland",
	"tasmania",
	"victoria",
	"australia",
	"qld", "nsw", "vic", "tas", "act", "aus",
	"wa", "sa", "nt", "nz",
}

// normalizeLocation lowercases, strips punctuation and peels trailing
// state and country words so "Toowoomba, QLD, Australia" and "toowoomba"
// produce the same key. A location that is nothing but region words keeps
// its pre-strip form.
func normalizeLocation(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	// Dots vanish rather than splitting, so "W.A." collapses to "wa".
	s = strings.NewReplacer(",", " ", ".", "", "(", " ", ")", " ").Replace(s)
	s = strings.Join(strings.Fields(s), " ")

	stripped := s
	for changed := true; changed; {
		changed = false
		for _, suf := range regionSuffixes {
			if strings.HasSuffix(stripped, " "+suf) {
				stripped = strings.TrimSpace(strings.TrimSuffix(stripped, " "+suf))
				changed = true
			}
		}
	}
	if stripped == "" {
		return s
	}
	return stripped
}

// lookupGazetteer resolves a normalized locality to coordinates.
func lookupGazetteer(normalized string) (coords, bool) {
	c, ok := gazetteer[normalized]
	return c, ok
}
