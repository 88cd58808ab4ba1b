package forecast

import "strings"

// capitalStations maps each UF to the ICAO code of the airport station that
// the current-conditions feed reports for its capital.
var capitalStations = map[string]string{
	"AC": "SBRB",
	"AL": "SBMO",
	"AM": "SBEG",
	"AP": "SBMQ",
	"BA": "SBSV",
	"CE": "SBFZ",
	"DF": "SBBR",
	"ES": "SBVT",
	"GO": "SBGO",
	"MA": "SBSL",
	"MG": "SBBH",
	"MS": "SBCG",
	"MT": "SBCY",
	"PA": "SBBE",
	"PB": "SBJP",
	"PE": "SBRF",
	"PI": "SBTE",
	"PR": "SBCT",
	"RJ": "SBRJ",
	"RN": "SBNT",
	"RO": "SBPV",
	"RR": "SBBV",
	"RS": "SBPA",
	"SC": "SBFL",
	"SE": "SBAR",
	"SP": "SBSP",
	"TO": "SBPJ",
}

// Stations is an immutable region -> station code table.
type Stations struct {
	byRegion map[string]string
}

// DefaultStations returns the built-in table of state capitals.
func DefaultStations() *Stations {
	return NewStations(capitalStations)
}

// NewStations copies m into a new table. Region keys are upper-cased and
// blank entries are skipped.
func NewStations(m map[string]string) *Stations {
	byRegion := make(map[string]string, len(m))
	for region, code := range m {
		region = strings.ToUpper(strings.TrimSpace(region))
		code = strings.ToUpper(strings.TrimSpace(code))
		if region == "" || code == "" {
			continue
		}
		byRegion[region] = code
	}
	return &Stations{byRegion: byRegion}
}

// Merge returns a new table with overrides applied on top of s. A blank
// override code unmaps the region.
func (s *Stations) Merge(overrides map[string]string) *Stations {
	merged := make(map[string]string, s.Len()+len(overrides))
	if s != nil {
		for region, code := range s.byRegion {
			merged[region] = code
		}
	}
	for region, code := range overrides {
		merged[strings.ToUpper(strings.TrimSpace(region))] = code
	}
	return NewStations(merged)
}

// Lookup returns the station code of region.
func (s *Stations) Lookup(region string) (string, bool) {
	if s == nil {
		return "", false
	}
	code, ok := s.byRegion[strings.ToUpper(strings.TrimSpace(region))]
	return code, ok
}

// Len reports the number of mapped regions.
func (s *Stations) Len() int {
	if s == nil {
		return 0
	}
	return len(s.byRegion)
}
