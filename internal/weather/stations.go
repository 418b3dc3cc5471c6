package weather

import (
	"fmt"
	"sort"
)

// Station pairs a station code with its display name.
type Station struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// DefaultStations are the Antarctic stations served by the AEMET endpoint.
var DefaultStations = []Station{
	{Code: "89064", Name: "Meteo Station Juan Carlos I"},
	{Code: "89070", Name: "Meteo Station Gabriel de Castilla"},
}

// Directory is an immutable bidirectional mapping between station names
// and codes. Build it once at startup and pass it to whoever needs it.
type Directory struct {
	byName map[string]string
	byCode map[string]string
	codes  []string
}

// NewDirectory builds a Directory from the given stations.
func NewDirectory(stations []Station) *Directory {
	d := &Directory{
		byName: make(map[string]string, len(stations)),
		byCode: make(map[string]string, len(stations)),
	}
	for _, st := range stations {
		d.byName[st.Name] = st.Code
		d.byCode[st.Code] = st.Name
		d.codes = append(d.codes, st.Code)
	}
	sort.Strings(d.codes)
	return d
}

// ResolveCode returns the code for a display name.
func (d *Directory) ResolveCode(name string) (string, bool) {
	code, ok := d.byName[name]
	return code, ok
}

// ResolveName returns the display name for a code, or "Unknown (code)".
func (d *Directory) ResolveName(code string) string {
	if name, ok := d.byCode[code]; ok {
		return name
	}
	return fmt.Sprintf("Unknown (%s)", code)
}

// Lookup accepts either a code or a display name and returns the code.
func (d *Directory) Lookup(identifier string) (string, bool) {
	if _, ok := d.byCode[identifier]; ok {
		return identifier, true
	}
	return d.ResolveCode(identifier)
}

// Codes lists all known codes in ascending order.
func (d *Directory) Codes() []string {
	out := make([]string, len(d.codes))
	copy(out, d.codes)
	return out
}

// Stations lists all known stations ordered by code.
func (d *Directory) Stations() []Station {
	out := make([]Station, 0, len(d.codes))
	for _, code := range d.codes {
		out = append(out, Station{Code: code, Name: d.byCode[code]})
	}
	return out
}
