// Package seed loads a demo network (towns, operators, buses, routes and a
// week of departures) into an empty or partially seeded database.
package seed

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iliyamo/bus-ticket-booking/internal/model"
)

//go:embed default.yaml
var defaultFixture []byte

type Fixture struct {
	Locations []LocationDef `yaml:"locations"`
	Companies []CompanyDef  `yaml:"companies"`
	Layouts   []LayoutDef   `yaml:"layouts"`
	Buses     []BusDef      `yaml:"buses"`
	Routes    []RouteDef    `yaml:"routes"`
	Schedule  Schedule      `yaml:"schedule"`
}

type LocationDef struct {
	Name   string `yaml:"name"`
	Code   string `yaml:"code"`
	County string `yaml:"county"`
}

type CompanyDef struct {
	Name  string `yaml:"name"`
	Phone string `yaml:"phone"`
	Email string `yaml:"email"`
	Logo  string `yaml:"logo"`
}

type LayoutDef struct {
	Name       string                 `yaml:"name"`
	SeatClass  string                 `yaml:"seat_class"`
	TotalSeats uint32                 `yaml:"total_seats"`
	Rows       uint32                 `yaml:"rows"`
	Columns    uint32                 `yaml:"columns"`
	Data       map[string]interface{} `yaml:"data"`
}

type BusDef struct {
	Plate     string   `yaml:"plate"`
	Company   string   `yaml:"company"`
	Type      string   `yaml:"type"`
	Layout    string   `yaml:"layout"`
	Amenities []string `yaml:"amenities"`
}

type StopDef struct {
	At string `yaml:"at"`
	KM uint32 `yaml:"km"`
}

type RouteDef struct {
	From    string    `yaml:"from"`
	To      string    `yaml:"to"`
	KM      uint32    `yaml:"km"`
	Minutes uint32    `yaml:"minutes"`
	Stops   []StopDef `yaml:"stops"`
}

// Schedule generates departures: every route gets each departure time on
// each of the next Days days.  PricePerKM is keyed by bus type and is in
// whole currency units.
type Schedule struct {
	Days       int               `yaml:"days"`
	Departures []string          `yaml:"departures"`
	PricePerKM map[string]uint64 `yaml:"price_per_km"`
}

// Load parses the fixture at path, or the built-in one when path is empty.
func Load(path string) (*Fixture, error) {
	data := defaultFixture
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		data = b
	}
	return Parse(data)
}

func Parse(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("seed: parse fixture: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// validate checks cross references so a typo fails before anything is
// written.
func (f *Fixture) validate() error {
	towns := map[string]bool{}
	for _, l := range f.Locations {
		towns[l.Name] = true
	}
	companies := map[string]bool{}
	for _, c := range f.Companies {
		companies[c.Name] = true
	}
	layouts := map[string]bool{}
	for _, l := range f.Layouts {
		if l.TotalSeats == 0 || l.TotalSeats > l.Rows*l.Columns {
			return fmt.Errorf("seed: layout %q: total_seats out of range", l.Name)
		}
		layouts[l.Name] = true
	}
	for _, b := range f.Buses {
		switch {
		case !companies[b.Company]:
			return fmt.Errorf("seed: bus %q: unknown company %q", b.Plate, b.Company)
		case !layouts[b.Layout]:
			return fmt.Errorf("seed: bus %q: unknown layout %q", b.Plate, b.Layout)
		case !model.ValidBusType(b.Type):
			return fmt.Errorf("seed: bus %q: invalid type %q", b.Plate, b.Type)
		}
	}
	for _, r := range f.Routes {
		if !towns[r.From] || !towns[r.To] {
			return fmt.Errorf("seed: route %s-%s: unknown town", r.From, r.To)
		}
		for _, s := range r.Stops {
			if !towns[s.At] {
				return fmt.Errorf("seed: route %s-%s: unknown stop %q", r.From, r.To, s.At)
			}
			if s.KM == 0 || s.KM >= r.KM {
				return fmt.Errorf("seed: route %s-%s: stop %q outside the route", r.From, r.To, s.At)
			}
		}
	}
	for _, d := range f.Schedule.Departures {
		if _, _, err := clock(d); err != nil {
			return err
		}
	}
	return nil
}

// clock parses "HH:MM".
func clock(s string) (int, int, error) {
	h, m, ok := strings.Cut(s, ":")
	hour, err1 := strconv.Atoi(h)
	minute, err2 := strconv.Atoi(m)
	if !ok || err1 != nil || err2 != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("seed: invalid departure %q", s)
	}
	return hour, minute, nil
}

// Fare is the base price in cents of a trip of km kilometres on a bus of the
// given type.  Unknown types use the MIXED rate.
func (s Schedule) Fare(busType string, km uint32) uint64 {
	rate, ok := s.PricePerKM[busType]
	if !ok {
		rate = s.PricePerKM[model.BusTypeMixed]
	}
	return rate * uint64(km) * 100
}

// DepartureTimes lists the departure instants of the next days days, starting
// with the day of now, in loc.  Instants already in the past are skipped.
func (s Schedule) DepartureTimes(now time.Time, loc *time.Location, days int) []time.Time {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	var out []time.Time
	for d := 0; d < days; d++ {
		day := start.AddDate(0, 0, d)
		for _, hm := range s.Departures {
			h, m, err := clock(hm)
			if err != nil {
				continue
			}
			t := time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, loc)
			if t.After(now) {
				out = append(out, t.UTC())
			}
		}
	}
	return out
}
