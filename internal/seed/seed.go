package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/iliyamo/bus-ticket-booking/internal/model"
	"github.com/iliyamo/bus-ticket-booking/internal/repository"
)

// Seeder writes a Fixture through the repositories.  Rows are matched by
// their natural keys (location and company names, layout names, plates and
// origin/destination pairs), so running it again only adds what is missing.
type Seeder struct {
	Locations *repository.LocationRepo
	Companies *repository.CompanyRepo
	Layouts   *repository.SeatLayoutRepo
	Buses     *repository.BusRepo
	Routes    *repository.RouteRepo
	Trips     *repository.TripRepo

	Log *slog.Logger
	Now func() time.Time
	Loc *time.Location
}

// Report counts the rows created by one run.
type Report struct {
	Locations int `json:"locations"`
	Companies int `json:"companies"`
	Layouts   int `json:"layouts"`
	Buses     int `json:"buses"`
	Seats     int `json:"seats"`
	Routes    int `json:"routes"`
	Stops     int `json:"stops"`
	Trips     int `json:"trips"`
}

func (r Report) String() string {
	return fmt.Sprintf("locations=%d companies=%d layouts=%d buses=%d seats=%d routes=%d stops=%d trips=%d",
		r.Locations, r.Companies, r.Layouts, r.Buses, r.Seats, r.Routes, r.Stops, r.Trips)
}

// Run seeds f.  days overrides the fixture's schedule length when positive.
func (s *Seeder) Run(ctx context.Context, f *Fixture, days int) (Report, error) {
	var rep Report
	if days <= 0 {
		days = f.Schedule.Days
	}
	towns, err := s.seedLocations(ctx, f, &rep)
	if err != nil {
		return rep, fmt.Errorf("seed locations: %w", err)
	}
	companies, err := s.seedCompanies(ctx, f, &rep)
	if err != nil {
		return rep, fmt.Errorf("seed companies: %w", err)
	}
	layouts, err := s.seedLayouts(ctx, f, &rep)
	if err != nil {
		return rep, fmt.Errorf("seed layouts: %w", err)
	}
	buses, err := s.seedBuses(ctx, f, companies, layouts, &rep)
	if err != nil {
		return rep, fmt.Errorf("seed buses: %w", err)
	}
	routes, err := s.seedRoutes(ctx, f, towns, &rep)
	if err != nil {
		return rep, fmt.Errorf("seed routes: %w", err)
	}
	if err := s.seedTrips(ctx, f.Schedule, days, routes, buses, &rep); err != nil {
		return rep, fmt.Errorf("seed trips: %w", err)
	}
	s.log().Info("seed finished", "created", rep.String())
	return rep, nil
}

func (s *Seeder) log() *slog.Logger {
	if s.Log == nil {
		return slog.Default()
	}
	return s.Log
}

func (s *Seeder) seedLocations(ctx context.Context, f *Fixture, rep *Report) (map[string]uint64, error) {
	existing, err := s.Locations.List(ctx, false)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]uint64, len(existing))
	for _, l := range existing {
		ids[l.Name] = l.ID
	}
	for _, def := range f.Locations {
		if _, ok := ids[def.Name]; ok {
			continue
		}
		l := model.Location{Name: def.Name, Code: def.Code, County: def.County, IsActive: true}
		if err := s.Locations.Create(ctx, &l); err != nil {
			return nil, fmt.Errorf("%s: %w", def.Name, err)
		}
		ids[l.Name] = l.ID
		rep.Locations++
	}
	return ids, nil
}

func (s *Seeder) seedCompanies(ctx context.Context, f *Fixture, rep *Report) (map[string]uint64, error) {
	existing, err := s.Companies.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]uint64, len(existing))
	for _, c := range existing {
		ids[c.Name] = c.ID
	}
	for _, def := range f.Companies {
		if _, ok := ids[def.Name]; ok {
			continue
		}
		c := model.Company{Name: def.Name, ContactPhone: def.Phone, Email: def.Email, LogoURL: def.Logo, IsActive: true}
		if err := s.Companies.Create(ctx, &c); err != nil {
			return nil, fmt.Errorf("%s: %w", def.Name, err)
		}
		ids[c.Name] = c.ID
		rep.Companies++
	}
	return ids, nil
}

func (s *Seeder) seedLayouts(ctx context.Context, f *Fixture, rep *Report) (map[string]model.SeatLayout, error) {
	existing, err := s.Layouts.List(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]model.SeatLayout, len(existing))
	for _, l := range existing {
		byName[l.Name] = l
	}
	for _, def := range f.Layouts {
		if _, ok := byName[def.Name]; ok {
			continue
		}
		data, err := json.Marshal(def.Data)
		if err != nil {
			return nil, err
		}
		l := model.SeatLayout{
			Name:       def.Name,
			SeatClass:  strings.ToUpper(def.SeatClass),
			TotalSeats: def.TotalSeats,
			Rows:       def.Rows,
			Columns:    def.Columns,
			LayoutData: data,
		}
		if err := s.Layouts.Create(ctx, &l); err != nil {
			return nil, fmt.Errorf("%s: %w", def.Name, err)
		}
		byName[l.Name] = l
		rep.Layouts++
	}
	return byName, nil
}

func (s *Seeder) seedBuses(ctx context.Context, f *Fixture, companies map[string]uint64, layouts map[string]model.SeatLayout, rep *Report) ([]model.Bus, error) {
	existing, err := s.Buses.List(ctx, 0)
	if err != nil {
		return nil, err
	}
	byPlate := make(map[string]model.Bus, len(existing))
	for _, b := range existing {
		byPlate[b.NumberPlate] = b
	}
	var out []model.Bus
	for _, def := range f.Buses {
		if b, ok := byPlate[def.Plate]; ok {
			if b.IsActive {
				out = append(out, b)
			}
			continue
		}
		layout := layouts[def.Layout]
		b := model.Bus{
			CompanyID:    companies[def.Company],
			NumberPlate:  def.Plate,
			BusType:      def.Type,
			SeatLayoutID: layout.ID,
			TotalSeats:   layout.TotalSeats,
			Amenities:    def.Amenities,
			IsActive:     true,
		}
		seats := model.GenerateSeats(0, layout)
		if err := s.Buses.CreateWithSeats(ctx, &b, seats); err != nil {
			return nil, fmt.Errorf("%s: %w", def.Plate, err)
		}
		out = append(out, b)
		rep.Buses++
		rep.Seats += len(seats)
	}
	return out, nil
}

func routeKey(origin, destination uint64) string {
	return fmt.Sprintf("%d-%d", origin, destination)
}

func (s *Seeder) seedRoutes(ctx context.Context, f *Fixture, towns map[string]uint64, rep *Report) ([]model.Route, error) {
	existing, err := s.Routes.List(ctx)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]model.Route, len(existing))
	for _, r := range existing {
		byKey[routeKey(r.OriginID, r.DestinationID)] = r
	}
	var out []model.Route
	for _, def := range f.Routes {
		key := routeKey(towns[def.From], towns[def.To])
		if r, ok := byKey[key]; ok {
			if r.IsActive {
				out = append(out, r)
			}
			continue
		}
		r := model.Route{
			OriginID:      towns[def.From],
			DestinationID: towns[def.To],
			DistanceKM:    def.KM,
			DurationMin:   def.Minutes,
			IsActive:      true,
		}
		if err := s.Routes.Create(ctx, &r); err != nil {
			return nil, fmt.Errorf("%s-%s: %w", def.From, def.To, err)
		}
		rep.Routes++
		for i, st := range def.Stops {
			stop := model.RouteStop{
				RouteID:            r.ID,
				LocationID:         towns[st.At],
				StopOrder:          uint32(i + 1),
				DistanceFromOrigin: st.KM,
			}
			if err := s.Routes.AddStop(ctx, &stop); err != nil {
				return nil, fmt.Errorf("%s-%s stop %s: %w", def.From, def.To, st.At, err)
			}
			rep.Stops++
		}
		byKey[key] = r
		out = append(out, r)
	}
	return out, nil
}

// seedTrips gives every route each scheduled departure, rotating through the
// active buses.  A route that already departs at an instant is left alone.
func (s *Seeder) seedTrips(ctx context.Context, sch Schedule, days int, routes []model.Route, buses []model.Bus, rep *Report) error {
	if len(routes) == 0 || len(buses) == 0 || days <= 0 {
		return nil
	}
	loc := s.Loc
	if loc == nil {
		loc = time.UTC
	}
	next := 0
	for _, dep := range sch.DepartureTimes(s.Now(), loc, days) {
		for _, r := range routes {
			bus := buses[next%len(buses)]
			next++
			taken, err := s.Trips.List(ctx, repository.TripFilter{RouteID: r.ID, From: dep, To: dep.Add(time.Minute), Limit: 1})
			if err != nil {
				return err
			}
			if len(taken) > 0 {
				continue
			}
			t := model.Trip{
				BusID:          bus.ID,
				RouteID:        r.ID,
				DepartureTime:  dep,
				ArrivalTime:    dep.Add(time.Duration(r.DurationMin) * time.Minute),
				BasePriceCents: sch.Fare(bus.BusType, r.DistanceKM),
				Status:         model.TripScheduled,
			}
			if err := s.Trips.Create(ctx, &t); err != nil {
				return err
			}
			rep.Trips++
		}
	}
	return nil
}
