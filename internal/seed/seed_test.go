package seed

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/bus-ticket-booking/internal/model"
	"github.com/iliyamo/bus-ticket-booking/internal/repository"
)

func TestDefaultFixtureIsConsistent(t *testing.T) {
	f, err := Load("")
	require.NoError(t, err)
	assert.Len(t, f.Locations, 20)
	assert.NotEmpty(t, f.Buses)
	assert.Equal(t, 7, f.Schedule.Days)

	for _, l := range f.Layouts {
		layout := model.SeatLayout{SeatClass: l.SeatClass, TotalSeats: l.TotalSeats, Rows: l.Rows, Columns: l.Columns}
		assert.LessOrEqual(t, l.TotalSeats, l.Rows*l.Columns, l.Name)
		assert.NotEmpty(t, model.GenerateSeats(1, layout), l.Name)
	}
}

func TestParseRejectsBrokenReferences(t *testing.T) {
	cases := map[string]string{
		"unknown company": `
companies: [{name: A}]
layouts: [{name: L, seat_class: VIP, total_seats: 4, rows: 1, columns: 4}]
buses: [{plate: X 1, company: B, type: VIP, layout: L}]`,
		"stop beyond route end": `
locations: [{name: A, code: A}, {name: B, code: B}, {name: C, code: C}]
routes: [{from: A, to: B, km: 10, minutes: 10, stops: [{at: C, km: 10}]}]`,
		"layout too small": `
layouts: [{name: L, seat_class: VIP, total_seats: 9, rows: 2, columns: 4}]`,
		"bad departure": `
schedule: {departures: ["25:00"]}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestFareUsesBusTypeRate(t *testing.T) {
	s := Schedule{PricePerKM: map[string]uint64{"VIP": 25, "MIXED": 15}}
	assert.Equal(t, uint64(25*484*100), s.Fare("VIP", 484))
	assert.Equal(t, uint64(15*100*100), s.Fare("ECONOMY", 100))
}

func TestDepartureTimesSkipsPast(t *testing.T) {
	loc := time.FixedZone("EAT", 3*60*60)
	s := Schedule{Departures: []string{"06:00", "14:00"}}
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, loc)

	got := s.DepartureTimes(now, loc, 2)
	require.Len(t, got, 3)
	assert.Equal(t, time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC), got[0])
	assert.Equal(t, time.Date(2026, 3, 3, 3, 0, 0, 0, time.UTC), got[1])
	assert.Equal(t, time.Date(2026, 3, 3, 11, 0, 0, 0, time.UTC), got[2])
}

func TestSeedLocationsSkipsExisting(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM locations ORDER BY name")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "code", "county", "is_active", "created_at", "updated_at"}).
			AddRow(1, "Nairobi", "NBI", "Nairobi", true, now, now))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO locations")).
		WithArgs("Mombasa", "MSA", "Mombasa", true).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM locations WHERE id = ?")).
		WithArgs(uint64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "code", "county", "is_active", "created_at", "updated_at"}).
			AddRow(2, "Mombasa", "MSA", "Mombasa", true, now, now))

	s := &Seeder{Locations: repository.NewLocationRepo(db)}
	f := &Fixture{Locations: []LocationDef{
		{Name: "Nairobi", Code: "NBI", County: "Nairobi"},
		{Name: "Mombasa", Code: "MSA", County: "Mombasa"},
	}}
	var rep Report
	ids, err := s.seedLocations(context.Background(), f, &rep)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Locations)
	assert.Equal(t, map[string]uint64{"Nairobi": 1, "Mombasa": 2}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
