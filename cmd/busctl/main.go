// Command busctl runs operator tasks against the booking database and Redis:
// schema migration, demo seeding, the expiry sweep, maintenance mode and
// console account bootstrap.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/iliyamo/bus-ticket-booking/internal/config"
	"github.com/iliyamo/bus-ticket-booking/internal/database"
	"github.com/iliyamo/bus-ticket-booking/internal/maintenance"
	"github.com/iliyamo/bus-ticket-booking/internal/model"
	"github.com/iliyamo/bus-ticket-booking/internal/repository"
	"github.com/iliyamo/bus-ticket-booking/internal/seed"
	"github.com/iliyamo/bus-ticket-booking/internal/service"
)

const usage = `usage: busctl <command> [flags]

commands:
  migrate                          apply the database schema
  seed [--file f.yaml] [--days n]  load the demo network and departures
  cleanup [--dry-run]              expire overdue bookings and stale holds
  maintenance on|off|status        toggle maintenance mode
  create-admin --email e --password p [--role ADMIN|STAFF]
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "busctl:", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return errors.New("missing command")
	}
	config.SetupLogger(os.Getenv("APP_ENV"))
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "migrate":
		return withDB(func(db *sql.DB) error {
			if err := database.Migrate(ctx, db); err != nil {
				return err
			}
			fmt.Fprintln(out, "schema up to date")
			return nil
		})
	case "seed":
		return seedCmd(ctx, rest, out)
	case "cleanup":
		return cleanupCmd(ctx, rest, out)
	case "maintenance":
		return maintenanceCmd(ctx, rest, out)
	case "create-admin":
		return createAdminCmd(ctx, rest, out)
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func withDB(fn func(*sql.DB) error) error {
	db, err := database.Open(config.LoadDB())
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()
	return fn(db)
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func seedCmd(ctx context.Context, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("seed", pflag.ContinueOnError)
	file := fs.String("file", "", "YAML fixture (defaults to the built-in network)")
	days := fs.Int("days", 0, "days of departures to schedule (defaults to the fixture's)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	f, err := seed.Load(*file)
	if err != nil {
		return err
	}
	rules := config.LoadBooking()
	return withDB(func(db *sql.DB) error {
		seats := repository.NewSeatRepo(db)
		s := &seed.Seeder{
			Locations: repository.NewLocationRepo(db),
			Companies: repository.NewCompanyRepo(db),
			Layouts:   repository.NewSeatLayoutRepo(db),
			Buses:     repository.NewBusRepo(db, seats),
			Routes:    repository.NewRouteRepo(db),
			Trips:     repository.NewTripRepo(db),
			Now:       func() time.Time { return time.Now().UTC() },
			Loc:       rules.Location(),
		}
		rep, err := s.Run(ctx, f, *days)
		if err != nil {
			return err
		}
		return printJSON(out, rep)
	})
}

func cleanupCmd(ctx context.Context, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("cleanup", pflag.ContinueOnError)
	dryRun := fs.Bool("dry-run", false, "report without writing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return withDB(func(db *sql.DB) error {
		svc := service.NewBookingService(db,
			repository.NewTripRepo(db),
			repository.NewSeatRepo(db),
			repository.NewAvailabilityRepo(db),
			repository.NewBookingRepo(db),
			config.LoadBooking(), nil)
		rep, err := svc.Cleanup(ctx, *dryRun)
		if err != nil {
			return err
		}
		if !*dryRun {
			n, err := repository.NewTokenRepo(db).PurgeExpired(ctx, svc.Now())
			if err != nil {
				return fmt.Errorf("purge refresh tokens: %w", err)
			}
			fmt.Fprintf(out, "purged %d expired refresh tokens\n", n)
		}
		return printJSON(out, rep)
	})
}

func maintenanceCmd(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("maintenance: want on, off or status")
	}
	rdb := config.NewRedisClient(config.LoadRedis())
	if rdb == nil {
		return errors.New("maintenance: redis unavailable")
	}
	defer rdb.Close()
	store := maintenance.NewStore(rdb)

	var (
		st  maintenance.Status
		err error
	)
	switch args[0] {
	case "on":
		fs := pflag.NewFlagSet("maintenance on", pflag.ContinueOnError)
		minutes := fs.Int("duration", int(maintenance.DefaultDuration/time.Minute), "minutes until the site reopens (0 = until turned off)")
		message := fs.String("message", "", "message shown to customers")
		eta := fs.String("eta", "", "human readable ETA")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *minutes < 0 {
			return errors.New("maintenance: duration must not be negative")
		}
		st, err = store.Enable(ctx, maintenance.Options{
			Duration: time.Duration(*minutes) * time.Minute,
			Message:  *message,
			ETA:      *eta,
		})
	case "off":
		st, err = store.Disable(ctx)
	case "status":
		st, err = store.Status(ctx)
	default:
		return fmt.Errorf("maintenance: unknown action %q", args[0])
	}
	if err != nil {
		return err
	}
	return printJSON(out, st)
}

func createAdminCmd(ctx context.Context, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("create-admin", pflag.ContinueOnError)
	email := fs.String("email", "", "login email")
	password := fs.String("password", "", "password (min 8 characters)")
	role := fs.String("role", model.RoleAdmin, "ADMIN or STAFF")
	cost := fs.Int("cost", 12, "bcrypt cost")
	if err := fs.Parse(args); err != nil {
		return err
	}
	r := strings.ToUpper(strings.TrimSpace(*role))
	switch {
	case strings.TrimSpace(*email) == "":
		return errors.New("create-admin: --email is required")
	case len(*password) < 8:
		return errors.New("create-admin: --password must be at least 8 characters")
	case r != model.RoleAdmin && r != model.RoleStaff:
		return fmt.Errorf("create-admin: invalid role %q", *role)
	}
	return withDB(func(db *sql.DB) error {
		users := repository.NewUserRepo(db)
		id, err := users.Create(ctx, *email, *password, r, *cost)
		if errors.Is(err, repository.ErrEmailExists) {
			if err := users.SetPassword(ctx, *email, *password, *cost); err != nil {
				return err
			}
			fmt.Fprintf(out, "password updated for %s\n", strings.ToLower(strings.TrimSpace(*email)))
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "created %s user %d\n", r, id)
		return nil
	})
}
