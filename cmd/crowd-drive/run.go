package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/crowd-drive/internal/config"
	"github.com/banshee-data/crowd-drive/internal/control"
	"github.com/banshee-data/crowd-drive/internal/drivelink"
	"github.com/banshee-data/crowd-drive/internal/monitoring"
	"github.com/banshee-data/crowd-drive/internal/runlog"
	"github.com/banshee-data/crowd-drive/internal/sim"
	"github.com/banshee-data/crowd-drive/internal/timeutil"
	"github.com/banshee-data/crowd-drive/internal/units"
	"github.com/banshee-data/crowd-drive/internal/world"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drive the vehicle over the serial link",
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			mustBind(v, cmd.Flags(), map[string]string{
				"serial.port":      "port",
				"serial.baud_rate": "baud",
				"serial.parity":    "parity",
				"listen":           "listen",
				"db":               "db",
				"units":            "units",
				"status_interval":  "status-interval",
			})
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			tuning, cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			opts, err := driveOptionsFrom(v)
			if err != nil {
				return err
			}
			var port drivelink.PortOptions
			if err := v.UnmarshalKey("serial", &port); err != nil {
				return fmt.Errorf("serial config: %w", err)
			}
			path := v.GetString("serial.port")
			link, err := drivelink.OpenSerial(path, port)
			if err != nil {
				return err
			}
			defer link.Close()
			monitoring.L().Info("serial link open", zap.String("port", path), zap.Int("baud", port.BaudRate))

			db, err := runlog.Open(opts.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			return drive(cmd.Context(), link, db, tuning, cfg, opts)
		},
	}
	f := cmd.Flags()
	f.String("port", "/dev/ttyUSB0", "drive-by-wire serial device")
	f.Int("baud", drivelink.DefaultBaudRate, "serial baud rate")
	f.String("parity", "N", "serial parity: N, E or O")
	f.String("listen", "localhost:8081", "admin HTTP listen address (empty disables)")
	f.String("db", "runs.db", "run log sqlite database")
	f.String("units", units.MPS, "speed units for status output: "+fmt.Sprint(units.ValidUnits))
	f.Duration("status-interval", 5*time.Second, "status log interval (0 disables)")
	return cmd
}

// driveOptions are the run settings outside the tuning file.
type driveOptions struct {
	Listen         string
	DBPath         string
	Units          string
	StatusInterval time.Duration
	Clock          timeutil.Clock
}

func driveOptionsFrom(v *viper.Viper) (driveOptions, error) {
	u, err := units.Parse(v.GetString("units"))
	if err != nil {
		return driveOptions{}, err
	}
	return driveOptions{
		Listen:         v.GetString("listen"),
		DBPath:         v.GetString("db"),
		Units:          u,
		StatusInterval: v.GetDuration("status_interval"),
	}, nil
}

// drive wires the link, tracker, controller and recorder together and
// runs them until the controller exits. The controller's error is
// returned; ctx cancellation is not treated as a failure.
func drive(ctx context.Context, link drivelink.Link, db *runlog.DB, tuning *config.TuningConfig, cfg control.Config, opts driveOptions) error {
	log := monitoring.Named("drive")
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	tracker := world.NewTracker(world.TrackerConfig{StaleTimeout: tuning.GetAgentStaleTimeout()}, clock)
	sensor := drivelink.NewSensor(clock, cfg.MaxSpeed, monitoring.Named("sensor"))
	flag := &drivelink.EmergencyFlag{}

	rec, err := runlog.NewRecorder(db, runlog.RunMeta{
		VehicleModel: cfg.Model.String(),
		Source:       "link",
		StartedAt:    clock.Now(),
	})
	if err != nil {
		return err
	}

	ctrl, err := control.New(cfg, control.Deps{
		Sensor: sensor,
		Planner: sim.NewCruise(sim.CruiseConfig{
			Speed:      cfg.MaxSpeed / 2,
			Ahead:      tuning.GetPathplanAhead(),
			Wheelbase:  cfg.Geometry.Length,
			MaxAccel:   cfg.MaxAccel,
			StopMargin: 0.5,
		}, cfg.Actions),
		Agents: tracker,
		Emergency: control.AnyEmergency{
			flag,
			control.ProximityEmergency{Distance: cfg.EmergencyDistance},
		},
		Sink:     drivelink.NewSink(link),
		Observer: rec,
		Clock:    clock,
		Logger:   monitoring.Named("control"),
	})
	if err != nil {
		_ = rec.Finish(err, clock.Now())
		return err
	}

	router := &drivelink.Router{
		Sensor:    sensor,
		Agents:    tracker,
		Plans:     ctrl,
		Emergency: flag,
		Log:       monitoring.Named("router"),
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return ignoreCanceled(link.Monitor(gctx)) })
	g.Go(func() error { return ignoreCanceled(router.Run(gctx, link)) })
	g.Go(func() error { return ignoreCanceled(tracker.RunCleaner(gctx)) })

	var runErr error
	g.Go(func() error {
		runErr = ctrl.Run(gctx)
		cancel()
		return nil
	})

	if opts.Listen != "" {
		mux := http.NewServeMux()
		link.AttachAdminRoutes(mux)
		if err := db.AttachAdminRoutes(mux); err != nil {
			cancel()
			_ = g.Wait()
			return errors.Join(err, rec.Finish(err, clock.Now()))
		}
		g.Go(func() error { return serveAdmin(gctx, opts.Listen, mux, log) })
	}

	if opts.StatusInterval > 0 {
		g.Go(func() error {
			statusLoop(gctx, clock, opts, ctrl, tracker, link, log)
			return nil
		})
	}

	gerr := g.Wait()
	if gerr != nil && (runErr == nil || errors.Is(runErr, context.Canceled)) {
		runErr = gerr
	}
	if ferr := rec.Finish(runErr, clock.Now()); ferr != nil {
		log.Error("run log finish failed", zap.Error(ferr))
	}
	log.Info("run finished",
		zap.String("run_id", rec.RunID()),
		zap.String("outcome", runlog.Outcome(runErr)),
		zap.Uint64("dropped_ticks", rec.Dropped()))
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func serveAdmin(ctx context.Context, addr string, mux *http.ServeMux, log *zap.Logger) error {
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()
	log.Info("admin HTTP listening", zap.String("addr", addr))

	select {
	case err := <-errc:
		return fmt.Errorf("admin HTTP: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("admin HTTP shutdown", zap.Error(err))
	}
	return nil
}

// statusLoop logs a one-line summary every StatusInterval.
func statusLoop(ctx context.Context, clock timeutil.Clock, opts driveOptions, ctrl *control.Controller, tracker *world.Tracker, link drivelink.Link, log *zap.Logger) {
	t := clock.NewTicker(opts.StatusInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			last := ctrl.Last()
			if last == nil {
				log.Info("waiting for first tick", zap.Int("agents", tracker.Len()))
				continue
			}
			st := link.Stats()
			log.Info("status",
				zap.Uint64("tick", last.Tick),
				zap.String("mode", last.Mode.String()),
				zap.String("speed", units.Format(last.Vehicle.Speed, opts.Units)),
				zap.Int("agents", tracker.Len()),
				zap.Uint64("lines_in", st.LinesIn),
				zap.Uint64("lines_dropped", st.Dropped))
		}
	}
}
