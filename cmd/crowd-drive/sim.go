package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/banshee-data/crowd-drive/internal/control"
	"github.com/banshee-data/crowd-drive/internal/geom"
	"github.com/banshee-data/crowd-drive/internal/monitoring"
	"github.com/banshee-data/crowd-drive/internal/runlog"
	"github.com/banshee-data/crowd-drive/internal/sim"
	"github.com/banshee-data/crowd-drive/internal/units"
)

func newSimCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Run the controller against a simulated vehicle and crowd",
		Long: `Runs the controller in closed loop against a kinematic vehicle on a
straight reference path. Walkers are given as x,y,vx,vy[,appear_s[,lifetime_s]]
and move in straight lines. Simulated time runs as fast as the loop allows.`,
		Example: `  crowd-drive sim --length 40 --walker 20,-3,0,1 --db sim.db`,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			mustBind(v, cmd.Flags(), map[string]string{
				"sim.length":    "length",
				"sim.walkers":   "walker",
				"sim.max_ticks": "max-ticks",
				"db":            "db",
				"units":         "units",
			})
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			unit, err := units.Parse(v.GetString("units"))
			if err != nil {
				return err
			}
			sc := sim.StraightScenario(cfg, v.GetFloat64("sim.length"))
			sc.MaxTicks = v.GetInt("sim.max_ticks")
			for i, spec := range v.GetStringSlice("sim.walkers") {
				w, err := parseWalker(spec)
				if err != nil {
					return err
				}
				w.ID = i + 1
				sc.Walkers = append(sc.Walkers, w)
			}

			var observers []control.Observer
			var rec *runlog.Recorder
			if p := v.GetString("db"); p != "" {
				db, err := runlog.Open(p)
				if err != nil {
					return err
				}
				defer db.Close()
				rec, err = runlog.NewRecorder(db, runlog.RunMeta{
					VehicleModel: cfg.Model.String(),
					Source:       "sim",
					StartedAt:    sc.Start,
				})
				if err != nil {
					return err
				}
				observers = append(observers, rec)
			}

			loop, err := sim.Build(cfg, sc, monitoring.Named("control"), observers...)
			if err != nil {
				return err
			}
			runErr := loop.Run(cmd.Context())
			if rec != nil {
				if err := rec.Finish(runErr, loop.Clock.Now()); err != nil {
					monitoring.L().Error("run log finish failed", zap.Error(err))
				}
			}

			printSummary(cmd, loop, runErr, unit, sc.Start)
			if rec != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "run_id:    %s\n", rec.RunID())
			}
			return runErr
		},
	}
	f := cmd.Flags()
	f.Float64("length", 30, "reference path length in metres")
	f.StringArray("walker", nil, "scripted walker x,y,vx,vy[,appear_s[,lifetime_s]] (repeatable)")
	f.Int("max-ticks", 1000, "abort after this many control periods (0 = unbounded)")
	f.String("db", "", "record the run to this sqlite database")
	f.String("units", units.MPS, "speed units for the summary")
	return cmd
}

func parseWalker(spec string) (sim.Walker, error) {
	parts := strings.Split(spec, ",")
	if len(parts) < 4 || len(parts) > 6 {
		return sim.Walker{}, fmt.Errorf("walker %q: want x,y,vx,vy[,appear_s[,lifetime_s]]", spec)
	}
	vals := make([]float64, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return sim.Walker{}, fmt.Errorf("walker %q: %w", spec, err)
		}
		vals[i] = f
	}
	w := sim.Walker{
		Type:     "ped",
		Start:    geom.Pt(vals[0], vals[1]),
		Velocity: geom.Pt(vals[2], vals[3]),
	}
	if len(vals) > 4 {
		w.Appear = seconds(vals[4])
	}
	if len(vals) > 5 {
		w.Lifetime = seconds(vals[5])
	}
	return w, nil
}

func seconds(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }

func printSummary(cmd *cobra.Command, loop *sim.Loop, runErr error, unit string, start time.Time) {
	out := cmd.OutOrStdout()
	sum := loop.Stats.Snapshot()
	st := loop.Plant.State()

	fmt.Fprintf(out, "outcome:   %s\n", runlog.Outcome(runErr))
	fmt.Fprintf(out, "ticks:     %d (%s simulated)\n", sum.Ticks, loop.Clock.Since(start).Round(time.Millisecond))
	fmt.Fprintf(out, "reward:    %.2f\n", sum.TotalReward)
	fmt.Fprintf(out, "final:     x=%.2f y=%.2f heading=%.3f speed=%s\n", st.Pos.X, st.Pos.Y, st.Heading, units.Format(st.Speed, unit))

	modes := make([]control.Mode, 0, len(sum.Modes))
	for m := range sum.Modes {
		modes = append(modes, m)
	}
	sort.Slice(modes, func(i, j int) bool { return modes[i] < modes[j] })
	for _, m := range modes {
		fmt.Fprintf(out, "mode:      %-20s %d\n", m, sum.Modes[m])
	}
	for id, n := range sum.Collisions {
		fmt.Fprintf(out, "collision: agent %d for %d ticks\n", id, n)
	}
}
