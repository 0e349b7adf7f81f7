package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kilianp07/evtrip/app"
	"github.com/kilianp07/evtrip/core/model"
	coretrips "github.com/kilianp07/evtrip/core/trips"
	"github.com/kilianp07/evtrip/pkg/export"
)

// cliSource tags commands issued from the command line.
const cliSource = "cli"

var tripsCmd = &cobra.Command{
	Use:   "trips",
	Short: "Manage the trips of a vehicle",
}

// withService builds the service without the MQTT bridge, runs fn and closes it.
func withService(cmd *cobra.Command, fn func(ctx context.Context, svc *app.Service) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.MQTT.Broker = ""
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := svc.Close(); cerr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "close: %v\n", cerr)
		}
	}()
	return fn(ctx, svc)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func found(cmd *cobra.Command, id string, ok bool, err error) error {
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("trip %s not found", id)
	}
	return printJSON(cmd.OutOrStdout(), app.FoundResult{TripID: id, Found: true})
}

func newLsCmd() *cobra.Command {
	var kind string
	c := &cobra.Command{
		Use:   "ls <vehicle>",
		Short: "List the stored trips",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *app.Service) error {
				m, err := svc.Registry().Get(args[0])
				if err != nil {
					return err
				}
				var list []model.Trip
				switch kind {
				case "":
					list, err = m.List(ctx)
				case string(model.KindRecurring):
					list, err = m.ListRecurring(ctx)
				case string(model.KindPunctual):
					list, err = m.ListPunctual(ctx)
				default:
					return fmt.Errorf("unknown type %q", kind)
				}
				if err != nil {
					return err
				}
				if list == nil {
					list = []model.Trip{}
				}
				return printJSON(cmd.OutOrStdout(), list)
			})
		},
	}
	c.Flags().StringVar(&kind, "type", "", "recurring or punctual")
	return c
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <vehicle> <trip-id>",
		Short: "Show one trip",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *app.Service) error {
				m, err := svc.Registry().Get(args[0])
				if err != nil {
					return err
				}
				t, ok, err := m.Get(ctx, args[1])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("trip %s not found", args[1])
				}
				return printJSON(cmd.OutOrStdout(), t)
			})
		},
	}
}

// kwhFlag returns the --kwh value when it was given.
func kwhFlag(cmd *cobra.Command, v float64) *float64 {
	if !cmd.Flags().Changed("kwh") {
		return nil
	}
	return &v
}

func newAddRecurringCmd() *cobra.Command {
	var (
		in  app.RecurringInput
		kwh float64
	)
	c := &cobra.Command{
		Use:   "add-recurring <vehicle>",
		Short: "Add a weekly trip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.KWh = kwhFlag(cmd, kwh)
			return withService(cmd, func(ctx context.Context, svc *app.Service) error {
				id, err := svc.Commands().AddRecurring(ctx, cliSource, args[0], in)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), app.TripResult{TripID: id})
			})
		},
	}
	c.Flags().StringVar(&in.Weekday, "weekday", "", "day of week, e.g. monday")
	c.Flags().StringVar(&in.Time, "time", "", "departure time HH:MM")
	c.Flags().Float64Var(&in.KM, "km", 0, "distance in km")
	c.Flags().Float64Var(&kwh, "kwh", 0, "energy in kWh, estimated from km when omitted")
	c.Flags().StringVar(&in.Description, "description", "", "free text")
	_ = c.MarkFlagRequired("weekday")
	_ = c.MarkFlagRequired("time")
	return c
}

func newAddPunctualCmd() *cobra.Command {
	var (
		in  app.PunctualInput
		kwh float64
	)
	c := &cobra.Command{
		Use:   "add-punctual <vehicle>",
		Short: "Add a one-off trip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.KWh = kwhFlag(cmd, kwh)
			return withService(cmd, func(ctx context.Context, svc *app.Service) error {
				id, err := svc.Commands().AddPunctual(ctx, cliSource, args[0], in)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), app.TripResult{TripID: id})
			})
		},
	}
	c.Flags().StringVar(&in.Datetime, "datetime", "", "departure, e.g. 2025-01-07T10:00")
	c.Flags().Float64Var(&in.KM, "km", 0, "distance in km")
	c.Flags().Float64Var(&kwh, "kwh", 0, "energy in kWh, estimated from km when omitted")
	c.Flags().StringVar(&in.Description, "description", "", "free text")
	_ = c.MarkFlagRequired("datetime")
	return c
}

// parseAssignments turns key=value pairs into edit fields. Numbers and
// booleans are converted, everything else stays a string.
func parseAssignments(pairs []string) (map[string]any, error) {
	fields := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", p)
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			fields[k] = f
		} else if b, err := strconv.ParseBool(v); err == nil {
			fields[k] = b
		} else {
			fields[k] = v
		}
	}
	return fields, nil
}

func newEditCmd() *cobra.Command {
	var sets []string
	c := &cobra.Command{
		Use:   "edit <vehicle> <trip-id>",
		Short: "Change fields of a trip",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := parseAssignments(sets)
			if err != nil {
				return err
			}
			return withService(cmd, func(ctx context.Context, svc *app.Service) error {
				ok, err := svc.Commands().EditTrip(ctx, cliSource, args[0], args[1], fields)
				return found(cmd, args[1], ok, err)
			})
		},
	}
	c.Flags().StringArrayVar(&sets, "set", nil, "field=value, repeatable")
	return c
}

type idOp func(c *app.Commands) func(ctx context.Context, source, vehicleID, tripID string) (bool, error)

func newIDCmd(use, short string, op idOp) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <vehicle> <trip-id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *app.Service) error {
				ok, err := op(svc.Commands())(ctx, cliSource, args[0], args[1])
				return found(cmd, args[1], ok, err)
			})
		},
	}
}

func newImportCmd() *cobra.Command {
	var keep bool
	c := &cobra.Command{
		Use:   "import <vehicle> <pattern.yaml>",
		Short: "Replace the recurring trips with a weekly pattern",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			pattern, err := coretrips.LoadWeeklyPattern(f)
			_ = f.Close()
			if err != nil {
				return err
			}
			clearExisting := !keep
			return withService(cmd, func(ctx context.Context, svc *app.Service) error {
				res, err := svc.Commands().ImportPattern(ctx, cliSource, args[0], app.PatternInput{Pattern: pattern, ClearExisting: &clearExisting})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	c.Flags().BoolVar(&keep, "keep-existing", false, "keep the current recurring trips")
	return c
}

func newNextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "next <vehicle>",
		Short: "Show the next trip and today's energy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *app.Service) error {
				c, err := svc.Coordinator(args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), c.Refresh(ctx))
			})
		},
	}
}

func newExportCmd() *cobra.Command {
	var (
		format string
		days   int
	)
	c := &cobra.Command{
		Use:   "export <vehicle>",
		Short: "Write the upcoming occurrences as JSON or CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *app.Service) error {
				c, err := svc.Coordinator(args[0])
				if err != nil {
					return err
				}
				if days <= 0 {
					days = c.Planner().Horizon()
				}
				occ, err := c.Planner().ExpandDays(ctx, days)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
				}
				switch format {
				case "json":
					return export.WriteJSON(cmd.OutOrStdout(), occ)
				case "csv":
					return export.WriteCSV(cmd.OutOrStdout(), occ)
				default:
					return fmt.Errorf("unknown format %q", format)
				}
			})
		},
	}
	c.Flags().StringVar(&format, "format", "json", "json or csv")
	c.Flags().IntVar(&days, "days", 0, "horizon in days, defaults to the configured one")
	return c
}

func init() {
	tripsCmd.AddCommand(
		newLsCmd(),
		newGetCmd(),
		newAddRecurringCmd(),
		newAddPunctualCmd(),
		newEditCmd(),
		newIDCmd("delete", "Delete a trip", func(c *app.Commands) func(context.Context, string, string, string) (bool, error) {
			return c.DeleteTrip
		}),
		newIDCmd("pause", "Pause a recurring trip", func(c *app.Commands) func(context.Context, string, string, string) (bool, error) {
			return c.PauseRecurring
		}),
		newIDCmd("resume", "Resume a recurring trip", func(c *app.Commands) func(context.Context, string, string, string) (bool, error) {
			return c.ResumeRecurring
		}),
		newIDCmd("complete", "Mark a punctual trip completed", func(c *app.Commands) func(context.Context, string, string, string) (bool, error) {
			return c.CompletePunctual
		}),
		newIDCmd("cancel", "Cancel a punctual trip", func(c *app.Commands) func(context.Context, string, string, string) (bool, error) {
			return c.CancelPunctual
		}),
		newImportCmd(),
		newNextCmd(),
		newExportCmd(),
	)
	rootCmd.AddCommand(tripsCmd)
}
