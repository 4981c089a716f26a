package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"voicebar/bootstrap"
	"voicebar/config"
	"voicebar/logger"
	"voicebar/macos"
	"voicebar/permission"

	"github.com/spf13/cobra"
)

// stdoutEmitter prints lifecycle events as JSON lines.
type stdoutEmitter struct{ w io.Writer }

func (e stdoutEmitter) Emit(eventName string, data any) {
	b, _ := json.Marshal(map[string]any{"event": eventName, "data": data})
	fmt.Fprintln(e.w, string(b))
}

func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, func(), error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	log, closer, err := logger.New(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open log: %w", err)
	}
	return cfg, log, func() { closer.Close() }, nil
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Evaluate permissions, prompting for any not yet decided",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, done, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer done()
			cfg.Permissions.WatchDatabase = false

			asJSON, _ := cmd.Flags().GetBool("json")
			events, _ := cmd.Flags().GetBool("events")
			opts := bootstrap.Options{Logger: log}
			if events {
				opts.Emitter = stdoutEmitter{w: cmd.ErrOrStderr()}
			}
			perms, err := bootstrap.Build(cfg, opts)
			if err != nil {
				return err
			}
			defer perms.Close()

			timeout, _ := cmd.Flags().GetDuration("timeout")
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			snap, err := perms.Gate.Initialize(ctx)
			if err != nil {
				return fmt.Errorf("evaluate permissions: %w", err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), snap)
			}
			printSnapshot(cmd.OutOrStdout(), snap)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "Print the snapshot as JSON")
	cmd.Flags().Bool("events", false, "Print lifecycle events to stderr")
	cmd.Flags().Duration("timeout", 2*time.Minute, "Give up waiting after this long")
	return cmd
}

func checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report current status without prompting",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, done, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer done()
			cfg.Permissions.WatchDatabase = false

			perms, err := bootstrap.Build(cfg, bootstrap.Options{Logger: log})
			if err != nil {
				return err
			}
			defer perms.Close()

			snap := perms.Coordinator.Inspect(cmd.Context(), perms.Critical)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PERMISSION\tSTATUS\tCRITICAL\tERROR")
			for _, r := range snap.Results() {
				detail := "-"
				if r.Err() != nil {
					detail = r.Err().Error()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Permission(), r.Status(), yesNo(isCritical(perms.Critical, r.Permission())), detail)
			}
			return w.Flush()
		},
	}
	return cmd
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check OS version, native APIs, privacy databases and first-run state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, done, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer done()
			cfg.Permissions.WatchDatabase = false

			perms, err := bootstrap.Build(cfg, bootstrap.Options{Logger: log})
			if err != nil {
				return err
			}
			defer perms.Close()

			out := cmd.OutOrStdout()
			version := macos.ProductVersion()
			if version == "" {
				version = "unknown"
			}
			fmt.Fprintln(out, "permctl doctor")
			fmt.Fprintln(out)
			fmt.Fprintf(out, "  %-20s %s\n", "macOS", version)
			fmt.Fprintf(out, "  %-20s %s\n", "bundle id", cfg.BundleID)
			fmt.Fprintf(out, "  %-20s %s\n", "bypass", yesNo(cfg.Permissions.Bypass))
			fmt.Fprintln(out)

			fmt.Fprintln(out, "Native APIs:")
			for _, k := range permission.Kinds {
				state := "unavailable (privacy database fallback)"
				if macos.NativeAvailable(k) {
					state = "available"
				}
				fmt.Fprintf(out, "  %-20s %s\n", k, state)
			}
			fmt.Fprintln(out)

			fmt.Fprintln(out, "Privacy databases:")
			for _, path := range perms.Records.Paths() {
				state := "readable"
				if err := perms.Records.Readable(cmd.Context(), path); err != nil {
					state = "not readable: " + err.Error()
				}
				fmt.Fprintf(out, "  %s\n    %s\n", path, state)
			}
			fmt.Fprintln(out)

			fmt.Fprintln(out, "First run:")
			exists, err := perms.Marker.Exists()
			switch {
			case err != nil:
				fmt.Fprintf(out, "  %s: %v\n", perms.Marker.Path, err)
			case !exists:
				fmt.Fprintf(out, "  not completed (%s)\n", perms.Marker.Path)
			default:
				m, err := perms.Marker.Read()
				if err != nil {
					fmt.Fprintf(out, "  completed, marker unreadable: %v\n", err)
				} else {
					fmt.Fprintf(out, "  completed %s, missing %v\n", m.CompletedAt.Format(time.RFC3339), m.Missing)
				}
			}
			return nil
		},
	}
}

func printSnapshot(out io.Writer, snap *permission.Snapshot) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PERMISSION\tSTATUS\tCRITICAL\tMESSAGE")
	for _, r := range snap.Results() {
		msg := r.Message()
		if r.Err() != nil {
			msg += " (" + r.Err().Error() + ")"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Permission(), r.Status(), yesNo(isCritical(snap.Critical(), r.Permission())), msg)
	}
	w.Flush()
	if snap.CriticalGranted() {
		fmt.Fprintln(out, "\nall critical permissions granted")
	} else {
		fmt.Fprintf(out, "\nmissing: %v\n", snap.Missing())
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func isCritical(critical []permission.Kind, k permission.Kind) bool {
	for _, c := range critical {
		if c == k {
			return true
		}
	}
	return false
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
