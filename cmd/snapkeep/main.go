package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"snapkeep/internal/app"
	"snapkeep/internal/backup"
	"snapkeep/internal/config"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "Capture", "Prune").
func newApp(operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.New(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// projectArg returns the project selector: the first positional argument, or
// the current directory when none is given.
func projectArg(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	return cwd, nil
}

// readPassphrase prompts on stderr and reads without echo.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

func printCaptureResult(r *backup.CaptureResult) {
	if r == nil {
		fmt.Println("Another capture is already in flight; nothing to do.")
		return
	}
	fmt.Printf("Capture %s: %d added, %d modified, %d removed, %d bytes\n",
		r.Outcome, r.Added, r.Modified, r.Removed, r.Bytes)
	for _, s := range r.Skipped {
		fmt.Printf("  skipped %s: %v\n", s.Rel, s.Err)
	}
	if r.Destination != "" {
		fmt.Printf("Destination: %s\n", r.Destination)
	}
	if r.Enqueued > 0 {
		fmt.Printf("Queued for later delivery: %d\n", r.Enqueued)
	}
	if r.QueueDepth > 0 {
		fmt.Printf("Pending deliveries: %d\n", r.QueueDepth)
	}
}

var rootCmd = &cobra.Command{
	Use:   "snapkeep",
	Short: "Project snapshot and backup tool",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Host ID: %s\n", hostID)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Host ID: %s\n", cfg.HostID)
		fmt.Printf("Log Dir: %s\n", cfg.LogDir)
		fmt.Printf("Projects:\n")
		for _, p := range cfg.Projects {
			fmt.Printf("  %-20s %s\n", p.Name, p.Root)
		}
		fmt.Printf("Destinations:\n")
		for _, d := range cfg.Destinations {
			fmt.Printf("  %-20s %s\n", d.Name, d.Type)
		}
		return nil
	},
}

// key command
var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage encryption keys",
}

var keyInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("SetupKeys")
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.EncryptionEnabled() {
			return fmt.Errorf("encryption is not enabled; set encryption.type = \"age\" in the config first")
		}

		passphrase, err := readPassphrase("Passphrase (empty for none): ")
		if err != nil {
			return err
		}
		if passphrase != "" {
			confirm, err := readPassphrase("Confirm passphrase: ")
			if err != nil {
				return err
			}
			if confirm != passphrase {
				return fmt.Errorf("passphrases do not match")
			}
		}

		if err := a.SetupKeys(passphrase); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}

		fmt.Println("Key pair generated.")
		return nil
	},
}

// capture command
var captureCmd = &cobra.Command{
	Use:   "capture [PROJECT]",
	Short: "Capture a snapshot of a project",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")

		a, err := newApp("Capture")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()

		if all {
			projects, err := a.Projects(ctx)
			if err != nil {
				return err
			}
			for _, p := range projects {
				fmt.Printf("== %s ==\n", p.Name)
				result, err := p.Service.Capture(ctx, p.Root)
				if err != nil {
					fmt.Printf("capture failed: %v\n", err)
					continue
				}
				printCaptureResult(result)
			}
			return nil
		}

		sel, err := projectArg(args)
		if err != nil {
			return err
		}
		p, err := a.Project(ctx, sel)
		if err != nil {
			return err
		}

		result, err := p.Service.Capture(ctx, p.Root)
		if err != nil {
			return fmt.Errorf("capture failed: %w", err)
		}
		printCaptureResult(result)
		return nil
	},
}

// dump command
var dumpCmd = &cobra.Command{
	Use:   "dump NAME FILE",
	Short: "Import a database dump into the snapshot store",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		project, _ := cmd.Flags().GetString("project")

		a, err := newApp("ImportDump")
		if err != nil {
			return err
		}
		defer a.Close()

		srcPath, err := filepath.Abs(args[1])
		if err != nil {
			return fmt.Errorf("resolving dump path: %w", err)
		}

		sel := project
		if sel == "" {
			sel, err = projectArg(nil)
			if err != nil {
				return err
			}
		}
		p, err := a.Project(cmd.Context(), sel)
		if err != nil {
			return err
		}

		result, err := p.Service.ImportDump(cmd.Context(), args[0], srcPath)
		if err != nil {
			return fmt.Errorf("importing dump: %w", err)
		}
		printCaptureResult(result)
		return nil
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status [PROJECT]",
	Short: "Show changes since the last capture",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Status")
		if err != nil {
			return err
		}
		defer a.Close()

		sel, err := projectArg(args)
		if err != nil {
			return err
		}
		p, err := a.Project(cmd.Context(), sel)
		if err != nil {
			return err
		}

		diff, err := p.Historian.Diff()
		if err != nil {
			return err
		}

		if diff.Empty() {
			fmt.Println("No changes since the last capture.")
			return nil
		}
		for _, rel := range diff.Added {
			fmt.Printf("A  %s\n", rel)
		}
		for _, rel := range diff.Modified {
			fmt.Printf("M  %s\n", rel)
		}
		for _, rel := range diff.Removed {
			fmt.Printf("D  %s\n", rel)
		}
		return nil
	},
}

// points command
var pointsCmd = &cobra.Command{
	Use:   "points [PROJECT]",
	Short: "List distinct capture points",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("CapturePoints")
		if err != nil {
			return err
		}
		defer a.Close()

		sel, err := projectArg(args)
		if err != nil {
			return err
		}
		p, err := a.Project(cmd.Context(), sel)
		if err != nil {
			return err
		}

		points, err := p.Historian.CapturePoints()
		if err != nil {
			return err
		}
		if len(points) == 0 {
			fmt.Println("No captures recorded.")
			return nil
		}
		for _, t := range points {
			fmt.Println(t.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

// log command
var logCmd = &cobra.Command{
	Use:   "log FILE",
	Short: "View the version history of a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("History")
		if err != nil {
			return err
		}
		defer a.Close()

		abs, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}

		p, err := a.Project(cmd.Context(), abs)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(p.Root, abs)
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}
		logical := filepath.ToSlash(rel)

		versions, err := p.Historian.History(logical)
		if err != nil {
			return err
		}
		if len(versions) == 0 {
			fmt.Println("No version history.")
			return nil
		}

		for _, v := range versions {
			ts := v.Timestamp.Format("2006-01-02 15:04:05")
			if v.Current {
				ts = fmt.Sprintf("%19s", "current")
			}
			wrapped := ""
			if v.Wrapped {
				wrapped = "  encrypted"
			}
			fmt.Printf("%s  %10d%s\n", ts, v.Size, wrapped)
		}
		return nil
	},
}

// restore command
var restoreCmd = &cobra.Command{
	Use:   "restore FILE",
	Short: "Restore a file as it existed at a point in time",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		atStr, _ := cmd.Flags().GetString("at")
		out, _ := cmd.Flags().GetString("out")

		a, err := newApp("Restore")
		if err != nil {
			return err
		}
		defer a.Close()

		abs, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}

		p, err := a.Project(cmd.Context(), abs)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(p.Root, abs)
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}
		logical := filepath.ToSlash(rel)

		at := time.Now()
		if atStr != "" {
			at, err = parseTime(atStr)
			if err != nil {
				return err
			}
		}

		v, err := p.Historian.Reconstruct(logical, at)
		if err != nil {
			return err
		}
		if v == nil {
			fmt.Printf("%s did not exist at %s\n", logical, at.Format("2006-01-02 15:04:05"))
			return nil
		}

		if v.Wrapped {
			passphrase, err := readPassphrase("Key passphrase: ")
			if err != nil {
				return err
			}
			if err := a.Unlock(passphrase); err != nil {
				return fmt.Errorf("unlocking key: %w", err)
			}
		}

		if out == "" {
			out = filepath.Base(logical) + ".restored"
		}
		if err := p.Historian.Extract(v, out); err != nil {
			return fmt.Errorf("restoring: %w", err)
		}

		version := "current version"
		if !v.Current {
			version = "version of " + v.Timestamp.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("Restored %s (%s) to %s\n", logical, version, out)
		return nil
	},
}

// parseTime accepts a date, a date-time, or RFC 3339.
func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02",
		time.RFC3339,
	} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q (want YYYY-MM-DD or YYYY-MM-DD HH:MM:SS)", s)
}

// prune command
var pruneCmd = &cobra.Command{
	Use:   "prune [PROJECT]",
	Short: "Apply the retention policy to archived versions",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		a, err := newApp("Prune")
		if err != nil {
			return err
		}
		defer a.Close()

		sel, err := projectArg(args)
		if err != nil {
			return err
		}
		p, err := a.Project(cmd.Context(), sel)
		if err != nil {
			return err
		}

		result, err := p.Service.Prune(dryRun)
		if err != nil {
			return err
		}
		if result == nil {
			fmt.Println("Another capture or prune is in flight; nothing to do.")
			return nil
		}

		for _, st := range result.Stats {
			fmt.Printf("%-8s %5d versions, %d prunable (%d bytes)\n",
				st.Tier, st.Count, st.ReclaimCount, st.ReclaimBytes)
		}
		if result.DryRun {
			fmt.Printf("Would remove %d version(s), reclaiming %d bytes\n", result.Removed, result.Bytes)
			return nil
		}
		fmt.Printf("Removed %d version(s), reclaimed %d bytes\n", result.Removed, result.Bytes)
		return nil
	},
}

// queue command
var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage pending deliveries",
}

var queueRunCmd = &cobra.Command{
	Use:   "run [PROJECT]",
	Short: "Retry pending deliveries",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		max, _ := cmd.Flags().GetInt("max")

		a, err := newApp("ProcessQueue")
		if err != nil {
			return err
		}
		defer a.Close()

		sel, err := projectArg(args)
		if err != nil {
			return err
		}
		p, err := a.Project(cmd.Context(), sel)
		if err != nil {
			return err
		}

		stats, err := p.Service.ProcessQueue(cmd.Context(), max)
		if err != nil {
			return err
		}

		fmt.Printf("Delivered %d, retried %d, dead-lettered %d\n",
			stats.Delivered, stats.Retried, stats.DeadLettered)

		depth, err := p.Queue.Depth()
		if err != nil {
			return err
		}
		fmt.Printf("Pending deliveries: %d\n", depth)
		return nil
	},
}

var queueListCmd = &cobra.Command{
	Use:   "list [PROJECT]",
	Short: "Show queue depth and dead-lettered deliveries",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("QueueStatus")
		if err != nil {
			return err
		}
		defer a.Close()

		sel, err := projectArg(args)
		if err != nil {
			return err
		}
		p, err := a.Project(cmd.Context(), sel)
		if err != nil {
			return err
		}

		depth, err := p.Queue.Depth()
		if err != nil {
			return err
		}
		fmt.Printf("Pending deliveries: %d\n", depth)

		dead, err := p.Queue.DeadLetters()
		if err != nil {
			return err
		}
		if len(dead) == 0 {
			return nil
		}
		fmt.Printf("Dead-lettered:\n")
		for _, ob := range dead {
			last := "never"
			if !ob.LastAttempt.IsZero() {
				last = ob.LastAttempt.Format("2006-01-02 15:04:05")
			}
			fmt.Printf("  %s -> %s  retries:%d  last:%s\n",
				ob.TargetPath, ob.Destination, ob.Retries, last)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	keyCmd.AddCommand(keyInitCmd)

	queueCmd.AddCommand(queueRunCmd)
	queueCmd.AddCommand(queueListCmd)
	queueRunCmd.Flags().IntP("max", "n", 0, "Maximum entries to process (0 for all)")

	captureCmd.Flags().Bool("all", false, "Capture every configured project")
	dumpCmd.Flags().StringP("project", "p", "", "Project name or path (defaults to the current directory)")
	pruneCmd.Flags().Bool("dry-run", false, "Report what would be removed without deleting")
	restoreCmd.Flags().String("at", "", "Point in time to restore (defaults to now)")
	restoreCmd.Flags().StringP("out", "o", "", "Output path (defaults to FILE.restored)")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keyCmd)
	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(pointsCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(queueCmd)
}
