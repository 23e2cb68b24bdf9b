// Package cli wires the rfmockup command line onto the configuration and the
// crawler engine.
package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"redfish-mockup-creator/internal/config"
	"redfish-mockup-creator/internal/crawler"
)

// CommandName is the binary name shown in usage and recorded in the README.
const CommandName = "rfmockup"

const passwordMask = "********"

// RunFunc executes a mockup run with a fully merged configuration.
type RunFunc func(ctx context.Context, cfg config.Config) error

type rootOpts struct {
	configPath     string
	user           string
	password       string
	rhost          string
	dir            string
	secure         bool
	auth           string
	headers        bool
	timing         bool
	copyright      string
	description    string
	quiet          bool
	verbose        int
	maxLogEntries  int
	forceRename    bool
	scrapeMetadata bool
}

// Execute parses args and runs a mockup. The returned error is fatal.
func Execute(ctx context.Context, args []string) error {
	cmd := NewRootCommand(args, runEngine)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

// NewRootCommand builds the command. args are the raw arguments, kept for the
// README command line.
func NewRootCommand(args []string, run RunFunc) *cobra.Command {
	opts := &rootOpts{}
	cmd := &cobra.Command{
		Use:   CommandName,
		Short: "Create a Redfish mockup from a live service",
		Long: `rfmockup walks every resource of a Redfish service and stores it in the
Redfish mockup directory format (one index.json per resource).`,
		Version:       crawler.Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := buildConfig(cmd, opts, args)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "YAML configuration file; flags override its values")
	flags.StringVarP(&opts.user, "user", "u", "", "username for authentication (required)")
	flags.StringVarP(&opts.password, "password", "p", "", "password for authentication (required)")
	flags.StringVarP(&opts.rhost, "rhost", "r", "", "ip or hostname, with optional :port, of the Redfish service (required)")
	flags.StringVarP(&opts.dir, "Dir", "D", config.DefaultDir, "output directory for the mockup; must be empty or absent")
	flags.BoolVarP(&opts.secure, "Secure", "S", false, "use https")
	flags.StringVarP(&opts.auth, "Auth", "A", config.AuthBasic, "authentication mode: None, Basic or Session")
	flags.BoolVarP(&opts.headers, "Headers", "H", false, "store the response headers in headers.json")
	flags.BoolVarP(&opts.timing, "Time", "T", false, "store response times in time.json and a summary in README")
	flags.StringVarP(&opts.copyright, "Copyright", "C", "", "@Redfish.Copyright value added to every JSON resource")
	flags.StringVarP(&opts.description, "description", "d", "", "free text recorded in README")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "only log warnings and errors, no summary table")
	flags.CountVarP(&opts.verbose, "verbose", "v", "log debug output")
	flags.IntVar(&opts.maxLogEntries, "maxlogentries", 0, "keep at most this many entries per log collection (0 keeps all)")
	flags.BoolVar(&opts.forceRename, "ForceFolderRename", false, "replace forbidden filename characters on every platform")
	flags.BoolVarP(&opts.scrapeMetadata, "ScrapeMetadata", "M", true, "fetch the local schema files referenced by $metadata")
	flags.SortFlags = false

	return cmd
}

func runEngine(ctx context.Context, cfg config.Config) error {
	engine, err := crawler.NewEngine(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialise engine: %w", err)
	}
	return engine.Run(ctx)
}

// buildConfig loads the optional file and lays the flags the user set on top.
func buildConfig(cmd *cobra.Command, opts *rootOpts, args []string) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Read(opts.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = *loaded
	}

	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("user", func() { cfg.Service.User = opts.user })
	set("password", func() { cfg.Service.Password = opts.password })
	set("rhost", func() { cfg.Service.Host = opts.rhost })
	set("Secure", func() { cfg.Service.Secure = opts.secure })
	set("Auth", func() { cfg.Service.Auth = opts.auth })
	set("Dir", func() { cfg.Mockup.Dir = opts.dir })
	set("Headers", func() { cfg.Mockup.Headers = opts.headers })
	set("Time", func() { cfg.Mockup.Time = opts.timing })
	set("Copyright", func() { cfg.Mockup.Copyright = opts.copyright })
	set("description", func() { cfg.Mockup.Description = opts.description })
	set("maxlogentries", func() { cfg.Mockup.MaxLogEntries = opts.maxLogEntries })
	set("ForceFolderRename", func() { cfg.Mockup.ForceFolderRename = opts.forceRename })
	set("ScrapeMetadata", func() { cfg.Mockup.ScrapeMetadata = opts.scrapeMetadata })

	switch {
	case opts.verbose > 0:
		cfg.Logging.Level = "debug"
	case opts.quiet:
		cfg.Logging.Level = "warn"
	}
	if opts.quiet {
		cfg.Logging.Quiet = true
	}
	cfg.Mockup.CommandLine = CommandLine(args)

	if err := cfg.Normalise(); err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// CommandLine renders the invocation for the README with the password masked.
func CommandLine(args []string) string {
	out := make([]string, 0, len(args)+1)
	out = append(out, CommandName)
	maskNext := false
	for _, arg := range args {
		switch {
		case maskNext:
			out = append(out, passwordMask)
			maskNext = false
		case arg == "-p" || arg == "--password":
			out = append(out, arg)
			maskNext = true
		case strings.HasPrefix(arg, "--password="):
			out = append(out, "--password="+passwordMask)
		case strings.HasPrefix(arg, "-p") && len(arg) > 2 && !strings.HasPrefix(arg, "--"):
			out = append(out, "-p"+passwordMask)
		default:
			out = append(out, arg)
		}
	}
	return strings.Join(out, " ")
}
