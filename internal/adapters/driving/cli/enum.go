package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/teamsenum/internal/adapters/driven/output"
	"github.com/custodia-labs/teamsenum/internal/adapters/driven/storage/sqlstore"
	"github.com/custodia-labs/teamsenum/internal/auth"
	"github.com/custodia-labs/teamsenum/internal/config"
	"github.com/custodia-labs/teamsenum/internal/connectors/microsoft"
	"github.com/custodia-labs/teamsenum/internal/connectors/microsoft/live"
	"github.com/custodia-labs/teamsenum/internal/connectors/microsoft/presence"
	"github.com/custodia-labs/teamsenum/internal/connectors/microsoft/teams"
	"github.com/custodia-labs/teamsenum/internal/core/domain"
	"github.com/custodia-labs/teamsenum/internal/core/ports/driven"
	"github.com/custodia-labs/teamsenum/internal/core/services"
	"github.com/custodia-labs/teamsenum/internal/logger"
)

var enumCmd = &cobra.Command{
	Use:   "enum",
	Short: "Enumerate users and their presence",
	Long: `Check whether target email addresses exist on Microsoft Teams and, for
found users, fetch presence and out of office notes.

Tokens can also be provided through TEAMSENUM_ACCESS_TOKEN,
TEAMSENUM_SKYPE_TOKEN and TEAMSENUM_REFRESH_TOKEN or the [auth] section
of the config file. Flags take precedence.

Examples:
  # Single corporate target
  teamsenum enum -t eyJ0... -e alice@contoso.com

  # Personal accounts from a file, results to JSONL
  teamsenum enum --account-type personal -t eyJ0... -s eyJh... -f emails.txt -o out.jsonl

  # Presence of known object IDs, logged to the configured database
  teamsenum enum -t eyJ0... -g guids.txt --db --session q3`,
	Args: cobra.NoArgs,
	RunE: runEnum,
}

// Flags for enum.
var (
	enumEmail         string
	enumFile          string
	enumGUIDs         string
	enumAccessToken   string
	enumSkypeToken    string
	enumRefreshToken  string
	enumClientID      string
	enumAccountType   string
	enumTeamsEnrolled bool
	enumOutfile       string
	enumOverwrite     bool
	enumThreads       int
	enumDelay         time.Duration
	enumPresence      bool
	enumDatabase      bool
	enumDSN           string
	enumSession       string
	enumRateLimit     float64
	enumConfigPath    string
)

// newEndpoints resolves the backend URLs for a region. Tests point it at local servers.
var newEndpoints = microsoft.DefaultEndpoints

func init() {
	f := enumCmd.Flags()
	f.StringVarP(&enumEmail, "targetemail", "e", "", "single target email address")
	f.StringVarP(&enumFile, "file", "f", "", "file with one target email address per line")
	f.StringVarP(&enumGUIDs, "guids", "g", "", "file with one user object ID per line")
	f.StringVarP(&enumAccessToken, "accesstoken", "t", "", "bearer token from the Authorization header")
	f.StringVarP(&enumSkypeToken, "skypetoken", "s", "", "token from the X-Skypetoken header (personal accounts)")
	f.StringVar(&enumRefreshToken, "refreshtoken", "", "refresh token used to renew an expired access token")
	f.StringVar(&enumClientID, "client-id", "", "OAuth client ID that issued the refresh token")
	f.StringVar(&enumAccountType, "account-type", "", "backend to probe: corporate or personal")
	f.BoolVar(&enumTeamsEnrolled, "teams-enrolled", false, "your own account holds a Teams licence")
	f.StringVarP(&enumOutfile, "outfile", "o", "", "append JSONL results to this file")
	f.BoolVar(&enumOverwrite, "overwrite", false, "truncate the outfile instead of appending")
	f.IntVarP(&enumThreads, "threads", "n", config.DefaultThreads, "number of concurrent probes")
	f.DurationVar(&enumDelay, "delay", 0, "delay between probe submissions, e.g. 500ms")
	f.BoolVar(&enumPresence, "presence", true, "fetch presence for found users")
	f.BoolVar(&enumDatabase, "db", false, "log presence, OOO notes and user info to the configured database")
	f.StringVar(&enumDSN, "dsn", "", "database connection string (implies --db)")
	f.StringVar(&enumSession, "session", "", "session tag stored with presence rows (8 characters max)")
	f.Float64Var(&enumRateLimit, "rate-limit", 0, "max requests per second to each backend (0 keeps the defaults)")
	f.StringVar(&enumConfigPath, "config", "", "path to a TOML config file")

	enumCmd.MarkFlagsMutuallyExclusive("targetemail", "file", "guids")
	enumCmd.MarkFlagsOneRequired("targetemail", "file", "guids")

	rootCmd.AddCommand(enumCmd)
}

func runEnum(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(enumConfigPath)
	if err != nil {
		return err
	}
	cfg.ApplyEnv(os.LookupEnv)
	applyEnumFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Init(logger.Options{
		Level:        cfg.Log.Level,
		Format:       cfg.Log.Format,
		Writer:       cmd.ErrOrStderr(),
		StaticFields: map[string]string{"run_id": uuid.NewString()},
	})

	accountType := domain.AccountType(cfg.Enum.AccountType)
	targets, err := readTargets(accountType)
	if err != nil {
		return err
	}
	if err := checkCredentials(cfg, accountType, targets); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	console := NewConsole(cmd.OutOrStdout())

	var writer driven.ResultWriter
	if enumOutfile != "" {
		f, err := output.OpenFile(enumOutfile, enumOverwrite)
		if err != nil {
			return err
		}
		defer f.Close()
		writer = output.NewWriter(f)
	}

	store := openStore(ctx, cfg.Database)
	if store != nil {
		defer store.Close()
	}

	svc, err := buildService(cfg, console, writer, store)
	if err != nil {
		return err
	}

	console.Info("Starting user enumeration")
	runErr := svc.Run(ctx, targets)

	stats := svc.Stats()
	console.Info("Processed %d targets: %d found, %d failed", stats.Processed, stats.Found, stats.Failed)

	if errors.Is(runErr, domain.ErrFatalAuth) {
		console.Warn("Authentication failed, stopping: %v", runErr)
	}
	return runErr
}

// applyEnumFlags overrides configuration with the flags the user set explicitly.
func applyEnumFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("accesstoken") {
		cfg.Auth.AccessToken = enumAccessToken
	}
	if f.Changed("skypetoken") {
		cfg.Auth.SkypeToken = enumSkypeToken
	}
	if f.Changed("refreshtoken") {
		cfg.Auth.RefreshToken = enumRefreshToken
	}
	if f.Changed("client-id") {
		cfg.Auth.ClientID = enumClientID
	}
	if f.Changed("teams-enrolled") {
		cfg.Auth.TeamsEnrolled = enumTeamsEnrolled
	}
	if f.Changed("account-type") {
		cfg.Enum.AccountType = strings.ToLower(strings.TrimSpace(enumAccountType))
	}
	if f.Changed("threads") {
		cfg.Enum.Threads = enumThreads
	}
	if f.Changed("delay") {
		cfg.Enum.Delay = config.Duration(enumDelay)
	}
	if f.Changed("presence") {
		cfg.Enum.Presence = enumPresence
	}
	if f.Changed("session") {
		cfg.Enum.Session = enumSession
	}
	if f.Changed("db") {
		cfg.Database.Enabled = enumDatabase
	}
	if f.Changed("dsn") {
		cfg.Database.DSN = enumDSN
		cfg.Database.Enabled = true
	}
	if f.Changed("rate-limit") {
		cfg.Enum.RateLimit = enumRateLimit
	}
	if logger.IsVerbose() {
		cfg.Log.Level = "debug"
	}
}

// readTargets builds the target list from whichever input flag was given.
func readTargets(accountType domain.AccountType) ([]domain.Target, error) {
	if enumGUIDs == "" && !accountType.Valid() {
		return nil, fmt.Errorf("unsupported account type %q (want corporate or personal)", accountType)
	}

	switch {
	case enumEmail != "":
		return []domain.Target{domain.NewEmailTarget(enumEmail, accountType)}, nil
	case enumFile != "":
		lines, err := readLines(enumFile)
		if err != nil {
			return nil, err
		}
		targets := make([]domain.Target, 0, len(lines))
		for _, l := range lines {
			targets = append(targets, domain.NewEmailTarget(l, accountType))
		}
		return targets, nil
	case enumGUIDs != "":
		lines, err := readLines(enumGUIDs)
		if err != nil {
			return nil, err
		}
		targets := make([]domain.Target, 0, len(lines))
		for _, l := range lines {
			targets = append(targets, domain.NewGUIDTarget(l))
		}
		return targets, nil
	}
	return nil, errors.New("one of --targetemail, --file or --guids is required")
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open targets: %w", err)
	}
	defer f.Close()
	return scanLines(f)
}

// scanLines returns the trimmed, non-empty lines of r.
func scanLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if l := strings.TrimSpace(sc.Text()); l != "" {
			lines = append(lines, l)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read targets: %w", err)
	}
	return lines, nil
}

// checkCredentials rejects runs that cannot authenticate at all.
func checkCredentials(cfg config.Config, accountType domain.AccountType, targets []domain.Target) error {
	if cfg.Auth.AccessToken == "" {
		return errors.New("an access token is required (--accesstoken or " + config.EnvAccessToken + ")")
	}
	if len(targets) > 0 && targets[0].Kind == domain.TargetEmail &&
		accountType == domain.AccountPersonal && cfg.Auth.SkypeToken == "" {
		return errors.New("personal accounts need a skype token (--skypetoken or " + config.EnvSkypeToken + ")")
	}
	if presenceVariant(cfg) == presence.VariantLive && cfg.Auth.SkypeToken == "" {
		return errors.New("the live presence backend needs a skype token")
	}
	return nil
}

// presenceVariant returns the configured presence backend, following the
// account type when none is set.
func presenceVariant(cfg config.Config) presence.Variant {
	if v := presence.Variant(cfg.Enum.PresenceVariant); v.Valid() {
		return v
	}
	if domain.AccountType(cfg.Enum.AccountType) == domain.AccountPersonal {
		return presence.VariantLive
	}
	return presence.VariantTeams
}

// openStore connects the relational sink. Failures are logged and the run
// continues without it.
func openStore(ctx context.Context, cfg config.DatabaseConfig) driven.PresenceStore {
	if !cfg.Enabled {
		return nil
	}
	store, err := sqlstore.Open(ctx, sqlstore.Config{
		Driver:        sqlstore.Driver(cfg.Driver),
		DSN:           cfg.DSN,
		PresenceTable: cfg.PresenceTable,
		OOOTable:      cfg.OOOTable,
		UserInfoTable: cfg.UserInfoTable,
		Migrate:       cfg.Migrate,
	})
	if err != nil {
		logger.Warn("enum: database logging disabled: %v", err)
		return nil
	}
	logger.Info("enum: database logging enabled (%s)", cfg.Driver)
	return store
}

// buildService wires connectors, credentials and sinks into an enumeration service.
func buildService(
	cfg config.Config,
	reporter driven.Reporter,
	writer driven.ResultWriter,
	store driven.PresenceStore,
) (*services.EnumerationService, error) {
	client, err := microsoft.NewHTTPClient(cfg.Enum.Timeout.Std())
	if err != nil {
		return nil, err
	}

	cell := auth.NewCell(domain.CredentialSet{
		BearerToken:   cfg.Auth.AccessToken,
		SkypeToken:    cfg.Auth.SkypeToken,
		RefreshToken:  cfg.Auth.RefreshToken,
		TeamsEnrolled: cfg.Auth.TeamsEnrolled,
		Auth: domain.AuthContext{
			ClientID: cfg.Auth.ClientID,
			TokenURL: cfg.Auth.TokenURL,
			Scopes:   cfg.Auth.Scopes,
		},
	}, auth.NewOAuthRefresher(client))

	ep := newEndpoints(cfg.Enum.Region)
	variant := presenceVariant(cfg)

	corporate := teams.New(teams.Config{BaseURL: ep.TeamsSearch}, client, cell)
	personal := live.New(ep.LiveSearch, client, cell)
	presenceClient := presence.New(presence.Config{
		Variant: variant,
		URL:     presence.URLFor(ep, variant),
	}, client, cell)

	if rps := cfg.Enum.RateLimit; rps > 0 {
		limits := microsoft.Limits{PerSecond: rps}
		corporate.WithRateLimiter(microsoft.NewRateLimiterWithLimits(microsoft.ServiceTeams, limits))
		personal.WithRateLimiter(microsoft.NewRateLimiterWithLimits(microsoft.ServiceLive, limits))
		presenceClient.WithRateLimiter(microsoft.NewRateLimiterWithLimits(microsoft.ServicePresence, limits))
		logger.Debug("enum: rate limited to %.2f requests per second per backend", rps)
	}

	enumerator := services.NewEnumerator(services.EnumeratorConfig{
		Probers: map[domain.AccountType]driven.Prober{
			domain.AccountCorporate: corporate,
			domain.AccountPersonal:  personal,
		},
		Presence:       presenceClient,
		Store:          store,
		Writer:         writer,
		Reporter:       reporter,
		LookupPresence: cfg.Enum.Presence,
		Session:        cfg.Enum.Session,
	})
	dispatcher := services.NewDispatcher(cfg.Enum.Threads, cfg.Enum.Delay.Std())
	return services.NewEnumerationService(dispatcher, enumerator), nil
}
