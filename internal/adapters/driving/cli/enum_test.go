package cli

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/teamsenum/internal/config"
	"github.com/custodia-labs/teamsenum/internal/connectors/microsoft"
	"github.com/custodia-labs/teamsenum/internal/core/domain"
)

// fakeTeams serves the corporate search and presence endpoints.
type fakeTeams struct {
	searchStatus  int
	searches      atomic.Int32
	presenceCalls atomic.Int32
}

func (f *fakeTeams) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mt/users/", func(w http.ResponseWriter, r *http.Request) {
		f.searches.Add(1)
		if f.searchStatus != 0 && f.searchStatus != http.StatusOK {
			w.WriteHeader(f.searchStatus)
			return
		}
		if strings.Contains(r.URL.Path, "ghost") {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_, _ = w.Write([]byte(`[{"displayName":"Alice Example","mri":"8:orgid:0b4c1c4e-0000-4000-8000-000000000001",` +
			`"objectId":"0b4c1c4e-0000-4000-8000-000000000001","userPrincipalName":"alice@contoso.com"}]`))
	})
	mux.HandleFunc("/presence", func(w http.ResponseWriter, _ *http.Request) {
		f.presenceCalls.Add(1)
		_, _ = w.Write([]byte(`[{"mri":"8:orgid:0b4c1c4e-0000-4000-8000-000000000001",` +
			`"presence":{"availability":"Available","deviceType":"Desktop",` +
			`"calendarData":{"outOfOfficeNote":{"message":"On leave until <b>Monday</b>"}}}}]`))
	})
	return mux
}

// setupEnum points the command at fake endpoints and resets every flag.
func setupEnum(t *testing.T, fake *fakeTeams) (stdout, stderr *bytes.Buffer) {
	t.Helper()

	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	original := newEndpoints
	newEndpoints = func(string) microsoft.Endpoints {
		return microsoft.Endpoints{
			TeamsSearch:   srv.URL + "/mt",
			LiveSearch:    srv.URL + "/live",
			TeamsPresence: srv.URL + "/presence",
			LivePresence:  srv.URL + "/presence",
		}
	}

	enumCmd.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
	verbose = false

	for _, env := range []string{config.EnvAccessToken, config.EnvSkypeToken, config.EnvRefreshToken} {
		t.Setenv(env, "")
	}

	stdout, stderr = new(bytes.Buffer), new(bytes.Buffer)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	t.Cleanup(func() {
		newEndpoints = original
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	return stdout, stderr
}

func TestEnum_SingleEmailWithPresenceAndOutfile(t *testing.T) {
	// Given
	fake := &fakeTeams{}
	stdout, _ := setupEnum(t, fake)
	outfile := filepath.Join(t.TempDir(), "results.jsonl")
	rootCmd.SetArgs([]string{"enum", "-t", "token", "-e", "alice@contoso.com", "-o", outfile})

	// When
	err := Execute()

	// Then
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "[~] Starting user enumeration")
	assert.Contains(t, stdout.String(), "[+] alice@contoso.com - Alice Example (Available, Desktop)")
	assert.Contains(t, stdout.String(), "Processed 1 targets: 1 found, 0 failed")
	assert.Equal(t, int32(1), fake.presenceCalls.Load())

	data, err := os.ReadFile(outfile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var rec domain.ResultRecord
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "alice@contoso.com", rec.Email)
	require.NotNil(t, rec.Exists)
	assert.True(t, *rec.Exists)
	assert.NotEmpty(t, rec.Presence)
}

func TestEnum_PresenceDisabled(t *testing.T) {
	fake := &fakeTeams{}
	stdout, _ := setupEnum(t, fake)
	rootCmd.SetArgs([]string{"enum", "-t", "token", "-e", "alice@contoso.com", "--presence=false"})

	require.NoError(t, Execute())

	assert.Contains(t, stdout.String(), "[+] alice@contoso.com - Alice Example\n")
	assert.Zero(t, fake.presenceCalls.Load())
}

func TestEnum_FileOfTargets(t *testing.T) {
	// Given a file with blank lines and surrounding whitespace
	fake := &fakeTeams{}
	stdout, _ := setupEnum(t, fake)
	file := filepath.Join(t.TempDir(), "emails.txt")
	require.NoError(t, os.WriteFile(file, []byte("alice@contoso.com\n\n  ghost@contoso.com  \n"), 0o600))
	rootCmd.SetArgs([]string{"enum", "-t", "token", "-f", file, "-n", "2", "--presence=false"})

	// When
	err := Execute()

	// Then
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.searches.Load())
	assert.Contains(t, stdout.String(), "[+] alice@contoso.com - Alice Example")
	assert.Contains(t, stdout.String(), "[-] ghost@contoso.com - ")
	assert.Contains(t, stdout.String(), "Processed 2 targets: 1 found, 0 failed")
}

func TestEnum_GUIDsLoggedToDatabase(t *testing.T) {
	// Given
	fake := &fakeTeams{}
	stdout, _ := setupEnum(t, fake)
	dir := t.TempDir()
	guids := filepath.Join(dir, "guids.txt")
	require.NoError(t, os.WriteFile(guids, []byte("0b4c1c4e-0000-4000-8000-000000000001\n"), 0o600))
	dbPath := filepath.Join(dir, "teams.db")
	rootCmd.SetArgs([]string{"enum", "-t", "token", "-g", guids, "--dsn", dbPath, "--session", "q3"})

	// When
	err := Execute()

	// Then
	require.NoError(t, err)
	assert.Zero(t, fake.searches.Load(), "GUID targets skip the search")
	assert.Contains(t, stdout.String(), "[+] 0b4c1c4e-0000-4000-8000-000000000001 (Available, Desktop, 1, ")

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer db.Close()

	var session string
	require.NoError(t, db.QueryRow(`SELECT session FROM presence`).Scan(&session))
	assert.Equal(t, "q3", session)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM ooo`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestEnum_FatalAuthStopsRun(t *testing.T) {
	// Given a rejected token and nothing to refresh it with
	fake := &fakeTeams{searchStatus: http.StatusUnauthorized}
	stdout, _ := setupEnum(t, fake)
	rootCmd.SetArgs([]string{"enum", "-t", "expired", "-e", "alice@contoso.com"})

	// When
	err := Execute()

	// Then
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrFatalAuth)
	assert.Contains(t, stdout.String(), "[-] Authentication failed")
}

func TestEnum_TokenFromEnvironment(t *testing.T) {
	fake := &fakeTeams{}
	stdout, _ := setupEnum(t, fake)
	t.Setenv(config.EnvAccessToken, "env-token")
	rootCmd.SetArgs([]string{"enum", "-e", "alice@contoso.com", "--presence=false"})

	require.NoError(t, Execute())
	assert.Contains(t, stdout.String(), "[+] alice@contoso.com")
}

func TestEnum_InputValidation(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"no target", []string{"enum", "-t", "x"}, "targetemail"},
		{"two inputs", []string{"enum", "-t", "x", "-e", "a@b.c", "-g", "guids.txt"}, "targetemail"},
		{"no token", []string{"enum", "-e", "a@b.c"}, "access token is required"},
		{"personal without skype token", []string{"enum", "-t", "x", "-e", "a@b.c", "--account-type", "personal"}, "skype token"},
		{"bad account type", []string{"enum", "-t", "x", "-e", "a@b.c", "--account-type", "guest"}, "AccountType"},
		{"long session", []string{"enum", "-t", "x", "-e", "a@b.c", "--session", "toolongtag"}, "Session"},
		{"negative threads", []string{"enum", "-t", "x", "-e", "a@b.c", "-n", "-1"}, "Threads"},
		{"empty account type", []string{"enum", "-t", "x", "-e", "a@b.c", "--account-type", ""}, "unsupported account type"},
		{"negative rate limit", []string{"enum", "-t", "x", "-e", "a@b.c", "--rate-limit", "-2"}, "RateLimit"},
		{"missing target file", []string{"enum", "-t", "x", "-f", "does-not-exist.txt"}, "open targets"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupEnum(t, &fakeTeams{})
			rootCmd.SetArgs(tt.args)

			err := Execute()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestScanLines(t *testing.T) {
	lines, err := scanLines(strings.NewReader(" a@b.c \r\n\n\t\nd@e.f"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a@b.c", "d@e.f"}, lines)
}

func TestPresenceVariant(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, "teams", string(presenceVariant(cfg)))

	cfg.Enum.AccountType = "personal"
	assert.Equal(t, "live", string(presenceVariant(cfg)))

	cfg.Enum.PresenceVariant = "teams"
	assert.Equal(t, "teams", string(presenceVariant(cfg)))

	cfg.Enum.PresenceVariant = "skype"
	assert.Equal(t, "live", string(presenceVariant(cfg)), "unknown variants follow the account type")
}

func TestEnum_RateLimitFlag(t *testing.T) {
	// Given a pace of one search every 100ms
	fake := &fakeTeams{}
	stdout, _ := setupEnum(t, fake)
	file := filepath.Join(t.TempDir(), "emails.txt")
	require.NoError(t, os.WriteFile(file, []byte("a@contoso.com\nb@contoso.com\nc@contoso.com\n"), 0o600))
	rootCmd.SetArgs([]string{"enum", "-t", "token", "-f", file, "--presence=false", "--rate-limit", "10"})

	// When
	start := time.Now()
	err := Execute()

	// Then the second and third searches wait their turn
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, int32(3), fake.searches.Load())
	assert.Contains(t, stdout.String(), "Processed 3 targets: 3 found, 0 failed")
}
