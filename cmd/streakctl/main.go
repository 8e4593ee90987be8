// Package main is streakctl, the maintenance CLI of the friendship streaks
// service. Every subcommand prints JSON on stdout.
//
// Usage:
//
//	streakctl <command> [flags]
//
// Commands: migrate, seed, verify, send, accept, reject, attend, reset,
// unfriend, ranking, history, friends, pending.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/alem-hub/friendship-streaks/config"
	"github.com/alem-hub/friendship-streaks/internal/bootstrap"
	"github.com/alem-hub/friendship-streaks/internal/domain/friendship"
	"github.com/alem-hub/friendship-streaks/internal/domain/shared"
	"github.com/alem-hub/friendship-streaks/pkg/logger"
	"github.com/alem-hub/friendship-streaks/pkg/timeutil"
)

// Exit codes.
const (
	exitOK     = 0
	exitError  = 1
	exitUsage  = 2
	exitIssues = 3
)

var errIntegrity = errors.New("integrity issues found")

// command is one streakctl subcommand.
type command struct {
	summary string
	// migrate runs without auto-migration so it can report what it applied.
	skipMigrations bool
	run            func(ctx context.Context, app *app, args []string) error
}

var commands = map[string]command{
	"migrate":  {summary: "apply, roll back or list database migrations", skipMigrations: true, run: runMigrate},
	"seed":     {summary: "create demo friendships with streaks", run: runSeed},
	"verify":   {summary: "scan for duplicate pairs and stale pending requests", run: runVerify},
	"send":     {summary: "send a friend request", run: runSend},
	"accept":   {summary: "accept a pending request", run: runAccept},
	"reject":   {summary: "reject a pending request", run: runReject},
	"attend":   {summary: "record joint attendance", run: runAttend},
	"reset":    {summary: "reset a friendship's streak", run: runReset},
	"unfriend": {summary: "remove a friendship", run: runUnfriend},
	"ranking":  {summary: "print the global streak ranking", run: runRanking},
	"history":  {summary: "print a student's streak history", run: runHistory},
	"friends":  {summary: "print a student's friends with schedules", run: runFriends},
	"pending":  {summary: "print requests waiting for a student", run: runPending},
}

type app struct {
	svc    *bootstrap.Services
	out    io.Writer
	errOut io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		usage(stderr)
		return exitUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		usage(stderr)
		return exitUsage
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}
	if os.Getenv("LOG_LEVEL") == "" {
		cfg.Observability.LogLevel = "warn"
	}
	cfg.App.Debug = false

	log := logger.New(logger.Options{
		Output: stderr,
		Level:  logger.ParseLevel(cfg.Observability.LogLevel),
		Format: "console",
	})

	svc, err := bootstrap.Build(ctx, cfg, log, bootstrap.Options{SkipMigrations: cmd.skipMigrations})
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}
	defer svc.Close()

	err = cmd.run(ctx, &app{svc: svc, out: stdout, errOut: stderr}, args[1:])
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, pflag.ErrHelp):
		return exitUsage
	case errors.Is(err, errIntegrity):
		fmt.Fprintf(stderr, "%v\n", err)
		return exitIssues
	default:
		fmt.Fprintf(stderr, "error: %v\n", err)
		if shared.IsInvalidArgument(err) {
			return exitUsage
		}
		return exitError
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: streakctl <command> [flags]")
	fmt.Fprintln(w)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-9s %s\n", name, commands[name].summary)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MAINTENANCE
// ══════════════════════════════════════════════════════════════════════════════

type migrationStatus struct {
	Version int    `json:"version"`
	Name    string `json:"name"`
	Applied bool   `json:"applied"`
}

func runMigrate(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("migrate")
	status := fs.Bool("status", false, "list migrations instead of applying them")
	down := fs.Bool("down", false, "roll back the latest migration")
	if err := fs.Parse(args); err != nil {
		return err
	}
	m := a.svc.Migrator
	if m == nil {
		return errors.New("migrate requires STORAGE_DRIVER=postgres")
	}

	switch {
	case *down:
		if err := m.Rollback(ctx); err != nil {
			return err
		}
	case !*status:
		applied, err := m.Migrate(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.errOut, "applied %d migration(s)\n", applied)
	}

	list, err := m.Status(ctx)
	if err != nil {
		return err
	}
	out := make([]migrationStatus, 0, len(list))
	for _, mg := range list {
		out = append(out, migrationStatus{Version: mg.Version, Name: mg.Name, Applied: mg.IsApplied})
	}
	return a.print(out)
}

func runSeed(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("seed")
	students := fs.StringSlice("students", []string{"aigerim", "dias", "amina", "bolat", "nurlan", "zarina"}, "student ids, paired in order")
	days := fs.Int("days", 3, "consecutive days of attendance ending today")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(*students) < 2 || *days < 0 {
		return shared.NewDomainError("streakctl", "seed", shared.ErrInvalidArgument, "need at least two students and a non-negative day count")
	}

	list, err := seed(ctx, a.svc, toStudentIDs(*students), *days)
	if err != nil {
		return err
	}
	return a.print(list)
}

// seed befriends students pairwise and records attendance for the last
// days days. Re-running it keeps existing friendships and streaks.
func seed(ctx context.Context, svc *bootstrap.Services, students []shared.StudentID, days int) ([]*friendship.Friendship, error) {
	today := svc.Engine.Today()
	var out []*friendship.Friendship

	for i := 0; i+1 < len(students); i += 2 {
		a, b := students[i], students[i+1]
		f, err := svc.Registry.GetFriendshipByPair(ctx, a, b)
		if err != nil {
			return nil, err
		}
		if f == nil {
			req, err := svc.Registry.SendRequest(ctx, a, b)
			if err != nil {
				return nil, fmt.Errorf("seed %s/%s: %w", a, b, err)
			}
			if f, err = svc.Registry.AcceptRequest(ctx, req.ID); err != nil {
				return nil, fmt.Errorf("seed %s/%s: %w", a, b, err)
			}
		}

		for d := days - 1; d >= 0; d-- {
			date := today.AddDays(-d)
			if f.HasAttendance() && !f.LastAttendanceDate.Before(date) {
				continue
			}
			if f, err = svc.Engine.RecordAttendance(ctx, f.ID, date); err != nil {
				return nil, err
			}
		}
		out = append(out, f)
	}
	return out, nil
}

type verifyReport struct {
	OK     bool                        `json:"ok"`
	Issues []friendship.IntegrityIssue `json:"issues"`
}

func runVerify(ctx context.Context, a *app, args []string) error {
	if err := newFlagSet("verify").Parse(args); err != nil {
		return err
	}
	issues, err := a.svc.Integrity.CheckIntegrity(ctx)
	if err != nil {
		return err
	}
	if issues == nil {
		issues = []friendship.IntegrityIssue{}
	}
	if err := a.print(verifyReport{OK: len(issues) == 0, Issues: issues}); err != nil {
		return err
	}
	if len(issues) > 0 {
		return fmt.Errorf("%w: %d", errIntegrity, len(issues))
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUESTS AND FRIENDSHIPS
// ══════════════════════════════════════════════════════════════════════════════

func runSend(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("send")
	from := fs.String("from", "", "sender student id")
	to := fs.String("to", "", "receiver student id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req, err := a.svc.Registry.SendRequest(ctx, shared.StudentID(*from), shared.StudentID(*to))
	if err != nil {
		return err
	}
	return a.print(req)
}

func runAccept(ctx context.Context, a *app, args []string) error {
	id, err := parseID("accept", "request", args)
	if err != nil {
		return err
	}
	f, err := a.svc.Registry.AcceptRequest(ctx, id)
	if err != nil {
		return err
	}
	return a.print(f)
}

func runReject(ctx context.Context, a *app, args []string) error {
	id, err := parseID("reject", "request", args)
	if err != nil {
		return err
	}
	req, err := a.svc.Registry.RejectRequest(ctx, id)
	if err != nil {
		return err
	}
	return a.print(req)
}

func runUnfriend(ctx context.Context, a *app, args []string) error {
	id, err := parseID("unfriend", "friendship", args)
	if err != nil {
		return err
	}
	deleted, err := a.svc.Registry.RemoveFriendship(ctx, id)
	if err != nil {
		return err
	}
	return a.print(map[string]any{"friendship_id": id, "deleted": deleted})
}

func runPending(ctx context.Context, a *app, args []string) error {
	id, err := parseID("pending", "student", args)
	if err != nil {
		return err
	}
	list, err := a.svc.Registry.ListPendingRequests(ctx, shared.StudentID(id))
	if err != nil {
		return err
	}
	return a.print(nonNil(list))
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAKS
// ══════════════════════════════════════════════════════════════════════════════

func runAttend(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("attend")
	friendshipID := fs.String("friendship", "", "friendship id")
	pair := fs.StringSlice("pair", nil, "two student ids instead of --friendship")
	dateFlag := fs.String("date", "", "attendance date YYYY-MM-DD (default today)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	date := a.svc.Engine.Today()
	if *dateFlag != "" {
		d, err := timeutil.ParseDate(*dateFlag)
		if err != nil {
			return shared.WrapError("streakctl", "attend", shared.ErrInvalidArgument, "invalid --date", err)
		}
		date = d
	}

	var (
		f   *friendship.Friendship
		err error
	)
	switch {
	case len(*pair) > 0:
		if len(*pair) != 2 {
			return shared.NewDomainError("streakctl", "attend", shared.ErrInvalidArgument, "--pair takes exactly two student ids")
		}
		f, err = a.svc.Engine.RecordAttendanceForPair(ctx, shared.StudentID((*pair)[0]), shared.StudentID((*pair)[1]), date)
	default:
		f, err = a.svc.Engine.RecordAttendance(ctx, *friendshipID, date)
	}
	if err != nil {
		return err
	}
	return a.print(f)
}

func runReset(ctx context.Context, a *app, args []string) error {
	id, err := parseID("reset", "friendship", args)
	if err != nil {
		return err
	}
	f, err := a.svc.Engine.ResetStreak(ctx, id)
	if err != nil {
		return err
	}
	return a.print(f)
}

// ══════════════════════════════════════════════════════════════════════════════
// READ SIDE
// ══════════════════════════════════════════════════════════════════════════════

func runRanking(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("ranking")
	limit := fs.Int("limit", a.svc.Config.Ranking.DefaultLimit, "number of entries")
	if err := fs.Parse(args); err != nil {
		return err
	}
	entries, err := a.svc.Aggregator.GlobalRanking(ctx, *limit)
	if err != nil {
		return err
	}
	return a.print(nonNil(entries))
}

func runHistory(ctx context.Context, a *app, args []string) error {
	id, err := parseID("history", "student", args)
	if err != nil {
		return err
	}
	entries, err := a.svc.Aggregator.StudentHistory(ctx, shared.StudentID(id))
	if err != nil {
		return err
	}
	return a.print(nonNil(entries))
}

func runFriends(ctx context.Context, a *app, args []string) error {
	id, err := parseID("friends", "student", args)
	if err != nil {
		return err
	}
	entries, err := a.svc.Aggregator.FriendsOverview(ctx, shared.StudentID(id))
	if err != nil {
		return err
	}
	return a.print(nonNil(entries))
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SortFlags = false
	return fs
}

// parseID parses a command whose only flag is --<flag>.
func parseID(cmd, flag string, args []string) (string, error) {
	fs := newFlagSet(cmd)
	id := fs.String(flag, "", flag+" id")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	return strings.TrimSpace(*id), nil
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}

func toStudentIDs(raw []string) []shared.StudentID {
	out := make([]shared.StudentID, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, shared.StudentID(s))
		}
	}
	return out
}
