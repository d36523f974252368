// Command onboardctl drives the onboarding API: it starts onboardings, sends
// the form-filled signal and reads state, history and the workbook report.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/garyjia/onboarding-workflow/internal/application/runner"
	"github.com/garyjia/onboarding-workflow/internal/domain/entity"
	httpapi "github.com/garyjia/onboarding-workflow/internal/interfaces/http"
	"github.com/garyjia/onboarding-workflow/pkg/utils"
)

const usage = `Usage: onboardctl [-server URL] <command> [flags]

Commands:
  start    start an onboarding
  signal   send the form-filled signal to an onboarding
  query    print the current onboarding state
  get      print the instance record
  list     list onboardings
  history  print the phase transitions
  wait     block until an onboarding finishes
  report   download the onboarding workbook
`

func main() {
	server := flag.String("server", envOr("ONBOARDING_SERVER", "http://localhost:8080"), "onboarding API base URL")
	timeout := flag.Duration("timeout", 30*time.Second, "HTTP request timeout")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := httpapi.NewClient(*server, *timeout)
	if err := run(ctx, client, flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, client *httpapi.Client, cmd string, args []string) error {
	switch cmd {
	case "start":
		return runStart(ctx, client, args)
	case "signal":
		fs := flag.NewFlagSet("signal", flag.ExitOnError)
		name := fs.String("name", runner.SignalFormFilled, "signal name")
		id, err := parseID(fs, args)
		if err != nil {
			return err
		}
		if err := client.Signal(ctx, id, *name); err != nil {
			return err
		}
		fmt.Printf("Sent %s to %s\n", *name, id)
		return nil
	case "query":
		id, err := parseID(flag.NewFlagSet("query", flag.ExitOnError), args)
		if err != nil {
			return err
		}
		state, err := client.Query(ctx, id)
		if err != nil {
			return err
		}
		return printJSON(state)
	case "get":
		id, err := parseID(flag.NewFlagSet("get", flag.ExitOnError), args)
		if err != nil {
			return err
		}
		inst, err := client.Get(ctx, id)
		if err != nil {
			return err
		}
		return printJSON(inst)
	case "list":
		fs := flag.NewFlagSet("list", flag.ExitOnError)
		limit := fs.Int("limit", 20, "page size")
		offset := fs.Int("offset", 0, "page offset")
		_ = fs.Parse(args)
		list, err := client.List(ctx, *limit, *offset)
		if err != nil {
			return err
		}
		return printJSON(list)
	case "history":
		id, err := parseID(flag.NewFlagSet("history", flag.ExitOnError), args)
		if err != nil {
			return err
		}
		transitions, err := client.History(ctx, id)
		if err != nil {
			return err
		}
		for _, t := range transitions {
			fmt.Printf("%s  %-20s -> %-22s %-24s reminders=%d\n",
				t.At.Format(time.RFC3339), t.From, t.To, t.Trigger, t.RemindersSent)
		}
		return nil
	case "wait":
		fs := flag.NewFlagSet("wait", flag.ExitOnError)
		interval := fs.Duration("interval", 2*time.Second, "poll interval")
		id, err := parseID(fs, args)
		if err != nil {
			return err
		}
		inst, err := client.Wait(ctx, id, *interval)
		if err != nil {
			return err
		}
		return printJSON(inst)
	case "report":
		fs := flag.NewFlagSet("report", flag.ExitOnError)
		out := fs.String("o", "onboardings.xlsx", "output file")
		_ = fs.Parse(args)
		f, err := os.Create(*out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", *out, err)
		}
		if err := client.Report(ctx, f); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", *out)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// runStart starts an onboarding. With -signal-after it then waits, sends the
// form-filled signal and prints the state again.
func runStart(ctx context.Context, client *httpapi.Client, args []string) error {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	id := fs.String("id", "", "workflow id (default: onboarding-<employee id>)")
	file := fs.String("f", "", "JSON file with the full initial state")
	empID := fs.String("employee-id", "emp0000057", "employee id")
	email := fs.String("email", "suren@example.com", "employee email")
	first := fs.String("first-name", "Suren", "employee first name")
	last := fs.String("last-name", "Rodrigo", "employee last name")
	deadline := fs.String("deadline", "50 seconds", "period given for filling the form")
	interval := fs.String("interval", "10 seconds", "reminder interval")
	limit := fs.Int("limit", 4, "reminder limit")
	signalAfter := fs.Duration("signal-after", 0, "send the form-filled signal after this delay")
	_ = fs.Parse(args)

	state, err := initialState(*file, *empID, *email, *first, *last, *deadline, *interval, *limit)
	if err != nil {
		return err
	}

	started, err := client.Start(ctx, *id, state)
	if err != nil {
		return err
	}
	fmt.Printf("Started workflow %s\n", started.WorkflowID)
	if err := printJSON(started.State); err != nil {
		return err
	}

	if *signalAfter <= 0 {
		return nil
	}

	select {
	case <-time.After(*signalAfter):
	case <-ctx.Done():
		return ctx.Err()
	}

	fmt.Printf("Sending %s\n", runner.SignalFormFilled)
	if err := client.FormFilled(ctx, started.WorkflowID); err != nil {
		return err
	}
	after, err := client.Query(ctx, started.WorkflowID)
	if err != nil {
		return err
	}
	return printJSON(after)
}

func initialState(file, empID, email, first, last, deadline, interval string, limit int) (entity.OnboardingState, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return entity.OnboardingState{}, fmt.Errorf("failed to read %s: %w", file, err)
		}
		var state entity.OnboardingState
		if err := json.Unmarshal(data, &state); err != nil {
			return entity.OnboardingState{}, fmt.Errorf("failed to parse %s: %w", file, err)
		}
		return state, nil
	}

	if err := utils.ValidateEmail(email); err != nil {
		return entity.OnboardingState{}, err
	}
	d, err := entity.ParseDuration(deadline)
	if err != nil {
		return entity.OnboardingState{}, fmt.Errorf("-deadline: %w", err)
	}
	i, err := entity.ParseDuration(interval)
	if err != nil {
		return entity.OnboardingState{}, fmt.Errorf("-interval: %w", err)
	}

	employee := entity.Employee{
		ID:        utils.SanitizeString(empID),
		Email:     email,
		FirstName: utils.SanitizeString(first),
		LastName:  utils.SanitizeString(last),
	}
	return entity.NewOnboardingState(employee, d, i, limit), nil
}

func parseID(fs *flag.FlagSet, args []string) (string, error) {
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return "", fmt.Errorf("%s needs exactly one workflow id", fs.Name())
	}
	return fs.Arg(0), nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
