package commands

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/openfroyo/beanstack/pkg/engine"
)

type reconciliationView struct {
	Environment string        `json:"environment"`
	Operation   string        `json:"operation,omitempty"`
	Status      string        `json:"status,omitempty"`
	Version     string        `json:"version,omitempty"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

func printReconciliations(w io.Writer, results []engine.ReconciliationResult) error {
	views := make([]reconciliationView, len(results))
	for i, r := range results {
		views[i] = reconciliationView{
			Environment: r.Environment,
			Operation:   string(r.Operation),
			Duration:    r.Duration.Round(time.Millisecond),
		}
		if r.State != nil {
			views[i].Status = string(r.State.Status)
			views[i].Version = r.State.VersionLabel
		}
		if r.Err != nil {
			views[i].Error = r.Err.Error()
		}
	}
	if jsonOutput {
		return printJSON(w, views)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENVIRONMENT\tOPERATION\tSTATUS\tVERSION\tDURATION\tERROR")
	for _, v := range views {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			v.Environment, dash(v.Operation), dash(v.Status), dash(v.Version), v.Duration, dash(v.Error))
	}
	return tw.Flush()
}

type terminationView struct {
	Environment   string `json:"environment"`
	EnvironmentID string `json:"environment_id,omitempty"`
	Skipped       bool   `json:"skipped"`
	Error         string `json:"error,omitempty"`
}

func printTerminations(w io.Writer, results []engine.TerminationResult) error {
	views := make([]terminationView, len(results))
	for i, r := range results {
		views[i] = terminationView{
			Environment:   r.Environment,
			EnvironmentID: r.EnvironmentID,
			Skipped:       r.Skipped,
		}
		if r.Err != nil {
			views[i].Error = r.Err.Error()
		}
	}
	if jsonOutput {
		return printJSON(w, views)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENVIRONMENT\tID\tRESULT")
	for _, v := range views {
		result := "terminating"
		switch {
		case v.Error != "":
			result = "failed: " + v.Error
		case v.Skipped:
			result = "absent"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", v.Environment, dash(v.EnvironmentID), result)
	}
	return tw.Flush()
}

type environmentView struct {
	Environment string                   `json:"environment"`
	State       *engine.EnvironmentState `json:"state"`
}

func printStates(w io.Writer, names []string, states []*engine.EnvironmentState) error {
	if jsonOutput {
		views := make([]environmentView, len(names))
		for i := range names {
			views[i] = environmentView{Environment: names[i], State: states[i]}
		}
		return printJSON(w, views)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENVIRONMENT\tID\tSTATUS\tHEALTH\tVERSION\tTEMPLATE\tCNAME")
	for i, name := range names {
		s := states[i]
		if s == nil {
			fmt.Fprintf(tw, "%s\t-\tabsent\t-\t-\t-\t-\n", name)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			name, s.EnvironmentID, s.Status, dash(s.Health), dash(s.VersionLabel), dash(s.TemplateName), dash(s.CNAME))
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
