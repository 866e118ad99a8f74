package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/janus-network/janus/internal/daemon"
	"github.com/janus-network/janus/internal/domain"
)

func init() {
	pollsCmd.AddCommand(pollsListCmd)
	pollsCmd.AddCommand(pollsShowCmd)
	pollsCmd.AddCommand(pollsCloseCmd)
	pollsListCmd.Flags().StringVar(&pollsStatus, "status", "", "Filter by status (active, approved, rejected, executed)")
	rootCmd.AddCommand(pollsCmd)
}

var pollsStatus string

var pollsCmd = &cobra.Command{
	Use:   "polls",
	Short: "Inspect and manage governance polls",
}

var pollsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List polls",
	RunE:    runPollsList,
}

func runPollsList(cmd *cobra.Command, args []string) error {
	d, err := daemon.New(rootCmd.Version)
	if err != nil {
		return err
	}
	defer d.Close()

	polls, err := d.Polls.List(domain.PollStatus(pollsStatus), 100)
	if err != nil {
		return err
	}
	if len(polls) == 0 {
		fmt.Println("No polls found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tVOTES\tTITLE\tENDS")
	for _, p := range polls {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			p.ID,
			p.Type,
			p.Status,
			p.TotalVotes(),
			p.Title,
			p.EndsAt.Format("2006-01-02 15:04"),
		)
	}
	return w.Flush()
}

var pollsShowCmd = &cobra.Command{
	Use:   "show <poll-id>",
	Short: "Show one poll with its tallies",
	Args:  cobra.ExactArgs(1),
	RunE:  runPollsShow,
}

func runPollsShow(cmd *cobra.Command, args []string) error {
	d, err := daemon.New(rootCmd.Version)
	if err != nil {
		return err
	}
	defer d.Close()

	p, err := d.Polls.Get(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Poll:      %s\n", p.ID)
	fmt.Printf("Title:     %s\n", p.Title)
	fmt.Printf("Type:      %s (threshold %.0f%%, quorum %d)\n", p.Type, p.ThresholdPct, p.Quorum)
	fmt.Printf("Status:    %s\n", p.Status)
	fmt.Printf("Window:    %s — %s\n", p.StartsAt.Format("2006-01-02 15:04"), p.EndsAt.Format("2006-01-02 15:04"))
	if p.ParamName != "" {
		fmt.Printf("Proposes:  %s: %s -> %s\n", p.ParamName, p.ParamOldValue, p.ParamNewValue)
	}
	fmt.Printf("Tally:     yes %d (%d) / no %d (%d) / abstain %d (%d)\n",
		p.YesCount, p.YesWeight, p.NoCount, p.NoWeight, p.AbstainCount, p.AbstainWeight)
	return nil
}

var pollsCloseCmd = &cobra.Command{
	Use:   "close <poll-id>",
	Short: "Close a poll and compute its result",
	Args:  cobra.ExactArgs(1),
	RunE:  runPollsClose,
}

func runPollsClose(cmd *cobra.Command, args []string) error {
	d, err := daemon.New(rootCmd.Version)
	if err != nil {
		return err
	}
	defer d.Close()

	result, err := d.Polls.ClosePoll(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Poll %s: %s\n", result.PollID, result.Status)
	fmt.Printf("  votes %d (quorum met: %v)\n", result.TotalVotes, result.QuorumMet)
	fmt.Printf("  yes %.1f%% / no %.1f%% / abstain %.1f%%\n", result.YesPct, result.NoPct, result.AbstainPct)
	return nil
}
