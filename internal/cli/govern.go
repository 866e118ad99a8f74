package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/janus-network/janus/internal/daemon"
)

func init() {
	actionsCmd.AddCommand(actionsProcessCmd)
	actionsCmd.AddCommand(actionsEligibilityCmd)
	rootCmd.AddCommand(actionsCmd)
	rootCmd.AddCommand(consensusCmd)
}

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "Execute scheduled actions and inspect rollback eligibility",
}

var actionsProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Execute all due scheduled actions",
	RunE:  runActionsProcess,
}

func runActionsProcess(cmd *cobra.Command, args []string) error {
	d, err := daemon.New(rootCmd.Version)
	if err != nil {
		return err
	}
	defer d.Close()

	processed, err := d.Rollback.ProcessDueActions()
	if err != nil {
		return err
	}
	if len(processed) == 0 {
		fmt.Println("No actions due.")
		return nil
	}
	for _, a := range processed {
		fmt.Printf("%s  %s: %s -> %s  [%s]\n", a.ID, a.ParamName, a.OldValue, a.NewValue, a.Status)
	}
	return nil
}

var actionsEligibilityCmd = &cobra.Command{
	Use:   "eligibility <action-id>",
	Short: "Show which rollback paths are open against an action",
	Args:  cobra.ExactArgs(1),
	RunE:  runActionsEligibility,
}

func runActionsEligibility(cmd *cobra.Command, args []string) error {
	d, err := daemon.New(rootCmd.Version)
	if err != nil {
		return err
	}
	defer d.Close()

	rep, err := d.Rollback.Eligibility(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Action:    %s\n", rep.ActionID)
	fmt.Printf("Window:    open=%v remaining=%s\n", rep.WithinWindow, rep.WindowRemaining)
	fmt.Printf("Founder:   eligible=%v tokens=%d authority=%d%%\n", rep.FounderEligible, rep.FounderTokens, rep.FounderAuthority)
	fmt.Printf("Petition:  %d / %d signers\n", rep.PetitionSigners, rep.PetitionRequired)
	fmt.Printf("Automatic: triggered=%v deletion_rate=%.1f%%\n", rep.AutoTriggered, rep.DeletionRatePct)
	return nil
}

var consensusCmd = &cobra.Command{
	Use:   "consensus <poll-id>",
	Short: "Show the shadow consensus report for a closed poll",
	Args:  cobra.ExactArgs(1),
	RunE:  runConsensus,
}

func runConsensus(cmd *cobra.Command, args []string) error {
	d, err := daemon.New(rootCmd.Version)
	if err != nil {
		return err
	}
	defer d.Close()

	r, err := d.Consensus.Analyze(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Poll:       %s\n", r.PollID)
	fmt.Printf("True self:  yes %.1f%% (n=%d, ±%.1f)\n", r.TrueSelf.YesPct, r.TrueSelf.Total(), r.TrueSelf.CI)
	fmt.Printf("Shadow:     yes %.1f%% (n=%d, ±%.1f)\n", r.Shadow.YesPct, r.Shadow.Total(), r.Shadow.CI)
	fmt.Printf("Gap:        %.1f points (%s, %s)\n", r.Gap, r.Alignment, r.Trend)
	return nil
}
