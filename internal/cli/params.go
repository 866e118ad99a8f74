package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/janus-network/janus/internal/daemon"
)

func init() {
	paramsCmd.AddCommand(paramsListCmd)
	paramsCmd.AddCommand(paramsShowCmd)
	rootCmd.AddCommand(paramsCmd)
}

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Inspect governance parameters",
}

var paramsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all governance parameters",
	RunE:    runParamsList,
}

func runParamsList(cmd *cobra.Command, args []string) error {
	d, err := daemon.New(rootCmd.Version)
	if err != nil {
		return err
	}
	defer d.Close()

	parameters, err := d.Registry.List()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVALUE\tTYPE\tVOTEABLE\tROLLBACKS\tFROZEN")
	for _, p := range parameters {
		frozen := "-"
		if p.Frozen(time.Now()) {
			frozen = p.FrozenUntil.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%d\t%s\n",
			p.Name, p.Value, p.Type, p.Voteable, p.RollbackCount, frozen)
	}
	return w.Flush()
}

var paramsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show one governance parameter",
	Args:  cobra.ExactArgs(1),
	RunE:  runParamsShow,
}

func runParamsShow(cmd *cobra.Command, args []string) error {
	d, err := daemon.New(rootCmd.Version)
	if err != nil {
		return err
	}
	defer d.Close()

	p, err := d.Registry.Get(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Parameter: %s\n", p.Name)
	fmt.Printf("Value:     %s (%s)\n", p.Value, p.Type)
	fmt.Printf("Voteable:  %v\n", p.Voteable)
	if p.MinValue != nil && p.MaxValue != nil {
		fmt.Printf("Bounds:    [%g, %g]\n", *p.MinValue, *p.MaxValue)
	}
	if p.SuperMajority {
		fmt.Println("Requires:  super-majority (66%)")
	}
	fmt.Printf("Rollbacks: %d\n", p.RollbackCount)
	if p.Frozen(time.Now()) {
		fmt.Printf("Frozen:    until %s\n", p.FrozenUntil.Format("2006-01-02 15:04"))
	}
	fmt.Printf("Purpose:   %s\n", p.Description)
	return nil
}
