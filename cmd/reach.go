package cmd

import (
	"fmt"

	"github.com/matrixise/survey-gate/internal/bracket"
	"github.com/matrixise/survey-gate/internal/eligibility"
	"github.com/spf13/cobra"
)

var (
	reachCountries []string
	reachBrackets  []string
)

var reachCmd = &cobra.Command{
	Use:   "reach",
	Short: "Count the users a targeting rule would reach",
	Long: `Count the recorded users matching a targeting rule.

Without --countries every country is accepted; without --brackets every
balance is accepted. Brackets: shrimp, crab, fish, dolphin, whale, non_zero.`,
	Example: `  survey-gate reach --countries FR,BE --brackets fish,dolphin`,
	RunE:    runReach,
}

func init() {
	rootCmd.AddCommand(reachCmd)

	reachCmd.Flags().StringSliceVar(&reachCountries, "countries", nil, "ISO 3166-1 alpha-2 country codes")
	reachCmd.Flags().StringSliceVar(&reachBrackets, "brackets", nil, "balance brackets")
}

// reachRule builds a rule from the command flags
func reachRule(countries, brackets []string) (eligibility.Rule, error) {
	rule := eligibility.Open()
	if len(countries) > 0 {
		rule.Country = eligibility.CountrySet(countries...)
	}
	if len(brackets) > 0 {
		set := make([]bracket.Bracket, 0, len(brackets))
		for _, name := range brackets {
			b, err := bracket.Parse(name)
			if err != nil {
				return eligibility.Rule{}, err
			}
			set = append(set, b)
		}
		rule.Balance = eligibility.BracketSet(set...)
	}
	return rule, rule.Validate()
}

func runReach(cmd *cobra.Command, args []string) error {
	rule, err := reachRule(reachCountries, reachBrackets)
	if err != nil {
		return err
	}

	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	users, err := store.ListUsers(cmd.Context())
	if err != nil {
		return fmt.Errorf("reach unknown: %w", err)
	}

	population := make([]eligibility.User, len(users))
	for i, u := range users {
		population[i] = u.Targeting()
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d of %d users eligible\n", eligibility.CountEligible(rule, population), len(population))
	return nil
}
