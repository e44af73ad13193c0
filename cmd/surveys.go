package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/matrixise/survey-gate/internal/config"
	"github.com/matrixise/survey-gate/internal/eligibility"
	"github.com/matrixise/survey-gate/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	listCountry string
	listBalance string
)

var surveysCmd = &cobra.Command{
	Use:   "surveys",
	Short: "Manage surveys",
}

var surveysImportCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Create or update surveys from a JSON array",
	Long: `Create or update surveys from a JSON array of survey objects. Derived reward
fields (pool total value and capacities) are recomputed and the claim counter
of an existing survey is kept.`,
	Args: cobra.ExactArgs(1),
	RunE: runSurveysImport,
}

var surveysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active surveys",
	Long: `List active surveys. With --country or --balance only the surveys whose
targeting admits such a user are listed.`,
	RunE: runSurveysList,
}

func init() {
	rootCmd.AddCommand(surveysCmd)
	surveysCmd.AddCommand(surveysImportCmd)
	surveysCmd.AddCommand(surveysListCmd)

	surveysListCmd.Flags().StringVar(&listCountry, "country", "", "user country (ISO 3166-1 alpha-2)")
	surveysListCmd.Flags().StringVar(&listBalance, "balance", "", "user native balance in ETH")
}

func openStore(cmd *cobra.Command) (*storage.Store, error) {
	setupLogger(cmd, nil)

	dsn, err := config.DatabaseURL()
	if err != nil {
		return nil, err
	}
	store, err := storage.NewStore(cmd.Context(), dsn)
	if err != nil {
		slog.Error("Failed to connect to PostgreSQL", "error", err)
		return nil, err
	}
	return store, nil
}

func runSurveysImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read surveys: %w", err)
	}

	var surveys []storage.Survey
	if err := json.Unmarshal(data, &surveys); err != nil {
		return fmt.Errorf("failed to parse surveys: %w", err)
	}

	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	for _, sv := range surveys {
		if err := store.SaveSurvey(cmd.Context(), sv); err != nil {
			return err
		}
		slog.Info("Survey saved", "id", sv.ID, "reward", sv.Reward.Kind)
	}
	return nil
}

func runSurveysList(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	var surveys []storage.Survey
	if listCountry == "" && listBalance == "" {
		surveys, err = store.ListActiveSurveys(ctx)
	} else {
		session := eligibility.Session{Country: listCountry}
		if listBalance != "" {
			if session.Balance, err = decimal.NewFromString(listBalance); err != nil {
				return fmt.Errorf("invalid balance %q: %w", listBalance, err)
			}
		}
		surveys, err = store.SurveysFor(ctx, session)
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tREWARD\tCLAIMED\tREMAINING")
	for _, sv := range surveys {
		remaining := "unlimited"
		if r := sv.Reward.Remaining(); r != nil {
			remaining = fmt.Sprint(*r)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", sv.ID, sv.Title, sv.Reward.Kind, sv.Reward.Claimed, remaining)
	}
	return w.Flush()
}
