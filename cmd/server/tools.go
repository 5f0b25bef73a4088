package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"nexusai.dev/nexus/internal/core"
	"nexusai.dev/nexus/internal/repos"
)

var (
	analyzeFlag bool
	modeFlag    string
	offFlag     bool
)

func init() {
	rootCmd.AddCommand(searchCmd, fetchCmd, researchCmd, discoverCmd, premiumCmd)

	searchCmd.Flags().BoolVar(&analyzeFlag, "analyze", false, "Analyze every result after searching")
	discoverCmd.Flags().StringVar(&modeFlag, "mode", core.ModeTrending,
		"Discovery mode: trending, hidden_gems, serendipity, awesome, search, deep_research")
	premiumCmd.Flags().BoolVar(&offFlag, "off", false, "Restore the daily search limit")
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find Reddit threads for a query and store them as a discovery session",
	Long: `Run the thread search chain for a query and store the results as a
discovery session of the local "cli" user.

Examples:
  nexus search "local llm inference"
  nexus search --analyze --lang tr "rust web frameworks"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Print the extracted text of a thread or page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		fmt.Fprintln(cmd.OutOrStdout(), a.fetcher.Fetch(cmd.Context(), args[0]))
		return nil
	},
}

var researchCmd = &cobra.Command{
	Use:   "research <request>",
	Short: "Run deep repository research for a natural-language request",
	Long: `Ask the model for several GitHub search queries, run them, merge the results
and let the model curate the best matches.

Example:
  nexus research "rust networking libraries for p2p apps"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return discover(cmd, core.ModeDeepResearch, strings.Join(args, " "))
	},
}

var discoverCmd = &cobra.Command{
	Use:   "discover [query]",
	Short: "Browse GitHub repositories by discovery mode",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return discover(cmd, modeFlag, strings.Join(args, " "))
	},
}

var premiumCmd = &cobra.Command{
	Use:   "premium <username>",
	Short: "Grant or revoke unlimited daily searches for a user",
	Long: `Mark a user as premium so the daily search limit no longer applies.

Examples:
  nexus premium ada
  nexus premium --off ada`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.accounts.SetPremium(args[0], !offFlag); err != nil {
			return err
		}
		state := "premium"
		if offFlag {
			state = "limited"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", args[0], state)
		return nil
	},
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	userID, err := a.cliUser()
	if err != nil {
		return err
	}

	session, err := a.discovery.Search(ctx, userID, strings.Join(args, " "))
	if err != nil {
		return err
	}

	if analyzeFlag {
		for i, item := range session.Items {
			analyzed, mode, err := a.discovery.AnalyzeItem(ctx, userID, item.ID, langFlag)
			if err != nil {
				return err
			}
			if mode != core.ModeOK {
				a.logger.Sugar().Warnf("analysis of %q is a %s placeholder", item.Title, mode)
			}
			session.Items[i] = *analyzed
		}
	}

	out := cmd.OutOrStdout()
	if jsonFlag {
		return printJSON(out, session)
	}

	fmt.Fprintf(out, "Session %s: %d results for %q\n\n", session.ID, len(session.Items), session.Query)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tHYPE\tTITLE\tURL")
	for _, item := range session.Items {
		hype := "-"
		if item.Analysis != nil {
			hype = fmt.Sprint(item.Analysis.HypeScore)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", item.Source, hype, item.Title, item.URL)
	}
	return w.Flush()
}

func discover(cmd *cobra.Command, mode, query string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	userID, err := a.cliUser()
	if err != nil {
		return err
	}

	result, err := a.repos.Discover(ctx, userID, mode, query)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonFlag {
		return printJSON(out, result)
	}
	if len(result.Queries) > 0 {
		fmt.Fprintf(out, "Queries (%s):\n", result.EngineMode)
		for _, q := range result.Queries {
			fmt.Fprintf(out, "  %s\n", q)
		}
		fmt.Fprintln(out)
	}
	printRepos(out, result.Repos)
	return nil
}

func printRepos(out io.Writer, list []repos.Repo) {
	if len(list) == 0 {
		fmt.Fprintln(out, "No repositories found.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARS\tREPO\tLANGUAGE\tWHY")
	for _, r := range list {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", r.Stars, r.Slug(), r.Language, r.AIReason)
	}
	w.Flush()
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
