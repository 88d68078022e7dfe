package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	envFile string
	Quiet   bool
	Verbose bool
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "subexplorer",
		Short:         "Find subreddits related to a community by hot posts or active users",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file (default: ./.env)")
	root.PersistentFlags().BoolVarP(&Quiet, "quiet", "q", false, "Activate quiet log output")
	root.PersistentFlags().BoolVarP(&Verbose, "verbose", "v", false, "Activate verbose log output")

	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())
	root.AddCommand(similarCmd())
	root.AddCommand(searchCmd())
	root.AddCommand(recentCmd())

	return root
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server and web UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port, false)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port, true)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func similarCmd() *cobra.Command {
	var (
		mode       string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "similar <subreddit>",
		Short: "Show subreddits related to a community",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimilar(args[0], mode, limit, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "posts or users (default: from config)")
	cmd.Flags().IntVar(&limit, "limit", 0, "related subreddits to show, 1-25 (default: from config)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func searchCmd() *cobra.Command {
	var nsfw bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search subreddit names",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(args[0], nsfw)
		},
	}

	cmd.Flags().BoolVar(&nsfw, "nsfw", false, "include over-18 communities")
	return cmd
}

func recentCmd() *cobra.Command {
	var (
		subreddit  string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show recent lookups",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecent(subreddit, limit, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&subreddit, "subreddit", "", "only lookups for this subreddit")
	cmd.Flags().IntVar(&limit, "limit", 20, "max lookups to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}
