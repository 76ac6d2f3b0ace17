package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/a-marczewski/netsel/internal/app"
	"github.com/a-marczewski/netsel/internal/scan"
)

const version = "0.2.0"

var rootCmd = &cobra.Command{
	Use:   "netsel",
	Short: "netsel - recommendation-driven WiFi network selection",
	Long:  `netsel evaluates scanned WiFi networks against a local recommendation service and maintains the resulting network profiles.`,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(forgetCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the selection daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return a.Run(ctx)
	},
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run a single evaluation cycle and print the selected profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New()
		if err != nil {
			return err
		}
		defer a.Close()

		selected, err := a.RunCycle(cmd.Context())
		if err != nil {
			return err
		}
		if selected == nil {
			fmt.Println("no candidate")
			return nil
		}

		out, err := json.MarshalIndent(selected, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var forgetCmd = &cobra.Command{
	Use:   "forget <ssid>",
	Short: "Delete an ephemeral profile so it is not re-recommended",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Store.RemoveEphemeral(scan.QuoteSSID(args[0])); err != nil {
			return err
		}
		fmt.Printf("forgot %s\n", args[0])
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print daemon status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New()
		if err != nil {
			return err
		}
		defer a.Close()

		out, err := json.MarshalIndent(a.Status(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the netsel version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("netsel %s\n", version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
