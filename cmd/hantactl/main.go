// Package main provides hantactl, the operator CLI for the score service.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/hanta/internal/domain/keystroke"
	"github.com/okian/hanta/internal/domain/model"
	"github.com/okian/hanta/internal/probe"
	"github.com/okian/hanta/pkg/logger"
)

const defaultURL = "http://localhost:9080"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool
	rootCmd := &cobra.Command{
		Use:          "hantactl",
		Short:        "Operator tools for the hanta score service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.Init(logger.WithOutput(cmd.ErrOrStderr())); err != nil {
				return err
			}
			if verbose {
				return logger.SetLevelString("debug")
			}
			return logger.SetLevelString("warn")
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log progress to stderr")

	rootCmd.AddCommand(newScoreCmd())
	rootCmd.AddCommand(newProbeCmd())
	return rootCmd
}

func newScoreCmd() *cobra.Command {
	var (
		referencePath string
		typedPath     string
		elapsed       float64
		mode          string
	)
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Compute typing statistics offline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := model.ParseMode(mode)
			if err != nil {
				return err
			}
			if elapsed < 0 {
				return fmt.Errorf("elapsed must not be negative")
			}
			reference, err := os.ReadFile(referencePath)
			if err != nil {
				return fmt.Errorf("read reference: %w", err)
			}
			typed, err := os.ReadFile(typedPath)
			if err != nil {
				return fmt.Errorf("read typed: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), keystroke.Compute(string(reference), string(typed), elapsed, m))
		},
	}
	cmd.Flags().StringVar(&referencePath, "reference", "", "file with the reference text")
	cmd.Flags().StringVar(&typedPath, "typed", "", "file with the typed text")
	cmd.Flags().Float64Var(&elapsed, "elapsed", 0, "seconds the run took")
	cmd.Flags().StringVar(&mode, "mode", string(model.ModeShort), "mode: short, long or venice")
	_ = cmd.MarkFlagRequired("reference")
	_ = cmd.MarkFlagRequired("typed")
	_ = cmd.MarkFlagRequired("elapsed")
	return cmd
}

func newProbeCmd() *cobra.Command {
	cfg := probe.Config{}
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Submit one run to a live server and check the anti-cheat verdict",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rep, err := probe.Run(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), rep); err != nil {
				return err
			}
			if !rep.Passed {
				return fmt.Errorf("probe failed: got status %d, want %d", rep.Status, rep.Expected)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.BaseURL, "url", defaultURL, "base URL of the service")
	cmd.Flags().StringVar(&cfg.Mode, "mode", string(model.ModeShort), "mode: short, long or venice")
	cmd.Flags().StringVar(&cfg.Name, "name", "probe", "display name to submit")
	cmd.Flags().StringVar(&cfg.Reference, "reference", "", "reference text")
	cmd.Flags().StringVar(&cfg.Typed, "typed", "", "typed text")
	cmd.Flags().Float64Var(&cfg.Elapsed, "elapsed", 0, "seconds the run took")
	cmd.Flags().BoolVar(&cfg.Tamper, "tamper", false, "inflate the submitted numbers")
	cmd.Flags().DurationVar(&cfg.Timeout, "timeout", 10*time.Second, "HTTP request timeout")
	_ = cmd.MarkFlagRequired("reference")
	_ = cmd.MarkFlagRequired("typed")
	_ = cmd.MarkFlagRequired("elapsed")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
