package main

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/ab180/partscan"
	"github.com/ab180/partscan/config"
	"github.com/ab180/partscan/internal/util"
	"github.com/ab180/partscan/scan"
	"github.com/ab180/partscan/store"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/therne/errorist"
)

type cli struct {
	configPath string
	verbose    bool
	cfg        config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	rootCmd := &cobra.Command{
		Use:   "partscan",
		Short: "Compare a cross-partition scan with a partition-parallel fan-out",
		Long: `partscan runs the configured query twice against a range-partitioned store:
once as a single cross-partition query and once as one query per feed range,
merging results on the client. Then it reports timings and whether both results match.`,
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
		RunE:              c.compare,
	}
	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", config.DefaultPath, "path to the config file")
	rootCmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "print debug logs")

	rangesCmd := &cobra.Command{
		Use:   "ranges",
		Short: "List feed ranges of the configured container",
		Args:  cobra.NoArgs,
		RunE:  c.listRanges,
	}
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Write sample documents into the configured container",
		Args:  cobra.NoArgs,
		RunE:  c.seed,
	}
	seedCmd.Flags().Int("documents", 1000, "number of documents to write")

	splitCmd := &cobra.Command{
		Use:   "split <min> <max>",
		Short: "Split a feed range into two halves",
		Long:  `Split a feed range into two halves. Pass an empty string for an unbounded side, as printed by "partscan ranges".`,
		Args:  cobra.ExactArgs(2),
		RunE:  c.split,
	}

	rootCmd.AddCommand(rangesCmd, seedCmd, splitCmd)
	return rootCmd
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	if isatty.IsTerminal(os.Stderr.Fd()) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if c.verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	c.cfg = cfg
	return nil
}

func (c *cli) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return util.ContextWithSignal(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func (c *cli) compare(cmd *cobra.Command, _ []string) error {
	ctx, cancel := c.context(cmd)
	defer cancel()

	return partscan.Run(ctx, c.cfg, cmd.OutOrStdout())
}

func (c *cli) listRanges(cmd *cobra.Command, _ []string) (err error) {
	ctx, cancel := c.context(cmd)
	defer cancel()

	st, err := partscan.OpenStore(ctx, c.cfg)
	if err != nil {
		return err
	}
	defer errorist.CloseWithErrCapture(st, &err, errorist.Wrapf("close store"))

	ranges, err := scan.ListRanges(ctx, st)
	if err != nil {
		return err
	}
	for _, r := range ranges {
		fmt.Fprintf(cmd.OutOrStdout(), "%q %q\n", r.Min, r.Max)
	}
	return nil
}

func (c *cli) seed(cmd *cobra.Command, _ []string) (err error) {
	n, err := cmd.Flags().GetInt("documents")
	if err != nil {
		return err
	}
	ctx, cancel := c.context(cmd)
	defer cancel()

	st, err := partscan.OpenStore(ctx, c.cfg)
	if err != nil {
		return err
	}
	defer errorist.CloseWithErrCapture(st, &err, errorist.Wrapf("close store"))

	w, ok := st.(store.Writer)
	if !ok {
		return errors.Errorf("%s backend does not accept documents", c.cfg.Backend)
	}
	if err := partscan.Seed(ctx, w, n); err != nil {
		return err
	}
	log.Info().Int("documents", n).Str("namespace", c.cfg.Namespace()).Msg("seeded")
	return nil
}

func (c *cli) split(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := c.context(cmd)
	defer cancel()

	st, err := partscan.OpenStore(ctx, c.cfg)
	if err != nil {
		return err
	}
	defer errorist.CloseWithErrCapture(st, &err, errorist.Wrapf("close store"))

	s, ok := st.(store.Splitter)
	if !ok {
		return errors.Errorf("%s backend does not support splits", c.cfg.Backend)
	}
	return s.Split(ctx, store.FeedRange{Min: args[0], Max: args[1]})
}
