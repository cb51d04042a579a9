package main

import (
	"fmt"
	"os"

	"github.com/ab180/partscan/internal/logutils"
	"github.com/rs/zerolog/log"
)

func main() {
	defer func() {
		if pe := logutils.WrapRecover(recover()); pe != nil {
			pe.Log()
			fmt.Fprintln(os.Stderr, pe.Pretty())
			os.Exit(2)
		}
	}()

	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("partscan failed")
		os.Exit(1)
	}
}
