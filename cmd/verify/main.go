package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fairplay/internal/game"
	"fairplay/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var req game.VerifyRequest

	root := &cobra.Command{
		Use:   "verify",
		Short: "Recompute a provably fair outcome from a revealed server seed",
		Long: "verify derives the draw from serverSeed-clientSeed-nonce exactly as the casino does " +
			"and prints the outcome, so a player can check any settled bet after rotating their seed.",
		SilenceUsage: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&req.ServerSeed, "server-seed", "", "revealed server seed (required)")
	flags.StringVar(&req.ClientSeed, "client-seed", "", "client seed used for the bet (required)")
	flags.Int64Var(&req.Nonce, "nonce", 0, "nonce of the bet")
	flags.StringVar(&req.ExpectedHash, "hash", "", "published server seed hash to check against")
	_ = root.MarkPersistentFlagRequired("server-seed")
	_ = root.MarkPersistentFlagRequired("client-seed")

	run := func(g store.GameType) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			req.Game = g
			v, err := game.Verify(req)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(v); err != nil {
				return err
			}
			if v.CommitmentValid != nil && !*v.CommitmentValid {
				return fmt.Errorf("server seed does not match hash %s", req.ExpectedHash)
			}
			return nil
		}
	}

	dice := &cobra.Command{Use: "dice", Short: "Verify a dice roll", RunE: run(store.GameDice)}
	dice.Flags().IntVar(&req.Target, "target", 0, "target number 2-98; omit to print only the roll")
	dice.Flags().StringVar((*string)(&req.Direction), "direction", string(game.DirectionUnder), "under or over")

	crash := &cobra.Command{Use: "crash", Short: "Verify a crash point", RunE: run(store.GameCrash)}
	crash.Flags().Float64Var(&req.AutoCashout, "auto-cashout", 0, "auto cashout multiplier to settle against")

	mines := &cobra.Command{Use: "mines", Short: "Verify a mines board", RunE: run(store.GameMines)}
	mines.Flags().IntVar(&req.MineCount, "mines", 3, "number of mines 1-24")

	root.AddCommand(dice, crash, mines)
	return root
}
