package cli

import (
	"encoding/hex"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/swarmsync/internal/identity"
)

var platforms = []identity.Platform{identity.PlatformDesktop, identity.PlatformAndroid, identity.PlatformIOS}

// BlindResult is the output of the blind command.
type BlindResult struct {
	Pubkey    string `json:"pubkey"`
	Timestamp int64  `json:"timestamp"`
	Platform  string `json:"platform"`
	Signature string `json:"signature"`
}

// NewBlindCommand creates the blind command.
func NewBlindCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		seed      string
		platform  string
		timestamp int64
	)
	cmd := &cobra.Command{
		Use:   "blind",
		Short: "Sign a version check with the blinded version key",
		Long: `Derive the account's blinded version key and sign a version check
request for the given timestamp.

Example:
  swarmsync blind --seed $SEED --timestamp 1700000000`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := hex.DecodeString(seed)
			if err != nil || len(raw) != 32 {
				return NewExitError(ExitCommandError, "--seed must be 32 bytes of hex")
			}
			p := identity.Platform(platform)
			if !slices.Contains(platforms, p) {
				return NewExitError(ExitCommandError, fmt.Sprintf("unknown platform %q: must be one of %v", platform, platforms))
			}
			pub, err := identity.BlindVersionPubkey(raw)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid seed", err)
			}
			sig, err := identity.BlindVersionSign(raw, p, timestamp)
			if err != nil {
				return WrapExitError(ExitCommandError, "sign failed", err)
			}
			res := BlindResult{Pubkey: pub, Timestamp: timestamp, Platform: platform, Signature: hex.EncodeToString(sig)}
			if rootOpts.Format == "json" {
				return rootOpts.formatter(cmd).Success(res)
			}
			return printValue(cmd, res)
		},
	}
	cmd.Flags().StringVar(&seed, "seed", "", "account seed, 64 hex characters (required)")
	cmd.Flags().StringVar(&platform, "platform", string(identity.PlatformDesktop), "client platform")
	cmd.Flags().Int64Var(&timestamp, "timestamp", 0, "request time in unix seconds (required)")
	_ = cmd.MarkFlagRequired("seed")
	_ = cmd.MarkFlagRequired("timestamp")
	return cmd
}
