package cli

import (
	"fmt"
	"io"
	"math/big"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"contest-settlement/internal/domain"
	"contest-settlement/internal/payout"
)

type distributeOptions struct {
	pool              uint64
	winners           int
	mode              string
	ratio             string
	commissionBps     uint16
	platformFeeBps    uint16
	maxPlatformFeeBps uint16
	decimals          int32
}

// NewDistributeCmd prints the payout table for a pool without touching any contest.
func NewDistributeCmd() *cobra.Command {
	opts := distributeOptions{}
	cmd := &cobra.Command{
		Use:   "distribute",
		Short: "Preview how a prize pool is split",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeDistribution(cmd.OutOrStdout(), opts)
		},
	}
	flags := cmd.Flags()
	flags.Uint64Var(&opts.pool, "pool", 0, "prize pool in base units")
	flags.IntVar(&opts.winners, "winners", 1, "number of winners")
	flags.StringVar(&opts.mode, "mode", string(domain.DistributionTiered), "tiered or even")
	flags.StringVar(&opts.ratio, "ratio", payout.DefaultTierRatio, "tier decay ratio")
	flags.Uint16Var(&opts.commissionBps, "commission-bps", 0, "host commission in basis points")
	flags.Uint16Var(&opts.platformFeeBps, "platform-fee-bps", 0, "platform fee in basis points")
	flags.Uint16Var(&opts.maxPlatformFeeBps, "max-platform-fee-bps", 1000, "platform fee cap in basis points")
	flags.Int32Var(&opts.decimals, "decimals", 0, "display amounts with this many decimal places")
	return cmd
}

func writeDistribution(w io.Writer, opts distributeOptions) error {
	distributor, err := payout.NewDistributor(opts.ratio)
	if err != nil {
		return err
	}
	dist, err := distributor.Distribute(opts.pool, opts.winners, payout.FeeSchedule{
		CommissionBps:     opts.commissionBps,
		PlatformFeeBps:    opts.platformFeeBps,
		MaxPlatformFeeBps: opts.maxPlatformFeeBps,
	}, domain.DistributionMode(opts.mode))
	if err != nil {
		return err
	}

	amount := func(v uint64) string {
		return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -opts.decimals).StringFixed(opts.decimals)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "pool\t%s\t\n", amount(dist.Pool))
	fmt.Fprintf(tw, "commission\t%s\t\n", amount(dist.Commission))
	fmt.Fprintf(tw, "platform fee\t%s\t\n", amount(dist.PlatformFee))
	fmt.Fprintf(tw, "remaining\t%s\t\n", amount(dist.Remaining))
	for i, prize := range dist.Prizes {
		fmt.Fprintf(tw, "rank %d\t%s\t\n", i+1, amount(prize))
	}
	fmt.Fprintf(tw, "dust\t%s\t\n", amount(dist.Dust))
	return tw.Flush()
}
