package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eshaffer321/audience-mix/internal/domain/distribution"
	"github.com/eshaffer321/audience-mix/internal/infrastructure/logging"
)

func newApplyCommand(global *GlobalFlags) *cobra.Command {
	flags := &ApplyFlags{}

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply one bucket edit and print the rebalanced distribution",
		Example: `  audiencemix apply --set '{"18-24":20,"25-34":20,"35-44":20,"45-54":20,"55-64":10,"65plus":10}' --key 18-24 --value 30
  audiencemix apply --keys a,b,c --key b --value 40`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(global)
			if err != nil {
				return err
			}

			allocCfg := cfg.Allocator
			if flags.Rounding != "" {
				allocCfg.Rounding = flags.Rounding
			}
			if cmd.Flags().Changed("strict") {
				allocCfg.Strict = flags.Strict
			}

			logger := logging.NewLoggerTo(cmd.ErrOrStderr(), cfg.Observability.Logging)
			allocator, err := NewAllocator(allocCfg, logger)
			if err != nil {
				return err
			}

			set, err := parseApplySet(flags, cfg.Allocator.DefaultKeys)
			if err != nil {
				return err
			}

			res, err := allocator.ApplyChange(set, flags.Key, flags.Value)
			if err != nil {
				return err
			}

			return PrintApplyResult(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVar(&flags.Set, "set", "", "Current bucket values as a JSON object, in bucket order")
	cmd.Flags().StringVar(&flags.Keys, "keys", "", "Comma-separated keys for an all-zero set (ignored with --set)")
	cmd.Flags().StringVar(&flags.Key, "key", "", "Bucket to change")
	cmd.Flags().Float64Var(&flags.Value, "value", 0, "Requested value for the bucket (clamped to 0..100)")
	cmd.Flags().StringVar(&flags.Rounding, "rounding", "", "Rounding mode: largest_remainder or nearest")
	cmd.Flags().BoolVar(&flags.Strict, "strict", false, "Reject sets that do not sum to 0 or 100")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("value")

	return cmd
}

// parseApplySet builds the starting set from --set, --keys, or the default keys.
func parseApplySet(flags *ApplyFlags, defaultKeys []string) (distribution.BucketSet, error) {
	if flags.Set != "" {
		var set distribution.BucketSet
		if err := json.Unmarshal([]byte(flags.Set), &set); err != nil {
			return distribution.BucketSet{}, fmt.Errorf("invalid --set: %w", err)
		}
		return set, nil
	}

	keys := defaultKeys
	if flags.Keys != "" {
		keys = nil
		for _, k := range strings.Split(flags.Keys, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
	}
	if len(keys) == 0 {
		keys = distribution.AgeBracketKeys()
	}

	set, err := distribution.NewBucketSet(keys, nil)
	if err != nil {
		return distribution.BucketSet{}, fmt.Errorf("invalid --keys: %w", err)
	}
	return set, nil
}
