package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ekklesia/commhub/internal/phone"
	"github.com/ekklesia/commhub/internal/sms"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the SMS providers the current environment configures",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		reg, err := sms.NewRegistry(cfg.SMS)
		if err != nil {
			return err
		}
		for i, name := range reg.Names() {
			marker := ""
			if i == 0 {
				marker = " (default)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s%s\n", name, marker)
		}
		return nil
	},
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize <phone>...",
	Short: "Check phone numbers and print their canonical form",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bad := 0
		for _, raw := range args {
			p, err := phone.Normalize(raw)
			if err != nil {
				bad++
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tINVALID\t%v\n", raw, err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", raw, p)
		}
		if bad > 0 {
			return fmt.Errorf("%d of %d numbers are invalid", bad, len(args))
		}
		return nil
	},
}
