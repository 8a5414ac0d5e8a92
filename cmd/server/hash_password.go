package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/akshaypatra/learning-path-dashboard-backend/internal/auth"
)

// NewHashPasswordCmd creates the hash-password subcommand, used to seed records by hand.
func NewHashPasswordCmd() *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash of a password read from the argument or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return oops.Code("INPUT_INVALID").Wrapf(err, "read password")
				}
				password = strings.TrimRight(line, "\r\n")
			}
			hash, err := auth.NewCredentialHasher(cost).Hash(password)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost")
	return cmd
}
