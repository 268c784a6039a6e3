package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ridepay/internal/service"
)

func statusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status [phone]",
		Short: "List the bookings for a phone number, latest departure first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookings, err := opts.client().Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if len(bookings) == 0 {
				fmt.Printf("No bookings for %s\n", args[0])
				return nil
			}

			fmt.Printf("Bookings for %s\n", args[0])
			fmt.Println(strings.Repeat("=", 40))
			for _, b := range bookings {
				fmt.Printf("%s  %s %s  %-20s  seats %s  %s\n",
					b.ID, b.DepartureDate, b.DepartureTime, b.Route,
					strings.Join(b.SelectedSeats, ","), service.PaymentLabel(b))
			}
			return nil
		},
	}
}
