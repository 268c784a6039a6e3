package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ridepay/internal/domain"
	"ridepay/internal/mpesa"
	"ridepay/internal/poller"
	"ridepay/internal/service"
)

func payCmd(opts *options) *cobra.Command {
	var (
		phone     string
		amount    int
		bookingID string
	)

	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Send an M-Pesa prompt and wait for the payment to be confirmed",
		Long: `Send an STK push to the payer's phone, then poll the server until the booking
is paid, the timeout elapses or the command is interrupted. The receipt is printed
in every case.

With --booking the fare is seats x 1000 KES unless --amount is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runPay(ctx, opts, phone, amount, bookingID)
		},
	}

	cmd.Flags().StringVarP(&phone, "phone", "p", "", "M-Pesa phone number (07..., 7... or 254...)")
	cmd.Flags().IntVarP(&amount, "amount", "a", 0, "amount in KES")
	cmd.Flags().StringVarP(&bookingID, "booking", "b", "", "booking to pay for")
	_ = cmd.MarkFlagRequired("phone")

	return cmd
}

func runPay(ctx context.Context, opts *options, phone string, amount int, bookingID string) error {
	client := opts.client()

	payer, err := mpesa.NormalizePhone(phone)
	if err != nil {
		return err
	}

	// Without a booking the status query follows the payer's own bookings.
	fallback := &domain.Booking{PhoneNumber: payer, PaymentStatus: domain.PaymentStatusPending}
	if bookingID != "" {
		booking, err := client.Booking(ctx, bookingID)
		if err != nil {
			return fmt.Errorf("load booking: %w", err)
		}
		fallback = booking
		if amount == 0 {
			amount = booking.Amount()
		}
	}
	if amount <= 0 {
		return errors.New("--amount is required when no booking is given")
	}

	push, err := client.Initiate(ctx, payer, amount, bookingID)
	if err != nil {
		return fmt.Errorf("initiate payment: %w", err)
	}
	fmt.Printf("Prompt sent to %s for KES %d (checkout %s)\n", payer, amount, push.CheckoutRequestID)
	fmt.Println("Waiting for confirmation, approve the request on your phone...")

	p := poller.New(client, opts.interval, opts.timeout, opts.logger())
	task := p.Start(ctx, poller.Target{
		Phone:     fallback.PhoneNumber,
		BookingID: bookingID,
		Fallback:  fallback,
	})
	out := task.Outcome()

	if out.Booking != nil && out.Booking.ID != "" {
		fmt.Print(service.FormatReceipt(out.Booking))
	}

	switch out.State {
	case poller.StateCompleted:
		fmt.Printf("Payment confirmed: %s\n", out.Booking.MpesaCode)
		return nil
	case poller.StateCancelled:
		return errors.New("stopped waiting for payment")
	default:
		return fmt.Errorf("payment not confirmed after %s (%d status checks)", opts.timeout, out.Attempts)
	}
}
