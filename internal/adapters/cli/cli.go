package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"darbar-billing/internal/app"
	"darbar-billing/internal/core"
)

// ErrUsage is returned for an unknown command or missing arguments.
var ErrUsage = errors.New("usage: app <items|stock|movements|invoice|recalc|balance|audit> [id]")

// Run executes a one-shot operator command and writes its output to out.
// args is os.Args[1:]; the first element is the subcommand name.
func Run(ctx context.Context, svc app.ApplicationService, args []string, out io.Writer) error {
	if len(args) == 0 {
		return ErrUsage
	}

	switch args[0] {
	case "items", "ls":
		result, err := svc.ListItems(ctx, len(args) > 1 && args[1] == "--all")
		if err != nil {
			return fmt.Errorf("failed to list items: %w", err)
		}
		printItems(out, result.Items)

	case "stock", "s":
		id, err := idArg(args)
		if err != nil {
			return err
		}
		info, err := svc.GetItemStockInfo(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get stock: %w", err)
		}
		return writeJSON(out, info)

	case "movements", "mv":
		id, err := idArg(args)
		if err != nil {
			return err
		}
		result, err := svc.ItemMovements(ctx, id, 50)
		if err != nil {
			return fmt.Errorf("failed to list movements: %w", err)
		}
		return writeJSON(out, result)

	case "invoice", "inv":
		id, err := idArg(args)
		if err != nil {
			return err
		}
		inv, err := svc.GetInvoice(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get invoice: %w", err)
		}
		printInvoice(out, inv)

	case "recalc":
		id, err := idArg(args)
		if err != nil {
			return err
		}
		totals, err := svc.RecalculateInvoice(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to recalculate invoice: %w", err)
		}
		return writeJSON(out, totals)

	case "balance", "bal":
		id, err := idArg(args)
		if err != nil {
			return err
		}
		bal, err := svc.GetPartyBalance(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get balance: %w", err)
		}
		fmt.Fprintf(out, "%s  invoiced %s  paid %s  pending %s\n",
			bal.PartyName, bal.TotalInvoiced.StringFixed(2), bal.TotalPaid.StringFixed(2), bal.Pending.StringFixed(2))

	case "audit":
		result, err := svc.AuditStock(ctx)
		if err != nil {
			return fmt.Errorf("failed to audit stock: %w", err)
		}
		if result.Consistent {
			fmt.Fprintln(out, "Stock is consistent with the movement log.")
			return nil
		}
		for _, d := range result.Discrepancies {
			fmt.Fprintf(out, "%-12s %-30s quantity %d, expected %d\n",
				d.Code, d.Name, d.Quantity, d.InitialQuantity+d.MovementSum)
		}

	default:
		return fmt.Errorf("unknown command %q: %w", args[0], ErrUsage)
	}
	return nil
}

func idArg(args []string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("%s needs an id: %w", args[0], ErrUsage)
	}
	id, err := strconv.Atoi(args[1])
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", args[1])
	}
	return id, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printItems(out io.Writer, items []core.Item) {
	fmt.Fprintf(out, "  %-6s %-12s %-30s %8s %12s\n", "ID", "CODE", "NAME", "QTY", "RETAIL")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 72))
	for _, it := range items {
		name := it.Name
		if !it.IsActive {
			name += " (inactive)"
		}
		fmt.Fprintf(out, "  %-6d %-12s %-30s %8d %12s\n", it.ID, it.Code, name, it.Quantity, it.PriceRetail.StringFixed(2))
	}
}

func printInvoice(out io.Writer, inv *core.Invoice) {
	t := inv.Totals
	fmt.Fprintln(out, strings.Repeat("=", 48))
	fmt.Fprintf(out, "  %s  %s  %s\n", inv.Number, inv.Type, inv.Date.Format("2006-01-02"))
	if inv.CustomerName != "" {
		fmt.Fprintf(out, "  Customer : %s\n", inv.CustomerName)
	}
	fmt.Fprintln(out, strings.Repeat("=", 48))
	rows := []struct {
		label string
		value string
	}{
		{"Subtotal", t.Subtotal.StringFixed(2)},
		{"GST", t.GSTTotal.StringFixed(2)},
		{"Discount", t.DiscountTotal.StringFixed(2)},
		{"Gross", t.GrossAmount.StringFixed(2)},
		{"Returns", t.TotalReturns.StringFixed(2)},
		{"Total", t.TotalAmount.StringFixed(2)},
		{"Paid", t.TotalPaid.StringFixed(2)},
		{"Balance due", t.BalanceDue.StringFixed(2)},
	}
	for _, r := range rows {
		fmt.Fprintf(out, "  %-20s %25s\n", r.label, r.value)
	}
	if t.IsPaid {
		fmt.Fprintln(out, "  PAID")
	}
}
