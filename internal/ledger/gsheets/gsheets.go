// Package gsheets implements the ledger mirror log on a Google Sheet.
// Rows occupy columns A through D: vehicle, contact, handle, status.
package gsheets

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/avdonin/pitstop/internal/ledger"
)

const leadRange = "A:D"

// Client mirrors leads to a single spreadsheet.
type Client struct {
	svc           *sheets.Service
	spreadsheetID string
	out           io.Writer
}

// ClientOpts configures a sheets Client.
type ClientOpts struct {
	// CredentialsFile is a path to a service account JSON key.
	CredentialsFile string

	// SpreadsheetID identifies the target spreadsheet.
	SpreadsheetID string

	// Out is the log destination, defaults to os.Stdout.
	Out io.Writer
}

// New builds a sheets-backed ledger client.
func New(ctx context.Context, opts ClientOpts) (*Client, error) {
	if opts.CredentialsFile == "" {
		return nil, fmt.Errorf("gsheets: credentials file is required")
	}
	if opts.SpreadsheetID == "" {
		return nil, fmt.Errorf("gsheets: spreadsheet id is required")
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	svc, err := sheets.NewService(ctx,
		option.WithCredentialsFile(opts.CredentialsFile),
		option.WithScopes(sheets.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("gsheets: create service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: opts.SpreadsheetID,
		out:           opts.Out,
	}, nil
}

// AppendLead appends a row of vehicle, contact, handle, status.
func (c *Client) AppendLead(ctx context.Context, vehicle, contact, handle, status string) error {
	vr := &sheets.ValueRange{
		Values: [][]interface{}{{vehicle, contact, handle, status}},
	}
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, leadRange, vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("gsheets: append lead: %w", err)
	}
	return nil
}

// UpdateStatusByMatch scans the sheet for a row whose vehicle column
// matches exactly and whose contact column agrees, then rewrites the
// status cell of that row.
func (c *Client) UpdateStatusByMatch(ctx context.Context, vehicle, contact, status string) error {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, leadRange).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("gsheets: read rows: %w", err)
	}

	for i, row := range resp.Values {
		if len(row) < 2 {
			continue
		}
		v, _ := row[0].(string)
		p, _ := row[1].(string)
		if v != vehicle || p != contact {
			continue
		}
		// Rows are 1-based in A1 notation.
		cell := fmt.Sprintf("D%d", i+1)
		vr := &sheets.ValueRange{Values: [][]interface{}{{status}}}
		_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, cell, vr).
			ValueInputOption("RAW").
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("gsheets: update status: %w", err)
		}
		return nil
	}

	log.Printf("gsheets: no row for vehicle %q contact %q", vehicle, contact)
	return ledger.ErrRowNotFound
}
