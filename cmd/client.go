package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"go-ingest-scheduler/internal/client"
	"go-ingest-scheduler/internal/models"
)

const defaultServer = "http://localhost:5000"

func printView(out io.Writer, view models.StatusView) error {
	b, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(b))
	return err
}

func waitAndPrint(ctx context.Context, out io.Writer, c *client.Client, id string) error {
	var last models.BatchStatus
	view, err := c.WaitForCompletion(ctx, id, time.Second, func(v models.StatusView) {
		if v.Status != last {
			fmt.Fprintf(out, "%s: %s\n", v.RequestID, v.Status)
			last = v.Status
		}
	})
	if err != nil {
		return err
	}
	return printView(out, view)
}

func submitCmd() *cobra.Command {
	var server, ids, priority string
	var wait bool
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit ids for ingestion",
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := client.ParseIDList(ids)
			if err != nil {
				return errors.Wrap(err, "--ids")
			}
			c := client.NewClient(server)
			id, err := c.Submit(cmd.Context(), parsed, priority)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			if wait {
				return waitAndPrint(cmd.Context(), cmd.OutOrStdout(), c, id)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", defaultServer, "ingestion server base URL")
	cmd.Flags().StringVar(&ids, "ids", "", "comma separated ids, e.g. 1,2,3")
	cmd.Flags().StringVar(&priority, "priority", "MEDIUM", "HIGH, MEDIUM or LOW")
	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the request completes")
	_ = cmd.MarkFlagRequired("ids")
	return cmd
}

func statusCmd() *cobra.Command {
	var server string
	var wait bool
	cmd := &cobra.Command{
		Use:   "status <ingestion-id>",
		Short: "Show the status of an ingestion request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.NewClient(server)
			if wait {
				return waitAndPrint(cmd.Context(), cmd.OutOrStdout(), c, args[0])
			}
			view, err := c.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printView(cmd.OutOrStdout(), view)
		},
	}
	cmd.Flags().StringVar(&server, "server", defaultServer, "ingestion server base URL")
	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the request completes")
	return cmd
}
