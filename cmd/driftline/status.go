// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

const statusTimeout = 3 * time.Second

// newStatusCmd creates the status subcommand.
func newStatusCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show health of a running auth service",
		Long:  `Query the readiness probe of a running auth service.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "127.0.0.1:9100",
		"metrics/health HTTP address of the running service")

	return cmd
}

func runStatus(cmd *cobra.Command, metricsAddr string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), statusTimeout)
	defer cancel()

	url := fmt.Sprintf("http://%s/healthz/readiness", metricsAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return oops.Code("STATUS_REQUEST_FAILED").With("url", url).Wrap(err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return oops.Code("STATUS_UNREACHABLE").With("url", url).Wrap(err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only response body

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return oops.Code("STATUS_READ_FAILED").With("url", url).Wrap(err)
	}

	if resp.StatusCode == http.StatusOK {
		cmd.Printf("ready: %s", body)
		return nil
	}
	cmd.Printf("not ready (%d): %s", resp.StatusCode, body)
	return oops.Code("SERVICE_NOT_READY").Errorf("readiness probe returned %d", resp.StatusCode)
}
