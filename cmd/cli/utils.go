// Utility functions for the aether CLI
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/agilira/aether"
	"github.com/agilira/go-errors"
)

// parseDataRequests parses the --data flag: comma-separated id@period
// pairs. Period 0 means on-demand; a bare id without @period also means
// on-demand.
//
// Examples: "1@100ms", "1@100ms,2@1s", "3" (on-demand), "3@0".
func parseDataRequests(s string) ([]aether.DataRq, error) {
	if s == "" {
		return nil, errors.New(aether.ErrCodeNoDataRequested, "missing --data flag")
	}

	parts := strings.Split(s, ",")
	rqs := make([]aether.DataRq, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		idStr, periodStr, hasPeriod := strings.Cut(part, "@")

		id, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			return nil, errors.New(aether.ErrCodeInvalidValue, fmt.Sprintf("bad data ID %q", idStr))
		}

		var period time.Duration
		if hasPeriod && periodStr != "0" {
			period, err = time.ParseDuration(periodStr)
			if err != nil {
				return nil, errors.New(aether.ErrCodeInvalidValue, fmt.Sprintf("bad period %q", periodStr))
			}
		}

		rqs = append(rqs, aether.DataRq{ID: aether.DataID(id), Period: period})
	}
	return rqs, nil
}

// formatPeriods renders a descriptor's period list for tabular output.
func formatPeriods(periods []time.Duration) string {
	if len(periods) == 0 {
		return "any"
	}
	parts := make([]string, len(periods))
	for i, p := range periods {
		parts[i] = p.String()
	}
	return strings.Join(parts, ",")
}

// maxPayloadPreview bounds how much record payload the run command prints.
const maxPayloadPreview = 32

// printRecord is the record callback for the run command.
func printRecord(rec *aether.Record, seqno aether.Seqno) {
	payload := rec.Data
	suffix := ""
	if len(payload) > maxPayloadPreview {
		payload = payload[:maxPayloadPreview]
		suffix = fmt.Sprintf("... (%d bytes)", len(rec.Data))
	}
	fmt.Printf("%s  id=%d dev=%d seq=%d  %s%s\n",
		rec.Timestamp.Format("15:04:05.000"),
		uint64(rec.DataID), int(rec.DeviceID), uint64(seqno),
		hex.EncodeToString(payload), suffix)
}
