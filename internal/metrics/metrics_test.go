// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordAdmission(t *testing.T) {
	admitted := EventsAdmitted.WithLabelValues("csv", "kill")
	dup := EventsDuplicate.WithLabelValues("csv", "kill")
	beforeA := testutil.ToFloat64(admitted)
	beforeD := testutil.ToFloat64(dup)

	RecordAdmission("csv", "kill", false)
	RecordAdmission("csv", "kill", true)
	RecordAdmission("csv", "kill", true)

	if got := testutil.ToFloat64(admitted) - beforeA; got != 1 {
		t.Errorf("admitted delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(dup) - beforeD; got != 2 {
		t.Errorf("duplicate delta = %v, want 2", got)
	}
}

func TestRecordTransfer(t *testing.T) {
	errs := TransferErrors.WithLabelValues("download")
	before := testutil.ToFloat64(errs)

	RecordTransfer("download", 10*time.Millisecond, nil)
	RecordTransfer("download", 10*time.Millisecond, errors.New("eof"))

	if got := testutil.ToFloat64(errs) - before; got != 1 {
		t.Errorf("error delta = %v, want 1", got)
	}
}

func TestRecordPoll_SetsLastSuccess(t *testing.T) {
	RecordPoll("log", "metrics-test", time.Second, nil)

	if got := testutil.ToFloat64(PollLastSuccess.WithLabelValues("log", "metrics-test")); got <= 0 {
		t.Errorf("last success = %v, want > 0", got)
	}
}

func TestRecordCircuitBreakerTransition(t *testing.T) {
	RecordCircuitBreakerTransition("sftp-test", "closed", "open", 2)

	if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("sftp-test")); got != 2 {
		t.Errorf("state = %v, want 2", got)
	}
	if got := testutil.ToFloat64(CircuitBreakerTransitions.WithLabelValues("sftp-test", "closed", "open")); got != 1 {
		t.Errorf("transitions = %v, want 1", got)
	}
}
