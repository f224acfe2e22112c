// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package poller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/tomtom215/killfeed/internal/config"
	"github.com/tomtom215/killfeed/internal/coordinator"
	"github.com/tomtom215/killfeed/internal/paths"
	"github.com/tomtom215/killfeed/internal/premium"
	"github.com/tomtom215/killfeed/internal/stats"
	"github.com/tomtom215/killfeed/internal/transfer"
)

const (
	testHost   = "79.127.236.1"
	testServer = "7020"
)

var testNow = time.Date(2024, 3, 15, 14, 35, 0, 0, time.UTC)

// recorder is an in-memory stats.Updater and stats.Store.
type recorder struct {
	mu          sync.Mutex
	kills       []stats.KillRecord
	connections []stats.ConnectionRecord
	docs        []stats.Document
}

func (r *recorder) RecordKill(_ context.Context, rec stats.KillRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kills = append(r.kills, rec)
	return nil
}

func (r *recorder) RecordConnection(_ context.Context, rec stats.ConnectionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections = append(r.connections, rec)
	return nil
}

func (r *recorder) RecordMission(context.Context, stats.MissionRecord) error     { return nil }
func (r *recorder) RecordGameEvent(context.Context, stats.GameEventRecord) error { return nil }

func (r *recorder) AppendEvent(_ context.Context, doc stats.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs = append(r.docs, doc)
	return nil
}

func (r *recorder) killCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.kills)
}

// failingDownload fails Download for one path while Stat keeps working.
type failingDownload struct {
	*transfer.MemClient
	path string
}

func (f *failingDownload) Download(ctx context.Context, p string) ([]byte, error) {
	if p == f.path {
		return nil, errors.New("connection reset")
	}
	return f.MemClient.Download(ctx, p)
}

type harness struct {
	mem    *transfer.MemClient
	client transfer.Client
	rec    *recorder
	coord  *coordinator.Coordinator
	pool   *transfer.Pool
	csv    *Poller
	log    *Poller
}

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		ServerID:    testServer,
		Hostname:    testHost,
		Username:    "deadside",
		CSVEnabled:  true,
		LogEnabled:  true,
		PremiumTier: 1,
	}
}

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{Enabled: true, Interval: time.Minute, Lookback: 15 * time.Minute}
}

func newHarness(t *testing.T, servers ...config.ServerConfig) *harness {
	t.Helper()
	if len(servers) == 0 {
		servers = []config.ServerConfig{testServerConfig()}
	}

	h := &harness{mem: transfer.NewMemClient(), rec: &recorder{}}
	h.client = h.mem
	clock := func() time.Time { return testNow }
	h.coord = coordinator.New(coordinator.Config{Now: clock})
	h.pool = transfer.NewPool(func(config.ServerConfig) transfer.Client { return h.client })
	t.Cleanup(func() { _ = h.pool.Close() })

	deps := Deps{
		Servers:     servers,
		Coordinator: h.coord,
		Pool:        h.pool,
		Dispatcher:  stats.NewDispatcher(h.rec, h.rec, stats.WithClock(clock)),
		Gate:        premium.NewGate(map[string]int{config.FeatureLogProcessing: 1}),
		Now:         clock,
	}
	h.csv = NewCSVPoller(testPipelineConfig(), deps)
	h.log = NewLogPoller(testPipelineConfig(), deps)
	return h
}

func csvPath(name string) string {
	return paths.CSVDir(testHost, testServer, "") + "/" + name
}

func logPath() string {
	return paths.LogFile(testHost, testServer)
}

func csvKill(at time.Time, killer, victim string) string {
	return fmt.Sprintf("%s;%s;%s;%s;%s;AK-47;120\n",
		at.Format("2006.01.02-15.04.05"), killer, killer, victim, victim)
}

func logKill(at time.Time, killer, victim string) string {
	return fmt.Sprintf("[%s:000][  1]LogSFPS: KillFeed: %s (%s) killed %s (%s) with AK-47 at 120m\n",
		at.Format("2006.01.02-15.04.05"), killer, killer, victim, victim)
}

func TestCrossPipeline_KillCountedOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)
	modTime := testNow.Add(-time.Minute)

	h.mem.Put(csvPath("2024.03.15-00.00.00.csv"), []byte(csvKill(at, "K1", "V1")), modTime)
	h.mem.Put(logPath(), []byte(logKill(at, "K1", "V1")+
		"[2024.03.15-14.30.05:000][  2]LogSFPS: Player 'Alpha' (K1) joined\n"), modTime)

	csvRes, err := h.csv.Trigger(ctx, testServer, 0)
	if err != nil {
		t.Fatalf("csv Trigger() error = %v", err)
	}
	logRes, err := h.log.Trigger(ctx, testServer, 0)
	if err != nil {
		t.Fatalf("log Trigger() error = %v", err)
	}

	if csvRes.Events != 1 || csvRes.Files != 1 {
		t.Errorf("csv result = %+v, want 1 file 1 event", csvRes)
	}
	if logRes.Duplicates != 1 || logRes.Events != 1 {
		t.Errorf("log result = %+v, want 1 duplicate and 1 event", logRes)
	}
	if got := h.rec.killCount(); got != 1 {
		t.Fatalf("RecordKill calls = %d, want 1", got)
	}
	if h.rec.kills[0].Source != "csv" {
		t.Errorf("kill source = %q, want csv", h.rec.kills[0].Source)
	}
	if len(h.rec.connections) != 1 {
		t.Errorf("RecordConnection calls = %d, want 1", len(h.rec.connections))
	}
	if len(h.rec.docs) != 2 {
		t.Errorf("stored documents = %d, want 2", len(h.rec.docs))
	}
}

func TestCrossPipeline_ConcurrentPollersCountOnce(t *testing.T) {
	const kills = 50
	base := time.Date(2024, 3, 15, 14, 21, 0, 0, time.UTC)

	var csvRows, logRows strings.Builder
	for i := 0; i < kills; i++ {
		at := base.Add(time.Duration(i) * time.Second)
		killer, victim := fmt.Sprintf("K%d", i), fmt.Sprintf("V%d", i)
		csvRows.WriteString(csvKill(at, killer, victim))
		logRows.WriteString(logKill(at, killer, victim))
	}

	for round := 0; round < 20; round++ {
		h := newHarness(t)
		modTime := testNow.Add(-time.Minute)
		h.mem.Put(csvPath("a.csv"), []byte(csvRows.String()), modTime)
		h.mem.Put(logPath(), []byte(logRows.String()), modTime)

		start := make(chan struct{})
		results := make([]Result, 2)
		errs := make([]error, 2)
		var wg sync.WaitGroup
		for i, p := range []*Poller{h.csv, h.log} {
			wg.Add(1)
			go func(i int, p *Poller) {
				defer wg.Done()
				<-start
				results[i], errs[i] = p.Trigger(context.Background(), testServer, 0)
			}(i, p)
		}
		close(start)
		wg.Wait()

		for i, err := range errs {
			if err != nil {
				t.Fatalf("round %d: Trigger(%d) error = %v", round, i, err)
			}
		}
		if got := h.rec.killCount(); got != kills {
			t.Fatalf("round %d: RecordKill calls = %d, want %d", round, got, kills)
		}
		admitted := results[0].Events + results[1].Events
		dups := results[0].Duplicates + results[1].Duplicates
		if admitted != kills || dups != kills {
			t.Errorf("round %d: events=%d duplicates=%d, want %d each", round, admitted, dups, kills)
		}
	}
}

func TestCrossPipeline_MillisecondLogTimestampIsDistinct(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)
	modTime := testNow.Add(-time.Minute)

	// CSV rows carry whole seconds; this log line carries 347ms, so the two
	// reports do not share a fingerprint.
	h.mem.Put(csvPath("a.csv"), []byte(csvKill(at, "K1", "V1")), modTime)
	h.mem.Put(logPath(), []byte(fmt.Sprintf(
		"[%s:347][  1]LogSFPS: KillFeed: K1 (K1) killed V1 (V1) with AK-47 at 120m\n",
		at.Format("2006.01.02-15.04.05"))), modTime)

	if _, err := h.csv.Trigger(ctx, testServer, 0); err != nil {
		t.Fatalf("csv Trigger() error = %v", err)
	}
	res, err := h.log.Trigger(ctx, testServer, 0)
	if err != nil {
		t.Fatalf("log Trigger() error = %v", err)
	}
	if res.Events != 1 || res.Duplicates != 0 {
		t.Errorf("log result = %+v, want the kill admitted again", res)
	}
	if got := h.rec.killCount(); got != 2 {
		t.Errorf("RecordKill calls = %d, want 2", got)
	}
}

func TestTrigger_UnchangedFileSkippedAndRereadRowsAreDuplicates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)
	p := csvPath("2024.03.15-00.00.00.csv")

	h.mem.Put(p, []byte(csvKill(first, "K1", "V1")), testNow.Add(-2*time.Minute))
	if _, err := h.csv.Trigger(ctx, testServer, 0); err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}

	res, err := h.csv.Trigger(ctx, testServer, 0)
	if err != nil {
		t.Fatalf("second Trigger() error = %v", err)
	}
	if res.Files != 0 {
		t.Errorf("unchanged file processed again: %+v", res)
	}

	h.mem.Append(p, []byte(csvKill(first.Add(time.Minute), "K2", "V2")), testNow.Add(-time.Minute))
	res, err = h.csv.Trigger(ctx, testServer, 0)
	if err != nil {
		t.Fatalf("third Trigger() error = %v", err)
	}
	if res.Events != 1 || res.Duplicates != 1 {
		t.Errorf("result = %+v, want 1 event and 1 duplicate", res)
	}
	if got := h.rec.killCount(); got != 2 {
		t.Errorf("RecordKill calls = %d, want 2", got)
	}
	if got, _ := h.coord.CsvCursor(testServer); !got.Equal(first.Add(time.Minute)) {
		t.Errorf("csv cursor = %v, want %v", got, first.Add(time.Minute))
	}
}

func TestProcess_OlderRowsInLaterWorldFileAdmitted(t *testing.T) {
	h := newHarness(t)
	late := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)
	early := time.Date(2024, 3, 15, 14, 25, 0, 0, time.UTC)

	// world_0 is processed first and moves the cursor past world_1's row.
	h.mem.Put(csvPath("world_0/a.csv"), []byte(csvKill(late, "K1", "V1")), testNow.Add(-3*time.Minute))
	h.mem.Put(csvPath("world_1/b.csv"), []byte(csvKill(early, "K2", "V2")), testNow.Add(-time.Minute))

	res, err := h.csv.Trigger(context.Background(), testServer, 0)
	if err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	if res.Files != 2 || res.Events != 2 {
		t.Errorf("result = %+v, want 2 files 2 events", res)
	}
	if got := h.rec.killCount(); got != 2 {
		t.Errorf("RecordKill calls = %d, want 2", got)
	}
	if got, _ := h.coord.CsvCursor(testServer); !got.Equal(late) {
		t.Errorf("csv cursor = %v, want the later row %v", got, late)
	}
}

func TestProcess_SameSecondRowInLaterTickAdmitted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)
	p := csvPath("a.csv")

	h.mem.Put(p, []byte(csvKill(at, "K1", "V1")), testNow.Add(-2*time.Minute))
	if _, err := h.csv.Trigger(ctx, testServer, 0); err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}

	h.mem.Append(p, []byte(csvKill(at, "K2", "V2")), testNow.Add(-time.Minute))
	res, err := h.csv.Trigger(ctx, testServer, 0)
	if err != nil {
		t.Fatalf("second Trigger() error = %v", err)
	}
	if res.Events != 1 || res.Duplicates != 1 {
		t.Errorf("result = %+v, want 1 event and 1 duplicate", res)
	}
	if got := h.rec.killCount(); got != 2 {
		t.Errorf("RecordKill calls = %d, want 2", got)
	}
}

func TestProcess_SameSecondRowsAllOffered(t *testing.T) {
	h := newHarness(t)
	at := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)
	content := csvKill(at, "K1", "V1") + csvKill(at, "K2", "V2") + csvKill(at, "K3", "V3")
	h.mem.Put(csvPath("a.csv"), []byte(content), testNow.Add(-time.Minute))

	res, err := h.csv.Trigger(context.Background(), testServer, 0)
	if err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	if res.Events != 3 || res.Duplicates != 0 {
		t.Errorf("result = %+v, want 3 events", res)
	}
}

func TestProcess_RepeatedRowInFileIsDuplicate(t *testing.T) {
	h := newHarness(t)
	at := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)
	h.mem.Put(csvPath("a.csv"), []byte(csvKill(at, "K1", "V1")+csvKill(at, "K1", "V1")), testNow.Add(-time.Minute))

	res, err := h.csv.Trigger(context.Background(), testServer, 0)
	if err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	if res.Events != 1 || res.Duplicates != 1 {
		t.Errorf("result = %+v, want 1 event 1 duplicate", res)
	}
}

func TestLastChecked_StopsAtFailedFile(t *testing.T) {
	h := newHarness(t)
	at := time.Date(2024, 3, 15, 14, 20, 0, 0, time.UTC)
	older := testNow.Add(-10 * time.Minute)
	newer := testNow.Add(-5 * time.Minute)

	h.mem.Put(csvPath("a.csv"), []byte(csvKill(at, "K1", "V1")), older)
	h.mem.Put(csvPath("b.csv"), []byte(csvKill(at.Add(time.Minute), "K2", "V2")), newer)
	h.client = &failingDownload{MemClient: h.mem, path: csvPath("b.csv")}

	res, err := h.csv.Trigger(context.Background(), testServer, 0)
	if err == nil {
		t.Fatal("Trigger() expected error for failed download")
	}
	if res.Files != 1 || res.Events != 1 {
		t.Errorf("result = %+v, want the older file processed", res)
	}
	if got := h.csv.LastChecked()[testServer]; !got.Equal(older) {
		t.Errorf("last checked = %v, want %v", got, older)
	}
}

func TestTrigger_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.csv.Trigger(ctx, "nope", 0); !errors.Is(err, ErrUnknownServer) {
		t.Errorf("unknown server error = %v", err)
	}

	lock := h.csv.serverLock(testServer)
	lock.Lock()
	if _, err := h.csv.Trigger(ctx, testServer, 0); !errors.Is(err, ErrServerBusy) {
		t.Errorf("busy server error = %v", err)
	}
	lock.Unlock()

	if _, err := h.csv.Trigger(ctx, testServer, 0); err != nil {
		t.Errorf("Trigger() after unlock error = %v", err)
	}
}

func TestLogPoller_PremiumGate(t *testing.T) {
	free := testServerConfig()
	free.PremiumTier = 0
	h := newHarness(t, free)
	at := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)
	h.mem.Put(logPath(), []byte(logKill(at, "K1", "V1")), testNow.Add(-time.Minute))

	if !h.log.Tick(context.Background()) {
		t.Fatal("Tick() skipped")
	}
	if h.mem.Downloads() != 0 {
		t.Errorf("downloads = %d, want 0 for a locked server", h.mem.Downloads())
	}
	if _, err := h.log.Trigger(context.Background(), testServer, 0); !errors.Is(err, premium.ErrFeatureLocked) {
		t.Errorf("Trigger() error = %v, want ErrFeatureLocked", err)
	}

	// The CSV pipeline is not gated.
	if _, err := h.csv.Trigger(context.Background(), testServer, 0); err != nil {
		t.Errorf("csv Trigger() error = %v", err)
	}
}

func TestTick_SkippedWhileRunning(t *testing.T) {
	h := newHarness(t)
	h.csv.running.Store(true)
	if h.csv.Tick(context.Background()) {
		t.Error("Tick() ran while previous tick active")
	}
	if !h.csv.Status().Running {
		t.Error("Status().Running = false")
	}
	h.csv.running.Store(false)
	if !h.csv.Tick(context.Background()) {
		t.Error("Tick() skipped while idle")
	}
}

func TestTick_ConnectFailureIsPerServer(t *testing.T) {
	h := newHarness(t)
	h.mem.FailConnect(errors.New("host unreachable"))
	if !h.csv.Tick(context.Background()) {
		t.Fatal("Tick() skipped")
	}
	if _, ok := h.csv.LastChecked()[testServer]; ok {
		t.Error("last checked advanced despite connect failure")
	}
}

func TestTrigger_LookbackOverride(t *testing.T) {
	h := newHarness(t)
	at := time.Date(2024, 3, 15, 13, 0, 0, 0, time.UTC)
	// Older than the default 15 minute lookback.
	h.mem.Put(csvPath("old.csv"), []byte(csvKill(at, "K1", "V1")), testNow.Add(-time.Hour))

	res, err := h.csv.Trigger(context.Background(), testServer, 0)
	if err != nil || res.Files != 0 {
		t.Fatalf("default lookback = %+v, %v; want no files", res, err)
	}
	res, err = h.csv.Trigger(context.Background(), testServer, 2*time.Hour)
	if err != nil || res.Files != 1 {
		t.Fatalf("2h lookback = %+v, %v; want 1 file", res, err)
	}
}

func TestRestoreLastChecked(t *testing.T) {
	h := newHarness(t)
	early := testNow.Add(-time.Hour)
	late := testNow.Add(-time.Minute)

	h.csv.RestoreLastChecked(map[string]time.Time{testServer: late})
	h.csv.RestoreLastChecked(map[string]time.Time{testServer: early})

	if got := h.csv.LastChecked()[testServer]; !got.Equal(late) {
		t.Errorf("last checked = %v, want later value %v", got, late)
	}
	st := h.csv.Status()
	if st.Pipeline != "csv" || len(st.Servers) != 1 || st.Servers[0] != testServer {
		t.Errorf("Status() = %+v", st)
	}
}

func TestNewPoller_FiltersDisabledServers(t *testing.T) {
	s := testServerConfig()
	s.LogEnabled = false
	h := newHarness(t, s)
	if h.log.Known(testServer) {
		t.Error("log poller lists a server with log_enabled=false")
	}
	if !h.csv.Known(testServer) {
		t.Error("csv poller missing server")
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.csv.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
	if h.csv.String() != "csv-poller" {
		t.Errorf("String() = %q", h.csv.String())
	}
}

func TestCrossPipeline_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	// 0: CSV only, 1: log only, 2: both pipelines.
	properties.Property("every distinct kill is recorded exactly once", prop.ForAll(
		func(placement []int) bool {
			h := newHarness(t)
			base := time.Date(2024, 3, 15, 14, 21, 0, 0, time.UTC)

			var csvRows, logRows strings.Builder
			for i, where := range placement {
				at := base.Add(time.Duration(i) * time.Second)
				killer, victim := fmt.Sprintf("K%d", i), fmt.Sprintf("V%d", i)
				if where != 1 {
					csvRows.WriteString(csvKill(at, killer, victim))
				}
				if where != 0 {
					logRows.WriteString(logKill(at, killer, victim))
				}
			}
			modTime := testNow.Add(-time.Minute)
			h.mem.Put(csvPath("a.csv"), []byte(csvRows.String()), modTime)
			h.mem.Put(logPath(), []byte(logRows.String()), modTime)

			ctx := context.Background()
			if _, err := h.log.Trigger(ctx, testServer, 0); err != nil {
				return false
			}
			if _, err := h.csv.Trigger(ctx, testServer, 0); err != nil {
				return false
			}
			return h.rec.killCount() == len(placement)
		},
		gen.SliceOf(gen.IntRange(0, 2)),
	))

	properties.TestingRun(t)
}
