package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"google.golang.org/api/googleapi"

	"github.com/ShadowEagleDev/TelegramGoogleSheetsBot/pkg/cases"
	"github.com/ShadowEagleDev/TelegramGoogleSheetsBot/pkg/sink"
)

type fakeRowAPI struct {
	mu sync.Mutex

	column     []string
	readErrs   []error
	writeErrs  []error
	readCalls  int
	writeCalls int
	wroteRow   int
	wroteCells []any
}

func (f *fakeRowAPI) readKeyColumn(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.readCalls++
	if len(f.readErrs) > 0 {
		err := f.readErrs[0]
		f.readErrs = f.readErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	out := make([]string, len(f.column))
	copy(out, f.column)
	return out, nil
}

func (f *fakeRowAPI) writeRow(_ context.Context, row int, values []any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.writeCalls++
	if len(f.writeErrs) > 0 {
		err := f.writeErrs[0]
		f.writeErrs = f.writeErrs[1:]
		if err != nil {
			return err
		}
	}

	f.wroteRow = row
	f.wroteCells = values
	return nil
}

func testClient(api rowAPI, maxDataRow int) (*Client, *[]time.Duration) {
	c := newClient(api, maxDataRow, nil)
	slept := &[]time.Duration{}
	c.sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return c, slept
}

func testRecord() cases.Record {
	return cases.Record{
		Timestamp:    time.Date(2026, time.January, 31, 11, 23, 0, 0, time.UTC),
		OperatorName: "Ivan",
		CustomerInfo: "Анна Петрова (@anna)",
		ProblemText:  "A\n---\nB",
		Status:       "Open",
	}
}

func TestAppendWritesFirstFreeRow(t *testing.T) {
	api := &fakeRowAPI{column: []string{"0131T1410-01", "", "0131T1415-02"}}
	c, _ := testClient(api, 199)

	caseID, err := c.Append(context.Background(), testRecord())
	if err != nil {
		t.Fatalf("Append error: %v", err)
	}

	// The gap at the second window row wins over the tail.
	if api.wroteRow != 3 {
		t.Fatalf("wroteRow = %d, want 3", api.wroteRow)
	}
	if len(api.wroteCells) != 10 {
		t.Fatalf("len(cells) = %d, want 10", len(api.wroteCells))
	}
	if api.wroteCells[0] != caseID {
		t.Fatalf("cells[0] = %v, want case id %q", api.wroteCells[0], caseID)
	}
	if api.wroteCells[4] != "Ivan" {
		t.Fatalf("cells[4] = %v, want %q", api.wroteCells[4], "Ivan")
	}
	if api.wroteCells[1] != "31.01.2026 14:23" {
		t.Fatalf("cells[1] = %v, want %q", api.wroteCells[1], "31.01.2026 14:23")
	}
}

func TestAppendUsesRowAfterOccupiedPrefix(t *testing.T) {
	api := &fakeRowAPI{column: []string{"a", "b"}}
	c, _ := testClient(api, 199)

	if _, err := c.Append(context.Background(), testRecord()); err != nil {
		t.Fatalf("Append error: %v", err)
	}
	if api.wroteRow != 4 {
		t.Fatalf("wroteRow = %d, want 4", api.wroteRow)
	}
}

func TestAppendTableFull(t *testing.T) {
	column := make([]string, 199-firstDataRow+1)
	for i := range column {
		column[i] = fmt.Sprintf("case-%d", i)
	}
	api := &fakeRowAPI{column: column}
	c, slept := testClient(api, 199)

	_, err := c.Append(context.Background(), testRecord())
	if !errors.Is(err, sink.ErrTableFull) {
		t.Fatalf("err = %v, want ErrTableFull", err)
	}
	if api.writeCalls != 0 {
		t.Fatalf("writeCalls = %d, want 0", api.writeCalls)
	}
	// Permanent failure: no backoff happened.
	if len(*slept) != 0 {
		t.Fatalf("slept %v, want no retries", *slept)
	}
}

func TestAppendRetriesRateLimit(t *testing.T) {
	rateLimited := &googleapi.Error{Code: http.StatusTooManyRequests}
	api := &fakeRowAPI{writeErrs: []error{rateLimited, rateLimited}}
	c, slept := testClient(api, 199)

	if _, err := c.Append(context.Background(), testRecord()); err != nil {
		t.Fatalf("Append error: %v", err)
	}

	if api.writeCalls != 3 {
		t.Fatalf("writeCalls = %d, want 3", api.writeCalls)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("slept %v, want %v", *slept, want)
	}
	for i := range want {
		if (*slept)[i] != want[i] {
			t.Fatalf("slept[%d] = %v, want %v", i, (*slept)[i], want[i])
		}
	}
}

func TestAppendGivesUpAfterThreeAttempts(t *testing.T) {
	serverErr := &googleapi.Error{Code: http.StatusInternalServerError}
	api := &fakeRowAPI{writeErrs: []error{serverErr, serverErr, serverErr}}
	c, _ := testClient(api, 199)

	if _, err := c.Append(context.Background(), testRecord()); !errors.As(err, new(*googleapi.Error)) {
		t.Fatalf("err = %v, want wrapped googleapi error", err)
	}
	if api.writeCalls != 3 {
		t.Fatalf("writeCalls = %d, want 3", api.writeCalls)
	}
}

func TestAppendDoesNotRetryClientErrors(t *testing.T) {
	badRequest := &googleapi.Error{Code: http.StatusBadRequest}
	api := &fakeRowAPI{writeErrs: []error{badRequest}}
	c, slept := testClient(api, 199)

	if _, err := c.Append(context.Background(), testRecord()); err == nil {
		t.Fatal("expected error")
	}
	if api.writeCalls != 1 {
		t.Fatalf("writeCalls = %d, want 1", api.writeCalls)
	}
	if len(*slept) != 0 {
		t.Fatalf("slept %v, want no retries", *slept)
	}
}

// trackingRowAPI keeps row occupancy across calls and widens the window
// between scan and write, so unserialized appends would pick the same row.
type trackingRowAPI struct {
	mu         sync.Mutex
	occupied   map[int][]any
	maxRow     int
	overwrites int
}

func (f *trackingRowAPI) readKeyColumn(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	column := make([]string, f.maxRow-firstDataRow+1)
	for row, values := range f.occupied {
		column[row-firstDataRow] = fmt.Sprint(values[0])
	}
	return column, nil
}

func (f *trackingRowAPI) writeRow(_ context.Context, row int, values []any) error {
	time.Sleep(20 * time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, taken := f.occupied[row]; taken {
		f.overwrites++
	}
	f.occupied[row] = values
	return nil
}

func TestConcurrentAppendsNeverShareARow(t *testing.T) {
	api := &trackingRowAPI{occupied: make(map[int][]any), maxRow: 199}
	c, _ := testClient(api, 199)

	var wg sync.WaitGroup
	ids := make([]string, 2)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			caseID, err := c.Append(context.Background(), testRecord())
			if err != nil {
				t.Errorf("Append error: %v", err)
				return
			}
			ids[i] = caseID
		}()
	}
	wg.Wait()

	if api.overwrites != 0 {
		t.Fatalf("overwrites = %d, want 0 (a completed case's row was replaced)", api.overwrites)
	}
	if len(api.occupied) != 2 {
		t.Fatalf("distinct rows written = %d, want 2", len(api.occupied))
	}
	if ids[0] == ids[1] {
		t.Fatalf("both appends returned case id %q, want distinct ids", ids[0])
	}
}

func TestAppendRetriesReadFailures(t *testing.T) {
	serverErr := &googleapi.Error{Code: http.StatusServiceUnavailable}
	api := &fakeRowAPI{readErrs: []error{serverErr}}
	c, _ := testClient(api, 199)

	if _, err := c.Append(context.Background(), testRecord()); err != nil {
		t.Fatalf("Append error: %v", err)
	}
	if api.readCalls != 2 {
		t.Fatalf("readCalls = %d, want 2", api.readCalls)
	}
}
