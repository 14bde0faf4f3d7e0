package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kyotei-project/backend/internal/metrics"
	"github.com/kyotei-project/backend/internal/models"
	"github.com/kyotei-project/backend/internal/services"
	"github.com/kyotei-project/backend/internal/warehouse"
	"github.com/shopspring/decimal"
)

type fakeReader struct {
	filter   warehouse.BetFilter
	key      models.RaceKey
	failBets bool
}

func (f *fakeReader) ListBets(_ context.Context, filter warehouse.BetFilter) ([]models.VirtualBet, error) {
	f.filter = filter
	if f.failBets {
		return nil, errors.New("db down")
	}
	return []models.VirtualBet{{ID: 7, StrategyID: filter.StrategyID, Status: models.BetWon}}, nil
}

func (f *fakeReader) Funds(context.Context) ([]models.VirtualFund, error) {
	return []models.VirtualFund{{StrategyID: "single-win-inner-lane", Balance: 104800}}, nil
}

func (f *fakeReader) LatestOddsForRace(_ context.Context, key models.RaceKey) ([]models.OddsTick, error) {
	f.key = key
	return []models.OddsTick{{
		RaceDate: key.Date, VenueCode: key.VenueCode, RaceNumber: key.RaceNumber,
		OddsKind: models.OddsWin, Combination: "1", Value: decimal.RequireFromString("2.4"),
	}}, nil
}

type fakeHealth struct{ report services.HealthReport }

func (f fakeHealth) Check(context.Context) services.HealthReport { return f.report }

type fakeStream struct{ ch chan []byte }

func (f *fakeStream) Subscribe() (<-chan []byte, func()) { return f.ch, func() {} }

func newTestApp(reader *fakeReader, health services.HealthReport, stream *fakeStream) *fiber.App {
	app := fiber.New()
	SetupRoutes(app, Deps{Bets: reader, Odds: reader, Stream: stream, Health: fakeHealth{health}, Metrics: metrics.New()})
	return app
}

var healthy = services.HealthReport{Warehouse: "ok", Redis: "ok"}

func TestHealthReportsDegraded(t *testing.T) {
	app := newTestApp(&fakeReader{}, services.HealthReport{Warehouse: "ok", Redis: "dial tcp: refused"}, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestGetBetsPassesFilter(t *testing.T) {
	reader := &fakeReader{}
	app := newTestApp(reader, healthy, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/bets?date=20250705&strategy=bias-1-3-primary&status=won&limit=5", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	want := warehouse.BetFilter{Date: "2025-07-05", StrategyID: "bias-1-3-primary", Status: models.BetWon, Limit: 5}
	if reader.filter != want {
		t.Fatalf("expected filter %+v, got %+v", want, reader.filter)
	}

	var bets []models.VirtualBet
	if err := json.NewDecoder(resp.Body).Decode(&bets); err != nil || len(bets) != 1 || bets[0].ID != 7 {
		t.Fatalf("unexpected body %+v %v", bets, err)
	}
}

func TestGetBetsRejectsBadQuery(t *testing.T) {
	app := newTestApp(&fakeReader{}, healthy, nil)
	for _, q := range []string{"date=july", "status=maybe"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/bets?"+q, nil))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if resp.StatusCode != fiber.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", q, resp.StatusCode)
		}
	}
}

func TestGetBetsStoreFailure(t *testing.T) {
	app := newTestApp(&fakeReader{failBets: true}, healthy, nil)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/bets", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
}

func TestGetRaceOddsNormalizesKey(t *testing.T) {
	reader := &fakeReader{}
	app := newTestApp(reader, healthy, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/races/2025-07-05/1/3/odds", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if reader.key != (models.RaceKey{Date: "2025-07-05", VenueCode: "01", RaceNumber: 3}) {
		t.Fatalf("unexpected key %+v", reader.key)
	}

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/races/2025-07-05/01/13/odds", nil))
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for race 13, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(&fakeReader{}, healthy, nil)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusOK || !strings.Contains(string(body), "go_goroutines") {
		t.Fatalf("unexpected metrics response %d", resp.StatusCode)
	}
}

func TestStreamOdds(t *testing.T) {
	stream := &fakeStream{ch: make(chan []byte, 1)}
	stream.ch <- []byte(`{"race":"2025-07-05/01/3","count":2}`)
	app := newTestApp(&fakeReader{}, healthy, stream)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = app.Listener(ln) }()
	defer func() { _ = app.Shutdown() }()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+ln.Addr().String()+"/api/v1/odds/stream", nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("failed to call SSE endpoint: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("unexpected content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("failed to read SSE line: %v", err)
		}
		if strings.HasPrefix(line, "data:") {
			if !strings.Contains(line, `"2025-07-05/01/3"`) {
				t.Fatalf("unexpected SSE payload: %s", line)
			}
			return
		}
	}
}
