// Package httpapi exposes the backtest platform over HTTP: loading candle
// data into a session, running strategies over it, and browsing persisted
// runs. A WebSocket hub broadcasts run progress to connected clients.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"fastquant/internal/config"
	"fastquant/internal/domain"
	"fastquant/internal/engine"
	"fastquant/internal/feed"
	"fastquant/internal/report"
	"fastquant/internal/store"
	"fastquant/internal/strategy/builtins"
)

// binanceKlinesEndpoint is the default endpoint for source "api" loads.
const binanceKlinesEndpoint = "https://api.binance.com/api/v3/klines"

// Server hosts the HTTP API. Loaded candles are session state shared by all
// clients, guarded by mu.
type Server struct {
	cfg  *config.Config
	bars store.BarStore // optional candle cache
	runs store.RunStore // optional run persistence
	hub  *Hub
	log  *slog.Logger

	mu      sync.Mutex
	candles []domain.Bar

	httpSrv *http.Server
}

// NewServer creates a Server. bars and runs may be nil to disable caching
// and persistence respectively.
func NewServer(cfg *config.Config, bars store.BarStore, runs store.RunStore) *Server {
	return &Server{
		cfg:  cfg,
		bars: bars,
		runs: runs,
		hub:  NewHub(),
		log:  slog.Default().With("component", "httpapi"),
	}
}

// Handler returns the routed HTTP handler with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/examples", s.handleExamples)
	mux.HandleFunc("POST /api/load", s.handleLoad)
	mux.HandleFunc("POST /api/run", s.handleRun)
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /ws", s.hub.HandleWebSocket)
	return corsMiddleware(mux)
}

// ListenAndServe starts the WebSocket hub and the HTTP listener, blocking
// until the context is cancelled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	go s.hub.Run()

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", addr)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

// corsMiddleware applies permissive CORS headers and answers preflight
// requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Server) handleExamples(w http.ResponseWriter, _ *http.Request) {
	examples := []string{
		"examples/sample_prices.csv",
		"examples/sample_noheader.csv",
	}
	writeJSON(w, http.StatusOK, examples)
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	var req loadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding request: %w", err))
		return
	}

	candles, err := s.loadCandles(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if s.bars != nil && len(candles) > 0 {
		if err := s.bars.WriteBars(r.Context(), candles); err != nil {
			s.log.Warn("caching candles", "err", err)
		}
	}

	s.mu.Lock()
	s.candles = candles
	s.mu.Unlock()

	resp := loadResponse{Rows: len(candles)}
	if len(candles) > 0 {
		resp.Symbol = candles[0].Symbol
	}
	s.log.Info("data loaded", "source", req.Source, "rows", resp.Rows)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) loadCandles(ctx context.Context, req loadRequest) ([]domain.Bar, error) {
	switch req.Source {
	case "api":
		symbol := req.Symbol
		if symbol == "" {
			symbol = "BTCUSDT"
		}
		interval := req.Interval
		if interval == "" {
			interval = "1h"
		}
		src := feed.NewAPISource(feed.APIConfig{
			Endpoint: binanceKlinesEndpoint,
			Query: map[string]string{
				"symbol":   symbol,
				"interval": interval,
				"limit":    "500",
			},
			Fields: feed.FieldMap{
				Timestamp: "0",
				Open:      "1",
				High:      "2",
				Low:       "3",
				Close:     "4",
				Volume:    "5",
			},
			FallbackSymbol: symbol,
		}, nil)
		return src.Fetch(ctx)

	case "alpaca":
		if req.Symbol == "" {
			return nil, errors.New("missing 'symbol' in request body")
		}
		start, end, err := parseDateRange(req.Start, req.End)
		if err != nil {
			return nil, err
		}
		src := feed.NewAlpacaSource(
			s.cfg.Alpaca.APIKey, s.cfg.Alpaca.APISecret, s.cfg.Alpaca.DataURL,
			req.Symbol, start, end)
		return src.Fetch(ctx)

	case "csv", "":
		if req.Path == "" {
			return nil, errors.New("missing 'path' in request body")
		}
		cfg := feed.DefaultCSVConfig()
		if req.Delimiter != "" {
			cfg.Delimiter = req.Delimiter
		}
		if req.HasHeader != nil {
			cfg.HasHeader = *req.HasHeader
		}
		return feed.NewCSVSource(req.Path, cfg).Load(ctx)

	default:
		return nil, fmt.Errorf("unknown source %q", req.Source)
	}
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding request: %w", err))
		return
	}

	s.mu.Lock()
	candles := s.candles
	s.mu.Unlock()
	if len(candles) == 0 {
		writeError(w, http.StatusConflict, errors.New("no data loaded; call /api/load first"))
		return
	}

	strategyCfgs := toStrategyConfigs(req.Strategies)
	if len(strategyCfgs) == 0 {
		strategyCfgs = s.cfg.Strategies
	}
	if len(strategyCfgs) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("no strategies in request or server config"))
		return
	}
	factories, err := builtins.FactoriesFromConfig(strategyCfgs)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	execCfg := s.execConfig(req)
	bt := engine.NewBacktester(execCfg, nil)
	newSource := func() feed.BarSource { return feed.NewSliceSource(candles) }

	results, runErr := bt.RunAll(r.Context(), newSource, factories)

	responses := make([]runResponse, 0, len(results))
	for i, res := range results {
		if res == nil {
			responses = append(responses, runResponse{
				Error: fmt.Sprintf("strategy %d failed to start", i),
			})
			continue
		}
		resp := s.buildRunResponse(r.Context(), res, req.Persist)
		responses = append(responses, resp)
		s.hub.Broadcast(wsEvent{
			Type:     "run_complete",
			Strategy: res.StrategyName,
			RunID:    resp.RunID,
		})
	}
	if runErr != nil {
		s.log.Warn("run completed with errors", "err", runErr)
		s.hub.Broadcast(wsEvent{Type: "run_error", Detail: runErr.Error()})
	}

	writeJSON(w, http.StatusOK, responses)
}

// buildRunResponse summarizes one result and optionally persists it.
func (s *Server) buildRunResponse(ctx context.Context, res *engine.Result, persist bool) runResponse {
	summary := report.Summarize(res)
	resp := runResponse{
		Summary:      summary,
		EquityCurve:  make([]equityPoint, 0, len(res.EquityCurve)),
		RecentTrades: recentTrades(res.Trades, 50),
	}
	for i, equity := range res.EquityCurve {
		point := equityPoint{Equity: equity}
		if i < len(res.EquityTimestamps) {
			point.Time = res.EquityTimestamps[i].Unix()
		}
		resp.EquityCurve = append(resp.EquityCurve, point)
	}

	if persist && s.runs != nil {
		id, err := s.runs.SaveRun(ctx, summary, res.Trades)
		if err != nil {
			s.log.Warn("persisting run", "strategy", res.StrategyName, "err", err)
			resp.Error = fmt.Sprintf("persist failed: %v", err)
		} else {
			resp.RunID = id
		}
	}
	return resp
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusNotImplemented, errors.New("run persistence is not configured"))
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = v
	}

	records, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	items := make([]runListItem, 0, len(records))
	for _, rec := range records {
		items = append(items, runListItem{
			ID:        rec.ID,
			CreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339),
			Summary:   rec.Summary,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusNotImplemented, errors.New("run persistence is not configured"))
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid run id %q", r.PathValue("id")))
		return
	}

	rec, err := s.runs.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	detail := runDetail{
		ID:        rec.ID,
		CreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339),
		Summary:   rec.Summary,
		Trades:    make([]tradeView, 0, len(rec.Trades)),
	}
	for _, tr := range rec.Trades {
		detail.Trades = append(detail.Trades, toTradeView(tr))
	}
	writeJSON(w, http.StatusOK, detail)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (s *Server) execConfig(req runRequest) engine.ExecConfig {
	cfg := engine.ExecConfig{
		InitialCapital:     s.cfg.Execution.InitialCapital,
		DefaultSlippageBps: s.cfg.Execution.DefaultSlippageBps,
		CommissionPerUnit:  s.cfg.Execution.CommissionPerUnit,
		CommissionBps:      s.cfg.Execution.CommissionBps,
	}
	if req.InitialCapital > 0 {
		cfg.InitialCapital = req.InitialCapital
	}
	if req.DefaultSlippageBps != 0 {
		cfg.DefaultSlippageBps = req.DefaultSlippageBps
	}
	if req.CommissionPerUnit != 0 {
		cfg.CommissionPerUnit = req.CommissionPerUnit
	}
	if req.CommissionBps != 0 {
		cfg.CommissionBps = req.CommissionBps
	}
	return cfg
}

func toStrategyConfigs(reqs []runStrategyRequest) []config.StrategyConfig {
	cfgs := make([]config.StrategyConfig, 0, len(reqs))
	for _, r := range reqs {
		cfgs = append(cfgs, config.StrategyConfig{
			Name:        r.Name,
			Type:        r.Type,
			ShortWindow: r.ShortWindow,
			LongWindow:  r.LongWindow,
			Lookback:    r.Lookback,
			Buffer:      r.Buffer,
			AllowShort:  r.AllowShort,
			OrderQty:    r.OrderQty,
		})
	}
	return cfgs
}

// recentTrades returns the last max trades, newest first.
func recentTrades(trades []domain.Trade, max int) []tradeView {
	start := 0
	if len(trades) > max {
		start = len(trades) - max
	}
	out := make([]tradeView, 0, len(trades)-start)
	for i := len(trades) - 1; i >= start; i-- {
		out = append(out, toTradeView(trades[i]))
	}
	return out
}

func toTradeView(tr domain.Trade) tradeView {
	return tradeView{
		ID:        tr.ID,
		OrderID:   tr.OrderID,
		Side:      string(tr.Side),
		Price:     tr.Price,
		Qty:       tr.Qty,
		Symbol:    tr.Symbol,
		Timestamp: tr.Timestamp.Unix(),
		Fee:       tr.Fee,
		Slippage:  tr.Slippage,
	}
}

func parseDateRange(start, end string) (time.Time, time.Time, error) {
	from := time.Now().UTC().AddDate(0, 0, -365)
	to := time.Now().UTC()
	if start != "" {
		parsed, err := time.Parse("2006-01-02", start)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start date %q", start)
		}
		from = parsed
	}
	if end != "" {
		parsed, err := time.Parse("2006-01-02", end)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end date %q", end)
		}
		to = parsed
	}
	return from, to, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("encoding response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
