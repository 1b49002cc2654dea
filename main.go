package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/joho/godotenv"

	"github.com/wealthdeck/trading-engine/engine"
	"github.com/wealthdeck/trading-engine/execution"
	"github.com/wealthdeck/trading-engine/ledger"
	"github.com/wealthdeck/trading-engine/notification"
	"github.com/wealthdeck/trading-engine/portfolio"
	"github.com/wealthdeck/trading-engine/risk"
	"github.com/wealthdeck/trading-engine/signal"
	"github.com/wealthdeck/trading-engine/types"
)

const (
	defaultPort     = "8080"
	paperTradingURL = "https://paper-api.alpaca.markets"
	liveTradingURL  = "https://api.alpaca.markets"
	liveKeyPrefix   = "AK" // Live API keys usually start with AK

	maxNotifications = 100

	defaultSimEquity    = 100000.0
	defaultSimDelay     = 150 * time.Millisecond
	defaultInclusionPct = 0.3
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		// If .env file doesn't exist, log a warning but continue
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("Warning: Error loading .env file: %v", err)
		}
	}

	// Parse command line arguments
	port := flag.String("port", defaultPort, "Port to listen on")
	mode := flag.String("mode", "sim", "Execution mode: sim (ledger-only) or live (brokerage)")
	usePaperTrading := flag.Bool("paper", true, "Use paper trading (true) or live trading (false)")
	alpacaKey := flag.String("alpaca-key", "", "Alpaca API key (overrides env var)")
	alpacaSecret := flag.String("alpaca-secret", "", "Alpaca secret key (overrides env var)")
	flag.Parse()

	if *mode != "sim" && *mode != "live" {
		log.Fatalf("Unknown mode %q: must be sim or live", *mode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := notification.NewHub()
	go hub.Run()
	notificationManager := notification.NewManager(maxNotifications, hub)
	tradeLedger := ledger.New(ledger.DefaultCapacity)
	generator := signal.NewGenerator(rand.NewSource(time.Now().UnixNano()), inclusionProbFromEnv())

	var (
		backend     execution.Backend
		liveBackend *execution.Live
		book        *portfolio.Portfolio
	)

	if *mode == "live" {
		client, mdClient := buildAlpacaClients(*usePaperTrading, *alpacaKey, *alpacaSecret)
		liveBackend = execution.NewLive(client, mdClient)
		backend = liveBackend

		positions, account, err := liveBackend.Snapshot()
		if err != nil {
			log.Fatalf("Failed to load initial portfolio from brokerage: %v", err)
		}
		book = portfolio.New(account)
		book.Replace(positions, account)
		log.Printf("Loaded live portfolio: %d positions, equity %.2f", len(positions), account.Equity)
	} else {
		equity := defaultSimEquity
		if env := os.Getenv("SIM_STARTING_EQUITY"); env != "" {
			parsed, err := strconv.ParseFloat(env, 64)
			if err != nil {
				log.Fatalf("Invalid SIM_STARTING_EQUITY %q: %v", env, err)
			}
			equity = parsed
		}
		book = portfolio.New(types.Account{
			Equity:      equity,
			BuyingPower: equity,
			LastEquity:  equity,
		})
		backend = execution.NewSimulated(rand.NewSource(time.Now().UnixNano()), defaultSimDelay)
		log.Printf("Using simulated execution with starting equity %.2f", equity)
	}

	eng, err := engine.New(engine.Config{
		Portfolio: book,
		Ledger:    tradeLedger,
		Backend:   backend,
		Live:      liveBackend,
		Generator: generator,
		Policy:    risk.DefaultPolicy(),
	})
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}
	eng.OnTrade(func(record types.TradeRecord) {
		notificationManager.Add(notification.FromTradeRecord(record))
	})

	notificationManager.Add(notification.CreateSystemAlert("System Started", "Trading engine successfully initialized"))

	setupHTTPHandlers(ctx, eng, notificationManager, hub)

	log.Printf("Starting HTTP server on port %s (mode %s)", *port, *mode)
	if err := http.ListenAndServe(":"+*port, nil); err != nil {
		log.Fatalf("Failed to start HTTP server: %v", err)
	}
}

// inclusionProbFromEnv reads the signal inclusion probability override
func inclusionProbFromEnv() float64 {
	env := os.Getenv("SIGNAL_INCLUSION_PROB")
	if env == "" {
		return defaultInclusionPct
	}
	parsed, err := strconv.ParseFloat(env, 64)
	if err != nil || parsed < 0 || parsed > 1 {
		log.Printf("Warning: ignoring invalid SIGNAL_INCLUSION_PROB %q", env)
		return defaultInclusionPct
	}
	return parsed
}

// buildAlpacaClients resolves API keys and constructs the trading and
// market data clients. Paper and live environments use separate key
// pairs; live keys are prefix-checked before live trading is allowed.
func buildAlpacaClients(usePaper bool, keyOverride, secretOverride string) (*alpaca.Client, *marketdata.Client) {
	var alpacaAPIKey, alpacaSecretKey string

	if usePaper {
		alpacaAPIKey = os.Getenv("PAPER_ALPACA_API_KEY")
		alpacaSecretKey = os.Getenv("PAPER_ALPACA_SECRET_KEY")
	} else {
		alpacaAPIKey = os.Getenv("LIVE_ALPACA_API_KEY")
		alpacaSecretKey = os.Getenv("LIVE_ALPACA_SECRET_KEY")
	}

	if keyOverride != "" {
		alpacaAPIKey = keyOverride
		log.Printf("Using Alpaca API Key from command line")
	}
	if secretOverride != "" {
		alpacaSecretKey = secretOverride
		log.Printf("Using Alpaca Secret Key from command line")
	}

	if alpacaAPIKey == "" || alpacaSecretKey == "" {
		if usePaper {
			log.Fatal("PAPER_ALPACA_API_KEY and PAPER_ALPACA_SECRET_KEY environment variables are required for paper trading")
		} else {
			log.Fatal("LIVE_ALPACA_API_KEY and LIVE_ALPACA_SECRET_KEY environment variables are required for live trading")
		}
	}

	baseURL := paperTradingURL
	if !usePaper {
		// Safety check: only allow live trading with a live key prefix
		if !strings.HasPrefix(alpacaAPIKey, liveKeyPrefix) {
			log.Println("WARNING: Cannot use live trading - live API keys not detected (keys should start with AK)")
			log.Println("Falling back to paper trading mode")
		} else {
			baseURL = liveTradingURL
			log.Println("Using LIVE trading environment")
		}
	} else {
		log.Println("Using PAPER trading environment")
	}

	client := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    alpacaAPIKey,
		APISecret: alpacaSecretKey,
		BaseURL:   baseURL,
	})
	mdClient := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    alpacaAPIKey,
		APISecret: alpacaSecretKey,
	})
	return client, mdClient
}

func setupHTTPHandlers(ctx context.Context, eng *engine.Engine, notificationManager *notification.Manager, hub *notification.Hub) {
	notificationHandler := notification.NewHandler(notificationManager)

	corsMiddleware := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next(w, r)
		}
	}

	writeJSON := func(w http.ResponseWriter, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(v); err != nil {
			log.Printf("Error encoding response: %v", err)
		}
	}

	// Account Handler
	http.HandleFunc("/api/account", corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, eng.Account())
	}))

	// Positions Handler
	http.HandleFunc("/api/positions", corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, eng.Positions())
	}))

	// Trade ledger Handler
	http.HandleFunc("/api/ledger", corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, eng.Records())
	}))

	// Engine status Handler
	http.HandleFunc("/api/status", corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, eng.GetStatus())
	}))

	// Signal generation: run analysis over the current portfolio
	http.HandleFunc("/api/analyze", corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var prefs types.Preferences
		if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		writeJSON(w, eng.RunAnalysis(prefs))
	}))

	// Auto-trade cycle: admit and execute a batch of suggestions
	http.HandleFunc("/api/autotrade", corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var request struct {
			Suggestions []types.Suggestion `json:"suggestions"`
			Policy      *risk.Policy       `json:"policy,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if request.Policy != nil {
			eng.SetPolicy(*request.Policy)
		}

		trippedBefore := eng.RiskState().CircuitBreakerTripped
		records := eng.RunAutoTradeCycle(ctx, request.Suggestions)
		if !trippedBefore && eng.RiskState().CircuitBreakerTripped {
			notificationManager.Add(notification.CreateRiskAlert(
				"Circuit Breaker Tripped",
				"Daily loss limit breached; automatic trading halted until the breaker is reset"))
		}

		writeJSON(w, records)
	}))

	// Manual trade submission
	http.HandleFunc("/api/trades", corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var request struct {
			Symbol   string  `json:"symbol"`
			Quantity float64 `json:"quantity"`
			Side     string  `json:"side"`
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		record, err := eng.SubmitManualTrade(ctx, request.Symbol, request.Quantity, request.Side)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, record)
	}))

	// Risk parameters Handler
	http.HandleFunc("/api/risk-parameters", corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, map[string]interface{}{
				"policy": eng.Policy(),
				"state":  eng.RiskState(),
			})
		case http.MethodPost:
			var policy risk.Policy
			if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
				http.Error(w, "Invalid request body", http.StatusBadRequest)
				return
			}
			if err := validatePolicy(policy); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			eng.SetPolicy(policy)
			log.Printf("Risk policy updated: threshold=%d maxPosition=%.1f%% lossLimit=%.1f%% maxTrades=%d",
				policy.ConfidenceThreshold, policy.MaxPositionPercent, policy.DailyLossLimitPercent, policy.MaxTradesPerDay)
			writeJSON(w, policy)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}))

	// Circuit breaker reset
	http.HandleFunc("/api/risk-parameters/reset-breaker", corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		eng.ResetCircuitBreaker()
		notificationManager.Add(notification.CreateSystemAlert("Circuit Breaker Reset", "Automatic trading re-enabled by user"))
		writeJSON(w, map[string]interface{}{
			"message": "Circuit breaker reset",
		})
	}))

	// WebSocket event stream for the dashboard
	http.HandleFunc("/ws", hub.HandleWS)

	// Register notification routes
	notificationHandler.RegisterRoutes(http.DefaultServeMux)
}

// validatePolicy rejects parameter combinations that would make the
// governor inert or nonsensical
func validatePolicy(policy risk.Policy) error {
	if policy.ConfidenceThreshold < 0 || policy.ConfidenceThreshold > 100 {
		return fmt.Errorf("confidence_threshold must be between 0 and 100")
	}
	if policy.MaxPositionPercent <= 0 {
		return fmt.Errorf("max_position_percent must be positive")
	}
	if policy.DailyLossLimitPercent <= 0 {
		return fmt.Errorf("daily_loss_limit_percent must be positive")
	}
	if policy.MaxTradesPerDay <= 0 {
		return fmt.Errorf("max_trades_per_day must be positive")
	}
	return nil
}
