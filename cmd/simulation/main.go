package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ksred/escrow-api/internal/auth"
	"github.com/ksred/escrow-api/internal/custody"
	"github.com/ksred/escrow-api/internal/database"
	"github.com/ksred/escrow-api/internal/escrow"
	"github.com/ksred/escrow-api/internal/events"
	"github.com/ksred/escrow-api/internal/moneybox"
	"github.com/ksred/escrow-api/internal/types"
	"github.com/ksred/escrow-api/pkg/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	minFlows      = 10
	maxFlows      = 60
	numWorkers    = 5
	serverAddress = "http://localhost:8080"
	jwtSecret     = "escrow-secret-key"
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	// Configure pretty logging
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	mu         sync.Mutex
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// addFailure records a failed call
func (rs *routeStats) addFailure() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.failures++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	// Sort durations for percentile calculations
	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	// Calculate mean
	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))

	// Calculate median
	median = rs.durations[len(rs.durations)/2]

	// Calculate percentiles
	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the escrow API. Each
// simulated participant carries their own JWT, minted against the same
// secret the embedded server uses.
type simulationClient struct {
	baseURL string
	client  *http.Client
	tokens  map[string]string // address -> JWT
	stats   map[string]*routeStats
}

// newSimulationClient creates and initializes a new simulation client,
// minting a token for every simulated address up front.
func newSimulationClient(addresses []string) (*simulationClient, error) {
	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	sc := &simulationClient{
		baseURL: serverAddress,
		client:  client,
		tokens:  make(map[string]string),
		stats: map[string]*routeStats{
			"fund":    {name: "Fund Account"},
			"create":  {name: "Create Order"},
			"confirm": {name: "Confirm Received"},
			"refund":  {name: "Refund"},
			"box":     {name: "Create MoneyBox"},
			"pay":     {name: "Add Payment"},
			"balance": {name: "Get Account"},
		},
	}

	// Mint tokens locally: the auth service signs with the same secret the
	// server validates against.
	minter := auth.NewService(jwtSecret)
	for i, address := range addresses {
		key := fmt.Sprintf("sim-key-%d", i)
		secret := fmt.Sprintf("sim-secret-%d", i)
		minter.RegisterAPICredentials(key, secret, address)
		token, err := minter.GenerateToken(auth.Credentials{APIKey: key, APISecret: secret})
		if err != nil {
			return nil, fmt.Errorf("failed to mint token for %s: %w", address, err)
		}
		sc.tokens[address] = token.Token
	}

	return sc, nil
}

// doJSON issues an authenticated request and decodes the standard response
// envelope into out (which may be nil).
func (sc *simulationClient) doJSON(method, url, asAddress string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.tokens[asAddress]))
	req.Header.Set("Content-Type", "application/json")

	resp, err := sc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("response", string(respBody)).Str("url", url).Msg("API response")

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%s %s failed with status %d: %s", method, url, resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// fundAccount credits a ledger account through the internal custody endpoint
func (sc *simulationClient) fundAccount(address string, amount int64) error {
	start := time.Now()
	defer func() {
		sc.stats["fund"].addDuration(time.Since(start))
	}()

	url := fmt.Sprintf("%s/api/v1/internal/accounts/%s/deposit", sc.baseURL, address)
	return sc.doJSON("POST", url, address, map[string]int64{"amount": amount}, nil)
}

// accountBalance reads a ledger account balance
func (sc *simulationClient) accountBalance(address string) (int64, error) {
	start := time.Now()
	defer func() {
		sc.stats["balance"].addDuration(time.Since(start))
	}()

	var result struct {
		Data struct {
			Balance int64 `json:"balance"`
		} `json:"data"`
	}
	url := fmt.Sprintf("%s/api/v1/internal/accounts/%s", sc.baseURL, address)
	if err := sc.doJSON("GET", url, address, nil, &result); err != nil {
		return 0, err
	}
	return result.Data.Balance, nil
}

// createOrder opens a single-payment escrow order and returns the unlock code
func (sc *simulationClient) createOrder(buyer, seller, orderID string, amount int64) (uint64, error) {
	start := time.Now()
	defer func() {
		sc.stats["create"].addDuration(time.Since(start))
	}()

	var result struct {
		Data types.OrderCreated `json:"data"`
	}
	payload := map[string]interface{}{
		"seller_address": seller,
		"amount":         amount,
		"order_id":       orderID,
		"attached_funds": amount,
	}
	url := fmt.Sprintf("%s/api/v1/orders", sc.baseURL)
	if err := sc.doJSON("POST", url, buyer, payload, &result); err != nil {
		sc.stats["create"].addFailure()
		return 0, err
	}
	if result.Data.UnlockCode == 0 {
		sc.stats["create"].addFailure()
		return 0, fmt.Errorf("no unlock code in response for order %s", orderID)
	}
	return result.Data.UnlockCode, nil
}

// confirmReceived releases an order's funds to the seller
func (sc *simulationClient) confirmReceived(buyer, orderID string, unlockCode uint64) error {
	start := time.Now()
	defer func() {
		sc.stats["confirm"].addDuration(time.Since(start))
	}()

	url := fmt.Sprintf("%s/api/v1/orders/%s/confirm", sc.baseURL, orderID)
	err := sc.doJSON("POST", url, buyer, map[string]uint64{"unlock_code": unlockCode}, nil)
	if err != nil {
		sc.stats["confirm"].addFailure()
	}
	return err
}

// createMoneyBox opens a pooled order with a partial initial payment
func (sc *simulationClient) createMoneyBox(buyer, seller, orderID string, amount, attached int64) error {
	start := time.Now()
	defer func() {
		sc.stats["box"].addDuration(time.Since(start))
	}()

	payload := map[string]interface{}{
		"seller_address": seller,
		"amount":         amount,
		"order_id":       orderID,
		"attached_funds": attached,
	}
	url := fmt.Sprintf("%s/api/v1/moneyboxes", sc.baseURL)
	err := sc.doJSON("POST", url, buyer, payload, nil)
	if err != nil {
		sc.stats["box"].addFailure()
	}
	return err
}

// addPayment contributes funds toward a money box
func (sc *simulationClient) addPayment(from, orderID string, amount int64) error {
	start := time.Now()
	defer func() {
		sc.stats["pay"].addDuration(time.Since(start))
	}()

	payload := map[string]int64{
		"declared_amount": amount,
		"attached_funds":  amount,
	}
	url := fmt.Sprintf("%s/api/v1/moneyboxes/%s/payments", sc.baseURL, orderID)
	err := sc.doJSON("POST", url, from, payload, nil)
	if err != nil {
		sc.stats["pay"].addFailure()
	}
	return err
}

// refundMoneyBox cancels a money box, returning each contribution
func (sc *simulationClient) refundMoneyBox(caller, orderID string) error {
	start := time.Now()
	defer func() {
		sc.stats["refund"].addDuration(time.Since(start))
	}()

	url := fmt.Sprintf("%s/api/v1/moneyboxes/%s/refund", sc.baseURL, orderID)
	err := sc.doJSON("POST", url, caller, nil, nil)
	if err != nil {
		sc.stats["refund"].addFailure()
	}
	return err
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\n📊 API Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// flowResult records the outcome of one simulated escrow flow
type flowResult struct {
	kind   string // "single" or "pooled"
	amount int64
	ok     bool
}

// main runs the escrow simulation
// It starts a local API server and simulates concurrent escrow flows:
// single-payment orders confirmed by the buyer, and money boxes that are
// filled by a contributor and then confirmed or refunded.
func main() {
	// Start the server in a goroutine
	go func() {
		if err := startServer(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for server to start
	time.Sleep(2 * time.Second)

	// Addresses for the simulated participants, one trio per worker
	var addresses []string
	for i := 0; i < numWorkers; i++ {
		addresses = append(addresses,
			fmt.Sprintf("0xbuyer-%d", i),
			fmt.Sprintf("0xseller-%d", i),
			fmt.Sprintf("0xfriend-%d", i),
		)
	}

	simClient, err := newSimulationClient(addresses)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize simulation client")
	}

	targetFlows := rand.Intn(maxFlows-minFlows) + minFlows
	log.Info().Int("target_flows", targetFlows).Msg("Starting simulation")

	resultsChan := make(chan flowResult, targetFlows*2)
	var wg sync.WaitGroup

	startTime := time.Now()

	// Start worker goroutines, each running its own buyer/seller/friend trio
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			runEscrowFlows(workerID, targetFlows/numWorkers, simClient, resultsChan)
		}(i)
	}

	wg.Wait()
	close(resultsChan)

	// Aggregate results
	stats := struct {
		totalFlows int
		singleOK   int
		pooledOK   int
		failed     int
		totalValue int64
	}{}

	for result := range resultsChan {
		stats.totalFlows++
		if !result.ok {
			stats.failed++
			continue
		}
		stats.totalValue += result.amount
		if result.kind == "single" {
			stats.singleOK++
		} else {
			stats.pooledOK++
		}
	}

	duration := time.Since(startTime)

	// Seller proceeds across all workers, read back through the API
	var sellerProceeds int64
	for i := 0; i < numWorkers; i++ {
		seller := fmt.Sprintf("0xseller-%d", i)
		proceeds, err := simClient.accountBalance(seller)
		if err != nil {
			log.Error().Err(err).Str("seller", seller).Msg("Failed to read seller balance")
			continue
		}
		sellerProceeds += proceeds
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("🔒 ESCROW SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf(`
📊 Flow Statistics
------------------
Total Flows:      %d
Single Orders:    %d
Pooled Orders:    %d
Failed Flows:     %d
Total Value:      %d
Seller Proceeds:  %d
Duration:         %v
`, stats.totalFlows, stats.singleOK, stats.pooledOK, stats.failed,
		stats.totalValue, sellerProceeds, duration.Round(time.Millisecond))
	fmt.Println("\n" + strings.Repeat("=", 80))

	successRate := float64(stats.totalFlows-stats.failed) / float64(stats.totalFlows) * 100
	log.Info().
		Float64("success_rate", successRate).
		Int("total_flows", stats.totalFlows).
		Int64("total_value", stats.totalValue).
		Dur("duration", duration).
		Msg("Simulation completed")

	simClient.printPerformanceStats()
}

// runEscrowFlows drives one worker's buyer/seller/friend trio through
// alternating single-payment and pooled escrow flows
func runEscrowFlows(workerID, numFlows int, simClient *simulationClient, results chan<- flowResult) {
	buyer := fmt.Sprintf("0xbuyer-%d", workerID)
	seller := fmt.Sprintf("0xseller-%d", workerID)
	friend := fmt.Sprintf("0xfriend-%d", workerID)

	for i := 0; i < numFlows; i++ {
		amount := int64(rand.Intn(900)+100) * 10
		orderID := uuid.New().String()

		if i%2 == 0 {
			// Single-payment flow: fund, create, confirm
			ok := true
			if err := simClient.fundAccount(buyer, amount); err != nil {
				log.Error().Err(err).Str("buyer", buyer).Msg("Failed to fund buyer")
				ok = false
			}
			var unlockCode uint64
			if ok {
				var err error
				unlockCode, err = simClient.createOrder(buyer, seller, orderID, amount)
				if err != nil {
					log.Error().Err(err).Str("order_id", orderID).Msg("Failed to create order")
					ok = false
				}
			}
			if ok {
				if err := simClient.confirmReceived(buyer, orderID, unlockCode); err != nil {
					log.Error().Err(err).Str("order_id", orderID).Msg("Failed to confirm order")
					ok = false
				}
			}
			if ok {
				log.Info().
					Str("order_id", orderID).
					Int64("amount", amount).
					Msg("Single-payment order closed")
			}
			results <- flowResult{kind: "single", amount: amount, ok: ok}
		} else {
			// Pooled flow: buyer funds half, friend fills the rest, then a
			// coin flip decides between confirmation and itemized refund
			half := amount / 2
			ok := true
			if err := simClient.fundAccount(buyer, half); err != nil {
				log.Error().Err(err).Str("buyer", buyer).Msg("Failed to fund buyer")
				ok = false
			}
			if ok {
				if err := simClient.fundAccount(friend, amount-half); err != nil {
					log.Error().Err(err).Str("friend", friend).Msg("Failed to fund friend")
					ok = false
				}
			}
			if ok {
				if err := simClient.createMoneyBox(buyer, seller, orderID, amount, half); err != nil {
					log.Error().Err(err).Str("order_id", orderID).Msg("Failed to create moneybox")
					ok = false
				}
			}
			if ok {
				if err := simClient.addPayment(friend, orderID, amount-half); err != nil {
					log.Error().Err(err).Str("order_id", orderID).Msg("Failed to add payment")
					ok = false
				}
			}
			if ok && rand.Intn(2) == 0 {
				if err := simClient.refundMoneyBox(buyer, orderID); err != nil {
					log.Error().Err(err).Str("order_id", orderID).Msg("Failed to refund moneybox")
					ok = false
				} else {
					log.Info().Str("order_id", orderID).Msg("Moneybox refunded to contributors")
				}
			}
			if ok {
				log.Info().
					Str("order_id", orderID).
					Int64("amount", amount).
					Msg("Pooled flow completed")
			}
			results <- flowResult{kind: "pooled", amount: amount, ok: ok}
		}

		// Random sleep between flows
		time.Sleep(time.Duration(rand.Intn(500)) * time.Millisecond)
	}
}

// startServer initializes and starts the escrow API server
// Sets up all required services, handlers and routes
func startServer() error {
	// Initialize database
	db, err := database.NewDatabase("simulation.db")
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize services
	authService := auth.NewService(jwtSecret)
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret, auth.TestAddress)

	emitter := events.LogEmitter{}
	escrowService := escrow.NewService(db, emitter)
	moneyboxService := moneybox.NewService(db, emitter)

	// Initialize router
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()
	authHandlers := auth.NewGinHandlers(authService)
	escrowHandlers := escrow.NewGinHandlers(escrowService)
	moneyboxHandlers := moneybox.NewGinHandlers(moneyboxService, escrowService)
	custodyHandlers := custody.NewGinHandlers(db)

	// Setup routes
	setupRoutes(router, jwtSecret, authHandlers, escrowHandlers, moneyboxHandlers, custodyHandlers)

	// Start the server
	return router.Run(":8080")
}

// setupRoutes configures all API endpoints and their handlers
// Groups routes by functionality and applies appropriate middleware
func setupRoutes(
	router *gin.Engine,
	secret string,
	authHandlers *auth.GinHandlers,
	escrowHandlers *escrow.GinHandlers,
	moneyboxHandlers *moneybox.GinHandlers,
	custodyHandlers *custody.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Order routes
		orders := v1.Group("/orders")
		orders.Use(middleware.JWTAuth(secret))
		{
			orders.POST("", escrowHandlers.CreateOrderHandler())
			orders.GET("/:order_id", escrowHandlers.GetOrderHandler())
			orders.POST("/:order_id/confirm", escrowHandlers.ConfirmReceivedHandler())
			orders.POST("/:order_id/refund", escrowHandlers.RefundHandler())
		}

		// Money box routes
		boxes := v1.Group("/moneyboxes")
		boxes.Use(middleware.JWTAuth(secret))
		{
			boxes.POST("", moneyboxHandlers.CreateMoneyBoxHandler())
			boxes.POST("/:order_id/payments", moneyboxHandlers.AddPaymentHandler())
			boxes.POST("/:order_id/confirm", moneyboxHandlers.ConfirmReceivedHandler())
			boxes.POST("/:order_id/refund", moneyboxHandlers.RefundHandler())
		}

		// Internal routes
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(secret))
		{
			internal.POST("/accounts/:address/deposit", custodyHandlers.DepositHandler())
			internal.GET("/accounts/:address", custodyHandlers.GetAccountHandler())
			internal.GET("/custody/balance", custodyHandlers.CustodyBalanceHandler())
		}
	}
}
