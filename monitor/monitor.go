// Package monitor polls the ledger backing the credential mirror and raises
// alerts when the relayer account runs dry or the RPC endpoint stops
// answering.
package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// BalanceClient is the slice of the RPC client the monitor needs.
type BalanceClient interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Config tunes the poller.
type Config struct {
	Interval      time.Duration   // probe period, default 30s
	MinBalance    decimal.Decimal // ETH threshold below which low_balance fires
	AlertCooldown time.Duration   // minimum gap between webhook posts per kind
	WebhookURL    string          // empty disables webhook delivery
}

// Monitor probes the relayer balance and RPC health on a fixed interval.
type Monitor struct {
	cfg     Config
	client  BalanceClient
	account common.Address
	log     *slog.Logger

	httpClient *http.Client
	now        func() time.Time

	// lastAlert tracks the most recent webhook post per alert kind so a
	// persistent condition does not flood the receiver.
	lastAlert map[string]time.Time
}

// New creates a monitor for the given relayer account.
func New(cfg Config, client BalanceClient, account common.Address, log *slog.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.AlertCooldown <= 0 {
		cfg.AlertCooldown = 15 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		cfg:        cfg,
		client:     client,
		account:    account,
		log:        log,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (m *Monitor) SetClock(now func() time.Time) {
	m.now = now
}

// Run probes until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	start := m.now()
	balance, err := m.client.BalanceAt(ctx, m.account, nil)
	rpcLatencySeconds.Observe(m.now().Sub(start).Seconds())

	if err != nil {
		probeCount.WithLabelValues("error").Inc()
		m.log.Error("ledger probe failed", "account", m.account.Hex(), "err", err)
		m.alert(ctx, "rpc_down", fmt.Sprintf("ledger RPC probe failed: %v", err))
		return
	}
	probeCount.WithLabelValues("ok").Inc()

	eth := decimal.NewFromBigInt(balance, -18)
	f, _ := eth.Float64()
	relayerBalanceEth.Set(f)

	if eth.LessThan(m.cfg.MinBalance) {
		m.log.Warn("relayer balance below threshold",
			"account", m.account.Hex(), "balance_eth", eth.String(), "min_eth", m.cfg.MinBalance.String())
		m.alert(ctx, "low_balance",
			fmt.Sprintf("relayer %s balance %s ETH below %s ETH", m.account.Hex(), eth, m.cfg.MinBalance))
	}
}

// alert posts to the webhook unless the same kind fired within the cooldown.
func (m *Monitor) alert(ctx context.Context, kind, detail string) {
	alertCount.WithLabelValues(kind).Inc()

	if m.cfg.WebhookURL == "" {
		return
	}
	if m.lastAlert == nil {
		m.lastAlert = make(map[string]time.Time)
	}
	if last, ok := m.lastAlert[kind]; ok && m.now().Sub(last) < m.cfg.AlertCooldown {
		return
	}
	m.lastAlert[kind] = m.now()

	payload, err := json.Marshal(map[string]string{
		"kind":   kind,
		"detail": detail,
		"at":     m.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		m.log.Warn("alert webhook request build failed", "kind", kind, "err", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		m.log.Warn("alert webhook delivery failed", "kind", kind, "err", err)
		return
	}
	resp.Body.Close()
}
