package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"MirrorTrade/internal/config"
	"MirrorTrade/internal/model"
)

// session holds the credentials for one brokerage connection.
type session struct {
	apiKey      string
	accessToken string
}

func (s session) header() string { return "token " + s.apiKey + ":" + s.accessToken }

// KiteBroker implements Broker against the Kite Connect REST API.
type KiteBroker struct {
	baseURL    string
	masterID   string
	master     session
	children   []model.Account
	sessions   map[string]session // child ID -> credentials
	exchange   string
	exchanges  map[string]string // instrument -> exchange override
	client     *http.Client
	maxRetries uint
	log        zerolog.Logger
}

// NewKiteBroker builds the adapter from config, with optional proxy support.
func NewKiteBroker(cfg *config.Config, log zerolog.Logger) *KiteBroker {
	transport := &http.Transport{}
	if cfg.Proxy != "" {
		if u, err := url.Parse(cfg.Proxy); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}

	sessions := make(map[string]session, len(cfg.Children))
	children := make([]model.Account, 0, len(cfg.Children))
	for _, ch := range cfg.Children {
		sessions[ch.ID] = session{apiKey: ch.APIKey, accessToken: ch.AccessToken}
		children = append(children, model.Account{
			ID:         ch.ID,
			Role:       model.RoleChild,
			Available:  ch.Available,
			MaxCap:     ch.MaxCap,
			Credential: ch.APIKey,
		})
	}

	return &KiteBroker{
		baseURL:   strings.TrimRight(cfg.Broker.BaseURL, "/"),
		masterID:  cfg.Broker.MasterID,
		master:    session{apiKey: cfg.Broker.MasterAPIKey, accessToken: cfg.Broker.MasterAccessToken},
		children:  children,
		sessions:  sessions,
		exchange:  cfg.Broker.Exchange,
		exchanges: cfg.Broker.ExchangeOverrides,
		client: &http.Client{
			Timeout:   time.Duration(cfg.Broker.TimeoutSec) * time.Second,
			Transport: transport,
		},
		maxRetries: uint(cfg.Broker.MaxRetries),
		log:        log,
	}
}

func (k *KiteBroker) Name() string { return "kite" }

// kiteEnvelope is the standard Kite Connect response wrapper.
type kiteEnvelope struct {
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data"`
	Message   string          `json:"message"`
	ErrorType string          `json:"error_type"`
}

type kiteOrder struct {
	OrderID         string `json:"order_id"`
	TradingSymbol   string `json:"tradingsymbol"`
	TransactionType string `json:"transaction_type"`
	Quantity        int64  `json:"quantity"`
	Product         string `json:"product"`
	Status          string `json:"status"`
	OrderTimestamp  string `json:"order_timestamp"`
}

type kiteMargins struct {
	Equity struct {
		Available struct {
			OpeningBalance float64 `json:"opening_balance"`
			Collateral     float64 `json:"collateral"`
		} `json:"available"`
		Utilised struct {
			Debits float64 `json:"debits"`
		} `json:"utilised"`
	} `json:"equity"`
}

type kitePosition struct {
	TradingSymbol string `json:"tradingsymbol"`
	Quantity      int64  `json:"quantity"`
}

func (k *KiteBroker) ListMasterOrders(ctx context.Context) ([]model.OrderEvent, error) {
	data, err := k.getWithRetry(ctx, k.master, "/orders")
	if err != nil {
		return nil, err
	}
	var raw []kiteOrder
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, Transient("decode orders", err)
	}
	events := make([]model.OrderEvent, 0, len(raw))
	for _, o := range raw {
		placedAt, _ := time.Parse("2006-01-02 15:04:05", o.OrderTimestamp)
		events = append(events, model.OrderEvent{
			OrderID:    o.OrderID,
			Instrument: o.TradingSymbol,
			Side:       model.Side(o.TransactionType),
			Quantity:   o.Quantity,
			Product:    o.Product,
			Status:     model.OrderStatus(o.Status),
			PlacedAt:   placedAt,
		})
	}
	return events, nil
}

func (k *KiteBroker) MasterMargin(ctx context.Context) (model.MarginSnapshot, error) {
	data, err := k.getWithRetry(ctx, k.master, "/user/margins")
	if err != nil {
		return model.MarginSnapshot{}, err
	}
	var m kiteMargins
	if err := json.Unmarshal(data, &m); err != nil {
		return model.MarginSnapshot{}, Transient("decode margins", err)
	}
	used := m.Equity.Utilised.Debits
	available := m.Equity.Available.OpeningBalance + m.Equity.Available.Collateral - used
	return model.MarginSnapshot{
		Available:  available,
		Used:       used,
		Total:      available + used,
		ObservedAt: time.Now(),
	}, nil
}

func (k *KiteBroker) MasterPositions(ctx context.Context) (model.PositionSnapshot, error) {
	return k.positions(ctx, k.master)
}

func (k *KiteBroker) Children(_ context.Context) ([]model.Account, error) {
	out := make([]model.Account, len(k.children))
	copy(out, k.children)
	return out, nil
}

func (k *KiteBroker) ChildPositions(ctx context.Context, childID string) (model.PositionSnapshot, error) {
	sess, ok := k.sessions[childID]
	if !ok {
		return nil, fmt.Errorf("unknown child account %s", childID)
	}
	return k.positions(ctx, sess)
}

func (k *KiteBroker) positions(ctx context.Context, sess session) (model.PositionSnapshot, error) {
	data, err := k.getWithRetry(ctx, sess, "/portfolio/positions")
	if err != nil {
		return nil, err
	}
	var raw struct {
		Net []kitePosition `json:"net"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, Transient("decode positions", err)
	}
	snap := make(model.PositionSnapshot)
	for _, p := range raw.Net {
		if p.Quantity != 0 {
			snap[p.TradingSymbol] = p.Quantity
		}
	}
	return snap, nil
}

// PlaceOrder submits a regular market order. Placement is never retried:
// a timed-out request may still have reached the exchange, and the engine
// re-derives any shortfall from live positions on the next tick.
func (k *KiteBroker) PlaceOrder(ctx context.Context, account model.Account, instrument string, side model.Side, quantity int64, product string) (model.OrderAck, error) {
	sess, ok := k.sessions[account.ID]
	if !ok {
		return model.OrderAck{}, fmt.Errorf("unknown account %s", account.ID)
	}

	form := url.Values{}
	form.Set("tradingsymbol", instrument)
	form.Set("exchange", k.exchangeFor(instrument))
	form.Set("transaction_type", string(side))
	form.Set("order_type", "MARKET")
	form.Set("quantity", strconv.FormatInt(quantity, 10))
	form.Set("product", product)
	form.Set("validity", "DAY")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		k.baseURL+"/orders/regular", strings.NewReader(form.Encode()))
	if err != nil {
		return model.OrderAck{}, err
	}
	req.Header.Set("Authorization", sess.header())
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := k.client.Do(req)
	if err != nil {
		return model.OrderAck{}, Transient("place order", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.OrderAck{}, Transient("place order: read response", err)
	}
	var env kiteEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return model.OrderAck{}, Transient("place order: decode response", err)
	}
	if resp.StatusCode != http.StatusOK || env.Status != "success" {
		reason := env.Message
		if reason == "" {
			reason = fmt.Sprintf("status %d", resp.StatusCode)
		}
		if resp.StatusCode >= 500 {
			return model.OrderAck{}, Transient("place order", fmt.Errorf("%s", reason))
		}
		return model.OrderAck{}, &OrderRejectedError{
			AccountID:  account.ID,
			Instrument: instrument,
			Reason:     reason,
		}
	}
	var ack struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(env.Data, &ack); err != nil {
		return model.OrderAck{}, Transient("place order: decode ack", err)
	}
	return model.OrderAck{OrderID: ack.OrderID}, nil
}

func (k *KiteBroker) exchangeFor(instrument string) string {
	if ex, ok := k.exchanges[instrument]; ok {
		return ex
	}
	return k.exchange
}

// getWithRetry performs an authenticated GET with bounded exponential
// backoff. Only reads are retried; see PlaceOrder.
func (k *KiteBroker) getWithRetry(ctx context.Context, sess session, path string) (json.RawMessage, error) {
	op := func() (json.RawMessage, error) {
		return k.get(ctx, sess, path)
	}
	data, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(k.maxRetries),
	)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (k *KiteBroker) get(ctx context.Context, sess session, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.baseURL+path, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Authorization", sess.header())

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, Transient("GET "+path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Transient("GET "+path+": read body", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, Transient("GET "+path, fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}
	var env kiteEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, Transient("GET "+path+": decode envelope", err)
	}
	if env.Status != "success" {
		return nil, Transient("GET "+path, fmt.Errorf("%s: %s", env.ErrorType, env.Message))
	}
	return env.Data, nil
}
