package testing

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/aristath/portfolio-advisor/internal/domain"
	"github.com/aristath/portfolio-advisor/internal/events"
)

// MockMarketData is an in-memory MarketDataSource
type MockMarketData struct {
	mu        sync.Mutex
	histories map[string]*domain.PriceHistory
	errs      map[string]error
	delays    map[string]time.Duration
	calls     map[string]int
}

// NewMockMarketData creates an empty market data source
func NewMockMarketData() *MockMarketData {
	return &MockMarketData{
		histories: make(map[string]*domain.PriceHistory),
		errs:      make(map[string]error),
		delays:    make(map[string]time.Duration),
		calls:     make(map[string]int),
	}
}

// SetHistory sets the history returned for a ticker
func (m *MockMarketData) SetHistory(h *domain.PriceHistory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histories[h.Ticker] = h
}

// SetError makes every lookup of ticker fail
func (m *MockMarketData) SetError(ticker string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[ticker] = err
}

// SetDelay makes lookups of ticker block for d or until the context ends
func (m *MockMarketData) SetDelay(ticker string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[ticker] = d
}

// Calls returns how many times ticker was requested
func (m *MockMarketData) Calls(ticker string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[ticker]
}

// GetHistory implements domain.MarketDataSource
func (m *MockMarketData) GetHistory(ctx context.Context, ticker string) (*domain.PriceHistory, error) {
	m.mu.Lock()
	m.calls[ticker]++
	h, ok := m.histories[ticker]
	err := m.errs[ticker]
	delay := m.delays[ticker]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &domain.OpError{Op: "history", Kind: domain.KindExternalService, Ticker: ticker, Err: errors.New("unknown ticker")}
	}
	return h, nil
}

// MockStore is an in-memory PositionStore, LedgerStore and RecommendationStore
type MockStore struct {
	mu              sync.RWMutex
	positions       map[domain.PositionKey]domain.Position
	order           []domain.PositionKey
	ledger          map[string]domain.RealizedGainsEntry
	recommendations map[string]domain.Recommendation

	ListErr   error
	SaveErr   error
	CloseErr  error
	LedgerErr error
	LookupErr error
}

// NewMockStore creates an empty store
func NewMockStore() *MockStore {
	return &MockStore{
		positions:       make(map[domain.PositionKey]domain.Position),
		ledger:          make(map[string]domain.RealizedGainsEntry),
		recommendations: make(map[string]domain.Recommendation),
	}
}

// AddPositions seeds positions
func (m *MockStore) AddPositions(positions ...domain.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range positions {
		m.put(p)
	}
}

// AddRecommendations seeds recommendations
func (m *MockStore) AddRecommendations(recs ...domain.Recommendation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range recs {
		m.recommendations[r.Ticker+"|"+domain.FormatDate(r.Date)] = r
	}
}

func (m *MockStore) put(p domain.Position) {
	key := p.Key()
	if _, exists := m.positions[key]; !exists {
		m.order = append(m.order, key)
	}
	m.positions[key] = p
}

// Position returns the stored position for a key
func (m *MockStore) Position(ticker string, buyDate time.Time) (domain.Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[domain.PositionKey{Ticker: ticker, BuyDate: domain.FormatDate(buyDate)}]
	return p, ok
}

// ListPositions implements domain.PositionStore
func (m *MockStore) ListPositions(ctx context.Context) ([]domain.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := make([]domain.Position, 0, len(m.order))
	for _, key := range m.order {
		out = append(out, m.positions[key])
	}
	return out, nil
}

// SaveNewPositions implements domain.PositionStore
func (m *MockStore) SaveNewPositions(ctx context.Context, orders []domain.BuyOrder, date time.Time) ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return nil, m.SaveErr
	}
	var saved []domain.Position
	for _, o := range orders {
		o = o.Normalize()
		if o.Validate() != nil {
			continue
		}
		p := domain.Position{Ticker: o.Ticker, Name: o.Name, BuyDate: date, Shares: o.SharesToBuy}
		m.put(p)
		saved = append(saved, p)
	}
	return saved, nil
}

// ClosePositions implements domain.PositionStore
func (m *MockStore) ClosePositions(ctx context.Context, records []domain.ClosingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CloseErr != nil {
		return m.CloseErr
	}
	for _, r := range records {
		m.put(r.Position())
	}
	return nil
}

// WipeAllPositions implements domain.PositionStore
func (m *MockStore) WipeAllPositions(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.positions)
	m.positions = make(map[domain.PositionKey]domain.Position)
	m.order = nil
	return n, nil
}

// AppendRealizedGains implements domain.LedgerStore
func (m *MockStore) AppendRealizedGains(ctx context.Context, entry domain.RealizedGainsEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LedgerErr != nil {
		return m.LedgerErr
	}
	m.ledger[domain.FormatDate(entry.Date)] = entry
	return nil
}

// ListRealizedGains implements domain.LedgerStore
func (m *MockStore) ListRealizedGains(ctx context.Context) ([]domain.RealizedGainsEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.LedgerErr != nil {
		return nil, m.LedgerErr
	}
	out := make([]domain.RealizedGainsEntry, 0, len(m.ledger))
	for _, e := range m.ledger {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// LookupRecommendations implements domain.RecommendationStore
func (m *MockStore) LookupRecommendations(ctx context.Context, tickers []string, date time.Time) ([]domain.Recommendation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.LookupErr != nil {
		return nil, m.LookupErr
	}
	var out []domain.Recommendation
	for _, t := range tickers {
		if r, ok := m.recommendations[t+"|"+domain.FormatDate(date)]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// SaveRecommendations implements domain.RecommendationStore
func (m *MockStore) SaveRecommendations(ctx context.Context, recs []domain.Recommendation) (int, error) {
	m.AddRecommendations(recs...)
	return len(recs), nil
}

// StaticUniverse is a fixed UniverseProvider
type StaticUniverse struct {
	List []string
	Err  error
}

// Tickers implements domain.UniverseProvider
func (u *StaticUniverse) Tickers(ctx context.Context) ([]string, error) {
	if u.Err != nil {
		return nil, u.Err
	}
	return append([]string(nil), u.List...), nil
}

// MockAdvisor is a testify mock of domain.AdvisorService
type MockAdvisor struct {
	mock.Mock
}

// Ask implements domain.AdvisorService
func (m *MockAdvisor) Ask(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

// ProposePositions implements domain.AdvisorService
func (m *MockAdvisor) ProposePositions(ctx context.Context, messages []domain.Message, systemPrompt string) ([]domain.BuyOrder, error) {
	args := m.Called(ctx, messages, systemPrompt)
	orders, _ := args.Get(0).([]domain.BuyOrder)
	return orders, args.Error(1)
}

// RecordingPublisher collects published events
type RecordingPublisher struct {
	mu     sync.Mutex
	Events []events.Event
	Err    error
}

// Publish implements events.Publisher
func (p *RecordingPublisher) Publish(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Events = append(p.Events, event)
	return nil
}

// Types returns the published event types in order
func (p *RecordingPublisher) Types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.EventType, 0, len(p.Events))
	for _, e := range p.Events {
		out = append(out, e.Type)
	}
	return out
}

// Close implements events.Publisher
func (p *RecordingPublisher) Close() error {
	return nil
}
