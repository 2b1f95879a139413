// Package dynamo implements the position, ledger and recommendation stores on DynamoDB,
// using the table layout the analytics pipeline already writes.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-advisor/internal/domain"
	"github.com/aristath/portfolio-advisor/pkg/formulas"
)

const (
	batchGetLimit   = 100 // BatchGetItem keys per request
	batchWriteLimit = 25  // BatchWriteItem requests per call
	maxRetries      = 5   // Attempts for unprocessed keys and items
)

// API is the subset of the DynamoDB client the store uses
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// Tables names the three tables
type Tables struct {
	StockAnalytics string
	Portfolio      string
	RealizedGains  string
}

// Store implements domain.PositionStore, domain.LedgerStore and domain.RecommendationStore
type Store struct {
	client  API
	tables  Tables
	backoff time.Duration
	log     zerolog.Logger
}

// NewStore creates a DynamoDB-backed store
func NewStore(client API, tables Tables, log zerolog.Logger) *Store {
	return &Store{
		client:  client,
		tables:  tables,
		backoff: 200 * time.Millisecond,
		log:     log.With().Str("repo", "dynamodb").Logger(),
	}
}

// ListPositions scans the Portfolio table
func (s *Store) ListPositions(ctx context.Context) ([]domain.Position, error) {
	var positions []domain.Position

	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName: aws.String(s.tables.Portfolio),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, domain.Wrap("scan portfolio", domain.KindPersistence, err)
		}

		var items []portfolioItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal portfolio items: %w", err)
		}
		for _, it := range items {
			pos, err := it.position()
			if err != nil {
				s.log.Warn().Err(err).Str("ticker", it.Stock).Msg("Skipping malformed portfolio item")
				continue
			}
			positions = append(positions, pos)
		}
	}

	return positions, nil
}

// SaveNewPositions puts one item per valid order. A closed item with the same key is left alone.
func (s *Store) SaveNewPositions(ctx context.Context, orders []domain.BuyOrder, date time.Time) ([]domain.Position, error) {
	buyDate := domain.FormatDate(date)
	var saved []domain.Position

	for _, order := range orders {
		order = order.Normalize()
		if err := order.Validate(); err != nil {
			s.log.Warn().Err(err).Str("ticker", order.Ticker).Msg("Skipping invalid buy order")
			continue
		}

		item, err := attributevalue.MarshalMap(portfolioItem{
			Stock:          order.Ticker,
			Date:           buyDate,
			Name:           order.Name,
			NumberOfShares: order.SharesToBuy,
		})
		if err != nil {
			return saved, fmt.Errorf("failed to marshal position %s: %w", order.Ticker, err)
		}

		_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(s.tables.Portfolio),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(sell_date)"),
		})
		if err != nil {
			var conditional *types.ConditionalCheckFailedException
			if errors.As(err, &conditional) {
				s.log.Warn().Str("ticker", order.Ticker).Str("buy_date", buyDate).Msg("Position already closed for this date, not reopening")
				continue
			}
			return saved, domain.Wrap("save position "+order.Ticker, domain.KindPersistence, err)
		}

		saved = append(saved, domain.Position{
			Ticker:  order.Ticker,
			Name:    order.Name,
			BuyDate: domain.DateOf(date),
			Shares:  order.SharesToBuy,
		})
	}

	s.log.Info().Int("saved", len(saved)).Str("date", buyDate).Msg("Saved new positions")
	return saved, nil
}

// ClosePositions puts each closed item under its (stock, date) key.
// DynamoDB has no multi-item transaction here; a failure leaves earlier records closed,
// and re-closing them on a later run is harmless.
func (s *Store) ClosePositions(ctx context.Context, records []domain.ClosingRecord) error {
	for _, rec := range records {
		item, err := attributevalue.MarshalMap(closedItem(rec))
		if err != nil {
			return fmt.Errorf("failed to marshal closing record %s: %w", rec.Ticker, err)
		}
		if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(s.tables.Portfolio),
			Item:      item,
		}); err != nil {
			return domain.Wrap("close position "+rec.Ticker, domain.KindPersistence, err)
		}
	}

	if len(records) > 0 {
		s.log.Info().Int("closed", len(records)).Msg("Closed positions")
	}
	return nil
}

// WipeAllPositions deletes every Portfolio item
func (s *Store) WipeAllPositions(ctx context.Context) (int, error) {
	var deletes []types.WriteRequest

	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:                aws.String(s.tables.Portfolio),
		ProjectionExpression:     aws.String("stock, #d"),
		ExpressionAttributeNames: map[string]string{"#d": "date"},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, domain.Wrap("scan portfolio", domain.KindPersistence, err)
		}
		for _, item := range page.Items {
			deletes = append(deletes, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{
					Key: map[string]types.AttributeValue{"stock": item["stock"], "date": item["date"]},
				},
			})
		}
	}

	if err := s.batchWrite(ctx, s.tables.Portfolio, deletes); err != nil {
		return 0, domain.Wrap("wipe positions", domain.KindPersistence, err)
	}

	s.log.Warn().Int("deleted", len(deletes)).Msg("Wiped all positions")
	return len(deletes), nil
}

// AppendRealizedGains puts the entry under the ledger key, replacing the same date
func (s *Store) AppendRealizedGains(ctx context.Context, entry domain.RealizedGainsEntry) error {
	item, err := attributevalue.MarshalMap(realizedGainsItem{
		Key:            realizedGainsKey,
		Date:           domain.FormatDate(entry.Date),
		TotalSellValue: formulas.Round2(entry.TotalSellValue),
		TotalBuyValue:  formulas.Round2(entry.TotalBuyValue),
		Performance:    formulas.Round2(entry.PerformancePercent),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal realized gains: %w", err)
	}

	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tables.RealizedGains),
		Item:      item,
	}); err != nil {
		return domain.Wrap("append realized gains", domain.KindPersistence, err)
	}
	return nil
}

// ListRealizedGains queries the ledger key; items come back ordered by date
func (s *Store) ListRealizedGains(ctx context.Context) ([]domain.RealizedGainsEntry, error) {
	var entries []domain.RealizedGainsEntry

	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                aws.String(s.tables.RealizedGains),
		KeyConditionExpression:   aws.String("#k = :k"),
		ExpressionAttributeNames: map[string]string{"#k": "key"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":k": &types.AttributeValueMemberS{Value: realizedGainsKey},
		},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, domain.Wrap("query realized gains", domain.KindPersistence, err)
		}

		var items []realizedGainsItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal realized gains: %w", err)
		}
		for _, it := range items {
			date, err := domain.ParseDate(it.Date)
			if err != nil {
				s.log.Warn().Err(err).Msg("Skipping realized gains item with bad date")
				continue
			}
			entries = append(entries, domain.RealizedGainsEntry{
				Date:               date,
				TotalBuyValue:      it.TotalBuyValue,
				TotalSellValue:     it.TotalSellValue,
				PerformancePercent: it.Performance,
			})
		}
	}

	return entries, nil
}

// LookupRecommendations batch-gets (ticker, date) keys from StockAnalytics
func (s *Store) LookupRecommendations(ctx context.Context, tickers []string, date time.Time) ([]domain.Recommendation, error) {
	day := domain.FormatDate(date)
	var out []domain.Recommendation

	for start := 0; start < len(tickers); start += batchGetLimit {
		end := start + batchGetLimit
		if end > len(tickers) {
			end = len(tickers)
		}

		keys := make([]map[string]types.AttributeValue, 0, end-start)
		for _, t := range tickers[start:end] {
			keys = append(keys, map[string]types.AttributeValue{
				"stock": &types.AttributeValueMemberS{Value: t},
				"date":  &types.AttributeValueMemberS{Value: day},
			})
		}

		items, err := s.batchGet(ctx, s.tables.StockAnalytics, keys)
		if err != nil {
			return nil, domain.Wrap("lookup recommendations", domain.KindPersistence, err)
		}

		var decoded []stockAnalysisItem
		if err := attributevalue.UnmarshalListOfMaps(items, &decoded); err != nil {
			return nil, fmt.Errorf("failed to unmarshal recommendations: %w", err)
		}
		for _, it := range decoded {
			rec, err := it.recommendation()
			if err != nil {
				s.log.Warn().Err(err).Str("ticker", it.Stock).Msg("Skipping malformed recommendation")
				continue
			}
			out = append(out, rec)
		}
	}

	return out, nil
}

// SaveRecommendations batch-writes recommendations into StockAnalytics
func (s *Store) SaveRecommendations(ctx context.Context, recs []domain.Recommendation) (int, error) {
	puts := make([]types.WriteRequest, 0, len(recs))
	for _, rec := range recs {
		rec = rec.WithDefaults()
		if rec.Ticker == "" || rec.Date.IsZero() {
			continue
		}
		item, err := attributevalue.MarshalMap(analysisItem(rec))
		if err != nil {
			return 0, fmt.Errorf("failed to marshal recommendation %s: %w", rec.Ticker, err)
		}
		puts = append(puts, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
	}

	if err := s.batchWrite(ctx, s.tables.StockAnalytics, puts); err != nil {
		return 0, domain.Wrap("save recommendations", domain.KindPersistence, err)
	}
	return len(puts), nil
}

func (s *Store) batchGet(ctx context.Context, table string, keys []map[string]types.AttributeValue) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	request := map[string]types.KeysAndAttributes{table: {Keys: keys}}

	for attempt := 0; len(request) > 0; attempt++ {
		if attempt >= maxRetries {
			return nil, fmt.Errorf("unprocessed keys remain after %d attempts", maxRetries)
		}
		if attempt > 0 {
			if err := s.sleep(ctx, attempt); err != nil {
				return nil, err
			}
		}

		out, err := s.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: request})
		if err != nil {
			return nil, err
		}
		items = append(items, out.Responses[table]...)
		request = out.UnprocessedKeys
	}
	return items, nil
}

func (s *Store) batchWrite(ctx context.Context, table string, requests []types.WriteRequest) error {
	for start := 0; start < len(requests); start += batchWriteLimit {
		end := start + batchWriteLimit
		if end > len(requests) {
			end = len(requests)
		}

		pending := map[string][]types.WriteRequest{table: requests[start:end]}
		for attempt := 0; len(pending[table]) > 0; attempt++ {
			if attempt >= maxRetries {
				return fmt.Errorf("unprocessed items remain after %d attempts", maxRetries)
			}
			if attempt > 0 {
				if err := s.sleep(ctx, attempt); err != nil {
					return err
				}
			}

			out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return err
			}
			pending = out.UnprocessedItems
			if pending == nil {
				break
			}
		}
	}
	return nil
}

func (s *Store) sleep(ctx context.Context, attempt int) error {
	select {
	case <-time.After(s.backoff * time.Duration(attempt)):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
