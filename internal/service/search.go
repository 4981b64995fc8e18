package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bigkaa/otter-vetting/internal/catalog"
)

// CatalogReader: операции чтения каталога для поиска и прокси.
type CatalogReader interface {
	Search(ctx context.Context, q catalog.SearchQuery) ([]*catalog.Record, error)
	Get(ctx context.Context, key string) (*catalog.Record, error)
	Collections(ctx context.Context) ([]catalog.Collection, error)
	Query(ctx context.Context, req catalog.QueryRequest) (*catalog.QueryResult, error)
}

// SearchService: поиск транзиентов и доступ к каталогу только на чтение.
type SearchService struct {
	store  CatalogReader
	logger *slog.Logger
}

// NewSearchService создаёт сервис поиска.
func NewSearchService(store CatalogReader, logger *slog.Logger) *SearchService {
	return &SearchService{
		store:  store,
		logger: logger.With(slog.String("component", "search_service")),
	}
}

// Search ищет записи по именам, положению, красному смещению и наличию фотометрии.
func (s *SearchService) Search(ctx context.Context, q catalog.SearchQuery) ([]*catalog.Record, error) {
	records, err := s.store.Search(ctx, q)
	if err != nil {
		return nil, storeError(err)
	}
	s.logger.Debug("Поиск по каталогу",
		slog.Int("names", len(q.Names)),
		slog.Bool("cone", q.Position != nil),
		slog.Int("found", len(records)),
	)
	return records, nil
}

// Get возвращает запись каталога по ключу.
func (s *SearchService) Get(ctx context.Context, key string) (*catalog.Record, error) {
	rec, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, storeError(err)
	}
	return rec, nil
}

// Collections возвращает коллекции хранилища.
func (s *SearchService) Collections(ctx context.Context) ([]catalog.Collection, error) {
	cols, err := s.store.Collections(ctx)
	if err != nil {
		return nil, storeError(err)
	}
	return cols, nil
}

// Query выполняет запрос только на чтение.
func (s *SearchService) Query(ctx context.Context, req catalog.QueryRequest) (*catalog.QueryResult, error) {
	res, err := s.store.Query(ctx, req)
	if err != nil {
		return nil, storeError(err)
	}
	return res, nil
}

// CitationReport: источники выбранных объектов и общий список кодов ADS.
type CitationReport struct {
	Items    []catalog.CitationSet `json:"items"`
	Bibcodes []string              `json:"bibcodes"`
}

// References собирает источники данных записей, найденных по именам или псевдонимам.
func (s *SearchService) References(ctx context.Context, names []string) (*CitationReport, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: не заданы имена объектов", ErrValidation)
	}
	records, err := s.store.Search(ctx, catalog.SearchQuery{Names: names, Limit: catalog.MaxQueryResults})
	if err != nil {
		return nil, storeError(err)
	}
	items, bibcodes := catalog.Citations(records)
	s.logger.Debug("Сбор источников",
		slog.Int("names", len(names)),
		slog.Int("found", len(items)),
		slog.Int("bibcodes", len(bibcodes)),
	)
	return &CitationReport{Items: items, Bibcodes: bibcodes}, nil
}
