package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/bigkaa/otter-vetting/internal/catalog"
)

// mockCatalogReader: мок CatalogReader с функциональными полями.
type mockCatalogReader struct {
	searchFn      func(ctx context.Context, q catalog.SearchQuery) ([]*catalog.Record, error)
	getFn         func(ctx context.Context, key string) (*catalog.Record, error)
	collectionsFn func(ctx context.Context) ([]catalog.Collection, error)
	queryFn       func(ctx context.Context, req catalog.QueryRequest) (*catalog.QueryResult, error)
}

func (m *mockCatalogReader) Search(ctx context.Context, q catalog.SearchQuery) ([]*catalog.Record, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, q)
	}
	return nil, nil
}

func (m *mockCatalogReader) Get(ctx context.Context, key string) (*catalog.Record, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, catalog.ErrNotFound
}

func (m *mockCatalogReader) Collections(ctx context.Context) ([]catalog.Collection, error) {
	if m.collectionsFn != nil {
		return m.collectionsFn(ctx)
	}
	return nil, nil
}

func (m *mockCatalogReader) Query(ctx context.Context, req catalog.QueryRequest) (*catalog.QueryResult, error) {
	if m.queryFn != nil {
		return m.queryFn(ctx, req)
	}
	return &catalog.QueryResult{}, nil
}

func TestSearchService_ErrorMapping(t *testing.T) {
	store := &mockCatalogReader{
		queryFn: func(context.Context, catalog.QueryRequest) (*catalog.QueryResult, error) {
			return nil, fmt.Errorf("%w: найдена операция REMOVE", catalog.ErrReadOnly)
		},
		collectionsFn: func(context.Context) ([]catalog.Collection, error) {
			return nil, fmt.Errorf("%w: connection refused", catalog.ErrUnavailable)
		},
	}
	svc := NewSearchService(store, testLogger())
	ctx := context.Background()

	if _, err := svc.Get(ctx, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get: ошибка = %v, ожидается ErrNotFound", err)
	}
	if _, err := svc.Query(ctx, catalog.QueryRequest{Query: "REMOVE"}); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Query: ошибка = %v, ожидается ErrReadOnly", err)
	}
	if _, err := svc.Collections(ctx); !errors.Is(err, ErrCatalogUnavailable) {
		t.Errorf("Collections: ошибка = %v, ожидается ErrCatalogUnavailable", err)
	}
}

func TestSearchService_Search(t *testing.T) {
	store := &mockCatalogReader{searchFn: func(_ context.Context, q catalog.SearchQuery) ([]*catalog.Record, error) {
		if len(q.Names) != 1 || q.Names[0] != "SN2011fe" {
			t.Errorf("запрос = %+v", q)
		}
		return []*catalog.Record{{Key: "1", Name: catalog.Name{DefaultName: "SN2011fe"}}}, nil
	}}
	got, err := NewSearchService(store, testLogger()).Search(context.Background(), catalog.SearchQuery{Names: []string{"SN2011fe"}})
	if err != nil || len(got) != 1 {
		t.Errorf("Search = %v, %v", got, err)
	}
}

func TestSearchService_References(t *testing.T) {
	tests := []struct {
		name      string
		names     []string
		searchErr error
		wantErr   error
		wantCodes []string
	}{
		{
			name:      "источники двух объектов",
			names:     []string{"SN2019abc", "AT2020xyz"},
			wantCodes: []string{"2019ApJ...872..151S", "2021ApJ...900...10C"},
		},
		{
			name:    "без имён",
			wantErr: ErrValidation,
		},
		{
			name:      "каталог недоступен",
			names:     []string{"SN2019abc"},
			searchErr: fmt.Errorf("%w: connection refused", catalog.ErrUnavailable),
			wantErr:   ErrCatalogUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockCatalogReader{searchFn: func(_ context.Context, q catalog.SearchQuery) ([]*catalog.Record, error) {
				if !slices.Equal(q.Names, tt.names) {
					t.Errorf("имена = %v, ожидается %v", q.Names, tt.names)
				}
				if tt.searchErr != nil {
					return nil, tt.searchErr
				}
				return []*catalog.Record{
					{Key: "a", Name: catalog.Name{DefaultName: "SN2019abc"},
						Coordinate: []catalog.Coordinate{{Reference: []string{"2019ApJ...872..151S"}}}},
					{Key: "b", Name: catalog.Name{DefaultName: "AT2020xyz"},
						Photometry: []catalog.Photometry{{Reference: "2021ApJ...900...10C"}, {Reference: "tns"}}},
				}, nil
			}}

			got, err := NewSearchService(store, testLogger()).References(context.Background(), tt.names)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ошибка = %v, ожидается %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("References: %v", err)
			}
			if len(got.Items) != 2 || got.Items[1].Name != "AT2020xyz" {
				t.Errorf("записи = %+v", got.Items)
			}
			if !slices.Equal(got.Bibcodes, tt.wantCodes) {
				t.Errorf("коды ADS = %v, ожидается %v", got.Bibcodes, tt.wantCodes)
			}
		})
	}
}
