package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bigkaa/otter-vetting/internal/domain/model"
)

// CacheService: LRU-кэш заявок с TTL. Кэш локален для экземпляра сервиса.
// Записи в кэше не изменяются: обновление заявки заменяет запись целиком.
type CacheService struct {
	cache *expirable.LRU[string, *model.Submission]
}

// NewCacheService создаёт кэш на maxSize заявок с временем жизни ttl.
func NewCacheService(maxSize int, ttl time.Duration) *CacheService {
	return &CacheService{cache: expirable.NewLRU[string, *model.Submission](maxSize, nil, ttl)}
}

// Get возвращает заявку из кэша.
func (c *CacheService) Get(id string) (*model.Submission, bool) {
	val, ok := c.cache.Get(id)
	if ok {
		cacheHitsTotal.Inc()
		return val, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет или заменяет заявку в кэше.
func (c *CacheService) Set(id string, s *model.Submission) {
	c.cache.Add(id, s)
}

// Delete удаляет заявку из кэша.
func (c *CacheService) Delete(id string) {
	c.cache.Remove(id)
}

// Len возвращает количество записей в кэше.
func (c *CacheService) Len() int {
	return c.cache.Len()
}
