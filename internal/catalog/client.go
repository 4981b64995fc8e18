// Пакет catalog: HTTP-клиент к документному хранилищу канонических записей OTTER
// (HTTP API в стиле ArangoDB), преобразование заявок в записи и их слияние.
// Операции: ConeSearch, Search, Get, Insert, Replace, Collections, Query, Version.
package catalog

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNotFound: документ не найден.
	ErrNotFound = errors.New("документ не найден")
	// ErrPrecondition: ревизия документа изменилась (If-Match не совпал).
	ErrPrecondition = errors.New("документ изменён другим запросом")
	// ErrReadOnly: запрос содержит операции изменения данных.
	ErrReadOnly = errors.New("разрешены только запросы на чтение")
	// ErrUnavailable: хранилище недоступно или вернуло ошибку сервера.
	ErrUnavailable = errors.New("хранилище каталога недоступно")
)

// APIError: ошибка, возвращённая хранилищем.
type APIError struct {
	Status   int    `json:"code"`
	ErrorNum int    `json:"errorNum"`
	Message  string `json:"errorMessage"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("хранилище вернуло статус %d (errorNum %d): %s", e.Status, e.ErrorNum, e.Message)
}

// Config: параметры подключения к хранилищу.
type Config struct {
	URL        string
	Database   string
	Collection string
	Username   string
	Password   string
	Timeout    time.Duration
	CACertPath string
	// Пропускать проверку TLS-сертификатов
	TLSSkipVerify bool
}

// Client: HTTP-клиент к хранилищу каталога.
type Client struct {
	baseURL    string
	database   string
	collection string
	username   string
	password   string

	httpClient *http.Client
	logger     *slog.Logger

	// Кэш JWT хранилища
	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// defaultTokenTTL: срок жизни токена, если в нём нет exp.
const defaultTokenTTL = 10 * time.Minute

// New создаёт клиент хранилища.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	if cfg.CACertPath != "" || cfg.TLSSkipVerify {
		tlsConfig, err := buildTLSConfig(cfg.CACertPath, cfg.TLSSkipVerify)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата хранилища: %w", err)
		}
		httpClient.Transport = &http.Transport{TLSClientConfig: tlsConfig}
	}

	return NewWithHTTPClient(cfg, httpClient, logger), nil
}

// NewWithHTTPClient создаёт клиент с готовым HTTP-клиентом (используется в тестах).
func NewWithHTTPClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		database:   cfg.Database,
		collection: cfg.Collection,
		username:   cfg.Username,
		password:   cfg.Password,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "catalog_client")),
	}
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA.
func buildTLSConfig(caCertPath string, skipVerify bool) (*tls.Config, error) {
	cfg := &tls.Config{InsecureSkipVerify: skipVerify} //nolint:gosec // включается явно через VM_TLS_SKIP_VERIFY
	if caCertPath == "" {
		return cfg, nil
	}

	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	pool.AppendCertsFromPEM(caCert)
	cfg.RootCAs = pool
	return cfg, nil
}

// --- Аутентификация ---

// getToken возвращает актуальный JWT хранилища, обновляя его за 30 секунд до истечения.
// Без логина запросы выполняются без авторизации.
func (c *Client) getToken(ctx context.Context) (string, error) {
	if c.username == "" {
		return "", nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Add(30*time.Second).Before(c.tokenExpiry) {
		return c.token, nil
	}

	body, err := json.Marshal(map[string]string{"username": c.username, "password": c.password})
	if err != nil {
		return "", fmt.Errorf("сериализация запроса токена: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/_open/auth", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("создание запроса токена: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: запрос токена: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", decodeError(resp)
	}

	var auth struct {
		JWT string `json:"jwt"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return "", fmt.Errorf("декодирование токена хранилища: %w", err)
	}

	c.token = auth.JWT
	c.tokenExpiry = tokenExpiry(auth.JWT)
	c.logger.Debug("Токен хранилища обновлён", slog.Time("expires_at", c.tokenExpiry))
	return c.token, nil
}

// tokenExpiry читает exp из токена без проверки подписи:
// токен выдан хранилищем и проверяется им же.
func tokenExpiry(token string) time.Time {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return time.Now().Add(defaultTokenTTL)
}

// --- HTTP helpers ---

// do выполняет запрос к API хранилища. path указывается от корня сервера.
func (c *Client) do(ctx context.Context, method, path string, body any, header http.Header) (*http.Response, error) {
	token, err := c.getToken(ctx)
	if err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("сериализация тела запроса: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if token != "" {
		req.Header.Set("Authorization", "bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	return resp, nil
}

// decodeError превращает ответ с ошибкой в APIError, обёрнутую в сентинел по статусу.
func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{Status: resp.StatusCode}
	if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	apiErr.Status = resp.StatusCode

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrNotFound, apiErr)
	case resp.StatusCode == http.StatusPreconditionFailed:
		return fmt.Errorf("%w: %w", ErrPrecondition, apiErr)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", ErrUnavailable, apiErr)
	}
	return apiErr
}

func (c *Client) dbPath(suffix string) string {
	return "/_db/" + url.PathEscape(c.database) + suffix
}

func (c *Client) documentPath(key string) string {
	p := c.dbPath("/_api/document/" + url.PathEscape(c.collection))
	if key != "" {
		p += "/" + url.PathEscape(key)
	}
	return p
}

// --- Документы ---

// Get возвращает запись по ключу.
func (c *Client) Get(ctx context.Context, key string) (*Record, error) {
	resp, err := c.do(ctx, http.MethodGet, c.documentPath(key), nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var rec Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("декодирование записи %s: %w", key, err)
	}
	return &rec, nil
}

type writeResult struct {
	Key string  `json:"_key"`
	ID  string  `json:"_id"`
	Rev string  `json:"_rev"`
	New *Record `json:"new"`
}

// Insert создаёт новую запись; ключ назначает хранилище.
func (c *Client) Insert(ctx context.Context, rec *Record) (*Record, error) {
	doc := *rec
	doc.Key, doc.ID, doc.Rev = "", "", ""

	resp, err := c.do(ctx, http.MethodPost, c.documentPath("")+"?returnNew=true", doc, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return nil, decodeError(resp)
	}
	return decodeWrite(resp)
}

// Replace перезаписывает запись rec.Key. Если задан rec.Rev, запись заменяется
// только при совпадении ревизии, иначе возвращается ErrPrecondition.
func (c *Client) Replace(ctx context.Context, rec *Record) (*Record, error) {
	if rec.Key == "" {
		return nil, fmt.Errorf("замена записи без _key")
	}
	header := http.Header{}
	if rec.Rev != "" {
		header.Set("If-Match", rec.Rev)
	}
	doc := *rec
	doc.ID, doc.Rev = "", ""

	resp, err := c.do(ctx, http.MethodPut, c.documentPath(rec.Key)+"?returnNew=true", doc, header)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return nil, decodeError(resp)
	}
	return decodeWrite(resp)
}

func decodeWrite(resp *http.Response) (*Record, error) {
	var res writeResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("декодирование ответа записи: %w", err)
	}
	out := res.New
	if out == nil {
		out = &Record{}
	}
	out.Key, out.ID, out.Rev = res.Key, res.ID, res.Rev
	return out, nil
}

// Collections возвращает несистемные коллекции базы.
func (c *Client) Collections(ctx context.Context) ([]Collection, error) {
	resp, err := c.do(ctx, http.MethodGet, c.dbPath("/_api/collection?excludeSystem=true"), nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var body struct {
		Result []Collection `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("декодирование списка коллекций: %w", err)
	}
	return body.Result, nil
}

// Version возвращает версию сервера хранилища (используется как проверка готовности).
func (c *Client) Version(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/_api/version", nil, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", decodeError(resp)
	}

	var v struct {
		Server  string `json:"server"`
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return "", fmt.Errorf("декодирование версии: %w", err)
	}
	return v.Version, nil
}

// CheckReady проверяет доступность хранилища для /health/ready.
func (c *Client) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	v, err := c.Version(ctx)
	if err != nil {
		return "fail", fmt.Sprintf("хранилище каталога недоступно: %v", err)
	}
	return "ok", "версия " + v
}
