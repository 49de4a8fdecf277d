package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/docsense/backend/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Database connection manager
type Manager struct {
	DB     *gorm.DB
	Redis  *redis.Client
	logger *logrus.Logger
}

// Database configuration
type Config struct {
	DatabaseURL string
	RedisURL    string
	LogLevel    string
}

// NewManager creates a new database manager with connection pooling
func NewManager(config *Config, logger *logrus.Logger) (*Manager, error) {
	gormLogger := gormlogger.Default.LogMode(gormlogger.Silent)
	if config.LogLevel == "debug" {
		gormLogger = gormlogger.Default.LogMode(gormlogger.Info)
	}

	db, err := gorm.Open(postgres.Open(config.DatabaseURL), &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true, // Improve performance
		PrepareStmt:            true, // Cache prepared statements
		TranslateError:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Connection pool settings
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	redisOpts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	redisOpts.PoolSize = 20
	redisOpts.MinIdleConns = 5
	redisOpts.MaxConnAge = time.Hour
	redisOpts.IdleTimeout = 30 * time.Minute

	redisClient := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Database and Redis connections established successfully")

	return &Manager{
		DB:     db,
		Redis:  redisClient,
		logger: logger,
	}, nil
}

// Migrate runs database migrations
func (m *Manager) Migrate() error {
	m.logger.Info("Running database migrations...")

	return m.DB.AutoMigrate(
		&models.Student{},
		&models.Query{},
		&models.Interaction{},
		&models.QueryTrend{},
		&models.LearningPattern{},
	)
}

// Close closes all database connections
func (m *Manager) Close() error {
	if m.Redis != nil {
		if err := m.Redis.Close(); err != nil {
			m.logger.WithError(err).Error("Failed to close Redis connection")
		}
	}

	if m.DB != nil {
		sqlDB, err := m.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}

	return nil
}

// Health check methods
func (m *Manager) PingDatabase() error {
	sqlDB, err := m.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func (m *Manager) PingRedis() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.Redis.Ping(ctx).Err()
}

// Cache implementation
type Cache struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewCache(client *redis.Client, logger *logrus.Logger) *Cache {
	return &Cache{
		client: client,
		logger: logger,
	}
}

// Cache key constants
const (
	SearchResultsKey   = "search:results:%s"
	LearningPatternKey = "pattern:student:%d"
	TrendingQueriesKey = "trending:queries"
)

// CacheSearchResults caches retrieval results for a normalized query
func (c *Cache) CacheSearchResults(ctx context.Context, queryKey string, results interface{}, expiration time.Duration) error {
	key := fmt.Sprintf(SearchResultsKey, queryKey)

	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to marshal search results: %w", err)
	}

	return c.client.Set(ctx, key, data, expiration).Err()
}

// GetCachedSearchResults retrieves cached retrieval results
func (c *Cache) GetCachedSearchResults(ctx context.Context, queryKey string, result interface{}) error {
	key := fmt.Sprintf(SearchResultsKey, queryKey)

	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return err
	}

	return json.Unmarshal([]byte(data), result)
}

// CacheLearningPattern caches a student's derived profile
func (c *Cache) CacheLearningPattern(ctx context.Context, pattern *models.LearningPattern, expiration time.Duration) error {
	key := fmt.Sprintf(LearningPatternKey, pattern.StudentID)

	data, err := json.Marshal(pattern)
	if err != nil {
		return fmt.Errorf("failed to marshal learning pattern: %w", err)
	}

	return c.client.Set(ctx, key, data, expiration).Err()
}

// GetCachedLearningPattern retrieves a cached profile
func (c *Cache) GetCachedLearningPattern(ctx context.Context, studentID uint) (*models.LearningPattern, error) {
	key := fmt.Sprintf(LearningPatternKey, studentID)

	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return nil, err
	}

	var pattern models.LearningPattern
	if err := json.Unmarshal([]byte(data), &pattern); err != nil {
		return nil, err
	}

	return &pattern, nil
}

// InvalidateLearningPattern removes a cached profile after recompute
func (c *Cache) InvalidateLearningPattern(ctx context.Context, studentID uint) error {
	key := fmt.Sprintf(LearningPatternKey, studentID)
	return c.client.Del(ctx, key).Err()
}

// CacheTrendingQueries caches the trending-query list
func (c *Cache) CacheTrendingQueries(ctx context.Context, trends []models.QueryTrend, expiration time.Duration) error {
	data, err := json.Marshal(trends)
	if err != nil {
		return fmt.Errorf("failed to marshal trending queries: %w", err)
	}

	return c.client.Set(ctx, TrendingQueriesKey, data, expiration).Err()
}

// GetCachedTrendingQueries retrieves the cached trending-query list
func (c *Cache) GetCachedTrendingQueries(ctx context.Context) ([]models.QueryTrend, error) {
	data, err := c.client.Get(ctx, TrendingQueriesKey).Result()
	if err != nil {
		return nil, err
	}

	var trends []models.QueryTrend
	err = json.Unmarshal([]byte(data), &trends)
	return trends, err
}

// InvalidateSearchResults drops every cached search result. Called after
// new study content is indexed, since any cached ranking may be stale.
func (c *Cache) InvalidateSearchResults(ctx context.Context) error {
	pattern := fmt.Sprintf(SearchResultsKey, "*")

	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan search cache keys: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete search cache keys: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
