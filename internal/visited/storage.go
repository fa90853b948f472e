// Package visited keeps the crawler's visited set and cookies in Redis, so
// an interrupted crawl can resume without refetching pages.
package visited

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultPrefix = "catalogcrawler"
	pingTimeout   = 5 * time.Second
)

// Storage implements colly's storage.Storage on a go-redis client.
type Storage struct {
	Client *redis.Client
	// Prefix namespaces every key.
	Prefix string
	// Expires is the TTL of a visited mark. Zero keeps marks forever.
	Expires time.Duration
}

// NewClient accepts either a redis:// URL or a bare host:port.
func NewClient(redisURL string) (*redis.Client, error) {
	if strings.Contains(redisURL, "://") {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

func (s *Storage) Init() error {
	if s.Client == nil {
		return errors.New("visited storage: nil redis client")
	}
	if s.Prefix == "" {
		s.Prefix = DefaultPrefix
	}
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := s.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

func (s *Storage) Visited(requestID uint64) error {
	return s.Client.Set(context.Background(), s.requestKey(requestID), "1", s.Expires).Err()
}

func (s *Storage) IsVisited(requestID uint64) (bool, error) {
	n, err := s.Client.Exists(context.Background(), s.requestKey(requestID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Storage) Cookies(u *url.URL) string {
	v, err := s.Client.Get(context.Background(), s.cookieKey(u)).Result()
	if err != nil {
		return ""
	}
	return v
}

func (s *Storage) SetCookies(u *url.URL, cookies string) {
	// colly offers no error path for cookies.
	_ = s.Client.Set(context.Background(), s.cookieKey(u), cookies, 0).Err()
}

// Clear removes every key under Prefix.
func (s *Storage) Clear(ctx context.Context) error {
	iter := s.Client.Scan(ctx, 0, s.Prefix+":*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan visited keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return s.Client.Del(ctx, keys...).Err()
}

func (s *Storage) requestKey(id uint64) string {
	return s.Prefix + ":request:" + strconv.FormatUint(id, 10)
}

func (s *Storage) cookieKey(u *url.URL) string {
	return s.Prefix + ":cookie:" + u.Host
}
