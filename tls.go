package main

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io/fs"
	"strconv"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/caddyserver/certmagic"
	"github.com/libdns/porkbun"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-envconfig"
)

// certStore keeps certmagic's certificates and account material in redis so
// every relay instance serves the same certs. Writes are fenced with
// redislock because certmagic assumes exclusive access during issuance.
type certStore struct {
	rdb    *redis.Client
	locker *redislock.Client
	held   sync.Map
}

func certKey(key string) string {
	return fmt.Sprintf("cert:%v", key)
}

func (s *certStore) Lock(ctx context.Context, name string) error {
	opts := &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(1 * time.Minute),
	}

	lock, err := s.locker.Obtain(ctx, certKey("lock:"+name), 1*time.Minute, opts)
	if err != nil {
		return err
	}

	s.held.Store(name, lock)
	return nil
}

func (s *certStore) Unlock(ctx context.Context, name string) error {
	lock, ok := s.held.LoadAndDelete(name)
	if !ok {
		return fmt.Errorf("not holding a lock for %v", name)
	}

	return lock.(*redislock.Lock).Release(ctx)
}

func (s *certStore) Store(ctx context.Context, key string, value []byte) error {
	fields := map[string]any{
		"at":   time.Now().Unix(),
		"blob": base64.RawURLEncoding.EncodeToString(value),
		"len":  len(value),
	}

	return s.rdb.HSet(ctx, certKey(key), fields).Err()
}

func (s *certStore) Load(ctx context.Context, key string) ([]byte, error) {
	res, err := s.rdb.HGet(ctx, certKey(key), "blob").Result()
	if err == redis.Nil {
		return nil, fs.ErrNotExist
	} else if err != nil {
		return nil, err
	}

	return base64.RawURLEncoding.DecodeString(res)
}

func (s *certStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, certKey(key)).Err()
}

func (s *certStore) Exists(ctx context.Context, key string) bool {
	res, err := s.rdb.Exists(ctx, certKey(key)).Result()
	return err == nil && res > 0
}

func (s *certStore) List(ctx context.Context, prefix string, recursive bool) ([]string, error) {
	pattern := certKey(prefix)
	if recursive {
		pattern += "*"
	}

	return s.rdb.Keys(ctx, pattern).Result()
}

func (s *certStore) Stat(ctx context.Context, key string) (certmagic.KeyInfo, error) {
	info := certmagic.KeyInfo{}

	res, err := s.rdb.HMGet(ctx, certKey(key), "at", "len").Result()
	if err == redis.Nil {
		return info, fs.ErrNotExist
	} else if err != nil {
		return info, err
	}

	at, err := strconv.Atoi(res[0].(string))
	if err != nil {
		return info, err
	}

	size, err := strconv.Atoi(res[1].(string))
	if err != nil {
		return info, err
	}

	info.Key = key
	info.Modified = time.Unix(int64(at), 0)
	info.Size = int64(size)
	info.IsTerminal = true

	return info, nil
}

type EnvTLS struct {
	PorkbunAPIKey    string `env:"PORKBUN_API_KEY,required"`
	PorkbunAPISecret string `env:"PORKBUN_API_SECRET,required"`
}

// TLSConfig wires certmagic with a DNS-01 solver so certificates can be
// issued without exposing port 80 on every relay instance.
func TLSConfig(ctx context.Context, domain string, rdb *redis.Client) (*tls.Config, error) {
	env := EnvTLS{}
	if err := envconfig.Process(ctx, &env); err != nil {
		return nil, err
	}

	certmagic.DefaultACME.DNS01Solver = &certmagic.DNS01Solver{
		DNSProvider: &porkbun.Provider{
			APIKey:       env.PorkbunAPIKey,
			APISecretKey: env.PorkbunAPISecret,
		},
	}

	certmagic.Default.Storage = &certStore{
		rdb:    rdb,
		locker: redislock.New(rdb),
	}

	return certmagic.TLS([]string{domain})
}
