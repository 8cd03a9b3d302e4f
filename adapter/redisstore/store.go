package redisstore

import (
	"context"
	"fmt"

	redis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leeforge/strata/adapter"
	apperrors "github.com/leeforge/strata/errors"
	"github.com/leeforge/strata/json"
)

// IDMode selects how NextID allocates ids.
type IDMode string

const (
	// IDSequence uses INCR on "<prefix>:seq".
	IDSequence IDMode = "sequence"
	// IDUUID generates random UUIDs.
	IDUUID IDMode = "uuid"
)

// Store keeps each document as JSON under "<prefix>:<type>:<id>" and the
// ids of a type in the set "<prefix>:<type>:ids".
type Store struct {
	client    redis.UniversalClient
	prefix    string
	idMode    IDMode
	ownClient bool
	logger    *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key prefix (default "strata").
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithIDMode selects sequence (default) or uuid ids.
func WithIDMode(mode IDMode) Option {
	return func(s *Store) { s.idMode = mode }
}

// WithOwnedClient makes Close close the client.
func WithOwnedClient() Option {
	return func(s *Store) { s.ownClient = true }
}

// WithLogger sets the diagnostics logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a store on client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: "strata",
		idMode: IDSequence,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) docKey(typ, id string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, typ, id)
}

func (s *Store) idsKey(typ string) string {
	return fmt.Sprintf("%s:%s:ids", s.prefix, typ)
}

func (s *Store) seqKey() string {
	return s.prefix + ":seq"
}

func (s *Store) Load(ctx context.Context, typ, id string) (adapter.Document, bool, error) {
	raw, err := s.client.Get(ctx, s.docKey(typ, id)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.WrapWithType(err, apperrors.ErrorTypeAdapter, "redis load "+s.docKey(typ, id))
	}
	doc, err := decode(raw)
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

func (s *Store) Scan(ctx context.Context, typ string) ([]adapter.Document, error) {
	ids, err := s.client.SMembers(ctx, s.idsKey(typ)).Result()
	if err != nil {
		return nil, apperrors.WrapWithType(err, apperrors.ErrorTypeAdapter, "redis scan "+typ)
	}
	out := []adapter.Document{}
	if len(ids) == 0 {
		return out, nil
	}
	adapter.SortIDs(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.docKey(typ, id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, apperrors.WrapWithType(err, apperrors.ErrorTypeAdapter, "redis scan "+typ)
	}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			s.logger.Debug("dangling id in index", zap.String("type", typ), zap.String("id", ids[i]))
			continue
		}
		doc, err := decode([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func (s *Store) Save(ctx context.Context, typ, id string, doc adapter.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s:%s: %w", typ, id, err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.docKey(typ, id), raw, 0)
		pipe.SAdd(ctx, s.idsKey(typ), id)
		return nil
	})
	if err != nil {
		return apperrors.WrapWithType(err, apperrors.ErrorTypeAdapter, "redis save "+s.docKey(typ, id))
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, typ, id string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.docKey(typ, id))
		pipe.SRem(ctx, s.idsKey(typ), id)
		return nil
	})
	if err != nil {
		return apperrors.WrapWithType(err, apperrors.ErrorTypeAdapter, "redis remove "+s.docKey(typ, id))
	}
	return nil
}

func (s *Store) NextID(ctx context.Context, _ string) (any, error) {
	if s.idMode == IDUUID {
		return uuid.NewString(), nil
	}
	n, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return nil, apperrors.WrapWithType(err, apperrors.ErrorTypeAdapter, "redis allocate id")
	}
	return n, nil
}

// Close closes the client when the store owns it.
func (s *Store) Close() error {
	if !s.ownClient {
		return nil
	}
	return s.client.Close()
}

func decode(raw []byte) (adapter.Document, error) {
	var doc adapter.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// Ensure Store implements adapter.Store.
var _ adapter.Store = (*Store)(nil)
