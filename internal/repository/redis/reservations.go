package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shestoi/stockflow/internal/repository"
)

// indexKey - zset всех резервов, score = created_at в микросекундах, member = sessionID|reservationID
const indexKey = "reservations:index"

// dropStaleScript удаляет запись индекса, только если поля резерва всё ещё нет.
// KEYS[1] индекс, KEYS[i+1] hash сессии; ARGV[2i-1] член индекса, ARGV[2i] ID резерва
var dropStaleScript = redis.NewScript(`
local removed = 0
for i = 2, #KEYS do
	local member = ARGV[2 * (i - 1) - 1]
	local field = ARGV[2 * (i - 1)]
	if redis.call("HEXISTS", KEYS[i], field) == 0 then
		removed = removed + redis.call("ZREM", KEYS[1], member)
	end
end
return removed
`)

// reservationValue значение поля hash сессии
type reservationValue struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	CreatedAt time.Time       `json:"created_at"`
}

// ReservationStore реализует repository.ReservationStore используя Redis
// Резервы сессии лежат в hash reservations:{sessionID}, поле - ID резерва
type ReservationStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewReservationStore создаёт Redis хранилище резервов
func NewReservationStore(client *redis.Client, logger *zap.Logger) *ReservationStore {
	return &ReservationStore{
		client: client,
		logger: logger,
	}
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("reservations:%s", sessionID)
}

func indexMember(sessionID, reservationID string) string {
	return sessionID + "|" + reservationID
}

func score(t time.Time) float64 {
	return float64(t.UnixMicro())
}

func decode(sessionID, reservationID, raw string) (repository.Reservation, error) {
	var v reservationValue
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return repository.Reservation{}, fmt.Errorf("decode reservation %s: %w", reservationID, err)
	}
	return repository.Reservation{
		ID:        reservationID,
		SessionID: sessionID,
		ProductID: v.ProductID,
		Quantity:  v.Quantity,
		UnitPrice: v.UnitPrice,
		CreatedAt: v.CreatedAt.UTC(),
	}, nil
}

// Insert сохраняет резерв и индексирует его по времени создания
func (s *ReservationStore) Insert(ctx context.Context, res repository.Reservation) error {
	raw, err := json.Marshal(reservationValue{
		ProductID: res.ProductID,
		Quantity:  res.Quantity,
		UnitPrice: res.UnitPrice,
		CreatedAt: res.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode reservation %s: %w", res.ID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, sessionKey(res.SessionID), res.ID, raw)
	pipe.ZAdd(ctx, indexKey, redis.Z{Score: score(res.CreatedAt), Member: indexMember(res.SessionID, res.ID)})
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("failed to store reservation in redis",
			zap.Error(err),
			zap.String("session_id", res.SessionID),
			zap.String("reservation_id", res.ID),
		)
		return fmt.Errorf("store reservation %s: %w", res.ID, err)
	}
	return nil
}

// Get возвращает резерв сессии
func (s *ReservationStore) Get(ctx context.Context, sessionID, reservationID string) (repository.Reservation, error) {
	raw, err := s.client.HGet(ctx, sessionKey(sessionID), reservationID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return repository.Reservation{}, repository.ErrNotFound
		}
		return repository.Reservation{}, fmt.Errorf("get reservation %s: %w", reservationID, err)
	}
	return decode(sessionID, reservationID, raw)
}

// Take читает и удаляет резерв в одном MULTI
// Второй конкурентный Take видит уже пустое поле и получает ErrNotFound
func (s *ReservationStore) Take(ctx context.Context, sessionID, reservationID string) (repository.Reservation, error) {
	key := sessionKey(sessionID)

	var get *redis.StringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.HGet(ctx, key, reservationID)
		pipe.HDel(ctx, key, reservationID)
		pipe.ZRem(ctx, indexKey, indexMember(sessionID, reservationID))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return repository.Reservation{}, fmt.Errorf("take reservation %s: %w", reservationID, err)
	}

	raw, err := get.Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return repository.Reservation{}, repository.ErrNotFound
		}
		return repository.Reservation{}, fmt.Errorf("take reservation %s: %w", reservationID, err)
	}
	return decode(sessionID, reservationID, raw)
}

// ListCreatedBefore возвращает резервы старше cutoff, от старых к новым
// Записи индекса без резерва удаляются по пути, если резерв так и не появился
func (s *ReservationStore) ListCreatedBefore(ctx context.Context, cutoff time.Time) ([]repository.Reservation, error) {
	members, err := s.client.ZRangeByScore(ctx, indexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMicro(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list reservation index: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	type ref struct{ sessionID, reservationID string }
	refs := make([]ref, 0, len(members))
	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, 0, len(members))
	for _, m := range members {
		i := strings.LastIndex(m, "|")
		if i < 0 {
			continue
		}
		r := ref{sessionID: m[:i], reservationID: m[i+1:]}
		refs = append(refs, r)
		cmds = append(cmds, pipe.HGet(ctx, sessionKey(r.sessionID), r.reservationID))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("load expired reservations: %w", err)
	}

	out := make([]repository.Reservation, 0, len(refs))
	staleKeys := []string{indexKey}
	var staleArgs []interface{}
	for i, cmd := range cmds {
		raw, err := cmd.Result()
		if errors.Is(err, redis.Nil) {
			staleKeys = append(staleKeys, sessionKey(refs[i].sessionID))
			staleArgs = append(staleArgs, indexMember(refs[i].sessionID, refs[i].reservationID), refs[i].reservationID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load reservation %s: %w", refs[i].reservationID, err)
		}
		res, err := decode(refs[i].sessionID, refs[i].reservationID, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}

	if len(staleArgs) > 0 {
		// резерв мог вернуться через Insert после HGET, такую запись индекса оставляем
		if err := dropStaleScript.Run(ctx, s.client, staleKeys, staleArgs...).Err(); err != nil {
			s.logger.Warn("failed to drop stale reservation index entries", zap.Error(err), zap.Int("count", len(staleKeys)-1))
		}
	}
	return out, nil
}
