package grpcsvc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
)

const (
	idempotencyKeyHeader = "idempotency-key"
	idempotencyTTL       = 24 * time.Hour

	failedReplayMessage = "previous request with the same idempotency key failed"
)

// idempotent выполняет run не более одного раза на пару (method, idempotency-key).
// Повтор того же запроса получает сохранённый ответ или ту же gRPC-ошибку.
func (s *PaymentService) idempotent(
	ctx context.Context,
	method string,
	req *structpb.Struct,
	run func(context.Context) (*structpb.Struct, error),
) (*structpb.Struct, error) {
	if s.idemRepo == nil {
		return run(ctx)
	}

	key, err := readIdempotencyKey(ctx)
	if err != nil {
		return nil, err
	}
	entry := s.logger.WithFields(log.Fields{"method": method, "idempotency_key": key})

	hash, err := requestHash(method, req)
	if err != nil {
		entry.WithError(err).Warn("failed to hash idempotent request")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}

	record, err := s.idemRepo.Reserve(ctx, method, key, hash, time.Now().UTC().Add(idempotencyTTL))
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return nil, status.Error(codes.AlreadyExists, "idempotency key is already used with different request payload")
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		return replayRecord(entry, record)
	default:
		entry.WithError(err).Warn("failed to reserve idempotency key")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}

	resp, runErr := run(ctx)
	if runErr != nil {
		code := status.Code(runErr)
		if code == codes.OK || code == codes.Unknown {
			code = codes.Internal
		}
		if err := s.idemRepo.Fail(ctx, method, key, []byte(status.Convert(runErr).Message()), uint32(code)); err != nil {
			entry.WithError(err).Warn("failed to store idempotent failure")
		}
		return nil, runErr
	}

	body, err := protojson.Marshal(resp)
	if err == nil {
		err = s.idemRepo.Complete(ctx, method, key, body)
	}
	if err != nil {
		entry.WithError(err).Warn("failed to store idempotent response")
	}
	return resp, nil
}

func replayRecord(entry *log.Entry, record domain.IdempotencyRecord) (*structpb.Struct, error) {
	switch record.Status {
	case domain.IdempotencyStatusDone:
		resp := &structpb.Struct{}
		if err := protojson.Unmarshal(record.Response, resp); err != nil {
			entry.WithError(err).Warn("failed to decode stored idempotent response")
			return nil, status.Error(codes.Internal, "failed to decode stored idempotent response")
		}
		return resp, nil
	case domain.IdempotencyStatusProcessing:
		return nil, status.Error(codes.Aborted, "request with the same idempotency key is already processing")
	case domain.IdempotencyStatusFailed:
		return nil, decodeFailure(record)
	default:
		return nil, status.Error(codes.Internal, "unknown idempotency record status")
	}
}

// decodeFailure восстанавливает сохранённую ошибку; неизвестный код становится Internal.
func decodeFailure(record domain.IdempotencyRecord) error {
	code := codes.Code(record.StatusCode)
	if code == codes.OK || code > codes.Unauthenticated {
		code = codes.Internal
	}
	message := strings.TrimSpace(string(record.Response))
	if message == "" {
		message = failedReplayMessage
	}
	return status.Error(code, message)
}

func readIdempotencyKey(ctx context.Context) (string, error) {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		for _, v := range md.Get(idempotencyKeyHeader) {
			if key := strings.TrimSpace(v); key != "" {
				return key, nil
			}
		}
	}
	return "", status.Error(codes.InvalidArgument, "idempotency-key metadata is required")
}

// requestHash: sha256 от имени метода и детерминированной сериализации запроса.
func requestHash(method string, req proto.Message) (string, error) {
	if req == nil {
		return "", fmt.Errorf("request is nil")
	}
	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(req)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{':'})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}
