// Package qdrant implements vectorstore.Store on a Qdrant server over gRPC.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/poiesic/ragsync/vectorstore"
)

const (
	// DefaultPort is Qdrant's gRPC port.
	DefaultPort = 6334

	// DefaultRequestTimeout bounds every call to the server.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultMaxMessageSize is the gRPC send/receive limit.
	DefaultMaxMessageSize = 50 * 1024 * 1024
)

// Payload keys.
const (
	keyText       = "text"
	keyDocumentID = "documentId"
	keyCategoryID = "categoryId"
	keyTitle      = "title"
)

var (
	// ErrCollectionRequired is returned when no collection name is configured.
	ErrCollectionRequired = errors.New("qdrant collection name required")

	// ErrInvalidURL is returned when the server URL cannot be parsed.
	ErrInvalidURL = errors.New("invalid qdrant url")
)

// Config holds connection settings.
type Config struct {
	// URL is host:port, or http(s)://host:port. https enables TLS.
	URL            string
	APIKey         string
	Collection     string
	RequestTimeout time.Duration
}

// api is the subset of *qdrant.Client the store uses.
type api interface {
	GetCollectionInfo(ctx context.Context, collectionName string) (*qdrant.CollectionInfo, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Close() error
}

// Store is a vectorstore.Store backed by one Qdrant collection.
type Store struct {
	client     api
	collection string
	timeout    time.Duration
	logger     *slog.Logger
}

var _ vectorstore.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewStore connects to the Qdrant server described by cfg.
func NewStore(cfg Config, opts ...Option) (*Store, error) {
	host, port, useTLS, err := parseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	qcfg := &qdrant.Config{
		Host:   host,
		Port:   port,
		UseTLS: useTLS,
		APIKey: cfg.APIKey,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(DefaultMaxMessageSize),
				grpc.MaxCallSendMsgSize(DefaultMaxMessageSize),
			),
		},
	}
	if !useTLS {
		qcfg.GrpcOptions = append(qcfg.GrpcOptions, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	client, err := qdrant.NewClient(qcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	s, err := newStore(client, cfg, opts...)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	s.logger.Info("qdrant store configured", "host", host, "port", port, "tls", useTLS, "collection", cfg.Collection)
	return s, nil
}

func newStore(client api, cfg Config, opts ...Option) (*Store, error) {
	if cfg.Collection == "" {
		return nil, ErrCollectionRequired
	}

	s := &Store{
		client:     client,
		collection: cfg.Collection,
		timeout:    cfg.RequestTimeout,
		logger:     slog.Default(),
	}
	if s.timeout <= 0 {
		s.timeout = DefaultRequestTimeout
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "qdrant-store")
	return s, nil
}

// parseURL splits a server URL into host, port and TLS flag.
func parseURL(raw string) (string, int, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", 0, false, fmt.Errorf("%w: empty", ErrInvalidURL)
	}

	useTLS := false
	hostport := raw
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", 0, false, fmt.Errorf("%w: %w", ErrInvalidURL, err)
		}
		switch u.Scheme {
		case "http":
		case "https":
			useTLS = true
		default:
			return "", 0, false, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
		}
		hostport = u.Host
	}

	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		// No port given.
		return strings.Trim(hostport, "[]"), DefaultPort, useTLS, nil
	}
	if host == "" {
		return "", 0, false, fmt.Errorf("%w: missing host in %q", ErrInvalidURL, raw)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, false, fmt.Errorf("%w: invalid port %q", ErrInvalidURL, portStr)
	}
	return host, port, useTLS, nil
}

// EnsureCollection creates the collection with cosine distance if it is missing.
func (s *Store) EnsureCollection(ctx context.Context, vectorSize uint64) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err == nil && info != nil {
		return nil
	}
	if err != nil {
		if st, ok := status.FromError(err); !ok || st.Code() != codes.NotFound {
			return fmt.Errorf("checking collection %s: %w", s.collection, err)
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		// Another process created it first.
		if st, ok := status.FromError(err); ok && st.Code() == codes.AlreadyExists {
			return nil
		}
		return fmt.Errorf("creating collection %s: %w", s.collection, err)
	}

	s.logger.Info("created collection", "collection", s.collection, "size", vectorSize)
	return nil
}

// UpsertPoints writes points in one request and waits for the write to apply.
func (s *Store) UpsertPoints(ctx context.Context, points []vectorstore.Point) error {
	if len(points) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	qpoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		qpoints[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: toPayload(p.Payload),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qpoints,
	})
	if err != nil {
		return fmt.Errorf("upserting %d points: %w", len(points), notFound(err))
	}
	return nil
}

// DeleteDocument removes every point whose documentId payload matches.
func (s *Store) DeleteDocument(ctx context.Context, documentID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{
						{
							ConditionOneOf: &qdrant.Condition_Field{
								Field: &qdrant.FieldCondition{
									Key: keyDocumentID,
									Match: &qdrant.Match{
										MatchValue: &qdrant.Match_Keyword{Keyword: documentID},
									},
								},
							},
						},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting points of document %s: %w", documentID, notFound(err))
	}
	return nil
}

// Search runs a cosine nearest-neighbour query.
func (s *Store) Search(ctx context.Context, vector []float32, limit int) ([]vectorstore.ScoredPoint, error) {
	if limit < 1 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", s.collection, notFound(err))
	}

	hits := make([]vectorstore.ScoredPoint, 0, len(res))
	for _, r := range res {
		hits = append(hits, vectorstore.ScoredPoint{
			Point: vectorstore.Point{
				ID:      pointID(r.GetId()),
				Payload: fromPayload(r.GetPayload()),
			},
			Score: r.GetScore(),
		})
	}
	return hits, nil
}

// notFound marks a NotFound status as a missing collection.
func notFound(err error) error {
	if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
		return fmt.Errorf("%w: %w", vectorstore.ErrCollectionNotFound, err)
	}
	return err
}

// Close closes the gRPC connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func toPayload(p vectorstore.Payload) map[string]*qdrant.Value {
	payload := map[string]*qdrant.Value{
		keyText:       stringValue(p.Text),
		keyDocumentID: stringValue(p.DocumentID),
		keyCategoryID: stringValue(p.CategoryID),
	}
	if p.Title != "" {
		payload[keyTitle] = stringValue(p.Title)
	}
	return payload
}

func fromPayload(payload map[string]*qdrant.Value) vectorstore.Payload {
	return vectorstore.Payload{
		Text:       payload[keyText].GetStringValue(),
		DocumentID: payload[keyDocumentID].GetStringValue(),
		CategoryID: payload[keyCategoryID].GetStringValue(),
		Title:      payload[keyTitle].GetStringValue(),
	}
}

func stringValue(v string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
}

func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}
