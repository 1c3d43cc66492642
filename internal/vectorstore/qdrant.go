package vectorstore

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strconv"

	pb "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	defaultGRPCPort = 6334
	restPort        = 6333
)

// QdrantConfig holds connection settings for a Qdrant instance.
type QdrantConfig struct {
	// URL is http(s)://host[:port] of the gRPC endpoint.
	URL    string
	APIKey string
}

// QdrantBackend talks to Qdrant's collections and points gRPC services.
type QdrantBackend struct {
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
	logger      *zap.Logger
}

// NewQdrantBackend dials the Qdrant gRPC endpoint. The connection is
// established lazily on the first call.
func NewQdrantBackend(cfg QdrantConfig, logger *zap.Logger) (*QdrantBackend, error) {
	addr, secure, err := qdrantAddr(cfg.URL, logger)
	if err != nil {
		return nil, err
	}

	creds := insecure.NewCredentials()
	if secure {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if cfg.APIKey != "" {
		opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("qdrant connect %s: %w", addr, err)
	}
	logger.Info("qdrant backend", zap.String("addr", addr), zap.Bool("tls", secure))
	return &QdrantBackend{
		conn:        conn,
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
		logger:      logger,
	}, nil
}

func qdrantAddr(raw string, logger *zap.Logger) (string, bool, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false, fmt.Errorf("qdrant: invalid url %q", raw)
	}
	secure := u.Scheme == "https"
	if !secure && u.Scheme != "http" {
		return "", false, fmt.Errorf("qdrant: unsupported scheme %q", u.Scheme)
	}
	port := defaultGRPCPort
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return "", false, fmt.Errorf("qdrant: invalid port %q", p)
		}
	}
	if port == restPort {
		logger.Warn("qdrant url points at the REST port; using gRPC port instead",
			zap.Int("rest_port", restPort), zap.Int("grpc_port", defaultGRPCPort))
		port = defaultGRPCPort
	}
	return net.JoinHostPort(u.Hostname(), strconv.Itoa(port)), secure, nil
}

func apiKeyInterceptor(key string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", key)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// Collection fetches the collection config and reports its named vectors.
func (c *QdrantBackend) Collection(ctx context.Context, name string) (CollectionInfo, bool, error) {
	resp, err := c.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name})
	if status.Code(err) == codes.NotFound {
		return CollectionInfo{}, false, nil
	}
	if err != nil {
		return CollectionInfo{}, false, fmt.Errorf("get collection %s: %w", name, err)
	}

	info := CollectionInfo{Vectors: make(map[string]int)}
	result := resp.GetResult()
	info.Points = result.GetPointsCount()
	vc := result.GetConfig().GetParams().GetVectorsConfig()
	if params := vc.GetParams(); params != nil {
		// Unnamed default vector.
		info.Vectors[""] = int(params.GetSize())
		info.Distance = distanceFromPB(params.GetDistance())
	}
	for vname, params := range vc.GetParamsMap().GetMap() {
		info.Vectors[vname] = int(params.GetSize())
		info.Distance = distanceFromPB(params.GetDistance())
	}
	return info, true, nil
}

func distanceFromPB(d pb.Distance) Distance {
	if d == pb.Distance_Cosine {
		return DistanceCosine
	}
	return Distance(d.String())
}

// CreateCollection creates name with a single named cosine vector.
func (c *QdrantBackend) CreateCollection(ctx context.Context, name string, schema CollectionSchema) error {
	_, err := c.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_ParamsMap{
				ParamsMap: &pb.VectorParamsMap{
					Map: map[string]*pb.VectorParams{
						schema.VectorName: {
							Size:     uint64(schema.Size),
							Distance: pb.Distance_Cosine,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	return nil
}

var fieldTypes = map[IndexKind]pb.FieldType{
	IndexKeyword:  pb.FieldType_FieldTypeKeyword,
	IndexInteger:  pb.FieldType_FieldTypeInteger,
	IndexFloat:    pb.FieldType_FieldTypeFloat,
	IndexBool:     pb.FieldType_FieldTypeBool,
	IndexText:     pb.FieldType_FieldTypeText,
	IndexDatetime: pb.FieldType_FieldTypeDatetime,
}

// CreatePayloadIndex indexes a payload path.
func (c *QdrantBackend) CreatePayloadIndex(ctx context.Context, name string, index FieldIndex) error {
	ft, ok := fieldTypes[index.Kind]
	if !ok {
		return fmt.Errorf("unsupported index type %q", index.Kind)
	}
	wait := true
	_, err := c.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
		CollectionName: name,
		FieldName:      index.Field,
		FieldType:      &ft,
		Wait:           &wait,
	})
	if err != nil {
		return fmt.Errorf("create index %s on %s: %w", index.Field, name, err)
	}
	return nil
}

// Upsert writes points and waits for them to be applied.
func (c *QdrantBackend) Upsert(ctx context.Context, name string, points []Point) error {
	structs := make([]*pb.PointStruct, 0, len(points))
	for _, p := range points {
		payload, err := pb.TryValueMap(p.Payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		structs = append(structs, &pb.PointStruct{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: p.ID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vectors{
				Vectors: &pb.NamedVectors{Vectors: map[string]*pb.Vector{
					p.VectorName: {Data: p.Vector},
				}},
			}},
			Payload: payload,
		})
	}
	wait := true
	_, err := c.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: name,
		Wait:           &wait,
		Points:         structs,
	})
	if err != nil {
		return fmt.Errorf("upsert %s: %w", name, err)
	}
	return nil
}

// Search performs a nearest-neighbor search and returns the top hits.
func (c *QdrantBackend) Search(ctx context.Context, name string, q Query) ([]ScoredPoint, error) {
	req := &pb.SearchPoints{
		CollectionName: name,
		Vector:         q.Vector,
		Limit:          uint64(q.Limit),
		Filter:         filterToPB(q.Filter),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if q.VectorName != "" {
		req.VectorName = &q.VectorName
	}
	resp, err := c.points.Search(ctx, req)
	if status.Code(err) == codes.NotFound {
		return nil, ErrCollectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", name, err)
	}

	results := make([]ScoredPoint, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		results = append(results, ScoredPoint{
			ID:      pointID(r.GetId()),
			Score:   r.GetScore(),
			Payload: payloadFromPB(r.GetPayload()),
		})
	}
	return results, nil
}

// Close tears down the underlying gRPC connection.
func (c *QdrantBackend) Close() error {
	return c.conn.Close()
}

func pointID(id *pb.PointId) string {
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

func filterToPB(f Filter) *pb.Filter {
	if len(f) == 0 {
		return nil
	}
	must := make([]*pb.Condition, 0, len(f))
	for key, v := range f {
		fc := &pb.FieldCondition{Key: key}
		switch val := v.(type) {
		case string:
			fc.Match = &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: val}}
		case bool:
			fc.Match = &pb.Match{MatchValue: &pb.Match_Boolean{Boolean: val}}
		// Payload numbers are stored as doubles, which an integer match
		// never hits, so every number is matched as a closed range.
		case int:
			fc.Range = pointRange(float64(val))
		case int64:
			fc.Range = pointRange(float64(val))
		case float64:
			fc.Range = pointRange(val)
		default:
			fc.Match = &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: fmt.Sprint(val)}}
		}
		must = append(must, &pb.Condition{ConditionOneOf: &pb.Condition_Field{Field: fc}})
	}
	return &pb.Filter{Must: must}
}

func pointRange(v float64) *pb.Range {
	return &pb.Range{Gte: &v, Lte: &v}
}

func payloadFromPB(payload map[string]*pb.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = valueFromPB(v)
	}
	return out
}

func valueFromPB(v *pb.Value) any {
	switch kind := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return kind.StringValue
	case *pb.Value_IntegerValue:
		return kind.IntegerValue
	case *pb.Value_DoubleValue:
		return kind.DoubleValue
	case *pb.Value_BoolValue:
		return kind.BoolValue
	case *pb.Value_StructValue:
		return payloadFromPB(kind.StructValue.GetFields())
	case *pb.Value_ListValue:
		values := kind.ListValue.GetValues()
		list := make([]any, len(values))
		for i, item := range values {
			list[i] = valueFromPB(item)
		}
		return list
	default:
		return nil
	}
}
