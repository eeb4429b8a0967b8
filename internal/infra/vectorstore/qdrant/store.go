// Package qdrant adapts github.com/qdrant/go-client to rag.VectorStore.
package qdrant

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/yanqian/ragserver/internal/domain/rag"
)

const (
	payloadDocumentID = "document_id"
	payloadText        = "text"
	payloadPage         = "page"
	payloadOffset       = "offset"
)

// Store is the sole owner of Qdrant gRPC operations for one collection.
type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

// New dials Qdrant at addr and binds to collection. The connection is not
// verified until the first call.
func New(addr, collection string) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant: dial %s: %w", addr, err)
	}
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// Close closes the underlying gRPC connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// CreateCollection creates the bound collection with cosine distance if it
// does not already exist.
func (s *Store) CreateCollection(ctx context.Context, cfg rag.CollectionConfig) error {
	exists, err := s.CollectionExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(cfg.Dimensions),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant: create collection %s: %w", s.collection, err)
	}
	return nil
}

// CollectionExists reports whether the bound collection is present.
func (s *Store) CollectionExists(ctx context.Context) (bool, error) {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return false, fmt.Errorf("qdrant: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == s.collection {
			return true, nil
		}
	}
	return false, nil
}

// CollectionVectorSize returns the configured vector dimensionality of the
// bound collection, used by the startup dimensional-mismatch check.
func (s *Store) CollectionVectorSize(ctx context.Context) (int, error) {
	info, err := s.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: s.collection})
	if err != nil {
		return 0, fmt.Errorf("qdrant: get collection %s: %w", s.collection, err)
	}
	params := info.GetResult().GetConfig().GetParams()
	return int(params.GetVectorsConfig().GetParams().GetSize()), nil
}

// DeleteCollection drops the bound collection.
func (s *Store) DeleteCollection(ctx context.Context) error {
	_, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: s.collection})
	if err != nil {
		return fmt.Errorf("qdrant: delete collection %s: %w", s.collection, err)
	}
	return nil
}

// Upsert stores chunk/embedding pairs as points, carrying enough payload to
// reconstruct a Chunk from a search hit without a second lookup.
func (s *Store) Upsert(ctx context.Context, records []rag.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		payload := map[string]*pb.Value{
			payloadDocumentID: {Kind: &pb.Value_StringValue{StringValue: r.Chunk.DocumentID.String()}},
			payloadText:       {Kind: &pb.Value_StringValue{StringValue: r.Chunk.Text}},
			payloadOffset:     {Kind: &pb.Value_IntegerValue{IntegerValue: int64(r.Chunk.Offset)}},
		}
		if r.Chunk.Page != nil {
			payload[payloadPage] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(*r.Chunk.Page)}}
		}
		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: r.Chunk.ID.String()}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: r.Embedding}}},
			Payload: payload,
		}
	}
	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert %d points: %w", len(records), err)
	}
	return nil
}

// Search performs k-NN similarity search and reconstructs Chunks from the
// stored payload.
func (s *Store) Search(ctx context.Context, embedding rag.Embedding, topK int) ([]rag.SearchResult, error) {
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         embedding,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search: %w", err)
	}
	results := make([]rag.SearchResult, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		chunk, err := chunkFromPoint(r.GetId().GetUuid(), r.GetPayload())
		if err != nil {
			continue
		}
		results = append(results, rag.SearchResult{Chunk: chunk, Score: float64(r.GetScore())})
	}
	return results, nil
}

// Delete removes points by chunk id.
func (s *Store) Delete(ctx context.Context, ids []rag.ChunkID) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id.String()}}
	}
	wait := true
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete %d points: %w", len(ids), err)
	}
	return nil
}

func chunkFromPoint(pointUUID string, payload map[string]*pb.Value) (rag.Chunk, error) {
	id, err := parseUUID(pointUUID)
	if err != nil {
		return rag.Chunk{}, err
	}
	docID, err := parseUUID(payload[payloadDocumentID].GetStringValue())
	if err != nil {
		return rag.Chunk{}, err
	}
	chunk := rag.Chunk{
		ID:         id,
		DocumentID: docID,
		Text:       payload[payloadText].GetStringValue(),
		Offset:     int(payload[payloadOffset].GetIntegerValue()),
	}
	if v, ok := payload[payloadPage]; ok {
		page := int(v.GetIntegerValue())
		chunk.Page = &page
	}
	return chunk, nil
}

var _ rag.VectorStore = (*Store)(nil)
