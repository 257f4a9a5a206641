package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/models"
	apperrors "github.com/kyvra-tech/symbol-nodes-tracker-backend/pkg/errors"
)

type mongoNodeRepository struct {
	nodes *mongo.Collection
	ping  func(ctx context.Context) error
}

// NewMongoNodeRepository creates a node repository backed by the given collection
func NewMongoNodeRepository(db *mongo.Database, collection string) NodeRepository {
	return &mongoNodeRepository{
		nodes: db.Collection(collection),
		ping: func(ctx context.Context) error {
			return db.Client().Ping(ctx, nil)
		},
	}
}

func identityFilter(id models.NodeIdentity) bson.M {
	return bson.M{"host": id.Host, "publicKey": id.PublicKey}
}

func (r *mongoNodeRepository) FindOne(ctx context.Context, id models.NodeIdentity) (*models.Node, error) {
	var node models.Node
	err := r.nodes.FindOne(ctx, identityFilter(id)).Decode(&node)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find node %s: %w", id, err)
	}
	return &node, nil
}

func (r *mongoNodeRepository) Create(ctx context.Context, node *models.Node) error {
	now := time.Now().UTC()
	node.CreatedAt = now
	node.UpdatedAt = now

	if _, err := r.nodes.InsertOne(ctx, node); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("create node %s: %w", node.Identity(), apperrors.ErrConflict)
		}
		return fmt.Errorf("create node %s: %w", node.Identity(), err)
	}
	return nil
}

func (r *mongoNodeRepository) UpdatePeer(ctx context.Context, id models.NodeIdentity, peer models.PeerStatus) error {
	return r.setField(ctx, id, "peer", peer)
}

func (r *mongoNodeRepository) UpdateAPI(ctx context.Context, id models.NodeIdentity, api models.APIStatus) error {
	return r.setField(ctx, id, "api", api)
}

func (r *mongoNodeRepository) UpdateVoting(ctx context.Context, id models.NodeIdentity, voting models.VotingStatus) error {
	return r.setField(ctx, id, "voting", voting)
}

func (r *mongoNodeRepository) UpdateHostDetail(ctx context.Context, id models.NodeIdentity, detail *models.HostDetail) error {
	return r.setField(ctx, id, "hostDetail", detail)
}

func (r *mongoNodeRepository) setField(ctx context.Context, id models.NodeIdentity, field string, value interface{}) error {
	update := bson.M{"$set": bson.M{field: value, "updatedAt": time.Now().UTC()}}

	result, err := r.nodes.UpdateOne(ctx, identityFilter(id), update)
	if err != nil {
		return fmt.Errorf("update %s of %s: %w", field, id, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("update %s of %s: %w", field, id, apperrors.ErrNotFound)
	}
	return nil
}

func (r *mongoNodeRepository) FindStale(ctx context.Context, aspect models.Aspect, limit int) ([]*models.Node, error) {
	if !aspect.Valid() {
		return nil, fmt.Errorf("find stale nodes: %w: aspect %q", apperrors.ErrInvalidInput, aspect)
	}

	// Missing and null values sort before any date in ascending order
	opts := options.Find().
		SetSort(bson.D{{Key: string(aspect) + ".lastStatusCheck", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.nodes.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find stale %s nodes: %w", aspect, err)
	}
	return decodeNodes(ctx, cursor)
}

func (r *mongoNodeRepository) FindRandomAPIAvailable(ctx context.Context) (*models.Node, error) {
	nodes, err := r.sample(ctx, bson.M{"api.isAvailable": true}, 1)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return nodes[0], nil
}

func (r *mongoNodeRepository) Find(ctx context.Context, filter models.NodeFilter, limit int) ([]*models.Node, error) {
	query := mongoNodeFilter(filter)
	if limit > 0 {
		return r.sample(ctx, query, limit)
	}

	cursor, err := r.nodes.Find(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("find nodes: %w", err)
	}
	return decodeNodes(ctx, cursor)
}

func (r *mongoNodeRepository) sample(ctx context.Context, match bson.M, size int) ([]*models.Node, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$sample", Value: bson.M{"size": size}}},
	}

	cursor, err := r.nodes.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("sample nodes: %w", err)
	}
	return decodeNodes(ctx, cursor)
}

func (r *mongoNodeRepository) Count(ctx context.Context, filter models.NodeFilter) (int64, error) {
	count, err := r.nodes.CountDocuments(ctx, mongoNodeFilter(filter))
	if err != nil {
		return 0, fmt.Errorf("count nodes: %w", err)
	}
	return count, nil
}

func (r *mongoNodeRepository) Ping(ctx context.Context) error {
	return r.ping(ctx)
}

func decodeNodes(ctx context.Context, cursor *mongo.Cursor) ([]*models.Node, error) {
	defer cursor.Close(ctx)

	nodes := make([]*models.Node, 0)
	if err := cursor.All(ctx, &nodes); err != nil {
		return nil, fmt.Errorf("decode nodes: %w", err)
	}
	return nodes, nil
}

// mongoNodeFilter translates the listing filter into a query document
func mongoNodeFilter(f models.NodeFilter) bson.M {
	query := bson.M{}
	if f.HTTPSEnabled != nil {
		query["api.isHttpsEnabled"] = *f.HTTPSEnabled
	}
	if f.PeerAvailable != nil {
		query["peer.isAvailable"] = *f.PeerAvailable
	}
	if f.APIAvailable != nil {
		query["api.isAvailable"] = *f.APIAvailable
	}
	if f.VotingEnabled != nil {
		query["voting.isVotingEnabled"] = *f.VotingEnabled
	}
	if f.MinTxSearchCountPerPage != nil {
		query["api.txSearchCountPerPage"] = bson.M{"$gte": *f.MinTxSearchCountPerPage}
	}
	return query
}
