package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/models"
	apperrors "github.com/kyvra-tech/symbol-nodes-tracker-backend/pkg/errors"
)

const uniqueViolation = "23505"

const nodeColumns = `host, public_key, peer, api, voting, host_detail, created_at, updated_at`

type postgresNodeRepository struct {
	db *sql.DB
}

// NewPostgresNodeRepository creates a node repository storing each
// sub-record as a JSONB column
func NewPostgresNodeRepository(db *sql.DB) NodeRepository {
	return &postgresNodeRepository{db: db}
}

// checkedAtColumn maps an aspect to its staleness column
func checkedAtColumn(aspect models.Aspect) (string, error) {
	switch aspect {
	case models.AspectPeer:
		return "peer_checked_at", nil
	case models.AspectAPI:
		return "api_checked_at", nil
	case models.AspectVoting:
		return "voting_checked_at", nil
	}
	return "", fmt.Errorf("%w: aspect %q", apperrors.ErrInvalidInput, aspect)
}

func (r *postgresNodeRepository) FindOne(ctx context.Context, id models.NodeIdentity) (*models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE host = $1 AND public_key = $2`

	node, err := scanNode(r.db.QueryRowContext(ctx, query, id.Host, id.PublicKey))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find node %s: %w", id, err)
	}
	return node, nil
}

func (r *postgresNodeRepository) Create(ctx context.Context, node *models.Node) error {
	peer, api, voting, detail, err := marshalSubRecords(node)
	if err != nil {
		return fmt.Errorf("create node %s: %w", node.Identity(), err)
	}

	query := `
		INSERT INTO nodes (
			host, public_key, peer, api, voting, host_detail,
			peer_checked_at, api_checked_at, voting_checked_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	err = r.db.QueryRowContext(ctx, query,
		node.Host, node.PublicKey, string(peer), string(api), string(voting), nullJSON(detail),
		nullTime(node.Peer.LastStatusCheck), nullTime(node.API.LastStatusCheck), nullTime(node.Voting.LastStatusCheck),
	).Scan(&node.CreatedAt, &node.UpdatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("create node %s: %w", node.Identity(), apperrors.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create node %s: %w", node.Identity(), err)
	}
	return nil
}

func (r *postgresNodeRepository) UpdatePeer(ctx context.Context, id models.NodeIdentity, peer models.PeerStatus) error {
	return r.updateAspect(ctx, id, models.AspectPeer, peer, peer.LastStatusCheck)
}

func (r *postgresNodeRepository) UpdateAPI(ctx context.Context, id models.NodeIdentity, api models.APIStatus) error {
	return r.updateAspect(ctx, id, models.AspectAPI, api, api.LastStatusCheck)
}

func (r *postgresNodeRepository) UpdateVoting(ctx context.Context, id models.NodeIdentity, voting models.VotingStatus) error {
	return r.updateAspect(ctx, id, models.AspectVoting, voting, voting.LastStatusCheck)
}

func (r *postgresNodeRepository) updateAspect(ctx context.Context, id models.NodeIdentity, aspect models.Aspect, value interface{}, checkedAt *time.Time) error {
	column, err := checkedAtColumn(aspect)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s status: %w", aspect, err)
	}

	// Column names come from the fixed aspect mapping above
	query := fmt.Sprintf(`UPDATE nodes SET %s = $3, %s = $4, updated_at = NOW() WHERE host = $1 AND public_key = $2`,
		string(aspect), column)

	return r.exec(ctx, id, string(aspect), query, id.Host, id.PublicKey, string(payload), nullTime(checkedAt))
}

func (r *postgresNodeRepository) UpdateHostDetail(ctx context.Context, id models.NodeIdentity, detail *models.HostDetail) error {
	payload, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("marshal host detail: %w", err)
	}

	query := `UPDATE nodes SET host_detail = $3, updated_at = NOW() WHERE host = $1 AND public_key = $2`
	return r.exec(ctx, id, "host detail", query, id.Host, id.PublicKey, nullJSON(payload))
}

func (r *postgresNodeRepository) exec(ctx context.Context, id models.NodeIdentity, what, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s of %s: %w", what, id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s of %s: %w", what, id, err)
	}
	if rows == 0 {
		return fmt.Errorf("update %s of %s: %w", what, id, apperrors.ErrNotFound)
	}
	return nil
}

func (r *postgresNodeRepository) FindStale(ctx context.Context, aspect models.Aspect, limit int) ([]*models.Node, error) {
	column, err := checkedAtColumn(aspect)
	if err != nil {
		return nil, fmt.Errorf("find stale nodes: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM nodes ORDER BY %s ASC NULLS FIRST LIMIT $1`, nodeColumns, column)
	return r.query(ctx, query, limit)
}

func (r *postgresNodeRepository) FindRandomAPIAvailable(ctx context.Context) (*models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE (api->>'isAvailable')::boolean ORDER BY random() LIMIT 1`

	node, err := scanNode(r.db.QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find random api node: %w", err)
	}
	return node, nil
}

func (r *postgresNodeRepository) Find(ctx context.Context, filter models.NodeFilter, limit int) ([]*models.Node, error) {
	where, args := postgresNodeFilter(filter)

	query := `SELECT ` + nodeColumns + ` FROM nodes` + where
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` ORDER BY random() LIMIT $%d`, len(args))
	} else {
		query += ` ORDER BY host, public_key`
	}
	return r.query(ctx, query, args...)
}

func (r *postgresNodeRepository) Count(ctx context.Context, filter models.NodeFilter) (int64, error) {
	where, args := postgresNodeFilter(filter)

	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count nodes: %w", err)
	}
	return count, nil
}

func (r *postgresNodeRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *postgresNodeRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.Node, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()

	nodes := make([]*models.Node, 0)
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNode(row rowScanner) (*models.Node, error) {
	var (
		node              models.Node
		peer, api, voting []byte
		detail            []byte
	)
	if err := row.Scan(&node.Host, &node.PublicKey, &peer, &api, &voting, &detail, &node.CreatedAt, &node.UpdatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(peer, &node.Peer); err != nil {
		return nil, fmt.Errorf("decode peer status: %w", err)
	}
	if err := json.Unmarshal(api, &node.API); err != nil {
		return nil, fmt.Errorf("decode api status: %w", err)
	}
	if err := json.Unmarshal(voting, &node.Voting); err != nil {
		return nil, fmt.Errorf("decode voting status: %w", err)
	}
	if len(detail) > 0 && string(detail) != "null" {
		node.HostDetail = &models.HostDetail{}
		if err := json.Unmarshal(detail, node.HostDetail); err != nil {
			return nil, fmt.Errorf("decode host detail: %w", err)
		}
	}
	return &node, nil
}

func marshalSubRecords(node *models.Node) (peer, api, voting, detail []byte, err error) {
	if peer, err = json.Marshal(node.Peer); err != nil {
		return
	}
	if api, err = json.Marshal(node.API); err != nil {
		return
	}
	if voting, err = json.Marshal(node.Voting); err != nil {
		return
	}
	if node.HostDetail != nil {
		detail, err = json.Marshal(node.HostDetail)
	}
	return
}

func nullJSON(b []byte) sql.NullString {
	if b == nil || string(b) == "null" {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// postgresNodeFilter renders the listing filter as a WHERE clause with
// positional arguments
func postgresNodeFilter(f models.NodeFilter) (string, []interface{}) {
	var (
		conditions []string
		args       []interface{}
	)
	add := func(expr string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(expr, len(args)))
	}

	if f.HTTPSEnabled != nil {
		add(`(api->>'isHttpsEnabled')::boolean = $%d`, *f.HTTPSEnabled)
	}
	if f.PeerAvailable != nil {
		add(`(peer->>'isAvailable')::boolean = $%d`, *f.PeerAvailable)
	}
	if f.APIAvailable != nil {
		add(`(api->>'isAvailable')::boolean = $%d`, *f.APIAvailable)
	}
	if f.VotingEnabled != nil {
		add(`(voting->>'isVotingEnabled')::boolean = $%d`, *f.VotingEnabled)
	}
	if f.MinTxSearchCountPerPage != nil {
		add(`(api->>'txSearchCountPerPage')::int >= $%d`, *f.MinTxSearchCountPerPage)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}
