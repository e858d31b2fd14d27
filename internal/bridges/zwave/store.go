package zwave

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-zwave/internal/device"
	"github.com/nerrad567/gray-logic-zwave/internal/driver"
	"github.com/nerrad567/gray-logic-zwave/internal/infrastructure/database"
)

const maxSceneID = 255

// NodeMeta is the user-assigned metadata of a node.
type NodeMeta struct {
	HomeID   uint32
	NodeID   uint8
	Name     string
	Location string
}

// SceneValue is one stored scene assignment.
type SceneValue struct {
	Ref   driver.ValueRef
	Value device.Value
}

// Store persists network state the daemon does not keep: node names and
// locations, and the scene table.
type Store struct {
	db  *database.DB
	now func() time.Time
}

// NewStore wraps a migrated database.
func NewStore(db *database.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

// Nodes returns every stored node.
func (s *Store) Nodes(ctx context.Context) ([]NodeMeta, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT home_id, node_id, name, location FROM nodes ORDER BY home_id, node_id")
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	defer rows.Close()

	var out []NodeMeta
	for rows.Next() {
		var n NodeMeta
		if err := rows.Scan(&n.HomeID, &n.NodeID, &n.Name, &n.Location); err != nil {
			return nil, fmt.Errorf("scanning node: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// SaveNodes upserts nodes in one transaction.
func (s *Store) SaveNodes(ctx context.Context, nodes []NodeMeta) error {
	if len(nodes) == 0 {
		return nil
	}
	stamp := s.stamp()
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, n := range nodes {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO nodes (home_id, node_id, name, location, updated_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT (home_id, node_id) DO UPDATE SET
					name = excluded.name,
					location = excluded.location,
					updated_at = excluded.updated_at`,
				n.HomeID, n.NodeID, n.Name, n.Location, stamp)
			if err != nil {
				return fmt.Errorf("saving node %d: %w", n.NodeID, err)
			}
		}
		return nil
	})
}

// DeleteNodes forgets every node of a network.
func (s *Store) DeleteNodes(ctx context.Context, homeID uint32) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM nodes WHERE home_id = ?", homeID)
	return err
}

// Scenes returns the scene table ordered by id.
func (s *Store) Scenes(ctx context.Context) ([]driver.SceneInfo, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, label FROM scenes ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying scenes: %w", err)
	}
	defer rows.Close()

	var out []driver.SceneInfo
	for rows.Next() {
		var sc driver.SceneInfo
		if err := rows.Scan(&sc.ID, &sc.Label); err != nil {
			return nil, fmt.Errorf("scanning scene: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// CreateScene stores a scene under the lowest free id.
func (s *Store) CreateScene(ctx context.Context, label string) (uint8, error) {
	var id uint8
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var next int
		// Lowest id with no successor taken, or 1 if the table is empty.
		err := tx.QueryRowContext(ctx, `
			SELECT CASE WHEN NOT EXISTS (SELECT 1 FROM scenes WHERE id = 1) THEN 1
			ELSE (SELECT MIN(a.id) + 1 FROM scenes a
			      WHERE NOT EXISTS (SELECT 1 FROM scenes b WHERE b.id = a.id + 1))
			END`).Scan(&next)
		if err != nil {
			return fmt.Errorf("allocating scene id: %w", err)
		}
		if next > maxSceneID {
			return ErrSceneTableFull
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO scenes (id, label, created_at) VALUES (?, ?, ?)",
			next, label, s.stamp()); err != nil {
			return fmt.Errorf("inserting scene: %w", err)
		}
		id = uint8(next)
		return nil
	})
	return id, err
}

// RemoveScene deletes a scene and its values.
func (s *Store) RemoveScene(ctx context.Context, sceneID uint8) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM scenes WHERE id = ?", sceneID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSceneNotFound
	}
	return nil
}

// SetSceneValue stores or replaces one scene assignment.
func (s *Store) SetSceneValue(ctx context.Context, sceneID uint8, ref driver.ValueRef, v device.Value) error {
	if err := s.sceneExists(ctx, sceneID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scene_values (scene_id, home_id, node_id, value_id, value_type, value)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (scene_id, value_id) DO UPDATE SET
			value_type = excluded.value_type,
			value = excluded.value`,
		sceneID, ref.HomeID, ref.NodeID, int64(ref.ValueID), string(v.Type()), v.String())
	return err
}

// RemoveSceneValue drops one scene assignment. Removing an absent value is
// not an error.
func (s *Store) RemoveSceneValue(ctx context.Context, sceneID uint8, ref driver.ValueRef) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM scene_values WHERE scene_id = ? AND value_id = ?",
		sceneID, int64(ref.ValueID))
	return err
}

// SceneValues returns the assignments of a scene.
func (s *Store) SceneValues(ctx context.Context, sceneID uint8) ([]SceneValue, error) {
	if err := s.sceneExists(ctx, sceneID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT home_id, node_id, value_id, value_type, value
		FROM scene_values WHERE scene_id = ? ORDER BY node_id, value_id`, sceneID)
	if err != nil {
		return nil, fmt.Errorf("querying scene values: %w", err)
	}
	defer rows.Close()

	var out []SceneValue
	for rows.Next() {
		var (
			sv       SceneValue
			valueID  int64
			typ, txt string
		)
		if err := rows.Scan(&sv.Ref.HomeID, &sv.Ref.NodeID, &valueID, &typ, &txt); err != nil {
			return nil, fmt.Errorf("scanning scene value: %w", err)
		}
		sv.Ref.ValueID = uint64(valueID)
		v, err := device.Parse(device.ValueType(typ), txt, nil)
		if err != nil {
			return nil, fmt.Errorf("scene %d value %d: %w", sceneID, sv.Ref.ValueID, err)
		}
		sv.Value = v
		out = append(out, sv)
	}
	return out, rows.Err()
}

func (s *Store) sceneExists(ctx context.Context, sceneID uint8) error {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM scenes WHERE id = ?", sceneID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSceneNotFound
	}
	return err
}
