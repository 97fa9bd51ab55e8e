package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dagger/internal/core/errors"
	"dagger/internal/core/ports"
	"dagger/internal/engine/graph"

	"github.com/google/uuid"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "dagger.db"), 0)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func node() graph.NodeID { return graph.NodeID(uuid.New()) }

func TestStore_InsertGetFindDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	team := graph.TeamID(uuid.New())
	a, b, c := node(), node(), node()
	adj := graph.NewAdjacency()
	adj.AddEdge(a, b)
	adj.AddEdge(c, b)
	comp := graph.Component{ID: graph.NewComponentID(), TeamID: team, Adjacency: adj}

	err := s.WithinTx(ctx, func(tx ports.ComponentTx) error {
		return tx.Insert(ctx, comp)
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.Get(ctx, comp.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TeamID != team || got.Adjacency.EdgeCount() != 2 || !got.Adjacency.HasEdge(c, b) {
		t.Fatalf("unexpected component: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be populated")
	}

	err = s.WithinTx(ctx, func(tx ports.ComponentTx) error {
		found, err := tx.FindByNodes(ctx, []graph.NodeID{b, node()})
		if err != nil {
			return err
		}
		if len(found) != 1 || found[0].ID != comp.ID {
			t.Fatalf("expected one component for node b, got %d", len(found))
		}
		none, err := tx.FindByNodes(ctx, []graph.NodeID{node()})
		if err != nil {
			return err
		}
		if len(none) != 0 {
			t.Fatalf("expected no component for unknown node, got %d", len(none))
		}
		return tx.Delete(ctx, comp.ID)
	})
	if err != nil {
		t.Fatalf("find/delete: %v", err)
	}

	if _, err := s.Get(ctx, comp.ID); !errors.IsCode(err, errors.CodeComponentNotFound) {
		t.Fatalf("expected COMPONENT_NOT_FOUND after delete, got %v", err)
	}

	var edgeRows int
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM dag_edges`).Scan(&edgeRows); err != nil {
		t.Fatal(err)
	}
	if edgeRows != 0 {
		t.Fatalf("expected edge rows to be removed with the component, got %d", edgeRows)
	}
}

func TestStore_UpdateRewritesEdges(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	a, b, c := node(), node(), node()
	adj := graph.NewAdjacency()
	adj.AddEdge(a, b)
	comp := graph.Component{ID: graph.NewComponentID(), TeamID: graph.TeamID(uuid.New()), Adjacency: adj}
	if err := s.WithinTx(ctx, func(tx ports.ComponentTx) error { return tx.Insert(ctx, comp) }); err != nil {
		t.Fatal(err)
	}

	comp.Adjacency.AddEdge(b, c)
	if err := s.WithinTx(ctx, func(tx ports.ComponentTx) error { return tx.Update(ctx, comp) }); err != nil {
		t.Fatalf("update: %v", err)
	}

	var edgeRows int
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM dag_edges WHERE component_id = ?`, comp.ID.String()).Scan(&edgeRows); err != nil {
		t.Fatal(err)
	}
	if edgeRows != 2 {
		t.Fatalf("expected 2 edge rows after update, got %d", edgeRows)
	}

	missing := graph.Component{ID: graph.NewComponentID(), Adjacency: adj}
	err := s.WithinTx(ctx, func(tx ports.ComponentTx) error { return tx.Update(ctx, missing) })
	if !errors.IsCode(err, errors.CodeComponentNotFound) {
		t.Fatalf("expected COMPONENT_NOT_FOUND updating unknown record, got %v", err)
	}
}

func TestStore_WithinTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	adj := graph.NewAdjacency()
	adj.AddEdge(node(), node())
	comp := graph.Component{ID: graph.NewComponentID(), TeamID: graph.TeamID(uuid.New()), Adjacency: adj}

	sentinel := errors.New(errors.CodeCycleRejected, "boom")
	err := s.WithinTx(ctx, func(tx ports.ComponentTx) error {
		if err := tx.Insert(ctx, comp); err != nil {
			return err
		}
		return sentinel
	})
	if err != sentinel {
		t.Fatalf("expected callback error to pass through untouched, got %v", err)
	}
	if _, err := s.Get(ctx, comp.ID); !errors.IsCode(err, errors.CodeComponentNotFound) {
		t.Fatalf("expected rolled back insert, got %v", err)
	}
}

func TestStore_WithinTxRollsBackOnCancel(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	adj := graph.NewAdjacency()
	adj.AddEdge(node(), node())
	comp := graph.Component{ID: graph.NewComponentID(), TeamID: graph.TeamID(uuid.New()), Adjacency: adj}

	err := s.WithinTx(ctx, func(tx ports.ComponentTx) error {
		if err := tx.Insert(ctx, comp); err != nil {
			return err
		}
		cancel()
		return nil
	})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if _, err := s.Get(context.Background(), comp.ID); !errors.IsCode(err, errors.CodeComponentNotFound) {
		t.Fatalf("expected cancelled transaction to leave nothing behind, got %v", err)
	}
}

func TestStore_ListByTeamIsOrderedAndScoped(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	team, other := graph.TeamID(uuid.New()), graph.TeamID(uuid.New())
	var ids []graph.ComponentID
	for i := 0; i < 3; i++ {
		adj := graph.NewAdjacency()
		adj.AddEdge(node(), node())
		c := graph.Component{ID: graph.NewComponentID(), TeamID: team, Adjacency: adj}
		if err := s.WithinTx(ctx, func(tx ports.ComponentTx) error { return tx.Insert(ctx, c) }); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, c.ID)
	}
	adj := graph.NewAdjacency()
	adj.AddEdge(node(), node())
	foreign := graph.Component{ID: graph.NewComponentID(), TeamID: other, Adjacency: adj}
	if err := s.WithinTx(ctx, func(tx ports.ComponentTx) error { return tx.Insert(ctx, foreign) }); err != nil {
		t.Fatal(err)
	}

	first, err := s.ListByTeam(ctx, team)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.ListByTeam(ctx, team)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("expected 3 components for team, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("expected identical ordering across reads")
		}
		if first[i].TeamID != team {
			t.Fatalf("component from another team leaked into listing")
		}
	}
}

func TestStore_CorruptAdjacencyIsStorageError(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id := graph.NewComponentID()
	_, err := s.DB().Exec(`INSERT INTO dag_components (component_id, team_id, adjacency, created_at_ms, updated_at_ms) VALUES (?, ?, ?, 0, 0)`,
		id.String(), uuid.NewString(), `{"nope":[]}`)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, id); !errors.IsCode(err, errors.CodeStorage) {
		t.Fatalf("expected STORAGE_ERROR for corrupt adjacency, got %v", err)
	}
}

func TestOpenSQLite_RejectsDirectoryPath(t *testing.T) {
	_, err := OpenSQLite(t.TempDir(), 0)
	if err == nil || !strings.Contains(err.Error(), "is a directory") {
		t.Fatalf("expected directory error, got %v", err)
	}
}

func TestEnsureSchema_DetectsNewerVersionDrift(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dagger.db")
	s, err := OpenSQLite(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.DB().Exec(`INSERT OR REPLACE INTO schema_migrations(version) VALUES (?)`, SchemaVersion+1); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	db, err := sql.Open(string(DialectSQLite), "file:"+path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	err = EnsureSchema(db, DialectSQLite)
	if err == nil || !strings.Contains(err.Error(), "newer than supported") {
		t.Fatalf("expected drift error, got %v", err)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(Options{Driver: "oracle"}); err == nil {
		t.Fatal("expected unsupported driver error")
	}
	if _, err := Open(Options{Driver: "postgres"}); err == nil {
		t.Fatal("expected empty dsn error")
	}
}

func TestDialectRebind(t *testing.T) {
	q := `SELECT * FROM t WHERE a = ? AND b IN (` + Placeholders(2) + `)`
	if got := DialectPostgres.Rebind(q); got != `SELECT * FROM t WHERE a = $1 AND b IN ($2, $3)` {
		t.Fatalf("unexpected postgres rebind: %s", got)
	}
	if got := DialectSQLite.Rebind(q); got != q {
		t.Fatalf("sqlite rebind must be identity, got %s", got)
	}
}

func TestStore_BusyDatabaseIsConflict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dagger.db")
	holder, err := OpenSQLite(path, 0)
	if err != nil {
		t.Fatalf("open holder: %v", err)
	}
	defer holder.Close()
	waiter, err := OpenSQLite(path, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("open waiter: %v", err)
	}
	defer waiter.Close()

	locked, release := make(chan struct{}), make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- holder.WithinTx(context.Background(), func(ports.ComponentTx) error {
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	err = waiter.WithinTx(context.Background(), func(ports.ComponentTx) error {
		t.Error("callback must not run while another writer holds the database")
		return nil
	})
	close(release)
	if !errors.IsCode(err, errors.CodeConflict) {
		t.Fatalf("expected CONFLICT for a busy database, got %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("holder transaction failed: %v", err)
	}
}

func TestClassify_UnrelatedBusyTextIsStorageError(t *testing.T) {
	err := classify("write", fmt.Errorf("device or resource busy"))
	if !errors.IsCode(err, errors.CodeStorage) {
		t.Fatalf("expected STORAGE_ERROR, got %v", err)
	}
}
