package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/arklim/social-platform-messenger/internal/core/domain"
	"github.com/arklim/social-platform-messenger/internal/repository"
)

func TestRelationshipRepository_GetBlockedEdge(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewRelationshipRepository(mock)

	updatedAt := time.Now().UTC()
	rows := pgxmock.NewRows([]string{"sender_id", "receiver_id", "state", "updated_at"}).
		AddRow(int64(2), int64(1), domain.RelationshipBlocked, updatedAt)

	mock.ExpectQuery(`SELECT .*FROM messenger\.relationships`).
		WithArgs(int64(1), int64(2), domain.RelationshipBlocked).
		WillReturnRows(rows)

	edge, err := repo.GetBlockedEdge(context.Background(), 2, 1)
	if err != nil {
		t.Fatalf("GetBlockedEdge returned error: %v", err)
	}
	if edge.SenderID != 2 || edge.ReceiverID != 1 {
		t.Fatalf("unexpected edge %+v", edge)
	}
	if edge.State != domain.RelationshipBlocked {
		t.Fatalf("expected blocked state, got %s", edge.State)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRelationshipRepository_GetBlockedEdge_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewRelationshipRepository(mock)

	mock.ExpectQuery(`SELECT .*FROM messenger\.relationships`).
		WithArgs(int64(1), int64(9), domain.RelationshipBlocked).
		WillReturnRows(pgxmock.NewRows([]string{"sender_id", "receiver_id", "state", "updated_at"}))

	if _, err := repo.GetBlockedEdge(context.Background(), 9, 1); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRelationshipRepository_UpsertPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewRelationshipRepository(mock)

	// The conflict guard must let the blocker's own edge fall back to
	// pending while leaving the other party's block untouched.
	mock.ExpectExec(`OR messenger\.relationships\.sender_id = EXCLUDED\.sender_id`).
		WithArgs(int64(1), int64(2)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.UpsertPending(context.Background(), 1, 2); err != nil {
		t.Fatalf("UpsertPending returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRelationshipRepository_SetStateBetween_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewRelationshipRepository(mock)

	mock.ExpectExec(`UPDATE messenger\.relationships`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = repo.SetStateBetween(context.Background(), 1, 2, domain.RelationshipFriend)
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRelationshipRepository_ReplaceWithBlock(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewRelationshipRepository(mock)

	mock.ExpectExec(`INSERT INTO messenger\.relationships`).
		WithArgs(int64(3), int64(4)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.ReplaceWithBlock(context.Background(), 3, 4); err != nil {
		t.Fatalf("ReplaceWithBlock returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRelationshipRepository_ListForUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewRelationshipRepository(mock)

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{"sender_id", "receiver_id", "state", "updated_at"}).
		AddRow(int64(1), int64(2), domain.RelationshipFriend, now).
		AddRow(int64(3), int64(1), domain.RelationshipPending, now.Add(-time.Minute))

	mock.ExpectQuery(`SELECT .*FROM messenger\.relationships`).
		WithArgs(int64(1), int64(1)).
		WillReturnRows(rows)

	edges, err := repo.ListForUser(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListForUser returned error: %v", err)
	}
	if len(edges) != 2 {
		t.Fatalf("expected two edges, got %d", len(edges))
	}
	if edges[0].State != domain.RelationshipFriend || edges[1].State != domain.RelationshipPending {
		t.Fatalf("unexpected edge order: %+v", edges)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
