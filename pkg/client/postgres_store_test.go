package client

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/morezero/api-dispatcher/pkg/db"
)

const postgresStoreTestPrefix = "client:postgres_store_test"

type fakeReader struct {
	row *db.ActiveClient
	err error
}

func (f *fakeReader) GetActiveClientByField(_ context.Context, _, _ string) (*db.ActiveClient, error) {
	return f.row, f.err
}

func TestPostgresStore_GetByField(t *testing.T) {
	store := NewPostgresStore(&fakeReader{row: &db.ActiveClient{
		ID:     "c-1",
		Code:   "fizzmod",
		Status: db.ClientStatusActive,
		Data:   json.RawMessage(`{"name": "Fizzmod", "code": "ignored"}`),
	}})

	got, err := store.GetByField(context.Background(), "code", "fizzmod")
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", postgresStoreTestPrefix, err)
	}
	want := map[string]any{"id": "c-1", "code": "fizzmod", "status": db.ClientStatusActive, "name": "Fizzmod"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("%s - got %v, want %v", postgresStoreTestPrefix, got, want)
	}
}

func TestPostgresStore_NotFound(t *testing.T) {
	got, err := NewPostgresStore(&fakeReader{}).GetByField(context.Background(), "code", "x")
	if got != nil || err != nil {
		t.Errorf("%s - expected nil, nil; got %v, %v", postgresStoreTestPrefix, got, err)
	}
}

func TestPostgresStore_Errors(t *testing.T) {
	if _, err := NewPostgresStore(&fakeReader{err: errors.New("down")}).GetByField(context.Background(), "code", "x"); err == nil {
		t.Errorf("%s - expected reader error", postgresStoreTestPrefix)
	}
	bad := &fakeReader{row: &db.ActiveClient{Code: "x", Data: json.RawMessage(`[1]`)}}
	if _, err := NewPostgresStore(bad).GetByField(context.Background(), "code", "x"); err == nil {
		t.Errorf("%s - expected decode error", postgresStoreTestPrefix)
	}
}
