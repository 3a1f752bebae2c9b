package store_test

import (
	"errors"
	"testing"

	"github.com/jacentio/lattice/store"
)

func idSet(recs []*store.Record) map[string]bool {
	out := make(map[string]bool, len(recs))
	for _, r := range recs {
		out[r.ID()] = true
	}
	return out
}

// --- Direct (no transaction) operations ---

func TestCollection_DirectCRUD(t *testing.T) {
	coll := newTestCollection(t)

	rec, err := coll.Create(store.Fields{"name": store.StringValue("ada")})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.ID() == "" {
		t.Fatal("expected a fresh id")
	}

	got, err := coll.Get(rec.ID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v, ok := got.Field("name"); !ok || v.Str() != "ada" {
		t.Errorf("expected name \"ada\", got %v", v)
	}

	if err := coll.SetField(rec.ID(), "lang", store.StringValue("go")); err != nil {
		t.Fatalf("SetField: %v", err)
	}
	if v, ok := rec.Field("lang"); !ok || v.Str() != "go" {
		t.Errorf("expected lang \"go\", got %v", v)
	}

	if err := coll.DeleteField(rec.ID(), "lang"); err != nil {
		t.Fatalf("DeleteField: %v", err)
	}
	if _, ok := rec.Field("lang"); ok {
		t.Error("expected lang to be gone")
	}

	if err := coll.Delete(rec.ID()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := coll.Get(rec.ID()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCollection_DocumentsEqualsCommitted(t *testing.T) {
	coll := newTestCollection(t)

	want := make(map[string]bool)
	for i := 0; i < 5; i++ {
		rec, err := coll.Create(store.Fields{"n": store.NumberValue(float64(i))})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		want[rec.ID()] = true
	}

	got := idSet(coll.Documents())
	if len(got) != len(want) {
		t.Fatalf("expected %d documents, got %d", len(want), len(got))
	}
	for id := range want {
		if !got[id] {
			t.Errorf("missing document %s", id)
		}
	}
}

func TestCollection_DeleteMissing(t *testing.T) {
	coll := newTestCollection(t)
	if err := coll.Delete("no-such-id"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCollection_TruncateDirect(t *testing.T) {
	coll := newTestCollection(t)
	for i := 0; i < 3; i++ {
		coll.Create(store.Fields{})
	}
	if err := coll.Truncate(); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	if docs := coll.Documents(); len(docs) != 0 {
		t.Errorf("expected empty collection, got %d documents", len(docs))
	}
}

// --- Transactions-required policy ---

func TestCollection_TransactionsRequired(t *testing.T) {
	cfg := store.DefaultConfig()
	cfg.TransactionsRequired = true
	s, err := store.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	coll, _ := s.CreateCollection("strict")

	tests := []struct {
		name string
		op   func() error
	}{
		{"create", func() error { _, err := coll.Create(store.Fields{}); return err }},
		{"delete", func() error { return coll.Delete("any") }},
		{"set field", func() error { return coll.SetField("any", "k", store.NullValue()) }},
		{"delete field", func() error { return coll.DeleteField("any", "k") }},
		{"truncate", func() error { return coll.Truncate() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.op(); !errors.Is(err, store.ErrTransactionRequired) {
				t.Errorf("expected ErrTransactionRequired, got %v", err)
			}
		})
	}

	// Reads stay allowed without a transaction.
	if docs := coll.Documents(); len(docs) != 0 {
		t.Errorf("expected empty read, got %d", len(docs))
	}

	// With a transaction open the same calls succeed.
	txn, err := coll.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := coll.Create(store.Fields{}); err != nil {
		t.Errorf("Create inside txn: %v", err)
	}
	txn.Commit()
	if err := txn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if docs := coll.Documents(); len(docs) != 1 {
		t.Errorf("expected 1 committed document, got %d", len(docs))
	}
}

// --- Merged views ---

func TestCollection_MergedDocumentView(t *testing.T) {
	coll := newTestCollection(t)
	kept, _ := coll.Create(store.Fields{"tag": store.StringValue("kept")})
	doomed, _ := coll.Create(store.Fields{"tag": store.StringValue("doomed")})

	txn, _ := coll.Begin()
	if err := coll.Delete(doomed.ID()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	added, err := coll.Create(store.Fields{"tag": store.StringValue("added")})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got := idSet(coll.Documents())
	if !got[kept.ID()] || !got[added.ID()] || got[doomed.ID()] {
		t.Errorf("merged view wrong: %v", got)
	}

	// Committed storage is untouched until commit.
	if _, err := coll.Get(doomed.ID()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("staged-deleted document still visible: %v", err)
	}

	txn.Commit()
	if err := txn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got = idSet(coll.Documents())
	if !got[kept.ID()] || !got[added.ID()] || got[doomed.ID()] {
		t.Errorf("post-commit view wrong: %v", got)
	}
}

func TestCollection_DeleteStagedAddition(t *testing.T) {
	coll := newTestCollection(t)

	txn, _ := coll.Begin()
	rec, err := coll.Create(store.Fields{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := coll.Delete(rec.ID()); err != nil {
		t.Fatalf("deleting a staged addition should work, got %v", err)
	}
	if docs := coll.Documents(); len(docs) != 0 {
		t.Errorf("expected empty merged view, got %d", len(docs))
	}

	txn.Commit()
	if err := txn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if docs := coll.Documents(); len(docs) != 0 {
		t.Errorf("deleted staged addition reached committed storage")
	}
}

func TestCollection_TruncateStaged(t *testing.T) {
	coll := newTestCollection(t)
	for i := 0; i < 3; i++ {
		coll.Create(store.Fields{})
	}

	txn, _ := coll.Begin()
	if err := coll.Truncate(); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	if docs := coll.Documents(); len(docs) != 0 {
		t.Errorf("expected empty merged view, got %d", len(docs))
	}

	txn.Rollback()
	txn.Close()
	if docs := coll.Documents(); len(docs) != 3 {
		t.Errorf("rollback should restore all documents, got %d", len(docs))
	}
}

func TestCollection_MergedFieldView(t *testing.T) {
	coll := newTestCollection(t)
	rec, _ := coll.Create(store.Fields{
		"untouched": store.StringValue("same"),
		"rewritten": store.StringValue("old"),
		"removed":   store.StringValue("bye"),
	})

	txn, _ := coll.Begin()
	coll.SetField(rec.ID(), "rewritten", store.StringValue("new"))
	coll.DeleteField(rec.ID(), "removed")
	coll.SetField(rec.ID(), "fresh", store.StringValue("hello"))

	fields := rec.Fields()
	if v := fields["untouched"]; v.Str() != "same" {
		t.Errorf("untouched field must pass through unchanged, got %v", v)
	}
	if v := fields["rewritten"]; v.Str() != "new" {
		t.Errorf("rewritten field must show the staged value, got %v", v)
	}
	if _, ok := fields["removed"]; ok {
		t.Error("deleted field must be absent from the merged view")
	}
	if v := fields["fresh"]; v.Str() != "hello" {
		t.Errorf("newly staged field must be visible, got %v", v)
	}

	txn.Rollback()
	txn.Close()
}

func TestCollection_FieldWriteRollback(t *testing.T) {
	// Stage k=v2 over committed k=v1, read, roll back, read again.
	coll := newTestCollection(t)
	rec, err := coll.Create(store.Fields{"k": store.StringValue("v1")})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	txn, err := coll.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := coll.SetField(rec.ID(), "k", store.StringValue("v2")); err != nil {
		t.Fatalf("SetField: %v", err)
	}
	if v, _ := rec.Field("k"); v.Str() != "v2" {
		t.Errorf("expected staged value v2 before commit, got %v", v)
	}

	txn.Rollback()
	if err := txn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if v, _ := rec.Field("k"); v.Str() != "v1" {
		t.Errorf("expected committed value v1 after rollback, got %v", v)
	}
}

func TestCollection_CommitAppliesFieldChanges(t *testing.T) {
	coll := newTestCollection(t)
	rec, _ := coll.Create(store.Fields{"a": store.StringValue("1"), "b": store.StringValue("2")})

	txn, _ := coll.Begin()
	coll.SetField(rec.ID(), "a", store.StringValue("1.1"))
	coll.SetField(rec.ID(), "a", store.StringValue("1.2"))
	coll.DeleteField(rec.ID(), "b")
	coll.SetField(rec.ID(), "c", store.BoolValue(true))
	txn.Commit()
	if err := txn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	fields := rec.Fields()
	if v := fields["a"]; v.Str() != "1.2" {
		t.Errorf("expected last staged write to win, got %v", v)
	}
	if _, ok := fields["b"]; ok {
		t.Error("expected b to be deleted by the commit")
	}
	if v := fields["c"]; !v.Bool() {
		t.Errorf("expected c=true, got %v", v)
	}
}

func TestCollection_FieldChangesOnStagedAddition(t *testing.T) {
	coll := newTestCollection(t)

	txn, _ := coll.Begin()
	rec, _ := coll.Create(store.Fields{"k": store.StringValue("initial")})
	if err := coll.SetField(rec.ID(), "k", store.StringValue("updated")); err != nil {
		t.Fatalf("SetField on staged addition: %v", err)
	}
	txn.Commit()
	if err := txn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := coll.Get(rec.ID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v, _ := got.Field("k"); v.Str() != "updated" {
		t.Errorf("staged field change on staged addition lost: %v", v)
	}
}
