package store

import (
	"testing"
)

// --- lastWrites Tests ---

func TestLastWrites_Empty(t *testing.T) {
	txn := &Txn{}
	if got := txn.lastWrites(); len(got) != 0 {
		t.Errorf("expected no changes, got %d", len(got))
	}
}

func TestLastWrites_Reduction(t *testing.T) {
	tests := []struct {
		name    string
		changes []FieldChange
		want    []FieldChange
	}{
		{
			name: "single write",
			changes: []FieldChange{
				{RecordID: "r1", Key: "k", Value: StringValue("a"), Action: ActionWrite},
			},
			want: []FieldChange{
				{RecordID: "r1", Key: "k", Value: StringValue("a"), Action: ActionWrite},
			},
		},
		{
			name: "second write shadows first",
			changes: []FieldChange{
				{RecordID: "r1", Key: "k", Value: StringValue("a"), Action: ActionWrite},
				{RecordID: "r1", Key: "k", Value: StringValue("b"), Action: ActionWrite},
			},
			want: []FieldChange{
				{RecordID: "r1", Key: "k", Value: StringValue("b"), Action: ActionWrite},
			},
		},
		{
			name: "delete shadows write",
			changes: []FieldChange{
				{RecordID: "r1", Key: "k", Value: StringValue("a"), Action: ActionWrite},
				{RecordID: "r1", Key: "k", Action: ActionDelete},
			},
			want: []FieldChange{
				{RecordID: "r1", Key: "k", Action: ActionDelete},
			},
		},
		{
			name: "distinct keys kept in append order",
			changes: []FieldChange{
				{RecordID: "r1", Key: "a", Value: NumberValue(1), Action: ActionWrite},
				{RecordID: "r1", Key: "b", Value: NumberValue(2), Action: ActionWrite},
				{RecordID: "r2", Key: "a", Value: NumberValue(3), Action: ActionWrite},
			},
			want: []FieldChange{
				{RecordID: "r1", Key: "a", Value: NumberValue(1), Action: ActionWrite},
				{RecordID: "r1", Key: "b", Value: NumberValue(2), Action: ActionWrite},
				{RecordID: "r2", Key: "a", Value: NumberValue(3), Action: ActionWrite},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := &Txn{fields: tt.changes}
			got := txn.lastWrites()
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d surviving changes, got %d", len(tt.want), len(got))
			}
			for i := range tt.want {
				w, g := tt.want[i], got[i]
				if g.RecordID != w.RecordID || g.Key != w.Key || g.Action != w.Action || !g.Value.Equal(w.Value) {
					t.Errorf("change %d: expected %+v, got %+v", i, w, g)
				}
			}
		})
	}
}

// --- mergedFields Tests ---

func TestMergedFields_UntouchedFieldsPassThrough(t *testing.T) {
	// Regression guard: a field appearing in neither the staged deletions nor
	// the staged writes must survive into the merged view.
	cfg := DefaultConfig()
	cfg.validate()
	coll := newCollection("c", cfg)
	rec := &Record{id: "r1", fields: Fields{
		"untouched": StringValue("keep me"),
		"edited":    StringValue("old"),
	}}
	coll.insert(rec)

	coll.txn = newTxn(coll)
	coll.txn.stageField("r1", "edited", StringValue("new"), ActionWrite)

	got := coll.mergedFields(rec)
	if v, ok := got["untouched"]; !ok || v.Str() != "keep me" {
		t.Errorf("untouched field dropped from merged view: %v", got)
	}
	if v := got["edited"]; v.Str() != "new" {
		t.Errorf("expected staged value, got %v", v)
	}
}

func TestMergedFields_NoTransaction(t *testing.T) {
	cfg := DefaultConfig()
	cfg.validate()
	coll := newCollection("c", cfg)
	rec := &Record{id: "r1", fields: Fields{"k": BoolValue(true)}}
	coll.insert(rec)

	got := coll.mergedFields(rec)
	if len(got) != 1 || !got["k"].Bool() {
		t.Errorf("expected committed fields, got %v", got)
	}

	// The merged view is a copy; callers cannot reach committed state.
	got["k"] = BoolValue(false)
	if !rec.fields["k"].Bool() {
		t.Error("mutating the merged view leaked into committed storage")
	}
}

func TestMergedFields_OtherRecordChangesIgnored(t *testing.T) {
	cfg := DefaultConfig()
	cfg.validate()
	coll := newCollection("c", cfg)
	rec := &Record{id: "r1", fields: Fields{"k": StringValue("mine")}}
	coll.insert(rec)

	coll.txn = newTxn(coll)
	coll.txn.stageField("r2", "k", StringValue("theirs"), ActionWrite)

	if got := coll.mergedFields(rec); got["k"].Str() != "mine" {
		t.Errorf("another record's staged change bled through: %v", got)
	}
}
