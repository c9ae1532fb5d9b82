package store

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"bookgraph/internal/types"
)

// The resolved-save path must only touch placeholder documents, so a
// resolved record never overwrites another resolved one.
func TestResolvedUpgradeFilterGatesOnPlaceholderStatus(t *testing.T) {
	filter := resolvedUpgradeFilter("9780743247221")
	if filter["_id"] != "9780743247221" {
		t.Errorf("filter _id = %v", filter["_id"])
	}
	if filter["status"] != string(types.StatusPlaceholder) {
		t.Errorf("filter status = %v, want %q", filter["status"], types.StatusPlaceholder)
	}
}

// An existing nonzero rank must survive the upgrade; only a zero rank
// takes the incoming value.
func TestResolvedUpgradePipelineKeepsNonzeroRank(t *testing.T) {
	doc := mongoBook{ISBN: "9780743247221", Title: "Fahrenheit 451", Status: string(types.StatusResolved), Rank: 5}

	pipeline := resolvedUpgradePipeline(doc)
	if len(pipeline) != 1 {
		t.Fatalf("pipeline stages = %d, want 1", len(pipeline))
	}
	set, ok := pipeline[0].(bson.M)["$set"].(bson.M)
	if !ok {
		t.Fatalf("pipeline stage is not a $set: %v", pipeline[0])
	}

	rank, ok := set["top10k"].(bson.M)
	if !ok {
		t.Fatalf("top10k is unconditional: %v", set["top10k"])
	}
	cond, ok := rank["$cond"].(bson.A)
	if !ok || len(cond) != 3 {
		t.Fatalf("top10k $cond = %v", rank["$cond"])
	}
	if cond[1] != doc.Rank {
		t.Errorf("zero-rank branch = %v, want %d", cond[1], doc.Rank)
	}
	if cond[2] != "$top10k" {
		t.Errorf("nonzero-rank branch = %v, want existing value", cond[2])
	}

	if set["status"] != string(types.StatusResolved) {
		t.Errorf("status = %v", set["status"])
	}
	if set["title"] != "Fahrenheit 451" {
		t.Errorf("title = %v", set["title"])
	}
}
