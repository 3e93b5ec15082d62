package mongodb

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/mamadbah2/blockfarm/internal/domain/models"
)

const schemaVersionField = "schema_version"

// Migration upgrades a raw document from version From to From+1.
type Migration struct {
	From        int
	Description string
	Apply       func(doc bson.M) error
}

// SchemaRegistry upgrades stored documents to the current layout on read.
// Documents written before versioning have no schema_version and count as 0.
type SchemaRegistry struct {
	steps   map[int]Migration
	current int
}

// NewSchemaRegistry builds a registry from contiguous migrations starting at 0.
func NewSchemaRegistry(migrations ...Migration) (*SchemaRegistry, error) {
	steps := make(map[int]Migration, len(migrations))
	for _, m := range migrations {
		if m.Apply == nil {
			return nil, fmt.Errorf("migration from v%d has no apply func", m.From)
		}
		if _, dup := steps[m.From]; dup {
			return nil, fmt.Errorf("duplicate migration from v%d", m.From)
		}
		steps[m.From] = m
	}
	for v := 0; v < len(steps); v++ {
		if _, ok := steps[v]; !ok {
			return nil, fmt.Errorf("missing migration from v%d", v)
		}
	}
	return &SchemaRegistry{steps: steps, current: len(steps)}, nil
}

// Current returns the version documents are written with.
func (r *SchemaRegistry) Current() int {
	return r.current
}

// Upgrade applies every pending migration to doc in place and returns it.
func (r *SchemaRegistry) Upgrade(doc bson.M) (bson.M, error) {
	version, err := versionOf(doc)
	if err != nil {
		return nil, err
	}
	if version > r.current {
		return nil, fmt.Errorf("document schema v%d is newer than supported v%d", version, r.current)
	}

	for ; version < r.current; version++ {
		step := r.steps[version]
		if err := step.Apply(doc); err != nil {
			return nil, fmt.Errorf("migrate v%d (%s): %w", version, step.Description, err)
		}
	}
	doc[schemaVersionField] = r.current
	return doc, nil
}

func versionOf(doc bson.M) (int, error) {
	raw, ok := doc[schemaVersionField]
	if !ok || raw == nil {
		return 0, nil
	}
	switch v := raw.(type) {
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case int:
		return v, nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("unexpected schema_version type %T", raw)
	}
}

// BlockSchema returns the migrations for the blocks collection.
func BlockSchema() *SchemaRegistry {
	registry, err := NewSchemaRegistry(
		Migration{From: 0, Description: "rename block_code to sequence_code", Apply: renameBlockCode},
		Migration{From: 1, Description: "status to state with kpi sub-document", Apply: nestKPI},
		Migration{From: 2, Description: "default cycle", Apply: defaultCycle},
	)
	if err != nil {
		panic(err)
	}
	return registry
}

func renameBlockCode(doc bson.M) error {
	legacy, ok := doc["block_code"]
	if !ok {
		return nil
	}
	if _, exists := doc["sequence_code"]; !exists {
		doc["sequence_code"] = legacy
	}
	delete(doc, "block_code")
	return nil
}

func nestKPI(doc bson.M) error {
	if status, ok := doc["status"]; ok {
		if _, exists := doc["state"]; !exists {
			doc["state"] = status
		}
		delete(doc, "status")
	}

	if _, exists := doc["kpi"]; exists {
		return nil
	}
	predicted, err := numberField(doc, "predicted_yield")
	if err != nil {
		return err
	}
	actual, err := numberField(doc, "actual_yield")
	if err != nil {
		return err
	}
	kpi := models.NewKPI(predicted, actual)
	doc["kpi"] = bson.M{
		"predicted_yield":          kpi.PredictedYield,
		"actual_yield":             kpi.ActualYield,
		"yield_efficiency_percent": kpi.YieldEfficiencyPercent,
		"performance_category":     string(kpi.PerformanceCategory),
	}
	delete(doc, "predicted_yield")
	delete(doc, "actual_yield")
	return nil
}

func defaultCycle(doc bson.M) error {
	if cycle, ok := doc["cycle"]; !ok || cycle == nil {
		doc["cycle"] = int32(1)
	}
	return nil
}

func numberField(doc bson.M, field string) (float64, error) {
	raw, ok := doc[field]
	if !ok || raw == nil {
		return 0, nil
	}
	switch v := raw.(type) {
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("field %s has type %T, want number", field, raw)
	}
}
