package services

import (
	"strings"

	"github.com/datapilot-ai/datapilot-engine/pkg/models"
)

// Capability labels the profiler can emit. They are hints for the planner
// prompt and the status endpoint, never commitments.
const (
	CapTopSellingProducts = "top_selling_products"
	CapRevenueOverTime    = "revenue_over_time"
	CapActivityOverTime   = "activity_over_time"
	CapUserLookup         = "user_lookup"
	CapInventoryLevels    = "inventory_levels"
	CapRecordCounts       = "record_counts"
)

// CapabilityProfiler inspects a schema and suggests which classes of
// questions the database can answer. Pure heuristics over column and field
// names; no side effects and no database access.
type CapabilityProfiler struct{}

// NewCapabilityProfiler creates a profiler.
func NewCapabilityProfiler() *CapabilityProfiler {
	return &CapabilityProfiler{}
}

// Profile returns the capability labels supported by the schema. A schema
// with any entities always reports record_counts; the rest depend on what
// the column names look like.
func (p *CapabilityProfiler) Profile(kind models.DatabaseKind, schemaJSON string) []string {
	entities, err := parseSchemaEntities(kind, schemaJSON)
	if err != nil || len(entities) == 0 {
		return nil
	}

	var hasPrice, hasQuantity, hasDate, hasProductRef, hasUserish, hasStock bool
	for _, e := range entities {
		for _, field := range e.Fields {
			f := strings.ToLower(field)
			switch {
			case strings.Contains(f, "price") || strings.Contains(f, "amount") || strings.Contains(f, "total") || strings.Contains(f, "revenue"):
				hasPrice = true
			case strings.Contains(f, "quantity") || strings.Contains(f, "qty"):
				hasQuantity = true
			case strings.Contains(f, "stock") || strings.Contains(f, "inventory"):
				hasStock = true
			case strings.Contains(f, "email") || strings.Contains(f, "username"):
				hasUserish = true
			case strings.Contains(f, "product"):
				hasProductRef = true
			}
			if strings.Contains(f, "date") || strings.Contains(f, "created") || strings.Contains(f, "updated") || strings.Contains(f, "timestamp") {
				hasDate = true
			}
		}
		name := strings.ToLower(e.Name)
		if strings.Contains(name, "user") || strings.Contains(name, "customer") {
			hasUserish = true
		}
		if strings.Contains(name, "product") {
			hasProductRef = true
		}
	}

	capabilities := []string{CapRecordCounts}
	if hasPrice && hasQuantity && hasProductRef {
		capabilities = append(capabilities, CapTopSellingProducts)
	}
	if hasPrice && hasDate {
		capabilities = append(capabilities, CapRevenueOverTime)
	}
	if hasDate {
		capabilities = append(capabilities, CapActivityOverTime)
	}
	if hasUserish {
		capabilities = append(capabilities, CapUserLookup)
	}
	if hasStock {
		capabilities = append(capabilities, CapInventoryLevels)
	}
	return capabilities
}
