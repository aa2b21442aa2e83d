package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/datapilot-ai/datapilot-engine/pkg/models"
)

const shopTableSchema = `[
	{"qualifiedTable":"public.products","columns":[
		{"name":"id","type":"integer","nullable":false},
		{"name":"price","type":"numeric","nullable":false},
		{"name":"stock_level","type":"integer","nullable":false}
	]},
	{"qualifiedTable":"public.order_items","columns":[
		{"name":"product_id","type":"integer","nullable":false},
		{"name":"quantity","type":"integer","nullable":false},
		{"name":"created_at","type":"timestamp","nullable":false}
	]},
	{"qualifiedTable":"public.customers","columns":[
		{"name":"email","type":"text","nullable":false}
	]}
]`

func TestProfile_ShopSchema(t *testing.T) {
	p := NewCapabilityProfiler()

	got := p.Profile(models.KindPostgres, shopTableSchema)
	assert.Contains(t, got, CapRecordCounts)
	assert.Contains(t, got, CapTopSellingProducts)
	assert.Contains(t, got, CapRevenueOverTime)
	assert.Contains(t, got, CapActivityOverTime)
	assert.Contains(t, got, CapUserLookup)
	assert.Contains(t, got, CapInventoryLevels)
}

func TestProfile_MinimalSchemaOnlyCounts(t *testing.T) {
	p := NewCapabilityProfiler()

	schema := `[{"qualifiedTable":"public.tags","columns":[{"name":"label","type":"text","nullable":false}]}]`
	got := p.Profile(models.KindPostgres, schema)
	assert.Equal(t, []string{CapRecordCounts}, got)
}

func TestProfile_MongoSchema(t *testing.T) {
	p := NewCapabilityProfiler()

	got := p.Profile(models.KindMongo, usersCollectionSchema)
	assert.Contains(t, got, CapRecordCounts)
	assert.Contains(t, got, CapRevenueOverTime, "total plus date columns imply revenue over time")
	assert.Contains(t, got, CapUserLookup)
}

func TestProfile_EmptySchema(t *testing.T) {
	p := NewCapabilityProfiler()

	assert.Nil(t, p.Profile(models.KindPostgres, "[]"))
	assert.Nil(t, p.Profile(models.KindPostgres, ""))
	assert.Nil(t, p.Profile(models.KindPostgres, "not json"))
}
