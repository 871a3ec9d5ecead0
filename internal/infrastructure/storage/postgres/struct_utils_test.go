package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/directory"
)

func TestExtractDBColumns_Embedded(t *testing.T) {
	cols := ExtractDBColumns[directory.Branch]()

	for _, expected := range []string{"id", "deletion_mark", "version", "code", "name", "role", "is_active", "is_default"} {
		assert.Contains(t, cols, expected)
	}
}

func TestExtractDBColumns_SkipsIgnoredFields(t *testing.T) {
	type row struct {
		entity.BaseEntity
		Name    string `db:"name"`
		Lines   []int  `db:"-"`
		Untyped string
	}

	cols := ExtractDBColumns[row]()
	assert.Equal(t, []string{"id", "deletion_mark", "version", "name"}, cols)
}

func TestStructToMap_Branch(t *testing.T) {
	b := directory.NewBranch("HQ", "Head office", directory.RoleHeadOffice)
	b.Version = 5

	m := StructToMap(b)

	assert.Equal(t, b.ID, m["id"])
	assert.Equal(t, false, m["deletion_mark"])
	assert.Equal(t, 5, m["version"])
	assert.Equal(t, "HQ", m["code"])
	assert.Equal(t, "Head office", m["name"])
	assert.Equal(t, directory.RoleHeadOffice, m["role"])
	assert.Equal(t, true, m["is_active"])
}

func TestStructToMap_Product(t *testing.T) {
	p := directory.NewProduct("TEA", "Black tea", types.MustMoney("3.50"))

	m := StructToMap(p)
	require.Contains(t, m, "cost_price")
	assert.True(t, p.CostPrice.Equal(m["cost_price"].(types.Money)))
	assert.NotContains(t, m, "")
}

func TestStructToMap_NonStruct(t *testing.T) {
	assert.Nil(t, StructToMap(42))
}
