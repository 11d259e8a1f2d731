package heuristic

import (
	"testing"
	"testing/fstest"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func columnNames(t *Table) []string {
	var out []string
	for _, c := range t.Columns {
		out = append(out, c.Name)
	}
	return out
}

func TestScanner_Scan(t *testing.T) {
	s := NewScanner()
	s.Scan(`
await db.execute(
    "INSERT OR IGNORE INTO Keywords (name, display_order, [is_active]) VALUES (?, ?, ?)",
    params,
)
db.execute("UPDATE keywords SET display_order = ?, updated_at = COALESCE(?, CURRENT_TIMESTAMP) WHERE id = ?")
rows := db.Query("SELECT name FROM sqlite_master WHERE type = 'table'")
row := db.QueryRow("SELECT COUNT(*) FROM merchant_keywords WHERE merchant_id = ?")
INSERT INTO logs (?) VALUES (1)
`)

	tables := s.Tables()
	require.Contains(t, tables, "keywords")
	assert.Equal(t, []string{"name", "display_order", "is_active", "updated_at"}, columnNames(tables["keywords"]))

	// SELECT даёт таблицу без колонок
	require.Contains(t, tables, "merchant_keywords")
	assert.Empty(t, tables["merchant_keywords"].Columns)

	assert.NotContains(t, tables, "sqlite_master")
	require.Contains(t, tables, "logs")
	assert.Empty(t, tables["logs"].Columns, "плейсхолдер не является колонкой")

	for _, c := range tables["keywords"].Columns {
		assert.True(t, c.Inferred)
	}
}

func testBaseline() []*Table {
	return []*Table{
		NewTable("merchants").
			Add(idColumn()).
			Add(col("chat_id", "INTEGER").required().unique()).
			Add(col("status", "VARCHAR(20)").def("'pending'")).
			Index(false, "status"),
	}
}

func testSourceFS() fstest.MapFS {
	return fstest.MapFS{
		"db/merchants.py": {Data: []byte(`
cursor.execute("INSERT INTO merchants (chat_id, name, is_vip) VALUES (?, ?, ?)", args)
cursor.execute("UPDATE merchants SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", args)
`)},
		"db/reviews.go": {Data: []byte("package db\n\n" +
			"const insertReview = `INSERT OR REPLACE INTO reviews (merchant_id, rating_count, comment_text, created_at) VALUES (?, ?, ?, ?)`\n" +
			"const audit = \"SELECT id FROM audit_trail WHERE id = 1\"\n")},
		"notes.txt":    {Data: []byte("INSERT INTO ignored (a) VALUES (1)")},
		"sql/seed.sql": {Data: []byte("INSERT INTO categories (title, description) VALUES ('a', 'b');\n")},
	}
}

func TestAnalyze_MergesWithBaseline(t *testing.T) {
	m, err := Analyze(testSourceFS(), testBaseline())
	require.NoError(t, err)

	var names []string
	for _, tbl := range m.Tables {
		names = append(names, tbl.Name)
	}
	assert.Equal(t, []string{"merchants", "audit_trail", "categories", "reviews"}, names)
	assert.Nil(t, m.Table("ignored"))

	merchants := m.Table("merchants")
	assert.False(t, merchants.Inferred)
	assert.Equal(t, []string{"id", "chat_id", "status", "name", "is_vip", "updated_at"}, columnNames(merchants))
	// Тип из базовой модели не заменяется выведенным
	assert.Equal(t, "VARCHAR(20)", merchants.Columns[2].Type)

	assert.True(t, m.Table("reviews").Inferred)
}

func TestAnalyze_BaselineIsNotModified(t *testing.T) {
	base := testBaseline()
	_, err := Analyze(testSourceFS(), base)
	require.NoError(t, err)
	assert.Len(t, base[0].Columns, 3)
}

func TestModel_Render(t *testing.T) {
	m, err := Analyze(testSourceFS(), testBaseline())
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "render", []byte(m.Render()))
}

func TestModel_RenderIsDeterministic(t *testing.T) {
	first, err := Analyze(testSourceFS(), Baseline())
	require.NoError(t, err)
	second, err := Analyze(testSourceFS(), Baseline())
	require.NoError(t, err)
	assert.Equal(t, first.Render(), second.Render())
}

func TestColumn_Definition(t *testing.T) {
	assert.Equal(t, "id INTEGER PRIMARY KEY AUTOINCREMENT", idColumn().Definition())
	assert.Equal(t, "key TEXT PRIMARY KEY", Column{Name: "key", Type: "TEXT", PrimaryKey: true, NotNull: true}.Definition())
	assert.Equal(t, "code VARCHAR(20) NOT NULL UNIQUE", col("code", "VARCHAR(20)").required().unique().Definition())
	assert.Equal(t, "code VARCHAR(10) DEFAULT ''", col("code", "VARCHAR(10)").def("''").Definition())
}

func TestTable_CreateStatementWithoutColumns(t *testing.T) {
	assert.Empty(t, NewTable("empty").CreateStatement())
}
